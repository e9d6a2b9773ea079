package booking

import "math"

const DefaultCommissionPercentage = 3.0

// ComputePricing splits total (minor units) into platform commission and the
// merchant remainder, rounding the commission to the nearest minor unit.
func ComputePricing(total int64, commissionPct float64) Pricing {
	commission := int64(math.Round(float64(total) * commissionPct / 100))
	if commission < 0 {
		commission = 0
	}
	if commission > total {
		commission = total
	}
	return Pricing{
		TotalPrice:           total,
		CommissionPercentage: commissionPct,
		CommissionAmount:     commission,
		AmountToMerchant:     total - commission,
	}
}

func (r *Reservation) Pricing() Pricing {
	return Pricing{
		TotalPrice:           r.TotalPrice,
		CommissionPercentage: r.CommissionPercentage,
		CommissionAmount:     r.CommissionAmount,
		AmountToMerchant:     r.AmountToMerchant,
	}
}

func (r *Reservation) applyPricing(p Pricing) {
	r.TotalPrice = p.TotalPrice
	r.CommissionPercentage = p.CommissionPercentage
	r.CommissionAmount = p.CommissionAmount
	r.AmountToMerchant = p.AmountToMerchant
}
