package booking

import (
	"strconv"
	"strings"
	"time"
)

// Metadata keys attached to a payment authorization.
const (
	MetaUserID               = "user_id"
	MetaSalonID              = "salon_id"
	MetaServiceID            = "service_id"
	MetaStartTime            = "start_time"
	MetaEndTime              = "end_time"
	MetaTotalPrice           = "total_price"
	MetaCommissionPercentage = "commission_percentage"
	MetaCommissionAmount     = "commission_amount"
	MetaAmountToMerchant     = "amount_to_merchant"
	MetaNotes                = "notes"
	MetaContactPhone         = "contact_phone"
	MetaHold                 = "slot_hold"
	MetaReservationID        = "reservation_id"
)

// provider-side limit on a single metadata value
const maxMetaValue = 500

// IntentMetadata carries every booking fact needed to create the reservation
// from the authorization alone.
type IntentMetadata struct {
	UserID       string
	SalonID      string
	ServiceID    string
	Start        time.Time
	End          time.Time
	Pricing      Pricing
	Notes        string
	ContactPhone string
	Hold         bool

	// set once a reservation has been created for the authorization
	ReservationID string
}

func (m IntentMetadata) SlotKey() SlotKey { return NewSlotKey(m.SalonID, m.Start, m.End) }

func (m IntentMetadata) Encode() map[string]string {
	out := map[string]string{
		MetaUserID:               m.UserID,
		MetaSalonID:              m.SalonID,
		MetaServiceID:            m.ServiceID,
		MetaStartTime:            m.Start.UTC().Format(time.RFC3339),
		MetaEndTime:              m.End.UTC().Format(time.RFC3339),
		MetaTotalPrice:           strconv.FormatInt(m.Pricing.TotalPrice, 10),
		MetaCommissionPercentage: strconv.FormatFloat(m.Pricing.CommissionPercentage, 'f', -1, 64),
		MetaCommissionAmount:     strconv.FormatInt(m.Pricing.CommissionAmount, 10),
		MetaAmountToMerchant:     strconv.FormatInt(m.Pricing.AmountToMerchant, 10),
	}
	if m.Notes != "" {
		out[MetaNotes] = truncate(m.Notes, maxMetaValue)
	}
	if m.ContactPhone != "" {
		out[MetaContactPhone] = truncate(m.ContactPhone, maxMetaValue)
	}
	if m.Hold {
		out[MetaHold] = "true"
	}
	if m.ReservationID != "" {
		out[MetaReservationID] = m.ReservationID
	}
	return out
}

// ParseIntentMetadata yields ErrCorruptIntent for any missing or malformed field.
func ParseIntentMetadata(md map[string]string) (IntentMetadata, error) {
	var m IntentMetadata
	var missing []string
	req := func(k string) string {
		v := strings.TrimSpace(md[k])
		if v == "" {
			missing = append(missing, k)
		}
		return v
	}
	m.UserID = req(MetaUserID)
	m.SalonID = req(MetaSalonID)
	m.ServiceID = req(MetaServiceID)
	start := req(MetaStartTime)
	end := req(MetaEndTime)
	total := req(MetaTotalPrice)
	pct := req(MetaCommissionPercentage)
	commission := req(MetaCommissionAmount)
	merchant := req(MetaAmountToMerchant)
	if len(missing) > 0 {
		return m, withMessage(ErrCorruptIntent, "missing metadata: %s", strings.Join(missing, ", "))
	}

	var err error
	if m.Start, err = time.Parse(time.RFC3339, start); err != nil {
		return m, withMessage(ErrCorruptIntent, "bad %s: %v", MetaStartTime, err)
	}
	if m.End, err = time.Parse(time.RFC3339, end); err != nil {
		return m, withMessage(ErrCorruptIntent, "bad %s: %v", MetaEndTime, err)
	}
	if validInterval(m.Start, m.End) != nil {
		return m, withMessage(ErrCorruptIntent, "metadata interval is empty")
	}
	if m.Pricing.TotalPrice, err = strconv.ParseInt(total, 10, 64); err != nil {
		return m, withMessage(ErrCorruptIntent, "bad %s", MetaTotalPrice)
	}
	if m.Pricing.CommissionPercentage, err = strconv.ParseFloat(pct, 64); err != nil {
		return m, withMessage(ErrCorruptIntent, "bad %s", MetaCommissionPercentage)
	}
	if m.Pricing.CommissionAmount, err = strconv.ParseInt(commission, 10, 64); err != nil {
		return m, withMessage(ErrCorruptIntent, "bad %s", MetaCommissionAmount)
	}
	if m.Pricing.AmountToMerchant, err = strconv.ParseInt(merchant, 10, 64); err != nil {
		return m, withMessage(ErrCorruptIntent, "bad %s", MetaAmountToMerchant)
	}
	m.Notes = md[MetaNotes]
	m.ContactPhone = md[MetaContactPhone]
	m.Hold = md[MetaHold] == "true"
	m.ReservationID = md[MetaReservationID]
	return m, nil
}

func (m IntentMetadata) newReservation(id, intentID string, now time.Time) *Reservation {
	r := &Reservation{
		ID:              id,
		UserID:          m.UserID,
		SalonID:         m.SalonID,
		ServiceID:       m.ServiceID,
		StartTime:       m.Start.UTC(),
		EndTime:         m.End.UTC(),
		Notes:           m.Notes,
		Status:          StatusConfirmed,
		PaymentIntentID: intentID,
		PaymentStatus:   PaymentSucceeded,
		ConfirmedAt:     &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.applyPricing(m.Pricing)
	return r
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
