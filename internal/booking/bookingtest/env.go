package bookingtest

import (
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"go.uber.org/zap/zaptest"
	"testing"
	"time"
)

const (
	SalonID      = "salon-1"
	OtherSalonID = "salon-2"
	ServiceCut   = "svc-cut"   // 45.00, 60 min
	ServiceColor = "svc-color" // 90.00, 90 min
	ServiceOther = "svc-other" // belongs to OtherSalonID
	StaffUserID  = "staff-1"
)

// Epoch is the fixed "now" of a fresh Env.
var Epoch = time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)

// Env wires every fake into a booking.Deps.
type Env struct {
	Store     *Store
	Provider  *Provider
	Directory *Directory
	Calendar  *Calendar
	Events    *Recorder
	Clock     *Clock
	Deps      booking.Deps
}

func NewEnv(t testing.TB) *Env {
	e := &Env{
		Store:     NewStore(),
		Provider:  NewProvider(),
		Directory: NewDirectory(),
		Calendar:  &Calendar{},
		Events:    &Recorder{},
		Clock:     NewClock(Epoch),
	}
	e.Directory.Salons[SalonID] = booking.Salon{ID: SalonID, Name: "Studio Uno", PayoutAccountID: "acct_1", PaymentsEnabled: true}
	e.Directory.Salons[OtherSalonID] = booking.Salon{ID: OtherSalonID, Name: "Barber Dua", PayoutAccountID: "acct_2", PaymentsEnabled: true}
	e.Directory.Services[ServiceCut] = booking.Service{ID: ServiceCut, SalonID: SalonID, Name: "Haircut", PriceCents: 4500, DurationMinutes: 60}
	e.Directory.Services[ServiceColor] = booking.Service{ID: ServiceColor, SalonID: SalonID, Name: "Color", PriceCents: 9000, DurationMinutes: 90}
	e.Directory.Services[ServiceOther] = booking.Service{ID: ServiceOther, SalonID: OtherSalonID, Name: "Shave", PriceCents: 2000, DurationMinutes: 30}
	e.Directory.Staff[SalonID] = []string{StaffUserID}
	e.Store.SalonNames[SalonID] = "Studio Uno"
	e.Store.ServiceNames[ServiceCut] = "Haircut"
	e.Store.ServiceNames[ServiceColor] = "Color"

	e.Deps = booking.Deps{
		Store:     e.Store,
		Payments:  e.Provider,
		Directory: e.Directory,
		Calendar:  e.Calendar,
		Events:    e.Events,
		Log:       zaptest.NewLogger(t),
		Now:       e.Clock.Now,
		Settings:  booking.Settings{Currency: "eur", CommissionPercentage: 3, ConfirmationHours: 2},
	}
	return e
}

// At returns Epoch's day at hh:mm UTC.
func At(hh, mm int) time.Time {
	return time.Date(Epoch.Year(), Epoch.Month(), Epoch.Day(), hh, mm, 0, 0, time.UTC)
}

// Meta describes a ServiceCut booking at SalonID.
func Meta(userID string, start, end time.Time) booking.IntentMetadata {
	return booking.IntentMetadata{
		UserID:    userID,
		SalonID:   SalonID,
		ServiceID: ServiceCut,
		Start:     start,
		End:       end,
		Pricing:   booking.ComputePricing(4500, 3),
	}
}

// Confirmed builds a committed-ready confirmed reservation.
func Confirmed(id, userID string, start, end time.Time) booking.Reservation {
	now := Epoch
	r := booking.Reservation{
		ID:              id,
		UserID:          userID,
		SalonID:         SalonID,
		ServiceID:       ServiceCut,
		StartTime:       start,
		EndTime:         end,
		Status:          booking.StatusConfirmed,
		PaymentIntentID: "pi_" + id,
		PaymentStatus:   booking.PaymentSucceeded,
		ConfirmedAt:     &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	p := booking.ComputePricing(4500, 3)
	r.TotalPrice, r.CommissionPercentage, r.CommissionAmount, r.AmountToMerchant = p.TotalPrice, p.CommissionPercentage, p.CommissionAmount, p.AmountToMerchant
	return r
}
