package httpx

import (
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"time"
)

type reservationView struct {
	ID                   string                `json:"id"`
	UserID               string                `json:"user_id"`
	SalonID              string                `json:"salon_id"`
	SalonName            string                `json:"salon_name,omitempty"`
	ServiceID            string                `json:"service_id"`
	ServiceName          string                `json:"service_name,omitempty"`
	DurationMinutes      int                   `json:"duration_minutes,omitempty"`
	StartTime            time.Time             `json:"start_time"`
	EndTime              time.Time             `json:"end_time"`
	Notes                string                `json:"notes,omitempty"`
	Status               booking.Status        `json:"status"`
	PaymentStatus        booking.PaymentStatus `json:"payment_status"`
	PaymentIntentID      string                `json:"payment_intent_id,omitempty"`
	Pricing              booking.Pricing       `json:"pricing"`
	ConfirmedAt          *time.Time            `json:"confirmed_at,omitempty"`
	CancelledAt          *time.Time            `json:"cancelled_at,omitempty"`
	ConfirmationDeadline *time.Time            `json:"confirmation_deadline,omitempty"`
	CancellationReason   string                `json:"cancellation_reason,omitempty"`
	AutoCancelled        bool                  `json:"auto_cancelled"`
	AutoCancelReason     string                `json:"auto_cancel_reason,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

func toReservationView(r *booking.Reservation) reservationView {
	return reservationView{
		ID:              r.ID,
		UserID:          r.UserID,
		SalonID:         r.SalonID,
		ServiceID:       r.ServiceID,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		Notes:           r.Notes,
		Status:          r.Status,
		PaymentStatus:   r.PaymentStatus,
		PaymentIntentID: r.PaymentIntentID,
		Pricing: booking.Pricing{
			TotalPrice:           r.TotalPrice,
			CommissionPercentage: r.CommissionPercentage,
			CommissionAmount:     r.CommissionAmount,
			AmountToMerchant:     r.AmountToMerchant,
		},
		ConfirmedAt:          r.ConfirmedAt,
		CancelledAt:          r.CancelledAt,
		ConfirmationDeadline: r.ConfirmationDeadline,
		CancellationReason:   r.CancellationReason,
		AutoCancelled:        r.AutoCancelled,
		AutoCancelReason:     r.AutoCancelReason,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func toDetailView(d *booking.Detail) reservationView {
	v := toReservationView(&d.Reservation)
	v.SalonName = d.SalonName
	v.ServiceName = d.ServiceName
	v.DurationMinutes = d.DurationMinutes
	return v
}

type auditView struct {
	ID          string                    `json:"id"`
	ActorUserID string                    `json:"actor_user_id"`
	Action      string                    `json:"action"`
	Changes     map[string]booking.Change `json:"changes"`
	CreatedAt   time.Time                 `json:"created_at"`
}

func toAuditViews(entries []booking.AuditEntry) []auditView {
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditView{
			ID:          e.ID,
			ActorUserID: e.ActorUserID,
			Action:      e.Action,
			Changes:     e.Changes,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}
