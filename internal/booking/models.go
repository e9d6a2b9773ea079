package booking

import "time"

type Reservation struct {
	ID        string
	UserID    string
	SalonID   string
	ServiceID string
	StartTime time.Time
	EndTime   time.Time
	Notes     string

	TotalPrice           int64 // minor units
	CommissionPercentage float64
	CommissionAmount     int64
	AmountToMerchant     int64

	Status          Status
	PaymentIntentID string
	PaymentStatus   PaymentStatus

	ConfirmedAt          *time.Time
	CancelledAt          *time.Time
	ConfirmationDeadline *time.Time

	CancellationReason string
	AutoCancelled      bool
	AutoCancelReason   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Detail is a reservation joined with display fields owned by the directory.
type Detail struct {
	Reservation
	SalonName       string
	ServiceName     string
	DurationMinutes int
}

// Change is one old/new pair recorded in an audit entry.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

type AuditEntry struct {
	ID            string
	ReservationID string
	ActorUserID   string
	Action        string
	Changes       map[string]Change
	CreatedAt     time.Time
}

const AuditActionModified = "modified"

type Service struct {
	ID              string
	SalonID         string
	Name            string
	PriceCents      int64
	DurationMinutes int
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type Salon struct {
	ID              string
	Name            string
	PayoutAccountID string
	PaymentsEnabled bool
}

// Pricing is computed once at authorization and carried in intent metadata.
type Pricing struct {
	TotalPrice           int64   `json:"total_price"`
	CommissionPercentage float64 `json:"commission_percentage"`
	CommissionAmount     int64   `json:"commission_amount"`
	AmountToMerchant     int64   `json:"amount_to_merchant"`
}

// TimeoutStatus is the polling view of a reservation's confirmation deadline.
type TimeoutStatus struct {
	ReservationID    string     `json:"reservation_id"`
	Status           Status     `json:"status"`
	Deadline         *time.Time `json:"confirmation_deadline,omitempty"`
	MinutesRemaining int        `json:"minutes_remaining"`
	Expired          bool       `json:"expired"`
	AutoCancelled    bool       `json:"auto_cancelled"`
}
