package booking

import (
	"context"
	"time"
)

type TxFunc func(ctx context.Context, tx Tx) error

// SlotLocker holds the lock for key until fn's transaction ends.
type SlotLocker interface {
	WithSlotLock(ctx context.Context, key SlotKey, fn TxFunc) error
}

type Store interface {
	SlotLocker
	WithinTx(ctx context.Context, fn TxFunc) error

	Reservation(ctx context.Context, id string) (*Reservation, error)
	Detail(ctx context.Context, id string) (*Detail, error)
	AuditLog(ctx context.Context, reservationID string) ([]AuditEntry, error)
}

// Lookups lock the returned row until the transaction ends.
type Tx interface {
	OverlapChecker

	ReservationByID(ctx context.Context, id string) (*Reservation, error)
	ReservationByPaymentIntent(ctx context.Context, intentID string) (*Reservation, error)
	InsertReservation(ctx context.Context, r *Reservation) error
	UpdateReservation(ctx context.Context, r *Reservation) error
	SetConfirmationDeadline(ctx context.Context, id string, deadline time.Time) error
	InsertAudit(ctx context.Context, e *AuditEntry) error

	// ClaimExpiredPending skips rows locked elsewhere and ids in skip.
	ClaimExpiredPending(ctx context.Context, now time.Time, skip []string) (*Reservation, error)
	CompletePast(ctx context.Context, now time.Time) (int64, error)
}

type AuthorizationStatus string

const (
	AuthorizationSucceeded AuthorizationStatus = "succeeded"
	AuthorizationCanceled  AuthorizationStatus = "canceled"
)

type AuthorizationRequest struct {
	Amount             int64
	ApplicationFee     int64
	Currency           string
	DestinationAccount string
	Metadata           map[string]string
	Description        string
}

type Authorization struct {
	ID           string
	ClientSecret string
	Status       AuthorizationStatus
	Amount       int64
	Metadata     map[string]string
}

type Refund struct {
	ID     string
	Amount int64
	Status string
}

const (
	RefundReasonSlotTaken = "slot no longer available"
	RefundReasonDeadline  = "not confirmed within deadline"
	RefundReasonCancelled = "cancelled by client"
)

type PaymentProvider interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (*Authorization, error)
	RetrieveAuthorization(ctx context.Context, id string) (*Authorization, error)
	// Refund voids the authorization when nothing was captured yet.
	Refund(ctx context.Context, authorizationID, reason string) (*Refund, error)
	UpdateMetadata(ctx context.Context, id string, metadata map[string]string) error
}

type Directory interface {
	Service(ctx context.Context, id string) (*Service, error)
	Salon(ctx context.Context, id string) (*Salon, error)
	IsSalonStaff(ctx context.Context, salonID, userID string) (bool, error)
}

type BlockCalendar interface {
	IsSlotBlocked(ctx context.Context, salonID string, start, end time.Time) (bool, error)
}

// ReservationCreated is handed to downstream reminder scheduling.
type ReservationCreated struct {
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	SalonID       string    `json:"salon_id"`
	ServiceID     string    `json:"service_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	TotalPrice    int64     `json:"total_price"`
	Source        string    `json:"source"` // client | webhook
}

type Dispatcher interface {
	ReservationCreated(ctx context.Context, ev ReservationCreated) error
}

type EventType string

const (
	EventFundsCaptured       EventType = "funds_captured"
	EventAuthorizationFailed EventType = "authorization_failed"
	EventFundsReversed       EventType = "funds_reversed"
)

// ProviderEvent is a signature-verified asynchronous event from the payment provider.
type ProviderEvent struct {
	ID              string
	Type            EventType
	PaymentIntentID string
	Metadata        map[string]string
	Reason          string
}
