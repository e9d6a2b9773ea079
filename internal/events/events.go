// Package events defines the messages this core publishes for downstream consumers.
package events

import (
	"encoding/json"
	"time"
)

const (
	EventReservationCreated = "ReservationCreated"

	TopicReservationCreated = "reservation.created"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // reservation id
	Payload       json.RawMessage `json:"payload"`
}

type ReservationCreatedPayload struct {
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	SalonID       string    `json:"salon_id"`
	ServiceID     string    `json:"service_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	TotalPrice    int64     `json:"total_price"`
	Source        string    `json:"source"`
}

// PartitionKey keeps every event of one reservation on one partition.
func PartitionKey(reservationID string) []byte { return []byte(reservationID) }
