package redisx

import (
	"fmt"
	"time"
)

const (
	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Cached timeout-status view per viewer: timeout_status:{reservation_id}:{user_id}
	KeyTimeoutStatus = "timeout_status:%s:%s"
)

var (
	TTLDedup         = 48 * time.Hour
	TTLTimeoutStatus = 15 * time.Second
)

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }

func TimeoutStatusKey(reservationID, userID string) string {
	return fmt.Sprintf(KeyTimeoutStatus, reservationID, userID)
}
