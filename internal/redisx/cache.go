package redisx

import (
	"context"
	"encoding/json"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/redis/go-redis/v9"
	"time"
)

// StatusCache holds short-lived timeout-status views, keyed per viewer so a
// hit implies the viewer was authorized when the entry was written.
type StatusCache struct {
	RDB redis.Cmdable
	TTL time.Duration
}

func (c *StatusCache) Get(ctx context.Context, reservationID, userID string) (*booking.TimeoutStatus, bool, error) {
	b, ok, err := GetBytes(ctx, c.RDB, TimeoutStatusKey(reservationID, userID))
	if err != nil || !ok {
		return nil, false, err
	}
	var ts booking.TimeoutStatus
	if err := json.Unmarshal(b, &ts); err != nil {
		return nil, false, nil
	}
	return &ts, true, nil
}

func (c *StatusCache) Set(ctx context.Context, userID string, ts *booking.TimeoutStatus) error {
	b, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = TTLTimeoutStatus
	}
	return c.RDB.Set(ctx, TimeoutStatusKey(ts.ReservationID, userID), b, ttl).Err()
}
