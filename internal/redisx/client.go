package redisx

import (
	"context"
	"errors"
	"github.com/redis/go-redis/v9"
	"time"
)

func New(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Dedup claims event ids so redelivered messages can be skipped early.
type Dedup struct {
	RDB     redis.Cmdable
	Service string
	TTL     time.Duration
}

// Claim returns true when id was not seen before and is now claimed.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = TTLDedup
	}
	return d.RDB.SetNX(ctx, DedupKey(d.Service, id), "1", ttl).Result()
}

// Release forgets a claim so the next delivery is processed again.
func (d *Dedup) Release(ctx context.Context, id string) error {
	return d.RDB.Del(ctx, DedupKey(d.Service, id)).Err()
}

// GetBytes returns ok=false on a cache miss.
func GetBytes(ctx context.Context, rdb redis.Cmdable, key string) ([]byte, bool, error) {
	b, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}
