// Package cache provides the byte-oriented TTL caching surface shared by the
// gate: an in-process store, a Redis-backed store, and a two-level
// combination of both.
package cache

import (
	"context"
	"time"
)

// Store is a TTL'd byte cache. Get reports a miss with ok=false rather than
// an error so callers can treat misses and backend failures differently.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
