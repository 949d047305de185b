package cache

import (
	"context"
	"time"
)

// Layered reads through a fast local store into a shared backing store.
// Local hits never touch the backing store; backing hits are copied into the
// local layer with a bounded TTL so instances converge quickly after writes
// from elsewhere.
type Layered struct {
	local    Store
	backing  Store
	localTTL time.Duration
}

var _ Store = (*Layered)(nil)

func NewLayered(local, backing Store, localTTL time.Duration) *Layered {
	if localTTL <= 0 {
		localTTL = time.Second
	}
	return &Layered{local: local, backing: backing, localTTL: localTTL}
}

func (l *Layered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if b, ok, err := l.local.Get(ctx, key); err == nil && ok {
		return b, true, nil
	}
	b, ok, err := l.backing.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	_ = l.local.Set(ctx, key, b, l.localTTL)
	return b, true, nil
}

func (l *Layered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	localTTL := ttl
	if localTTL <= 0 || localTTL > l.localTTL {
		localTTL = l.localTTL
	}
	_ = l.local.Set(ctx, key, value, localTTL)
	return l.backing.Set(ctx, key, value, ttl)
}

func (l *Layered) Delete(ctx context.Context, key string) error {
	_ = l.local.Delete(ctx, key)
	return l.backing.Delete(ctx, key)
}
