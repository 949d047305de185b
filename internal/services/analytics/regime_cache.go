package analytics

import (
	"context"
	"encoding/json"
	"time"

	"ModelGate/internal/domain/models"
	domsvc "ModelGate/internal/domain/service"
	pkgcache "ModelGate/pkg/cache"
)

// CachedRegimeDetector wraps a detector with a short-lived cache so bursts of
// predictions on the same symbol hit the classifier once per TTL.
type CachedRegimeDetector struct {
	inner domsvc.RegimeDetector
	cache pkgcache.Store
	ttl   time.Duration
}

var _ domsvc.RegimeDetector = (*CachedRegimeDetector)(nil)

func NewCachedRegimeDetector(inner domsvc.RegimeDetector, cache pkgcache.Store, ttl time.Duration) *CachedRegimeDetector {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &CachedRegimeDetector{inner: inner, cache: cache, ttl: ttl}
}

func (d *CachedRegimeDetector) Detect(ctx context.Context, symbol string, returns []float64) (models.Regime, error) {
	key := "regime:" + symbol

	if b, ok, err := d.cache.Get(ctx, key); err == nil && ok {
		var regime models.Regime
		if err := json.Unmarshal(b, &regime); err == nil {
			return regime, nil
		}
	}

	regime, err := d.inner.Detect(ctx, symbol, returns)
	if err != nil {
		return regime, err
	}

	if b, err := json.Marshal(regime); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return regime, nil
}
