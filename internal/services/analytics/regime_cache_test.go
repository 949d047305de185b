package analytics

import (
	"context"
	"testing"
	"time"

	"ModelGate/internal/domain/models"
	pkgcache "ModelGate/pkg/cache"
)

type countingDetector struct {
	calls int
	state models.RegimeState
}

func (d *countingDetector) Detect(_ context.Context, symbol string, _ []float64) (models.Regime, error) {
	d.calls++
	return models.Regime{Symbol: symbol, Timestamp: time.Now(), State: d.state, Confidence: 1}, nil
}

func TestCachedRegimeDetectorHitsClassifierOncePerTTL(t *testing.T) {
	inner := &countingDetector{state: models.RegimeBull}
	d := NewCachedRegimeDetector(inner, pkgcache.NewMemory(), time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		regime, err := d.Detect(ctx, "BTCUSDT", []float64{0.001})
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if regime.State != models.RegimeBull {
			t.Fatalf("got %s, want bull", regime.State)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("classifier called %d times, want 1", inner.calls)
	}

	// a different symbol is its own key
	if _, err := d.Detect(ctx, "ETHUSDT", []float64{0.001}); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("classifier called %d times, want 2", inner.calls)
	}
}
