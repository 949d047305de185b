package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"ModelGate/internal/domain/models"
	"ModelGate/pkg/config"
)

func TestLocalRegimeDetector(t *testing.T) {
	d := NewLocalRegimeDetector(10, 1, 0.05, 0.001)

	constant := func(v float64, n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = v
		}
		return out
	}
	alternating := func(v float64, n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = v
			if i%2 == 1 {
				out[i] = -v
			}
		}
		return out
	}

	tests := []struct {
		name    string
		returns []float64
		want    models.RegimeState
	}{
		{"short series defaults to sideways", constant(0.01, 5), models.RegimeSideways},
		{"flat returns", constant(0.0005, 20), models.RegimeSideways},
		{"positive drift", constant(0.002, 20), models.RegimeBull},
		{"negative drift", constant(-0.002, 20), models.RegimeBear},
		{"high volatility dominates drift", alternating(0.05, 20), models.RegimeVolatile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regime, err := d.Detect(context.Background(), "BTCUSDT", tt.returns)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if regime.State != tt.want {
				t.Fatalf("got %s, want %s", regime.State, tt.want)
			}
		})
	}
}

func TestHTTPRegimeDetector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/regime/detect" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Symbol string `json:"symbol"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"state":      "bull",
			"confidence": 0.8,
		})
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Regime.ServiceURL = srv.URL
	d := NewHTTPRegimeDetector(cfg)

	regime, err := d.Detect(context.Background(), "BTCUSDT", []float64{0.001, 0.002})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if regime.State != models.RegimeBull || regime.Confidence != 0.8 {
		t.Fatalf("unexpected regime %+v", regime)
	}
}

func TestHTTPRegimeDetectorRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"state": "sideways"})
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Regime.ServiceURL = srv.URL
	d := NewHTTPRegimeDetector(cfg)

	if _, err := d.Detect(context.Background(), "BTCUSDT", []float64{0.001}); err != nil {
		t.Fatalf("Detect after retry: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}
