package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ModelGate/internal/domain/models"
	domsvc "ModelGate/internal/domain/service"
	"ModelGate/internal/services/features"
	"ModelGate/pkg/config"
)

const detectAttempts = 3

// HTTPRegimeDetector asks an external classification service for the current
// market regime.
type HTTPRegimeDetector struct {
	url   string
	httpc *http.Client
}

func NewHTTPRegimeDetector(cfg *config.Config) *HTTPRegimeDetector {
	timeout := cfg.Regime.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPRegimeDetector{
		url:   cfg.Regime.ServiceURL + "/regime/detect",
		httpc: &http.Client{Timeout: timeout},
	}
}

type regimeRequest struct {
	Symbol  string    `json:"symbol"`
	Returns []float64 `json:"returns"`
}

type regimeResponse struct {
	State      string    `json:"state"`
	Prob       []float64 `json:"prob"`
	Confidence float64   `json:"confidence"`
}

func (d *HTTPRegimeDetector) Detect(ctx context.Context, symbol string, returns []float64) (models.Regime, error) {
	var result models.Regime
	var rr regimeResponse

	var err error
	for attempt := 1; attempt <= detectAttempts; attempt++ {
		if err = d.post(ctx, regimeRequest{Symbol: symbol, Returns: returns}, &rr); err == nil {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}
	if err != nil {
		return result, fmt.Errorf("regime detect %s: %w", symbol, err)
	}

	result.Symbol = symbol
	result.Timestamp = time.Now()
	result.State = models.RegimeState(rr.State)
	result.Prob = rr.Prob
	result.Confidence = rr.Confidence
	return result, nil
}

func (d *HTTPRegimeDetector) post(ctx context.Context, payload, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("regime service status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

var _ domsvc.RegimeDetector = (*HTTPRegimeDetector)(nil)

// LocalRegimeDetector is a threshold heuristic over realized volatility and
// trend, used when no regime service is configured.
type LocalRegimeDetector struct {
	window         int
	barsPerYear    float64
	volThreshold   float64 // annualized sigma above which the regime is volatile
	driftThreshold float64
}

func NewLocalRegimeDetector(window int, barsPerYear, volThreshold, driftThreshold float64) *LocalRegimeDetector {
	if window < 2 {
		window = 20
	}
	return &LocalRegimeDetector{
		window:         window,
		barsPerYear:    barsPerYear,
		volThreshold:   volThreshold,
		driftThreshold: driftThreshold,
	}
}

func (d *LocalRegimeDetector) Detect(_ context.Context, symbol string, returns []float64) (models.Regime, error) {
	result := models.Regime{
		Symbol:    symbol,
		Timestamp: time.Now(),
		State:     models.RegimeSideways,
	}
	if len(returns) < d.window {
		result.Confidence = 0
		return result, nil
	}

	window := returns[len(returns)-d.window:]
	var drift float64
	for _, r := range window {
		drift += r
	}
	drift /= float64(d.window)

	vol := features.RealizedVolatility(returns, d.window, d.barsPerYear)
	switch {
	case vol > d.volThreshold:
		result.State = models.RegimeVolatile
	case drift > d.driftThreshold:
		result.State = models.RegimeBull
	case drift < -d.driftThreshold:
		result.State = models.RegimeBear
	}
	result.Confidence = 0.5
	return result, nil
}

var _ domsvc.RegimeDetector = (*LocalRegimeDetector)(nil)
