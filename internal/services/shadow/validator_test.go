package shadow

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"ModelGate/internal/domain/models"
)

func testThresholds() models.ValidationThresholds {
	return models.ValidationThresholds{
		RequiredSamples:   20,
		MinCoverage:       0.85,
		MaxCoverageGap:    0.15,
		MaxIntervalWidth:  0.05,
		MinSharpeRatio:    0.5,
		MaxDrawdown:       0.1,
		ConsistencyWindow: 10,
		MinSuccessRate:    0.8,
		MaxVolatility:     0.01,
		PositionSize:      10000,
		BarsPerYear:       525600, // 1m bars
	}
}

func testConformalConfig() models.ConformalConfig {
	return models.ConformalConfig{Alpha: 0.1, WindowSize: 200, MinSamples: 20}
}

// newRunningValidator seeds the calibration buffer past MinSamples and starts
// a shadow run.
func newRunningValidator(t *testing.T, th models.ValidationThresholds) *Validator {
	t.Helper()
	v, err := NewValidator("strat-a", testConformalConfig(), th)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	for i := 0; i < 20; i++ {
		e := 0.005 * float64(i+1) / 20
		if i%2 == 0 {
			e = -e
		}
		v.Predictor().AddCalibrationSample(models.CalibrationSample{
			Features:  []float64{1},
			Predicted: 0,
			Actual:    e,
			Timestamp: time.Now(),
		})
	}
	if err := v.StartValidation(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return v
}

func TestStartValidationTwice(t *testing.T) {
	v := newRunningValidator(t, testThresholds())
	if err := v.StartValidation(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	v.StopValidation()
	if err := v.StartValidation(); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
}

func TestProcessShadowTradeNotRunning(t *testing.T) {
	v, err := NewValidator("strat-a", testConformalConfig(), testThresholds())
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	tr, err := v.ProcessShadowTrade("BTCUSDT", []float64{1}, 0.001, "")
	if err != nil || tr != nil {
		t.Fatalf("expected silent no-op, got trade=%v err=%v", tr, err)
	}
	if recorded, _ := v.TradeCounts(); recorded != 0 {
		t.Fatalf("trade recorded while not running")
	}
}

func TestProcessShadowTradeSkipsWarmup(t *testing.T) {
	v, err := NewValidator("strat-a", testConformalConfig(), testThresholds())
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	if err := v.StartValidation(); err != nil {
		t.Fatalf("start: %v", err)
	}
	// no calibration samples yet: predictor still warming up
	tr, err := v.ProcessShadowTrade("BTCUSDT", []float64{1}, 0.001, "")
	if err != nil {
		t.Fatalf("warmup skip should not error: %v", err)
	}
	if tr != nil {
		t.Fatalf("expected nil trade during warmup")
	}
}

func TestOutcomeMatchingAndRecalibration(t *testing.T) {
	v := newRunningValidator(t, testThresholds())
	before := v.Predictor().SampleCount()

	tr, err := v.ProcessShadowTrade("BTCUSDT", []float64{1}, 0.001, "")
	if err != nil || tr == nil {
		t.Fatalf("process: trade=%v err=%v", tr, err)
	}
	if _, err := v.ProcessShadowTrade("ETHUSDT", []float64{1}, -0.002, ""); err != nil {
		t.Fatalf("process second: %v", err)
	}

	settled, err := v.UpdateShadowTradeOutcome("BTCUSDT", tr.Timestamp, 0.0012)
	if err != nil {
		t.Fatalf("update outcome: %v", err)
	}
	if !settled.HasOutcome || settled.ActualReturn != 0.0012 {
		t.Fatalf("outcome not applied: %+v", settled)
	}
	if !settled.WithinInterval {
		t.Fatalf("return inside interval not flagged: %+v", settled)
	}
	if want := 10000 * 0.0012; math.Abs(settled.PnL-want) > 1e-9 {
		t.Fatalf("pnl %v, want %v", settled.PnL, want)
	}
	if v.Predictor().SampleCount() != before+1 {
		t.Fatalf("settled trade not fed back into calibration")
	}

	// already settled: a second settlement must not find it
	if _, err := v.UpdateShadowTradeOutcome("BTCUSDT", tr.Timestamp, 0.002); !errors.Is(err, ErrNoMatchingTrade) {
		t.Fatalf("expected ErrNoMatchingTrade for double update, got %v", err)
	}
}

func TestOutcomeMatchingToleranceWindow(t *testing.T) {
	v := newRunningValidator(t, testThresholds())
	tr, err := v.ProcessShadowTrade("BTCUSDT", []float64{1}, 0.001, "")
	if err != nil || tr == nil {
		t.Fatalf("process: trade=%v err=%v", tr, err)
	}
	stale := tr.Timestamp.Add(-2 * time.Minute)
	if _, err := v.UpdateShadowTradeOutcome("BTCUSDT", stale, 0.001); !errors.Is(err, ErrNoMatchingTrade) {
		t.Fatalf("expected ErrNoMatchingTrade outside 60s window, got %v", err)
	}
	if _, err := v.UpdateShadowTradeOutcome("SOLUSDT", tr.Timestamp, 0.001); !errors.Is(err, ErrNoMatchingTrade) {
		t.Fatalf("expected ErrNoMatchingTrade for wrong symbol, got %v", err)
	}
}

func TestOutcomeAfterStopRejected(t *testing.T) {
	v := newRunningValidator(t, testThresholds())
	tr, err := v.ProcessShadowTrade("BTCUSDT", []float64{1}, 0.001, "")
	if err != nil || tr == nil {
		t.Fatalf("process: trade=%v err=%v", tr, err)
	}
	v.StopValidation()
	if _, err := v.UpdateShadowTradeOutcome("BTCUSDT", tr.Timestamp, 0.001); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after stop, got %v", err)
	}
	if _, settledCount := v.TradeCounts(); settledCount != 0 {
		t.Fatalf("outcome applied after stop")
	}
}

func TestRingBufferEviction(t *testing.T) {
	th := testThresholds()
	th.RequiredSamples = 3
	th.ConsistencyWindow = 3
	v := newRunningValidator(t, th)
	for i := 0; i < 20; i++ {
		if _, err := v.ProcessShadowTrade("BTCUSDT", []float64{1}, 0.001, ""); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if recorded, _ := v.TradeCounts(); recorded != 6 {
		t.Fatalf("ring buffer should hold 2x required samples (6), got %d", recorded)
	}
}

func TestValidationResultInsufficientSamples(t *testing.T) {
	v := newRunningValidator(t, testThresholds())
	res := v.GenerateValidationResult()
	if res.Approved || res.Confidence != 0 {
		t.Fatalf("expected unapproved zero-confidence result, got %+v", res)
	}
	found := false
	for _, is := range res.Issues {
		if strings.Contains(is, "Insufficient samples") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing insufficient-samples issue: %v", res.Issues)
	}
}

// settleGoodRun feeds n settled trades with small positive returns that land
// inside their intervals.
func settleGoodRun(t *testing.T, v *Validator, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		point := 0.001 + 0.0002*float64(i%5-2)
		tr, err := v.ProcessShadowTrade("BTCUSDT", []float64{1}, point, "")
		if err != nil || tr == nil {
			t.Fatalf("process %d: trade=%v err=%v", i, tr, err)
		}
		actual := point + 0.0005*float64(i%3-1)
		if _, err := v.UpdateShadowTradeOutcome("BTCUSDT", tr.Timestamp, actual); err != nil {
			t.Fatalf("settle %d: %v", i, err)
		}
	}
}

func TestValidationResultApproved(t *testing.T) {
	v := newRunningValidator(t, testThresholds())
	settleGoodRun(t, v, 20)

	res := v.GenerateValidationResult()
	if !res.Approved {
		t.Fatalf("expected approval, issues: %v", res.Issues)
	}
	if math.Abs(res.Confidence-1.0) > 1e-9 {
		t.Fatalf("all checks passed but confidence %v != 1", res.Confidence)
	}
	if res.Metrics.SampleCount != 20 {
		t.Fatalf("sample count %d", res.Metrics.SampleCount)
	}
	if res.Metrics.Coverage < 0.85 {
		t.Fatalf("coverage %v unexpectedly low", res.Metrics.Coverage)
	}
}

func TestValidationResultThresholdFailure(t *testing.T) {
	th := testThresholds()
	th.MinSharpeRatio = 1e12 // unreachable
	v := newRunningValidator(t, th)
	settleGoodRun(t, v, 20)

	res := v.GenerateValidationResult()
	if res.Approved {
		t.Fatal("expected rejection on Sharpe threshold")
	}
	if math.Abs(res.Confidence-(1.0-weightSharpe)) > 1e-9 {
		t.Fatalf("confidence %v, want %v", res.Confidence, 1.0-weightSharpe)
	}
	found := false
	for _, is := range res.Issues {
		if strings.Contains(is, "Sharpe") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing Sharpe issue: %v", res.Issues)
	}
	if len(res.Suggestions) == 0 {
		t.Fatal("expected a remediation suggestion")
	}
}

func TestValidationResultConsistencyWindowUnfilled(t *testing.T) {
	th := testThresholds()
	th.RequiredSamples = 5
	th.ConsistencyWindow = 50
	v := newRunningValidator(t, th)
	settleGoodRun(t, v, 5)

	res := v.GenerateValidationResult()
	if res.Approved {
		t.Fatal("consistency must fail when its window has not filled")
	}
	if res.Metrics.ConsistencyPass {
		t.Fatal("consistency flagged as passing with unfilled window")
	}
}
