package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"ModelGate/internal/domain/models"
	"ModelGate/internal/services/shadow"
	pkgcache "ModelGate/pkg/cache"
)

func runnerThresholds() models.ValidationThresholds {
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
		BarsPerYear:       525600,
	}
}

func runnerConformalConfig() models.ConformalConfig {
	return models.ConformalConfig{Alpha: 0.1, WindowSize: 200, MinSamples: 20}
}

// newRunningRunner registers strat-a, warms its calibration buffer and
// starts the shadow run.
func newRunningRunner(t *testing.T, log *fakeTradeLog, snaps *fakeSnapshotStore, m *fakeMetrics, regime *fakeRegimeDetector) *ShadowRunner {
	t.Helper()
	var r *ShadowRunner
	if regime != nil {
		r = NewShadowRunner(runnerConformalConfig(), runnerThresholds(), log, snaps, m, regime)
	} else {
		r = NewShadowRunner(runnerConformalConfig(), runnerThresholds(), log, snaps, m, nil)
	}
	if err := r.Register("strat-a"); err != nil {
		t.Fatalf("register: %v", err)
	}

	v, err := r.Validator("strat-a")
	if err != nil {
		t.Fatalf("validator: %v", err)
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
	return r
}

func TestRegisterDuplicateStrategy(t *testing.T) {
	r := NewShadowRunner(runnerConformalConfig(), runnerThresholds(), nil, nil, newFakeMetrics(), nil)
	if err := r.Register("strat-a"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("strat-a"); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestProcessPredictionUnknownStrategy(t *testing.T) {
	m := newFakeMetrics()
	r := NewShadowRunner(runnerConformalConfig(), runnerThresholds(), nil, nil, m, nil)
	err := r.ProcessPrediction(context.Background(), &models.PredictionEvent{
		StrategyID: "ghost", Symbol: "BTCUSDT", Features: []float64{1}, Timestamp: time.Now().Unix(),
	})
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
	if m.errorCount("prediction_unknown_strategy") != 1 {
		t.Fatal("expected unknown strategy error metric")
	}
}

func TestPredictionThenOutcome(t *testing.T) {
	log := &fakeTradeLog{}
	m := newFakeMetrics()
	r := newRunningRunner(t, log, newFakeSnapshotStore(), m, nil)
	ctx := context.Background()

	err := r.ProcessPrediction(ctx, &models.PredictionEvent{
		StrategyID: "strat-a",
		Symbol:     "BTCUSDT",
		Features:   []float64{1},
		Prediction: 0.001,
		Timestamp:  time.Now().Unix(),
	})
	if err != nil {
		t.Fatalf("process prediction: %v", err)
	}
	if shadowLogged, _ := log.counts(); shadowLogged != 1 {
		t.Fatalf("expected 1 logged shadow trade, got %d", shadowLogged)
	}

	err = r.ApplyOutcome(ctx, &models.OutcomeEvent{
		StrategyID:   "strat-a",
		Symbol:       "BTCUSDT",
		Timestamp:    time.Now().Unix(),
		ActualReturn: 0.0008,
	})
	if err != nil {
		t.Fatalf("apply outcome: %v", err)
	}
	if m.settlements != 1 {
		t.Fatalf("expected 1 settlement, got %d", m.settlements)
	}
	// settled trade is re-logged with its outcome
	if shadowLogged, _ := log.counts(); shadowLogged != 2 {
		t.Fatalf("expected 2 log writes, got %d", shadowLogged)
	}
}

func TestApplyOutcomeNoMatchingTrade(t *testing.T) {
	r := newRunningRunner(t, &fakeTradeLog{}, newFakeSnapshotStore(), newFakeMetrics(), nil)
	err := r.ApplyOutcome(context.Background(), &models.OutcomeEvent{
		StrategyID:   "strat-a",
		Symbol:       "BTCUSDT",
		Timestamp:    time.Now().Unix(),
		ActualReturn: 0.001,
	})
	if !errors.Is(err, shadow.ErrNoMatchingTrade) {
		t.Fatalf("expected ErrNoMatchingTrade, got %v", err)
	}
}

func TestRegimeDetectorCalledOnlyWithoutHint(t *testing.T) {
	detector := &fakeRegimeDetector{state: models.RegimeVolatile}
	r := newRunningRunner(t, &fakeTradeLog{}, newFakeSnapshotStore(), newFakeMetrics(), detector)
	ctx := context.Background()

	r.recordReturn("BTCUSDT", 0.001)

	ev := &models.PredictionEvent{
		StrategyID: "strat-a",
		Symbol:     "BTCUSDT",
		Features:   []float64{1},
		Prediction: 0.001,
		Timestamp:  time.Now().Unix(),
		Regime:     string(models.RegimeBull),
	}
	if err := r.ProcessPrediction(ctx, ev); err != nil {
		t.Fatalf("process with hint: %v", err)
	}
	if detector.callCount() != 0 {
		t.Fatal("detector must not run when the event carries a regime")
	}

	ev.Regime = ""
	if err := r.ProcessPrediction(ctx, ev); err != nil {
		t.Fatalf("process without hint: %v", err)
	}
	if detector.callCount() != 1 {
		t.Fatalf("expected 1 detector call, got %d", detector.callCount())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snaps := newFakeSnapshotStore()
	r := newRunningRunner(t, &fakeTradeLog{}, snaps, newFakeMetrics(), nil)
	ctx := context.Background()

	if err := r.SaveSnapshot(ctx, "strat-a"); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if _, ok := snaps.states["strat-a"]; !ok {
		t.Fatal("snapshot not persisted")
	}
	if err := r.RestoreSnapshot(ctx, "strat-a"); err != nil {
		t.Fatalf("restore snapshot: %v", err)
	}
	if err := r.SaveSnapshot(ctx, "ghost"); err == nil {
		t.Fatal("expected unknown strategy error")
	}
}

func TestRestoreSnapshotUsesHotCache(t *testing.T) {
	snaps := newFakeSnapshotStore()
	r := newRunningRunner(t, &fakeTradeLog{}, snaps, newFakeMetrics(), nil)
	r.SetSnapshotCache(pkgcache.NewMemory())
	ctx := context.Background()

	if err := r.SaveSnapshot(ctx, "strat-a"); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	// store outage must not matter while the cached copy is fresh
	snaps.failLoad = true
	if err := r.RestoreSnapshot(ctx, "strat-a"); err != nil {
		t.Fatalf("restore from cache: %v", err)
	}
}

func TestDiagnosticsAfterWarmup(t *testing.T) {
	r := newRunningRunner(t, &fakeTradeLog{}, newFakeSnapshotStore(), newFakeMetrics(), nil)
	diag, err := r.Diagnostics("strat-a")
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	if diag.SampleCount != 20 {
		t.Fatalf("expected 20 calibration samples, got %d", diag.SampleCount)
	}
}
