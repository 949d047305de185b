package shadow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ModelGate/internal/domain/models"
	"ModelGate/internal/services/conformal"
	applogger "ModelGate/pkg/logger"
)

var (
	// ErrAlreadyRunning means StartValidation was called twice.
	ErrAlreadyRunning = errors.New("shadow validation already running")
	// ErrNotRunning means an operation needs an active validation run.
	// Outcomes arriving after StopValidation are rejected with this, never
	// silently dropped and never applied.
	ErrNotRunning = errors.New("shadow validation not running")
	// ErrNoMatchingTrade means no pending trade matched an outcome. The
	// caller may retry later (the trade's prediction may still be in flight).
	ErrNoMatchingTrade = errors.New("no matching pending shadow trade")
)

// outcomeMatchTolerance is the max |Δt| between a recorded shadow trade and
// the settlement that closes it.
const outcomeMatchTolerance = 60 * time.Second

// Validator runs a conformal predictor against live market events without
// risking capital and scores it against promotion thresholds.
//
// Prediction and settlement events arrive from independent streams; one mutex
// serializes all writes so a trade is never double-updated or read
// mid-mutation. Each validator owns its predictor and buffer outright.
type Validator struct {
	mu         sync.Mutex
	strategyID string
	predictor  *conformal.Predictor
	thresholds models.ValidationThresholds
	trades     []models.ShadowTrade
	running    bool
	startedAt  time.Time
	l          *applogger.Logger
}

// NewValidator builds a validator with a fresh predictor.
func NewValidator(strategyID string, cfg models.ConformalConfig, th models.ValidationThresholds) (*Validator, error) {
	if err := validateThresholds(th); err != nil {
		return nil, err
	}
	p, err := conformal.NewPredictor(cfg)
	if err != nil {
		return nil, fmt.Errorf("validator %s: %w", strategyID, err)
	}
	return &Validator{
		strategyID: strategyID,
		predictor:  p,
		thresholds: th,
	}, nil
}

func validateThresholds(th models.ValidationThresholds) error {
	if th.RequiredSamples < 1 {
		return fmt.Errorf("%w: required_samples %d < 1", conformal.ErrInvalidConfiguration, th.RequiredSamples)
	}
	if th.ConsistencyWindow < 1 {
		return fmt.Errorf("%w: consistency_window %d < 1", conformal.ErrInvalidConfiguration, th.ConsistencyWindow)
	}
	if th.PositionSize <= 0 {
		return fmt.Errorf("%w: position_size %v <= 0", conformal.ErrInvalidConfiguration, th.PositionSize)
	}
	if th.BarsPerYear <= 0 {
		return fmt.Errorf("%w: bars_per_year %v <= 0", conformal.ErrInvalidConfiguration, th.BarsPerYear)
	}
	return nil
}

// SetLogger injects a structured logger.
func (v *Validator) SetLogger(l *applogger.Logger) { v.l = l }

// StrategyID returns the strategy under validation.
func (v *Validator) StrategyID() string { return v.strategyID }

// Predictor exposes the owned predictor for diagnostics and state transfer.
func (v *Validator) Predictor() *conformal.Predictor { return v.predictor }

// StartValidation resets the trade buffer and begins a new shadow run.
func (v *Validator) StartValidation() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running {
		return fmt.Errorf("%w: strategy %s started at %s", ErrAlreadyRunning, v.strategyID, v.startedAt.Format(time.RFC3339))
	}
	v.running = true
	v.startedAt = time.Now()
	v.trades = v.trades[:0]
	return nil
}

// StopValidation halts the run. Recorded trades are preserved for audit.
// Safe to call at any time, including when not running.
func (v *Validator) StopValidation() {
	v.mu.Lock()
	v.running = false
	v.mu.Unlock()
}

// IsRunning reports whether a shadow run is active.
func (v *Validator) IsRunning() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

// ProcessShadowTrade records a paper trade for a live prediction. It is a
// no-op while not running, and silently skips (with a log line) while the
// predictor is still warming up. The returned trade is a copy for logging;
// nil means nothing was recorded.
func (v *Validator) ProcessShadowTrade(symbol string, features []float64, pointPrediction float64, regime models.RegimeState) (*models.ShadowTrade, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running {
		return nil, nil
	}

	pred, err := v.predictor.Predict(features, pointPrediction, regime)
	if err != nil {
		if errors.Is(err, conformal.ErrInsufficientData) || errors.Is(err, conformal.ErrDimensionMismatch) {
			if v.l != nil {
				v.l.Debug("shadow trade skipped",
					applogger.String("strategy", v.strategyID),
					applogger.String("symbol", symbol),
					applogger.Int("calibration_samples", v.predictor.SampleCount()),
					applogger.Error(err),
				)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("shadow predict %s/%s: %w", v.strategyID, symbol, err)
	}

	t := models.ShadowTrade{
		Timestamp:  time.Now(),
		Symbol:     symbol,
		Features:   append([]float64(nil), features...),
		Prediction: pred,
		Confidence: pred.Coverage,
	}
	v.trades = append(v.trades, t)

	// ring buffer at twice the samples needed for a verdict
	if limit := 2 * v.thresholds.RequiredSamples; len(v.trades) > limit {
		v.trades = v.trades[len(v.trades)-limit:]
	}
	return &t, nil
}

// UpdateShadowTradeOutcome settles the most recent pending trade matching
// (symbol, |Δt| < 60s), feeds the realized sample back into the calibration
// buffer, and updates the coverage tracker.
func (v *Validator) UpdateShadowTradeOutcome(symbol string, ts time.Time, actualReturn float64) (*models.ShadowTrade, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running {
		return nil, fmt.Errorf("%w: outcome for %s at %s rejected", ErrNotRunning, symbol, ts.Format(time.RFC3339))
	}

	for i := len(v.trades) - 1; i >= 0; i-- {
		t := &v.trades[i]
		if t.Symbol != symbol || t.HasOutcome {
			continue
		}
		if d := t.Timestamp.Sub(ts); d >= outcomeMatchTolerance || d <= -outcomeMatchTolerance {
			continue
		}

		t.ActualReturn = actualReturn
		t.HasOutcome = true
		t.WithinInterval = actualReturn >= t.Prediction.LowerBound && actualReturn <= t.Prediction.UpperBound
		t.PnL = v.thresholds.PositionSize * actualReturn

		// closed-loop online recalibration
		v.predictor.AddCalibrationSample(models.CalibrationSample{
			Features:  t.Features,
			Predicted: t.Prediction.Prediction,
			Actual:    actualReturn,
			Timestamp: ts,
		})
		v.predictor.UpdateCoverage(actualReturn, t.Prediction)

		settled := *t
		return &settled, nil
	}

	return nil, fmt.Errorf("%w: %s at %s", ErrNoMatchingTrade, symbol, ts.Format(time.RFC3339))
}

// TradeCounts returns (recorded, settled) trade counts.
func (v *Validator) TradeCounts() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	settled := 0
	for i := range v.trades {
		if v.trades[i].HasOutcome {
			settled++
		}
	}
	return len(v.trades), settled
}

// snapshotSettled copies settled trades in arrival order.
func (v *Validator) snapshotSettled() []models.ShadowTrade {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.ShadowTrade, 0, len(v.trades))
	for i := range v.trades {
		if v.trades[i].HasOutcome {
			out = append(out, v.trades[i])
		}
	}
	return out
}
