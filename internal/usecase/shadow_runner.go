package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ModelGate/internal/domain/models"
	domrepo "ModelGate/internal/domain/repository"
	domsvc "ModelGate/internal/domain/service"
	"ModelGate/internal/services/conformal"
	"ModelGate/internal/services/shadow"
	pkgcache "ModelGate/pkg/cache"
	applogger "ModelGate/pkg/logger"
)

// ErrUnknownStrategy means no validator is registered for the strategy id.
var ErrUnknownStrategy = errors.New("unknown strategy")

// returnsKept bounds the per-symbol return history used for regime hints.
const returnsKept = 256

// ShadowRunner owns one shadow validator per strategy. Validators are
// explicit instances created through Register, never process-wide state, so
// multiple candidates validate in parallel without sharing buffers.
type ShadowRunner struct {
	mu           sync.RWMutex
	validators   map[string]*shadow.Validator
	conformalCfg models.ConformalConfig
	thresholds   models.ValidationThresholds

	tradeLog  domrepo.TradeLog
	snapshots domrepo.SnapshotStore
	snapCache pkgcache.Store // optional hot copy of the latest snapshot
	metrics   domrepo.Metrics
	regime    domsvc.RegimeDetector // optional

	// rolling realized returns per symbol, shared input to regime hints
	retMu   sync.Mutex
	returns map[string][]float64

	l *applogger.Logger
}

func NewShadowRunner(
	cfg models.ConformalConfig,
	th models.ValidationThresholds,
	tradeLog domrepo.TradeLog,
	snapshots domrepo.SnapshotStore,
	metrics domrepo.Metrics,
	regime domsvc.RegimeDetector,
) *ShadowRunner {
	return &ShadowRunner{
		validators:   make(map[string]*shadow.Validator),
		conformalCfg: cfg,
		thresholds:   th,
		tradeLog:     tradeLog,
		snapshots:    snapshots,
		metrics:      metrics,
		regime:       regime,
		returns:      make(map[string][]float64),
	}
}

// SetLogger injects a structured logger, propagated to new validators.
func (r *ShadowRunner) SetLogger(l *applogger.Logger) { r.l = l }

// SetSnapshotCache injects a cache holding the most recent exported state per
// strategy, so restores skip the snapshot store when a fresh copy exists.
func (r *ShadowRunner) SetSnapshotCache(c pkgcache.Store) { r.snapCache = c }

// Register creates a validator for the strategy. Registering an existing id
// is an error; the old run must be stopped and inspected first.
func (r *ShadowRunner) Register(strategyID string) error {
	v, err := shadow.NewValidator(strategyID, r.conformalCfg, r.thresholds)
	if err != nil {
		return err
	}
	if r.l != nil {
		v.SetLogger(r.l)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.validators[strategyID]; ok {
		return fmt.Errorf("strategy %s already registered", strategyID)
	}
	r.validators[strategyID] = v
	return nil
}

// Validator returns the validator owning the strategy's shadow run.
func (r *ShadowRunner) Validator(strategyID string) (*shadow.Validator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[strategyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategyID)
	}
	return v, nil
}

// Strategies returns registered strategy ids.
func (r *ShadowRunner) Strategies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.validators))
	for id := range r.validators {
		out = append(out, id)
	}
	return out
}

// ProcessPrediction routes one upstream prediction into the strategy's
// validator, resolving a regime hint when the event carries none.
func (r *ShadowRunner) ProcessPrediction(ctx context.Context, ev *models.PredictionEvent) error {
	v, err := r.Validator(ev.StrategyID)
	if err != nil {
		r.metrics.RecordError("prediction_unknown_strategy")
		return err
	}

	regime := models.RegimeState(ev.Regime)
	if regime == "" {
		regime = r.detectRegime(ctx, ev.Symbol)
	}

	start := time.Now()
	trade, err := v.ProcessShadowTrade(ev.Symbol, ev.Features, ev.Prediction, regime)
	if err != nil {
		r.metrics.RecordError("shadow_trade")
		return err
	}
	r.metrics.RecordLatency("process_prediction", time.Since(start).Seconds())
	if trade == nil {
		return nil // not running or warming up
	}
	r.metrics.RecordPrediction(ev.StrategyID, ev.Symbol)

	if r.tradeLog != nil {
		if err := r.tradeLog.LogShadowTrade(ctx, ev.StrategyID, trade); err != nil {
			// audit log failure must not stall the prediction path
			r.metrics.RecordError("trade_log")
			if r.l != nil {
				r.l.Warn("shadow trade log write failed",
					applogger.String("strategy", ev.StrategyID),
					applogger.String("symbol", ev.Symbol),
					applogger.Error(err),
				)
			}
		}
	}
	return nil
}

// ApplyOutcome settles the matching shadow trade for each running validator
// of the strategy. shadow.ErrNoMatchingTrade propagates so the caller can
// park the outcome for retry.
func (r *ShadowRunner) ApplyOutcome(ctx context.Context, ev *models.OutcomeEvent) error {
	v, err := r.Validator(ev.StrategyID)
	if err != nil {
		r.metrics.RecordError("outcome_unknown_strategy")
		return err
	}

	trade, err := v.UpdateShadowTradeOutcome(ev.Symbol, time.Unix(ev.Timestamp, 0), ev.ActualReturn)
	if err != nil {
		return err
	}
	r.metrics.RecordSettlement(ev.StrategyID, ev.Symbol)
	r.recordReturn(ev.Symbol, ev.ActualReturn)

	if r.tradeLog != nil {
		if err := r.tradeLog.LogShadowTrade(ctx, ev.StrategyID, trade); err != nil {
			r.metrics.RecordError("trade_log")
		}
	}
	return nil
}

// SaveSnapshot exports the strategy's predictor state to durable storage.
func (r *ShadowRunner) SaveSnapshot(ctx context.Context, strategyID string) error {
	v, err := r.Validator(strategyID)
	if err != nil {
		return err
	}
	state, err := v.Predictor().ExportState()
	if err != nil {
		return fmt.Errorf("export state: %w", err)
	}
	if err := r.snapshots.Save(ctx, strategyID, state); err != nil {
		return err
	}
	if r.snapCache != nil {
		if err := r.snapCache.Set(ctx, snapshotCacheKey(strategyID), state, time.Hour); err != nil {
			r.metrics.RecordError("snapshot_cache")
		}
	}
	return nil
}

// RestoreSnapshot loads the latest stored predictor state. Prediction
// behavior after restore is identical to the run the snapshot was taken from.
func (r *ShadowRunner) RestoreSnapshot(ctx context.Context, strategyID string) error {
	v, err := r.Validator(strategyID)
	if err != nil {
		return err
	}
	if r.snapCache != nil {
		if b, ok, err := r.snapCache.Get(ctx, snapshotCacheKey(strategyID)); err == nil && ok {
			return v.Predictor().ImportState(b)
		}
	}

	state, err := r.snapshots.Load(ctx, strategyID)
	if err != nil {
		return err
	}
	return v.Predictor().ImportState(state)
}

func snapshotCacheKey(strategyID string) string { return "snapshot:" + strategyID }

// Diagnostics returns the predictor's coverage diagnostics for the strategy.
func (r *ShadowRunner) Diagnostics(strategyID string) (conformal.Diagnostics, error) {
	v, err := r.Validator(strategyID)
	if err != nil {
		return conformal.Diagnostics{}, err
	}
	return v.Predictor().GetDiagnostics(), nil
}

func (r *ShadowRunner) recordReturn(symbol string, ret float64) {
	r.retMu.Lock()
	defer r.retMu.Unlock()
	rs := append(r.returns[symbol], ret)
	if len(rs) > returnsKept {
		rs = rs[len(rs)-returnsKept:]
	}
	r.returns[symbol] = rs
}

func (r *ShadowRunner) detectRegime(ctx context.Context, symbol string) models.RegimeState {
	if r.regime == nil {
		return ""
	}
	r.retMu.Lock()
	rs := append([]float64(nil), r.returns[symbol]...)
	r.retMu.Unlock()
	if len(rs) == 0 {
		return ""
	}

	regime, err := r.regime.Detect(ctx, symbol, rs)
	if err != nil {
		r.metrics.RecordError("regime_detect")
		return ""
	}
	return regime.State
}
