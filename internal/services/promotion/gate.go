package promotion

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"ModelGate/internal/domain/models"
)

var (
	// ErrNotApproved means promotion was attempted without a passing shadow
	// result. Fatal for the call; other strategies are unaffected.
	ErrNotApproved = errors.New("shadow result not approved")
	// ErrNotLive means the gate has no live promotion.
	ErrNotLive = errors.New("promotion gate not live")
	// ErrInvalidConfiguration means the ramp config violates its invariants.
	ErrInvalidConfiguration = errors.New("invalid promotion configuration")
)

// Gate ramps live capital exposure for one strategy through discrete steps,
// gated by running per-step performance, with one-way rollback.
//
// ProcessLiveTrade runs on the trading path at live frequency: its update is
// O(1) under a single short-held lock. AdvanceStep, TriggerRollback and
// StopLiveTrading are control-plane operations.
type Gate struct {
	mu         sync.RWMutex
	strategyID string
	cfg        models.PromotionConfig
	phase      models.PromotionPhase
	step       int
	notional   float64
	stats      models.StepStats
	history    []models.PromotionEvent

	// Welford accumulators over per-trade PnL for the step Sharpe gate
	pnlMean float64
	pnlM2   float64
}

// NewGate validates cfg and returns an idle gate.
func NewGate(strategyID string, cfg models.PromotionConfig) (*Gate, error) {
	if len(cfg.RampUpSteps) == 0 {
		return nil, fmt.Errorf("%w: empty ramp_up_steps", ErrInvalidConfiguration)
	}
	for i, s := range cfg.RampUpSteps {
		if s <= 0 {
			return nil, fmt.Errorf("%w: ramp step %d is %v", ErrInvalidConfiguration, i, s)
		}
	}
	if cfg.MaxNotional <= 0 {
		return nil, fmt.Errorf("%w: max_notional %v <= 0", ErrInvalidConfiguration, cfg.MaxNotional)
	}
	if cfg.MinTradesPerStep < 1 {
		return nil, fmt.Errorf("%w: min_trades_per_step %d < 1", ErrInvalidConfiguration, cfg.MinTradesPerStep)
	}
	return &Gate{
		strategyID: strategyID,
		cfg:        cfg,
		phase:      models.PhaseIdle,
	}, nil
}

// StrategyID returns the gated strategy.
func (g *Gate) StrategyID() string { return g.strategyID }

// InitializePromotion moves an approved shadow strategy to the first ramp
// step. A rolled-back gate requires a fresh approval to go live again; this
// is that entry point.
func (g *Gate) InitializePromotion(res models.ValidationResult) error {
	if !res.Approved {
		return fmt.Errorf("%w: strategy %s (confidence %.2f, %d issues)",
			ErrNotApproved, g.strategyID, res.Confidence, len(res.Issues))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.step = 0
	g.notional = math.Min(g.cfg.RampUpSteps[0], g.cfg.MaxNotional)
	g.phase = models.PhaseLive
	g.resetStepStats()
	g.appendEvent(models.EventInitialized, 0, 0, "shadow validation approved")
	return nil
}

// ProcessLiveTrade folds one settled live trade into the current step stats.
func (g *Gate) ProcessLiveTrade(symbol, side string, notional, pnl float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != models.PhaseLive {
		return fmt.Errorf("%w: strategy %s phase %s, trade %s %s rejected",
			ErrNotLive, g.strategyID, g.phase, side, symbol)
	}

	g.stats.TradeCount++
	if pnl > 0 {
		g.stats.WinCount++
	}
	g.stats.CumPnL += pnl
	if g.stats.CumPnL > g.stats.PeakPnL {
		g.stats.PeakPnL = g.stats.CumPnL
	}
	if dd := g.stats.PeakPnL - g.stats.CumPnL; dd > g.stats.MaxDrawdown {
		g.stats.MaxDrawdown = dd
	}

	// Welford
	n := float64(g.stats.TradeCount)
	delta := pnl - g.pnlMean
	g.pnlMean += delta / n
	g.pnlM2 += delta * (pnl - g.pnlMean)
	return nil
}

// AdvanceStep moves to the next ramp step when the current step's stats clear
// every performance gate, or unconditionally on adminOverride. Returns false
// without mutating state when the gates hold (or the ramp is already at its
// top step).
func (g *Gate) AdvanceStep(adminOverride bool) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != models.PhaseLive {
		return false, fmt.Errorf("%w: strategy %s phase %s", ErrNotLive, g.strategyID, g.phase)
	}
	if g.step >= len(g.cfg.RampUpSteps)-1 {
		return false, nil
	}
	if !adminOverride && !g.gatesPass() {
		return false, nil
	}

	from := g.step
	g.step++
	g.notional = math.Min(g.cfg.RampUpSteps[g.step], g.cfg.MaxNotional)
	reason := "performance gates passed"
	if adminOverride {
		reason = "admin override"
	}
	g.appendEvent(models.EventStepAdvance, from, g.step, reason)
	g.resetStepStats()
	return true, nil
}

// TriggerRollback kills the promotion unconditionally: notional to zero, gate
// off. Irreversible without a fresh InitializePromotion from a new shadow
// approval.
func (g *Gate) TriggerRollback(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	from := g.step
	g.phase = models.PhaseRolledBack
	g.notional = 0
	g.appendEvent(models.EventRollback, from, from, reason)
}

// StopLiveTrading is the graceful variant: the strategy returns to a non-live
// shadow phase with history intact, and may be re-promoted later.
func (g *Gate) StopLiveTrading(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	from := g.step
	g.phase = models.PhaseShadow
	g.notional = 0
	g.appendEvent(models.EventStop, from, from, reason)
}

// Status reports the authoritative sizing view for the execution layer.
func (g *Gate) Status() models.PromotionStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	live := g.phase == models.PhaseLive
	return models.PromotionStatus{
		StrategyID:      g.strategyID,
		Phase:           g.phase,
		CurrentStep:     g.step,
		CurrentNotional: g.notional,
		IsLive:          live,
		CanAdvance:      live && g.step < len(g.cfg.RampUpSteps)-1 && g.gatesPass(),
		NeedsRollback:   live && g.drawdownBreached(),
		StepStats:       g.stats,
	}
}

// History returns up to limit most recent promotion events, oldest first.
func (g *Gate) History(limit int) []models.PromotionEvent {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h := g.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]models.PromotionEvent(nil), h...)
}

// gatesPass checks the current step against all performance gates.
// Callers hold g.mu.
func (g *Gate) gatesPass() bool {
	if g.stats.TradeCount < g.cfg.MinTradesPerStep {
		return false
	}
	if g.stepSharpe() < g.cfg.Gates.MinSharpe {
		return false
	}
	winRate := float64(g.stats.WinCount) / float64(g.stats.TradeCount)
	if winRate < g.cfg.Gates.MinWinRate {
		return false
	}
	return !g.drawdownBreached()
}

// drawdownBreached compares the step drawdown, as a fraction of the step
// notional, against the gate threshold. Callers hold g.mu.
func (g *Gate) drawdownBreached() bool {
	if g.notional <= 0 {
		return false
	}
	return g.stats.MaxDrawdown/g.notional > g.cfg.Gates.MaxDrawdown
}

// stepSharpe is the per-trade Sharpe of the current step (not annualized;
// gate thresholds are calibrated to per-trade units). Zero variance yields
// zero. Callers hold g.mu.
func (g *Gate) stepSharpe() float64 {
	if g.stats.TradeCount < 2 {
		return 0
	}
	variance := g.pnlM2 / float64(g.stats.TradeCount-1)
	if variance <= 0 {
		return 0
	}
	return g.pnlMean / math.Sqrt(variance)
}

func (g *Gate) resetStepStats() {
	g.stats = models.StepStats{}
	g.pnlMean = 0
	g.pnlM2 = 0
}

func (g *Gate) appendEvent(typ models.PromotionEventType, from, to int, reason string) {
	g.history = append(g.history, models.PromotionEvent{
		Timestamp: time.Now(),
		Type:      typ,
		FromStep:  from,
		ToStep:    to,
		Notional:  g.notional,
		Reason:    reason,
		Stats:     g.stats,
	})
}
