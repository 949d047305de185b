package models

import "time"

// PromotionPhase is the lifecycle phase of a promotion.
type PromotionPhase string

const (
	PhaseIdle       PromotionPhase = "idle"
	PhaseLive       PromotionPhase = "live"
	PhaseShadow     PromotionPhase = "shadow" // stopped gracefully, history preserved
	PhaseRolledBack PromotionPhase = "rolled_back"
)

// PromotionEventType classifies entries in a promotion history log.
type PromotionEventType string

const (
	EventInitialized PromotionEventType = "initialized"
	EventStepAdvance PromotionEventType = "step_advance"
	EventRollback    PromotionEventType = "rollback"
	EventStop        PromotionEventType = "stop"
)

// StepStats are the running performance counters for the current ramp step.
// Reset on every step advance.
type StepStats struct {
	TradeCount  int     `json:"trade_count"`
	WinCount    int     `json:"win_count"`
	CumPnL      float64 `json:"cum_pnl"`
	PeakPnL     float64 `json:"peak_pnl"`
	MaxDrawdown float64 `json:"max_drawdown"` // peak-to-trough on cumulative PnL
}

// PromotionEvent is one entry in the ordered promotion history.
type PromotionEvent struct {
	Timestamp time.Time          `json:"timestamp"`
	Type      PromotionEventType `json:"type"`
	FromStep  int                `json:"from_step"`
	ToStep    int                `json:"to_step"`
	Notional  float64            `json:"notional"`
	Reason    string             `json:"reason,omitempty"`
	Stats     StepStats          `json:"stats"`
}

// PerformanceGates are the per-step criteria required to advance the ramp.
type PerformanceGates struct {
	MinSharpe   float64 `yaml:"min_sharpe"`
	MinWinRate  float64 `yaml:"min_win_rate"`
	MaxDrawdown float64 `yaml:"max_drawdown"`
}

// PromotionConfig configures a promotion gate.
type PromotionConfig struct {
	RampUpSteps      []float64        `yaml:"ramp_up_steps"` // notional per step, ascending
	MaxNotional      float64          `yaml:"max_notional"`
	MinTradesPerStep int              `yaml:"min_trades_per_step"`
	Gates            PerformanceGates `yaml:"gates"`
}

// PromotionStatus is the authoritative sizing view consumed by the execution
// layer. CurrentNotional is a hard cap, not a suggestion.
type PromotionStatus struct {
	StrategyID      string         `json:"strategy_id"`
	Phase           PromotionPhase `json:"phase"`
	CurrentStep     int            `json:"current_step"`
	CurrentNotional float64        `json:"current_notional"`
	IsLive          bool           `json:"is_live"`
	CanAdvance      bool           `json:"can_advance"`
	NeedsRollback   bool           `json:"needs_rollback"`
	StepStats       StepStats      `json:"step_stats"`
}
