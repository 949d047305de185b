package models

import "time"

// ShadowTrade is a paper trade recorded at prediction time. The outcome
// fields are zero until the realized return arrives; HasOutcome flips exactly
// once when the trade is settled.
type ShadowTrade struct {
	Timestamp      time.Time           `json:"timestamp"`
	Symbol         string              `json:"symbol"`
	Features       []float64           `json:"features,omitempty"` // kept for closed-loop recalibration
	Prediction     ConformalPrediction `json:"prediction"`
	ActualReturn   float64             `json:"actual_return"`
	HasOutcome     bool                `json:"has_outcome"`
	WithinInterval bool                `json:"within_interval"`
	PnL            float64             `json:"pnl"` // reference position size x return
	Confidence     float64             `json:"confidence"`
}

// ValidationThresholds are the promotion criteria a shadow run must clear.
type ValidationThresholds struct {
	RequiredSamples   int     `yaml:"required_samples"`
	MinCoverage       float64 `yaml:"min_coverage"`
	MaxCoverageGap    float64 `yaml:"max_coverage_gap"`
	MaxIntervalWidth  float64 `yaml:"max_interval_width"`
	MinSharpeRatio    float64 `yaml:"min_sharpe_ratio"`
	MaxDrawdown       float64 `yaml:"max_drawdown"`
	ConsistencyWindow int     `yaml:"consistency_window"`
	MinSuccessRate    float64 `yaml:"min_success_rate"`
	MaxVolatility     float64 `yaml:"max_volatility"`
	PositionSize      float64 `yaml:"position_size"` // reference notional for shadow PnL
	BarsPerYear       float64 `yaml:"bars_per_year"` // Sharpe annualization factor
}

// ValidationMetrics are the statistics computed over settled shadow trades.
type ValidationMetrics struct {
	SampleCount      int     `json:"sample_count"`
	Coverage         float64 `json:"coverage"`
	CoverageGap      float64 `json:"coverage_gap"`
	AvgIntervalWidth float64 `json:"avg_interval_width"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	SuccessRate      float64 `json:"success_rate"`      // in-interval rate over the consistency window
	ReturnVolatility float64 `json:"return_volatility"` // stdev of returns over the consistency window
	ConsistencyPass  bool    `json:"consistency_pass"`
}

// ValidationResult is the report-only verdict of a shadow run. It is
// recomputed on demand from the trade buffer and never stored as mutable
// state.
type ValidationResult struct {
	StrategyID  string            `json:"strategy_id"`
	Approved    bool              `json:"approved"`
	Confidence  float64           `json:"confidence"`
	Metrics     ValidationMetrics `json:"metrics"`
	Issues      []string          `json:"issues"`
	Suggestions []string          `json:"suggestions"`
	GeneratedAt time.Time         `json:"generated_at"`
}
