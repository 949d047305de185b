package models

import "time"

// RegimeState labels the prevailing market regime. It is used to adapt the
// miscoverage level of conformal intervals: wider in volatile markets,
// tighter in trending ones.
type RegimeState string

const (
	RegimeBull     RegimeState = "bull"
	RegimeBear     RegimeState = "bear"
	RegimeVolatile RegimeState = "volatile"
	RegimeSideways RegimeState = "sideways"
)

// Regime is a regime classification for a symbol at a point in time.
type Regime struct {
	Symbol     string
	Timestamp  time.Time
	State      RegimeState
	Prob       []float64 // probabilities per state
	Confidence float64
}

// CalibrationSample is one (features, predicted, actual) observation held in
// a predictor's rolling calibration buffer.
type CalibrationSample struct {
	Features  []float64 `json:"features"`
	Predicted float64   `json:"predicted"`
	Actual    float64   `json:"actual"`
	Timestamp time.Time `json:"timestamp"`
}

// ConformalPrediction is a calibrated prediction interval. Immutable; produced
// per call and embedded in a ShadowTrade at prediction time.
type ConformalPrediction struct {
	Prediction float64 `json:"prediction"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
	Width      float64 `json:"width"`
	Coverage   float64 `json:"coverage"` // nominal 1-alpha after regime adjustment
	Quantile   float64 `json:"quantile"` // nonconformity quantile used as half-width
}

// ConformalConfig configures a conformal predictor.
// Invariant: 0 < Alpha < 1 and WindowSize >= MinSamples >= 1.
type ConformalConfig struct {
	Alpha           float64 `json:"alpha" yaml:"alpha"`
	WindowSize      int     `json:"window_size" yaml:"window_size"`
	MinSamples      int     `json:"min_samples" yaml:"min_samples"`
	AdaptiveAlpha   bool    `json:"adaptive_alpha" yaml:"adaptive_alpha"`
	KernelBandwidth float64 `json:"kernel_bandwidth" yaml:"kernel_bandwidth"`
}
