package conformal

import (
	"errors"
	"fmt"
	"sync"

	"ModelGate/internal/domain/models"
)

var (
	// ErrInsufficientData means the calibration buffer has not reached
	// MinSamples yet. Recoverable: retry after more samples arrive.
	ErrInsufficientData = errors.New("insufficient calibration data")
	// ErrDimensionMismatch means no calibration sample shares the query's
	// feature dimension, so every kernel weight collapsed to zero.
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	// ErrInvalidConfiguration means the config violates its invariants.
	// Fatal at construction.
	ErrInvalidConfiguration = errors.New("invalid conformal configuration")
)

const coverageTrackerCap = 1000

// adaptive alpha bounds
const (
	alphaVolatileCap = 0.2
	alphaTrendFloor  = 0.01
)

// Predictor turns point predictions into calibrated intervals using weighted
// split conformal prediction over a rolling calibration buffer.
//
// Predict is read-only over calibration state; writes (AddCalibrationSample,
// UpdateCoverage, ImportState) are serialized by a single mutex so diagnostics
// may be read concurrently.
type Predictor struct {
	mu          sync.RWMutex
	cfg         models.ConformalConfig
	calibration []models.CalibrationSample
	scores      []float64 // nonconformity |actual - predicted|, aligned with calibration
	hits        []bool    // interval hit tracker, bounded at coverageTrackerCap
	widths      []float64 // observed interval widths, bounded like hits
}

// NewPredictor validates cfg and returns a predictor with an empty buffer.
func NewPredictor(cfg models.ConformalConfig) (*Predictor, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Predictor{
		cfg:         cfg,
		calibration: make([]models.CalibrationSample, 0, cfg.WindowSize),
		scores:      make([]float64, 0, cfg.WindowSize),
	}, nil
}

func validateConfig(cfg models.ConformalConfig) error {
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		return fmt.Errorf("%w: alpha %v outside (0,1)", ErrInvalidConfiguration, cfg.Alpha)
	}
	if cfg.MinSamples < 1 {
		return fmt.Errorf("%w: min_samples %d < 1", ErrInvalidConfiguration, cfg.MinSamples)
	}
	if cfg.WindowSize < cfg.MinSamples {
		return fmt.Errorf("%w: window_size %d < min_samples %d", ErrInvalidConfiguration, cfg.WindowSize, cfg.MinSamples)
	}
	if cfg.KernelBandwidth < 0 {
		return fmt.Errorf("%w: kernel_bandwidth %v < 0", ErrInvalidConfiguration, cfg.KernelBandwidth)
	}
	return nil
}

// Config returns a copy of the predictor configuration.
func (p *Predictor) Config() models.ConformalConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// AddCalibrationSample appends a sample and evicts FIFO beyond WindowSize.
// Always succeeds.
func (p *Predictor) AddCalibrationSample(s models.CalibrationSample) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calibration = append(p.calibration, s)
	p.scores = append(p.scores, abs(s.Actual-s.Predicted))
	if n := len(p.calibration) - p.cfg.WindowSize; n > 0 {
		p.calibration = p.calibration[n:]
		p.scores = p.scores[n:]
	}
}

// SampleCount returns the current calibration buffer size.
func (p *Predictor) SampleCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.calibration)
}

// Predict produces a calibrated interval around pointPrediction. The regime
// hint adapts the miscoverage level when AdaptiveAlpha is set; pass an empty
// regime when none is known.
func (p *Predictor) Predict(features []float64, pointPrediction float64, regime models.RegimeState) (models.ConformalPrediction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.calibration) < p.cfg.MinSamples {
		return models.ConformalPrediction{}, fmt.Errorf("%w: have %d samples, need %d",
			ErrInsufficientData, len(p.calibration), p.cfg.MinSamples)
	}

	alpha := p.effectiveAlpha(regime)
	weights := make([]float64, len(p.calibration))
	for i := range p.calibration {
		weights[i] = kernelWeight(features, p.calibration[i].Features, p.cfg.KernelBandwidth)
	}

	halfWidth, ok := weightedQuantile(p.scores, weights, 1-alpha)
	if !ok {
		return models.ConformalPrediction{}, fmt.Errorf("%w: query dim %d matched no calibration sample",
			ErrDimensionMismatch, len(features))
	}

	return models.ConformalPrediction{
		Prediction: pointPrediction,
		LowerBound: pointPrediction - halfWidth,
		UpperBound: pointPrediction + halfWidth,
		Width:      2 * halfWidth,
		Coverage:   1 - alpha,
		Quantile:   halfWidth,
	}, nil
}

// effectiveAlpha applies the regime adjustment: double (capped) in volatile
// markets, tighten in trending ones, unchanged otherwise. Callers hold p.mu.
func (p *Predictor) effectiveAlpha(regime models.RegimeState) float64 {
	alpha := p.cfg.Alpha
	if !p.cfg.AdaptiveAlpha {
		return alpha
	}
	switch regime {
	case models.RegimeVolatile:
		alpha *= 2
		if alpha > alphaVolatileCap {
			alpha = alphaVolatileCap
		}
	case models.RegimeBull, models.RegimeBear:
		alpha *= 0.8
		if alpha < alphaTrendFloor {
			alpha = alphaTrendFloor
		}
	}
	return alpha
}

// UpdateCoverage records whether actualReturn fell inside a previously issued
// interval. The tracker is bounded and used for diagnostics only.
func (p *Predictor) UpdateCoverage(actualReturn float64, pred models.ConformalPrediction) {
	hit := actualReturn >= pred.LowerBound && actualReturn <= pred.UpperBound

	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits = append(p.hits, hit)
	p.widths = append(p.widths, pred.Width)
	if len(p.hits) > coverageTrackerCap {
		p.hits = p.hits[len(p.hits)-coverageTrackerCap:]
		p.widths = p.widths[len(p.widths)-coverageTrackerCap:]
	}
}

// Diagnostics summarizes calibration health.
type Diagnostics struct {
	SampleCount       int     `json:"sample_count"`
	TrackedIntervals  int     `json:"tracked_intervals"`
	ExpectedCoverage  float64 `json:"expected_coverage"`
	EmpiricalCoverage float64 `json:"empirical_coverage"`
	CoverageGap       float64 `json:"coverage_gap"`
	AvgIntervalWidth  float64 `json:"avg_interval_width"`
}

// GetDiagnostics reports empirical vs expected coverage over the tracker.
func (p *Predictor) GetDiagnostics() Diagnostics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	d := Diagnostics{
		SampleCount:      len(p.calibration),
		TrackedIntervals: len(p.hits),
		ExpectedCoverage: 1 - p.cfg.Alpha,
	}
	if len(p.hits) == 0 {
		return d
	}
	hits := 0
	for _, h := range p.hits {
		if h {
			hits++
		}
	}
	sum := 0.0
	for _, w := range p.widths {
		sum += w
	}
	d.EmpiricalCoverage = float64(hits) / float64(len(p.hits))
	d.CoverageGap = abs(d.EmpiricalCoverage - d.ExpectedCoverage)
	d.AvgIntervalWidth = sum / float64(len(p.widths))
	return d
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
