package conformal

import (
	"encoding/json"
	"fmt"

	"ModelGate/internal/domain/models"
)

// State is the serialized form of a predictor. Round-tripping through
// ExportState/ImportState restores bit-identical prediction behavior.
type State struct {
	CalibrationSet      []models.CalibrationSample `json:"calibration_set"`
	NonconformityScores []float64                  `json:"nonconformity_scores"`
	CoverageTracker     []bool                     `json:"coverage_tracker"`
	IntervalWidths      []float64                  `json:"interval_widths"`
	Config              models.ConformalConfig     `json:"config"`
}

// ExportState serializes the full predictor state.
func (p *Predictor) ExportState() ([]byte, error) {
	p.mu.RLock()
	st := State{
		CalibrationSet:      append([]models.CalibrationSample(nil), p.calibration...),
		NonconformityScores: append([]float64(nil), p.scores...),
		CoverageTracker:     append([]bool(nil), p.hits...),
		IntervalWidths:      append([]float64(nil), p.widths...),
		Config:              p.cfg,
	}
	p.mu.RUnlock()

	b, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("export state: %w", err)
	}
	return b, nil
}

// ImportState replaces the predictor state with a previously exported one.
// The imported config is validated before anything is mutated.
func (p *Predictor) ImportState(b []byte) error {
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("import state: %w", err)
	}
	if err := validateConfig(st.Config); err != nil {
		return fmt.Errorf("import state: %w", err)
	}
	if len(st.NonconformityScores) != len(st.CalibrationSet) {
		return fmt.Errorf("import state: %d scores for %d calibration samples",
			len(st.NonconformityScores), len(st.CalibrationSet))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = st.Config
	p.calibration = st.CalibrationSet
	p.scores = st.NonconformityScores
	p.hits = st.CoverageTracker
	p.widths = st.IntervalWidths
	return nil
}
