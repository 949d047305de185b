package service

import (
	"context"

	"ModelGate/internal/domain/models"
)

// RegimeDetector classifies the current market regime from a returns series.
// The classification is a hint only: predictors fall back to the base
// miscoverage level when no regime is available.
type RegimeDetector interface {
	Detect(ctx context.Context, symbol string, returns []float64) (models.Regime, error)
}
