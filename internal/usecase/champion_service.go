package usecase

import (
	"context"
	"errors"
	"strconv"

	"ModelGate/internal/domain/models"
	domrepo "ModelGate/internal/domain/repository"
	gatemetrics "ModelGate/internal/service/metrics"
	"ModelGate/internal/services/champion"
	applogger "ModelGate/pkg/logger"
)

// ChampionService drives the champion/challenger registry: return ingestion
// from settlements and scheduled promotion evaluations.
type ChampionService struct {
	registry *champion.Registry
	metrics  domrepo.Metrics
	l        *applogger.Logger
}

func NewChampionService(registry *champion.Registry, metrics domrepo.Metrics) *ChampionService {
	return &ChampionService{registry: registry, metrics: metrics}
}

// SetLogger injects a structured logger.
func (s *ChampionService) SetLogger(l *applogger.Logger) {
	s.l = l
	s.registry.SetLogger(l)
}

// RegisterChallenger adds a candidate policy to the registry.
func (s *ChampionService) RegisterChallenger(policyID string) error {
	return s.registry.RegisterChallenger(policyID)
}

// AddReturn appends a realized return to the policy's rolling series.
func (s *ChampionService) AddReturn(policyID string, ret float64) error {
	if err := s.registry.AddPolicyReturn(policyID, ret); err != nil {
		s.metrics.RecordError("policy_return")
		return err
	}
	return nil
}

// Evaluate runs the hypothesis test for one challenger.
func (s *ChampionService) Evaluate(challengerID string) (models.EvaluationOutcome, error) {
	out, err := s.registry.EvaluatePromotion(challengerID)
	if err != nil {
		if !errors.Is(err, champion.ErrInsufficientSamples) {
			s.metrics.RecordError("champion_evaluate")
		}
		return out, err
	}
	gatemetrics.ChampionEvaluations.WithLabelValues(challengerID, strconv.FormatBool(out.Promoted)).Inc()
	return out, nil
}

// EvaluateAll tests every challenger with enough history against the current
// champion. Driven by the host scheduler, not an internal timer.
func (s *ChampionService) EvaluateAll(ctx context.Context) {
	for _, p := range s.registry.Policies() {
		if p.IsChampion {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		out, err := s.Evaluate(p.PolicyID)
		if err != nil {
			if !errors.Is(err, champion.ErrInsufficientSamples) && s.l != nil {
				s.l.Warn("champion evaluation failed",
					applogger.String("challenger", p.PolicyID),
					applogger.Error(err),
				)
			}
			continue
		}
		if s.l != nil {
			s.l.Debug("champion evaluation",
				applogger.String("challenger", out.ChallengerID),
				applogger.String("champion", out.ChampionID),
				applogger.Int("samples", out.SampleSize),
				applogger.Any("p_value", out.PValue),
				applogger.Bool("promoted", out.Promoted),
			)
		}
	}
}

// ChampionID returns the current incumbent.
func (s *ChampionService) ChampionID() string { return s.registry.ChampionID() }

// Policies returns snapshots of all registered policies.
func (s *ChampionService) Policies() []models.PolicyPerformance { return s.registry.Policies() }

// Performance returns one policy's snapshot.
func (s *ChampionService) Performance(policyID string) (models.PolicyPerformance, error) {
	return s.registry.Performance(policyID)
}
