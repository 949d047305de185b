package usecase

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"ModelGate/internal/domain/models"
	domrepo "ModelGate/internal/domain/repository"
	gatemetrics "ModelGate/internal/service/metrics"
	"ModelGate/internal/services/promotion"
	applogger "ModelGate/pkg/logger"
)

// PromotionService owns one promotion gate per strategy and keeps the
// durable event log, the decision topic and the notional gauge in sync with
// every transition.
type PromotionService struct {
	mu    sync.RWMutex
	gates map[string]*promotion.Gate
	cfg   models.PromotionConfig

	eventLog  domrepo.EventLog
	publisher domrepo.DecisionPublisher
	tradeLog  domrepo.TradeLog
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewPromotionService(
	cfg models.PromotionConfig,
	eventLog domrepo.EventLog,
	publisher domrepo.DecisionPublisher,
	tradeLog domrepo.TradeLog,
	metrics domrepo.Metrics,
) *PromotionService {
	return &PromotionService{
		gates:     make(map[string]*promotion.Gate),
		cfg:       cfg,
		eventLog:  eventLog,
		publisher: publisher,
		tradeLog:  tradeLog,
		metrics:   metrics,
	}
}

// SetLogger injects a structured logger.
func (s *PromotionService) SetLogger(l *applogger.Logger) { s.l = l }

func (s *PromotionService) gate(strategyID string) (*promotion.Gate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gates[strategyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategyID)
	}
	return g, nil
}

// Promote moves an approved shadow strategy behind a fresh-or-existing gate
// into the first ramp step.
func (s *PromotionService) Promote(ctx context.Context, res models.ValidationResult) error {
	s.mu.Lock()
	g, ok := s.gates[res.StrategyID]
	if !ok {
		var err error
		g, err = promotion.NewGate(res.StrategyID, s.cfg)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.gates[res.StrategyID] = g
	}
	s.mu.Unlock()

	if err := g.InitializePromotion(res); err != nil {
		s.metrics.RecordError("promotion_init")
		return err
	}
	gatemetrics.ValidationVerdicts.WithLabelValues(res.StrategyID, "true").Inc()
	s.recordTransition(ctx, g)
	return nil
}

// HandleLiveTrade folds a settled live fill into the strategy's current ramp
// step and trips the rollback when the step drawdown breaches its gate.
func (s *PromotionService) HandleLiveTrade(ctx context.Context, ev *models.LiveTradeEvent) error {
	g, err := s.gate(ev.StrategyID)
	if err != nil {
		s.metrics.RecordError("live_trade_unknown_strategy")
		return err
	}
	if err := g.ProcessLiveTrade(ev.Symbol, ev.Side, ev.Notional, ev.PnL); err != nil {
		s.metrics.RecordError("live_trade")
		return err
	}
	if s.tradeLog != nil {
		if err := s.tradeLog.LogLiveTrade(ctx, ev); err != nil {
			s.metrics.RecordError("trade_log")
		}
	}

	if g.Status().NeedsRollback {
		if s.l != nil {
			s.l.Warn("drawdown gate breached, rolling back",
				applogger.String("strategy", ev.StrategyID),
			)
		}
		return s.Rollback(ctx, ev.StrategyID, "step drawdown gate breached")
	}
	return nil
}

// Advance attempts a ramp step advance; false means the gates held.
func (s *PromotionService) Advance(ctx context.Context, strategyID string, adminOverride bool) (bool, error) {
	g, err := s.gate(strategyID)
	if err != nil {
		return false, err
	}
	advanced, err := g.AdvanceStep(adminOverride)
	if err != nil {
		return false, err
	}
	if advanced {
		s.recordTransition(ctx, g)
	}
	return advanced, nil
}

// Rollback kills the promotion unconditionally.
func (s *PromotionService) Rollback(ctx context.Context, strategyID, reason string) error {
	g, err := s.gate(strategyID)
	if err != nil {
		return err
	}
	g.TriggerRollback(reason)
	s.recordTransition(ctx, g)
	return nil
}

// Stop returns the strategy to a non-live shadow phase, history intact.
func (s *PromotionService) Stop(ctx context.Context, strategyID, reason string) error {
	g, err := s.gate(strategyID)
	if err != nil {
		return err
	}
	g.StopLiveTrading(reason)
	s.recordTransition(ctx, g)
	return nil
}

// Status returns the authoritative sizing view for the strategy.
func (s *PromotionService) Status(strategyID string) (models.PromotionStatus, error) {
	g, err := s.gate(strategyID)
	if err != nil {
		return models.PromotionStatus{}, err
	}
	return g.Status(), nil
}

// History reads the durable promotion history, oldest first.
func (s *PromotionService) History(ctx context.Context, strategyID string, limit int) ([]models.PromotionEvent, error) {
	if _, err := s.gate(strategyID); err != nil {
		return nil, err
	}
	return s.eventLog.List(ctx, strategyID, limit)
}

// recordTransition persists and publishes the gate's latest history entry.
// Failures are surfaced as metrics, not errors: the in-memory gate remains
// authoritative and downstream re-reads status on reconnect.
func (s *PromotionService) recordTransition(ctx context.Context, g *promotion.Gate) {
	events := g.History(1)
	if len(events) == 0 {
		return
	}
	ev := events[0]
	strategyID := g.StrategyID()

	gatemetrics.PromotionEvents.WithLabelValues(strategyID, string(ev.Type)).Inc()
	s.metrics.RecordNotional(strategyID, ev.Notional)

	if s.eventLog != nil {
		if err := s.eventLog.Append(ctx, strategyID, ev); err != nil {
			s.metrics.RecordError("event_log")
			if s.l != nil {
				s.l.Error("promotion event append failed",
					applogger.String("strategy", strategyID),
					applogger.String("type", string(ev.Type)),
					applogger.Error(err),
				)
			}
		}
	}
	if s.publisher != nil {
		dec := &models.DecisionEvent{
			StrategyID: strategyID,
			Type:       ev.Type,
			Step:       ev.ToStep,
			Notional:   ev.Notional,
			Reason:     ev.Reason,
			Timestamp:  ev.Timestamp,
		}
		if err := s.publisher.Publish(ctx, dec); err != nil {
			s.metrics.RecordError("decision_publish")
		}
	}
	if s.l != nil {
		s.l.Info("promotion transition",
			applogger.String("strategy", strategyID),
			applogger.String("type", string(ev.Type)),
			applogger.Int("step", ev.ToStep),
			applogger.String("notional", strconv.FormatFloat(ev.Notional, 'f', -1, 64)),
		)
	}
}
