package repository

import (
	"context"

	"ModelGate/internal/domain/models"
)

// SettlementStream delivers realized returns from an execution venue.
type SettlementStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.OutcomeEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TradeLog persists shadow and live trades for audit and offline analysis.
type TradeLog interface {
	Init(ctx context.Context) error // ensure tables, health checks
	LogShadowTrade(ctx context.Context, strategyID string, t *models.ShadowTrade) error
	LogLiveTrade(ctx context.Context, t *models.LiveTradeEvent) error
	Health(ctx context.Context) error
	Close() error
}

// SnapshotStore persists exported predictor state per strategy. Importing a
// stored snapshot must restore bit-identical prediction behavior.
type SnapshotStore interface {
	Save(ctx context.Context, strategyID string, state []byte) error
	Load(ctx context.Context, strategyID string) ([]byte, error)
}

// EventLog is the durable, ordered promotion history per strategy.
type EventLog interface {
	Append(ctx context.Context, strategyID string, ev models.PromotionEvent) error
	List(ctx context.Context, strategyID string, limit int) ([]models.PromotionEvent, error)
}

// DecisionPublisher emits gate decisions for downstream execution.
type DecisionPublisher interface {
	Publish(ctx context.Context, ev *models.DecisionEvent) error
	Close() error
}

// Metrics records operational metrics for the gate pipeline.
type Metrics interface {
	RecordPrediction(strategy, symbol string)
	RecordSettlement(strategy, symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordNotional(strategy string, notional float64)
}
