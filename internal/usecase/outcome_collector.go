package usecase

import (
	"context"
	"errors"

	"ModelGate/internal/domain/models"
	drepo "ModelGate/internal/domain/repository"
	"ModelGate/internal/services/shadow"
)

// OutcomeCollector collects realized returns from the settlement stream and
// settles shadow trades with them.
type OutcomeCollector struct {
	stream    drepo.SettlementStream
	runner    *ShadowRunner
	champions *ChampionService
	retry     RetryQueue
	metrics   drepo.Metrics
}

// NewOutcomeCollector creates a new OutcomeCollector instance.
func NewOutcomeCollector(
	stream drepo.SettlementStream,
	runner *ShadowRunner,
	champions *ChampionService,
	retry RetryQueue,
	metrics drepo.Metrics,
) *OutcomeCollector {
	return &OutcomeCollector{
		stream:    stream,
		runner:    runner,
		champions: champions,
		retry:     retry,
		metrics:   metrics,
	}
}

// IsConnected returns true if the settlement stream is connected.
func (c *OutcomeCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *OutcomeCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	outCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, outCh, errCh)
	return nil
}

func (c *OutcomeCollector) consume(ctx context.Context, outCh <-chan *models.OutcomeEvent, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case ev := <-outCh:
			if ev == nil {
				continue
			}
			c.apply(ctx, ev)
		}
	}
}

func (c *OutcomeCollector) apply(ctx context.Context, ev *models.OutcomeEvent) {
	if ev.PolicyID != "" && c.champions != nil {
		_ = c.champions.AddReturn(ev.PolicyID, ev.ActualReturn)
	}

	err := c.runner.ApplyOutcome(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, shadow.ErrNoMatchingTrade):
		c.metrics.RecordError("outcome_unmatched")
		if c.retry != nil {
			_ = c.retry.Enqueue(ctx, outcomeRetryType, ev)
		}
	case errors.Is(err, shadow.ErrNotRunning), errors.Is(err, ErrUnknownStrategy):
		// stale settlement for a finished run; drop but keep count
		c.metrics.RecordError("outcome_stale_run")
	default:
		c.metrics.RecordError("outcome_apply")
	}
}

func (c *OutcomeCollector) Stop() error { return c.stream.Close() }
