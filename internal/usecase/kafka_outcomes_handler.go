package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"ModelGate/internal/domain/models"
	domrepo "ModelGate/internal/domain/repository"
	"ModelGate/internal/services/shadow"
	pkgkafka "ModelGate/pkg/kafka"
)

// outcomeRetryType tags parked settlements in the retry queue.
const outcomeRetryType = "outcome_retry"

// RetryQueue parks settlements that arrived before their shadow trade.
type RetryQueue interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// KafkaOutcomesHandler consumes realized returns: each settles a shadow
// trade and, when tagged with a policy id, extends that policy's
// champion/challenger series.
type KafkaOutcomesHandler struct {
	topic     string
	runner    *ShadowRunner
	champions *ChampionService
	retry     RetryQueue
	metrics   domrepo.Metrics
}

func NewKafkaOutcomesHandler(
	topic string,
	runner *ShadowRunner,
	champions *ChampionService,
	retry RetryQueue,
	metrics domrepo.Metrics,
) *KafkaOutcomesHandler {
	return &KafkaOutcomesHandler{
		topic:     topic,
		runner:    runner,
		champions: champions,
		retry:     retry,
		metrics:   metrics,
	}
}

func (h *KafkaOutcomesHandler) Topic() string { return h.topic }

func (h *KafkaOutcomesHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.OutcomeEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("outcome_unmarshal")
		return err
	}
	if ev.Timestamp > 1e11 { // ms
		ev.Timestamp = ev.Timestamp / 1000
	}

	if ev.PolicyID != "" && h.champions != nil {
		// unknown policies are not an ingest failure; the registry logs them
		_ = h.champions.AddReturn(ev.PolicyID, ev.ActualReturn)
	}

	err := h.runner.ApplyOutcome(ctx, &ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shadow.ErrNoMatchingTrade):
		// settlement raced ahead of its prediction; park it for replay
		h.metrics.RecordError("outcome_unmatched")
		if h.retry != nil {
			return h.retry.Enqueue(ctx, outcomeRetryType, &ev)
		}
		return nil
	case errors.Is(err, shadow.ErrNotRunning), errors.Is(err, ErrUnknownStrategy):
		// stale settlement for a finished run; drop but keep count
		h.metrics.RecordError("outcome_stale_run")
		return nil
	default:
		return err
	}
}

var _ pkgkafka.MessageHandler = (*KafkaOutcomesHandler)(nil)
