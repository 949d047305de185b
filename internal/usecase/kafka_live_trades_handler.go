package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"ModelGate/internal/domain/models"
	domrepo "ModelGate/internal/domain/repository"
	"ModelGate/internal/services/promotion"
	pkgkafka "ModelGate/pkg/kafka"
)

// KafkaLiveTradesHandler consumes settled live fills from the execution
// layer and folds them into the owning promotion gate.
type KafkaLiveTradesHandler struct {
	topic      string
	promotions *PromotionService
	metrics    domrepo.Metrics
}

func NewKafkaLiveTradesHandler(topic string, promotions *PromotionService, metrics domrepo.Metrics) *KafkaLiveTradesHandler {
	return &KafkaLiveTradesHandler{topic: topic, promotions: promotions, metrics: metrics}
}

func (h *KafkaLiveTradesHandler) Topic() string { return h.topic }

func (h *KafkaLiveTradesHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.LiveTradeEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("live_trade_unmarshal")
		return err
	}
	if ev.Timestamp > 1e11 { // ms
		ev.Timestamp = ev.Timestamp / 1000
	}

	err := h.promotions.HandleLiveTrade(ctx, &ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, promotion.ErrNotLive), errors.Is(err, ErrUnknownStrategy):
		// fills can trail a rollback; they must not resurrect the gate
		h.metrics.RecordError("live_trade_not_live")
		return nil
	default:
		return err
	}
}

var _ pkgkafka.MessageHandler = (*KafkaLiveTradesHandler)(nil)
