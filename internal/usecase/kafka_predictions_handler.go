package usecase

import (
	"context"
	"encoding/json"
	"time"

	"ModelGate/internal/domain/models"
	domrepo "ModelGate/internal/domain/repository"
	mid "ModelGate/internal/middleware"
	pkgkafka "ModelGate/pkg/kafka"
)

// KafkaPredictionsHandler consumes upstream model predictions and routes
// them through the ingest pipeline into the shadow runner.
type KafkaPredictionsHandler struct {
	topic   string
	pipe    *mid.IngestPipeline
	metrics domrepo.Metrics
}

func NewKafkaPredictionsHandler(topic string, pipe *mid.IngestPipeline, metrics domrepo.Metrics) *KafkaPredictionsHandler {
	return &KafkaPredictionsHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaPredictionsHandler) Topic() string { return h.topic }

func (h *KafkaPredictionsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.PredictionEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("prediction_unmarshal")
		return err
	}
	if ev.Timestamp > 1e11 { // ms
		ev.Timestamp = ev.Timestamp / 1000
	}
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("prediction_e2e_seconds", time.Since(time.Unix(ev.Timestamp, 0)).Seconds())

	return h.pipe.Process(ctx, &ev)
}

var _ pkgkafka.MessageHandler = (*KafkaPredictionsHandler)(nil)
