package repository

import (
	"context"

	"ModelGate/internal/domain/models"
	domrepo "ModelGate/internal/domain/repository"
	pkgkafka "ModelGate/pkg/kafka"
)

// KafkaDecisionPublisher emits gate decisions on a Kafka topic, keyed by
// strategy id so downstream consumers see per-strategy ordering.
type KafkaDecisionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic string) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, ev *models.DecisionEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.StrategyID), ev)
}

func (p *KafkaDecisionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.DecisionPublisher = (*KafkaDecisionPublisher)(nil)
