package kafka

import (
	"testing"
	"time"
)

func TestNewConsumerRequiresBrokers(t *testing.T) {
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestConsumerOptions(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerGroupID("gate"),
		WithConsumerWorkers(4),
		WithConsumerBufferSize(64),
		WithConsumerRetry(5, 10*time.Millisecond, time.Second),
		WithConsumerDLQ("dead"),
		WithConsumerFetch(2, 1<<20),
	)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	if c.cfg.GroupID != "gate" || c.cfg.Workers != 4 || c.cfg.BufferSize != 64 {
		t.Fatalf("unexpected config: %+v", c.cfg)
	}
	if c.cfg.RetryMax != 5 || c.cfg.DLQTopic != "dead" || c.cfg.MinBytes != 2 {
		t.Fatalf("unexpected config: %+v", c.cfg)
	}
}

func TestStartWithoutHandlerFails(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	if err := c.Start(); err == nil {
		t.Fatalf("expected error without handler")
	}
}

func TestBackoffWithJitterStaysBounded(t *testing.T) {
	min := 100 * time.Millisecond
	max := time.Second
	for attempt := 1; attempt <= 10; attempt++ {
		for i := 0; i < 50; i++ {
			d := backoffWithJitter(min, max, attempt)
			if d <= 0 || d > max {
				t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
			}
		}
	}
}
