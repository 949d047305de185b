// Package kafka wraps segmentio/kafka-go with the narrow consumer and
// producer surface the gate uses: one handler per consumer-group reader,
// bounded retries with jittered backoff, and a dead-letter topic for
// messages that exhaust them.
package kafka

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler consumes raw messages from a single topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, data []byte) error
}

// ConsumerConfig holds consumer settings.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Workers    int
	BufferSize int
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	DLQTopic   string
	MinBytes   int
	MaxBytes   int
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*ConsumerConfig)

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if groupID != "" {
			c.GroupID = groupID
		}
	}
}

func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.Workers = n
		}
	}
}

func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		if max >= 0 {
			c.RetryMax = max
		}
		if backoffMin > 0 {
			c.BackoffMin = backoffMin
		}
		if backoffMax > 0 {
			c.BackoffMax = backoffMax
		}
	}
}

func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if minBytes > 0 {
			c.MinBytes = minBytes
		}
		if maxBytes > 0 {
			c.MaxBytes = maxBytes
		}
	}
}

// Consumer reads one topic through a consumer group and fans messages
// out to a fixed worker pool. Messages are sharded to workers by
// partition so commits within a partition stay ordered.
type Consumer struct {
	cfg     ConsumerConfig
	handler MessageHandler

	reader *kafka.Reader
	dlq    *kafka.Writer
	queues []chan kafka.Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer. A handler must be registered before Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:    "modelgate",
		Workers:    1,
		BufferSize: 10,
		RetryMax:   3,
		BackoffMin: 100 * time.Millisecond,
		BackoffMax: 5 * time.Second,
		MinBytes:   1,
		MaxBytes:   10 * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}

	ctx, cancel := context.WithCancel(context.Background())
	initConsumerMetricsOnce()
	return &Consumer{cfg: cfg, ctx: ctx, cancel: cancel}, nil
}

// RegisterHandler sets the handler whose topic this consumer reads.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	c.handler = h
}

// Start opens the group reader and launches the worker pool.
func (c *Consumer) Start() error {
	if c.handler == nil {
		return fmt.Errorf("no handler registered")
	}

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		GroupID:     c.cfg.GroupID,
		Topic:       c.handler.Topic(),
		MinBytes:    c.cfg.MinBytes,
		MaxBytes:    c.cfg.MaxBytes,
		StartOffset: kafka.FirstOffset,
	})
	if c.cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(c.cfg.Brokers...),
			Topic:        c.cfg.DLQTopic,
			RequiredAcks: kafka.RequireAll,
		}
	}

	c.queues = make([]chan kafka.Message, c.cfg.Workers)
	for i := range c.queues {
		c.queues[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.wg.Add(1)
		go c.worker(c.queues[i])
	}

	c.wg.Add(1)
	go c.fetch()
	return nil
}

// Stop drains the consumer, waiting up to the context deadline.
func (c *Consumer) Stop(ctx context.Context) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if c.reader != nil {
		if cerr := c.reader.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if c.dlq != nil {
		if cerr := c.dlq.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// fetch pulls messages and shards them to workers by partition so a
// partition is never handled by two workers at once.
func (c *Consumer) fetch() {
	defer c.wg.Done()
	defer func() {
		for _, q := range c.queues {
			close(q)
		}
	}()

	topic := c.handler.Topic()
	for {
		msg, err := c.reader.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			log.Printf("kafka fetch %s: %v", topic, err)
			continue
		}
		q := c.queues[msg.Partition%len(c.queues)]
		select {
		case q <- msg:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(q)))
			consumerQueueFullness.WithLabelValues(topic).Set(float64(len(q)) / float64(cap(q)))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) worker(queue <-chan kafka.Message) {
	defer c.wg.Done()
	for msg := range queue {
		c.handle(msg)
	}
}

// handle runs the handler with bounded retries, routing exhausted
// messages to the dead-letter topic so the partition does not wedge
// on a poison message.
func (c *Consumer) handle(msg kafka.Message) {
	topic := c.handler.Topic()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic handling message from %s: %v", topic, r)
		}
	}()

	var err error
	for attempt := 0; ; attempt++ {
		err = c.handler.Handle(c.ctx, msg.Value)
		if err == nil || attempt >= c.cfg.RetryMax {
			break
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt+1)):
		case <-c.ctx.Done():
			return
		}
	}

	if err != nil {
		log.Printf("message from %s failed after %d attempts: %v", topic, c.cfg.RetryMax+1, err)
		if c.dlq != nil {
			dlqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			dlqErr := c.dlq.WriteMessages(dlqCtx, kafka.Message{
				Value:   msg.Value,
				Time:    time.Now(),
				Headers: []kafka.Header{{Key: "source_topic", Value: []byte(topic)}},
			})
			cancel()
			if dlqErr != nil {
				log.Printf("dead-letter write for %s: %v", topic, dlqErr)
				return
			}
		} else {
			// No DLQ: leave the offset uncommitted so the message
			// is redelivered rather than silently lost.
			return
		}
	}

	commitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if cerr := c.reader.CommitMessages(commitCtx, msg); cerr != nil {
		log.Printf("commit %s offset %d: %v", topic, msg.Offset, cerr)
	}
	cancel()
	consumerHandleLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	sleep := min << uint(attempt-1)
	if sleep > max || sleep <= 0 {
		sleep = max
	}
	// up to 50% jitter keeps retry stampedes apart
	return sleep - time.Duration(rand.Int63n(int64(sleep)/2+1))
}

var (
	consumerQueueDepth    *prometheus.GaugeVec
	consumerQueueFullness *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerMetricsOnce   sync.Once
)

func initConsumerMetricsOnce() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "modelgate_kafka_consumer_queue_depth", Help: "Messages waiting in the consumer queue"},
			[]string{"topic"},
		)
		consumerQueueFullness = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "modelgate_kafka_consumer_queue_fullness", Help: "Consumer queue utilization ratio"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "modelgate_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
	})
}
