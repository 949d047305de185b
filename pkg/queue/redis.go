package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ModelGate/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRetryDelay = 10 * time.Second
	popTimeout        = 2 * time.Second
	retryPollEvery    = 5 * time.Second
)

// RedisQueue moves messages through three keys: a ready list the workers
// block-pop from, a retry sorted set scored by next-attempt time, and a dead
// list for messages past their retry limit.
type RedisQueue struct {
	l      *logger.Logger
	cfg    QueueConfig
	client *redis.Client
	prefix string

	mu   sync.RWMutex
	jobs map[string]Job

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces the queue keys.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(q *RedisQueue) { q.prefix = prefix }
}

// NewRedisConsumer builds a queue consuming with the given jobs, one job per
// message type.
func NewRedisConsumer(l *logger.Logger, cfg *QueueConfig, client *redis.Client, jobs []Job, opts ...RedisQueueOption) *RedisQueue {
	q := &RedisQueue{
		l:      l,
		client: client,
		prefix: "modelgate:queue",
		jobs:   make(map[string]Job, len(jobs)),
	}
	if cfg != nil {
		q.cfg = *cfg
	}
	if q.cfg.Workers <= 0 {
		q.cfg.Workers = 1
	}
	if q.cfg.RetryDelay <= 0 {
		q.cfg.RetryDelay = defaultRetryDelay
	}
	for _, opt := range opts {
		opt(q)
	}
	for _, job := range jobs {
		q.jobs[job.Type()] = job
	}
	return q
}

func (q *RedisQueue) readyKey() string { return q.prefix + ":ready" }
func (q *RedisQueue) retryKey() string { return q.prefix + ":retry" }
func (q *RedisQueue) deadKey() string  { return q.prefix + ":dead" }

// Enqueue pushes a message onto the ready list.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	msg := Message{
		ID:        strconv.FormatInt(time.Now().UnixNano(), 36),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}
	if err := q.client.LPush(ctx, q.readyKey(), b).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", msgType, err)
	}
	return nil
}

// Start launches the worker pool.
func (q *RedisQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}
	if q.client == nil {
		return errors.New("queue has no redis client")
	}
	q.running = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.l.Info("retry queue started",
		logger.Int("workers", q.cfg.Workers),
		logger.String("prefix", q.prefix))
	return nil
}

// StartRetryProcessor launches the goroutine that moves due retry messages
// back onto the ready list.
func (q *RedisQueue) StartRetryProcessor() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	prev := q.cancel
	q.cancel = func() { prev(); cancel() }

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(retryPollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.promoteDueRetries(ctx)
			}
		}
	}()
}

// Stop cancels the workers and waits for them, bounded by ctx.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	cancel := q.cancel
	q.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

func (q *RedisQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		res, err := q.client.BRPop(ctx, popTimeout, q.readyKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.l.Error("queue pop failed", logger.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(res) != 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			q.l.Error("queue message corrupt", logger.Error(err))
			continue
		}
		q.dispatch(ctx, msg)
	}
}

func (q *RedisQueue) dispatch(ctx context.Context, msg Message) {
	q.mu.RLock()
	job, ok := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !ok {
		q.l.Warn("no job for message type", logger.String("type", msg.Type))
		return
	}

	if err := job.Handle(ctx, msg.Payload); err != nil {
		msg.Attempts++
		if q.cfg.RetryLimit > 0 && msg.Attempts >= q.cfg.RetryLimit {
			q.bury(ctx, msg)
			return
		}
		q.scheduleRetry(ctx, msg)
	}
}

func (q *RedisQueue) scheduleRetry(ctx context.Context, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	due := time.Now().Add(q.cfg.RetryDelay)
	if err := q.client.ZAdd(ctx, q.retryKey(), redis.Z{
		Score:  float64(due.Unix()),
		Member: b,
	}).Err(); err != nil {
		q.l.Error("queue retry schedule failed", logger.Error(err))
	}
}

func (q *RedisQueue) bury(ctx context.Context, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := q.client.LPush(ctx, q.deadKey(), b).Err(); err != nil {
		q.l.Error("queue dead-letter push failed", logger.Error(err))
		return
	}
	q.l.Warn("queue message dead-lettered",
		logger.String("type", msg.Type),
		logger.Int("attempts", msg.Attempts))
}

func (q *RedisQueue) promoteDueRetries(ctx context.Context) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	members, err := q.client.ZRangeByScore(ctx, q.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil || len(members) == 0 {
		return
	}
	for _, m := range members {
		if q.client.ZRem(ctx, q.retryKey(), m).Val() == 0 {
			continue // another instance claimed it
		}
		if err := q.client.LPush(ctx, q.readyKey(), m).Err(); err != nil {
			q.l.Error("queue retry promote failed", logger.Error(err))
		}
	}
}
