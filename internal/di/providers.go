package di

import (
	"context"
	"fmt"
	"time"

	"ModelGate/internal/domain/repository"
	domsvc "ModelGate/internal/domain/service"
	"ModelGate/internal/handler/api"
	mid "ModelGate/internal/middleware"
	internalrepo "ModelGate/internal/repository"
	svcmetrics "ModelGate/internal/service/metrics"
	"ModelGate/internal/service/stream"
	"ModelGate/internal/services/analytics"
	"ModelGate/internal/services/champion"
	"ModelGate/internal/usecase"
	pkgcache "ModelGate/pkg/cache"
	pkgch "ModelGate/pkg/clickhouse"
	"ModelGate/pkg/config"
	xhttp "ModelGate/pkg/http"
	pkgkafka "ModelGate/pkg/kafka"
	applogger "ModelGate/pkg/logger"
	"ModelGate/pkg/metrics"
	pkgqueue "ModelGate/pkg/queue"
	pkgscheduler "ModelGate/pkg/scheduler"
	"ModelGate/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	l, err := applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder and registers the
// domain-level collectors.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

// ProvideTradeLog creates the ClickHouse shadow/live trade log.
func ProvideTradeLog(chClient *pkgch.Client, l *applogger.Logger) (repository.TradeLog, error) {
	log := internalrepo.NewCHTradeLog(chClient)
	log.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := log.Init(ctx); err != nil {
		return nil, fmt.Errorf("trade log schema: %w", err)
	}
	return log, nil
}

// ProvideSnapshotStore creates the ClickHouse predictor snapshot store.
func ProvideSnapshotStore(chClient *pkgch.Client, l *applogger.Logger) (repository.SnapshotStore, error) {
	store := internalrepo.NewCHSnapshotStore(chClient)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("snapshot schema: %w", err)
	}
	return store, nil
}

// ProvideEventLog creates the ClickHouse promotion event log.
func ProvideEventLog(chClient *pkgch.Client, l *applogger.Logger) (repository.EventLog, error) {
	log := internalrepo.NewCHEventLog(chClient)
	log.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := log.Init(ctx); err != nil {
		return nil, fmt.Errorf("event log schema: %w", err)
	}
	return log, nil
}

// ProvideDecisionPublisher creates the Kafka decision publisher.
func ProvideDecisionPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.DecisionPublisher {
	return internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionsTopic)
}

// ProvideRegimeDetector selects the regime detector implementation. An
// external service wins when configured; otherwise a local volatility
// heuristic keeps adaptive intervals working. Classifications are cached per
// symbol so prediction bursts do not hammer the detector.
func ProvideRegimeDetector(cfg *config.Config, redisClient *redis.Client) domsvc.RegimeDetector {
	var inner domsvc.RegimeDetector
	if cfg.Regime.ServiceURL != "" {
		inner = analytics.NewHTTPRegimeDetector(cfg)
	} else {
		inner = analytics.NewLocalRegimeDetector(20, cfg.Shadow.BarsPerYear, 0.45, 0.0005)
	}

	var store pkgcache.Store = pkgcache.NewMemory()
	if redisClient != nil {
		store = pkgcache.NewLayered(store, pkgcache.NewRedis(redisClient, ""), cfg.Regime.CacheTTL)
	}
	return analytics.NewCachedRegimeDetector(inner, store, cfg.Regime.CacheTTL)
}

// ProvideShadowRunner creates the shadow validation runner.
func ProvideShadowRunner(
	cfg *config.Config,
	tradeLog repository.TradeLog,
	snapshots repository.SnapshotStore,
	m repository.Metrics,
	regime domsvc.RegimeDetector,
	redisClient *redis.Client,
	l *applogger.Logger,
) *usecase.ShadowRunner {
	runner := usecase.NewShadowRunner(cfg.Conformal, cfg.Shadow, tradeLog, snapshots, m, regime)
	runner.SetLogger(l)
	if redisClient != nil {
		runner.SetSnapshotCache(pkgcache.NewRedis(redisClient, "modelgate:snapshot:"))
	} else {
		runner.SetSnapshotCache(pkgcache.NewMemory())
	}
	return runner
}

// ProvidePromotionService creates the capital ramp service.
func ProvidePromotionService(
	cfg *config.Config,
	eventLog repository.EventLog,
	publisher repository.DecisionPublisher,
	tradeLog repository.TradeLog,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.PromotionService {
	svc := usecase.NewPromotionService(cfg.Promotion, eventLog, publisher, tradeLog, m)
	svc.SetLogger(l)
	return svc
}

// ProvideChampionService creates the champion/challenger service.
func ProvideChampionService(cfg *config.Config, m repository.Metrics, l *applogger.Logger) *usecase.ChampionService {
	registry := champion.NewRegistry(
		cfg.Champion.ChampionID,
		champion.WithSignificance(cfg.Champion.Significance),
	)
	svc := usecase.NewChampionService(registry, m)
	svc.SetLogger(l)
	return svc
}

// ProvideIngestPipeline creates the prediction ingest pipeline.
func ProvideIngestPipeline(runner *usecase.ShadowRunner, m repository.Metrics) *mid.IngestPipeline {
	return mid.NewIngestPipeline(runner, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideSettlementStream creates the settlements WebSocket stream.
func ProvideSettlementStream(cfg *config.Config, l *applogger.Logger, m repository.Metrics) repository.SettlementStream {
	s := stream.New(
		cfg.Settlements.APIKey,
		cfg.Settlements.WebSocketURL,
		cfg.Settlements.Symbols,
		cfg.Settlements.ReconnectDelay,
		cfg.Settlements.PingInterval,
	)
	if c, ok := s.(*stream.Client); ok {
		c.SetLogger(l)
		c.SetMetrics(m)
	}
	return s
}

// ProvideRedisClient creates a Redis client when Redis is enabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideRetryQueue creates the Redis queue that replays settlements which
// arrived before their shadow trade.
func ProvideRetryQueue(
	cfg *config.Config,
	client *redis.Client,
	runner *usecase.ShadowRunner,
	l *applogger.Logger,
) *pkgqueue.RedisQueue {
	if client == nil {
		return nil
	}
	job := usecase.NewOutcomeRetryJob(runner)
	return pkgqueue.NewRedisConsumer(l, &pkgqueue.QueueConfig{
		Workers:    2,
		RetryLimit: 5,
		RetryDelay: cfg.Scheduler.RetryInterval,
	}, client, []pkgqueue.Job{job}, pkgqueue.WithKeyPrefix("modelgate"))
}

// ProvideOutcomeCollector creates the settlement collector.
func ProvideOutcomeCollector(
	st repository.SettlementStream,
	runner *usecase.ShadowRunner,
	champions *usecase.ChampionService,
	retryQueue *pkgqueue.RedisQueue,
	m repository.Metrics,
) *usecase.OutcomeCollector {
	var retry usecase.RetryQueue
	if retryQueue != nil {
		retry = retryQueue
	}
	return usecase.NewOutcomeCollector(st, runner, champions, retry, m)
}

// ProvideKafkaConsumers creates one consumer per inbound topic.
func ProvideKafkaConsumers(
	cfg *config.Config,
	pipeline *mid.IngestPipeline,
	runner *usecase.ShadowRunner,
	promotions *usecase.PromotionService,
	champions *usecase.ChampionService,
	retryQueue *pkgqueue.RedisQueue,
	m repository.Metrics,
) ([]*pkgkafka.Consumer, error) {
	var retry usecase.RetryQueue
	if retryQueue != nil {
		retry = retryQueue
	}

	handlers := []pkgkafka.MessageHandler{
		usecase.NewKafkaPredictionsHandler(cfg.Kafka.PredictionsTopic, pipeline, m),
		usecase.NewKafkaOutcomesHandler(cfg.Kafka.OutcomesTopic, runner, champions, retry, m),
		usecase.NewKafkaLiveTradesHandler(cfg.Kafka.LiveTradesTopic, promotions, m),
	}

	consumers := make([]*pkgkafka.Consumer, 0, len(handlers))
	for _, h := range handlers {
		consumer, err := pkgkafka.NewConsumer(
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
			pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
			pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
			pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
			pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
			pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer %s: %w", h.Topic(), err)
		}
		consumer.RegisterHandler(h)
		consumers = append(consumers, consumer)
	}
	return consumers, nil
}

// ProvideScheduler creates the background scheduler with the periodic
// champion evaluation sweep.
func ProvideScheduler(cfg *config.Config, champions *usecase.ChampionService, l *applogger.Logger) *pkgscheduler.Scheduler {
	sched := pkgscheduler.New(l)
	interval := cfg.Scheduler.EvaluationInterval
	if interval <= 0 {
		interval = time.Minute
	}
	sched.Add("champion-evaluation", interval, champions.EvaluateAll)
	return sched
}

// ProvideHandler creates the HTTP control plane handler.
func ProvideHandler(
	l *applogger.Logger,
	runner *usecase.ShadowRunner,
	promotions *usecase.PromotionService,
	champions *usecase.ChampionService,
) xhttp.Handler {
	return api.NewGateEchoHandler(l, runner, promotions, champions)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	pipeline *mid.IngestPipeline,
	collector *usecase.OutcomeCollector,
	consumers []*pkgkafka.Consumer,
	retryQueue *pkgqueue.RedisQueue,
	sched *pkgscheduler.Scheduler,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, l, pipeline, collector, consumers, retryQueue, sched, chClient, handler)
}
