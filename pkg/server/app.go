package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ModelGate/internal/middleware"
	"ModelGate/internal/usecase"
	pkgch "ModelGate/pkg/clickhouse"
	"ModelGate/pkg/config"
	xhttp "ModelGate/pkg/http"
	pkgkafka "ModelGate/pkg/kafka"
	applogger "ModelGate/pkg/logger"
	pkgqueue "ModelGate/pkg/queue"
	pkgscheduler "ModelGate/pkg/scheduler"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	pipeline   *middleware.IngestPipeline
	collector  *usecase.OutcomeCollector
	consumers  []*pkgkafka.Consumer
	retryQueue *pkgqueue.RedisQueue
	sched      *pkgscheduler.Scheduler
	chClient   *pkgch.Client
	handler    xhttp.Handler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	pipeline *middleware.IngestPipeline,
	collector *usecase.OutcomeCollector,
	consumers []*pkgkafka.Consumer,
	retryQueue *pkgqueue.RedisQueue,
	sched *pkgscheduler.Scheduler,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		pipeline:   pipeline,
		collector:  collector,
		consumers:  consumers,
		retryQueue: retryQueue,
		sched:      sched,
		chClient:   chClient,
		handler:    handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.l),
	)

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
		a.l.Info("ingest pipeline started")
	}

	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.l.Error("outcome collector error", applogger.Error(err))
			}
		}()
		a.l.Info("outcome collector started", applogger.Strings("symbols", a.cfg.Settlements.Symbols))
	}

	for _, c := range a.consumers {
		consumer := c
		go func() {
			if err := consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
	}
	if len(a.consumers) > 0 {
		a.l.Info("kafka consumers started", applogger.Int("count", len(a.consumers)))
	}

	if a.retryQueue != nil {
		if err := a.retryQueue.Start(); err != nil {
			a.l.Error("retry queue start error", applogger.Error(err))
			return err
		}
		a.retryQueue.StartRetryProcessor()
		a.l.Info("outcome retry queue started")
	}

	if a.sched != nil {
		a.sched.Start(ctx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services. Ingest stops first so no new
// predictions land while downstream components drain.
func (a *App) shutdown(ctx context.Context) error {
	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.l.Warn("outcome collector stop error", applogger.Error(err))
		}
	}

	for _, c := range a.consumers {
		if err := c.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.sched != nil {
		if err := a.sched.Stop(ctx); err != nil {
			a.l.Warn("scheduler stop error", applogger.Error(err))
		}
	}

	if a.retryQueue != nil {
		if err := a.retryQueue.Stop(ctx); err != nil {
			a.l.Warn("retry queue stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
