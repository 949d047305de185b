package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ModelGate/internal/domain/models"
	domrepo "ModelGate/internal/domain/repository"
)

// ErrBufferFull means a prediction could be neither delivered nor parked for
// replay. The transport layer is expected to redeliver it.
var ErrBufferFull = errors.New("ingest buffer full")

const (
	defaultMaxRPS     = 20
	defaultBufferSize = 1000

	replayBaseBackoff = 50 * time.Millisecond
	replayMaxBackoff  = 2 * time.Second
)

// Proc is the downstream surface the pipeline drives.
type Proc interface {
	ProcessPrediction(ctx context.Context, ev *models.PredictionEvent) error
}

// IngestPipeline fronts the prediction stream: it rejects malformed events,
// spaces out bursts per symbol, and owns a replay buffer for events that
// failed downstream. Once an event is parked in that buffer the pipeline is
// responsible for delivering it, so Process reports success and the
// transport does not redeliver a second copy of the same prediction.
type IngestPipeline struct {
	proc    Proc
	metrics domrepo.Metrics

	gate  *symbolGate
	bufCh chan *models.PredictionEvent

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}
}

type PipelineOption func(*pipelineConfig)

type pipelineConfig struct {
	maxRPS  int
	bufSize int
}

// WithMaxRPS caps accepted predictions per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(c *pipelineConfig) {
		if n > 0 {
			c.maxRPS = n
		}
	}
}

// WithBufferSize sets the replay buffer capacity.
func WithBufferSize(n int) PipelineOption {
	return func(c *pipelineConfig) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

func NewIngestPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	cfg := pipelineConfig{maxRPS: defaultMaxRPS, bufSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &IngestPipeline{
		proc:    proc,
		metrics: metrics,
		gate:    newSymbolGate(cfg.maxRPS),
		bufCh:   make(chan *models.PredictionEvent, cfg.bufSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Process validates and forwards one prediction. Throttled events are
// dropped with a counter bump. On downstream failure the event is parked
// for background replay and nil is returned; the caller only sees an error
// when the event was rejected outright or the replay buffer is full.
func (p *IngestPipeline) Process(ctx context.Context, ev *models.PredictionEvent) error {
	start := time.Now()
	if err := checkPrediction(ev); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.gate.admit(ev.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	err := p.proc.ProcessPrediction(ctx, ev)
	if err == nil {
		p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
		return nil
	}

	p.metrics.RecordError("pipeline_process")
	select {
	case p.bufCh <- ev:
		p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return fmt.Errorf("%w: %v", ErrBufferFull, err)
	}
}

// Start launches the replay worker draining parked predictions.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	go p.replay(ctx)
}

// Stop halts the replay worker and waits for it to exit.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopCh)
	<-p.done
}

func (p *IngestPipeline) replay(ctx context.Context) {
	defer close(p.done)
	backoff := replayBaseBackoff
	for {
		select {
		case <-p.stopCh:
			return
		case ev := <-p.bufCh:
			if err := p.proc.ProcessPrediction(ctx, ev); err != nil {
				p.metrics.RecordError("pipeline_replay")
				// put it back if there is room, then back off
				select {
				case p.bufCh <- ev:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
				select {
				case <-p.stopCh:
					return
				case <-time.After(backoff):
				}
				if backoff < replayMaxBackoff {
					backoff *= 2
				}
				continue
			}
			backoff = replayBaseBackoff
		}
	}
}

func checkPrediction(ev *models.PredictionEvent) error {
	switch {
	case ev == nil:
		return errors.New("prediction nil")
	case ev.StrategyID == "":
		return errors.New("strategy id empty")
	case ev.Symbol == "":
		return errors.New("symbol empty")
	case ev.Timestamp <= 0:
		return errors.New("timestamp invalid")
	case len(ev.Features) == 0:
		return errors.New("features empty")
	}
	return nil
}

// symbolGate enforces a minimum spacing between accepted events per symbol.
type symbolGate struct {
	mu      sync.Mutex
	spacing time.Duration
	last    map[string]time.Time
}

func newSymbolGate(maxRPS int) *symbolGate {
	g := &symbolGate{last: make(map[string]time.Time)}
	if maxRPS > 0 {
		g.spacing = time.Second / time.Duration(maxRPS)
	}
	return g
}

func (g *symbolGate) admit(symbol string, now time.Time) bool {
	if g.spacing <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.last[symbol]; ok && now.Sub(last) < g.spacing {
		return false
	}
	g.last[symbol] = now
	return true
}
