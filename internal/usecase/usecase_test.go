package usecase

import (
	"context"
	"fmt"
	"sync"

	"ModelGate/internal/domain/models"
)

// fakeMetrics counts recorder calls for assertions.
type fakeMetrics struct {
	mu          sync.Mutex
	predictions int
	settlements int
	errors      map[string]int
	notional    map[string]float64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: map[string]int{}, notional: map[string]float64{}}
}

func (m *fakeMetrics) RecordPrediction(strategy, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *fakeMetrics) RecordSettlement(strategy, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLatency(op string, seconds float64) {}

func (m *fakeMetrics) RecordNotional(strategy string, notional float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notional[strategy] = notional
}

func (m *fakeMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type fakeTradeLog struct {
	mu     sync.Mutex
	shadow int
	live   int
}

func (l *fakeTradeLog) Init(ctx context.Context) error { return nil }

func (l *fakeTradeLog) LogShadowTrade(ctx context.Context, strategyID string, t *models.ShadowTrade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shadow++
	return nil
}

func (l *fakeTradeLog) LogLiveTrade(ctx context.Context, t *models.LiveTradeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.live++
	return nil
}

func (l *fakeTradeLog) Health(ctx context.Context) error { return nil }
func (l *fakeTradeLog) Close() error                     { return nil }

func (l *fakeTradeLog) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shadow, l.live
}

type fakeSnapshotStore struct {
	mu       sync.Mutex
	states   map[string][]byte
	failLoad bool
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{states: map[string][]byte{}}
}

func (s *fakeSnapshotStore) Save(ctx context.Context, strategyID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[strategyID] = append([]byte(nil), state...)
	return nil
}

func (s *fakeSnapshotStore) Load(ctx context.Context, strategyID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad {
		return nil, fmt.Errorf("store unavailable")
	}
	b, ok := s.states[strategyID]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s", strategyID)
	}
	return b, nil
}

type fakeEventLog struct {
	mu     sync.Mutex
	events map[string][]models.PromotionEvent
}

func newFakeEventLog() *fakeEventLog {
	return &fakeEventLog{events: map[string][]models.PromotionEvent{}}
}

func (l *fakeEventLog) Append(ctx context.Context, strategyID string, ev models.PromotionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[strategyID] = append(l.events[strategyID], ev)
	return nil
}

func (l *fakeEventLog) List(ctx context.Context, strategyID string, limit int) ([]models.PromotionEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	evs := l.events[strategyID]
	if limit > 0 && len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	return append([]models.PromotionEvent(nil), evs...), nil
}

func (l *fakeEventLog) types(strategyID string) []models.PromotionEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.PromotionEventType, 0, len(l.events[strategyID]))
	for _, ev := range l.events[strategyID] {
		out = append(out, ev.Type)
	}
	return out
}

type fakePublisher struct {
	mu        sync.Mutex
	decisions []*models.DecisionEvent
}

func (p *fakePublisher) Publish(ctx context.Context, ev *models.DecisionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decisions = append(p.decisions, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.decisions)
}

type fakeRetryQueue struct {
	mu      sync.Mutex
	parked  []interface{}
	msgType string
}

func (q *fakeRetryQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgType = msgType
	q.parked = append(q.parked, payload)
	return nil
}

func (q *fakeRetryQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.parked)
}

// fakeRegimeDetector records calls and answers with a fixed regime.
type fakeRegimeDetector struct {
	mu    sync.Mutex
	calls int
	state models.RegimeState
}

func (d *fakeRegimeDetector) Detect(ctx context.Context, symbol string, returns []float64) (models.Regime, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return models.Regime{Symbol: symbol, State: d.state, Confidence: 0.9}, nil
}

func (d *fakeRegimeDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
