package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ModelGate/internal/domain/models"
	mid "ModelGate/internal/middleware"
	"ModelGate/internal/services/champion"
)

func TestPredictionsHandlerRejectsBadJSON(t *testing.T) {
	m := newFakeMetrics()
	r := newRunningRunner(t, &fakeTradeLog{}, newFakeSnapshotStore(), m, nil)
	pipe := mid.NewIngestPipeline(r, m)
	h := NewKafkaPredictionsHandler("predictions", pipe, m)

	if err := h.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if m.errorCount("prediction_unmarshal") != 1 {
		t.Fatal("expected unmarshal error metric")
	}
}

func TestPredictionsHandlerNormalizesMilliseconds(t *testing.T) {
	log := &fakeTradeLog{}
	m := newFakeMetrics()
	r := newRunningRunner(t, log, newFakeSnapshotStore(), m, nil)
	pipe := mid.NewIngestPipeline(r, m)
	h := NewKafkaPredictionsHandler("predictions", pipe, m)

	b, _ := json.Marshal(models.PredictionEvent{
		StrategyID: "strat-a",
		Symbol:     "BTCUSDT",
		Features:   []float64{1},
		Prediction: 0.001,
		Timestamp:  time.Now().UnixMilli(),
	})
	if err := h.Handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if shadowLogged, _ := log.counts(); shadowLogged != 1 {
		t.Fatalf("expected 1 shadow trade, got %d", shadowLogged)
	}
}

func TestOutcomesHandlerParksUnmatchedSettlement(t *testing.T) {
	m := newFakeMetrics()
	r := newRunningRunner(t, &fakeTradeLog{}, newFakeSnapshotStore(), m, nil)
	retry := &fakeRetryQueue{}
	h := NewKafkaOutcomesHandler("outcomes", r, nil, retry, m)

	b, _ := json.Marshal(models.OutcomeEvent{
		StrategyID:   "strat-a",
		Symbol:       "BTCUSDT",
		Timestamp:    time.Now().Unix(),
		ActualReturn: 0.001,
	})
	if err := h.Handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if retry.count() != 1 {
		t.Fatalf("expected 1 parked settlement, got %d", retry.count())
	}
	if retry.msgType != outcomeRetryType {
		t.Fatalf("unexpected retry type %q", retry.msgType)
	}
}

func TestOutcomesHandlerDropsStaleStrategy(t *testing.T) {
	m := newFakeMetrics()
	r := NewShadowRunner(runnerConformalConfig(), runnerThresholds(), nil, nil, m, nil)
	h := NewKafkaOutcomesHandler("outcomes", r, nil, &fakeRetryQueue{}, m)

	b, _ := json.Marshal(models.OutcomeEvent{
		StrategyID: "ghost", Symbol: "BTCUSDT", Timestamp: time.Now().Unix(), ActualReturn: 0.001,
	})
	if err := h.Handle(context.Background(), b); err != nil {
		t.Fatalf("stale settlement must be dropped, got %v", err)
	}
}

func TestOutcomesHandlerFeedsChampionSeries(t *testing.T) {
	m := newFakeMetrics()
	r := newRunningRunner(t, &fakeTradeLog{}, newFakeSnapshotStore(), m, nil)
	champions := NewChampionService(champion.NewRegistry("policy-champ"), m)
	if err := champions.RegisterChallenger("policy-x"); err != nil {
		t.Fatalf("register challenger: %v", err)
	}
	h := NewKafkaOutcomesHandler("outcomes", r, champions, &fakeRetryQueue{}, m)

	b, _ := json.Marshal(models.OutcomeEvent{
		StrategyID:   "strat-a",
		PolicyID:     "policy-x",
		Symbol:       "BTCUSDT",
		Timestamp:    time.Now().Unix(),
		ActualReturn: 0.002,
	})
	if err := h.Handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}

	perf, err := champions.Performance("policy-x")
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	if perf.SampleCount != 1 {
		t.Fatalf("expected 1 policy return, got %d", perf.SampleCount)
	}
}

func TestLiveTradesHandlerToleratesRolledBackStrategy(t *testing.T) {
	m := newFakeMetrics()
	svc := NewPromotionService(promotionConfig(), newFakeEventLog(), &fakePublisher{}, &fakeTradeLog{}, m)
	ctx := context.Background()
	if err := svc.Promote(ctx, approved("strat-1")); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := svc.Rollback(ctx, "strat-1", "operator kill"); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	h := NewKafkaLiveTradesHandler("live-trades", svc, m)
	b, _ := json.Marshal(models.LiveTradeEvent{
		StrategyID: "strat-1", Symbol: "BTCUSDT", Side: "buy", Notional: 0.01, PnL: 0.001,
		Timestamp: time.Now().Unix(),
	})
	// fills can trail a rollback; they must not error the consumer
	if err := h.Handle(context.Background(), b); err != nil {
		t.Fatalf("trailing fill must be dropped, got %v", err)
	}
}

func TestOutcomeRetryJobDropsFinishedRun(t *testing.T) {
	m := newFakeMetrics()
	r := newRunningRunner(t, &fakeTradeLog{}, newFakeSnapshotStore(), m, nil)
	v, _ := r.Validator("strat-a")
	v.StopValidation()

	job := NewOutcomeRetryJob(r)
	// the queue hands payloads back as generic maps after its JSON round trip
	payload := map[string]interface{}{
		"strategy_id":   "strat-a",
		"symbol":        "BTCUSDT",
		"ts":            time.Now().Unix(),
		"actual_return": 0.001,
	}
	if err := job.Handle(context.Background(), payload); err != nil {
		t.Fatalf("finished run settlement must be dropped, got %v", err)
	}
}
