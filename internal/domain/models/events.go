package models

import "time"

// PredictionEvent is an upstream model prediction for a live market event.
// Timestamp is unix seconds (ms tolerated upstream, normalized by handlers).
type PredictionEvent struct {
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Features   []float64 `json:"features"`
	Prediction float64   `json:"prediction"`
	Timestamp  int64     `json:"ts"`
	Regime     string    `json:"regime,omitempty"`
}

// OutcomeEvent is a realized return from the settlement stream. It settles
// the shadow trade recorded for (strategy, symbol) near Timestamp and feeds
// the champion/challenger return series.
type OutcomeEvent struct {
	StrategyID   string  `json:"strategy_id"`
	PolicyID     string  `json:"policy_id,omitempty"`
	Symbol       string  `json:"symbol"`
	Timestamp    int64   `json:"ts"`
	ActualReturn float64 `json:"actual_return"`
}

// LiveTradeEvent is a settled live fill reported by the execution layer for
// a strategy running behind a promotion gate.
type LiveTradeEvent struct {
	StrategyID string  `json:"strategy_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // "buy" or "sell"
	Notional   float64 `json:"notional"`
	PnL        float64 `json:"pnl"`
	Timestamp  int64   `json:"ts"`
}

// DecisionEvent is published whenever a gate changes state, so downstream
// execution can re-read the authoritative notional cap.
type DecisionEvent struct {
	StrategyID string             `json:"strategy_id"`
	Type       PromotionEventType `json:"type"`
	Step       int                `json:"step"`
	Notional   float64            `json:"notional"`
	Reason     string             `json:"reason,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}
