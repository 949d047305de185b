package models

import "time"

// PolicyPerformance is a read-only snapshot of one policy's rolling
// performance in the champion/challenger registry.
type PolicyPerformance struct {
	PolicyID    string    `json:"policy_id"`
	SampleCount int       `json:"sample_count"`
	Sharpe      float64   `json:"sharpe"`
	WinRate     float64   `json:"win_rate"`
	MaxDrawdown float64   `json:"max_drawdown"` // on cumulative return
	IsChampion  bool      `json:"is_champion"`
	LastTStat   float64   `json:"last_t_stat"`
	LastPValue  float64   `json:"last_p_value"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EvaluationOutcome is the result of one champion/challenger hypothesis test.
type EvaluationOutcome struct {
	ChallengerID string    `json:"challenger_id"`
	ChampionID   string    `json:"champion_id"`
	SampleSize   int       `json:"sample_size"` // common trailing length tested
	TStat        float64   `json:"t_stat"`
	PValue       float64   `json:"p_value"`
	Promoted     bool      `json:"promoted"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}
