package models

import "encoding/json"

// Requests for control-plane HTTP endpoints. Defined in domain for
// consistency and reuse.

type StrategyRequest struct {
	Strategy string `query:"strategy" json:"strategy" validate:"required"`
}

type ValidationResultRequest struct {
	Strategy string `query:"strategy" json:"strategy" validate:"required"`
}

type AdvanceStepRequest struct {
	Strategy      string `json:"strategy" validate:"required"`
	AdminOverride bool   `json:"admin_override" default:"false"`
}

type RollbackRequest struct {
	Strategy string `json:"strategy" validate:"required"`
	Reason   string `json:"reason" validate:"required,min=3"`
}

type PromotionHistoryRequest struct {
	Strategy string `query:"strategy" json:"strategy" validate:"required"`
	Limit    int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type StateImportRequest struct {
	Strategy string          `json:"strategy" validate:"required"`
	State    json.RawMessage `json:"state" validate:"required"`
}

type StopTradingRequest struct {
	Strategy string `json:"strategy" validate:"required"`
	Reason   string `json:"reason"`
}

type ChallengerRequest struct {
	PolicyID string `json:"policy_id" validate:"required"`
}

type PolicyReturnRequest struct {
	PolicyID string  `json:"policy_id" validate:"required"`
	Return   float64 `json:"return"`
}

type EvaluatePromotionRequest struct {
	Challenger string `json:"challenger" validate:"required"`
}
