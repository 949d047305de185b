package api

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	models "ModelGate/internal/domain/models"
	gatemetrics "ModelGate/internal/service/metrics"
	"ModelGate/internal/service/ratelimit"
	"ModelGate/internal/services/champion"
	"ModelGate/internal/services/conformal"
	"ModelGate/internal/services/promotion"
	"ModelGate/internal/services/shadow"
	"ModelGate/internal/usecase"
	pkgcache "ModelGate/pkg/cache"
	xhttp "ModelGate/pkg/http"
	xlogger "ModelGate/pkg/logger"

	"github.com/labstack/echo/v4"
)

// statusCacheTTL bounds staleness of the cached promotion status. The
// execution layer polls this endpoint at live frequency.
const statusCacheTTL = time.Second

// GateEchoHandler exposes the operator control plane over Echo.
type GateEchoHandler struct {
	logger     *xlogger.Logger
	runner     *usecase.ShadowRunner
	promotions *usecase.PromotionService
	champions  *usecase.ChampionService
	cache      pkgcache.Store
	limiter    *ratelimit.Limiter
}

func NewGateEchoHandler(
	logger *xlogger.Logger,
	runner *usecase.ShadowRunner,
	promotions *usecase.PromotionService,
	champions *usecase.ChampionService,
) *GateEchoHandler {
	return &GateEchoHandler{
		logger:     logger,
		runner:     runner,
		promotions: promotions,
		champions:  champions,
		cache:      pkgcache.NewMemory(),
		limiter:    ratelimit.New(),
	}
}

func (h *GateEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.POST("/strategies", h.RegisterStrategy)
	g.POST("/validation/start", h.StartValidation)
	g.POST("/validation/stop", h.StopValidation)
	g.GET("/validation/result", h.ValidationResult)

	g.GET("/predictor/diagnostics", h.Diagnostics)
	g.GET("/predictor/state", h.ExportState)
	g.POST("/predictor/state", h.ImportState)
	g.POST("/predictor/snapshot", h.SaveSnapshot)
	g.POST("/predictor/restore", h.RestoreSnapshot)

	g.POST("/promotion/initialize", h.InitializePromotion)
	g.POST("/promotion/advance", h.AdvanceStep)
	g.POST("/promotion/rollback", h.Rollback)
	g.POST("/promotion/stop", h.StopLiveTrading)
	g.GET("/promotion/status", h.PromotionStatus)
	g.GET("/promotion/history", h.PromotionHistory)

	g.POST("/champion/challengers", h.RegisterChallenger)
	g.POST("/champion/returns", h.AddPolicyReturn)
	g.POST("/champion/evaluate", h.EvaluatePromotion)
	g.GET("/champion/policies", h.Policies)
}

func (h *GateEchoHandler) RegisterStrategy(c echo.Context) error {
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.runner.Register(req.Strategy); err != nil {
		return h.gateError(c, err)
	}
	return xhttp.CreatedResponse(c, map[string]string{"strategy": req.Strategy})
}

func (h *GateEchoHandler) StartValidation(c echo.Context) error {
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.runner.Validator(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	if err := v.StartValidation(); err != nil {
		return h.gateError(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"strategy": req.Strategy, "state": "running"})
}

func (h *GateEchoHandler) StopValidation(c echo.Context) error {
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.runner.Validator(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	v.StopValidation()
	return xhttp.SuccessResponse(c, map[string]string{"strategy": req.Strategy, "state": "stopped"})
}

func (h *GateEchoHandler) ValidationResult(c echo.Context) error {
	req := &models.ValidationResultRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.runner.Validator(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	res := v.GenerateValidationResult()
	gatemetrics.ValidationVerdicts.WithLabelValues(req.Strategy, strconv.FormatBool(res.Approved)).Inc()
	return xhttp.SuccessResponse(c, res)
}

func (h *GateEchoHandler) Diagnostics(c echo.Context) error {
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	diag, err := h.runner.Diagnostics(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	gatemetrics.CoverageGap.WithLabelValues(req.Strategy).Set(diag.CoverageGap)
	return xhttp.SuccessResponse(c, diag)
}

func (h *GateEchoHandler) ExportState(c echo.Context) error {
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.runner.Validator(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	state, err := v.Predictor().ExportState()
	if err != nil {
		h.logger.Error("export state error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, json.RawMessage(state))
}

func (h *GateEchoHandler) ImportState(c echo.Context) error {
	req := &models.StateImportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.runner.Validator(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	if err := v.Predictor().ImportState(req.State); err != nil {
		return h.gateError(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"strategy": req.Strategy, "state": "imported"})
}

func (h *GateEchoHandler) SaveSnapshot(c echo.Context) error {
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.runner.SaveSnapshot(c.Request().Context(), req.Strategy); err != nil {
		return h.gateError(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"strategy": req.Strategy, "snapshot": "saved"})
}

func (h *GateEchoHandler) RestoreSnapshot(c echo.Context) error {
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.runner.RestoreSnapshot(c.Request().Context(), req.Strategy); err != nil {
		return h.gateError(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"strategy": req.Strategy, "snapshot": "restored"})
}

func (h *GateEchoHandler) InitializePromotion(c echo.Context) error {
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.runner.Validator(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	res := v.GenerateValidationResult()
	if err := h.promotions.Promote(c.Request().Context(), res); err != nil {
		return h.gateError(c, err)
	}
	status, err := h.promotions.Status(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	h.cacheStatus(c, req.Strategy, status)
	return xhttp.SuccessResponse(c, status)
}

func (h *GateEchoHandler) AdvanceStep(c echo.Context) error {
	req := &models.AdvanceStepRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	advanced, err := h.promotions.Advance(c.Request().Context(), req.Strategy, req.AdminOverride)
	if err != nil {
		return h.gateError(c, err)
	}
	status, err := h.promotions.Status(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	h.cacheStatus(c, req.Strategy, status)
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"advanced": advanced,
		"status":   status,
	})
}

func (h *GateEchoHandler) Rollback(c echo.Context) error {
	req := &models.RollbackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.promotions.Rollback(c.Request().Context(), req.Strategy, req.Reason); err != nil {
		return h.gateError(c, err)
	}
	status, err := h.promotions.Status(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	h.cacheStatus(c, req.Strategy, status)
	return xhttp.SuccessResponse(c, status)
}

func (h *GateEchoHandler) StopLiveTrading(c echo.Context) error {
	req := &models.StopTradingRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	reason := req.Reason
	if reason == "" {
		reason = "operator stop"
	}
	if err := h.promotions.Stop(c.Request().Context(), req.Strategy, reason); err != nil {
		return h.gateError(c, err)
	}
	status, err := h.promotions.Status(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	h.cacheStatus(c, req.Strategy, status)
	return xhttp.SuccessResponse(c, status)
}

// PromotionStatus is the hot read path: execution polls it to size orders.
// Responses are cached briefly and rate-limited per client ip.
func (h *GateEchoHandler) PromotionStatus(c echo.Context) error {
	if !h.limiter.Allow(c.RealIP(), 50, 25) {
		return echo.NewHTTPError(429, "rate limit exceeded")
	}
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if status, ok := h.cachedStatus(c, req.Strategy); ok {
		return xhttp.SuccessResponse(c, status)
	}

	status, err := h.promotions.Status(req.Strategy)
	if err != nil {
		return h.gateError(c, err)
	}
	h.cacheStatus(c, req.Strategy, status)
	return xhttp.SuccessResponse(c, status)
}

func (h *GateEchoHandler) PromotionHistory(c echo.Context) error {
	req := &models.PromotionHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	events, err := h.promotions.History(c.Request().Context(), req.Strategy, req.Limit)
	if err != nil {
		return h.gateError(c, err)
	}
	return xhttp.ListResponse(c, events, int64(len(events)))
}

func (h *GateEchoHandler) RegisterChallenger(c echo.Context) error {
	req := &models.ChallengerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.champions.RegisterChallenger(req.PolicyID); err != nil {
		return h.gateError(c, err)
	}
	return xhttp.CreatedResponse(c, map[string]string{"policy_id": req.PolicyID})
}

func (h *GateEchoHandler) AddPolicyReturn(c echo.Context) error {
	req := &models.PolicyReturnRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.champions.AddReturn(req.PolicyID, req.Return); err != nil {
		return h.gateError(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"policy_id": req.PolicyID})
}

func (h *GateEchoHandler) EvaluatePromotion(c echo.Context) error {
	req := &models.EvaluatePromotionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.champions.Evaluate(req.Challenger)
	if err != nil {
		return h.gateError(c, err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *GateEchoHandler) Policies(c echo.Context) error {
	policies := h.champions.Policies()
	return xhttp.ListResponse(c, policies, int64(len(policies)))
}

func statusCacheKey(strategy string) string { return "promotion_status:" + strategy }

func (h *GateEchoHandler) cacheStatus(c echo.Context, strategy string, status models.PromotionStatus) {
	if b, err := json.Marshal(status); err == nil {
		_ = h.cache.Set(c.Request().Context(), statusCacheKey(strategy), b, statusCacheTTL)
	}
}

func (h *GateEchoHandler) cachedStatus(c echo.Context, strategy string) (models.PromotionStatus, bool) {
	b, ok, err := h.cache.Get(c.Request().Context(), statusCacheKey(strategy))
	if err != nil || !ok {
		return models.PromotionStatus{}, false
	}
	var status models.PromotionStatus
	if err := json.Unmarshal(b, &status); err != nil {
		return models.PromotionStatus{}, false
	}
	return status, true
}

// gateError maps domain sentinel errors onto HTTP responses.
func (h *GateEchoHandler) gateError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrUnknownStrategy),
		errors.Is(err, champion.ErrUnknownPolicy):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	case errors.Is(err, conformal.ErrInvalidConfiguration),
		errors.Is(err, conformal.ErrDimensionMismatch),
		errors.Is(err, shadow.ErrAlreadyRunning),
		errors.Is(err, shadow.ErrNotRunning),
		errors.Is(err, promotion.ErrNotApproved),
		errors.Is(err, promotion.ErrNotLive),
		errors.Is(err, champion.ErrDuplicatePolicy),
		errors.Is(err, champion.ErrAlreadyChampion),
		errors.Is(err, champion.ErrInsufficientSamples):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	default:
		h.logger.Error("control plane error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
}
