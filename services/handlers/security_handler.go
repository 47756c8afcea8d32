package handlers

import (
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/services/security"
	"github.com/lac-hong-legacy/lms_api/shared"
)

type SecurityHandler struct {
	suite *security.Suite
	audit AuditLogReader
	now   func() time.Time
}

func NewSecurityHandler(suite *security.Suite, audit AuditLogReader) *SecurityHandler {
	return &SecurityHandler{
		suite: suite,
		audit: audit,
		now:   time.Now,
	}
}

func validationFailed(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.CreateValidationErrorResponse(err))
}

func identifierParam(c *fiber.Ctx) (string, bool) {
	identifier, err := url.PathUnescape(c.Params("identifier"))
	if err != nil || !shared.IsIdentifier(identifier) {
		return "", false
	}
	return identifier, true
}

// ==================== ALERTS ====================

// @Summary List security alerts
// @Description Alerts raised by the rule engine, newest first
// @Tags security
// @Produce json
// @Security Bearer
// @Param acknowledged query bool false "Filter by acknowledgement"
// @Param severity query string false "Filter by severity" Enums(low, medium, high, critical)
// @Param limit query int false "Max alerts" default(100)
// @Success 200 {object} shared.Response{data=dto.AlertListResponse}
// @Router /api/v1/admin/security/alerts [get]
func (h *SecurityHandler) GetAlerts(c *fiber.Ctx) error {
	var filter dto.AlertFilter
	if err := c.QueryParser(&filter); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Invalid query", err.Error())
	}
	if err := filter.Validate(); err != nil {
		return validationFailed(c, err)
	}

	alerts, err := h.suite.Monitor.GetAlerts(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return shared.ResponseOK(c, alerts)
}

// @Summary Acknowledge an alert
// @Tags security
// @Produce json
// @Security Bearer
// @Param alertId path string true "Alert ID"
// @Success 200 {object} shared.Response{data=model.SecurityAlert}
// @Failure 404 {object} shared.Response
// @Router /api/v1/admin/security/alerts/{alertId}/acknowledge [post]
func (h *SecurityHandler) AcknowledgeAlert(c *fiber.Ctx) error {
	alertID := c.Params("alertId")
	if alertID == "" {
		return shared.ResponseBadRequest(c, "Alert ID is required")
	}

	by, _ := c.Locals(shared.UserID).(string)
	alert, err := h.suite.Monitor.AcknowledgeAlert(c.UserContext(), alertID, shared.UserIdentifier(by))
	if err != nil {
		return err
	}
	return shared.ResponseJSON(c, http.StatusOK, "Alert acknowledged", alert)
}

// @Summary Report suspicious activity
// @Description Records an activity, counts the given metric series and evaluates alert rules
// @Tags security
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body dto.ReportActivityRequest true "Activity"
// @Success 202 {object} shared.Response
// @Router /api/v1/admin/security/activity [post]
func (h *SecurityHandler) ReportActivity(c *fiber.Ctx) error {
	var req dto.ReportActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Invalid request", err.Error())
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}
	for _, field := range req.Metrics {
		if !security.KnownField(field) {
			return shared.ResponseJSON(c, http.StatusBadRequest, "Unknown metric", field)
		}
	}

	ctx := c.UserContext()
	for _, field := range req.Metrics {
		if err := h.suite.Tracker.Track(ctx, req.Identifier, field); err != nil {
			return err
		}
	}

	err := h.suite.Monitor.ReportSuspiciousActivity(ctx, model.SuspiciousActivity{
		Identifier: req.Identifier,
		Type:       req.Type,
		Severity:   req.Severity,
		Details:    req.Details,
	})
	if err != nil {
		return err
	}
	return shared.ResponseJSON(c, http.StatusAccepted, "Activity recorded", nil)
}

// @Summary List alert rules
// @Tags security
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=[]security.AlertRule}
// @Router /api/v1/admin/security/rules [get]
func (h *SecurityHandler) GetRules(c *fiber.Ctx) error {
	return shared.ResponseOK(c, h.suite.Monitor.Rules())
}

// ==================== BLOCKS ====================

// @Summary Block status of an identifier
// @Tags security
// @Produce json
// @Security Bearer
// @Param identifier path string true "ip:<addr> or user:<id>"
// @Success 200 {object} shared.Response{data=dto.BlockStatus}
// @Router /api/v1/admin/security/blocks/{identifier} [get]
func (h *SecurityHandler) GetBlockStatus(c *fiber.Ctx) error {
	identifier, ok := identifierParam(c)
	if !ok {
		return shared.ResponseBadRequest(c, "Invalid identifier")
	}
	return shared.ResponseOK(c, h.suite.Limiter.IsBlocked(c.UserContext(), identifier))
}

// @Summary Block an identifier
// @Tags security
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body dto.BlockRequest true "Block"
// @Success 201 {object} shared.Response{data=dto.BlockStatus}
// @Router /api/v1/admin/security/blocks [post]
func (h *SecurityHandler) BlockIdentifier(c *fiber.Ctx) error {
	var req dto.BlockRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Invalid request", err.Error())
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	duration, _ := time.ParseDuration(req.Duration)
	ctx := c.UserContext()
	if err := h.suite.Limiter.BlockIdentifier(ctx, req.Identifier, duration, req.Reason); err != nil {
		return err
	}
	return shared.ResponseJSON(c, http.StatusCreated, "Identifier blocked", h.suite.Limiter.IsBlocked(ctx, req.Identifier))
}

// @Summary Unblock an identifier
// @Tags security
// @Produce json
// @Security Bearer
// @Param identifier path string true "ip:<addr> or user:<id>"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/security/blocks/{identifier} [delete]
func (h *SecurityHandler) UnblockIdentifier(c *fiber.Ctx) error {
	identifier, ok := identifierParam(c)
	if !ok {
		return shared.ResponseBadRequest(c, "Invalid identifier")
	}
	if err := h.suite.Limiter.UnblockIdentifier(c.UserContext(), identifier); err != nil {
		return err
	}
	return shared.ResponseJSON(c, http.StatusOK, "Identifier unblocked", nil)
}

// ==================== RATE LIMITS ====================

// @Summary List rate limit presets
// @Tags security
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=[]dto.RateLimitConfigResponse}
// @Router /api/v1/admin/security/rate-limits [get]
func (h *SecurityHandler) GetRateLimitConfigs(c *fiber.Ctx) error {
	configs := h.suite.Limiter.Configs()
	out := make([]dto.RateLimitConfigResponse, 0, len(configs))
	for action, cfg := range configs {
		out = append(out, toConfigResponse(action, cfg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return shared.ResponseOK(c, out)
}

// @Summary Update a rate limit preset
// @Description Omitted fields keep their current value
// @Tags security
// @Accept json
// @Produce json
// @Security Bearer
// @Param action path string true "Action" example(login)
// @Param request body dto.UpdateRateLimitConfigRequest true "Changes"
// @Success 200 {object} shared.Response{data=dto.RateLimitConfigResponse}
// @Router /api/v1/admin/security/rate-limits/{action} [put]
func (h *SecurityHandler) UpdateRateLimitConfig(c *fiber.Ctx) error {
	action := c.Params("action")
	cfg, ok := h.suite.Limiter.Config(action)
	if !ok {
		return shared.ResponseNotFound(c)
	}

	var req dto.UpdateRateLimitConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Invalid request", err.Error())
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	if req.MaxRequests > 0 {
		cfg.MaxRequests = req.MaxRequests
	}
	if req.Window != "" {
		cfg.Window, _ = time.ParseDuration(req.Window)
	}
	if req.SkipSuccessfulRequests != nil {
		cfg.SkipSuccessfulRequests = *req.SkipSuccessfulRequests
	}
	if req.SkipFailedRequests != nil {
		cfg.SkipFailedRequests = *req.SkipFailedRequests
	}

	if err := h.suite.Limiter.SetConfig(action, cfg); err != nil {
		return err
	}
	return shared.ResponseJSON(c, http.StatusOK, "Rate limit updated", toConfigResponse(action, cfg))
}

// @Summary Rate limit status of an identifier
// @Description Reads the current window without counting an attempt
// @Tags security
// @Produce json
// @Security Bearer
// @Param action path string true "Action"
// @Param identifier path string true "ip:<addr> or user:<id>"
// @Success 200 {object} shared.Response{data=dto.RateLimitResult}
// @Router /api/v1/admin/security/rate-limits/{action}/{identifier} [get]
func (h *SecurityHandler) GetRateLimitStatus(c *fiber.Ctx) error {
	identifier, ok := identifierParam(c)
	if !ok {
		return shared.ResponseBadRequest(c, "Invalid identifier")
	}
	status, err := h.suite.Limiter.GetRateLimitStatus(c.UserContext(), identifier, c.Params("action"))
	if err != nil {
		return err
	}
	return shared.ResponseOK(c, status)
}

// @Summary Reset the rate limit window of an identifier
// @Tags security
// @Produce json
// @Security Bearer
// @Param action path string true "Action"
// @Param identifier path string true "ip:<addr> or user:<id>"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/security/rate-limits/{action}/{identifier} [delete]
func (h *SecurityHandler) ResetRateLimit(c *fiber.Ctx) error {
	identifier, ok := identifierParam(c)
	if !ok {
		return shared.ResponseBadRequest(c, "Invalid identifier")
	}
	if err := h.suite.Limiter.ResetRateLimit(c.UserContext(), identifier, c.Params("action")); err != nil {
		return err
	}
	return shared.ResponseJSON(c, http.StatusOK, "Rate limit reset", nil)
}

func toConfigResponse(action string, cfg security.RateLimitConfig) dto.RateLimitConfigResponse {
	return dto.RateLimitConfigResponse{
		Action:                 action,
		MaxRequests:            cfg.MaxRequests,
		Window:                 cfg.Window.String(),
		SkipSuccessfulRequests: cfg.SkipSuccessfulRequests,
		SkipFailedRequests:     cfg.SkipFailedRequests,
	}
}

// ==================== DETECTION ====================

// @Summary Abuse report for an identifier
// @Tags security
// @Produce json
// @Security Bearer
// @Param identifier path string true "ip:<addr> or user:<id>"
// @Success 200 {object} shared.Response{data=dto.AbuseReport}
// @Router /api/v1/admin/security/abuse/{identifier} [get]
func (h *SecurityHandler) DetectAbuse(c *fiber.Ctx) error {
	identifier, ok := identifierParam(c)
	if !ok {
		return shared.ResponseBadRequest(c, "Invalid identifier")
	}
	return shared.ResponseOK(c, h.suite.Abuse.DetectAbuse(c.UserContext(), identifier))
}

// @Summary Detected attack patterns
// @Tags security
// @Produce json
// @Security Bearer
// @Param hours query int false "Look-back in hours" default(24)
// @Success 200 {object} shared.Response{data=[]model.AttackPattern}
// @Router /api/v1/admin/security/attacks [get]
func (h *SecurityHandler) GetAttackPatterns(c *fiber.Ctx) error {
	var query dto.AttackPatternQuery
	if err := c.QueryParser(&query); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Invalid query", err.Error())
	}
	if err := query.Validate(); err != nil {
		return validationFailed(c, err)
	}
	if query.Hours == 0 {
		query.Hours = 24
	}

	since := h.now().Add(-time.Duration(query.Hours) * time.Hour)
	patterns, err := h.suite.Guard.AttackPatterns(c.UserContext(), since)
	if err != nil {
		return err
	}
	return shared.ResponseOK(c, patterns)
}

// ==================== STATISTICS & MAINTENANCE ====================

// @Summary Security statistics
// @Tags security
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=dto.SecurityStatistics}
// @Router /api/v1/admin/security/statistics [get]
func (h *SecurityHandler) GetStatistics(c *fiber.Ctx) error {
	stats, err := h.suite.Monitor.GetSecurityStatistics(c.UserContext())
	if err != nil {
		return err
	}
	return shared.ResponseOK(c, stats)
}

// @Summary Run security cleanup
// @Description Drops expired alerts, activities, attack patterns, blocks, stale rate limit keys and old audit logs
// @Tags security
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=dto.CleanupReport}
// @Router /api/v1/admin/security/cleanup [post]
func (h *SecurityHandler) RunCleanup(c *fiber.Ctx) error {
	report, err := h.suite.RunCleanup(c.UserContext())
	if err != nil {
		return err
	}
	return shared.ResponseJSON(c, http.StatusOK, "Cleanup completed", report)
}

// @Summary Query the security audit log
// @Tags security
// @Produce json
// @Security Bearer
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param identifier query string false "Identifier"
// @Param action query string false "Audit action"
// @Param severity query string false "Severity" Enums(low, medium, high, critical)
// @Success 200 {object} shared.Response{data=dto.AuditLogResponse}
// @Router /api/v1/admin/security/audit [get]
func (h *SecurityHandler) GetAuditLogs(c *fiber.Ctx) error {
	var query dto.AuditLogQuery
	if err := c.QueryParser(&query); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Invalid query", err.Error())
	}
	if err := query.Validate(); err != nil {
		return validationFailed(c, err)
	}
	query.PaginationRequest = query.PaginationRequest.Normalize()

	logs, total, err := h.audit.List(c.UserContext(), query)
	if err != nil {
		return err
	}
	return shared.ResponseOK(c, dto.AuditLogResponse{
		Logs:       logs,
		Pagination: dto.NewPaginationResponse(query.Page, query.Limit, total),
	})
}

// ==================== DDOS ====================

// @Summary DDoS guard config
// @Tags security
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=security.DDoSConfig}
// @Router /api/v1/admin/security/ddos/config [get]
func (h *SecurityHandler) GetDDoSConfig(c *fiber.Ctx) error {
	return shared.ResponseOK(c, h.suite.Guard.Config())
}

// @Summary Update the DDoS guard config
// @Description Omitted fields keep their current value; an empty list clears it
// @Tags security
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body dto.UpdateDDoSConfigRequest true "Changes"
// @Success 200 {object} shared.Response{data=security.DDoSConfig}
// @Failure 400 {object} shared.Response
// @Router /api/v1/admin/security/ddos/config [put]
func (h *SecurityHandler) UpdateDDoSConfig(c *fiber.Ctx) error {
	var req dto.UpdateDDoSConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Invalid request", err.Error())
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	cfg := h.suite.Guard.Config()
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if req.Whitelist != nil {
		cfg.Whitelist = req.Whitelist
	}
	if req.Blacklist != nil {
		cfg.Blacklist = req.Blacklist
	}
	if req.IPMaxRequests > 0 {
		cfg.IPRateLimit.MaxRequests = req.IPMaxRequests
	}
	if req.GlobalMaxRequests > 0 {
		cfg.GlobalRateLimit.MaxRequests = req.GlobalMaxRequests
	}
	if req.AutoBlockEnabled != nil {
		cfg.AutoBlock.Enabled = *req.AutoBlockEnabled
	}
	if req.AutoBlockRiskThreshold > 0 {
		cfg.AutoBlock.RiskThreshold = req.AutoBlockRiskThreshold
	}

	if err := h.suite.Guard.UpdateConfig(cfg); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Invalid DDoS config", err.Error())
	}
	return shared.ResponseJSON(c, http.StatusOK, "DDoS config updated", h.suite.Guard.Config())
}
