package services

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/services/security"
	"github.com/lac-hong-legacy/lms_api/shared"
	"github.com/rs/zerolog/log"
)

// RateLimitService turns the security suite into fiber middleware.
type RateLimitService struct {
	appContext.DefaultService

	securitySvc *SecurityService
	now         func() time.Time
}

const RATE_LIMIT_SVC = "rate_limit_svc"

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.now = time.Now
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.securitySvc = svc.Service(SECURITY_SVC).(*SecurityService)
	return nil
}

func (svc *RateLimitService) suite() *security.Suite {
	return svc.securitySvc.Suite()
}

// ==================== MIDDLEWARE FUNCTIONS ====================

// Guard runs the DDoS guard on every request.
func (svc *RateLimitService) Guard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		decision := svc.suite().Guard.CheckRequest(c.UserContext(), getClientIP(c), c.Get(fiber.HeaderUserAgent), nil)
		if decision.Allowed {
			return c.Next()
		}

		response := map[string]interface{}{
			"error":      decision.Reason,
			"risk_score": decision.RiskScore,
		}
		if decision.BlockedUntil != nil {
			retryAfter := svc.retryAfter(*decision.BlockedUntil)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			response["blocked_until"] = decision.BlockedUntil.Unix()
			response["retry_after"] = retryAfter
		}

		if isBlockReason(decision.Reason) {
			return shared.ResponseJSON(c, http.StatusForbidden, "Access denied", response)
		}
		return shared.ResponseJSON(c, http.StatusTooManyRequests, "Too many requests. Please slow down.", response)
	}
}

// RateLimit creates a rate limiting middleware for an action preset. The
// outcome of the wrapped handler is fed back to the limiter: 2xx/3xx count as
// success, 4xx/5xx as failure, and failures are reported to the monitor.
func (svc *RateLimitService) RateLimit(action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return svc.limit(c, action, svc.getIdentifier(c, action))
	}
}

// IPRateLimit applies general API rate limiting by client address.
func (svc *RateLimitService) IPRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return svc.limit(c, security.ActionAPI, shared.IPIdentifier(getClientIP(c)))
	}
}

// UserBasedRateLimit limits by authenticated user, falling back to the client address.
func (svc *RateLimitService) UserBasedRateLimit(action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := shared.IPIdentifier(getClientIP(c))
		if userID, ok := c.Locals(shared.UserID).(string); ok && userID != "" {
			identifier = shared.UserIdentifier(userID)
		}
		return svc.limit(c, action, identifier)
	}
}

func (svc *RateLimitService) limit(c *fiber.Ctx, action, identifier string) error {
	ctx := c.UserContext()
	suite := svc.suite()

	if status := suite.Limiter.IsBlocked(ctx, identifier); status.Blocked {
		return svc.handleBlocked(c, status)
	}

	result, err := suite.Limiter.CheckRateLimit(ctx, identifier, action, nil)
	if err != nil {
		// Only a missing preset gets here; serve the request rather than fail it.
		log.Error().Err(err).Str("action", action).Msg("Rate limit check failed")
		return c.Next()
	}

	svc.addRateLimitHeaders(c, action, result)
	if !result.Allowed {
		svc.reportActivity(ctx, identifier, action, model.SeverityMedium, map[string]any{
			"reason":     "rate_limit_exceeded",
			"total_hits": result.TotalHits,
			"path":       c.Path(),
		})
		return svc.handleRateLimitExceeded(c, action, result)
	}

	err = c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else {
			status = http.StatusInternalServerError
		}
	}

	if status < http.StatusBadRequest {
		_ = suite.Limiter.RecordSuccess(ctx, identifier, action)
	} else {
		_ = suite.Limiter.RecordFailure(ctx, identifier, action)
		if status < http.StatusInternalServerError {
			svc.reportActivity(ctx, identifier, action, model.SeverityLow, map[string]any{
				"reason": "request_failed",
				"status": status,
				"path":   c.Path(),
			})
		}
	}
	return err
}

func (svc *RateLimitService) reportActivity(ctx context.Context, identifier, action string, severity model.Severity, details map[string]any) {
	err := svc.suite().Monitor.ReportSuspiciousActivity(ctx, model.SuspiciousActivity{
		Identifier: identifier,
		Type:       action,
		Severity:   severity,
		Details:    details,
	})
	if err != nil {
		log.Warn().Err(err).Str("identifier", identifier).Str("action", action).Msg("Failed to report suspicious activity")
	}
}

// ==================== HELPER FUNCTIONS ====================

// getIdentifier keys payment and OTP limits on the signed-in user and everything else on the address.
func (svc *RateLimitService) getIdentifier(c *fiber.Ctx, action string) string {
	switch action {
	case security.ActionPayment, security.ActionOTP:
		if userID, ok := c.Locals(shared.UserID).(string); ok && userID != "" {
			return shared.UserIdentifier(userID)
		}
	}
	return shared.IPIdentifier(getClientIP(c))
}

func (svc *RateLimitService) addRateLimitHeaders(c *fiber.Ctx, action string, result *dto.RateLimitResult) {
	if cfg, ok := svc.suite().Limiter.Config(action); ok {
		c.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
	}
	c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

	if !result.Allowed {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(svc.retryAfter(result.ResetTime)))
	}
}

func (svc *RateLimitService) retryAfter(until time.Time) int {
	return max(1, int(math.Ceil(until.Sub(svc.now()).Seconds())))
}

func (svc *RateLimitService) handleRateLimitExceeded(c *fiber.Ctx, action string, result *dto.RateLimitResult) error {
	message := getRateLimitMessage(action)

	return shared.ResponseJSON(c, http.StatusTooManyRequests, message, map[string]interface{}{
		"error":       "Rate limit exceeded",
		"message":     message,
		"reset_time":  result.ResetTime.Unix(),
		"retry_after": svc.retryAfter(result.ResetTime),
	})
}

func (svc *RateLimitService) handleBlocked(c *fiber.Ctx, status dto.BlockStatus) error {
	response := map[string]interface{}{
		"error":  "Access temporarily blocked",
		"reason": status.Reason,
	}
	if status.ExpiresAt != nil {
		retryAfter := svc.retryAfter(*status.ExpiresAt)
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
		response["blocked_until"] = status.ExpiresAt.Unix()
		response["retry_after"] = retryAfter
	}
	return shared.ResponseJSON(c, http.StatusForbidden, "Access denied", response)
}

func getRateLimitMessage(action string) string {
	messages := map[string]string{
		security.ActionLogin:         "Too many login attempts. Please try again later.",
		security.ActionRegistration:  "Too many registration attempts. Please try again later.",
		security.ActionPasswordReset: "Too many password reset requests. Please try again later.",
		security.ActionOTP:           "Too many verification code requests. Please wait before requesting another.",
		security.ActionPayment:       "Too many payment attempts. Please try again later.",
		security.ActionAPI:           "Too many requests. Please slow down.",
	}

	if message, exists := messages[action]; exists {
		return message
	}

	return "Too many requests. Please try again later."
}

func isBlockReason(reason string) bool {
	return reason == security.ReasonBlacklisted ||
		reason == security.ReasonHighRisk ||
		strings.HasPrefix(reason, security.ReasonBlocked)
}

// ==================== UTILITY FUNCTIONS ====================

func getClientIP(c *fiber.Ctx) string {
	// Check for forwarded IP first (for load balancers/proxies)
	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}

	// Fall back to remote address
	addr := c.Context().RemoteAddr().String()
	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return ip
}
