package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/rs/zerolog/log"

	"github.com/lac-hong-legacy/lms_api/docs"
	"github.com/lac-hong-legacy/lms_api/services/handlers"
	"github.com/lac-hong-legacy/lms_api/services/security"
	"github.com/lac-hong-legacy/lms_api/shared"
)

type HttpService struct {
	context.DefaultService

	authMw       *AuthMiddleware
	rateLimitSvc *RateLimitService
	securitySvc  *SecurityService

	port   int
	server *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.authMw = svc.Service(AUTH_MIDDLEWARE_SVC).(*AuthMiddleware)
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.securitySvc = svc.Service(SECURITY_SVC).(*SecurityService)

	svc.server = svc.newApp()
	return svc.server.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: os.Getenv("LOG_LEVEL") == "INFO",
		JSONEncoder:           shared.JSON.Marshal,
		JSONDecoder:           shared.JSON.Unmarshal,
		ErrorHandler:          svc.HandleError,
	})
	docs.SwaggerInfo.BasePath = ""

	app.Use(recover.New())
	if os.Getenv("LOG_LEVEL") == "TRACE" {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	if monitoringSvc, ok := svc.Service(MONITORING_SVC).(*MonitoringService); ok {
		app.Use(MonitoringMiddleware(monitoringSvc))
	}

	//Validation endpoints
	app.Get("/ping", svc.ping)
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Every other request goes through the DDoS guard.
	app.Use(svc.rateLimitSvc.Guard())

	v1 := app.Group("/api/v1", svc.rateLimitSvc.IPRateLimit())
	v1.Get("/ping", svc.ping)

	svc.registerSecurityRoutes(v1)

	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "page not found")
	})

	return app
}

func (svc *HttpService) registerSecurityRoutes(v1 fiber.Router) {
	h := handlers.NewSecurityHandler(svc.securitySvc.Suite(), svc.securitySvc.Audit())

	admin := v1.Group("/admin/security",
		svc.authMw.RequiredAuth(),
		svc.authMw.RequireRole(shared.RoleAdmin),
		svc.rateLimitSvc.UserBasedRateLimit(security.ActionAPI),
	)

	admin.Get("/alerts", h.GetAlerts)
	admin.Post("/alerts/:alertId/acknowledge", h.AcknowledgeAlert)
	admin.Post("/activity", h.ReportActivity)
	admin.Get("/rules", h.GetRules)
	admin.Get("/statistics", h.GetStatistics)

	admin.Post("/blocks", h.BlockIdentifier)
	admin.Get("/blocks/:identifier", h.GetBlockStatus)
	admin.Delete("/blocks/:identifier", h.UnblockIdentifier)

	admin.Get("/rate-limits", h.GetRateLimitConfigs)
	admin.Put("/rate-limits/:action", h.UpdateRateLimitConfig)
	admin.Get("/rate-limits/:action/:identifier", h.GetRateLimitStatus)
	admin.Delete("/rate-limits/:action/:identifier", h.ResetRateLimit)

	admin.Get("/abuse/:identifier", h.DetectAbuse)
	admin.Get("/attacks", h.GetAttackPatterns)
	admin.Get("/ddos/config", h.GetDDoSConfig)
	admin.Put("/ddos/config", h.UpdateDDoSConfig)

	admin.Post("/cleanup", h.RunCleanup)
	admin.Get("/audit", h.GetAuditLogs)
}

func (svc *HttpService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "max-age=10")

	return shared.ResponseJSON(c, http.StatusOK, "Success", "pong")
}

// HandleError maps handler errors onto the shared response envelope.
func (svc *HttpService) HandleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	case errors.Is(err, security.ErrAlertNotFound):
		return shared.ResponseJSON(c, http.StatusNotFound, "Alert not found", nil)
	case security.IsConfigurationError(err):
		return shared.ResponseJSON(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, security.ErrStoreUnavailable):
		log.Error().Err(err).Str("path", c.Path()).Msg("Security store unavailable")
		return shared.ResponseJSON(c, http.StatusServiceUnavailable, "Security store unavailable", nil)
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled request error")
	return shared.ResponseInternalError(c, err)
}
