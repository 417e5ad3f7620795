// Package api assembles the HTTP server.
package api

import (
	"net/http"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/leaddesk/pkg/api/errors"
	custommw "github.com/jordanlanch/leaddesk/pkg/api/middleware"
	"github.com/jordanlanch/leaddesk/pkg/auth"
	"github.com/jordanlanch/leaddesk/pkg/container"
	custommiddleware "github.com/jordanlanch/leaddesk/pkg/middleware"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options tunes router construction.
type Options struct {
	// Sentry installs the Sentry middleware; sentry.Init must have run.
	Sentry bool
	// RateLimiter overrides the limiter built from config.
	RateLimiter *custommiddleware.RateLimiter
}

// NewRouter builds the echo instance with every route registered.
func NewRouter(c *container.Container, opts Options) *echo.Echo {
	cfg := c.Config
	log := c.Logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}
		_ = errors.Respond(ctx, log, err)
	}

	limiter := opts.RateLimiter
	if limiter == nil {
		limiter = custommiddleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}

	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				log.Warn("request failed", append(fields, "error", v.Error)...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if opts.Sentry {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	e.Use(c.Metrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(cfg.CORS.Origins())))
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.DefaultSecurityHeadersConfig()))
	e.Use(middleware.BodyLimit("6M"))

	// Public
	e.GET("/health", c.HealthHandler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})))
	e.GET("/", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, map[string]any{
			"name":        "LeadDesk API",
			"status":      "running",
			"environment": cfg.API.Environment,
		})
	})

	tokens := auth.TokenConfig{
		Secret:          cfg.JWT.Secret,
		Issuer:          cfg.JWT.Issuer,
		ExpirationHours: cfg.JWT.ExpirationHours,
	}
	authed := custommw.JWTMiddleware(tokens, c.Users)
	rateLimited := limiter.RateLimitMiddleware()
	managers := custommiddleware.RequireManager()
	admins := custommiddleware.RequireAdmin()

	v1 := e.Group("/api/v1")

	// Export links are opened by browsers, so the token may come from the query string.
	v1.GET("/enquiries/export", c.EnquiryHandler.Export, custommw.JWTFromQueryOrHeader(tokens, c.Users), rateLimited)

	enq := v1.Group("/enquiries", authed, rateLimited)
	enq.POST("", c.EnquiryHandler.Create)
	enq.GET("", c.EnquiryHandler.List)
	enq.GET("/filters", c.EnquiryHandler.FilterOptions)
	enq.GET("/stats", c.EnquiryHandler.Stats)
	enq.GET("/code/:code", c.EnquiryHandler.GetByCode)
	enq.POST("/import", c.EnquiryHandler.Import, managers)
	enq.POST("/bulk/status", c.EnquiryHandler.BulkUpdateStatus, managers)
	enq.POST("/bulk/assign", c.EnquiryHandler.BulkAssign, managers)
	enq.GET("/:id", c.EnquiryHandler.Get)
	enq.PUT("/:id", c.EnquiryHandler.Update)
	enq.DELETE("/:id", c.EnquiryHandler.Delete, admins)
	enq.PATCH("/:id/status", c.EnquiryHandler.UpdateStatus)
	enq.POST("/:id/remarks", c.EnquiryHandler.AddRemark)
	enq.POST("/:id/assign", c.EnquiryHandler.Assign, managers)
	enq.POST("/:id/auto-assign", c.EnquiryHandler.AutoAssign)
	enq.GET("/:id/assignment-history", c.EnquiryHandler.AssignmentHistory)

	rulesGroup := v1.Group("/assignment-rules", authed, rateLimited, managers)
	rulesGroup.POST("", c.RuleHandler.Create)
	rulesGroup.GET("", c.RuleHandler.List)
	rulesGroup.POST("/preview", c.RuleHandler.Preview)
	rulesGroup.GET("/:id", c.RuleHandler.Get)
	rulesGroup.PUT("/:id", c.RuleHandler.Update)
	rulesGroup.PATCH("/:id/active", c.RuleHandler.SetActive)
	rulesGroup.DELETE("/:id", c.RuleHandler.Delete, admins)

	logs := v1.Group("/assignment-logs", authed, rateLimited, managers)
	logs.GET("", c.AssignmentLogHandler.List)
	logs.GET("/stats", c.AssignmentLogHandler.Stats)

	usersGroup := v1.Group("/users", authed, rateLimited)
	usersGroup.GET("/me", c.UserHandler.Me)
	usersGroup.GET("", c.UserHandler.List, managers)
	usersGroup.GET("/:id", c.UserHandler.Get, managers)
	usersGroup.POST("", c.UserHandler.Create, admins)
	usersGroup.PATCH("/:id/active", c.UserHandler.SetActive, admins)

	slaGroup := v1.Group("/sla-config", authed, rateLimited)
	slaGroup.GET("", c.SLAHandler.Get)
	slaGroup.PUT("", c.SLAHandler.Update, admins)

	v1.GET("/audit-logs", c.AuditHandler.List, authed, rateLimited, admins)
	v1.POST("/jobs/sla-scan", c.JobsHandler.ScanSLA, authed, rateLimited, admins)

	return e
}
