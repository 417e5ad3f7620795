package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jordanlanch/leaddesk/config"
	"github.com/jordanlanch/leaddesk/pkg/api"
	"github.com/jordanlanch/leaddesk/pkg/container"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	custommiddleware "github.com/jordanlanch/leaddesk/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLog := logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	appLog.Info("configuration loaded", "environment", cfg.API.Environment)

	sentryEnabled := false
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.API.Environment,
			TracesSampleRate: 0.2,
			AttachStacktrace: true,
		})
		if err != nil {
			appLog.Warn("failed to initialize sentry", "error", err)
		} else {
			sentryEnabled = true
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}

	limiter := custommiddleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	go limiter.Cleanup(ctx)

	e := api.NewRouter(c, api.Options{Sentry: sentryEnabled, RateLimiter: limiter})
	e.Server.ReadHeaderTimeout = 10 * time.Second

	if cfg.Jobs.Enabled {
		c.CronManager.Start()
		appLog.Info("cron jobs started", "sla_scan", cfg.Jobs.SLAScanSpec)
	}

	address := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	go func() {
		appLog.Info("api starting", "address", address)
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server forced to shutdown", "error", err)
	}
	if cfg.Jobs.Enabled {
		select {
		case <-c.CronManager.Stop().Done():
		case <-shutdownCtx.Done():
			appLog.Warn("cron jobs still running at shutdown")
		}
	}
	if err := c.Close(shutdownCtx); err != nil {
		appLog.Error("failed to close resources", "error", err)
	}
	appLog.Info("server gracefully stopped")
}
