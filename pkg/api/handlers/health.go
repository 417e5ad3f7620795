package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/labstack/echo/v4"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type poolStats interface {
	Stats() sql.DBStats
}

// HealthHandler reports dependency health.
type HealthHandler struct {
	db      Pinger
	cache   Pinger
	metrics *metrics.Metrics
}

// NewHealthHandler creates a health handler. cache may be nil when Redis is disabled.
func NewHealthHandler(db, cache Pinger, m *metrics.Metrics) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, metrics: m}
}

// Health checks the database and, when configured, the cache.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{"status": "healthy", "database": "up"}

	if err := h.db.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "down"
	} else if p, ok := h.db.(poolStats); ok {
		h.metrics.UpdateDBConnections(float64(p.Stats().InUse))
	}
	if h.cache != nil {
		body["cache"] = "up"
		if err := h.cache.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["cache"] = "down"
		}
	}
	return c.JSON(status, body)
}
