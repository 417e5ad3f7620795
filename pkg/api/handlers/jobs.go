package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/audit"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/labstack/echo/v4"
)

// Scanner runs one SLA breach scan.
type Scanner interface {
	Scan(ctx context.Context) (int, error)
}

// JobsHandler exposes manual triggers for background jobs.
type JobsHandler struct {
	base
	scanner Scanner
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(scanner Scanner, auditLogger *audit.Service, log logger.Logger) *JobsHandler {
	return &JobsHandler{base: newBase(log, auditLogger), scanner: scanner}
}

// ScanSLA flags overdue enquiries now instead of waiting for the next scheduled run.
func (h *JobsHandler) ScanSLA(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	flagged, err := h.scanner.Scan(ctx)
	h.record(c, audit.EntityJob, "sla_scan", "job.sla_scan", map[string]any{"flagged": flagged}, err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"flagged": flagged})
}
