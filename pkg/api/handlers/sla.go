package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/audit"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/sla"
	"github.com/labstack/echo/v4"
)

// SLAHandler reads and replaces the SLA policy.
type SLAHandler struct {
	base
	registry *sla.Registry
}

// NewSLAHandler creates a new SLA handler.
func NewSLAHandler(registry *sla.Registry, auditLogger *audit.Service, log logger.Logger) *SLAHandler {
	return &SLAHandler{base: newBase(log, auditLogger), registry: registry}
}

// Get returns the active policy.
func (h *SLAHandler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.Current())
}

// Update replaces the policy. Due dates already set on enquiries are kept.
func (h *SLAHandler) Update(c echo.Context) error {
	var policy sla.Policy
	if err := h.bind(c, &policy); err != nil {
		return err
	}

	previous := h.registry.Current()
	err := h.registry.Update(policy)
	h.record(c, audit.EntitySLAConfig, "", "sla.update", map[string]any{
		"previous": previous,
		"policy":   policy,
	}, err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.registry.Current())
}
