package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/audit"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// AuditHandler lists audit logs for admins.
type AuditHandler struct {
	base
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(auditLogger *audit.Service, log logger.Logger) *AuditHandler {
	return &AuditHandler{base: newBase(log, auditLogger)}
}

// List returns audit entries, newest first.
func (h *AuditHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	from, err := timeParam(c, "from")
	if err != nil {
		return h.fail(c, err)
	}
	to, err := timeParam(c, "to")
	if err != nil {
		return h.fail(c, err)
	}
	page, limit := paging(c)

	list, info, err := h.audit.List(ctx, audit.Filter{
		ActorID:    c.QueryParam("actor_id"),
		EntityType: c.QueryParam("entity_type"),
		EntityID:   c.QueryParam("entity_id"),
		Action:     c.QueryParam("action"),
		From:       from,
		To:         to,
	}, page, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ListResponse[*models.AuditLog]{Data: list, Pagination: &info})
}
