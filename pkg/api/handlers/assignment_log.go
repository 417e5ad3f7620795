package handlers

import (
	"net/http"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/assignmentlog"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// AssignmentLogHandler exposes assignment history across enquiries.
type AssignmentLogHandler struct {
	base
	logs *assignmentlog.Service
}

// NewAssignmentLogHandler creates a new assignment log handler.
func NewAssignmentLogHandler(logs *assignmentlog.Service, log logger.Logger) *AssignmentLogHandler {
	return &AssignmentLogHandler{base: newBase(log, nil), logs: logs}
}

// List returns assignment log entries, newest first.
func (h *AssignmentLogHandler) List(c echo.Context) error {
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

	list, info, err := h.logs.List(ctx, assignmentlog.Filter{
		EnquiryID:  c.QueryParam("enquiry_id"),
		Assignee:   c.QueryParam("assignee"),
		AssignedBy: c.QueryParam("assigned_by"),
		Type:       models.AssignmentType(c.QueryParam("assignment_type")),
		Method:     models.AssignmentMethod(c.QueryParam("assignment_method")),
		From:       from,
		To:         to,
	}, page, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ListResponse[*models.AssignmentLog]{Data: list, Pagination: &info})
}

// Stats summarises assignments in a window, the last 30 days by default.
func (h *AssignmentLogHandler) Stats(c echo.Context) error {
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
	end := nowUTC()
	if to != nil {
		end = *to
	}
	start := end.Add(-30 * 24 * time.Hour)
	if from != nil {
		start = *from
	}

	stats, err := h.logs.Stats(ctx, start, end)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
