// Package handlers exposes the HTTP API.
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/api/errors"
	"github.com/jordanlanch/leaddesk/pkg/api/middleware"
	"github.com/jordanlanch/leaddesk/pkg/audit"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

const requestTimeout = 10 * time.Second

var nowUTC = func() time.Time { return time.Now().UTC() }

// ListResponse wraps a page of results.
type ListResponse[T any] struct {
	Data       []T                    `json:"data"`
	Pagination *models.PaginationInfo `json:"pagination,omitempty"`
}

// base carries what every handler needs to answer errors and write audit entries.
type base struct {
	log   logger.Logger
	audit *audit.Service
}

func newBase(log logger.Logger, auditLogger *audit.Service) base {
	if log == nil {
		log = logger.Nop()
	}
	return base{log: log, audit: auditLogger}
}

func (b base) fail(c echo.Context, err error) error {
	return errors.Respond(c, b.log, err)
}

func (b base) bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errors.BindError(c, b.log, err)
	}
	return nil
}

// record writes one audit entry for a mutating request. The outcome lands in metadata so
// failed attempts are visible too. Audit failures never fail the request.
func (b base) record(c echo.Context, entity, entityID, action string, changes map[string]any, err error) {
	if b.audit == nil {
		return
	}
	meta := map[string]any{"outcome": "success"}
	if err != nil {
		meta["outcome"] = "failed"
		meta["error_code"] = domain.GetErrorCode(err)
	}
	ip, ua := audit.GetRequestContext(c)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 5*time.Second)
	defer cancel()
	if logErr := b.audit.Log(ctx, audit.LogEntry{
		ActorID:    middleware.CurrentUserID(c),
		EntityType: entity,
		EntityID:   entityID,
		Action:     action,
		Changes:    changes,
		Metadata:   meta,
		IPAddress:  ip,
		UserAgent:  ua,
	}); logErr != nil {
		b.log.Warn("audit log write failed", "action", action, "entity_id", entityID, "error", logErr)
	}
}

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func paging(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return page, limit
}

// timeParam accepts RFC 3339 timestamps or plain dates (midnight UTC).
func timeParam(c echo.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return &t, nil
	}
	return nil, domain.NewValidationError(fmt.Sprintf("%s must be an RFC 3339 timestamp or YYYY-MM-DD date", name))
}

func boolParam(c echo.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("%s must be true or false", name))
	}
	return &v, nil
}
