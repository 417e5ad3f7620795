package handlers

import (
	"context"
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/api/middleware"
	"github.com/jordanlanch/leaddesk/pkg/audit"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/rules"
	"github.com/labstack/echo/v4"
)

// EnquiryGetter loads the enquiry a preview runs against.
type EnquiryGetter interface {
	Get(ctx context.Context, id string) (*models.Enquiry, error)
}

// RuleHandler handles assignment rule endpoints.
type RuleHandler struct {
	base
	rules     *rules.Service
	enquiries EnquiryGetter
}

// NewRuleHandler creates a new rule handler.
func NewRuleHandler(ruleSvc *rules.Service, enquiries EnquiryGetter, auditLogger *audit.Service, log logger.Logger) *RuleHandler {
	return &RuleHandler{
		base:      newBase(log, auditLogger),
		rules:     ruleSvc,
		enquiries: enquiries,
	}
}

// ActiveRequest toggles a rule.
type ActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// PreviewRequest names a stored enquiry or supplies attributes to test.
type PreviewRequest struct {
	EnquiryID string          `json:"enquiry_id,omitempty"`
	Enquiry   *models.Enquiry `json:"enquiry,omitempty"`
}

// Create stores a new rule.
func (h *RuleHandler) Create(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req rules.RuleRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	rule, err := h.rules.Create(ctx, req, middleware.CurrentUserID(c))
	if err != nil {
		h.record(c, audit.EntityAssignmentRule, "", "rule.create", map[string]any{"name": req.Name}, err)
		return h.fail(c, err)
	}
	h.record(c, audit.EntityAssignmentRule, rule.ID, "rule.create", map[string]any{
		"name":      rule.Name,
		"rule_type": rule.RuleType,
		"priority":  rule.Priority,
	}, nil)
	return c.JSON(http.StatusCreated, rule)
}

// List returns rules, highest priority first.
func (h *RuleHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	active, err := boolParam(c, "active")
	if err != nil {
		return h.fail(c, err)
	}
	ruleType := models.RuleType(c.QueryParam("rule_type"))
	if ruleType != "" && !ruleType.IsValid() {
		return h.fail(c, domain.NewValidationError("unknown rule_type "+string(ruleType)))
	}

	list, err := h.rules.List(ctx, rules.ListFilter{Active: active, RuleType: ruleType})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ListResponse[*models.AssignmentRule]{Data: list})
}

// Get returns one rule.
func (h *RuleHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	rule, err := h.rules.Get(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// Update replaces a rule.
func (h *RuleHandler) Update(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	var req rules.RuleRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	rule, err := h.rules.Update(ctx, id, req)
	h.record(c, audit.EntityAssignmentRule, id, "rule.update", map[string]any{"name": req.Name, "priority": req.Priority}, err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// SetActive enables or disables a rule.
func (h *RuleHandler) SetActive(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	var req ActiveRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	rule, err := h.rules.SetActive(ctx, id, req.IsActive)
	h.record(c, audit.EntityAssignmentRule, id, "rule.set_active", map[string]any{"is_active": req.IsActive}, err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// Delete removes a rule.
func (h *RuleHandler) Delete(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	err := h.rules.Delete(ctx, id)
	h.record(c, audit.EntityAssignmentRule, id, "rule.delete", nil, err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Preview godoc
// @Summary Dry-run rule selection
// @Description Evaluates every active rule against an enquiry without assigning it.
// @Tags Assignment Rules
// @Accept json
// @Produce json
// @Param request body PreviewRequest true "Enquiry to test"
// @Success 200 {object} rules.PreviewResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/assignment-rules/preview [post]
func (h *RuleHandler) Preview(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req PreviewRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	e := req.Enquiry
	switch {
	case req.EnquiryID != "":
		var err error
		if e, err = h.enquiries.Get(ctx, req.EnquiryID); err != nil {
			return h.fail(c, err)
		}
	case e == nil:
		return h.fail(c, domain.NewValidationError("enquiry_id or enquiry is required"))
	}

	result, err := h.rules.Preview(ctx, e)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
