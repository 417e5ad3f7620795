package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jordanlanch/leaddesk/pkg/api/middleware"
	"github.com/jordanlanch/leaddesk/pkg/assignmentlog"
	"github.com/jordanlanch/leaddesk/pkg/audit"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/enquiries"
	"github.com/jordanlanch/leaddesk/pkg/export"
	importpkg "github.com/jordanlanch/leaddesk/pkg/import"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// maxImportBytes caps an uploaded CSV.
const maxImportBytes = 5 << 20

// EnquiryHandler handles enquiry endpoints.
type EnquiryHandler struct {
	base
	service  *enquiries.Service
	history  *assignmentlog.Service
	importer *importpkg.CSVImportService
	exporter *export.Service
}

// NewEnquiryHandler creates a new enquiry handler.
func NewEnquiryHandler(
	service *enquiries.Service,
	history *assignmentlog.Service,
	importer *importpkg.CSVImportService,
	exporter *export.Service,
	auditLogger *audit.Service,
	log logger.Logger,
) *EnquiryHandler {
	return &EnquiryHandler{
		base:     newBase(log, auditLogger),
		service:  service,
		history:  history,
		importer: importer,
		exporter: exporter,
	}
}

// StatusRequest changes an enquiry's status.
type StatusRequest struct {
	Status models.Status `json:"status"`
	Note   string        `json:"note,omitempty"`
}

// RemarkRequest appends a remark.
type RemarkRequest struct {
	Text string `json:"text"`
}

// AssignRequest hands an enquiry to an agent.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
	Reason     string `json:"reason,omitempty"`
}

// BulkStatusRequest changes the status of several enquiries.
type BulkStatusRequest struct {
	IDs    []string      `json:"ids"`
	Status models.Status `json:"status"`
}

// BulkAssignRequest assigns several enquiries to one agent.
type BulkAssignRequest struct {
	IDs        []string `json:"ids"`
	AssigneeID string   `json:"assignee_id"`
	Reason     string   `json:"reason,omitempty"`
}

// Create godoc
// @Summary Capture an enquiry
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param request body enquiries.CreateRequest true "Enquiry"
// @Success 201 {object} models.Enquiry
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/enquiries [post]
func (h *EnquiryHandler) Create(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req enquiries.CreateRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	e, err := h.service.Create(ctx, req, middleware.CurrentUserID(c))
	if err != nil {
		h.record(c, audit.EntityEnquiry, "", "enquiry.create", nil, err)
		return h.fail(c, err)
	}
	h.record(c, audit.EntityEnquiry, e.ID, "enquiry.create", map[string]any{
		"code":         e.Code,
		"is_duplicate": e.IsDuplicate,
	}, nil)
	return c.JSON(http.StatusCreated, e)
}

// List godoc
// @Summary List enquiries
// @Tags Enquiries
// @Produce json
// @Param status query string false "Status"
// @Param search query string false "Matches code, name, phone, email or company"
// @Param page query int false "Page"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} ListResponse[models.Enquiry]
// @Security BearerAuth
// @Router /api/v1/enquiries [get]
func (h *EnquiryHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	f, err := enquiryFilter(c)
	if err != nil {
		return h.fail(c, err)
	}
	page, limit := paging(c)

	list, info, err := h.service.List(ctx, f, page, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ListResponse[*models.Enquiry]{Data: list, Pagination: &info})
}

// Get returns one enquiry by id.
func (h *EnquiryHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	e, err := h.service.Get(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// GetByCode returns one enquiry by its ENQ code.
func (h *EnquiryHandler) GetByCode(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	e, err := h.service.GetByCode(ctx, c.Param("code"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// Update edits an enquiry's fields, and optionally its status.
func (h *EnquiryHandler) Update(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	var req enquiries.UpdateRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	e, err := h.service.Update(ctx, id, req, middleware.CurrentUserID(c))
	h.record(c, audit.EntityEnquiry, id, "enquiry.update", updateChanges(req), err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// UpdateStatus godoc
// @Summary Change enquiry status
// @Description Moves the enquiry through its lifecycle. The stage follows the status.
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param id path string true "Enquiry ID"
// @Param request body StatusRequest true "New status"
// @Success 200 {object} models.Enquiry
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/enquiries/{id}/status [patch]
func (h *EnquiryHandler) UpdateStatus(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	var req StatusRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	e, err := h.service.UpdateStatus(ctx, id, req.Status, req.Note, middleware.CurrentUserID(c))
	h.record(c, audit.EntityEnquiry, id, "enquiry.status", map[string]any{"status": req.Status}, err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// AddRemark appends a remark.
func (h *EnquiryHandler) AddRemark(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	var req RemarkRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	e, err := h.service.AddRemark(ctx, id, req.Text, middleware.CurrentUserID(c))
	h.record(c, audit.EntityEnquiry, id, "enquiry.remark", nil, err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// Delete removes an enquiry.
func (h *EnquiryHandler) Delete(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	err := h.service.Delete(ctx, id)
	h.record(c, audit.EntityEnquiry, id, "enquiry.delete", nil, err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Assign godoc
// @Summary Manually assign an enquiry
// @Tags Assignment
// @Accept json
// @Produce json
// @Param id path string true "Enquiry ID"
// @Param request body AssignRequest true "Assignee"
// @Success 200 {object} models.Enquiry
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/enquiries/{id}/assign [post]
func (h *EnquiryHandler) Assign(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	var req AssignRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	e, err := h.service.Assign(ctx, id, req.AssigneeID, req.Reason, middleware.CurrentUserID(c))
	h.record(c, audit.EntityEnquiry, id, "enquiry.assign", map[string]any{"assignee_id": req.AssigneeID}, err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// AutoAssign re-runs rule based assignment. The outcome is reported even when no agent
// was chosen.
func (h *EnquiryHandler) AutoAssign(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	outcome, err := h.service.AutoAssign(ctx, id, middleware.CurrentUserID(c))
	if err != nil {
		h.record(c, audit.EntityEnquiry, id, "enquiry.auto_assign", nil, err)
		return h.fail(c, err)
	}
	h.record(c, audit.EntityEnquiry, id, "enquiry.auto_assign", map[string]any{
		"outcome":  outcome.Status,
		"assignee": outcome.Assignee,
		"rule_id":  outcome.RuleID,
	}, nil)
	return c.JSON(http.StatusOK, outcome)
}

// AssignmentHistory lists an enquiry's assignment log, oldest first.
func (h *EnquiryHandler) AssignmentHistory(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	if _, err := h.service.Get(ctx, id); err != nil {
		return h.fail(c, err)
	}
	logs, err := h.history.History(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ListResponse[*models.AssignmentLog]{Data: logs})
}

// BulkUpdateStatus changes the status of every listed enquiry independently.
func (h *EnquiryHandler) BulkUpdateStatus(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req BulkStatusRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	res, err := h.service.BulkUpdateStatus(ctx, req.IDs, req.Status, middleware.CurrentUserID(c))
	h.record(c, audit.EntityEnquiry, "", "enquiry.bulk_status", bulkChanges(req.IDs, res, map[string]any{"status": req.Status}), err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// BulkAssign assigns every listed enquiry to one agent.
func (h *EnquiryHandler) BulkAssign(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req BulkAssignRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	res, err := h.service.BulkAssign(ctx, req.IDs, req.AssigneeID, req.Reason, middleware.CurrentUserID(c))
	h.record(c, audit.EntityEnquiry, "", "enquiry.bulk_assign", bulkChanges(req.IDs, res, map[string]any{"assignee_id": req.AssigneeID}), err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Import godoc
// @Summary Bulk import enquiries from CSV
// @Description Accepts a multipart "file" field or a text/csv body. Any invalid row rejects the whole file.
// @Tags Enquiries
// @Accept mpfd
// @Produce json
// @Param file formData file false "CSV file"
// @Param validate_only query bool false "Parse without importing"
// @Success 201 {object} importpkg.Result
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/enquiries/import [post]
func (h *EnquiryHandler) Import(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	validateOnly, err := boolParam(c, "validate_only")
	if err != nil {
		return h.fail(c, err)
	}

	body, closeBody, err := csvBody(c)
	if err != nil {
		return h.fail(c, err)
	}
	defer closeBody()

	cfg := importpkg.DefaultCSVConfig()
	cfg.ValidateOnly = validateOnly != nil && *validateOnly

	res, err := h.importer.ImportFromCSV(ctx, io.LimitReader(body, maxImportBytes), middleware.CurrentUserID(c), cfg)
	if !cfg.ValidateOnly {
		changes := map[string]any{}
		if res != nil {
			changes["created"] = res.Created
			changes["duplicates"] = res.Duplicate
		}
		h.record(c, audit.EntityEnquiry, "", "enquiry.import", changes, err)
	}
	if err != nil {
		return h.fail(c, err)
	}

	status := http.StatusCreated
	if cfg.ValidateOnly {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// Export streams the filtered enquiries as CSV or XLSX.
func (h *EnquiryHandler) Export(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	format := strings.ToLower(c.QueryParam("format"))
	if format == "" {
		format = export.FormatCSV
	}
	if _, err := export.ContentType(format); err != nil {
		return h.fail(c, err)
	}
	f, err := enquiryFilter(c)
	if err != nil {
		return h.fail(c, err)
	}

	// render first so errors can still be reported as JSON
	var buf bytes.Buffer
	file, err := h.exporter.Write(ctx, &buf, format, f)
	h.record(c, audit.EntityEnquiry, "", "enquiry.export", map[string]any{"format": format}, err)
	if err != nil {
		return h.fail(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Name))
	return c.Blob(http.StatusOK, file.ContentType, buf.Bytes())
}

// FilterOptions lists the values the enquiry list can be filtered by.
func (h *EnquiryHandler) FilterOptions(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	opts, err := h.service.FilterOptions(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, opts)
}

// Stats summarises enquiries, optionally for a creation window or one agent.
func (h *EnquiryHandler) Stats(c echo.Context) error {
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

	stats, err := h.service.Stats(ctx, enquiries.StatsFilter{From: from, To: to, AssignedTo: c.QueryParam("assigned_to")})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func enquiryFilter(c echo.Context) (enquiries.Filter, error) {
	f := enquiries.Filter{
		Status:      models.Status(c.QueryParam("status")),
		Stage:       models.Stage(c.QueryParam("stage")),
		Priority:    models.Priority(strings.ToUpper(c.QueryParam("priority"))),
		Profile:     models.Profile(c.QueryParam("enquiry_profile")),
		TypeOfLead:  models.LeadType(strings.ToUpper(c.QueryParam("type_of_lead"))),
		SourceType:  c.QueryParam("source_type"),
		ChannelType: c.QueryParam("channel_type"),
		City:        c.QueryParam("city"),
		AssignedTo:  c.QueryParam("assigned_to"),
		Search:      strings.TrimSpace(c.QueryParam("search")),
		SortBy:      c.QueryParam("sort_by"),
		SortDesc:    !strings.EqualFold(c.QueryParam("sort_order"), "asc"),
	}

	var details []string
	if f.Status != "" && !f.Status.IsValid() {
		details = append(details, fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.Stage != "" && !f.Stage.IsValid() {
		details = append(details, fmt.Sprintf("unknown stage %q", f.Stage))
	}
	if f.Priority != "" && !f.Priority.IsValid() {
		details = append(details, fmt.Sprintf("unknown priority %q", f.Priority))
	}
	if f.Profile != "" && !f.Profile.IsValid() {
		details = append(details, fmt.Sprintf("unknown enquiry_profile %q", f.Profile))
	}
	if f.TypeOfLead != "" && !f.TypeOfLead.IsValid() {
		details = append(details, fmt.Sprintf("unknown type_of_lead %q", f.TypeOfLead))
	}
	if f.SortBy != "" && !enquiries.Sortable(f.SortBy) {
		details = append(details, fmt.Sprintf("cannot sort by %q", f.SortBy))
	}
	if len(details) > 0 {
		return f, domain.NewValidationError("invalid filter", details...)
	}

	var err error
	if f.CreatedFrom, err = timeParam(c, "created_from"); err != nil {
		return f, err
	}
	if f.CreatedTo, err = timeParam(c, "created_to"); err != nil {
		return f, err
	}
	if f.IsDuplicate, err = boolParam(c, "is_duplicate"); err != nil {
		return f, err
	}
	unassigned, err := boolParam(c, "unassigned")
	if err != nil {
		return f, err
	}
	f.Unassigned = unassigned != nil && *unassigned

	overdue, err := boolParam(c, "overdue")
	if err != nil {
		return f, err
	}
	if overdue != nil && *overdue {
		now := nowUTC()
		f.OverdueAt = &now
	}
	return f, nil
}

func csvBody(c echo.Context) (io.Reader, func(), error) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, nil, domain.NewValidationError("a CSV file is required in the \"file\" field")
		}
		if fh.Size > maxImportBytes {
			return nil, nil, domain.NewValidationError(fmt.Sprintf("file exceeds %d MB", maxImportBytes>>20))
		}
		f, err := fh.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("open upload: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	}
	return c.Request().Body, func() {}, nil
}

func updateChanges(req enquiries.UpdateRequest) map[string]any {
	changes := map[string]any{}
	if req.Profile != nil {
		changes["enquiry_profile"] = *req.Profile
	}
	if req.Priority != nil {
		changes["priority"] = *req.Priority
	}
	if req.Status != nil {
		changes["status"] = *req.Status
	}
	if req.Phone != nil {
		changes["phone"] = true
	}
	if req.CustomerName != nil {
		changes["customer_name"] = true
	}
	return changes
}

func bulkChanges(ids []string, res *models.BulkResult, extra map[string]any) map[string]any {
	extra["requested"] = len(ids)
	if res != nil {
		extra["matched"] = res.Matched
		extra["modified"] = res.Modified
		extra["failed"] = len(res.Failed)
	}
	return extra
}
