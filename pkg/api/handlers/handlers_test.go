package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/api/middleware"
	"github.com/jordanlanch/leaddesk/pkg/assignmentlog"
	"github.com/jordanlanch/leaddesk/pkg/audit"
	"github.com/jordanlanch/leaddesk/pkg/database/dbtest"
	"github.com/jordanlanch/leaddesk/pkg/enquiries"
	"github.com/jordanlanch/leaddesk/pkg/export"
	importpkg "github.com/jordanlanch/leaddesk/pkg/import"
	"github.com/jordanlanch/leaddesk/pkg/leadassignment"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/rules"
	"github.com/jordanlanch/leaddesk/pkg/sla"
	"github.com/jordanlanch/leaddesk/pkg/users"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	enquiries   *EnquiryHandler
	rules       *RuleHandler
	logs        *AssignmentLogHandler
	users       *UserHandler
	sla         *SLAHandler
	audit       *AuditHandler
	enquirySvc  *enquiries.Service
	ruleSvc     *rules.Service
	registry    *sla.Registry
	admin       *models.User
	agent       *models.User
	secondAgent *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := dbtest.Open(t)
	log := logger.Nop()

	userSvc := users.NewService(db)
	ruleSvc := rules.NewService(db, userSvc)
	logSvc := assignmentlog.NewService(db)
	auditSvc := audit.NewService(db)
	registry := sla.NewRegistry(sla.DefaultPolicy())
	store := enquiries.NewStore(db)

	engine := leadassignment.NewEngine(leadassignment.Deps{
		Store:    store,
		Rules:    ruleSvc,
		Users:    userSvc,
		Recorder: logSvc,
		Cursors:  ruleSvc,
		Loads:    leadassignment.NewSQLLoadCounter(db, logSvc),
	})
	enquirySvc := enquiries.NewService(enquiries.Deps{
		DB:       db,
		Store:    store,
		Assigner: engine,
		Users:    userSvc,
		SLA:      registry,
	})

	mk := func(name string, role models.Role) *models.User {
		u, err := userSvc.Create(ctx, users.CreateUserRequest{
			Name:  name,
			Email: strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
			Role:  role,
			Team:  "North",
		})
		require.NoError(t, err)
		return u
	}

	return &fixture{
		enquiries: NewEnquiryHandler(
			enquirySvc,
			logSvc,
			importpkg.NewCSVImportService(enquirySvc, log),
			export.NewService(enquirySvc, nil),
			auditSvc,
			log,
		),
		rules:       NewRuleHandler(ruleSvc, enquirySvc, auditSvc, log),
		logs:        NewAssignmentLogHandler(logSvc, log),
		users:       NewUserHandler(userSvc, auditSvc, log),
		sla:         NewSLAHandler(registry, auditSvc, log),
		audit:       NewAuditHandler(auditSvc, log),
		enquirySvc:  enquirySvc,
		ruleSvc:     ruleSvc,
		registry:    registry,
		admin:       mk("Ada Admin", models.RoleAdmin),
		agent:       mk("Arjun Agent", models.RoleSalesAgent),
		secondAgent: mk("Bela Agent", models.RoleSalesAgent),
	}
}

func (f *fixture) roundRobin(t *testing.T, pool ...*models.User) *models.AssignmentRule {
	t.Helper()
	candidates := make([]models.Candidate, 0, len(pool))
	for _, u := range pool {
		candidates = append(candidates, models.Candidate{UserID: u.ID})
	}
	rule, err := f.ruleSvc.Create(context.Background(), rules.RuleRequest{
		Name:         "everyone",
		Priority:     1,
		RuleType:     models.RuleTypeRoundRobin,
		AssignmentTo: candidates,
	}, f.admin.ID)
	require.NoError(t, err)
	return rule
}

type call struct {
	method      string
	target      string
	body        string
	contentType string
	params      map[string]string
	user        *models.User
}

func do(t *testing.T, h echo.HandlerFunc, c call) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(c.method, c.target, strings.NewReader(c.body))
	if c.contentType == "" {
		c.contentType = echo.MIMEApplicationJSON
	}
	req.Header.Set(echo.HeaderContentType, c.contentType)

	e := echo.New()
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	names := make([]string, 0, len(c.params))
	values := make([]string, 0, len(c.params))
	for name, value := range c.params {
		names = append(names, name)
		values = append(values, value)
	}
	ctx.SetParamNames(names...)
	ctx.SetParamValues(values...)
	if c.user != nil {
		ctx.Set(middleware.UserIDKey, c.user.ID)
		ctx.Set(middleware.UserRoleKey, c.user.Role)
	}

	require.NoError(t, h(ctx))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) create(t *testing.T, body string) *models.Enquiry {
	t.Helper()
	rec := do(t, f.enquiries.Create, call{method: http.MethodPost, target: "/api/v1/enquiries", body: body, user: f.admin})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*models.Enquiry](t, rec)
}

func TestEnquiryHandler_CreateAndGet(t *testing.T) {
	f := setup(t)
	f.roundRobin(t, f.agent)

	e := f.create(t, `{"customer_name":"Ravi Kumar","phone":"98765 43210","type_of_lead":"B2B","enquiry_profile":"Product","priority":"HIGH"}`)
	assert.Equal(t, "ENQ-000001", e.Code)
	assert.Equal(t, "+919876543210", e.Phone)
	assert.Equal(t, models.StageAssigned, e.Stage)
	require.NotNil(t, e.AssignedTo)
	assert.Equal(t, f.agent.ID, *e.AssignedTo)

	rec := do(t, f.enquiries.Get, call{method: http.MethodGet, target: "/", params: map[string]string{"id": e.ID}, user: f.admin})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, f.enquiries.GetByCode, call{method: http.MethodGet, target: "/", params: map[string]string{"code": e.Code}, user: f.admin})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, e.ID, decode[*models.Enquiry](t, rec).ID)

	rec = do(t, f.enquiries.Get, call{method: http.MethodGet, target: "/", params: map[string]string{"id": "missing"}, user: f.admin})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[models.ErrorResponse](t, rec).Error)
}

func TestEnquiryHandler_CreateValidationIsAudited(t *testing.T) {
	f := setup(t)

	rec := do(t, f.enquiries.Create, call{method: http.MethodPost, target: "/", body: `{"customer_name":"","type_of_lead":"B2X"}`, user: f.admin})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Error)
	assert.GreaterOrEqual(t, len(resp.Details), 2)

	rec = do(t, f.enquiries.Create, call{method: http.MethodPost, target: "/", body: `{"customer_name":`, user: f.admin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[models.ErrorResponse](t, rec).Error)

	rec = do(t, f.audit.List, call{method: http.MethodGet, target: "/?action=enquiry.create", user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListResponse[*models.AuditLog]](t, rec)
	require.Len(t, list.Data, 1)
	assert.Equal(t, f.admin.ID, list.Data[0].ActorID)
	assert.Equal(t, "failed", list.Data[0].Metadata["outcome"])
	assert.Equal(t, "VALIDATION_ERROR", list.Data[0].Metadata["error_code"])
}

func TestEnquiryHandler_ListFilters(t *testing.T) {
	f := setup(t)
	f.create(t, `{"customer_name":"A","phone":"9000000001","type_of_lead":"B2C"}`)
	f.create(t, `{"customer_name":"B","phone":"9000000002","type_of_lead":"B2B","enquiry_profile":"Project"}`)

	rec := do(t, f.enquiries.List, call{method: http.MethodGet, target: "/?status=Unknown", user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListResponse[*models.Enquiry]](t, rec)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "A", list.Data[0].CustomerName)
	assert.Equal(t, 1, list.Pagination.Total)

	rec = do(t, f.enquiries.List, call{method: http.MethodGet, target: "/?type_of_lead=b2b", user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ListResponse[*models.Enquiry]](t, rec).Data, 1)

	rec = do(t, f.enquiries.List, call{method: http.MethodGet, target: "/?status=Lost&sort_by=password", user: f.admin})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decode[models.ErrorResponse](t, rec).Details, 2)

	rec = do(t, f.enquiries.List, call{method: http.MethodGet, target: "/?created_from=yesterday", user: f.admin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnquiryHandler_StatusAssignAndHistory(t *testing.T) {
	f := setup(t)
	f.roundRobin(t, f.agent)
	e := f.create(t, `{"customer_name":"Meera","phone":"9123456780","type_of_lead":"B2C","enquiry_profile":"Installation"}`)

	rec := do(t, f.enquiries.UpdateStatus, call{
		method: http.MethodPatch,
		target: "/",
		body:   `{"status":"In Progress"}`,
		params: map[string]string{"id": e.ID},
		user:   f.agent,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[*models.Enquiry](t, rec)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, models.StageActionInProgress, updated.Stage)

	rec = do(t, f.enquiries.UpdateStatus, call{
		method: http.MethodPatch,
		target: "/",
		body:   `{"status":"Lost"}`,
		params: map[string]string{"id": e.ID},
		user:   f.agent,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.enquiries.Assign, call{
		method: http.MethodPost,
		target: "/",
		body:   `{"assignee_id":"` + f.secondAgent.ID + `","reason":"workload"}`,
		params: map[string]string{"id": e.ID},
		user:   f.admin,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, f.secondAgent.ID, *decode[*models.Enquiry](t, rec).AssignedTo)

	rec = do(t, f.enquiries.AssignmentHistory, call{method: http.MethodGet, target: "/", params: map[string]string{"id": e.ID}, user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[ListResponse[*models.AssignmentLog]](t, rec).Data
	require.Len(t, history, 2)
	assert.Equal(t, models.AssignmentTypeAuto, history[0].AssignmentType)
	assert.Equal(t, models.AssignmentTypeReassignment, history[1].AssignmentType)
	assert.NotNil(t, history[0].AssignmentDuration)

	rec = do(t, f.logs.List, call{method: http.MethodGet, target: "/?enquiry_id=" + e.ID + "&assignment_type=reassignment", user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ListResponse[*models.AssignmentLog]](t, rec).Data, 1)

	rec = do(t, f.logs.Stats, call{method: http.MethodGet, target: "/", user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[assignmentlog.Stats](t, rec)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByAssignee[f.secondAgent.ID])

	rec = do(t, f.enquiries.AssignmentHistory, call{method: http.MethodGet, target: "/", params: map[string]string{"id": "missing"}, user: f.admin})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnquiryHandler_AutoAssignWithoutRules(t *testing.T) {
	f := setup(t)
	e := f.create(t, `{"customer_name":"Zoya","phone":"9988776655","type_of_lead":"B2C","enquiry_profile":"Product"}`)
	assert.Equal(t, models.StageAssignmentPending, e.Stage)

	f.roundRobin(t, f.agent)
	rec := do(t, f.enquiries.AutoAssign, call{method: http.MethodPost, target: "/", params: map[string]string{"id": e.ID}, user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[leadassignment.Outcome](t, rec)
	assert.Equal(t, leadassignment.OutcomeAssigned, out.Status)
	assert.Equal(t, f.agent.ID, out.Assignee)
}

func TestEnquiryHandler_BulkAndRemarks(t *testing.T) {
	f := setup(t)
	a := f.create(t, `{"customer_name":"A","phone":"9000000011","type_of_lead":"B2C","enquiry_profile":"Job"}`)
	b := f.create(t, `{"customer_name":"B","phone":"9000000012","type_of_lead":"B2C","enquiry_profile":"Job"}`)

	rec := do(t, f.enquiries.BulkAssign, call{
		method: http.MethodPost,
		target: "/",
		body:   `{"ids":["` + a.ID + `","` + b.ID + `","missing"],"assignee_id":"` + f.agent.ID + `"}`,
		user:   f.admin,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[models.BulkResult](t, rec)
	assert.Equal(t, 2, res.Modified)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "missing", res.Failed[0].ID)

	rec = do(t, f.enquiries.BulkUpdateStatus, call{
		method: http.MethodPost,
		target: "/",
		body:   `{"ids":["` + a.ID + `","` + b.ID + `"],"status":"Archived"}`,
		user:   f.admin,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[models.BulkResult](t, rec).Modified)

	rec = do(t, f.enquiries.AddRemark, call{
		method: http.MethodPost,
		target: "/",
		body:   `{"text":"called twice, no answer"}`,
		params: map[string]string{"id": a.ID},
		user:   f.agent,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	remarks := decode[*models.Enquiry](t, rec).Remarks
	assert.Equal(t, "called twice, no answer", remarks[len(remarks)-1].Text)

	rec = do(t, f.enquiries.Delete, call{method: http.MethodDelete, target: "/", params: map[string]string{"id": b.ID}, user: f.admin})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, f.enquiries.Stats, call{method: http.MethodGet, target: "/", user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[enquiries.Stats](t, rec)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[string(models.StatusArchived)])
}

func TestEnquiryHandler_ImportExport(t *testing.T) {
	f := setup(t)
	csvBody := "customer_name,phone,type_of_lead,city\nAsha,9811111111,b2c,Pune\nDev,9822222222,B2B,Delhi\n"

	rec := do(t, f.enquiries.Import, call{
		method:      http.MethodPost,
		target:      "/?validate_only=true",
		body:        csvBody,
		contentType: "text/csv",
		user:        f.admin,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0, decode[importpkg.Result](t, rec).Created)

	rec = do(t, f.enquiries.Import, call{
		method:      http.MethodPost,
		target:      "/",
		body:        csvBody,
		contentType: "text/csv",
		user:        f.admin,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[importpkg.Result](t, rec)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, []string{"ENQ-000001", "ENQ-000002"}, res.Codes)

	rec = do(t, f.enquiries.Import, call{
		method:      http.MethodPost,
		target:      "/",
		body:        "customer_name,phone\nAsha,9811111111\n",
		contentType: "text/csv",
		user:        f.admin,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.enquiries.Export, call{method: http.MethodGet, target: "/?format=csv&city=Pune", user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "enquiries-")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Asha")

	rec = do(t, f.enquiries.Export, call{method: http.MethodGet, target: "/?format=pdf", user: f.admin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.enquiries.FilterOptions, call{method: http.MethodGet, target: "/", user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"Delhi", "Pune"}, decode[enquiries.FilterOptions](t, rec).Cities)
}

func TestRuleHandler_CreateAndPreview(t *testing.T) {
	f := setup(t)

	rec := do(t, f.rules.Create, call{
		method: http.MethodPost,
		target: "/",
		body:   `{"name":"bad","rule_type":"round-robin","conditions":[{"field":"shoe_size","operator":"equals","value":"9"}]}`,
		user:   f.admin,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decode[models.ErrorResponse](t, rec).Details, 2)

	body := `{"name":"b2b","priority":5,"rule_type":"round-robin",` +
		`"conditions":[{"field":"type_of_lead","operator":"equals","value":"B2B"}],` +
		`"assignment_to":[{"user":"` + f.agent.ID + `"}]}`
	rec = do(t, f.rules.Create, call{method: http.MethodPost, target: "/", body: body, user: f.admin})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decode[*models.AssignmentRule](t, rec)
	assert.True(t, rule.IsActive)

	rec = do(t, f.rules.Preview, call{method: http.MethodPost, target: "/", body: `{"enquiry":{"type_of_lead":"B2B"}}`, user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[rules.PreviewResult](t, rec)
	require.NotNil(t, preview.Selected)
	assert.Equal(t, rule.ID, preview.Selected.ID)

	rec = do(t, f.rules.Preview, call{method: http.MethodPost, target: "/", body: `{}`, user: f.admin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.rules.SetActive, call{
		method: http.MethodPatch,
		target: "/",
		body:   `{"is_active":false}`,
		params: map[string]string{"id": rule.ID},
		user:   f.admin,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, f.rules.List, call{method: http.MethodGet, target: "/?active=true", user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[ListResponse[*models.AssignmentRule]](t, rec).Data)

	rec = do(t, f.rules.Delete, call{method: http.MethodDelete, target: "/", params: map[string]string{"id": rule.ID}, user: f.admin})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSLAHandler(t *testing.T) {
	f := setup(t)

	rec := do(t, f.sla.Get, call{method: http.MethodGet, target: "/", user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sla.DefaultPolicy(), decode[sla.Policy](t, rec))

	rec = do(t, f.sla.Update, call{
		method: http.MethodPut,
		target: "/",
		body:   `{"response":{"high":0,"medium":4,"low":8},"resolution":{"high":24,"medium":48,"low":72}}`,
		user:   f.admin,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, sla.DefaultPolicy(), f.registry.Current())

	rec = do(t, f.sla.Update, call{
		method: http.MethodPut,
		target: "/",
		body:   `{"response":{"high":1,"medium":2,"low":4},"resolution":{"high":8,"medium":16,"low":32}}`,
		user:   f.admin,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.registry.Current().Response.High)

	e := f.create(t, `{"customer_name":"Nia","phone":"9700000000","type_of_lead":"B2C","priority":"HIGH"}`)
	assert.Equal(t, e.CreatedAt.Add(time.Hour), e.ResponseDue)
}

func TestUserHandler(t *testing.T) {
	f := setup(t)

	rec := do(t, f.users.Create, call{
		method: http.MethodPost,
		target: "/",
		body:   `{"name":"Tara Caller","email":"tara@example.com","role":"Telecaller"}`,
		user:   f.admin,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[*models.User](t, rec)
	assert.True(t, created.IsActive)

	rec = do(t, f.users.Create, call{method: http.MethodPost, target: "/", body: `{"name":"X","email":"x@example.com","role":"Intern"}`, user: f.admin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.users.List, call{method: http.MethodGet, target: "/?role=Sales+Agent", user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ListResponse[*models.User]](t, rec).Data, 2)

	rec = do(t, f.users.SetActive, call{
		method: http.MethodPatch,
		target: "/",
		body:   `{"is_active":false}`,
		params: map[string]string{"id": created.ID},
		user:   f.admin,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[*models.User](t, rec).IsActive)

	rec = do(t, f.users.Me, call{method: http.MethodGet, target: "/", user: f.agent})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.agent.ID, decode[*models.User](t, rec).ID)

	rec = do(t, f.audit.List, call{method: http.MethodGet, target: "/?entity_type=user&entity_id=" + created.ID, user: f.admin})
	require.Equal(t, http.StatusOK, rec.Code)
	actions := []string{}
	for _, entry := range decode[ListResponse[*models.AuditLog]](t, rec).Data {
		actions = append(actions, entry.Action)
	}
	assert.Equal(t, []string{"user.set_active", "user.create"}, actions)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	rec := do(t, NewHealthHandler(stubPinger{}, nil, nil).Health, call{method: http.MethodGet, target: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "cache")

	rec = do(t, NewHealthHandler(stubPinger{}, stubPinger{err: errors.New("down")}, nil).Health, call{method: http.MethodGet, target: "/health"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "down", body["cache"])
	assert.Equal(t, "up", body["database"])
}

type stubScanner struct {
	flagged int
	err     error
}

func (s stubScanner) Scan(context.Context) (int, error) { return s.flagged, s.err }

func TestJobsHandler_ScanSLA(t *testing.T) {
	admin := &models.User{ID: "admin-1", Role: models.RoleAdmin}

	rec := do(t, NewJobsHandler(stubScanner{flagged: 3}, nil, logger.Nop()).ScanSLA, call{method: http.MethodPost, target: "/api/v1/jobs/sla-scan", user: admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[map[string]int](t, rec)["flagged"])

	rec = do(t, NewJobsHandler(stubScanner{err: errors.New("db gone")}, nil, logger.Nop()).ScanSLA, call{method: http.MethodPost, target: "/api/v1/jobs/sla-scan", user: admin})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db gone")
}
