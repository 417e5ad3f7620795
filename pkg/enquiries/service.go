// Package enquiries manages sales enquiries: capture, duplicate detection, lifecycle updates
// and the hand-off to rule based assignment.
package enquiries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/hooks"
	"github.com/jordanlanch/leaddesk/pkg/leadassignment"
	"github.com/jordanlanch/leaddesk/pkg/leadlifecycle"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/notify"
	"github.com/jordanlanch/leaddesk/pkg/phone"
	"github.com/jordanlanch/leaddesk/pkg/sla"
	"github.com/jordanlanch/leaddesk/pkg/validation"
)

const (
	codeSequence  = "enquiry"
	codeFormat    = "ENQ-%06d"
	defaultWindow = 7 * 24 * time.Hour

	optionsKey = "enquiries:filter-options"
	optionsTTL = 5 * time.Minute
)

// Assigner runs automatic and manual assignment.
type Assigner interface {
	AutoAssign(ctx context.Context, enquiryID, actor string) leadassignment.Outcome
	Assign(ctx context.Context, req leadassignment.AssignRequest) (*models.Enquiry, error)
}

// UserLookup validates assignees.
type UserLookup interface {
	GetActive(ctx context.Context, id string) (*models.User, error)
}

// OptionsCache holds computed filter options between requests.
type OptionsCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Deps wires a Service.
type Deps struct {
	DB       *database.Client
	Store    *Store
	Assigner Assigner
	Users    UserLookup
	SLA      *sla.Registry
	Phones   *phone.Normalizer
	Hooks    *hooks.Runner
	Notifier notify.Notifier
	Cache    OptionsCache
	Metrics  *metrics.Metrics
	Logger   logger.Logger
	// DuplicateWindow is how far back an equal phone number marks a new enquiry as duplicate.
	DuplicateWindow time.Duration
}

// Service implements enquiry operations.
type Service struct {
	db        *database.Client
	store     *Store
	assigner  Assigner
	users     UserLookup
	sla       *sla.Registry
	phones    *phone.Normalizer
	hooks     *hooks.Runner
	notifier  notify.Notifier
	cache     OptionsCache
	metrics   *metrics.Metrics
	log       logger.Logger
	validator *validation.Validator
	window    time.Duration
	now       func() time.Time
}

// NewService creates an enquiry service.
func NewService(d Deps) *Service {
	if d.Store == nil {
		d.Store = NewStore(d.DB)
	}
	if d.SLA == nil {
		d.SLA = sla.NewRegistry(sla.DefaultPolicy())
	}
	if d.Phones == nil {
		d.Phones = phone.NewNormalizer("")
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Hooks == nil {
		d.Hooks = hooks.NewRunner(d.Logger, false)
	}
	if d.DuplicateWindow <= 0 {
		d.DuplicateWindow = defaultWindow
	}

	return &Service{
		db:        d.DB,
		store:     d.Store,
		assigner:  d.Assigner,
		users:     d.Users,
		sla:       d.SLA,
		phones:    d.Phones,
		hooks:     d.Hooks,
		notifier:  d.Notifier,
		cache:     d.Cache,
		metrics:   d.Metrics,
		log:       d.Logger,
		validator: validation.New(),
		window:    d.DuplicateWindow,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest captures a new enquiry.
type CreateRequest struct {
	CustomerName   string          `json:"customer_name" validate:"required,max=200"`
	Phone          string          `json:"phone" validate:"required,max=32"`
	Email          string          `json:"email,omitempty" validate:"omitempty,email"`
	Company        string          `json:"company,omitempty" validate:"max=200"`
	City           string          `json:"city,omitempty" validate:"max=100"`
	Description    string          `json:"description,omitempty" validate:"max=5000"`
	TypeOfLead     models.LeadType `json:"type_of_lead" validate:"required,leadtype"`
	Profile        models.Profile  `json:"enquiry_profile,omitempty" validate:"profile"`
	SourceType     string          `json:"source_type,omitempty" validate:"max=100"`
	ChannelType    string          `json:"channel_type,omitempty" validate:"max=100"`
	EstimatedValue float64         `json:"estimated_value,omitempty" validate:"min=0"`
	Priority       models.Priority `json:"priority,omitempty" validate:"priority"`
	Remark         string          `json:"remark,omitempty" validate:"max=2000"`
}

// UpdateRequest edits an enquiry. Nil fields are left unchanged.
type UpdateRequest struct {
	CustomerName   *string          `json:"customer_name,omitempty" validate:"omitempty,min=1,max=200"`
	Phone          *string          `json:"phone,omitempty" validate:"omitempty,min=1,max=32"`
	Email          *string          `json:"email,omitempty" validate:"omitempty,email"`
	Company        *string          `json:"company,omitempty" validate:"omitempty,max=200"`
	City           *string          `json:"city,omitempty" validate:"omitempty,max=100"`
	Description    *string          `json:"description,omitempty" validate:"omitempty,max=5000"`
	TypeOfLead     *models.LeadType `json:"type_of_lead,omitempty" validate:"omitempty,leadtype"`
	Profile        *models.Profile  `json:"enquiry_profile,omitempty" validate:"omitempty,profile"`
	SourceType     *string          `json:"source_type,omitempty" validate:"omitempty,max=100"`
	ChannelType    *string          `json:"channel_type,omitempty" validate:"omitempty,max=100"`
	EstimatedValue *float64         `json:"estimated_value,omitempty" validate:"omitempty,min=0"`
	Priority       *models.Priority `json:"priority,omitempty" validate:"omitempty,priority"`
	Status         *models.Status   `json:"status,omitempty" validate:"omitempty,status"`
	Remark         *string          `json:"remark,omitempty" validate:"omitempty,max=2000"`
}

// Create stores a new enquiry and hands it to auto-assignment unless it is a duplicate.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor string) (*models.Enquiry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	e, err := s.create(ctx, req, actor)
	if err != nil {
		return nil, err
	}
	s.afterCreate(ctx, e, actor)
	return s.store.Get(ctx, e.ID)
}

func (s *Service) create(ctx context.Context, req CreateRequest, actor string) (*models.Enquiry, error) {
	var e *models.Enquiry
	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		seq, err := s.db.NextSequence(ctx, codeSequence)
		if err != nil {
			return fmt.Errorf("failed to allocate enquiry code: %w", err)
		}

		now := s.now().Truncate(time.Microsecond)
		e = s.build(req, fmt.Sprintf(codeFormat, seq), actor, now)

		original, err := s.store.FindOriginal(ctx, e.Phone, now.Add(-s.window))
		if err != nil {
			return err
		}
		if original != nil {
			leadlifecycle.MarkDuplicate(e, original.ID)
		}

		return s.store.Insert(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) build(req CreateRequest, code, actor string, now time.Time) *models.Enquiry {
	profile := req.Profile
	if profile == "" {
		profile = models.ProfileUnknown
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	status, stage := leadlifecycle.InitialState(profile)
	responseDue, resolutionDue := s.sla.Current().DueDates(priority, now)

	e := &models.Enquiry{
		ID:             uuid.NewString(),
		Code:           code,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		Phone:          s.phones.Normalize(req.Phone),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		Company:        req.Company,
		City:           req.City,
		Description:    req.Description,
		TypeOfLead:     req.TypeOfLead,
		Profile:        profile,
		SourceType:     req.SourceType,
		ChannelType:    req.ChannelType,
		EstimatedValue: req.EstimatedValue,
		Status:         status,
		Stage:          stage,
		Priority:       priority,
		ResponseDue:    responseDue,
		ResolutionDue:  resolutionDue,
		Remarks:        []models.Remark{},
		CreatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if text := strings.TrimSpace(req.Remark); text != "" {
		leadlifecycle.AddRemark(e, text, actor, now)
	}
	return e
}

func (s *Service) afterCreate(ctx context.Context, e *models.Enquiry, actor string) {
	s.metrics.RecordEnquiryCreated(string(e.Profile), e.IsDuplicate)
	s.invalidateOptions(ctx)
	s.log.Info("enquiry created",
		"enquiry_id", e.ID,
		"code", e.Code,
		"profile", string(e.Profile),
		"duplicate", e.IsDuplicate,
	)

	if e.IsDuplicate {
		s.notifyDuplicate(ctx, e)
		return
	}
	if leadlifecycle.CanAutoAssign(e) {
		s.autoAssign(ctx, e.ID, actor)
	}
}

// Get returns an enquiry by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Enquiry, error) {
	return s.store.Get(ctx, id)
}

// GetByCode returns an enquiry by its code.
func (s *Service) GetByCode(ctx context.Context, code string) (*models.Enquiry, error) {
	return s.store.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// List returns a page of enquiries.
func (s *Service) List(ctx context.Context, f Filter, page, limit int) ([]*models.Enquiry, models.PaginationInfo, error) {
	return s.store.List(ctx, f, page, limit)
}

// Export returns every enquiry matching the filter.
func (s *Service) Export(ctx context.Context, f Filter) ([]*models.Enquiry, error) {
	return s.store.All(ctx, f)
}

// Update applies an edit. A profile leaving Unknown is saved and auto-assigned before any
// requested status change is applied.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest, actor string) (*models.Enquiry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	var identified bool
	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}

		now := s.now().Truncate(time.Microsecond)
		s.applyFields(e, req, now)
		if req.Priority != nil {
			leadlifecycle.ApplyPriorityChange(e, *req.Priority, s.sla.Current(), now)
		}
		if req.Profile != nil {
			identified = leadlifecycle.ApplyProfileChange(e, *req.Profile, actor, now)
		}
		if req.Remark != nil && strings.TrimSpace(*req.Remark) != "" {
			leadlifecycle.AddRemark(e, strings.TrimSpace(*req.Remark), actor, now)
		}
		return s.store.Save(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateOptions(ctx)

	if identified {
		s.log.Info("enquiry profile identified", "enquiry_id", id)
		e, err := s.store.Get(ctx, id)
		if err == nil && leadlifecycle.CanAutoAssign(e) {
			s.autoAssign(ctx, id, actor)
		}
	}

	if req.Status != nil {
		return s.UpdateStatus(ctx, id, *req.Status, "", actor)
	}
	return s.store.Get(ctx, id)
}

func (s *Service) applyFields(e *models.Enquiry, req UpdateRequest, now time.Time) {
	changed := false
	setString := func(dst *string, v *string) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = true
		}
	}
	if req.CustomerName != nil {
		name := strings.TrimSpace(*req.CustomerName)
		setString(&e.CustomerName, &name)
	}
	if req.Phone != nil {
		p := s.phones.Normalize(*req.Phone)
		setString(&e.Phone, &p)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		setString(&e.Email, &email)
	}
	setString(&e.Company, req.Company)
	setString(&e.City, req.City)
	setString(&e.Description, req.Description)
	setString(&e.SourceType, req.SourceType)
	setString(&e.ChannelType, req.ChannelType)
	if req.TypeOfLead != nil && e.TypeOfLead != *req.TypeOfLead {
		e.TypeOfLead = *req.TypeOfLead
		changed = true
	}
	if req.EstimatedValue != nil && e.EstimatedValue != *req.EstimatedValue {
		e.EstimatedValue = *req.EstimatedValue
		changed = true
	}
	if changed {
		e.UpdatedAt = now
	}
}

// UpdateStatus moves an enquiry to status, appending the transition remark and an optional
// note. Moving back to New while unassigned re-runs auto-assignment.
func (s *Service) UpdateStatus(ctx context.Context, id string, status models.Status, note, actor string) (*models.Enquiry, error) {
	if !status.IsValid() {
		return nil, domain.NewValidationError("invalid status", fmt.Sprintf("status has invalid status value %q", status))
	}

	var (
		from    models.Status
		changed bool
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}

		now := s.now().Truncate(time.Microsecond)
		from = e.Status
		changed = leadlifecycle.ApplyStatusChange(e, status, actor, now)
		if text := strings.TrimSpace(note); text != "" {
			leadlifecycle.AddRemark(e, text, actor, now)
		} else if !changed {
			return nil
		}
		return s.store.Save(ctx, e)
	})
	if err != nil {
		return nil, err
	}

	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		return e, nil
	}

	s.metrics.RecordStatusTransition(string(from), string(status))
	s.log.Info("enquiry status changed",
		"enquiry_id", id,
		"from", string(from),
		"to", string(status),
		"actor", actor,
	)

	if status == models.StatusNew && !e.IsAssigned() && leadlifecycle.CanAutoAssign(e) {
		s.autoAssign(ctx, id, actor)
		return s.store.Get(ctx, id)
	}
	if e.IsAssigned() && *e.AssignedTo != actor {
		s.notifyStatus(ctx, e, from)
	}
	return e, nil
}

// AddRemark appends a free text remark.
func (s *Service) AddRemark(ctx context.Context, id, text, actor string) (*models.Enquiry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.NewValidationError("remark is required", "text is required")
	}
	if len(text) > 2000 {
		return nil, domain.NewValidationError("remark is too long", "text must be at most 2000")
	}

	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	leadlifecycle.AddRemark(e, text, actor, s.now().Truncate(time.Microsecond))
	if err := s.store.AppendRemarks(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Delete removes an enquiry.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateOptions(ctx)
	s.log.Info("enquiry deleted", "enquiry_id", id)
	return nil
}

// Assign hands an enquiry to an agent on behalf of a user.
func (s *Service) Assign(ctx context.Context, id, assigneeID, reason, actor string) (*models.Enquiry, error) {
	if _, err := s.assigner.Assign(ctx, leadassignment.AssignRequest{
		EnquiryID:  id,
		AssigneeID: assigneeID,
		Reason:     reason,
		Actor:      actor,
	}); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// AutoAssign re-runs rule based assignment for an enquiry.
func (s *Service) AutoAssign(ctx context.Context, id, actor string) (leadassignment.Outcome, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return leadassignment.Outcome{}, err
	}
	return s.autoAssign(ctx, id, actor), nil
}

func (s *Service) autoAssign(ctx context.Context, id, actor string) leadassignment.Outcome {
	if s.assigner == nil {
		return leadassignment.Outcome{Status: leadassignment.OutcomeSkipped, EnquiryID: id, Reason: "assignment is disabled"}
	}
	return s.assigner.AutoAssign(ctx, id, actor)
}

// BulkUpdateStatus changes the status of each enquiry independently.
func (s *Service) BulkUpdateStatus(ctx context.Context, ids []string, status models.Status, actor string) (*models.BulkResult, error) {
	if len(ids) == 0 {
		return nil, domain.NewValidationError("no enquiries selected", "ids is required")
	}
	if !status.IsValid() {
		return nil, domain.NewValidationError("invalid status", fmt.Sprintf("status has invalid status value %q", status))
	}

	res := &models.BulkResult{Failed: []models.BulkFailed{}}
	for _, id := range unique(ids) {
		before, err := s.store.Get(ctx, id)
		if err != nil {
			res.Failed = append(res.Failed, models.BulkFailed{ID: id, Message: err.Error()})
			continue
		}
		res.Matched++
		if before.Status == status {
			continue
		}
		if _, err := s.UpdateStatus(ctx, id, status, "", actor); err != nil {
			res.Failed = append(res.Failed, models.BulkFailed{ID: id, Message: err.Error()})
			continue
		}
		res.Modified++
	}

	s.log.Info("bulk status update", "status", string(status), "matched", res.Matched, "modified", res.Modified)
	return res, nil
}

// BulkAssign assigns each enquiry independently to one agent.
func (s *Service) BulkAssign(ctx context.Context, ids []string, assigneeID, reason, actor string) (*models.BulkResult, error) {
	if len(ids) == 0 {
		return nil, domain.NewValidationError("no enquiries selected", "ids is required")
	}
	if _, err := s.users.GetActive(ctx, assigneeID); err != nil {
		return nil, err
	}

	res := &models.BulkResult{Failed: []models.BulkFailed{}}
	for _, id := range unique(ids) {
		e, err := s.store.Get(ctx, id)
		if err != nil {
			res.Failed = append(res.Failed, models.BulkFailed{ID: id, Message: err.Error()})
			continue
		}
		res.Matched++
		if e.IsAssigned() && *e.AssignedTo == assigneeID {
			continue
		}
		if _, err := s.assigner.Assign(ctx, leadassignment.AssignRequest{
			EnquiryID:  id,
			AssigneeID: assigneeID,
			Reason:     reason,
			Actor:      actor,
			Type:       models.AssignmentTypeBulk,
		}); err != nil {
			res.Failed = append(res.Failed, models.BulkFailed{ID: id, Message: err.Error()})
			continue
		}
		res.Modified++
	}

	s.log.Info("bulk assignment", "assignee", assigneeID, "matched", res.Matched, "modified", res.Modified)
	return res, nil
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Created    int      `json:"created"`
	Duplicates int      `json:"duplicates"`
	Codes      []string `json:"codes"`
}

// Import creates every row in one transaction. Any invalid row rejects the whole batch
// and the error lists the problems of every row.
func (s *Service) Import(ctx context.Context, rows []CreateRequest, actor string) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, domain.NewValidationError("import file has no rows")
	}

	var details []string
	for i, row := range rows {
		if err := s.validator.Struct(row); err != nil {
			var de *domain.DomainError
			if errors.As(err, &de) && len(de.Details) > 0 {
				for _, d := range de.Details {
					details = append(details, fmt.Sprintf("row %d: %s", i+1, d))
				}
				continue
			}
			details = append(details, fmt.Sprintf("row %d: %v", i+1, err))
		}
	}
	if len(details) > 0 {
		return nil, domain.NewValidationError("import rejected", details...)
	}

	created := make([]*models.Enquiry, 0, len(rows))
	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		for i, row := range rows {
			e, err := s.create(ctx, row, actor)
			if err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			created = append(created, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Codes: make([]string, 0, len(created))}
	for _, e := range created {
		res.Created++
		if e.IsDuplicate {
			res.Duplicates++
		}
		res.Codes = append(res.Codes, e.Code)
		s.afterCreate(ctx, e, actor)
	}
	s.metrics.RecordImportedRows(res.Created)
	return res, nil
}

// FilterOptions lists the values enquiry lists can be filtered by.
type FilterOptions struct {
	Statuses     []models.Status   `json:"statuses"`
	Stages       []models.Stage    `json:"stages"`
	Priorities   []models.Priority `json:"priorities"`
	Profiles     []models.Profile  `json:"profiles"`
	LeadTypes    []models.LeadType `json:"lead_types"`
	SourceTypes  []string          `json:"source_types"`
	ChannelTypes []string          `json:"channel_types"`
	Cities       []string          `json:"cities"`
	Teams        []string          `json:"teams"`
}

// FilterOptions combines the fixed enums with distinct stored values.
func (s *Service) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	if s.cache != nil {
		var cached FilterOptions
		found, err := s.cache.GetJSON(ctx, optionsKey, &cached)
		if err != nil {
			s.metrics.RecordCacheError("get")
			s.log.Warn("filter options cache read failed", "error", err)
		}
		if found {
			return &cached, nil
		}
	}

	opts := &FilterOptions{
		Statuses:   models.Statuses,
		Stages:     models.Stages,
		Priorities: models.Priorities,
		Profiles:   models.Profiles,
		LeadTypes:  models.LeadTypes,
	}

	var err error
	if opts.SourceTypes, err = s.store.Distinct(ctx, "source_type"); err != nil {
		return nil, err
	}
	if opts.ChannelTypes, err = s.store.Distinct(ctx, "channel_type"); err != nil {
		return nil, err
	}
	if opts.Cities, err = s.store.Distinct(ctx, "city"); err != nil {
		return nil, err
	}
	if opts.Teams, err = s.store.Distinct(ctx, "assigned_team"); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, optionsKey, opts, optionsTTL); err != nil {
			s.metrics.RecordCacheError("set")
			s.log.Warn("filter options cache write failed", "error", err)
		}
	}
	return opts, nil
}

func (s *Service) invalidateOptions(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, optionsKey); err != nil {
		s.metrics.RecordCacheError("delete")
		s.log.Warn("filter options cache invalidation failed", "error", err)
	}
}

// StatsFilter scopes Stats. Zero values do not filter.
type StatsFilter struct {
	From       *time.Time
	To         *time.Time
	AssignedTo string
}

// Stats summarises enquiries.
type Stats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByStage    map[string]int `json:"by_stage"`
	ByPriority map[string]int `json:"by_priority"`
	ByProfile  map[string]int `json:"by_profile"`
	Unassigned int            `json:"unassigned"`
	Duplicates int            `json:"duplicates"`
	Overdue    int            `json:"overdue"`
}

// Stats groups enquiries by status, stage, priority and profile.
func (s *Service) Stats(ctx context.Context, f StatsFilter) (*Stats, error) {
	scope := Filter{CreatedFrom: f.From, CreatedTo: f.To, AssignedTo: f.AssignedTo}.predicate()
	with := func(p *entsql.Predicate) *entsql.Predicate {
		if scope == nil {
			return p
		}
		return entsql.And(scope, p)
	}

	st := &Stats{}
	var err error
	if st.ByStatus, err = s.store.CountBy(ctx, "status", scope); err != nil {
		return nil, err
	}
	if st.ByStage, err = s.store.CountBy(ctx, "stage", scope); err != nil {
		return nil, err
	}
	if st.ByPriority, err = s.store.CountBy(ctx, "priority", scope); err != nil {
		return nil, err
	}
	if st.ByProfile, err = s.store.CountBy(ctx, "enquiry_profile", scope); err != nil {
		return nil, err
	}
	for _, n := range st.ByStatus {
		st.Total += n
	}
	if st.Unassigned, err = s.store.Count(ctx, with(entsql.IsNull("assigned_to"))); err != nil {
		return nil, err
	}
	if st.Duplicates, err = s.store.Count(ctx, with(entsql.EQ("is_duplicate", true))); err != nil {
		return nil, err
	}
	if st.Overdue, err = s.store.Count(ctx, with(overdue(s.now()))); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) notifyDuplicate(ctx context.Context, e *models.Enquiry) {
	if s.notifier == nil || e.DuplicateOf == nil {
		return
	}
	original, err := s.store.Get(ctx, *e.DuplicateOf)
	if err != nil || !original.IsAssigned() {
		return
	}
	n := notify.Notification{
		RecipientID: *original.AssignedTo,
		Title:       fmt.Sprintf("Repeat enquiry from %s", original.CustomerName),
		Message:     fmt.Sprintf("%s was logged as a duplicate of %s.", e.Code, original.Code),
		Priority:    notify.PriorityNormal,
	}
	s.hooks.Go(ctx, "notify_duplicate", func(ctx context.Context) error {
		return s.notifier.Send(ctx, n)
	})
}

func (s *Service) notifyStatus(ctx context.Context, e *models.Enquiry, from models.Status) {
	if s.notifier == nil {
		return
	}
	n := notify.Notification{
		RecipientID: *e.AssignedTo,
		Title:       fmt.Sprintf("Enquiry %s is now %s", e.Code, e.Status),
		Message:     leadlifecycle.StatusRemark(from, e.Status),
		Priority:    notify.PriorityLow,
	}
	s.hooks.Go(ctx, "notify_status", func(ctx context.Context) error {
		return s.notifier.Send(ctx, n)
	})
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
