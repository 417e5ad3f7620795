// Package rules stores assignment rules and selects the rule that applies to an enquiry.
package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/leaddesk/pkg/conditions"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/validation"
)

const table = "assignment_rules"

var columns = []string{
	"id", "name", "description", "is_active", "priority", "rule_type",
	"conditions", "assignment_to", "fallback_user", "created_by", "created_at", "updated_at",
}

// UserLookup resolves candidate assignees.
type UserLookup interface {
	GetMany(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// Service handles assignment rule storage and selection.
type Service struct {
	db        *database.Client
	users     UserLookup
	validator *validation.Validator
	now       func() time.Time
}

// NewService creates a new rule service.
func NewService(db *database.Client, users UserLookup) *Service {
	return &Service{
		db:        db,
		users:     users,
		validator: validation.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RuleRequest creates or fully replaces a rule.
type RuleRequest struct {
	Name         string             `json:"name" validate:"required,max=200"`
	Description  string             `json:"description,omitempty" validate:"max=1000"`
	IsActive     *bool              `json:"is_active,omitempty"`
	Priority     int                `json:"priority"`
	RuleType     models.RuleType    `json:"rule_type" validate:"required,ruletype"`
	Conditions   []models.Condition `json:"conditions" validate:"dive"`
	AssignmentTo []models.Candidate `json:"assignment_to" validate:"dive"`
	FallbackUser *string            `json:"fallback_user,omitempty"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Active   *bool
	RuleType models.RuleType
}

// Create validates and stores a new rule.
func (s *Service) Create(ctx context.Context, req RuleRequest, actor string) (*models.AssignmentRule, error) {
	if err := s.validate(ctx, req); err != nil {
		return nil, err
	}

	now := s.now().Truncate(time.Microsecond)
	rule := &models.AssignmentRule{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		IsActive:     req.IsActive == nil || *req.IsActive,
		Priority:     req.Priority,
		RuleType:     req.RuleType,
		Conditions:   nonNilConditions(req.Conditions),
		AssignmentTo: nonNilCandidates(req.AssignmentTo),
		FallbackUser: req.FallbackUser,
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	condJSON, poolJSON, err := encode(rule)
	if err != nil {
		return nil, err
	}

	insert := s.db.SQL().
		Insert(table).
		Columns(columns...).
		Values(rule.ID, rule.Name, rule.Description, rule.IsActive, rule.Priority, string(rule.RuleType),
			condJSON, poolJSON, nullable(rule.FallbackUser), rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt)
	if _, err := s.db.Exec(ctx, insert); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return rule, nil
}

// Update replaces a rule's definition. The round-robin cursor is kept.
func (s *Service) Update(ctx context.Context, id string, req RuleRequest) (*models.AssignmentRule, error) {
	if err := s.validate(ctx, req); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(req.Name)
	existing.Description = req.Description
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	existing.Priority = req.Priority
	existing.RuleType = req.RuleType
	existing.Conditions = nonNilConditions(req.Conditions)
	existing.AssignmentTo = nonNilCandidates(req.AssignmentTo)
	existing.FallbackUser = req.FallbackUser
	existing.UpdatedAt = s.now().Truncate(time.Microsecond)

	condJSON, poolJSON, err := encode(existing)
	if err != nil {
		return nil, err
	}

	update := s.db.SQL().
		Update(table).
		Set("name", existing.Name).
		Set("description", existing.Description).
		Set("is_active", existing.IsActive).
		Set("priority", existing.Priority).
		Set("rule_type", string(existing.RuleType)).
		Set("conditions", condJSON).
		Set("assignment_to", poolJSON).
		Set("fallback_user", nullable(existing.FallbackUser)).
		Set("updated_at", existing.UpdatedAt).
		Where(entsql.EQ("id", id))
	if _, err := s.db.Exec(ctx, update); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return existing, nil
}

// SetActive toggles a rule.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*models.AssignmentRule, error) {
	update := s.db.SQL().
		Update(table).
		Set("is_active", active).
		Set("updated_at", s.now().Truncate(time.Microsecond)).
		Where(entsql.EQ("id", id))
	res, err := s.db.Exec(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.NewNotFoundError("assignment rule")
	}
	return s.Get(ctx, id)
}

// Delete removes a rule. Assignment logs keep their rule reference.
func (s *Service) Delete(ctx context.Context, id string) error {
	res, err := s.db.Exec(ctx, s.db.SQL().Delete(table).Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFoundError("assignment rule")
	}
	return nil
}

// Get returns a rule by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.AssignmentRule, error) {
	b := s.db.SQL()
	rule, err := scan(s.db.QueryRow(ctx, b.Select(columns...).From(b.Table(table)).Where(entsql.EQ("id", id))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("assignment rule")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rule: %w", err)
	}
	return rule, nil
}

// List returns rules in evaluation order.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*models.AssignmentRule, error) {
	b := s.db.SQL()
	sel := b.Select(columns...).From(b.Table(table))
	if filter.Active != nil {
		sel.Where(entsql.EQ("is_active", *filter.Active))
	}
	if filter.RuleType != "" {
		sel.Where(entsql.EQ("rule_type", string(filter.RuleType)))
	}
	return s.query(ctx, sel)
}

// ActiveRules returns active rules ordered by priority descending.
// Equal priorities fall back to creation order, then ID.
func (s *Service) ActiveRules(ctx context.Context) ([]*models.AssignmentRule, error) {
	active := true
	return s.List(ctx, ListFilter{Active: &active})
}

// Select returns the first active rule whose conditions all match, or nil.
func (s *Service) Select(ctx context.Context, e *models.Enquiry) (*models.AssignmentRule, error) {
	active, err := s.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	for _, rule := range active {
		ok, err := conditions.MatchAll(e, rule.Conditions)
		if err != nil {
			return nil, fmt.Errorf("rule %s (%s): %w", rule.ID, rule.Name, err)
		}
		if ok {
			return rule, nil
		}
	}
	return nil, nil
}

// RuleEvaluation is one line of a preview trace.
type RuleEvaluation struct {
	RuleID   string `json:"rule_id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Matched  bool   `json:"matched"`
	Error    string `json:"error,omitempty"`
}

// PreviewResult explains which rule would apply to an enquiry.
type PreviewResult struct {
	Selected    *models.AssignmentRule `json:"selected,omitempty"`
	Evaluations []RuleEvaluation       `json:"evaluations"`
}

// Preview evaluates every active rule without stopping at the first match.
func (s *Service) Preview(ctx context.Context, e *models.Enquiry) (*PreviewResult, error) {
	active, err := s.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{Evaluations: make([]RuleEvaluation, 0, len(active))}
	for _, rule := range active {
		ev := RuleEvaluation{RuleID: rule.ID, Name: rule.Name, Priority: rule.Priority}
		ok, err := conditions.MatchAll(e, rule.Conditions)
		if err != nil {
			ev.Error = err.Error()
		}
		ev.Matched = ok
		if ok && result.Selected == nil {
			result.Selected = rule
		}
		result.Evaluations = append(result.Evaluations, ev)
	}
	return result, nil
}

// AdvanceCursor increments the rule's round-robin cursor and returns the new value.
func (s *Service) AdvanceCursor(ctx context.Context, ruleID string) (int64, error) {
	var cursor int64
	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		b := s.db.SQL()
		res, err := s.db.Exec(ctx, b.Update(table).Add("rr_cursor", 1).Where(entsql.EQ("id", ruleID)))
		if err != nil {
			return fmt.Errorf("failed to advance cursor: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NewNotFoundError("assignment rule")
		}
		return s.db.QueryRow(ctx, b.Select("rr_cursor").From(b.Table(table)).Where(entsql.EQ("id", ruleID))).Scan(&cursor)
	})
	return cursor, err
}

func (s *Service) query(ctx context.Context, sel *entsql.Selector) ([]*models.AssignmentRule, error) {
	sel.OrderBy(entsql.Desc("priority"), entsql.Asc("created_at"), entsql.Asc("id"))

	rows, err := s.db.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []*models.AssignmentRule
	for rows.Next() {
		rule, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *Service) validate(ctx context.Context, req RuleRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	var details []string
	for i, c := range req.Conditions {
		if err := conditions.ValidateCondition(c); err != nil {
			details = append(details, fmt.Sprintf("conditions[%d]: %v", i, err))
		}
	}

	switch req.RuleType {
	case models.RuleTypeRoundRobin, models.RuleTypeLoadBased:
		if len(req.AssignmentTo) == 0 {
			details = append(details, fmt.Sprintf("assignment_to must not be empty for %s rules", req.RuleType))
		}
	case models.RuleTypeFallback:
		if req.FallbackUser == nil || *req.FallbackUser == "" {
			details = append(details, "fallback_user is required for fallback rules")
		}
	}

	ids := make([]string, 0, len(req.AssignmentTo)+1)
	seen := map[string]bool{}
	for _, c := range req.AssignmentTo {
		if seen[c.UserID] {
			details = append(details, fmt.Sprintf("assignment_to lists user %s more than once", c.UserID))
			continue
		}
		seen[c.UserID] = true
		ids = append(ids, c.UserID)
	}
	if req.FallbackUser != nil && *req.FallbackUser != "" {
		ids = append(ids, *req.FallbackUser)
	}

	if len(ids) > 0 && s.users != nil {
		found, err := s.users.GetMany(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				details = append(details, fmt.Sprintf("user %s does not exist", id))
			}
		}
	}

	if len(details) > 0 {
		return domain.NewValidationError("invalid assignment rule", details...)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.AssignmentRule, error) {
	var (
		r        models.AssignmentRule
		ruleType string
		condJSON string
		poolJSON string
		fallback sql.NullString
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.IsActive, &r.Priority, &ruleType,
		&condJSON, &poolJSON, &fallback, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.RuleType = models.RuleType(ruleType)
	if fallback.Valid {
		r.FallbackUser = &fallback.String
	}
	if err := json.Unmarshal([]byte(condJSON), &r.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(poolJSON), &r.AssignmentTo); err != nil {
		return nil, fmt.Errorf("decode assignment_to: %w", err)
	}
	r.Conditions = nonNilConditions(r.Conditions)
	r.AssignmentTo = nonNilCandidates(r.AssignmentTo)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func encode(r *models.AssignmentRule) (string, string, error) {
	cond, err := json.Marshal(r.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("encode conditions: %w", err)
	}
	pool, err := json.Marshal(r.AssignmentTo)
	if err != nil {
		return "", "", fmt.Errorf("encode assignment_to: %w", err)
	}
	return string(cond), string(pool), nil
}

func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nonNilConditions(c []models.Condition) []models.Condition {
	if c == nil {
		return []models.Condition{}
	}
	return c
}

func nonNilCandidates(c []models.Candidate) []models.Candidate {
	if c == nil {
		return []models.Candidate{}
	}
	return c
}
