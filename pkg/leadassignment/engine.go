// Package leadassignment routes enquiries to agents using prioritised assignment rules.
package leadassignment

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/assignmentlog"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/hooks"
	"github.com/jordanlanch/leaddesk/pkg/leadlifecycle"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/notify"
)

// EnquiryStore loads enquiries and persists assignment state.
type EnquiryStore interface {
	Get(ctx context.Context, id string) (*models.Enquiry, error)
	// SaveAssignment writes assignee, team, stage and version only if the stored
	// assignment_version still equals expectedVersion. Otherwise it returns a CONFLICT error.
	SaveAssignment(ctx context.Context, e *models.Enquiry, expectedVersion int64) error
	// MarkPending sets stage Assignment Pending under the same version guard.
	MarkPending(ctx context.Context, id string, expectedVersion int64, now time.Time) error
}

// RuleSelector returns the first matching active rule or nil.
type RuleSelector interface {
	Select(ctx context.Context, e *models.Enquiry) (*models.AssignmentRule, error)
}

// UserLookup resolves candidate agents.
type UserLookup interface {
	GetMany(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// Recorder appends assignment history.
type Recorder interface {
	Record(ctx context.Context, entry assignmentlog.Entry) (*models.AssignmentLog, error)
}

// OutcomeStatus summarises an auto-assignment attempt.
type OutcomeStatus string

const (
	OutcomeAssigned  OutcomeStatus = "assigned"
	OutcomePending   OutcomeStatus = "pending"
	OutcomeUnchanged OutcomeStatus = "unchanged"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeConflict  OutcomeStatus = "conflict"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome reports what AutoAssign did. Err carries the logged cause, if any.
type Outcome struct {
	Status    OutcomeStatus           `json:"status"`
	EnquiryID string                  `json:"enquiry_id"`
	Assignee  string                  `json:"assignee,omitempty"`
	RuleID    string                  `json:"rule_id,omitempty"`
	Method    models.AssignmentMethod `json:"method,omitempty"`
	Reason    string                  `json:"reason,omitempty"`
	Err       error                   `json:"-"`
}

// Deps wires an Engine.
type Deps struct {
	Store    EnquiryStore
	Rules    RuleSelector
	Users    UserLookup
	Recorder Recorder
	Cursors  CursorStore
	Loads    LoadCounter
	Hooks    *hooks.Runner
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   logger.Logger
	Now      func() time.Time
}

// Engine applies assignment rules and manual assignments.
type Engine struct {
	store      EnquiryStore
	rules      RuleSelector
	users      UserLookup
	recorder   Recorder
	hooks      *hooks.Runner
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	log        logger.Logger
	now        func() time.Time
	strategies map[models.RuleType]Strategy
}

// NewEngine creates an engine with the built-in strategies.
func NewEngine(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Hooks == nil {
		d.Hooks = hooks.NewRunner(d.Logger, false)
	}

	return &Engine{
		store:    d.Store,
		rules:    d.Rules,
		users:    d.Users,
		recorder: d.Recorder,
		hooks:    d.Hooks,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		log:      d.Logger,
		now:      d.Now,
		strategies: map[models.RuleType]Strategy{
			models.RuleTypeRoundRobin: NewRoundRobin(d.Cursors),
			models.RuleTypeLoadBased:  NewLoadBased(d.Loads, d.Now),
			models.RuleTypeManual:     Manual{},
			models.RuleTypeFallback:   Fallback{},
		},
	}
}

// RegisterStrategy replaces the strategy used for a rule type.
func (en *Engine) RegisterStrategy(t models.RuleType, s Strategy) {
	en.strategies[t] = s
}

// AutoAssign runs rule based assignment for one enquiry. It never returns an error:
// failures leave the enquiry unassigned in Assignment Pending and are logged.
func (en *Engine) AutoAssign(ctx context.Context, enquiryID, actor string) Outcome {
	out := en.autoAssign(ctx, enquiryID, actor)
	en.metrics.RecordAssignment(string(out.Status), string(out.Method))

	log := en.log.With("enquiry_id", enquiryID, "rule_id", out.RuleID, "outcome", string(out.Status))
	switch {
	case out.Err != nil:
		log.Warn("auto-assignment did not complete", "reason", out.Reason, "error", out.Err)
	case out.Status == OutcomeAssigned:
		log.Info("enquiry auto-assigned", "assignee", out.Assignee, "method", string(out.Method))
	default:
		log.Debug("auto-assignment finished", "reason", out.Reason)
	}
	return out
}

func (en *Engine) autoAssign(ctx context.Context, enquiryID, actor string) Outcome {
	out := Outcome{EnquiryID: enquiryID}

	e, err := en.store.Get(ctx, enquiryID)
	if err != nil {
		out.Status, out.Reason, out.Err = OutcomeFailed, "enquiry could not be loaded", err
		return out
	}
	if !leadlifecycle.CanAutoAssign(e) {
		out.Status, out.Reason = OutcomeSkipped, "enquiry is not eligible for auto-assignment"
		return out
	}
	// owners change only through Assign
	if e.IsAssigned() {
		out.Status, out.Assignee, out.Reason = OutcomeUnchanged, *e.AssignedTo, "already assigned"
		return out
	}
	version := e.AssignmentVersion

	rule, err := en.rules.Select(ctx, e)
	if err != nil {
		return en.pending(ctx, e, version, out, "rule evaluation failed", err)
	}
	if rule == nil {
		return en.pending(ctx, e, version, out, "no assignment rule matched", nil)
	}
	out.RuleID = rule.ID

	strategy, ok := en.strategies[rule.RuleType]
	if !ok {
		return en.pending(ctx, e, version, out, "unsupported rule type", fmt.Errorf("no strategy for %q", rule.RuleType))
	}

	pool, err := en.eligiblePool(ctx, rule.AssignmentTo)
	if err != nil {
		return en.pending(ctx, e, version, out, "candidate lookup failed", err)
	}

	decision, err := strategy.Pick(ctx, rule, pool)
	if err != nil {
		return en.pending(ctx, e, version, out, "strategy failed", err)
	}
	out.Method = decision.Method

	switch {
	case decision.NoOp:
		out.Status, out.Reason = OutcomeUnchanged, decision.Reason
		return out
	case decision.Pending:
		return en.pending(ctx, e, version, out, decision.Reason, nil)
	}

	assignee, err := en.activeUser(ctx, decision.Assignee)
	if err != nil {
		return en.pending(ctx, e, version, out, "selected assignee is unavailable", err)
	}

	now := en.now()
	leadlifecycle.MarkAssigned(e, assignee.ID, assignee.Team, now)
	if err := en.store.SaveAssignment(ctx, e, version); err != nil {
		if domain.IsConflict(err) {
			out.Status, out.Reason, out.Err = OutcomeConflict, "enquiry changed concurrently", err
			return out
		}
		out.Status, out.Reason, out.Err = OutcomeFailed, "assignment could not be saved", err
		return out
	}

	var by *string
	if actor != "" {
		by = &actor
	}
	entryType := models.AssignmentTypeAuto
	en.record(ctx, e, assignmentlog.Entry{
		EnquiryID:   e.ID,
		NewAssignee: &assignee.ID,
		AssignedBy:  by,
		RuleID:      &rule.ID,
		Type:        entryType,
		Reason:      fmt.Sprintf("rule %q: %s", rule.Name, decision.Reason),
		Method:      decision.Method,
		Metadata:    decision.Metadata,
	})

	out.Status, out.Assignee, out.Reason = OutcomeAssigned, assignee.ID, decision.Reason
	return out
}

// pending parks an unassigned enquiry in Assignment Pending. An enquiry that already has
// an owner keeps it and its stage.
func (en *Engine) pending(ctx context.Context, e *models.Enquiry, version int64, out Outcome, reason string, cause error) Outcome {
	out.Status, out.Reason, out.Err = OutcomePending, reason, cause
	if e.IsAssigned() || e.Stage == models.StageAssignmentPending {
		return out
	}
	if err := en.store.MarkPending(ctx, e.ID, version, en.now()); err != nil {
		if domain.IsConflict(err) {
			out.Status = OutcomeConflict
		}
		if cause == nil {
			out.Err = err
		} else {
			out.Err = fmt.Errorf("%w (marking pending: %v)", cause, err)
		}
		return out
	}
	e.Stage = models.StageAssignmentPending
	return out
}

// AssignRequest is a human assignment decision.
type AssignRequest struct {
	EnquiryID  string
	AssigneeID string
	Reason     string
	Actor      string
	// Type defaults to manual, or reassignment when the enquiry already has an owner.
	Type models.AssignmentType
}

// Assign sets the owner of an enquiry on behalf of a user. Role checks are done by the caller.
func (en *Engine) Assign(ctx context.Context, req AssignRequest) (*models.Enquiry, error) {
	if req.AssigneeID == "" {
		return nil, domain.NewValidationError("assignee is required", "assigned_to is required")
	}

	assignee, err := en.activeUser(ctx, req.AssigneeID)
	if err != nil {
		return nil, err
	}

	e, err := en.store.Get(ctx, req.EnquiryID)
	if err != nil {
		return nil, err
	}
	if !leadlifecycle.CanAssign(e) {
		return nil, domain.NewConflictError(fmt.Sprintf("enquiry in status %s cannot be assigned", e.Status))
	}
	if e.IsAssigned() && *e.AssignedTo == assignee.ID {
		return nil, domain.NewValidationError("enquiry is already assigned to this user")
	}

	version := e.AssignmentVersion
	old := copyPtr(e.AssignedTo)
	leadlifecycle.MarkAssigned(e, assignee.ID, assignee.Team, en.now())
	if err := en.store.SaveAssignment(ctx, e, version); err != nil {
		return nil, err
	}

	entryType := req.Type
	if entryType == "" {
		entryType = models.AssignmentTypeManual
		if old != nil {
			entryType = models.AssignmentTypeReassignment
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = "assigned by user"
	}

	var by *string
	if req.Actor != "" {
		actor := req.Actor
		by = &actor
	}
	en.record(ctx, e, assignmentlog.Entry{
		EnquiryID:   e.ID,
		OldAssignee: old,
		NewAssignee: &assignee.ID,
		AssignedBy:  by,
		Type:        entryType,
		Reason:      reason,
		Method:      models.MethodManual,
	})
	en.metrics.RecordAssignment(string(OutcomeAssigned), string(models.MethodManual))

	en.log.Info("enquiry assigned",
		"enquiry_id", e.ID,
		"assignee", assignee.ID,
		"assigned_by", req.Actor,
		"type", string(entryType),
	)
	return e, nil
}

// record writes the history entry and schedules the assignee notification.
// Neither failure undoes the assignment.
func (en *Engine) record(ctx context.Context, e *models.Enquiry, entry assignmentlog.Entry) {
	if en.recorder != nil {
		if _, err := en.recorder.Record(ctx, entry); err != nil {
			en.log.Error("failed to record assignment log", "enquiry_id", e.ID, "error", err)
			en.metrics.RecordSideEffectFailure("assignment_log")
		}
	}

	if en.notifier == nil || entry.NewAssignee == nil {
		return
	}
	n := notify.Notification{
		RecipientID: *entry.NewAssignee,
		Title:       fmt.Sprintf("Enquiry %s assigned to you", e.Code),
		Message: fmt.Sprintf("%s (%s, %s priority) is now yours. Respond by %s.",
			e.CustomerName, e.Profile, e.Priority, e.ResponseDue.Format(time.RFC1123)),
		Priority: notify.PriorityNormal,
	}
	if e.Priority == models.PriorityHigh {
		n.Priority = notify.PriorityHigh
	}
	en.hooks.Go(ctx, "notify_assignment", func(ctx context.Context) error {
		return en.notifier.Send(ctx, n)
	})
}

// eligiblePool keeps active, existing candidates in rule order.
func (en *Engine) eligiblePool(ctx context.Context, candidates []models.Candidate) ([]models.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.UserID
	}
	found, err := en.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	pool := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if u, ok := found[c.UserID]; ok && u.IsActive {
			pool = append(pool, c)
		}
	}
	return pool, nil
}

func (en *Engine) activeUser(ctx context.Context, id string) (*models.User, error) {
	found, err := en.users.GetMany(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	u, ok := found[id]
	if !ok {
		return nil, domain.NewNotFoundError("user")
	}
	if !u.IsActive {
		return nil, domain.NewValidationError("assignee is not active", fmt.Sprintf("user %s is deactivated", id))
	}
	return u, nil
}

func copyPtr(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
