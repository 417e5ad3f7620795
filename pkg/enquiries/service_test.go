package enquiries

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jordanlanch/leaddesk/pkg/assignmentlog"
	"github.com/jordanlanch/leaddesk/pkg/cache"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/database/dbtest"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leadassignment"
	"github.com/jordanlanch/leaddesk/pkg/leadlifecycle"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/notify"
	"github.com/jordanlanch/leaddesk/pkg/rules"
	"github.com/jordanlanch/leaddesk/pkg/users"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Title
	}
	return out
}

type env struct {
	db     *database.Client
	svc    *Service
	store  *Store
	users  *users.Service
	rules  *rules.Service
	logs   *assignmentlog.Service
	notes  *recordingNotifier
	clock  *testClock
	agent1 *models.User
	agent2 *models.User
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db := dbtest.Open(t)

	userSvc := users.NewService(db)
	ruleSvc := rules.NewService(db, userSvc)
	logSvc := assignmentlog.NewService(db)
	store := NewStore(db)
	notes := &recordingNotifier{}
	clock := &testClock{t: t0}

	engine := leadassignment.NewEngine(leadassignment.Deps{
		Store:    store,
		Rules:    ruleSvc,
		Users:    userSvc,
		Recorder: logSvc,
		Cursors:  ruleSvc,
		Loads:    leadassignment.NewSQLLoadCounter(db, logSvc),
		Notifier: notes,
		Now:      clock.now,
	})
	svc := NewService(Deps{
		DB:       db,
		Store:    store,
		Assigner: engine,
		Users:    userSvc,
		Notifier: notes,
	})
	svc.now = clock.now

	a1, err := userSvc.Create(ctx, users.CreateUserRequest{Name: "Asha", Email: "asha@example.com", Role: models.RoleSalesAgent, Team: "North"})
	require.NoError(t, err)
	a2, err := userSvc.Create(ctx, users.CreateUserRequest{Name: "Bilal", Email: "bilal@example.com", Role: models.RoleSalesAgent, Team: "North"})
	require.NoError(t, err)

	return &env{
		db: db, svc: svc, store: store, users: userSvc, rules: ruleSvc, logs: logSvc,
		notes: notes, clock: clock, agent1: a1, agent2: a2,
	}
}

func (e *env) productRule(t *testing.T) *models.AssignmentRule {
	t.Helper()
	rule, err := e.rules.Create(context.Background(), rules.RuleRequest{
		Name:     "Products and projects",
		Priority: 10,
		RuleType: models.RuleTypeRoundRobin,
		Conditions: []models.Condition{
			{Field: "enquiry_profile", Operator: models.OpIn, Value: []any{"Product", "Project"}},
		},
		AssignmentTo: []models.Candidate{
			{UserID: e.agent1.ID, Weight: 1},
			{UserID: e.agent2.ID, Weight: 1},
		},
	}, "admin")
	require.NoError(t, err)
	return rule
}

func request(phone string, profile models.Profile) CreateRequest {
	return CreateRequest{
		CustomerName: "Ravi Kumar",
		Phone:        phone,
		Email:        "Ravi@Example.com",
		Company:      "Kumar Traders",
		City:         "Pune",
		TypeOfLead:   models.LeadTypeB2B,
		Profile:      profile,
		SourceType:   "Website",
		ChannelType:  "Web Form",
	}
}

func TestCreate_InitialState(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	got, err := e.svc.Create(ctx, request("98765 43210", models.ProfileUnknown), "telecaller")
	require.NoError(t, err)

	assert.Equal(t, "ENQ-000001", got.Code)
	assert.Equal(t, models.StatusUnknown, got.Status)
	assert.Equal(t, models.StageTelecallerQueue, got.Stage)
	assert.Equal(t, models.PriorityMedium, got.Priority)
	assert.Equal(t, "ravi@example.com", got.Email)
	assert.WithinDuration(t, t0.Add(4*time.Hour), got.ResponseDue, 0)
	assert.WithinDuration(t, t0.Add(48*time.Hour), got.ResolutionDue, 0)
	assert.Nil(t, got.AssignedTo)
	assert.False(t, got.IsDuplicate)
	assert.Empty(t, got.Remarks)

	second, err := e.svc.Create(ctx, request("91234 56789", models.ProfileProduct), "telecaller")
	require.NoError(t, err)
	assert.Equal(t, "ENQ-000002", second.Code)
	assert.Equal(t, models.StatusNew, second.Status)
}

func TestCreate_AutoAssignsMatchingRule(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	rule := e.productRule(t)

	got, err := e.svc.Create(ctx, request("98765 43210", models.ProfileProduct), "telecaller")
	require.NoError(t, err)

	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, e.agent1.ID, *got.AssignedTo)
	assert.Equal(t, "North", got.AssignedTeam)
	assert.Equal(t, models.StageAssigned, got.Stage)
	assert.Equal(t, models.StatusNew, got.Status)

	history, err := e.logs.History(ctx, got.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].OldAssignee)
	require.NotNil(t, history[0].NewAssignee)
	assert.Equal(t, e.agent1.ID, *history[0].NewAssignee)
	assert.Equal(t, models.AssignmentTypeAuto, history[0].AssignmentType)
	assert.Equal(t, models.MethodRoundRobin, history[0].AssignmentMethod)
	require.NotNil(t, history[0].RuleID)
	assert.Equal(t, rule.ID, *history[0].RuleID)

	assert.Equal(t, []string{fmt.Sprintf("Enquiry %s assigned to you", got.Code)}, e.notes.titles())
}

func TestCreate_RoundRobinCoversPool(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.productRule(t)

	var assignees []string
	for i := 0; i < 4; i++ {
		got, err := e.svc.Create(ctx, request(fmt.Sprintf("9000000%03d", i), models.ProfileProject), "telecaller")
		require.NoError(t, err)
		require.NotNil(t, got.AssignedTo)
		assignees = append(assignees, *got.AssignedTo)
	}

	assert.Equal(t, []string{e.agent1.ID, e.agent2.ID, e.agent1.ID, e.agent2.ID}, assignees)
}

func TestCreate_NoMatchingRuleLeavesPending(t *testing.T) {
	e := setup(t)

	got, err := e.svc.Create(context.Background(), request("98765 43210", models.ProfileComplaint), "telecaller")
	require.NoError(t, err)

	assert.Nil(t, got.AssignedTo)
	assert.Equal(t, models.StatusNew, got.Status)
	assert.Equal(t, models.StageAssignmentPending, got.Stage)
}

func TestCreate_InactiveRulesLeavePending(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	rule := e.productRule(t)
	_, err := e.rules.SetActive(ctx, rule.ID, false)
	require.NoError(t, err)

	got, err := e.svc.Create(ctx, request("98765 43210", models.ProfileProduct), "telecaller")
	require.NoError(t, err)

	assert.Nil(t, got.AssignedTo)
	assert.Equal(t, models.StageAssignmentPending, got.Stage)
}

func TestCreate_DuplicateWithinWindow(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.productRule(t)

	original, err := e.svc.Create(ctx, request("98765 43210", models.ProfileProduct), "telecaller")
	require.NoError(t, err)

	e.clock.advance(3 * 24 * time.Hour)
	dup, err := e.svc.Create(ctx, request("98765-43210", models.ProfileProduct), "telecaller")
	require.NoError(t, err)

	assert.True(t, dup.IsDuplicate)
	require.NotNil(t, dup.DuplicateOf)
	assert.Equal(t, original.ID, *dup.DuplicateOf)
	assert.Equal(t, models.StatusDuplicate, dup.Status)
	assert.Equal(t, models.StageValidation, dup.Stage)
	assert.Nil(t, dup.AssignedTo)

	history, err := e.logs.History(ctx, dup.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Contains(t, e.notes.titles(), "Repeat enquiry from Ravi Kumar")

	e.clock.advance(8 * 24 * time.Hour)
	later, err := e.svc.Create(ctx, request("98765 43210", models.ProfileProduct), "telecaller")
	require.NoError(t, err)
	assert.False(t, later.IsDuplicate)
	assert.NotNil(t, later.AssignedTo)
}

func TestCreate_Validation(t *testing.T) {
	e := setup(t)

	_, err := e.svc.Create(context.Background(), CreateRequest{Email: "nope", TypeOfLead: "B2X"}, "u")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Len(t, de.Details, 4)
}

func TestUpdate_PriorityRecomputesFromCreation(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileUnknown), "telecaller")
	require.NoError(t, err)

	e.clock.advance(time.Hour)
	high := models.PriorityHigh
	got, err := e.svc.Update(ctx, created.ID, UpdateRequest{Priority: &high}, "head")
	require.NoError(t, err)

	assert.Equal(t, models.PriorityHigh, got.Priority)
	assert.WithinDuration(t, t0.Add(2*time.Hour), got.ResponseDue, 0)
	assert.WithinDuration(t, t0.Add(24*time.Hour), got.ResolutionDue, 0)
	assert.WithinDuration(t, t0.Add(time.Hour), got.UpdatedAt, 0)
}

func TestUpdate_ProfileIdentifiedThenStatus(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.productRule(t)

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileUnknown), "telecaller")
	require.NoError(t, err)
	require.Nil(t, created.AssignedTo)

	profile := models.ProfileProduct
	status := models.StatusInProgress
	got, err := e.svc.Update(ctx, created.ID, UpdateRequest{Profile: &profile, Status: &status}, "telecaller")
	require.NoError(t, err)

	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, e.agent1.ID, *got.AssignedTo)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, models.StageActionInProgress, got.Stage)

	texts := make([]string, len(got.Remarks))
	for i, r := range got.Remarks {
		texts[i] = r.Text
	}
	assert.Equal(t, []string{
		leadlifecycle.StatusRemark(models.StatusUnknown, models.StatusNew),
		leadlifecycle.StatusRemark(models.StatusNew, models.StatusInProgress),
	}, texts)
}

func TestUpdate_ProfileIdentifiedWithoutRule(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileUnknown), "telecaller")
	require.NoError(t, err)

	profile := models.ProfileJob
	got, err := e.svc.Update(ctx, created.ID, UpdateRequest{Profile: &profile}, "telecaller")
	require.NoError(t, err)

	assert.Equal(t, models.StatusNew, got.Status)
	assert.Equal(t, models.StageAssignmentPending, got.Stage)
	assert.Nil(t, got.AssignedTo)
}

func TestUpdate_Fields(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileUnknown), "telecaller")
	require.NoError(t, err)

	name := "  Ravi K.  "
	value := 125000.0
	remark := "Called back, wants a quote"
	got, err := e.svc.Update(ctx, created.ID, UpdateRequest{CustomerName: &name, EstimatedValue: &value, Remark: &remark}, "telecaller")
	require.NoError(t, err)

	assert.Equal(t, "Ravi K.", got.CustomerName)
	assert.Equal(t, 125000.0, got.EstimatedValue)
	require.Len(t, got.Remarks, 1)
	assert.Equal(t, remark, got.Remarks[0].Text)
	assert.Equal(t, "telecaller", got.Remarks[0].AddedBy)

	_, err = e.svc.Update(ctx, "missing", UpdateRequest{CustomerName: &name}, "telecaller")
	assert.True(t, domain.IsNotFound(err))
}

func TestUpdateStatus_Transitions(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileProduct), "telecaller")
	require.NoError(t, err)
	require.Equal(t, models.StatusNew, created.Status)

	steps := []struct {
		status models.Status
		stage  models.Stage
		closed bool
	}{
		{models.StatusInProgress, models.StageActionInProgress, false},
		{models.StatusQuoted, models.StageQuoted, false},
		{models.StatusConverted, models.StageClosedConverted, true},
		{models.StatusInProgress, models.StageActionInProgress, false},
		{models.StatusRejected, models.StageClosedRejected, true},
		{models.StatusArchived, models.StageArchived, false},
	}

	from := created.Status
	for i, step := range steps {
		e.clock.advance(time.Minute)
		got, err := e.svc.UpdateStatus(ctx, created.ID, step.status, "", "agent")
		require.NoError(t, err)

		assert.Equal(t, step.status, got.Status)
		assert.Equal(t, step.stage, got.Stage)
		require.Len(t, got.Remarks, i+1)
		assert.Equal(t, leadlifecycle.StatusRemark(from, step.status), got.Remarks[i].Text)
		if step.closed {
			require.NotNil(t, got.ClosedAt)
			assert.WithinDuration(t, e.clock.now(), *got.ClosedAt, 0)
		} else if step.status != models.StatusArchived {
			assert.Nil(t, got.ClosedAt)
		}
		from = step.status
	}
}

func TestUpdateStatus_SameStatusAddsNoRemark(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileProduct), "telecaller")
	require.NoError(t, err)

	got, err := e.svc.UpdateStatus(ctx, created.ID, models.StatusNew, "", "agent")
	require.NoError(t, err)
	assert.Empty(t, got.Remarks)

	got, err = e.svc.UpdateStatus(ctx, created.ID, models.StatusNew, "left voicemail", "agent")
	require.NoError(t, err)
	require.Len(t, got.Remarks, 1)
	assert.Equal(t, "left voicemail", got.Remarks[0].Text)
}

func TestUpdateStatus_UnmappedKeepsStage(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileProduct), "telecaller")
	require.NoError(t, err)
	stage := created.Stage

	got, err := e.svc.UpdateStatus(ctx, created.ID, models.StatusDuplicate, "", "head")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDuplicate, got.Status)
	assert.Equal(t, stage, got.Stage)
	require.Len(t, got.Remarks, 1)

	_, err = e.svc.UpdateStatus(ctx, created.ID, "Lost", "", "head")
	assert.True(t, domain.IsValidation(err))
}

func TestUpdateStatus_BackToNewReassigns(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileProduct), "telecaller")
	require.NoError(t, err)
	require.Nil(t, created.AssignedTo)

	_, err = e.svc.UpdateStatus(ctx, created.ID, models.StatusInProgress, "", "head")
	require.NoError(t, err)
	e.productRule(t)

	got, err := e.svc.UpdateStatus(ctx, created.ID, models.StatusNew, "", "head")
	require.NoError(t, err)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, models.StageAssigned, got.Stage)
}

func TestAssign_ManualThenReassign(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileComplaint), "telecaller")
	require.NoError(t, err)

	got, err := e.svc.Assign(ctx, created.ID, e.agent1.ID, "", "head")
	require.NoError(t, err)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, e.agent1.ID, *got.AssignedTo)
	assert.Equal(t, models.StageAssigned, got.Stage)
	assert.EqualValues(t, 1, got.AssignmentVersion)

	_, err = e.svc.Assign(ctx, created.ID, e.agent1.ID, "", "head")
	assert.True(t, domain.IsValidation(err))

	got, err = e.svc.Assign(ctx, created.ID, e.agent2.ID, "workload", "head")
	require.NoError(t, err)
	assert.Equal(t, e.agent2.ID, *got.AssignedTo)

	history, err := e.logs.History(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.AssignmentTypeManual, history[0].AssignmentType)
	assert.Nil(t, history[0].OldAssignee)
	assert.NotNil(t, history[0].AssignmentDuration)
	assert.Equal(t, models.AssignmentTypeReassignment, history[1].AssignmentType)
	require.NotNil(t, history[1].OldAssignee)
	assert.Equal(t, e.agent1.ID, *history[1].OldAssignee)
	assert.Equal(t, "workload", history[1].AssignmentReason)
	require.NotNil(t, history[1].AssignedBy)
	assert.Equal(t, "head", *history[1].AssignedBy)
}

func TestAssign_Errors(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileComplaint), "telecaller")
	require.NoError(t, err)

	_, err = e.svc.Assign(ctx, created.ID, "nobody", "", "head")
	assert.True(t, domain.IsNotFound(err))

	_, err = e.users.SetActive(ctx, e.agent2.ID, false)
	require.NoError(t, err)
	_, err = e.svc.Assign(ctx, created.ID, e.agent2.ID, "", "head")
	assert.True(t, domain.IsValidation(err))

	_, err = e.svc.Assign(ctx, "missing", e.agent1.ID, "", "head")
	assert.True(t, domain.IsNotFound(err))
}

func TestAssign_KeepsStageOfWorkedEnquiry(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileComplaint), "telecaller")
	require.NoError(t, err)
	_, err = e.svc.Assign(ctx, created.ID, e.agent1.ID, "", "head")
	require.NoError(t, err)
	_, err = e.svc.UpdateStatus(ctx, created.ID, models.StatusInProgress, "", "agent1")
	require.NoError(t, err)

	got, err := e.svc.Assign(ctx, created.ID, e.agent2.ID, "handover", "head")
	require.NoError(t, err)
	assert.Equal(t, e.agent2.ID, *got.AssignedTo)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, models.StageActionInProgress, got.Stage)
}

func TestAssign_RejectsClosedEnquiry(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileComplaint), "telecaller")
	require.NoError(t, err)
	_, err = e.svc.Assign(ctx, created.ID, e.agent1.ID, "", "head")
	require.NoError(t, err)
	_, err = e.svc.UpdateStatus(ctx, created.ID, models.StatusConverted, "", "agent1")
	require.NoError(t, err)

	_, err = e.svc.Assign(ctx, created.ID, e.agent2.ID, "", "head")
	assert.True(t, domain.IsConflict(err))

	res, err := e.svc.BulkAssign(ctx, []string{created.ID}, e.agent2.ID, "", "head")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Modified)
	assert.Len(t, res.Failed, 1)

	got, err := e.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, e.agent1.ID, *got.AssignedTo)
	assert.Equal(t, models.StatusConverted, got.Status)
	assert.Equal(t, models.StageClosedConverted, got.Stage)
	assert.NotNil(t, got.ClosedAt)

	history, err := e.logs.History(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAutoAssign_KeepsExistingOwner(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.productRule(t)

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileProduct), "telecaller")
	require.NoError(t, err)
	require.NotNil(t, created.AssignedTo)
	owner := *created.AssignedTo

	out, err := e.svc.AutoAssign(ctx, created.ID, "telecaller")
	require.NoError(t, err)
	assert.Equal(t, leadassignment.OutcomeUnchanged, out.Status)
	assert.Equal(t, "already assigned", out.Reason)

	got, err := e.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, *got.AssignedTo)

	history, err := e.logs.History(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStore_SaveAssignmentDetectsConflict(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileComplaint), "telecaller")
	require.NoError(t, err)

	stale, err := e.store.Get(ctx, created.ID)
	require.NoError(t, err)

	_, err = e.svc.Assign(ctx, created.ID, e.agent1.ID, "", "head")
	require.NoError(t, err)

	version := stale.AssignmentVersion
	leadlifecycle.MarkAssigned(stale, e.agent2.ID, "", e.clock.now())
	err = e.store.SaveAssignment(ctx, stale, version)
	assert.True(t, domain.IsConflict(err))

	got, err := e.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, e.agent1.ID, *got.AssignedTo)

	err = e.store.MarkPending(ctx, created.ID, version, e.clock.now())
	assert.True(t, domain.IsConflict(err))
	err = e.store.MarkPending(ctx, "missing", 0, e.clock.now())
	assert.True(t, domain.IsNotFound(err))
}

func TestAddRemark(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileUnknown), "telecaller")
	require.NoError(t, err)

	_, err = e.svc.AddRemark(ctx, created.ID, "first", "a")
	require.NoError(t, err)
	e.clock.advance(time.Minute)
	_, err = e.svc.AddRemark(ctx, created.ID, "second", "b")
	require.NoError(t, err)

	got, err := e.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Remarks, 2)
	assert.Equal(t, "first", got.Remarks[0].Text)
	assert.Equal(t, "second", got.Remarks[1].Text)
	assert.Equal(t, "b", got.Remarks[1].AddedBy)
	assert.NotEmpty(t, got.Remarks[0].ID)

	_, err = e.svc.AddRemark(ctx, created.ID, "   ", "a")
	assert.True(t, domain.IsValidation(err))
	_, err = e.svc.AddRemark(ctx, "missing", "x", "a")
	assert.True(t, domain.IsNotFound(err))
}

func TestBulkUpdateStatus(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	a, err := e.svc.Create(ctx, request("9000000001", models.ProfileProduct), "t")
	require.NoError(t, err)
	b, err := e.svc.Create(ctx, request("9000000002", models.ProfileProduct), "t")
	require.NoError(t, err)
	_, err = e.svc.UpdateStatus(ctx, b.ID, models.StatusInProgress, "", "t")
	require.NoError(t, err)

	res, err := e.svc.BulkUpdateStatus(ctx, []string{a.ID, b.ID, "missing", a.ID}, models.StatusInProgress, "head")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Modified)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "missing", res.Failed[0].ID)

	got, err := e.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageActionInProgress, got.Stage)

	_, err = e.svc.BulkUpdateStatus(ctx, nil, models.StatusInProgress, "head")
	assert.True(t, domain.IsValidation(err))
}

func TestBulkAssign(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	a, err := e.svc.Create(ctx, request("9000000001", models.ProfileComplaint), "t")
	require.NoError(t, err)
	b, err := e.svc.Create(ctx, request("9000000002", models.ProfileComplaint), "t")
	require.NoError(t, err)
	_, err = e.svc.Assign(ctx, b.ID, e.agent1.ID, "", "head")
	require.NoError(t, err)

	res, err := e.svc.BulkAssign(ctx, []string{a.ID, b.ID, "missing"}, e.agent1.ID, "rebalance", "head")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Modified)
	assert.Len(t, res.Failed, 1)

	history, err := e.logs.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.AssignmentTypeBulk, history[0].AssignmentType)

	_, err = e.svc.BulkAssign(ctx, []string{a.ID}, "nobody", "", "head")
	assert.True(t, domain.IsNotFound(err))
}

func TestImport_AllOrNothing(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	bad := request("", models.ProfileProduct)
	_, err := e.svc.Import(ctx, []CreateRequest{
		request("9000000001", models.ProfileProduct),
		bad,
	}, "admin")
	require.Error(t, err)
	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"row 2: phone is required"}, de.Details)

	_, page, err := e.svc.List(ctx, Filter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	res, err := e.svc.Import(ctx, []CreateRequest{
		request("9000000001", models.ProfileProduct),
		request("9000000001", models.ProfileProduct),
		request("9000000003", models.ProfileUnknown),
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, []string{"ENQ-000001", "ENQ-000002", "ENQ-000003"}, res.Codes)
}

func TestListFiltersAndPaging(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		req := request(fmt.Sprintf("900000000%d", i), models.ProfileProduct)
		if i%2 == 0 {
			req.Profile = models.ProfileUnknown
			req.CustomerName = fmt.Sprintf("Meera %d", i)
		}
		e.clock.advance(time.Minute)
		_, err := e.svc.Create(ctx, req, "t")
		require.NoError(t, err)
	}

	list, page, err := e.svc.List(ctx, Filter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNext)
	require.Len(t, list, 2)
	assert.Equal(t, "ENQ-000005", list[0].Code)

	list, _, err = e.svc.List(ctx, Filter{Status: models.StatusUnknown}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, _, err = e.svc.List(ctx, Filter{Search: "meera"}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, _, err = e.svc.List(ctx, Filter{SortBy: "code"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "ENQ-000001", list[0].Code)

	byCode, err := e.svc.GetByCode(ctx, "enq-000002")
	require.NoError(t, err)
	assert.Equal(t, "ENQ-000002", byCode.Code)
}

func TestFilterOptionsAndStats(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.productRule(t)

	_, err := e.svc.Create(ctx, request("9000000001", models.ProfileProduct), "t")
	require.NoError(t, err)
	other := request("9000000002", models.ProfileUnknown)
	other.City = "Nagpur"
	other.SourceType = "Referral"
	_, err = e.svc.Create(ctx, other, "t")
	require.NoError(t, err)
	_, err = e.svc.Create(ctx, request("9000000001", models.ProfileProduct), "t")
	require.NoError(t, err)

	opts, err := e.svc.FilterOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nagpur", "Pune"}, opts.Cities)
	assert.Equal(t, []string{"Referral", "Website"}, opts.SourceTypes)
	assert.Equal(t, []string{"North"}, opts.Teams)
	assert.Equal(t, models.Statuses, opts.Statuses)

	e.clock.advance(5 * time.Hour)
	stats, err := e.svc.Stats(ctx, StatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[string(models.StatusNew)])
	assert.Equal(t, 1, stats.ByStatus[string(models.StatusUnknown)])
	assert.Equal(t, 1, stats.ByStatus[string(models.StatusDuplicate)])
	assert.Equal(t, 2, stats.Unassigned)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 2, stats.Overdue)

	scoped, err := e.svc.Stats(ctx, StatsFilter{AssignedTo: e.agent1.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, scoped.Total)
	assert.Equal(t, 0, scoped.Unassigned)
}

func TestDelete(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	created, err := e.svc.Create(ctx, request("98765 43210", models.ProfileUnknown), "t")
	require.NoError(t, err)
	_, err = e.svc.AddRemark(ctx, created.ID, "note", "t")
	require.NoError(t, err)

	require.NoError(t, e.svc.Delete(ctx, created.ID))
	_, err = e.svc.Get(ctx, created.ID)
	assert.True(t, domain.IsNotFound(err))
	assert.True(t, domain.IsNotFound(e.svc.Delete(ctx, created.ID)))
}

func TestFilterOptions_Cached(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	svc := NewService(Deps{
		DB:    e.db,
		Store: e.store,
		Users: e.users,
		Cache: cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()})),
	})
	svc.now = e.clock.now

	_, err := svc.Create(ctx, request("9000000001", models.ProfileUnknown), "t")
	require.NoError(t, err)
	opts, err := svc.FilterOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pune"}, opts.Cities)
	assert.True(t, mr.Exists("leaddesk:"+optionsKey))

	// writes that bypass the service are not seen until the entry expires
	direct := request("9000000002", models.ProfileUnknown)
	direct.City = "Nashik"
	_, err = e.svc.Create(ctx, direct, "t")
	require.NoError(t, err)
	opts, err = svc.FilterOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pune"}, opts.Cities)

	_, err = svc.Create(ctx, request("9000000003", models.ProfileUnknown), "t")
	require.NoError(t, err)
	opts, err = svc.FilterOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nashik", "Pune"}, opts.Cities)
}
