package leadassignment

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/models"
)

// Decision is what a strategy chose for an enquiry.
type Decision struct {
	Assignee string
	Method   models.AssignmentMethod
	// Pending leaves the enquiry unassigned in Assignment Pending.
	Pending bool
	// NoOp leaves the enquiry untouched.
	NoOp     bool
	Reason   string
	Metadata map[string]any
}

// Strategy picks an assignee from a rule's eligible pool.
type Strategy interface {
	Pick(ctx context.Context, rule *models.AssignmentRule, pool []models.Candidate) (Decision, error)
}

// CursorStore persists a per-rule rotation counter.
type CursorStore interface {
	// AdvanceCursor increments the rule's cursor and returns the new value (1 on first call).
	AdvanceCursor(ctx context.Context, ruleID string) (int64, error)
}

// LoadCounter reports candidate workload.
type LoadCounter interface {
	// OpenLoads counts each user's enquiries in New or In Progress.
	OpenLoads(ctx context.Context, userIDs []string) (map[string]int, error)
	// AssignedSince counts assignments each user received at or after since.
	AssignedSince(ctx context.Context, userIDs []string, since time.Time) (map[string]int, error)
}

// RoundRobin rotates through the pool using a persisted cursor.
type RoundRobin struct {
	cursors CursorStore
}

// NewRoundRobin creates a round-robin strategy.
func NewRoundRobin(cursors CursorStore) *RoundRobin {
	return &RoundRobin{cursors: cursors}
}

func (s *RoundRobin) Pick(ctx context.Context, rule *models.AssignmentRule, pool []models.Candidate) (Decision, error) {
	if len(pool) == 0 {
		return Decision{Pending: true, Method: models.MethodRoundRobin, Reason: "rule has no eligible candidates"}, nil
	}

	cursor, err := s.cursors.AdvanceCursor(ctx, rule.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("advance round-robin cursor: %w", err)
	}

	n := int64(len(pool))
	idx := (cursor - 1) % n
	if idx < 0 {
		idx += n
	}
	picked := pool[idx]

	return Decision{
		Assignee: picked.UserID,
		Method:   models.MethodRoundRobin,
		Reason:   fmt.Sprintf("round-robin position %d of %d", idx+1, n),
		Metadata: map[string]any{"cursor": cursor, "pool_size": n},
	}, nil
}

// LoadBased picks the candidate with the lowest open load per unit of weight.
type LoadBased struct {
	loads LoadCounter
	now   func() time.Time
}

// NewLoadBased creates a load-based strategy. Daily caps reset at midnight UTC.
func NewLoadBased(loads LoadCounter, now func() time.Time) *LoadBased {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &LoadBased{loads: loads, now: now}
}

func (s *LoadBased) Pick(ctx context.Context, _ *models.AssignmentRule, pool []models.Candidate) (Decision, error) {
	if len(pool) == 0 {
		return Decision{Pending: true, Method: models.MethodLoadBased, Reason: "rule has no eligible candidates"}, nil
	}

	ids := make([]string, len(pool))
	for i, c := range pool {
		ids[i] = c.UserID
	}

	loads, err := s.loads.OpenLoads(ctx, ids)
	if err != nil {
		return Decision{}, fmt.Errorf("count open loads: %w", err)
	}
	today, err := s.loads.AssignedSince(ctx, ids, startOfDay(s.now()))
	if err != nil {
		return Decision{}, fmt.Errorf("count daily assignments: %w", err)
	}

	var (
		best     *models.Candidate
		bestLoad float64
		skipped  []string
	)
	for i := range pool {
		c := pool[i]
		if c.MaxDailyAssignments > 0 && today[c.UserID] >= c.MaxDailyAssignments {
			skipped = append(skipped, c.UserID)
			continue
		}
		weighted := float64(loads[c.UserID]) / float64(c.EffectiveWeight())
		// strict comparison keeps the first candidate on ties
		if best == nil || weighted < bestLoad {
			best = &pool[i]
			bestLoad = weighted
		}
	}

	if best == nil {
		return Decision{
			Pending:  true,
			Method:   models.MethodLoadBased,
			Reason:   "every candidate reached the daily assignment cap",
			Metadata: map[string]any{"capped": skipped},
		}, nil
	}

	return Decision{
		Assignee: best.UserID,
		Method:   models.MethodLoadBased,
		Reason:   fmt.Sprintf("lowest weighted load %.2f", bestLoad),
		Metadata: map[string]any{
			"open_load":      loads[best.UserID],
			"weight":         best.EffectiveWeight(),
			"weighted_load":  bestLoad,
			"assigned_today": today[best.UserID],
			"capped":         skipped,
		},
	}, nil
}

// Manual never assigns automatically.
type Manual struct{}

func (Manual) Pick(context.Context, *models.AssignmentRule, []models.Candidate) (Decision, error) {
	return Decision{Pending: true, Method: models.MethodManual, Reason: "rule requires manual assignment"}, nil
}

// Fallback assigns to the rule's fallback user, or does nothing when none is set.
type Fallback struct{}

func (Fallback) Pick(_ context.Context, rule *models.AssignmentRule, _ []models.Candidate) (Decision, error) {
	if rule.FallbackUser == nil || *rule.FallbackUser == "" {
		return Decision{NoOp: true, Method: models.MethodFallback, Reason: "fallback rule has no fallback user"}, nil
	}
	return Decision{
		Assignee: *rule.FallbackUser,
		Method:   models.MethodFallback,
		Reason:   "assigned to fallback user",
	}, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
