// Package assignmentlog keeps the write-once history of assignment decisions.
package assignmentlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

const table = "assignment_logs"

var columns = []string{
	"id", "enquiry_id", "old_assignee", "new_assignee", "assigned_by", "rule_id",
	"assignment_type", "assignment_reason", "assignment_method", "metadata", "timestamp", "assignment_duration",
}

// Entry describes one assignment decision to record.
type Entry struct {
	EnquiryID   string
	OldAssignee *string
	NewAssignee *string
	AssignedBy  *string
	RuleID      *string
	Type        models.AssignmentType
	Reason      string
	Method      models.AssignmentMethod
	Metadata    map[string]any
}

// Filter narrows List results. Zero values do not filter.
type Filter struct {
	EnquiryID  string
	Assignee   string
	AssignedBy string
	Type       models.AssignmentType
	Method     models.AssignmentMethod
	From       *time.Time
	To         *time.Time
}

// Service records and queries assignment history.
type Service struct {
	db  *database.Client
	now func() time.Time
}

// NewService creates a new assignment log service.
func NewService(db *database.Client) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Record appends an entry. The previous open entry for the enquiry gets its
// assignment_duration set to the time it stayed current.
func (s *Service) Record(ctx context.Context, entry Entry) (*models.AssignmentLog, error) {
	if entry.EnquiryID == "" {
		return nil, errors.New("assignment log: enquiry id is required")
	}

	log := &models.AssignmentLog{
		ID:               uuid.NewString(),
		EnquiryID:        entry.EnquiryID,
		OldAssignee:      entry.OldAssignee,
		NewAssignee:      entry.NewAssignee,
		AssignedBy:       entry.AssignedBy,
		RuleID:           entry.RuleID,
		AssignmentType:   entry.Type,
		AssignmentReason: entry.Reason,
		AssignmentMethod: entry.Method,
		Metadata:         entry.Metadata,
		Timestamp:        s.now().Truncate(time.Microsecond),
	}

	meta, err := json.Marshal(nonNilMap(log.Metadata))
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	err = s.db.RunInTx(ctx, func(ctx context.Context) error {
		b := s.db.SQL()

		var (
			prevID string
			prevAt time.Time
		)
		latest := b.Select("id", "timestamp").
			From(b.Table(table)).
			Where(entsql.And(
				entsql.EQ("enquiry_id", log.EnquiryID),
				entsql.IsNull("assignment_duration"),
			)).
			OrderBy(entsql.Desc("timestamp"), entsql.Desc("id")).
			Limit(1)
		switch err := s.db.QueryRow(ctx, latest).Scan(&prevID, &prevAt); {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("find previous assignment: %w", err)
		default:
			seconds := int64(log.Timestamp.Sub(prevAt).Seconds())
			if seconds < 0 {
				seconds = 0
			}
			update := b.Update(table).Set("assignment_duration", seconds).Where(entsql.EQ("id", prevID))
			if _, err := s.db.Exec(ctx, update); err != nil {
				return fmt.Errorf("close previous assignment: %w", err)
			}
		}

		insert := b.Insert(table).
			Columns(columns...).
			Values(log.ID, log.EnquiryID, nullable(log.OldAssignee), nullable(log.NewAssignee),
				nullable(log.AssignedBy), nullable(log.RuleID), string(log.AssignmentType),
				log.AssignmentReason, string(log.AssignmentMethod), string(meta), log.Timestamp, nil)
		if _, err := s.db.Exec(ctx, insert); err != nil {
			return fmt.Errorf("insert assignment log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return log, nil
}

// History returns every entry for an enquiry, oldest first.
func (s *Service) History(ctx context.Context, enquiryID string) ([]*models.AssignmentLog, error) {
	b := s.db.SQL()
	sel := b.Select(columns...).
		From(b.Table(table)).
		Where(entsql.EQ("enquiry_id", enquiryID)).
		OrderBy(entsql.Asc("timestamp"), entsql.Asc("id"))
	return s.query(ctx, sel)
}

// List returns a page of entries, newest first.
func (s *Service) List(ctx context.Context, filter Filter, page, limit int) ([]*models.AssignmentLog, models.PaginationInfo, error) {
	page, limit, offset := models.NormalizePage(page, limit)
	b := s.db.SQL()

	pred := filter.predicate()

	countSel := b.Select(entsql.Count("*")).From(b.Table(table))
	if pred != nil {
		countSel.Where(pred)
	}
	total, err := s.db.Count(ctx, countSel)
	if err != nil {
		return nil, models.PaginationInfo{}, fmt.Errorf("failed to count assignment logs: %w", err)
	}

	sel := b.Select(columns...).
		From(b.Table(table)).
		OrderBy(entsql.Desc("timestamp"), entsql.Desc("id")).
		Limit(limit).
		Offset(offset)
	if pred != nil {
		sel.Where(pred)
	}
	logs, err := s.query(ctx, sel)
	if err != nil {
		return nil, models.PaginationInfo{}, err
	}
	return logs, models.NewPaginationInfo(page, limit, total), nil
}

// CountByAssigneeSince counts entries naming each user as new assignee at or after since.
func (s *Service) CountByAssigneeSince(ctx context.Context, userIDs []string, since time.Time) (map[string]int, error) {
	if len(userIDs) == 0 {
		return map[string]int{}, nil
	}
	return s.countGrouped(ctx, "new_assignee", entsql.And(
		entsql.In("new_assignee", toArgs(userIDs)...),
		entsql.GTE("timestamp", since),
	))
}

// Stats summarises assignments in [from, to).
type Stats struct {
	Total      int            `json:"total"`
	ByAssignee map[string]int `json:"by_assignee"`
	ByMethod   map[string]int `json:"by_method"`
	ByType     map[string]int `json:"by_type"`
}

// Stats groups entries in the window by assignee, method and type.
func (s *Service) Stats(ctx context.Context, from, to time.Time) (*Stats, error) {
	window := entsql.And(entsql.GTE("timestamp", from), entsql.LT("timestamp", to))

	byAssignee, err := s.countGrouped(ctx, "new_assignee", entsql.And(window, entsql.NotNull("new_assignee")))
	if err != nil {
		return nil, err
	}
	byMethod, err := s.countGrouped(ctx, "assignment_method", window)
	if err != nil {
		return nil, err
	}
	byType, err := s.countGrouped(ctx, "assignment_type", window)
	if err != nil {
		return nil, err
	}

	stats := &Stats{ByAssignee: byAssignee, ByMethod: byMethod, ByType: byType}
	for _, n := range byType {
		stats.Total += n
	}
	return stats, nil
}

func (s *Service) countGrouped(ctx context.Context, column string, where *entsql.Predicate) (map[string]int, error) {
	b := s.db.SQL()
	sel := b.Select(column, entsql.Count("*")).
		From(b.Table(table)).
		Where(where).
		GroupBy(column)

	rows, err := s.db.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to group assignment logs: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			key sql.NullString
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key.String] = n
	}
	return out, rows.Err()
}

func (s *Service) query(ctx context.Context, sel *entsql.Selector) ([]*models.AssignmentLog, error) {
	rows, err := s.db.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment logs: %w", err)
	}
	defer rows.Close()

	out := []*models.AssignmentLog{}
	for rows.Next() {
		var (
			l                      models.AssignmentLog
			oldA, newA, by, ruleID sql.NullString
			aType, method, meta    string
			duration               sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.EnquiryID, &oldA, &newA, &by, &ruleID, &aType,
			&l.AssignmentReason, &method, &meta, &l.Timestamp, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan assignment log: %w", err)
		}
		l.OldAssignee = ptr(oldA)
		l.NewAssignee = ptr(newA)
		l.AssignedBy = ptr(by)
		l.RuleID = ptr(ruleID)
		l.AssignmentType = models.AssignmentType(aType)
		l.AssignmentMethod = models.AssignmentMethod(method)
		l.Timestamp = l.Timestamp.UTC()
		if duration.Valid {
			d := duration.Int64
			l.AssignmentDuration = &d
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &l.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (f Filter) predicate() *entsql.Predicate {
	var preds []*entsql.Predicate
	if f.EnquiryID != "" {
		preds = append(preds, entsql.EQ("enquiry_id", f.EnquiryID))
	}
	if f.Assignee != "" {
		preds = append(preds, entsql.EQ("new_assignee", f.Assignee))
	}
	if f.AssignedBy != "" {
		preds = append(preds, entsql.EQ("assigned_by", f.AssignedBy))
	}
	if f.Type != "" {
		preds = append(preds, entsql.EQ("assignment_type", string(f.Type)))
	}
	if f.Method != "" {
		preds = append(preds, entsql.EQ("assignment_method", string(f.Method)))
	}
	if f.From != nil {
		preds = append(preds, entsql.GTE("timestamp", *f.From))
	}
	if f.To != nil {
		preds = append(preds, entsql.LT("timestamp", *f.To))
	}
	if len(preds) == 0 {
		return nil
	}
	return entsql.And(preds...)
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
