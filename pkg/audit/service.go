// Package audit records who changed what.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

const table = "audit_logs"

var columns = []string{
	"id", "actor_id", "entity_type", "entity_id", "action",
	"changes", "metadata", "ip_address", "user_agent", "created_at",
}

// Entity types
const (
	EntityEnquiry        = "enquiry"
	EntityAssignmentRule = "assignment_rule"
	EntityUser           = "user"
	EntitySLAConfig      = "sla_config"
	EntityJob            = "job"
)

// Service handles audit logging
type Service struct {
	db  *database.Client
	now func() time.Time
}

// NewService creates a new audit service
func NewService(db *database.Client) *Service {
	return &Service{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// LogEntry represents an audit log entry
type LogEntry struct {
	ActorID    string
	EntityType string
	EntityID   string
	Action     string
	Changes    map[string]any
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
}

// Log creates a new audit log entry
func (s *Service) Log(ctx context.Context, entry LogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	changes, err := encode(entry.Changes)
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	meta, err := encode(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	insert := s.db.SQL().Insert(table).Columns(columns...).Values(
		uuid.NewString(), entry.ActorID, entry.EntityType, entry.EntityID, entry.Action,
		changes, meta, entry.IPAddress, entry.UserAgent, s.now().Truncate(time.Microsecond),
	)
	if _, err := s.db.Exec(ctx, insert); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Filter narrows List results.
type Filter struct {
	ActorID    string
	EntityType string
	EntityID   string
	Action     string
	From       *time.Time
	To         *time.Time
}

// List returns a page of audit logs, newest first.
func (s *Service) List(ctx context.Context, f Filter, page, limit int) ([]*models.AuditLog, models.PaginationInfo, error) {
	page, limit, offset := models.NormalizePage(page, limit)
	b := s.db.SQL()
	pred := f.predicate()

	countSel := b.Select(entsql.Count("*")).From(b.Table(table))
	if pred != nil {
		countSel.Where(pred)
	}
	total, err := s.db.Count(ctx, countSel)
	if err != nil {
		return nil, models.PaginationInfo{}, fmt.Errorf("failed to count audit logs: %w", err)
	}

	sel := b.Select(columns...).
		From(b.Table(table)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(limit).
		Offset(offset)
	if pred != nil {
		sel.Where(pred)
	}

	rows, err := s.db.Query(ctx, sel)
	if err != nil {
		return nil, models.PaginationInfo{}, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.AuditLog{}
	for rows.Next() {
		var (
			l             models.AuditLog
			changes, meta string
		)
		if err := rows.Scan(&l.ID, &l.ActorID, &l.EntityType, &l.EntityID, &l.Action,
			&changes, &meta, &l.IPAddress, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, models.PaginationInfo{}, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if l.Changes, err = decode(changes); err != nil {
			return nil, models.PaginationInfo{}, err
		}
		if l.Metadata, err = decode(meta); err != nil {
			return nil, models.PaginationInfo{}, err
		}
		l.CreatedAt = l.CreatedAt.UTC()
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, models.PaginationInfo{}, err
	}
	return logs, models.NewPaginationInfo(page, limit, total), nil
}

func (f Filter) predicate() *entsql.Predicate {
	var preds []*entsql.Predicate
	if f.ActorID != "" {
		preds = append(preds, entsql.EQ("actor_id", f.ActorID))
	}
	if f.EntityType != "" {
		preds = append(preds, entsql.EQ("entity_type", f.EntityType))
	}
	if f.EntityID != "" {
		preds = append(preds, entsql.EQ("entity_id", f.EntityID))
	}
	if f.Action != "" {
		preds = append(preds, entsql.EQ("action", f.Action))
	}
	if f.From != nil {
		preds = append(preds, entsql.GTE("created_at", *f.From))
	}
	if f.To != nil {
		preds = append(preds, entsql.LT("created_at", *f.To))
	}
	if len(preds) == 0 {
		return nil
	}
	return entsql.And(preds...)
}

func encode(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	return string(raw), err
}

func decode(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode audit payload: %w", err)
	}
	return m, nil
}
