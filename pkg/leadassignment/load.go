package leadassignment

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// DailyCounter counts assignments per user since a point in time.
type DailyCounter interface {
	CountByAssigneeSince(ctx context.Context, userIDs []string, since time.Time) (map[string]int, error)
}

// SQLLoadCounter reads workload from the enquiries table and the assignment log.
type SQLLoadCounter struct {
	db    *database.Client
	daily DailyCounter
}

// NewSQLLoadCounter creates a load counter.
func NewSQLLoadCounter(db *database.Client, daily DailyCounter) *SQLLoadCounter {
	return &SQLLoadCounter{db: db, daily: daily}
}

// OpenLoads counts enquiries in New or In Progress per assignee. The count is advisory:
// concurrent assignments may read the same value.
func (c *SQLLoadCounter) OpenLoads(ctx context.Context, userIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	ids := make([]any, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id
	}
	open := make([]any, len(models.OpenStatuses))
	for i, s := range models.OpenStatuses {
		open[i] = string(s)
	}

	b := c.db.SQL()
	sel := b.Select("assigned_to", entsql.Count("*")).
		From(b.Table("enquiries")).
		Where(entsql.And(
			entsql.In("assigned_to", ids...),
			entsql.In("status", open...),
		)).
		GroupBy("assigned_to")

	rows, err := c.db.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to count open enquiries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// AssignedSince delegates to the assignment log.
func (c *SQLLoadCounter) AssignedSince(ctx context.Context, userIDs []string, since time.Time) (map[string]int, error) {
	return c.daily.CountByAssigneeSince(ctx, userIDs, since)
}
