package enquiries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

const (
	table        = "enquiries"
	remarksTable = "enquiry_remarks"
)

var columns = []string{
	"id", "code", "customer_name", "phone", "email", "company", "city", "description",
	"type_of_lead", "enquiry_profile", "source_type", "channel_type", "estimated_value",
	"status", "stage", "assigned_to", "assigned_team", "assignment_version",
	"priority", "response_due", "resolution_due", "is_duplicate", "duplicate_of",
	"created_by", "created_at", "updated_at", "closed_at", "sla_breached_at",
}

// Store persists enquiries and their remarks.
type Store struct {
	db *database.Client
}

// NewStore creates an enquiry store.
func NewStore(db *database.Client) *Store {
	return &Store{db: db}
}

// Insert writes a new enquiry with its remarks.
func (s *Store) Insert(ctx context.Context, e *models.Enquiry) error {
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		insert := s.db.SQL().Insert(table).Columns(columns...).Values(
			e.ID, e.Code, e.CustomerName, e.Phone, e.Email, e.Company, e.City, e.Description,
			string(e.TypeOfLead), string(e.Profile), e.SourceType, e.ChannelType, e.EstimatedValue,
			string(e.Status), string(e.Stage), nullable(e.AssignedTo), e.AssignedTeam, e.AssignmentVersion,
			string(e.Priority), e.ResponseDue, e.ResolutionDue, e.IsDuplicate, nullable(e.DuplicateOf),
			e.CreatedBy, e.CreatedAt, e.UpdatedAt, nullableTime(e.ClosedAt), nullableTime(e.SLABreachedAt),
		)
		if _, err := s.db.Exec(ctx, insert); err != nil {
			if database.IsUniqueViolation(err) {
				return domain.NewConflictError("an enquiry with this code already exists")
			}
			return fmt.Errorf("failed to insert enquiry: %w", err)
		}
		return s.insertRemarks(ctx, e)
	})
}

// Save writes the enquiry's editable fields and appends remarks that have no ID yet.
// Assignment columns are left alone: they change only through SaveAssignment.
func (s *Store) Save(ctx context.Context, e *models.Enquiry) error {
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		update := s.db.SQL().Update(table).
			Set("customer_name", e.CustomerName).
			Set("phone", e.Phone).
			Set("email", e.Email).
			Set("company", e.Company).
			Set("city", e.City).
			Set("description", e.Description).
			Set("type_of_lead", string(e.TypeOfLead)).
			Set("enquiry_profile", string(e.Profile)).
			Set("source_type", e.SourceType).
			Set("channel_type", e.ChannelType).
			Set("estimated_value", e.EstimatedValue).
			Set("status", string(e.Status)).
			Set("stage", string(e.Stage)).
			Set("priority", string(e.Priority)).
			Set("response_due", e.ResponseDue).
			Set("resolution_due", e.ResolutionDue).
			Set("is_duplicate", e.IsDuplicate).
			Set("duplicate_of", nullable(e.DuplicateOf)).
			Set("updated_at", e.UpdatedAt).
			Set("closed_at", nullableTime(e.ClosedAt)).
			Where(entsql.EQ("id", e.ID))

		res, err := s.db.Exec(ctx, update)
		if err != nil {
			return fmt.Errorf("failed to update enquiry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NewNotFoundError("enquiry")
		}
		return s.insertRemarks(ctx, e)
	})
}

// AppendRemarks stores remarks that have no ID yet and touches updated_at.
func (s *Store) AppendRemarks(ctx context.Context, e *models.Enquiry) error {
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		update := s.db.SQL().Update(table).Set("updated_at", e.UpdatedAt).Where(entsql.EQ("id", e.ID))
		res, err := s.db.Exec(ctx, update)
		if err != nil {
			return fmt.Errorf("failed to update enquiry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NewNotFoundError("enquiry")
		}
		return s.insertRemarks(ctx, e)
	})
}

// SaveAssignment writes the assignment columns if assignment_version still equals expected.
func (s *Store) SaveAssignment(ctx context.Context, e *models.Enquiry, expected int64) error {
	update := s.db.SQL().Update(table).
		Set("assigned_to", nullable(e.AssignedTo)).
		Set("assigned_team", e.AssignedTeam).
		Set("stage", string(e.Stage)).
		Set("assignment_version", e.AssignmentVersion).
		Set("updated_at", e.UpdatedAt).
		Where(entsql.And(
			entsql.EQ("id", e.ID),
			entsql.EQ("assignment_version", expected),
		))

	res, err := s.db.Exec(ctx, update)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return domain.NewNotFoundError("user")
		}
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.missOrConflict(ctx, e.ID)
	}
	return nil
}

// MarkPending moves an unassigned enquiry to Assignment Pending if assignment_version
// still equals expected.
func (s *Store) MarkPending(ctx context.Context, id string, expected int64, now time.Time) error {
	update := s.db.SQL().Update(table).
		Set("stage", string(models.StageAssignmentPending)).
		Set("updated_at", now).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("assignment_version", expected),
			entsql.IsNull("assigned_to"),
		))

	res, err := s.db.Exec(ctx, update)
	if err != nil {
		return fmt.Errorf("failed to mark enquiry pending: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, id string) error {
	b := s.db.SQL()
	n, err := s.db.Count(ctx, b.Select(entsql.Count("*")).From(b.Table(table)).Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("failed to check enquiry: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("enquiry")
	}
	return domain.NewConflictError("enquiry assignment was changed by another request")
}

// Get returns an enquiry with its remarks.
func (s *Store) Get(ctx context.Context, id string) (*models.Enquiry, error) {
	return s.getBy(ctx, entsql.EQ("id", id))
}

// GetByCode returns an enquiry by its human readable code.
func (s *Store) GetByCode(ctx context.Context, code string) (*models.Enquiry, error) {
	return s.getBy(ctx, entsql.EQ("code", code))
}

func (s *Store) getBy(ctx context.Context, pred *entsql.Predicate) (*models.Enquiry, error) {
	b := s.db.SQL()
	e, err := scan(s.db.QueryRow(ctx, b.Select(columns...).From(b.Table(table)).Where(pred)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("enquiry")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch enquiry: %w", err)
	}

	remarks, err := s.remarks(ctx, []string{e.ID})
	if err != nil {
		return nil, err
	}
	e.Remarks = nonNilRemarks(remarks[e.ID])
	return e, nil
}

// FindOriginal returns the earliest enquiry with the phone created at or after since,
// preferring ones that are not duplicates themselves. It returns nil when none exists.
func (s *Store) FindOriginal(ctx context.Context, phone string, since time.Time) (*models.Enquiry, error) {
	if phone == "" {
		return nil, nil
	}
	b := s.db.SQL()
	sel := b.Select(columns...).
		From(b.Table(table)).
		Where(entsql.And(
			entsql.EQ("phone", phone),
			entsql.GTE("created_at", since),
		)).
		OrderBy("is_duplicate", entsql.Asc("created_at"), entsql.Asc("id")).
		Limit(1)

	e, err := scan(s.db.QueryRow(ctx, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up duplicates: %w", err)
	}
	return e, nil
}

// List returns a page of enquiries matching the filter.
func (s *Store) List(ctx context.Context, f Filter, page, limit int) ([]*models.Enquiry, models.PaginationInfo, error) {
	page, limit, offset := models.NormalizePage(page, limit)
	b := s.db.SQL()
	pred := f.predicate()

	countSel := b.Select(entsql.Count("*")).From(b.Table(table))
	if pred != nil {
		countSel.Where(pred)
	}
	total, err := s.db.Count(ctx, countSel)
	if err != nil {
		return nil, models.PaginationInfo{}, fmt.Errorf("failed to count enquiries: %w", err)
	}

	sel := b.Select(columns...).
		From(b.Table(table)).
		OrderBy(f.order()...).
		Limit(limit).
		Offset(offset)
	if pred != nil {
		sel.Where(pred)
	}
	list, err := s.query(ctx, sel)
	if err != nil {
		return nil, models.PaginationInfo{}, err
	}
	if err := s.attachRemarks(ctx, list); err != nil {
		return nil, models.PaginationInfo{}, err
	}
	return list, models.NewPaginationInfo(page, limit, total), nil
}

// All returns every enquiry matching the filter in list order, without paging.
func (s *Store) All(ctx context.Context, f Filter) ([]*models.Enquiry, error) {
	b := s.db.SQL()
	sel := b.Select(columns...).From(b.Table(table)).OrderBy(f.order()...)
	if pred := f.predicate(); pred != nil {
		sel.Where(pred)
	}
	list, err := s.query(ctx, sel)
	if err != nil {
		return nil, err
	}
	return list, s.attachRemarks(ctx, list)
}

// Delete removes an enquiry. Remarks cascade; assignment history is kept.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.db.Exec(ctx, s.db.SQL().Delete(remarksTable).Where(entsql.EQ("enquiry_id", id))); err != nil {
			return fmt.Errorf("failed to delete remarks: %w", err)
		}
		res, err := s.db.Exec(ctx, s.db.SQL().Delete(table).Where(entsql.EQ("id", id)))
		if err != nil {
			return fmt.Errorf("failed to delete enquiry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NewNotFoundError("enquiry")
		}
		return nil
	})
}

// Distinct returns the distinct non-empty values of a column, sorted.
func (s *Store) Distinct(ctx context.Context, column string) ([]string, error) {
	b := s.db.SQL()
	sel := b.Select(column).
		Distinct().
		From(b.Table(table)).
		Where(entsql.And(entsql.NotNull(column), entsql.NEQ(column, ""))).
		OrderBy(column)

	rows, err := s.db.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s values: %w", column, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountBy groups enquiries matching pred by column.
func (s *Store) CountBy(ctx context.Context, column string, pred *entsql.Predicate) (map[string]int, error) {
	b := s.db.SQL()
	sel := b.Select(column, entsql.Count("*")).From(b.Table(table)).GroupBy(column)
	if pred != nil {
		sel.Where(pred)
	}

	rows, err := s.db.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to group enquiries by %s: %w", column, err)
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

// Count returns how many enquiries match pred.
func (s *Store) Count(ctx context.Context, pred *entsql.Predicate) (int, error) {
	b := s.db.SQL()
	sel := b.Select(entsql.Count("*")).From(b.Table(table))
	if pred != nil {
		sel.Where(pred)
	}
	n, err := s.db.Count(ctx, sel)
	if err != nil {
		return 0, fmt.Errorf("failed to count enquiries: %w", err)
	}
	return n, nil
}

// Breaching returns enquiries in one of statuses whose response is overdue at now
// and that have not been flagged yet.
func (s *Store) Breaching(ctx context.Context, statuses []models.Status, now time.Time, limit int) ([]*models.Enquiry, error) {
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	b := s.db.SQL()
	sel := b.Select(columns...).
		From(b.Table(table)).
		Where(entsql.And(
			entsql.In("status", args...),
			entsql.LT("response_due", now),
			entsql.IsNull("sla_breached_at"),
		)).
		OrderBy(entsql.Asc("response_due"), entsql.Asc("id")).
		Limit(limit)
	return s.query(ctx, sel)
}

// MarkBreached flags an enquiry's SLA breach once. It reports whether this call set the flag.
func (s *Store) MarkBreached(ctx context.Context, id string, now time.Time) (bool, error) {
	update := s.db.SQL().Update(table).
		Set("sla_breached_at", now).
		Where(entsql.And(entsql.EQ("id", id), entsql.IsNull("sla_breached_at")))
	res, err := s.db.Exec(ctx, update)
	if err != nil {
		return false, fmt.Errorf("failed to flag SLA breach: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) insertRemarks(ctx context.Context, e *models.Enquiry) error {
	for i := range e.Remarks {
		r := &e.Remarks[i]
		if r.ID != "" {
			continue
		}
		r.ID = uuid.NewString()
		insert := s.db.SQL().Insert(remarksTable).
			Columns("id", "enquiry_id", "position", "text", "added_by", "added_at").
			Values(r.ID, e.ID, i, r.Text, r.AddedBy, r.AddedAt)
		if _, err := s.db.Exec(ctx, insert); err != nil {
			r.ID = ""
			if database.IsUniqueViolation(err) {
				return domain.NewConflictError("enquiry remarks were changed by another request")
			}
			return fmt.Errorf("failed to insert remark: %w", err)
		}
	}
	return nil
}

func (s *Store) remarks(ctx context.Context, ids []string) (map[string][]models.Remark, error) {
	out := make(map[string][]models.Remark, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	b := s.db.SQL()
	sel := b.Select("id", "enquiry_id", "text", "added_by", "added_at").
		From(b.Table(remarksTable)).
		Where(entsql.In("enquiry_id", args...)).
		OrderBy("enquiry_id", "position")

	rows, err := s.db.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remarks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r         models.Remark
			enquiryID string
		)
		if err := rows.Scan(&r.ID, &enquiryID, &r.Text, &r.AddedBy, &r.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan remark: %w", err)
		}
		r.AddedAt = r.AddedAt.UTC()
		out[enquiryID] = append(out[enquiryID], r)
	}
	return out, rows.Err()
}

func (s *Store) attachRemarks(ctx context.Context, list []*models.Enquiry) error {
	ids := make([]string, len(list))
	for i, e := range list {
		ids[i] = e.ID
	}
	remarks, err := s.remarks(ctx, ids)
	if err != nil {
		return err
	}
	for _, e := range list {
		e.Remarks = nonNilRemarks(remarks[e.ID])
	}
	return nil
}

func (s *Store) query(ctx context.Context, sel *entsql.Selector) ([]*models.Enquiry, error) {
	rows, err := s.db.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query enquiries: %w", err)
	}
	defer rows.Close()

	out := []*models.Enquiry{}
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enquiry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.Enquiry, error) {
	var (
		e                                      models.Enquiry
		leadType, profile, status, stage, prio string
		assignedTo, duplicateOf                sql.NullString
		closedAt, breachedAt                   sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.Code, &e.CustomerName, &e.Phone, &e.Email, &e.Company, &e.City, &e.Description,
		&leadType, &profile, &e.SourceType, &e.ChannelType, &e.EstimatedValue,
		&status, &stage, &assignedTo, &e.AssignedTeam, &e.AssignmentVersion,
		&prio, &e.ResponseDue, &e.ResolutionDue, &e.IsDuplicate, &duplicateOf,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt, &closedAt, &breachedAt,
	)
	if err != nil {
		return nil, err
	}

	e.TypeOfLead = models.LeadType(leadType)
	e.Profile = models.Profile(profile)
	e.Status = models.Status(status)
	e.Stage = models.Stage(stage)
	e.Priority = models.Priority(prio)
	e.AssignedTo = ptr(assignedTo)
	e.DuplicateOf = ptr(duplicateOf)
	e.ResponseDue = e.ResponseDue.UTC()
	e.ResolutionDue = e.ResolutionDue.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	e.ClosedAt = timePtr(closedAt)
	e.SLABreachedAt = timePtr(breachedAt)
	e.Remarks = []models.Remark{}
	return &e, nil
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nonNilRemarks(r []models.Remark) []models.Remark {
	if r == nil {
		return []models.Remark{}
	}
	return r
}
