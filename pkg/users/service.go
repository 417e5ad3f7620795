package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/validation"
)

const table = "users"

var columns = []string{"id", "name", "email", "phone", "role", "team", "is_active", "created_at"}

// Service manages the agents enquiries can be assigned to.
type Service struct {
	db        *database.Client
	validator *validation.Validator
	now       func() time.Time
}

// NewService creates a new user service.
func NewService(db *database.Client) *Service {
	return &Service{
		db:        db,
		validator: validation.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateUserRequest represents a new agent.
type CreateUserRequest struct {
	Name  string      `json:"name" validate:"required,max=200"`
	Email string      `json:"email" validate:"required,email"`
	Phone string      `json:"phone,omitempty"`
	Role  models.Role `json:"role" validate:"required,role"`
	Team  string      `json:"team,omitempty"`
}

// ListFilter narrows List results. Zero values do not filter.
type ListFilter struct {
	Role   models.Role
	Active *bool
	Team   string
}

// Create registers a new agent.
func (s *Service) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	u := &models.User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     req.Phone,
		Role:      req.Role,
		Team:      req.Team,
		IsActive:  true,
		CreatedAt: s.now().Truncate(time.Microsecond),
	}

	insert := s.db.SQL().
		Insert(table).
		Columns(columns...).
		Values(u.ID, u.Name, u.Email, u.Phone, string(u.Role), u.Team, u.IsActive, u.CreatedAt)
	if _, err := s.db.Exec(ctx, insert); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, domain.NewConflictError("a user with this email already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	b := s.db.SQL()
	row := s.db.QueryRow(ctx, b.Select(columns...).From(b.Table(table)).Where(entsql.EQ("id", id)))
	u, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return u, nil
}

// GetActive returns a user by ID and fails validation if the user is inactive.
func (s *Service) GetActive(ctx context.Context, id string) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, domain.NewValidationError("user is not active", fmt.Sprintf("user %s is deactivated", id))
	}
	return u, nil
}

// GetMany returns the users with the given IDs keyed by ID. Missing IDs are omitted.
func (s *Service) GetMany(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	b := s.db.SQL()
	rows, err := s.db.Query(ctx, b.Select(columns...).From(b.Table(table)).Where(entsql.In("id", args...)))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

// List returns users matching the filter ordered by name.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*models.User, error) {
	b := s.db.SQL()
	sel := b.Select(columns...).From(b.Table(table)).OrderBy("name", "id")
	if filter.Role != "" {
		sel.Where(entsql.EQ("role", string(filter.Role)))
	}
	if filter.Active != nil {
		sel.Where(entsql.EQ("is_active", *filter.Active))
	}
	if filter.Team != "" {
		sel.Where(entsql.EQ("team", filter.Team))
	}

	rows, err := s.db.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetActive activates or deactivates a user.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*models.User, error) {
	res, err := s.db.Exec(ctx, s.db.SQL().Update(table).Set("is_active", active).Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.NewNotFoundError("user")
	}
	return s.Get(ctx, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &role, &u.Team, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
