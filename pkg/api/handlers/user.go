package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/api/middleware"
	"github.com/jordanlanch/leaddesk/pkg/audit"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/users"
	"github.com/labstack/echo/v4"
)

// UserHandler manages the agents enquiries are assigned to.
type UserHandler struct {
	base
	users *users.Service
}

// NewUserHandler creates a new user handler.
func NewUserHandler(userSvc *users.Service, auditLogger *audit.Service, log logger.Logger) *UserHandler {
	return &UserHandler{base: newBase(log, auditLogger), users: userSvc}
}

// Create registers an agent.
func (h *UserHandler) Create(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req users.CreateUserRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	u, err := h.users.Create(ctx, req)
	if err != nil {
		h.record(c, audit.EntityUser, "", "user.create", map[string]any{"email": req.Email}, err)
		return h.fail(c, err)
	}
	h.record(c, audit.EntityUser, u.ID, "user.create", map[string]any{"role": u.Role, "team": u.Team}, nil)
	return c.JSON(http.StatusCreated, u)
}

// List returns agents filtered by role, team and active flag.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	active, err := boolParam(c, "active")
	if err != nil {
		return h.fail(c, err)
	}

	list, err := h.users.List(ctx, users.ListFilter{
		Role:   models.Role(c.QueryParam("role")),
		Team:   c.QueryParam("team"),
		Active: active,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ListResponse[*models.User]{Data: list})
}

// Get returns one agent.
func (h *UserHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.users.Get(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Me returns the caller's own record.
func (h *UserHandler) Me(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.users.Get(ctx, middleware.CurrentUser(c).ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// SetActive activates or deactivates an agent. Inactive agents drop out of rule pools.
func (h *UserHandler) SetActive(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	var req ActiveRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	u, err := h.users.SetActive(ctx, id, req.IsActive)
	h.record(c, audit.EntityUser, id, "user.set_active", map[string]any{"is_active": req.IsActive}, err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}
