package handler

import (
	"net/http"

	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/internal/user"
	"crm-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// UserHandler exposes tenant user administration
type UserHandler struct {
	users *user.Manager
}

// NewUserHandler creates a UserHandler
func NewUserHandler(users *user.Manager) *UserHandler {
	return &UserHandler{users: users}
}

// Create handles POST /api/users
func (h *UserHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	var req user.CreateInput
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse user creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	created, err := h.users.Create(c.Request().Context(), principal, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// ChangeRole handles PATCH /api/users/:id/role
func (h *UserHandler) ChangeRole(c echo.Context) error {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	var req struct {
		Role model.Role `json:"role"`
	}
	if err := c.Bind(&req); err != nil || req.Role == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role is required"})
	}

	updated, err := h.users.ChangeRole(c.Request().Context(), principal, c.Param("id"), req.Role)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Deactivate handles POST /api/users/:id/deactivate
func (h *UserHandler) Deactivate(c echo.Context) error {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	updated, err := h.users.Deactivate(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// List handles GET /api/users
func (h *UserHandler) List(c echo.Context) error {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	items, cursor, err := h.users.List(c.Request().Context(), principal, pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":       items,
		"next_cursor": cursor,
	})
}
