package handler

import (
	"net/http"

	"crm-service/internal/event"
	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// EventHandler exposes the event lifecycle operations
type EventHandler struct {
	events *event.Manager
}

// NewEventHandler creates an EventHandler
func NewEventHandler(events *event.Manager) *EventHandler {
	return &EventHandler{events: events}
}

// Create handles POST /api/events
func (h *EventHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordEventOperation("create")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	var req event.CreateInput
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse event creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	created, err := h.events.Create(c.Request().Context(), principal, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// AssignVolunteer handles POST /api/events/:id/volunteers
func (h *EventHandler) AssignVolunteer(c echo.Context) error {
	prometheus.RecordEventOperation("assign_volunteer")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}

	updated, err := h.events.AssignVolunteer(c.Request().Context(), principal, c.Param("id"), req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// UnassignVolunteer handles DELETE /api/events/:id/volunteers/:userId
func (h *EventHandler) UnassignVolunteer(c echo.Context) error {
	prometheus.RecordEventOperation("unassign_volunteer")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	updated, err := h.events.UnassignVolunteer(c.Request().Context(), principal, c.Param("id"), c.Param("userId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// AssignOfficer handles POST /api/events/:id/officer
func (h *EventHandler) AssignOfficer(c echo.Context) error {
	prometheus.RecordEventOperation("assign_officer")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}

	updated, err := h.events.AssignOfficer(c.Request().Context(), principal, c.Param("id"), req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Complete handles POST /api/events/:id/complete
func (h *EventHandler) Complete(c echo.Context) error {
	prometheus.RecordEventOperation("complete")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	updated, err := h.events.MarkCompleted(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Cancel handles POST /api/events/:id/cancel
func (h *EventHandler) Cancel(c echo.Context) error {
	prometheus.RecordEventOperation("cancel")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	updated, err := h.events.Cancel(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// List handles GET /api/events
func (h *EventHandler) List(c echo.Context) error {
	prometheus.RecordEventOperation("list")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	q := pageQuery(c)
	if status := c.QueryParam("status"); status != "" {
		q.Filter.Equals = map[string]string{"status": status}
	}

	items, cursor, err := h.events.List(c.Request().Context(), principal, q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":       items,
		"next_cursor": cursor,
	})
}
