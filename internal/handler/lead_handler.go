package handler

import (
	"net/http"
	"strconv"

	"crm-service/internal/lead"
	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/internal/store"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// LeadHandler exposes the lead lifecycle operations
type LeadHandler struct {
	leads *lead.Manager
}

// NewLeadHandler creates a LeadHandler
func NewLeadHandler(leads *lead.Manager) *LeadHandler {
	return &LeadHandler{leads: leads}
}

// Create handles POST /api/leads
func (h *LeadHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordLeadOperation("create")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	var req lead.CreateInput
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse lead creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	created, err := h.leads.Create(c.Request().Context(), principal, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// Assign handles POST /api/leads/:id/assign
func (h *LeadHandler) Assign(c echo.Context) error {
	prometheus.RecordLeadOperation("assign")

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

	updated, err := h.leads.Assign(c.Request().Context(), principal, c.Param("id"), req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Transition handles POST /api/leads/:id/transition
func (h *LeadHandler) Transition(c echo.Context) error {
	prometheus.RecordLeadOperation("transition")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	var req struct {
		Status model.LeadStatus `json:"status"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status is required"})
	}

	updated, err := h.leads.Transition(c.Request().Context(), principal, c.Param("id"), req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Reopen handles POST /api/leads/:id/reopen
func (h *LeadHandler) Reopen(c echo.Context) error {
	prometheus.RecordLeadOperation("reopen")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	updated, err := h.leads.Reopen(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /api/leads/:id
func (h *LeadHandler) Delete(c echo.Context) error {
	prometheus.RecordLeadOperation("delete")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	if err := h.leads.Delete(c.Request().Context(), principal, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// List handles GET /api/leads
func (h *LeadHandler) List(c echo.Context) error {
	prometheus.RecordLeadOperation("list")

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	q := pageQuery(c)
	if status := c.QueryParam("status"); status != "" {
		q.Filter.Equals = map[string]string{"status": status}
	}

	items, cursor, err := h.leads.List(c.Request().Context(), principal, q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":       items,
		"next_cursor": cursor,
	})
}

// pageQuery extracts cursor pagination parameters shared by list endpoints
func pageQuery(c echo.Context) store.Query {
	q := store.Query{Cursor: c.QueryParam("cursor")}
	if size := c.QueryParam("page_size"); size != "" {
		if n, err := strconv.Atoi(size); err == nil && n > 0 {
			q.Limit = n
		}
	}
	return q
}
