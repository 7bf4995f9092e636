package handler

import (
	"errors"
	"net/http"

	"crm-service/internal/model"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
)

// respondError maps business-rule failures onto HTTP responses. Forbidden and
// cross-tenant access are answered exactly like a missing resource, so a
// caller can never probe another tenant for existence.
func respondError(c echo.Context, err error) error {
	var validation *model.ValidationError
	var invalidTransition *model.InvalidTransitionError

	switch {
	case errors.Is(err, model.ErrUnauthenticated):
		prometheus.RecordAuthError("unauthenticated")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})

	case errors.Is(err, model.ErrForbidden),
		errors.Is(err, model.ErrCrossTenantAccess),
		errors.Is(err, model.ErrNotFound):
		if !errors.Is(err, model.ErrNotFound) {
			prometheus.RecordAuthError("forbidden")
		}
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})

	case errors.Is(err, model.ErrCrossTenantUser):
		prometheus.RecordRuleRejection("cross_tenant_user")
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "user does not belong to this tenant"})

	case errors.As(err, &validation):
		prometheus.RecordRuleRejection("validation")
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":  "validation failed",
			"field":  validation.Field,
			"reason": validation.Reason,
		})

	case errors.As(err, &invalidTransition):
		prometheus.RecordRuleRejection("invalid_transition")
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "invalid transition",
			"from":  invalidTransition.From,
			"to":    invalidTransition.To,
		})

	case errors.Is(err, model.ErrCapacityExceeded):
		prometheus.RecordRuleRejection("capacity_exceeded")
		return c.JSON(http.StatusConflict, echo.Map{"error": "volunteer capacity exceeded"})

	case errors.Is(err, model.ErrAlreadyTerminal):
		prometheus.RecordRuleRejection("already_terminal")
		return c.JSON(http.StatusConflict, echo.Map{"error": "record is in a terminal state"})

	case errors.Is(err, model.ErrUnsupportedQuery):
		prometheus.RecordRuleRejection("unsupported_query")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unsupported query"})

	case errors.Is(err, model.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage temporarily unavailable"})

	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
