package middleware

import (
	"net/http"
	"strings"

	"crm-service/internal/auth"
	"crm-service/internal/model"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const principalKey = "principal"

// BearerAuth creates a middleware that resolves the bearer token into a
// Principal and stores it in the request context. Requests that do not
// resolve are rejected before any handler runs: there is no
// default-permission principal.
func BearerAuth(resolver *auth.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing authorization header")
				prometheus.RecordAuthError("missing_header")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization header"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn("Invalid authorization header format")
				prometheus.RecordAuthError("invalid_header")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization header format"})
			}

			principal, err := resolver.Resolve(parts[1])
			if err != nil {
				log.Warn("Session resolution failed", zap.Error(err))
				prometheus.RecordAuthError("invalid_session")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired session"})
			}

			c.Set(principalKey, principal)
			log.Debug("Session resolved",
				zap.String("principal_id", principal.ID),
				zap.String("tenant_id", principal.TenantID),
				zap.String("role", string(principal.Role)))
			return next(c)
		}
	}
}

// PrincipalFrom returns the Principal the auth middleware stored on the
// request. The second return is false for unauthenticated requests.
func PrincipalFrom(c echo.Context) (model.Principal, bool) {
	principal, ok := c.Get(principalKey).(model.Principal)
	return principal, ok
}
