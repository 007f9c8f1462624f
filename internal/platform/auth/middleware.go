package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

// RequireCapability rejects requests whose session may not use capability:
// 401 without a credential, 403 when the role is missing or not allowed.
// It expects the session middleware to have run.
func RequireCapability(capability Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := AuthorizeSession(session.FromContext(c.Request().Context()), capability)
			switch d.Outcome {
			case Allow:
				return next(c)
			case Login:
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			default:
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("role not allowed to use %s", capability))
			}
		}
	}
}
