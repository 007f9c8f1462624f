package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

// Session builds a per-request session from the caller's bearer token and
// stores it in the request context. Requests without a token get an empty,
// unauthenticated session; the authorization guard decides what they may do.
func Session() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := session.New()
			if tok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization)); tok != "" {
				sess = session.FromToken(tok)
			}
			req := c.Request()
			c.SetRequest(req.WithContext(session.NewContext(req.Context(), sess)))
			return next(c)
		}
	}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
