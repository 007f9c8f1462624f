package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

// ClientID reads the browser tab identifier from the X-Client-ID header or
// the client_id query parameter. The tab is bound to the session's
// credential: "client_id" on the echo context and the notification topic
// both carry the credential fingerprint, so a tab ID replayed with another
// token never reaches the original tab's state. Requests without a token
// get no tab. It expects the Session middleware to have run.
func ClientID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(notification.ClientIDHeader)
			if id == "" {
				id = c.QueryParam("client_id")
			}
			var fp string
			if sess := session.FromContext(c.Request().Context()); sess != nil {
				fp = sess.Fingerprint()
			}
			if tab := notification.TabTopic(id, fp); tab != "" {
				c.Set("client_id", tab)
				req := c.Request()
				c.SetRequest(req.WithContext(notification.ContextWithTopic(req.Context(), tab)))
			}
			return next(c)
		}
	}
}
