package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/apiclient"
)

const RequestIDHeader = apiclient.RequestIDHeader

// RequestID reuses the incoming X-Request-ID or generates one, exposes it as
// "request_id" on the echo context, echoes it on the response and stores it
// in the request context so calls to the clinic API forward the same ID.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.New().String()
			}
			c.Set("request_id", rid)
			c.Response().Header().Set(RequestIDHeader, rid)

			req := c.Request()
			c.SetRequest(req.WithContext(apiclient.ContextWithRequestID(req.Context(), rid)))
			return next(c)
		}
	}
}
