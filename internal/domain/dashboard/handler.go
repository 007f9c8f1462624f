package dashboard

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

type Handler struct {
	view        *DashboardView
	defaultDays int
}

func NewHandler(view *DashboardView, defaultDays int) *Handler {
	if defaultDays <= 0 {
		defaultDays = RangeOptions[0]
	}
	return &Handler{view: view, defaultDays: defaultDays}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dashboard", auth.RequireCapability(auth.CapDashboard))
	g.GET("", h.GetDashboard)
	g.GET("/link", h.GetDeepLink)
}

func (h *Handler) days(c echo.Context) (int, error) {
	raw := c.QueryParam("days")
	if raw == "" {
		return h.defaultDays, nil
	}
	d, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid days")
	}
	return d, nil
}

// GetDashboard handles GET /dashboard?days=.
func (h *Handler) GetDashboard(c echo.Context) error {
	days, err := h.days(c)
	if err != nil {
		return err
	}
	page, err := h.view.Load(c.Request().Context(), days)
	if err != nil {
		return notification.HTTPError(err, "")
	}
	return c.JSON(http.StatusOK, page)
}

// GetDeepLink handles GET /dashboard/link?days=&status=, returning the
// appointments page location for a metric tile.
func (h *Handler) GetDeepLink(c echo.Context) error {
	days, err := h.days(c)
	if err != nil {
		return err
	}
	if err := ValidateDays(days); err != nil {
		return notification.HTTPError(err, "")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"location": DeepLink(c.QueryParam("status"), days, h.view.now()),
	})
}
