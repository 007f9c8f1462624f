package patients

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients", auth.RequireCapability(auth.CapPatients))
	g.GET("", h.ListPatients)
	g.GET("/:id", h.GetPatient)
	g.POST("", h.CreatePatient)
	g.PUT("/:id", h.UpdatePatient)
	g.DELETE("/:id", h.DeletePatient)
}

// ListPatients handles GET /patients?limit=&offset=.
func (h *Handler) ListPatients(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return notification.HTTPError(err, "Error cargando pacientes")
	}
	return c.JSON(http.StatusOK, pagination.Slice(items, pagination.FromContext(c)))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return notification.HTTPError(err, "patient not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient": p,
		"form":    FormFrom(*p),
	})
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var f Form
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Create(c.Request().Context(), f)
	if err != nil {
		return notification.HTTPError(err, "Error creando paciente")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var f Form
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Update(c.Request().Context(), id, f)
	if err != nil {
		return notification.HTTPError(err, "Error guardando ficha")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Remove(c.Request().Context(), id); err != nil {
		return notification.HTTPError(err, "Error eliminando")
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
