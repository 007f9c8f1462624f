package scheduling

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/apiclient"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
	"github.com/clinicdesk/clinicdesk/internal/platform/tabs"
)

// Topics published when lists change.
const (
	TopicAppointments = "appointments"
	TopicBlocks       = "blocks"
)

// ChangePublisher tells other browser tabs that a list changed.
type ChangePublisher interface {
	PublishChange(ctx context.Context, resource string) error
}

type Handler struct {
	views   *tabs.Registry[*AppointmentsView]
	newView func(tab string) *AppointmentsView
	blocks  *BlockService
	changes ChangePublisher
}

// NewHandler keeps one AppointmentsView per browser tab, created by
// newView. changes may be nil.
func NewHandler(newView func(tab string) *AppointmentsView, blocks *BlockService, changes ChangePublisher) *Handler {
	return &Handler{
		views:   tabs.NewRegistry(newView),
		newView: newView,
		blocks:  blocks,
		changes: changes,
	}
}

// Views exposes the per-tab registry so idle views can be swept.
func (h *Handler) Views() *tabs.Registry[*AppointmentsView] { return h.views }

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments", auth.RequireCapability(auth.CapAppointments))
	g.GET("", h.ListAppointments)
	g.GET("/view", h.GetView)
	g.POST("/filter", h.ApplyFilter)
	g.POST("/availability", h.CheckAvailability)
	g.DELETE("/availability", h.CloseSlots)
	g.POST("/pick", h.PickSlot)
	g.PUT("/draft", h.SetDraft)
	g.POST("", h.CreateAppointment)
	g.PUT("/:id", h.UpdateAppointment)
	g.PUT("/:id/complete", h.CompleteAppointment)
	g.PUT("/:id/no-show", h.NoShowAppointment)
	g.DELETE("/:id", h.CancelAppointment)

	b := api.Group("/blocks", auth.RequireCapability(auth.CapBlocks))
	b.GET("", h.ListBlocks)
	b.POST("", h.CreateBlock)
	b.PUT("/:id", h.UpdateBlock)
	b.DELETE("/:id", h.DeleteBlock, auth.RequireCapability(auth.CapBlockDelete))
}

// view returns the caller's tab view. Requests without a client ID get a
// throwaway view.
func (h *Handler) view(c echo.Context) *AppointmentsView {
	if tab, _ := c.Get("client_id").(string); tab != "" {
		return h.views.Get(tab)
	}
	return h.newView("")
}

func (h *Handler) changed(ctx context.Context, topics ...string) {
	if h.changes == nil {
		return
	}
	for _, t := range topics {
		_ = h.changes.PublishChange(ctx, t)
	}
}

// render answers with the view's snapshot. A failed load still renders the
// degraded page, except for a lost session, which the browser must see.
func render(c echo.Context, v *AppointmentsView, loadErr error) error {
	if loadErr != nil && errors.Is(loadErr, apiclient.ErrUnauthorized) {
		return notification.HTTPError(loadErr, "")
	}
	return c.JSON(http.StatusOK, v.Snapshot())
}

// -- Appointment Handlers --

// ListAppointments handles GET /appointments?date_from&date_to&status&patient_id.
// The query replaces the tab's filter as a whole.
func (h *Handler) ListAppointments(c echo.Context) error {
	v := h.view(c)
	err := v.Mount(c.Request().Context(), c.QueryParams())
	return render(c, v, err)
}

// GetView handles GET /appointments/view, returning the tab's page as is.
func (h *Handler) GetView(c echo.Context) error {
	return c.JSON(http.StatusOK, h.view(c).Snapshot())
}

// ApplyFilter handles POST /appointments/filter.
func (h *Handler) ApplyFilter(c echo.Context) error {
	var f Filter
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v := h.view(c)
	v.SetFilter(f)
	return render(c, v, v.ApplyFilter(c.Request().Context()))
}

type availabilityRequest struct {
	DateFrom        string `json:"date_from"`
	DateTo          string `json:"date_to"`
	DurationMinutes int    `json:"duration_minutes"`
}

// CheckAvailability handles POST /appointments/availability. Bounds in the
// body replace the filter's; without any, the filter's are used.
func (h *Handler) CheckAvailability(c echo.Context) error {
	var req availabilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v := h.view(c)
	if req.DateFrom != "" || req.DateTo != "" {
		v.SetRange(req.DateFrom, req.DateTo)
	}
	v.SetDuration(req.DurationMinutes)

	if err := v.CheckAvailability(c.Request().Context()); err != nil {
		return notification.HTTPError(err, "Error al consultar disponibilidad")
	}
	return c.JSON(http.StatusOK, v.Snapshot())
}

// CloseSlots handles DELETE /appointments/availability.
func (h *Handler) CloseSlots(c echo.Context) error {
	v := h.view(c)
	v.CloseSlots()
	return c.JSON(http.StatusOK, v.Snapshot())
}

type pickRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// PickSlot handles POST /appointments/pick. Nothing is sent to the clinic
// API; the slot only pre-fills the creation form.
func (h *Handler) PickSlot(c echo.Context) error {
	var req pickRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v := h.view(c)
	if !v.PickSlot(req.Date, req.Time) {
		return echo.NewHTTPError(http.StatusBadRequest, "date and time are required")
	}
	return c.JSON(http.StatusOK, v.Snapshot())
}

// SetDraft handles PUT /appointments/draft.
func (h *Handler) SetDraft(c echo.Context) error {
	var d Draft
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v := h.view(c)
	v.SetDraft(d)
	v.OpenForm()
	return c.JSON(http.StatusOK, v.Snapshot())
}

// CreateAppointment handles POST /appointments. A body, when given,
// replaces the draft first.
func (h *Handler) CreateAppointment(c echo.Context) error {
	v := h.view(c)
	if c.Request().ContentLength != 0 {
		var d Draft
		if err := c.Bind(&d); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		v.SetDraft(d)
	}
	ctx := c.Request().Context()
	a, err := v.CreateAppointment(ctx)
	if err != nil {
		return notification.HTTPError(err, "Error creando cita")
	}
	h.changed(ctx, TopicAppointments)
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"appointment": a,
		"view":        v.Snapshot(),
	})
}

// UpdateAppointment handles PUT /appointments/:id.
func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v := h.view(c)
	ctx := c.Request().Context()
	if _, err := v.UpdateAppointment(ctx, id, p); err != nil {
		return notification.HTTPError(err, "Error actualizando cita")
	}
	h.changed(ctx, TopicAppointments)
	return c.JSON(http.StatusOK, v.Snapshot())
}

// CompleteAppointment handles PUT /appointments/:id/complete.
func (h *Handler) CompleteAppointment(c echo.Context) error {
	return h.transition(c, (*AppointmentsView).Complete)
}

// NoShowAppointment handles PUT /appointments/:id/no-show.
func (h *Handler) NoShowAppointment(c echo.Context) error {
	return h.transition(c, (*AppointmentsView).NoShow)
}

// CancelAppointment handles DELETE /appointments/:id.
func (h *Handler) CancelAppointment(c echo.Context) error {
	return h.transition(c, (*AppointmentsView).Cancel)
}

func (h *Handler) transition(c echo.Context, fn func(*AppointmentsView, context.Context, int64) error) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v := h.view(c)
	ctx := c.Request().Context()
	if err := fn(v, ctx, id); err != nil {
		return notification.HTTPError(err, "Error")
	}
	h.changed(ctx, TopicAppointments)
	return c.JSON(http.StatusOK, v.Snapshot())
}

// -- Block Handlers --

type blockRow struct {
	Block
	Start string    `json:"start"`
	End   string    `json:"end"`
	Form  BlockForm `json:"form"`
}

// ListBlocks handles GET /blocks.
func (h *Handler) ListBlocks(c echo.Context) error {
	list, err := h.blocks.List(c.Request().Context())
	if err != nil && errors.Is(err, apiclient.ErrUnauthorized) {
		return notification.HTTPError(err, "")
	}
	rows := make([]blockRow, 0, len(list))
	for _, b := range list {
		start, end := b.StartTime.Display(), b.EndTime.Display()
		if start == "" {
			start = "—"
		}
		if end == "" {
			end = "—"
		}
		rows = append(rows, blockRow{Block: b, Start: start, End: end, Form: BlockFormFrom(b)})
	}
	return c.JSON(http.StatusOK, rows)
}

// CreateBlock handles POST /blocks.
func (h *Handler) CreateBlock(c echo.Context) error {
	return h.saveBlock(c, 0, http.StatusCreated)
}

// UpdateBlock handles PUT /blocks/:id.
func (h *Handler) UpdateBlock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.saveBlock(c, id, http.StatusOK)
}

func (h *Handler) saveBlock(c echo.Context, id int64, status int) error {
	var f BlockForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	b, err := h.blocks.Save(ctx, id, f)
	if err != nil {
		return notification.HTTPError(err, "Error guardando bloqueo")
	}
	h.changed(ctx, TopicBlocks, TopicAppointments)
	return c.JSON(status, b)
}

// DeleteBlock handles DELETE /blocks/:id.
func (h *Handler) DeleteBlock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.blocks.Remove(ctx, id); err != nil {
		return notification.HTTPError(err, "Error")
	}
	h.changed(ctx, TopicBlocks, TopicAppointments)
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
