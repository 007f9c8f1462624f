package notes

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

// TopicNotes is published when the note list changes.
const TopicNotes = "notes"

// ChangePublisher tells other browser tabs that a list changed.
type ChangePublisher interface {
	PublishChange(ctx context.Context, resource string) error
}

type Handler struct {
	views   *tabs.Registry[*NotesView]
	newView func(tab string) *NotesView
	changes ChangePublisher
}

func NewHandler(newView func(tab string) *NotesView, changes ChangePublisher) *Handler {
	return &Handler{views: tabs.NewRegistry(newView), newView: newView, changes: changes}
}

// Views exposes the per-tab registry for logout and sweeping.
func (h *Handler) Views() *tabs.Registry[*NotesView] { return h.views }

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/notes", auth.RequireCapability(auth.CapNotes))
	g.GET("", h.ListNotes)
	g.GET("/view", h.GetView)
	g.GET("/patients/:id", h.PatientTimeline)
	g.DELETE("/timeline", h.CloseTimeline)
	g.POST("/draft", h.StartNote)
	g.POST("", h.CreateNote)
	g.PUT("/:id", h.UpdateNote)
	g.DELETE("/:id", h.DeleteNote)
}

func (h *Handler) view(c echo.Context) *NotesView {
	if tab, _ := c.Get("client_id").(string); tab != "" {
		return h.views.Get(tab)
	}
	return h.newView("")
}

func (h *Handler) changed(ctx context.Context) {
	if h.changes != nil {
		_ = h.changes.PublishChange(ctx, TopicNotes)
	}
}

func unauthorized(err error) bool {
	return err != nil && errors.Is(err, apiclient.ErrUnauthorized)
}

// ListNotes handles GET /notes?q=. Sources that fail to load leave their
// part of the page empty.
func (h *Handler) ListNotes(c echo.Context) error {
	v := h.view(c)
	v.SetSearch(c.QueryParam("q"))
	if err := v.Load(c.Request().Context()); unauthorized(err) {
		return notification.HTTPError(err, "")
	}
	return c.JSON(http.StatusOK, v.Snapshot())
}

// GetView handles GET /notes/view?q=, re-filtering without refetching.
func (h *Handler) GetView(c echo.Context) error {
	v := h.view(c)
	if q, ok := c.QueryParams()["q"]; ok {
		v.SetSearch(q[0])
	}
	return c.JSON(http.StatusOK, v.Snapshot())
}

// PatientTimeline handles GET /notes/patients/:id?q=.
func (h *Handler) PatientTimeline(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v := h.view(c)
	v.SetTimelineSearch(c.QueryParam("q"))
	if err := v.OpenPatient(c.Request().Context(), id); err != nil {
		return notification.HTTPError(err, "No se pudieron cargar notas del paciente")
	}
	return c.JSON(http.StatusOK, v.Snapshot())
}

// CloseTimeline handles DELETE /notes/timeline.
func (h *Handler) CloseTimeline(c echo.Context) error {
	v := h.view(c)
	v.ClosePatient()
	return c.JSON(http.StatusOK, v.Snapshot())
}

// StartNote handles POST /notes/draft?patient_id=, pre-selecting the
// patient's appointment of today or else the latest one.
func (h *Handler) StartNote(c echo.Context) error {
	v := h.view(c)
	pid, _ := strconv.ParseInt(c.QueryParam("patient_id"), 10, 64)
	v.StartNoteFor(pid)
	return c.JSON(http.StatusOK, v.Snapshot())
}

// CreateNote handles POST /notes. A body, when given, replaces the editor
// first.
func (h *Handler) CreateNote(c echo.Context) error {
	v := h.view(c)
	if c.Request().ContentLength != 0 {
		var f Form
		if err := c.Bind(&f); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		v.SetForm(f)
	}
	ctx := c.Request().Context()
	n, err := v.CreateNote(ctx)
	if err != nil {
		return notification.HTTPError(err, "Error creando nota")
	}
	h.changed(ctx)
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"note": n,
		"view": v.Snapshot(),
	})
}

// UpdateNote handles PUT /notes/:id.
func (h *Handler) UpdateNote(c echo.Context) error {
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
	if _, err := v.UpdateNote(ctx, id, p); err != nil {
		return notification.HTTPError(err, "Error actualizando nota")
	}
	h.changed(ctx)
	return c.JSON(http.StatusOK, v.Snapshot())
}

// DeleteNote handles DELETE /notes/:id.
func (h *Handler) DeleteNote(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v := h.view(c)
	ctx := c.Request().Context()
	if err := v.DeleteNote(ctx, id); err != nil {
		return notification.HTTPError(err, "Error eliminando nota")
	}
	h.changed(ctx)
	return c.JSON(http.StatusOK, v.Snapshot())
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
