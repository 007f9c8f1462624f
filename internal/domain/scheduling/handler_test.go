package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/domain/patients"
	"github.com/clinicdesk/clinicdesk/internal/platform/apiclient"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

// -- Test Doubles --

type mockBlockRepo struct {
	mu      sync.Mutex
	items   []Block
	deleted []int64
}

func (m *mockBlockRepo) List(context.Context) ([]Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Block(nil), m.items...), nil
}

func (m *mockBlockRepo) Create(_ context.Context, payload map[string]interface{}) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := Block{ID: int64(len(m.items) + 1), IsActive: true}
	if r, ok := payload["reason"].(string); ok {
		b.Reason = r
	}
	m.items = append(m.items, b)
	return &b, nil
}

func (m *mockBlockRepo) Update(_ context.Context, id int64, _ map[string]interface{}) (*Block, error) {
	return &Block{ID: id}, nil
}

func (m *mockBlockRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

type changeRecorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *changeRecorder) PublishChange(_ context.Context, resource string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, resource)
	return nil
}

type handlerFixture struct {
	h       *Handler
	appts   *mockAppointmentRepo
	blocks  *mockBlockRepo
	changes *changeRecorder
	e       *echo.Echo
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		appts:   &mockAppointmentRepo{},
		blocks:  &mockBlockRepo{},
		changes: &changeRecorder{},
		e:       echo.New(),
	}
	pats := &mockPatientRepo{list: []patients.Patient{{ID: 7, FullName: "Ana"}}}
	newView := func(string) *AppointmentsView {
		return NewAppointmentsView(f.appts, pats, notification.Discard, 0)
	}
	f.h = NewHandler(newView, NewBlockService(f.blocks, nil), f.changes)
	return f
}

func (f *handlerFixture) context(method, target, body, tab string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	if tab != "" {
		c.Set("client_id", tab)
	}
	return c, rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) Snapshot {
	t.Helper()
	var s Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode snapshot: %v (%s)", err, rec.Body.String())
	}
	return s
}

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "role": role}).
		SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

// ---------- Appointments ----------

func TestHandler_ListAppointments_PerTab(t *testing.T) {
	f := newHandlerFixture()
	f.appts.items = []Appointment{{ID: 1, PatientID: 7, Status: StatusScheduled}}

	c, rec := f.context(http.MethodGet, "/appointments?status=scheduled&patient_id=7", "", "tab-1")
	if err := f.h.ListAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := decodeSnapshot(t, rec)
	if len(s.Rows) != 1 || s.Rows[0].PatientLabel != "Ana" || s.Rows[0].StatusLabel != "Agendada" {
		t.Errorf("unexpected rows %+v", s.Rows)
	}

	c, rec = f.context(http.MethodGet, "/appointments/view", "", "tab-1")
	f.h.GetView(c)
	if decodeSnapshot(t, rec).Filter.Status != "scheduled" {
		t.Error("expected tab state kept between requests")
	}

	c, rec = f.context(http.MethodGet, "/appointments/view", "", "tab-2")
	f.h.GetView(c)
	if decodeSnapshot(t, rec).Filter.Status != "" {
		t.Error("expected other tab isolated")
	}
	if f.h.Views().Len() != 2 {
		t.Errorf("expected 2 tab views, got %d", f.h.Views().Len())
	}
}

func TestHandler_ListAppointments_Degraded(t *testing.T) {
	f := newHandlerFixture()
	f.appts.listErr = errors.New("connection refused")

	c, rec := f.context(http.MethodGet, "/appointments", "", "tab-1")
	if err := f.h.ListAppointments(c); err != nil {
		t.Fatalf("expected degraded page, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_ListAppointments_Unauthorized(t *testing.T) {
	f := newHandlerFixture()
	f.appts.listErr = fmt.Errorf("list appointments: %w", &apiclient.Error{Status: http.StatusUnauthorized})

	c, _ := f.context(http.MethodGet, "/appointments", "", "tab-1")
	err := f.h.ListAppointments(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_CheckAvailability(t *testing.T) {
	f := newHandlerFixture()

	c, _ := f.context(http.MethodPost, "/appointments/availability", `{}`, "tab-1")
	err := f.h.CheckAvailability(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest || he.Message != "Define 'Desde' y 'Hasta'" {
		t.Fatalf("expected 400 without range, got %v", err)
	}

	body := `{"date_from":"2026-11-10","date_to":"2026-11-12","duration_minutes":30}`
	c, rec := f.context(http.MethodPost, "/appointments/availability", body, "tab-1")
	if err := f.h.CheckAvailability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := decodeSnapshot(t, rec)
	if !s.SlotsOpen || s.Header.Range != "2026-11-10 → 2026-11-12" {
		t.Errorf("unexpected snapshot %+v", s)
	}
	if got := f.appts.availCalls[0].Get("duration_minutes"); got != "30" {
		t.Errorf("expected duration sent, got %q", got)
	}
}

func TestHandler_PickSlotAndCreate(t *testing.T) {
	f := newHandlerFixture()

	c, _ := f.context(http.MethodPut, "/appointments/draft", `{"patient_id":"7"}`, "tab-1")
	if err := f.h.SetDraft(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, rec := f.context(http.MethodPost, "/appointments/pick", `{"date":"2026-11-11","time":"10:30"}`, "tab-1")
	if err := f.h.PickSlot(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := decodeSnapshot(t, rec); s.Draft.StartTime != "2026-11-11T10:30" || !s.FormOpen {
		t.Fatalf("unexpected draft %+v", s.Draft)
	}

	c, rec = f.context(http.MethodPost, "/appointments", "", "tab-1")
	if err := f.h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if got := f.appts.creates[0]; got.PatientID != 7 || got.StartTime != "2026-11-11T10:30:00" {
		t.Errorf("unexpected create %+v", got)
	}
	if len(f.changes.topics) != 1 || f.changes.topics[0] != TopicAppointments {
		t.Errorf("expected appointments change published, got %v", f.changes.topics)
	}
}

func TestHandler_PickSlot_Blank(t *testing.T) {
	f := newHandlerFixture()
	c, _ := f.context(http.MethodPost, "/appointments/pick", `{"date":"2026-11-11"}`, "tab-1")
	var he *echo.HTTPError
	if err := f.h.PickSlot(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Transitions(t *testing.T) {
	f := newHandlerFixture()

	c, rec := f.context(http.MethodPut, "/appointments/5/no-show", "", "tab-1")
	c.SetParamNames("id")
	c.SetParamValues("5")
	if err := f.h.NoShowAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || f.appts.transitions[0] != "no-show" {
		t.Errorf("unexpected result %d %v", rec.Code, f.appts.transitions)
	}

	c, _ = f.context(http.MethodDelete, "/appointments/404", "", "tab-1")
	c.SetParamNames("id")
	c.SetParamValues("404")
	var he *echo.HTTPError
	if err := f.h.CancelAppointment(c); !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	c, _ = f.context(http.MethodPut, "/appointments/x/complete", "", "tab-1")
	c.SetParamNames("id")
	c.SetParamValues("x")
	if err := f.h.CompleteAppointment(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %v", err)
	}
}

// ---------- Blocks ----------

func TestHandler_Blocks(t *testing.T) {
	f := newHandlerFixture()

	body := `{"start_time":"2026-12-24T09:00","end_time":"2026-12-24T18:00","reason":"Vacaciones"}`
	c, rec := f.context(http.MethodPost, "/blocks", body, "")
	if err := f.h.CreateBlock(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c, rec = f.context(http.MethodGet, "/blocks", "", "")
	if err := f.h.ListBlocks(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rows []blockRow
	json.Unmarshal(rec.Body.Bytes(), &rows)
	if len(rows) != 1 || rows[0].Reason != "Vacaciones" || rows[0].Start != "—" {
		t.Errorf("unexpected rows %+v", rows)
	}

	c, _ = f.context(http.MethodPost, "/blocks", `{"start_time":"2026-12-24T09:00"}`, "")
	var he *echo.HTTPError
	if err := f.h.CreateBlock(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_BlockDeleteRequiresClinician(t *testing.T) {
	tests := []struct {
		role string
		code int
	}{
		{"assistant", http.StatusForbidden},
		{"psychologist", http.StatusNoContent},
		{"admin", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			f := newHandlerFixture()
			f.h.RegisterRoutes(f.e.Group("/api"))

			req := httptest.NewRequest(http.MethodDelete, "/api/blocks/3", nil)
			req = req.WithContext(session.NewContext(req.Context(), session.FromToken(tokenFor(t, tt.role))))
			rec := httptest.NewRecorder()
			f.e.ServeHTTP(rec, req)

			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestHandler_RoutesRequireSession(t *testing.T) {
	f := newHandlerFixture()
	f.h.RegisterRoutes(f.e.Group("/api"))

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/appointments", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
