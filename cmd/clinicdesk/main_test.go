package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

// fakeClinicAPI answers the handful of endpoints the tests touch.
func fakeClinicAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" && r.URL.Path != "/auth/login" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Not authenticated"}`))
			return
		}
		switch r.URL.Path {
		case "/auth/login":
			w.Write([]byte(`{"access_token":"` + signedToken(t, "psychologist") + `","token_type":"bearer"}`))
		case "/patients/":
			w.Write([]byte(`[{"id":5,"full_name":"Ana"}]`))
		case "/appointments/":
			w.Write([]byte(`[{"id":1,"patient_id":5,"start_time":"2026-03-10T09:00:00","duration_minutes":60,"status":"scheduled"}]`))
		case "/appointments/availability":
			w.Write([]byte(`{"date_from":"2026-03-10","date_to":"2026-03-11","slot_minutes":30,
				"working_hours":{"start_time":"09:00","end_time":"17:00"},
				"days":[{"date":"2026-03-10","slots":["09:00","09:30"]},{"date":"2026-03-11","slots":[]}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signedToken(t *testing.T, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "role": role}).SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		APIURL:                 apiURL,
		Port:                   "0",
		Env:                    "test",
		CORSOrigins:            []string{"*"},
		DefaultDurationMinutes: 60,
		DashboardDays:          7,
		UpcomingLimit:          20,
	}
}

// ---------------------------------------------------------------------------
// BFF server
// ---------------------------------------------------------------------------

func TestServer_Health(t *testing.T) {
	s := newServer(testConfig("http://localhost:8000"), zerolog.Nop())
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_Guards(t *testing.T) {
	s := newServer(testConfig("http://localhost:8000"), zerolog.Nop())
	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"anonymous dashboard", "/api/dashboard", "", http.StatusUnauthorized},
		{"assistant dashboard", "/api/dashboard", signedToken(t, "assistant"), http.StatusForbidden},
		{"assistant notes", "/api/notes", signedToken(t, "assistant"), http.StatusForbidden},
		{"anonymous blocks", "/api/blocks", "", http.StatusUnauthorized},
		{"anonymous notifications", "/api/notifications?client_id=tab-1", "", http.StatusUnauthorized},
		{"anonymous websocket", "/ws?client_id=tab-1", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			s.echo.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestServer_AppointmentsPerTab(t *testing.T) {
	api := fakeClinicAPI(t)
	s := newServer(testConfig(api.URL), zerolog.Nop())
	tok := signedToken(t, "assistant")

	get := func(target, tab string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set(notification.ClientIDHeader, tab)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/api/appointments?date_from=2026-03-10", "tab-a")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var snap struct {
		Filter struct {
			DateFrom string `json:"date_from"`
		} `json:"filter"`
		Rows []struct {
			PatientLabel string `json:"patient_label"`
		} `json:"rows"`
	}
	json.Unmarshal(rec.Body.Bytes(), &snap)
	if snap.Filter.DateFrom != "2026-03-10" || len(snap.Rows) != 1 || snap.Rows[0].PatientLabel != "Ana" {
		t.Errorf("unexpected snapshot %s", rec.Body.String())
	}
	if n := s.appointments.Views().Len(); n != 1 {
		t.Errorf("expected one tab view, got %d", n)
	}

	get("/api/appointments/view", "tab-b")
	if n := s.appointments.Views().Len(); n != 2 {
		t.Errorf("expected two tab views, got %d", n)
	}
}

func forgedToken(t *testing.T, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"role": role}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	return tok
}

func serve(s *server, method, target, token, tab string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if tab != "" {
		req.Header.Set(notification.ClientIDHeader, tab)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestServer_TabViewBoundToCredential(t *testing.T) {
	api := fakeClinicAPI(t)
	s := newServer(testConfig(api.URL), zerolog.Nop())

	if rec := serve(s, http.MethodGet, "/api/appointments", signedToken(t, "assistant"), "tab-1"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	rec := serve(s, http.MethodGet, "/api/appointments/view", forgedToken(t, "admin"), "tab-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var snap struct {
		Rows []json.RawMessage `json:"rows"`
	}
	json.Unmarshal(rec.Body.Bytes(), &snap)
	if len(snap.Rows) != 0 || strings.Contains(rec.Body.String(), "Ana") {
		t.Fatalf("another credential must not see the tab's rows: %s", rec.Body.String())
	}
	if n := s.appointments.Views().Len(); n != 2 {
		t.Errorf("expected a separate view per credential, got %d", n)
	}
}

func TestServer_LogoutDropsTabState(t *testing.T) {
	api := fakeClinicAPI(t)
	s := newServer(testConfig(api.URL), zerolog.Nop())
	tok := signedToken(t, "assistant")

	serve(s, http.MethodGet, "/api/appointments", tok, "tab-1")
	n := notification.Info("Citas cargadas")
	n.Topic = notification.TabTopic("tab-1", session.FromToken(tok).Fingerprint())
	s.center.Notify(context.Background(), n)

	if rec := serve(s, http.MethodPost, "/api/session/logout", tok, "tab-1"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if s.appointments.Views().Len() != 0 {
		t.Error("expected tab views dropped on logout")
	}
	if s.center.Topics() != 0 {
		t.Errorf("expected notification history dropped on logout, %d topics left", s.center.Topics())
	}
}

func TestServer_SweepKeepsActiveTabs(t *testing.T) {
	api := fakeClinicAPI(t)
	s := newServer(testConfig(api.URL), zerolog.Nop())
	tok := signedToken(t, "assistant")

	serve(s, http.MethodGet, "/api/appointments", tok, "tab-1")
	s.center.Notify(notification.ContextWithTopic(context.Background(), "tab-1"), notification.Info("x"))

	s.sweep(zerolog.Nop())
	if s.appointments.Views().Len() != 1 || s.center.Topics() != 1 {
		t.Error("expected recently used tab state kept")
	}
}

func TestRunServer_InvalidConfig(t *testing.T) {
	t.Setenv("DEFAULT_DURATION_MINUTES", "0")
	err := runServer()
	if err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestServer_SessionLogin(t *testing.T) {
	api := fakeClinicAPI(t)
	s := newServer(testConfig(api.URL), zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/session/login", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Token string `json:"token"`
		Role  string `json:"role"`
		Home  string `json:"home"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Token == "" || body.Role != "psychologist" || body.Home != "/dashboard" {
		t.Errorf("unexpected login response %+v", body)
	}
}

// ---------------------------------------------------------------------------
// CLI
// ---------------------------------------------------------------------------

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestCLI_Availability(t *testing.T) {
	api := fakeClinicAPI(t)
	out, _, err := runCLI(t, "appointments", "availability",
		"--api-url", api.URL, "--token", signedToken(t, "assistant"),
		"--date-from", "2026-03-10", "--date-to", "2026-03-11", "--duration", "30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"Rango:    2026-03-10 → 2026-03-11",
		"Horario:  09:00 a 17:00",
		"2026-03-10  09:00 09:30",
		"2026-03-11  Sin horarios disponibles este día.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_AvailabilityRequiresRange(t *testing.T) {
	api := fakeClinicAPI(t)
	_, errOut, err := runCLI(t, "appointments", "availability",
		"--api-url", api.URL, "--token", signedToken(t, "assistant"), "--date-from", "2026-03-10")
	if !notification.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(errOut, "Define 'Desde' y 'Hasta'") {
		t.Errorf("expected the warning printed, got %q", errOut)
	}
}

func TestCLI_RequiresToken(t *testing.T) {
	t.Setenv(TokenEnv, "")
	_, _, err := runCLI(t, "appointments", "list", "--api-url", "http://localhost:1")
	if err != errNoToken {
		t.Fatalf("expected errNoToken, got %v", err)
	}
}

func TestCLI_RoleDenied(t *testing.T) {
	_, _, err := runCLI(t, "dashboard", "--api-url", "http://localhost:1", "--token", signedToken(t, "assistant"))
	if err == nil || !strings.Contains(err.Error(), "may not use dashboard") {
		t.Fatalf("expected role denial, got %v", err)
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	printer(&buf).Notify(context.Background(), notification.Success("Cita creada"))
	if got := buf.String(); got != "[Éxito] Cita creada\n" {
		t.Errorf("got %q", got)
	}
}
