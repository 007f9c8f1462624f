package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

func runGuard(t *testing.T, sess *session.Session, capability Capability) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if sess != nil {
		req = req.WithContext(session.NewContext(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
	return rec, RequireCapability(capability)(handler)(c)
}

func TestRequireCapability_Allowed(t *testing.T) {
	rec, err := runGuard(t, sessionFor(t, "psychologist"), CapNotes)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireCapability_Denied(t *testing.T) {
	_, err := runGuard(t, sessionFor(t, "assistant"), CapNotes)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestRequireCapability_NoSession(t *testing.T) {
	_, err := runGuard(t, nil, CapPatients)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRequireCapability_MissingRole(t *testing.T) {
	_, err := runGuard(t, sessionFor(t, ""), CapPatients)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}
