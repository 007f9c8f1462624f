package patients

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *mockRepo, *echo.Echo) {
	svc, repo, _ := newTestService()
	return NewHandler(svc), repo, echo.New()
}

func TestHandler_CreatePatient(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"full_name":"Ana","age":"30"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_CreatePatient_Validation(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"full_name":"Ana"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.CreatePatient(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.items[3] = &Patient{ID: 3, FullName: "Luis", BirthDate: "1980-03-03T00:00:00"}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("3")

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Form Form `json:"form"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Form.BirthDate != "1980-03-03" {
		t.Errorf("expected pre-filled form, got %+v", body.Form)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("99")

	err := h.GetPatient(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("abc")

	if err := h.DeletePatient(c); err == nil {
		t.Error("expected error for invalid id")
	}
}

func TestHandler_DeletePatient(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.items[4] = &Patient{ID: 4, FullName: "Eva"}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("4")

	if err := h.DeletePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_ListPatients_Paged(t *testing.T) {
	h, repo, e := newTestHandler()
	for i := int64(1); i <= 3; i++ {
		repo.items[i] = &Patient{ID: i, FullName: "P"}
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=2", nil), rec)
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Data    []Patient `json:"data"`
		Total   int       `json:"total"`
		HasMore bool      `json:"has_more"`
	}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if len(page.Data) != 2 || page.Total != 3 || !page.HasMore {
		t.Errorf("unexpected page %+v", page)
	}
}
