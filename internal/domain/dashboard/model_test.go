package dashboard

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.FixedZone("UTC-6", -6*3600))

func TestDeepLink(t *testing.T) {
	link := DeepLink(" Cancelled", 7, fixedNow)
	if !strings.HasPrefix(link, "/appointments?") {
		t.Fatalf("unexpected link %q", link)
	}
	q, err := url.ParseQuery(strings.TrimPrefix(link, "/appointments?"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Get("date_from") != "2026-03-04" || q.Get("date_to") != "2026-03-10" {
		t.Errorf("unexpected range %v", q)
	}
	if q.Get("status") != "cancelled" {
		t.Errorf("expected normalized status, got %q", q.Get("status"))
	}
	if strings.Contains(DeepLink("", 7, fixedNow), "status") {
		t.Error("expected no status param")
	}
}

func TestCards(t *testing.T) {
	if got := Cards(nil, 7, fixedNow); len(got) != 0 {
		t.Fatalf("expected no cards without metrics, got %+v", got)
	}
	m := &Metrics{TotalPatientsActive: 12, NewPatientsInRange: 2, TotalNotesInRange: 5,
		TotalAppointmentsInRange: 9, ScheduledAppointmentsInRange: 6, CancelledAppointmentsInRange: 1}
	cards := Cards(m, 14, fixedNow)
	if len(cards) != 6 {
		t.Fatalf("expected 6 cards, got %d", len(cards))
	}
	want := []struct {
		title  string
		value  int
		linked bool
	}{
		{"Pacientes activos", 12, true},
		{"Nuevos en rango", 2, false},
		{"Notas en rango", 5, false},
		{"Citas (rango)", 9, true},
		{"Agendadas", 6, true},
		{"Canceladas", 1, true},
	}
	for i, w := range want {
		c := cards[i]
		if c.Title != w.title || c.Value != w.value || (c.Link != "") != w.linked {
			t.Errorf("card %d: got %+v", i, c)
		}
	}
	if !strings.Contains(cards[4].Link, "status=scheduled") {
		t.Errorf("unexpected scheduled link %q", cards[4].Link)
	}
}

func TestUtilization(t *testing.T) {
	if got := Utilization(nil); got != "-" {
		t.Errorf("got %q", got)
	}
	if got := Utilization(&Metrics{UtilizationPercent: 42.5}); got != "42.5%" {
		t.Errorf("got %q", got)
	}
	if got := Utilization(&Metrics{}); got != "0%" {
		t.Errorf("got %q", got)
	}
}

func TestUpcomingAppointment_PatientLabel(t *testing.T) {
	tests := []struct {
		in   UpcomingAppointment
		want string
	}{
		{UpcomingAppointment{PatientID: 3, PatientName: "Ana"}, "Ana"},
		{UpcomingAppointment{PatientID: 3}, "Paciente #3"},
		{UpcomingAppointment{}, "Paciente"},
	}
	for _, tt := range tests {
		if got := tt.in.PatientLabel(); got != tt.want {
			t.Errorf("PatientLabel(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
