package scheduling

import (
	"encoding/json"
	"net/url"
	"reflect"
	"testing"

	"github.com/clinicdesk/clinicdesk/internal/domain/patients"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

func intPtr(v int) *int { return &v }

// ---------- Status ----------

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]Status{
		"Scheduled": StatusScheduled,
		" no-show ": StatusNoShow,
		"NOSHOW":    StatusNoShow,
		"no_show":   StatusNoShow,
		"archived":  Status("archived"),
	}
	for in, want := range tests {
		if got := NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatus_LabelAndTone(t *testing.T) {
	tests := []struct {
		status Status
		label  string
		tone   string
	}{
		{StatusScheduled, "Agendada", "warn"},
		{StatusCompleted, "Completada", "ok"},
		{StatusCancelled, "Cancelada", "danger"},
		{StatusNoShow, "No asistió", "danger"},
		{Status("archived"), "archived", "warn"},
	}
	for _, tt := range tests {
		if tt.status.Label() != tt.label || tt.status.Tone() != tt.tone {
			t.Errorf("%q: got %q/%q, want %q/%q", tt.status, tt.status.Label(), tt.status.Tone(), tt.label, tt.tone)
		}
	}
}

func TestAppointment_DecodeNormalizesStatus(t *testing.T) {
	var a Appointment
	body := `{"id":1,"patient_id":2,"start_time":"2026-02-11T12:00:00","status":"No-Show"}`
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Status != StatusNoShow {
		t.Errorf("expected no_show, got %q", a.Status)
	}
	if a.StartTime.Display() != "2026-02-11 12:00" {
		t.Errorf("unexpected start %q", a.StartTime.Display())
	}
}

func TestPatientLabel(t *testing.T) {
	dir := patients.NewDirectory([]patients.Patient{{ID: 1, FullName: "Ana"}})
	if got := PatientLabel(Appointment{PatientID: 1, PatientName: "otro"}, dir); got != "Ana" {
		t.Errorf("expected directory name, got %q", got)
	}
	if got := PatientLabel(Appointment{PatientID: 2, PatientName: "Luis"}, dir); got != "Luis" {
		t.Errorf("expected embedded name, got %q", got)
	}
	if got := PatientLabel(Appointment{PatientID: 9}, dir); got != "patient_id:9" {
		t.Errorf("expected id fallback, got %q", got)
	}
}

// ---------- Filter ----------

func TestFilterFromQuery_RoundTrip(t *testing.T) {
	q := url.Values{"date_from": {"2026-11-01"}, "status": {"  "}, "patient_id": {"4"}}
	f := FilterFromQuery(q)
	if f != (Filter{DateFrom: "2026-11-01", PatientID: "4"}) {
		t.Fatalf("unexpected filter %+v", f)
	}
	want := url.Values{"date_from": {"2026-11-01"}, "patient_id": {"4"}}
	if !reflect.DeepEqual(f.Params(), want) {
		t.Errorf("got %v, want %v", f.Params(), want)
	}
	if len(Filter{}.Params()) != 0 {
		t.Error("expected empty params for empty filter")
	}
}

// ---------- Patch ----------

func TestPatch_Payload(t *testing.T) {
	start := "2026-02-11T12:00"
	bad := "mañana"
	st := Status("No-Show")

	got := Patch{StartTime: &start, DurationMinutes: intPtr(45), Status: &st}.Payload()
	want := map[string]interface{}{
		"start_time":       "2026-02-11T12:00:00",
		"duration_minutes": 45,
		"status":           StatusNoShow,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if p := (Patch{StartTime: &bad}).Payload(); len(p) != 0 {
		t.Errorf("expected unparseable start dropped, got %v", p)
	}
}

// ---------- Availability ----------

func TestDayGrid(t *testing.T) {
	a := &Availability{Days: []AvailabilityDay{
		{Date: "2026-11-11", Slots: []string{"10:00", "10:30"}},
		{Date: "2026-11-12", Slots: nil},
		{Date: "2026-11-10", Slots: []string{"09:00"}},
	}}
	rows := DayGrid(a)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Date != "2026-11-11" || rows[2].Date != "2026-11-10" {
		t.Error("expected server order kept")
	}
	if rows[0].Slots[1] != (Slot{Clock: "10:30", Value: "2026-11-11T10:30"}) {
		t.Errorf("unexpected slot %+v", rows[0].Slots[1])
	}
	if !rows[1].NoAvailability || rows[1].Label != NoAvailabilityLabel || len(rows[1].Slots) != 0 {
		t.Errorf("expected empty day marked, got %+v", rows[1])
	}
	if rows[0].NoAvailability {
		t.Error("day with slots must not be marked")
	}
	if got := DayGrid(nil); got == nil || len(got) != 0 {
		t.Errorf("expected empty grid, got %v", got)
	}
}

func TestHeaderFor(t *testing.T) {
	a := &Availability{
		DateFrom:        "2026-11-10",
		DateTo:          "2026-11-12",
		SlotMinutes:     intPtr(30),
		DurationMinutes: intPtr(45),
		WorkingHours:    &WorkingHours{StartTime: "09:00", EndTime: "18:00"},
	}
	want := Header{
		Range:           "2026-11-10 → 2026-11-12",
		WorkingHours:    "09:00 a 18:00",
		SlotMinutes:     "30 minutos",
		DurationMinutes: "45 minutos",
	}
	if got := HeaderFor(a, 60); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	sparse := HeaderFor(&Availability{DateFrom: "2026-11-10"}, 60)
	if sparse != (Header{Range: "-", WorkingHours: "-", SlotMinutes: "-", DurationMinutes: "60 minutos"}) {
		t.Errorf("unexpected sparse header %+v", sparse)
	}
	if HeaderFor(nil, 30).DurationMinutes != "30 minutos" {
		t.Error("expected draft duration without a result")
	}
}

func TestAvailability_DecodeWorkingHours(t *testing.T) {
	body := `{"date_from":"2026-11-10","date_to":"2026-11-10","slot_minutes":30,"duration_minutes":60,
		"working_hours":{"start_time":"09:00","end_time":"17:00","days_enabled":{"mon":true,"sun":false}},
		"days":[{"date":"2026-11-10","slots":["09:00"]}]}`
	var a Availability
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.WorkingHours == nil || !a.WorkingHours.DaysEnabled["mon"] || a.WorkingHours.DaysEnabled["sun"] {
		t.Errorf("unexpected working hours %+v", a.WorkingHours)
	}
	if *a.SlotMinutes != 30 || len(a.Days) != 1 {
		t.Errorf("unexpected availability %+v", a)
	}
}

// ---------- Blocks ----------

func TestBlockForm_Payload(t *testing.T) {
	p, err := BlockForm{StartTime: "2026-12-24T09:00", EndTime: "2026-12-24T18:00", Reason: "  "}.Payload()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]interface{}{
		"start_time": "2026-12-24T09:00:00",
		"end_time":   "2026-12-24T18:00:00",
		"reason":     nil,
	}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("got %v, want %v", p, want)
	}

	tests := []struct {
		name string
		form BlockForm
		msg  string
	}{
		{"missing end", BlockForm{StartTime: "2026-12-24T09:00"}, "Selecciona inicio y fin"},
		{"end before start", BlockForm{StartTime: "2026-12-24T18:00", EndTime: "2026-12-24T09:00"}, "El fin debe ser posterior al inicio"},
		{"equal", BlockForm{StartTime: "2026-12-24T09:00", EndTime: "2026-12-24T09:00"}, "El fin debe ser posterior al inicio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.form.Payload()
			if !notification.IsValidation(err) || err.Error() != tt.msg {
				t.Errorf("got %v, want %q", err, tt.msg)
			}
		})
	}
}

func TestBlockFormFrom(t *testing.T) {
	var b Block
	json.Unmarshal([]byte(`{"id":1,"start_time":"2026-12-24T09:00:00","end_time":null,"reason":"Vacaciones"}`), &b)
	f := BlockFormFrom(b)
	if f != (BlockForm{StartTime: "2026-12-24T09:00", Reason: "Vacaciones"}) {
		t.Errorf("unexpected form %+v", f)
	}
}
