package scheduling

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/domain/patients"
	"github.com/clinicdesk/clinicdesk/internal/platform/naive"
)

// -- Status --

// Status is an appointment status as used by the clinic API.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// NormalizeStatus lower-cases s and folds the no-show spellings.
func NormalizeStatus(s string) Status {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "no-show", "noshow", "no_show":
		return StatusNoShow
	}
	return Status(s)
}

var statusLabels = map[Status]string{
	StatusScheduled: "Agendada",
	StatusConfirmed: "Confirmada",
	StatusCompleted: "Completada",
	StatusCancelled: "Cancelada",
	StatusNoShow:    "No asistió",
}

// Label is the Spanish badge text; unknown statuses show as received.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	if s == "" {
		return "—"
	}
	return string(s)
}

// Tone is the badge color class: ok, danger or warn.
func (s Status) Tone() string {
	switch s {
	case StatusCompleted:
		return "ok"
	case StatusCancelled, StatusNoShow:
		return "danger"
	}
	return "warn"
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	*s = NormalizeStatus(raw)
	return nil
}

// -- Entities --

type Appointment struct {
	ID              int64      `json:"id"`
	PatientID       int64      `json:"patient_id"`
	PatientName     string     `json:"patient_name,omitempty"`
	StartTime       naive.Time `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          Status     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       naive.Time `json:"created_at"`
}

// PatientLabel resolves the name shown for an appointment: the patient
// directory first, then the name sent with the appointment, then
// "patient_id:<id>".
func PatientLabel(a Appointment, dir patients.Directory) string {
	if name := dir.Name(a.PatientID); name != "" {
		return name
	}
	if a.PatientName != "" {
		return a.PatientName
	}
	return fmt.Sprintf("patient_id:%d", a.PatientID)
}

// CreateRequest is the body of POST /appointments/.
type CreateRequest struct {
	PatientID       int64   `json:"patient_id"`
	StartTime       string  `json:"start_time"`
	DurationMinutes int     `json:"duration_minutes"`
	Status          Status  `json:"status"`
	Notes           *string `json:"notes"`
}

// Patch is a partial update. StartTime is a date-time control value.
type Patch struct {
	StartTime       *string `json:"start_time,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Status          *Status `json:"status,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

// Payload converts the patch into the wire body.
func (p Patch) Payload() map[string]interface{} {
	out := make(map[string]interface{})
	if p.StartTime != nil {
		if v := naive.ToNaiveLocalString(*p.StartTime); v != "" {
			out["start_time"] = v
		}
	}
	if p.DurationMinutes != nil {
		out["duration_minutes"] = *p.DurationMinutes
	}
	if p.Status != nil {
		out["status"] = NormalizeStatus(string(*p.Status))
	}
	if p.Notes != nil {
		out["notes"] = *p.Notes
	}
	return out
}

// -- Filter --

// Filter is the appointment list filter. Blank fields are unset.
type Filter struct {
	DateFrom  string `json:"date_from"`
	DateTo    string `json:"date_to"`
	Status    string `json:"status"`
	PatientID string `json:"patient_id"`
}

// FilterFromQuery reads the four filter fields; an absent or blank
// parameter leaves its field unset.
func FilterFromQuery(q url.Values) Filter {
	get := func(k string) string { return strings.TrimSpace(q.Get(k)) }
	return Filter{
		DateFrom:  get("date_from"),
		DateTo:    get("date_to"),
		Status:    get("status"),
		PatientID: get("patient_id"),
	}
}

// Params returns only the set fields. An empty filter yields empty values.
func (f Filter) Params() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("date_from", f.DateFrom)
	set("date_to", f.DateTo)
	set("status", f.Status)
	set("patient_id", f.PatientID)
	return v
}

// HasRange reports whether both bounds are set.
func (f Filter) HasRange() bool {
	return f.DateFrom != "" && f.DateTo != ""
}

// -- Draft --

// Draft is the appointment-creation form.
type Draft struct {
	PatientID       string `json:"patient_id"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (d Draft) patientID() (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(d.PatientID), 10, 64)
	return id, err == nil && id > 0
}

// -- Availability --

type WorkingHours struct {
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	DaysEnabled map[string]bool `json:"days_enabled,omitempty"`
}

type AvailabilityDay struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// Availability is the result of GET /appointments/availability.
type Availability struct {
	AgendaUserID    int64             `json:"agenda_user_id,omitempty"`
	DateFrom        string            `json:"date_from"`
	DateTo          string            `json:"date_to"`
	SlotMinutes     *int              `json:"slot_minutes"`
	DurationMinutes *int              `json:"duration_minutes"`
	WorkingHours    *WorkingHours     `json:"working_hours"`
	Days            []AvailabilityDay `json:"days"`
}

// NoAvailabilityLabel marks a checked day without free slots.
const NoAvailabilityLabel = "Sin horarios disponibles este día."

// Slot is one pickable time on a day row.
type Slot struct {
	Clock string `json:"time"`
	// Value is the date-time control value the slot pre-fills.
	Value string `json:"value"`
}

// DayRow is one day of the slot browser.
type DayRow struct {
	Date           string `json:"date"`
	Slots          []Slot `json:"slots"`
	NoAvailability bool   `json:"no_availability"`
	Label          string `json:"label,omitempty"`
}

// DayGrid lays out one row per returned day in server order. Days without
// slots are kept and marked.
func DayGrid(a *Availability) []DayRow {
	if a == nil {
		return []DayRow{}
	}
	rows := make([]DayRow, 0, len(a.Days))
	for _, d := range a.Days {
		row := DayRow{Date: d.Date, Slots: make([]Slot, 0, len(d.Slots))}
		for _, clock := range d.Slots {
			row.Slots = append(row.Slots, Slot{Clock: clock, Value: naive.ToDateTimeInputValue(d.Date, clock)})
		}
		if len(row.Slots) == 0 {
			row.NoAvailability = true
			row.Label = NoAvailabilityLabel
		}
		rows = append(rows, row)
	}
	return rows
}

// Header holds the slot browser summary labels.
type Header struct {
	Range           string `json:"range"`
	WorkingHours    string `json:"working_hours"`
	SlotMinutes     string `json:"slot_minutes"`
	DurationMinutes string `json:"duration_minutes"`
}

// HeaderFor builds the labels; missing values render as "-" and the
// duration falls back to the draft's.
func HeaderFor(a *Availability, draftDuration int) Header {
	h := Header{Range: "-", WorkingHours: "-", SlotMinutes: "-",
		DurationMinutes: fmt.Sprintf("%d minutos", draftDuration)}
	if a == nil {
		return h
	}
	if a.DateFrom != "" && a.DateTo != "" {
		h.Range = a.DateFrom + " → " + a.DateTo
	}
	if wh := a.WorkingHours; wh != nil && wh.StartTime != "" && wh.EndTime != "" {
		h.WorkingHours = wh.StartTime + " a " + wh.EndTime
	}
	if a.SlotMinutes != nil {
		h.SlotMinutes = fmt.Sprintf("%d minutos", *a.SlotMinutes)
	}
	if a.DurationMinutes != nil {
		h.DurationMinutes = fmt.Sprintf("%d minutos", *a.DurationMinutes)
	}
	return h
}

// -- Blocks --

// Block is a schedule block: an interval nobody can book.
type Block struct {
	ID        int64      `json:"id"`
	StartTime naive.Time `json:"start_time"`
	EndTime   naive.Time `json:"end_time"`
	Reason    string     `json:"reason,omitempty"`
	IsActive  bool       `json:"is_active"`
}

// BlockForm is the block editor. Times are date-time control values.
type BlockForm struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

// BlockFormFrom pre-fills the editor from a stored block.
func BlockFormFrom(b Block) BlockForm {
	f := BlockForm{Reason: b.Reason}
	if !b.StartTime.IsZero() {
		f.StartTime = b.StartTime.Format(naive.InputLayout)
	}
	if !b.EndTime.IsZero() {
		f.EndTime = b.EndTime.Format(naive.InputLayout)
	}
	return f
}
