package notes

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/domain/patients"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/naive"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

type NoteType string

const (
	TypeSOAP    NoteType = "soap"
	TypeGeneral NoteType = "general"
)

// NoteTypeLabel is the Spanish name shown for a note type. Unknown types
// show as received and a blank one as "—".
func NoteTypeLabel(t NoteType) string {
	switch t {
	case TypeSOAP:
		return "Nota clínica"
	case TypeGeneral:
		return "Nota general"
	case "":
		return "—"
	}
	return string(t)
}

// NoDateKey groups notes that carry no usable date.
const NoDateKey = "Sin fecha"

type Note struct {
	ID            int64      `json:"id"`
	AppointmentID int64      `json:"appointment_id"`
	PatientID     *int64     `json:"patient_id,omitempty"`
	NoteType      NoteType   `json:"note_type"`
	Subjective    string     `json:"subjective,omitempty"`
	Objective     string     `json:"objective,omitempty"`
	Assessment    string     `json:"assessment,omitempty"`
	Plan          string     `json:"plan,omitempty"`
	Content       string     `json:"content,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     naive.Time `json:"created_at"`
}

// Appointments indexes appointments by ID.
type Appointments map[int64]scheduling.Appointment

func IndexAppointments(list []scheduling.Appointment) Appointments {
	m := make(Appointments, len(list))
	for _, a := range list {
		m[a.ID] = a
	}
	return m
}

// lookup returns the linked appointment, or nil.
func (m Appointments) lookup(id int64) *scheduling.Appointment {
	if a, ok := m[id]; ok {
		return &a
	}
	return nil
}

// PatientOf resolves the note's patient: its own patient_id, else the
// linked appointment's. Zero means unknown.
func PatientOf(n Note, appts Appointments) int64 {
	if n.PatientID != nil {
		return *n.PatientID
	}
	if a := appts.lookup(n.AppointmentID); a != nil {
		return a.PatientID
	}
	return 0
}

// PatientName is the directory name, or "Paciente #<id>".
func PatientName(dir patients.Directory, id int64) string {
	if name := dir.Name(id); name != "" {
		return name
	}
	return fmt.Sprintf("Paciente #%d", id)
}

// AppointmentLabel renders "<when> — <status>" for a linked appointment.
func AppointmentLabel(a *scheduling.Appointment, appointmentID int64) string {
	if a == nil {
		return fmt.Sprintf("Cita #%d", appointmentID)
	}
	when := a.StartTime.Display()
	if when == "" {
		when = fmt.Sprintf("#%d", a.ID)
	}
	return when + " — " + a.Status.Label()
}

// -- Search --

func haystack(n Note, a *scheduling.Appointment) string {
	when := ""
	if a != nil {
		when = a.StartTime.Display()
	}
	return strings.Join([]string{
		NoteTypeLabel(n.NoteType),
		when,
		n.CreatedAt.Display(),
		n.Subjective,
		n.Objective,
		n.Assessment,
		n.Plan,
		n.Content,
	}, " ")
}

func contains(hay, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(hay), q)
}

// Matches reports whether query is a case-insensitive substring of the
// note's searchable text: type label, appointment time, creation time and
// the content fields. A blank query matches everything.
func Matches(n Note, a *scheduling.Appointment, query string) bool {
	return contains(haystack(n, a), query)
}

// MatchesWithPatient is Matches with the patient name prepended, as used by
// the main note list.
func MatchesWithPatient(n Note, a *scheduling.Appointment, patientName, query string) bool {
	return contains(patientName+" "+haystack(n, a), query)
}

// -- Ordering --

func createdDesc(list []Note) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt.Time)
	})
}

// SortForList orders the main list: notes whose appointment is today
// first, then by creation time, newest first. The input is not modified.
func SortForList(list []Note, appts Appointments, now time.Time) []Note {
	today := naive.Today(now)
	out := append([]Note(nil), list...)
	isToday := func(n Note) bool {
		a := appts.lookup(n.AppointmentID)
		return a != nil && a.StartTime.Date() == today
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := isToday(out[i]), isToday(out[j])
		if ti != tj {
			return ti
		}
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	return out
}

// DayGroup is one day of a patient's timeline.
type DayGroup struct {
	Date    string `json:"date"`
	IsToday bool   `json:"is_today"`
	Notes   []Note `json:"notes"`
}

// dayKey picks the linked appointment's date, then the creation date.
func dayKey(n Note, appts Appointments) string {
	if a := appts.lookup(n.AppointmentID); a != nil {
		if d := a.StartTime.Date(); d != "" {
			return d
		}
	}
	if d := n.CreatedAt.Date(); d != "" {
		return d
	}
	return NoDateKey
}

// GroupByDay filters notes by query and groups them by day. Within a day
// notes are newest first. Today's group comes first, the others by date
// descending, and undated notes last.
func GroupByDay(list []Note, appts Appointments, query string, now time.Time) []DayGroup {
	sorted := append([]Note(nil), list...)
	createdDesc(sorted)

	today := naive.Today(now)
	index := make(map[string]int)
	groups := []DayGroup{}
	for _, n := range sorted {
		if !Matches(n, appts.lookup(n.AppointmentID), query) {
			continue
		}
		key := dayKey(n, appts)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DayGroup{Date: key, IsToday: key == today})
		}
		groups[i].Notes = append(groups[i].Notes, n)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		gi, gj := groups[i], groups[j]
		if gi.IsToday != gj.IsToday {
			return gi.IsToday
		}
		if (gi.Date == NoDateKey) != (gj.Date == NoDateKey) {
			return gj.Date == NoDateKey
		}
		// YYYY-MM-DD keys order as dates
		return gi.Date > gj.Date
	})
	return groups
}

// DefaultAppointmentFor picks the appointment a new note for patientID is
// linked to: today's if there is one, else the most recent. Zero if the
// patient has none.
func DefaultAppointmentFor(patientID int64, list []scheduling.Appointment, now time.Time) int64 {
	var own []scheduling.Appointment
	for _, a := range list {
		if a.PatientID == patientID {
			own = append(own, a)
		}
	}
	if len(own) == 0 {
		return 0
	}
	sort.SliceStable(own, func(i, j int) bool {
		return own[i].StartTime.After(own[j].StartTime.Time)
	})
	today := naive.Today(now)
	for _, a := range own {
		if a.StartTime.Date() == today {
			return a.ID
		}
	}
	return own[0].ID
}

// -- Forms --

// Form is the note editor.
type Form struct {
	AppointmentID string   `json:"appointment_id"`
	NoteType      NoteType `json:"note_type"`
	Subjective    string   `json:"subjective"`
	Objective     string   `json:"objective"`
	Assessment    string   `json:"assessment"`
	Plan          string   `json:"plan"`
	Content       string   `json:"content"`
}

// NewForm is an empty SOAP note linked to appointmentID (0 for none).
func NewForm(appointmentID int64) Form {
	f := Form{NoteType: TypeSOAP}
	if appointmentID > 0 {
		f.AppointmentID = strconv.FormatInt(appointmentID, 10)
	}
	return f
}

func orNil(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// Payload validates the form and builds the creation body. Blank text
// fields are sent as null.
func (f Form) Payload() (map[string]interface{}, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(f.AppointmentID), 10, 64)
	if err != nil || id <= 0 {
		return nil, notification.Invalid("Selecciona una cita")
	}
	t := f.NoteType
	if t == "" {
		t = TypeSOAP
	}
	return map[string]interface{}{
		"appointment_id": id,
		"note_type":      t,
		"subjective":     orNil(f.Subjective),
		"objective":      orNil(f.Objective),
		"assessment":     orNil(f.Assessment),
		"plan":           orNil(f.Plan),
		"content":        orNil(f.Content),
	}, nil
}

// Patch is a partial note update; nil fields are left alone.
type Patch struct {
	NoteType   *NoteType `json:"note_type,omitempty"`
	Subjective *string   `json:"subjective,omitempty"`
	Objective  *string   `json:"objective,omitempty"`
	Assessment *string   `json:"assessment,omitempty"`
	Plan       *string   `json:"plan,omitempty"`
	Content    *string   `json:"content,omitempty"`
}

func (p Patch) Payload() map[string]interface{} {
	out := make(map[string]interface{})
	if p.NoteType != nil {
		out["note_type"] = *p.NoteType
	}
	set := func(k string, v *string) {
		if v != nil {
			out[k] = *v
		}
	}
	set("subjective", p.Subjective)
	set("objective", p.Objective)
	set("assessment", p.Assessment)
	set("plan", p.Plan)
	set("content", p.Content)
	return out
}
