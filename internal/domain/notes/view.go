package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/clinicdesk/internal/domain/patients"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

// NotesView is the clinical notes page: the searchable note list, the
// per-patient timeline and the note editor.
type NotesView struct {
	notes    Repository
	appts    scheduling.AppointmentRepository
	patients patients.Repository
	notify   notification.Notifier
	now      func() time.Time

	mu       sync.Mutex
	items    []Note
	apptList []scheduling.Appointment
	apptIdx  Appointments
	dir      patients.Directory
	search   string

	timelineOpen   bool
	timelineID     int64
	timelineNotes  []Note
	timelineSearch string

	form     Form
	formOpen bool
}

// NewNotesView returns an empty page. A nil notifier discards notifications.
func NewNotesView(notes Repository, appts scheduling.AppointmentRepository, pats patients.Repository, notify notification.Notifier) *NotesView {
	if notify == nil {
		notify = notification.Discard
	}
	return &NotesView{
		notes:         notes,
		appts:         appts,
		patients:      pats,
		notify:        notify,
		now:           time.Now,
		items:         []Note{},
		apptIdx:       Appointments{},
		dir:           patients.Directory{},
		timelineNotes: []Note{},
		form:          NewForm(0),
	}
}

// Load fetches notes, appointments and patients in parallel. Each source
// that succeeds is applied even when another fails; failures are notified
// and returned joined.
func (v *NotesView) Load(ctx context.Context) error {
	var (
		g                           errgroup.Group
		notes                       []Note
		appts                       []scheduling.Appointment
		pats                        []patients.Patient
		notesErr, apptsErr, patsErr error
	)
	g.Go(func() error {
		notes, notesErr = v.notes.List(ctx)
		return nil
	})
	g.Go(func() error {
		appts, apptsErr = v.appts.List(ctx, nil)
		return nil
	})
	g.Go(func() error {
		pats, patsErr = v.patients.List(ctx)
		return nil
	})
	g.Wait()

	v.mu.Lock()
	if notesErr == nil {
		v.items = nonNil(notes)
	}
	if apptsErr == nil {
		if appts == nil {
			appts = []scheduling.Appointment{}
		}
		v.apptList = appts
		v.apptIdx = IndexAppointments(appts)
	}
	if patsErr == nil {
		v.dir = patients.NewDirectory(pats)
	}
	v.mu.Unlock()

	err := errors.Join(notesErr, apptsErr, patsErr)
	if err != nil {
		v.notify.Notify(ctx, notification.FromError(err, "Error cargando datos de notas"))
	}
	return err
}

func nonNil(list []Note) []Note {
	if list == nil {
		return []Note{}
	}
	return list
}

// SetSearch sets the main list filter. Nothing is refetched.
func (v *NotesView) SetSearch(q string) {
	v.mu.Lock()
	v.search = q
	v.mu.Unlock()
}

// OpenPatient fetches the patient's notes and opens the timeline.
func (v *NotesView) OpenPatient(ctx context.Context, patientID int64) error {
	if patientID <= 0 {
		return notification.Invalid("Paciente inválido")
	}
	list, err := v.notes.ByPatient(ctx, patientID)
	if err != nil {
		v.notify.Notify(ctx, notification.FromError(err, "No se pudieron cargar notas del paciente"))
		return err
	}
	v.mu.Lock()
	v.timelineOpen = true
	v.timelineID = patientID
	v.timelineNotes = nonNil(list)
	v.mu.Unlock()
	return nil
}

// ClosePatient hides the timeline and clears its search.
func (v *NotesView) ClosePatient() {
	v.mu.Lock()
	v.timelineOpen = false
	v.timelineSearch = ""
	v.mu.Unlock()
}

// SetTimelineSearch filters the open timeline.
func (v *NotesView) SetTimelineSearch(q string) {
	v.mu.Lock()
	v.timelineSearch = q
	v.mu.Unlock()
}

// StartNoteFor opens a blank editor linked to the patient's default
// appointment.
func (v *NotesView) StartNoteFor(patientID int64) Form {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.form = NewForm(DefaultAppointmentFor(patientID, v.apptList, v.now()))
	v.formOpen = true
	return v.form
}

// SetForm replaces the editor contents and opens it.
func (v *NotesView) SetForm(f Form) {
	v.mu.Lock()
	v.form = f
	v.formOpen = true
	v.mu.Unlock()
}

// CloseForm hides the editor, keeping what was typed.
func (v *NotesView) CloseForm() {
	v.mu.Lock()
	v.formOpen = false
	v.mu.Unlock()
}

// CreateNote saves the editor. On success the editor resets, the page
// reloads and an open timeline is refetched.
func (v *NotesView) CreateNote(ctx context.Context) (*Note, error) {
	v.mu.Lock()
	f := v.form
	v.mu.Unlock()

	payload, err := f.Payload()
	if err != nil {
		return nil, v.fail(ctx, err, "")
	}
	n, err := v.notes.Create(ctx, payload)
	if err != nil {
		return nil, v.fail(ctx, err, "Error creando nota")
	}
	v.notify.Notify(ctx, notification.Success("Nota creada"))

	v.mu.Lock()
	v.form = NewForm(0)
	v.formOpen = false
	v.mu.Unlock()

	v.afterMutation(ctx)
	return n, nil
}

// UpdateNote sends the set fields of p. An empty patch is rejected
// without a request.
func (v *NotesView) UpdateNote(ctx context.Context, id int64, p Patch) (*Note, error) {
	payload := p.Payload()
	if len(payload) == 0 {
		return nil, v.fail(ctx, notification.Invalid("Nada que actualizar"), "")
	}
	n, err := v.notes.Update(ctx, id, payload)
	if err != nil {
		return nil, v.fail(ctx, err, "Error actualizando nota")
	}
	v.notify.Notify(ctx, notification.Success("Nota actualizada"))
	v.afterMutation(ctx)
	return n, nil
}

// DeleteNote removes a note and reloads the page.
func (v *NotesView) DeleteNote(ctx context.Context, id int64) error {
	if err := v.notes.Delete(ctx, id); err != nil {
		return v.fail(ctx, err, "Error eliminando nota")
	}
	v.notify.Notify(ctx, notification.Success("Nota eliminada"))
	v.afterMutation(ctx)
	return nil
}

func (v *NotesView) afterMutation(ctx context.Context) {
	_ = v.Load(ctx)

	v.mu.Lock()
	open, id := v.timelineOpen, v.timelineID
	v.mu.Unlock()
	if open {
		_ = v.OpenPatient(ctx, id)
	}
}

func (v *NotesView) fail(ctx context.Context, err error, fallback string) error {
	v.notify.Notify(ctx, notification.FromError(err, fallback))
	return err
}

// -- Snapshot --

// Row is one entry of the main note list.
type Row struct {
	Note
	Appointment string `json:"appointment"`
	Patient     int64  `json:"patient"`
	PatientName string `json:"patient_name"`
	TypeLabel   string `json:"type_label"`
	Created     string `json:"created"`
}

type Timeline struct {
	PatientID   int64      `json:"patient_id"`
	PatientName string     `json:"patient_name"`
	Search      string     `json:"search"`
	Groups      []DayGroup `json:"groups"`
}

// AppointmentOption is an entry of the editor's appointment picker.
type AppointmentOption struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

type Snapshot struct {
	Search       string              `json:"search"`
	Rows         []Row               `json:"rows"`
	Timeline     *Timeline           `json:"timeline,omitempty"`
	Form         Form                `json:"form"`
	FormOpen     bool                `json:"form_open"`
	Appointments []AppointmentOption `json:"appointments"`
}

// Snapshot renders the page: filtered rows, the open timeline and the
// editor.
func (v *NotesView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()

	rows := []Row{}
	for _, n := range SortForList(v.items, v.apptIdx, now) {
		a := v.apptIdx.lookup(n.AppointmentID)
		pid := PatientOf(n, v.apptIdx)
		name := PatientName(v.dir, pid)
		if !MatchesWithPatient(n, a, name, v.search) {
			continue
		}
		created := n.CreatedAt.Display()
		if created == "" {
			created = "—"
		}
		rows = append(rows, Row{
			Note:        n,
			Appointment: AppointmentLabel(a, n.AppointmentID),
			Patient:     pid,
			PatientName: name,
			TypeLabel:   NoteTypeLabel(n.NoteType),
			Created:     created,
		})
	}

	opts := make([]AppointmentOption, 0, len(v.apptList))
	for _, a := range v.apptList {
		when := a.StartTime.Display()
		if when == "" {
			when = fmt.Sprintf("#%d", a.ID)
		}
		opts = append(opts, AppointmentOption{
			ID:    a.ID,
			Label: fmt.Sprintf("#%d — %s — %s — %s", a.ID, PatientName(v.dir, a.PatientID), when, a.Status),
		})
	}

	s := Snapshot{
		Search:       v.search,
		Rows:         rows,
		Form:         v.form,
		FormOpen:     v.formOpen,
		Appointments: opts,
	}
	if v.timelineOpen {
		s.Timeline = &Timeline{
			PatientID:   v.timelineID,
			PatientName: PatientName(v.dir, v.timelineID),
			Search:      v.timelineSearch,
			Groups:      GroupByDay(v.timelineNotes, v.apptIdx, v.timelineSearch, now),
		}
	}
	return s
}
