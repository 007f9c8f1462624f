package scheduling

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/clinicdesk/internal/domain/patients"
	"github.com/clinicdesk/clinicdesk/internal/platform/naive"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

// DefaultDurationMinutes is the draft duration after a reset.
const DefaultDurationMinutes = 60

// AppointmentsView is the appointments page: the filtered list, the slot
// browser and the creation form. Data flows one way, query → filter →
// fetch, and every mutation refetches the list (and the slot browser when
// it is open). Methods are safe for concurrent use; of two overlapping list
// loads the one issued last wins.
type AppointmentsView struct {
	appts    AppointmentRepository
	patients patients.Repository
	notify   notification.Notifier

	defaultDuration int

	mu       sync.Mutex
	filter   Filter
	items    []Appointment
	dir      patients.Directory
	dirReady bool
	draft    Draft
	formOpen bool

	slotsOpen    bool
	availability *Availability
	availQuery   url.Values

	listIssued, listApplied   uint64
	availIssued, availApplied uint64
}

// NewAppointmentsView builds an empty view. defaultDuration <= 0 means
// DefaultDurationMinutes.
func NewAppointmentsView(appts AppointmentRepository, pats patients.Repository, notify notification.Notifier, defaultDuration int) *AppointmentsView {
	if notify == nil {
		notify = notification.Discard
	}
	if defaultDuration <= 0 {
		defaultDuration = DefaultDurationMinutes
	}
	return &AppointmentsView{
		appts:           appts,
		patients:        pats,
		notify:          notify,
		defaultDuration: defaultDuration,
		items:           []Appointment{},
		dir:             patients.Directory{},
		draft:           Draft{DurationMinutes: defaultDuration},
	}
}

// LoadPatients fetches the patient directory used for labels and for the
// form's patient picker.
func (v *AppointmentsView) LoadPatients(ctx context.Context) error {
	list, err := v.patients.List(ctx)
	if err != nil {
		v.notify.Notify(ctx, notification.FromError(err, "Error cargando pacientes"))
		return err
	}
	v.mu.Lock()
	v.dir = patients.NewDirectory(list)
	v.dirReady = true
	v.mu.Unlock()
	return nil
}

// Mount is the page load: the patient directory (first time only) and the
// query sync run in parallel, and a failure of one does not stop the other.
// The list error wins when both fail.
func (v *AppointmentsView) Mount(ctx context.Context, q url.Values) error {
	v.mu.Lock()
	needPatients := !v.dirReady
	v.mu.Unlock()

	var g errgroup.Group
	var patientsErr, listErr error
	if needPatients {
		g.Go(func() error {
			patientsErr = v.LoadPatients(ctx)
			return nil
		})
	}
	g.Go(func() error {
		listErr = v.SyncQuery(ctx, q)
		return nil
	})
	g.Wait()

	if listErr != nil {
		return listErr
	}
	return patientsErr
}

// SyncQuery replaces the whole filter with the one carried by q, so fields
// missing from q are cleared, and fetches with exactly those values.
func (v *AppointmentsView) SyncQuery(ctx context.Context, q url.Values) error {
	f := FilterFromQuery(q)
	v.mu.Lock()
	v.filter = f
	v.draft.PatientID = f.PatientID
	v.mu.Unlock()
	return v.load(ctx, f.Params())
}

// SetFilter records a user edit of the filter form without fetching.
func (v *AppointmentsView) SetFilter(f Filter) {
	v.mu.Lock()
	v.filter = f
	v.mu.Unlock()
}

// SetRange sets the filter's date bounds, leaving status and patient alone.
func (v *AppointmentsView) SetRange(from, to string) {
	v.mu.Lock()
	v.filter.DateFrom, v.filter.DateTo = from, to
	v.mu.Unlock()
}

// ApplyFilter fetches with the current filter.
func (v *AppointmentsView) ApplyFilter(ctx context.Context) error {
	v.mu.Lock()
	params := v.filter.Params()
	v.mu.Unlock()
	return v.load(ctx, params)
}

func (v *AppointmentsView) load(ctx context.Context, params url.Values) error {
	v.mu.Lock()
	v.listIssued++
	token := v.listIssued
	v.mu.Unlock()

	items, err := v.appts.List(ctx, params)
	if err != nil {
		if v.superseded(token, &v.listApplied) {
			return nil
		}
		v.notify.Notify(ctx, notification.FromError(err, "Error cargando citas"))
		return err
	}
	if items == nil {
		items = []Appointment{}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if token < v.listApplied {
		return nil
	}
	v.listApplied = token
	v.items = items
	return nil
}

// superseded reports whether a later request than token has already been
// applied. A superseded failure stays silent.
func (v *AppointmentsView) superseded(token uint64, applied *uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return token < *applied
}

// CheckAvailability fetches free slots for the filter's date range with
// the draft's duration and opens the slot browser. Both bounds are
// required; without them nothing is sent.
func (v *AppointmentsView) CheckAvailability(ctx context.Context) error {
	v.mu.Lock()
	f, duration := v.filter, v.draft.DurationMinutes
	v.mu.Unlock()

	if !f.HasRange() {
		err := notification.Invalid("Define 'Desde' y 'Hasta'")
		v.notify.Notify(ctx, notification.FromError(err, ""))
		return err
	}

	q := url.Values{}
	q.Set("date_from", f.DateFrom)
	q.Set("date_to", f.DateTo)
	if duration > 0 {
		q.Set("duration_minutes", strconv.Itoa(duration))
	}
	if err := v.fetchAvailability(ctx, q); err != nil {
		v.notify.Notify(ctx, notification.FromError(err, "Error al consultar disponibilidad"))
		return err
	}

	v.mu.Lock()
	v.slotsOpen = true
	v.mu.Unlock()
	return nil
}

func (v *AppointmentsView) fetchAvailability(ctx context.Context, q url.Values) error {
	v.mu.Lock()
	v.availIssued++
	token := v.availIssued
	v.mu.Unlock()

	res, err := v.appts.Availability(ctx, q)
	if err != nil {
		if v.superseded(token, &v.availApplied) {
			return nil
		}
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if token < v.availApplied {
		return nil
	}
	v.availApplied = token
	v.availability = res
	v.availQuery = q
	return nil
}

// refreshAvailability re-fetches the open slot browser with the bounds it
// was opened with.
func (v *AppointmentsView) refreshAvailability(ctx context.Context) {
	v.mu.Lock()
	open, q := v.slotsOpen, v.availQuery
	v.mu.Unlock()

	if !open || q.Get("date_from") == "" || q.Get("date_to") == "" {
		return
	}
	if err := v.fetchAvailability(ctx, q); err != nil {
		v.notify.Notify(ctx, notification.FromError(err, "No se pudo refrescar disponibilidad"))
	}
}

// PickSlot turns a clicked slot into the draft's start time, closes the
// slot browser and opens the creation form. The duration is kept. It
// reports false, changing nothing, when either part is blank.
func (v *AppointmentsView) PickSlot(date, clock string) bool {
	value := naive.ToDateTimeInputValue(date, clock)
	if value == "" {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.draft.StartTime = value
	v.slotsOpen = false
	v.formOpen = true
	return true
}

// SetDraft replaces the creation form's values. A non-positive duration
// keeps the current one.
func (v *AppointmentsView) SetDraft(d Draft) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if d.DurationMinutes <= 0 {
		d.DurationMinutes = v.draft.DurationMinutes
	}
	v.draft = d
}

// SetDuration changes the draft duration; non-positive values are ignored.
func (v *AppointmentsView) SetDuration(minutes int) {
	if minutes <= 0 {
		return
	}
	v.mu.Lock()
	v.draft.DurationMinutes = minutes
	v.mu.Unlock()
}

// OpenForm shows the creation form without touching the draft.
func (v *AppointmentsView) OpenForm() {
	v.mu.Lock()
	v.formOpen = true
	v.mu.Unlock()
}

// CloseForm hides the creation form. The draft is kept.
func (v *AppointmentsView) CloseForm() {
	v.mu.Lock()
	v.formOpen = false
	v.mu.Unlock()
}

// CloseSlots hides the slot browser; mutations stop refreshing it.
func (v *AppointmentsView) CloseSlots() {
	v.mu.Lock()
	v.slotsOpen = false
	v.mu.Unlock()
}

// CreateAppointment books the draft. The start time is sent as the naive
// wall-clock string of what the user picked. On success the form is closed
// and reset, while the list filter is kept.
func (v *AppointmentsView) CreateAppointment(ctx context.Context) (*Appointment, error) {
	v.mu.Lock()
	d := v.draft
	v.mu.Unlock()

	pid, ok := d.patientID()
	if !ok {
		return nil, v.fail(ctx, notification.Invalid("Selecciona un paciente"), "")
	}
	start := naive.ToNaiveLocalString(d.StartTime)
	if start == "" {
		return nil, v.fail(ctx, notification.Invalid("Selecciona fecha y hora"), "")
	}
	duration := d.DurationMinutes
	if duration <= 0 {
		duration = v.defaultDuration
	}

	a, err := v.appts.Create(ctx, CreateRequest{
		PatientID:       pid,
		StartTime:       start,
		DurationMinutes: duration,
		Status:          StatusScheduled,
	})
	if err != nil {
		return nil, v.fail(ctx, err, "Error creando cita")
	}

	v.notify.Notify(ctx, notification.Success("Cita creada"))
	v.mu.Lock()
	v.formOpen = false
	v.draft.StartTime = ""
	v.draft.DurationMinutes = v.defaultDuration
	v.mu.Unlock()

	v.afterMutation(ctx)
	return a, nil
}

// UpdateAppointment applies a partial change (reschedule, notes, status).
func (v *AppointmentsView) UpdateAppointment(ctx context.Context, id int64, p Patch) (*Appointment, error) {
	payload := p.Payload()
	if len(payload) == 0 {
		return nil, v.fail(ctx, notification.Invalid("Nada que actualizar"), "")
	}
	a, err := v.appts.Update(ctx, id, payload)
	if err != nil {
		return nil, v.fail(ctx, err, "Error actualizando cita")
	}
	v.notify.Notify(ctx, notification.Success("Cita actualizada"))
	v.afterMutation(ctx)
	return a, nil
}

// Complete marks the appointment as completed and refetches.
func (v *AppointmentsView) Complete(ctx context.Context, id int64) error {
	if _, err := v.appts.Complete(ctx, id); err != nil {
		return v.fail(ctx, err, "Error")
	}
	v.notify.Notify(ctx, notification.Success("Cita completada"))
	v.afterMutation(ctx)
	return nil
}

// NoShow marks the appointment as a no-show and refetches.
func (v *AppointmentsView) NoShow(ctx context.Context, id int64) error {
	if _, err := v.appts.NoShow(ctx, id); err != nil {
		return v.fail(ctx, err, "Error")
	}
	v.notify.Notify(ctx, notification.Success("Marcada como no-show"))
	v.afterMutation(ctx)
	return nil
}

// Cancel cancels the appointment and refetches.
func (v *AppointmentsView) Cancel(ctx context.Context, id int64) error {
	if err := v.appts.Cancel(ctx, id); err != nil {
		return v.fail(ctx, err, "Error")
	}
	v.notify.Notify(ctx, notification.Success("Cita cancelada"))
	v.afterMutation(ctx)
	return nil
}

// afterMutation refetches the list with the current filter and, if open,
// the slot browser. Their failures are notified but do not undo the
// mutation.
func (v *AppointmentsView) afterMutation(ctx context.Context) {
	_ = v.ApplyFilter(ctx)
	v.refreshAvailability(ctx)
}

func (v *AppointmentsView) fail(ctx context.Context, err error, fallback string) error {
	v.notify.Notify(ctx, notification.FromError(err, fallback))
	return err
}

// -- Snapshot --

// Row is one rendered appointment.
type Row struct {
	Appointment
	PatientLabel string `json:"patient_label"`
	StatusLabel  string `json:"status_label"`
	StatusTone   string `json:"status_tone"`
	When         string `json:"when"`
}

// PatientOption is an entry of the patient pickers.
type PatientOption struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Snapshot is the rendered state of the page.
type Snapshot struct {
	Filter       Filter          `json:"filter"`
	Rows         []Row           `json:"rows"`
	Patients     []PatientOption `json:"patients"`
	Draft        Draft           `json:"draft"`
	FormOpen     bool            `json:"form_open"`
	SlotsOpen    bool            `json:"slots_open"`
	Header       Header          `json:"header"`
	Days         []DayRow        `json:"days"`
	Availability *Availability   `json:"availability,omitempty"`
}

// Snapshot derives the page from the current state.
func (v *AppointmentsView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	rows := make([]Row, 0, len(v.items))
	for _, a := range v.items {
		rows = append(rows, Row{
			Appointment:  a,
			PatientLabel: PatientLabel(a, v.dir),
			StatusLabel:  a.Status.Label(),
			StatusTone:   a.Status.Tone(),
			When:         a.StartTime.Display(),
		})
	}

	opts := make([]PatientOption, 0, len(v.dir))
	for id, p := range v.dir {
		opts = append(opts, PatientOption{ID: id, Name: p.FullName})
	}
	sortOptions(opts)

	return Snapshot{
		Filter:       v.filter,
		Rows:         rows,
		Patients:     opts,
		Draft:        v.draft,
		FormOpen:     v.formOpen,
		SlotsOpen:    v.slotsOpen,
		Header:       HeaderFor(v.availability, v.draft.DurationMinutes),
		Days:         DayGrid(v.availability),
		Availability: v.availability,
	}
}

func sortOptions(opts []PatientOption) {
	sort.Slice(opts, func(i, j int) bool {
		if opts[i].Name != opts[j].Name {
			return opts[i].Name < opts[j].Name
		}
		return opts[i].ID < opts[j].ID
	})
}
