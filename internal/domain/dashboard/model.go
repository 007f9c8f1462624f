package dashboard

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/naive"
)

// Range presets offered by the page.
var RangeOptions = []int{7, 14, 30}

// MaxDays is the widest range the clinic API accepts.
const MaxDays = 90

type Metrics struct {
	TotalPatientsActive          int     `json:"total_patients_active"`
	NewPatientsInRange           int     `json:"new_patients_in_range"`
	TotalAppointmentsInRange     int     `json:"total_appointments_in_range"`
	ScheduledAppointmentsInRange int     `json:"scheduled_appointments_in_range"`
	CancelledAppointmentsInRange int     `json:"cancelled_appointments_in_range"`
	TotalNotesInRange            int     `json:"total_notes_in_range"`
	BookedMinutesInRange         int     `json:"booked_minutes_in_range"`
	AvailableMinutesInRange      int     `json:"available_minutes_in_range"`
	UtilizationPercent           float64 `json:"utilization_percent"`
}

// Utilization renders the utilization percentage, "-" without metrics.
func Utilization(m *Metrics) string {
	if m == nil {
		return "-"
	}
	return strconv.FormatFloat(m.UtilizationPercent, 'f', -1, 64) + "%"
}

type UpcomingAppointment struct {
	ID              int64             `json:"id"`
	PatientID       int64             `json:"patient_id"`
	PatientName     string            `json:"patient_name,omitempty"`
	StartTime       naive.Time        `json:"start_time"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          scheduling.Status `json:"status"`
	Notes           string            `json:"notes,omitempty"`
}

// PatientLabel is the patient name, else "Paciente #<id>", else "Paciente".
func (u UpcomingAppointment) PatientLabel() string {
	switch {
	case u.PatientName != "":
		return u.PatientName
	case u.PatientID > 0:
		return fmt.Sprintf("Paciente #%d", u.PatientID)
	}
	return "Paciente"
}

type AppointmentsByDayPoint struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Scheduled int    `json:"scheduled"`
	Cancelled int    `json:"cancelled"`
}

// DeepLink is the appointments page filtered to the dashboard range and,
// when given, a status. Its query is the one the appointments page syncs
// from.
func DeepLink(status string, days int, now time.Time) string {
	from, to := naive.Range(days, now)
	q := url.Values{}
	q.Set("date_from", from)
	q.Set("date_to", to)
	if status != "" {
		q.Set("status", string(scheduling.NormalizeStatus(status)))
	}
	return "/appointments?" + q.Encode()
}

// Card is one metric tile. Link is empty for tiles that lead nowhere.
type Card struct {
	Title string `json:"title"`
	Value int    `json:"value"`
	Link  string `json:"link,omitempty"`
}

// Cards lays out the six metric tiles.
func Cards(m *Metrics, days int, now time.Time) []Card {
	if m == nil {
		return []Card{}
	}
	all := DeepLink("", days, now)
	return []Card{
		{Title: "Pacientes activos", Value: m.TotalPatientsActive, Link: all},
		{Title: "Nuevos en rango", Value: m.NewPatientsInRange},
		{Title: "Notas en rango", Value: m.TotalNotesInRange},
		{Title: "Citas (rango)", Value: m.TotalAppointmentsInRange, Link: all},
		{Title: "Agendadas", Value: m.ScheduledAppointmentsInRange, Link: DeepLink("scheduled", days, now)},
		{Title: "Canceladas", Value: m.CancelledAppointmentsInRange, Link: DeepLink("cancelled", days, now)},
	}
}
