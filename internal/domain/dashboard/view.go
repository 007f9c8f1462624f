package dashboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/naive"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

// Page sections, as keys of Page.Errors.
const (
	SectionMetrics  = "metrics"
	SectionUpcoming = "upcoming"
	SectionByDay    = "by_day"
)

// upcomingShown is how many upcoming appointments the page lists.
const upcomingShown = 8

type UpcomingRow struct {
	UpcomingAppointment
	Patient     string `json:"patient"`
	When        string `json:"when"`
	StatusLabel string `json:"status_label"`
	StatusTone  string `json:"status_tone"`
}

// Page is the rendered dashboard. A failed section is empty and has its
// message in Errors; the other sections still render.
type Page struct {
	Days        int                      `json:"days"`
	DateFrom    string                   `json:"date_from"`
	DateTo      string                   `json:"date_to"`
	Metrics     *Metrics                 `json:"metrics"`
	Cards       []Card                   `json:"cards"`
	Utilization string                   `json:"utilization"`
	Upcoming    []UpcomingRow            `json:"upcoming"`
	ByDay       []AppointmentsByDayPoint `json:"by_day"`
	Errors      map[string]string        `json:"errors,omitempty"`
}

type DashboardView struct {
	repo   Repository
	notify notification.Notifier
	limit  int
	now    func() time.Time
}

// NewDashboardView fetches at most limit upcoming appointments (20 when
// limit <= 0).
func NewDashboardView(repo Repository, notify notification.Notifier, limit int) *DashboardView {
	if notify == nil {
		notify = notification.Discard
	}
	if limit <= 0 {
		limit = 20
	}
	return &DashboardView{repo: repo, notify: notify, limit: limit, now: time.Now}
}

// ValidateDays rejects ranges the clinic API would refuse.
func ValidateDays(days int) error {
	if days < 1 || days > MaxDays {
		return notification.Invalid(fmt.Sprintf("days debe estar entre 1 y %d", MaxDays))
	}
	return nil
}

// Load fetches the three sections in parallel. It fails only on an
// invalid range; section failures are reported in the page.
func (v *DashboardView) Load(ctx context.Context, days int) (*Page, error) {
	if err := ValidateDays(days); err != nil {
		v.notify.Notify(ctx, notification.FromError(err, ""))
		return nil, err
	}
	now := v.now()
	from, to := naive.Range(days, now)

	var (
		g                           errgroup.Group
		metrics                     *Metrics
		upcoming                    []UpcomingAppointment
		byDay                       []AppointmentsByDayPoint
		metricsErr, upErr, byDayErr error
	)
	g.Go(func() error {
		metrics, metricsErr = v.repo.Metrics(ctx, days)
		return nil
	})
	g.Go(func() error {
		upcoming, upErr = v.repo.Upcoming(ctx, days, v.limit)
		return nil
	})
	g.Go(func() error {
		byDay, byDayErr = v.repo.AppointmentsByDay(ctx, from, to)
		return nil
	})
	g.Wait()

	p := &Page{
		Days:     days,
		DateFrom: from,
		DateTo:   to,
		Upcoming: []UpcomingRow{},
		ByDay:    []AppointmentsByDayPoint{},
		Errors:   map[string]string{},
	}

	if metricsErr != nil {
		p.Errors[SectionMetrics] = notification.Message(metricsErr, "No se pudo cargar métricas")
		v.notify.Notify(ctx, notification.FromError(metricsErr, "No se pudo cargar métricas"))
	} else {
		p.Metrics = metrics
	}
	p.Cards = Cards(p.Metrics, days, now)
	p.Utilization = Utilization(p.Metrics)

	if upErr != nil {
		p.Errors[SectionUpcoming] = notification.Message(upErr, "No se pudieron cargar las próximas citas")
	} else {
		for i, u := range upcoming {
			if i == upcomingShown {
				break
			}
			when := u.StartTime.Display()
			if when == "" {
				when = "-"
			}
			status := u.Status
			if status == "" {
				status = scheduling.StatusScheduled
			}
			p.Upcoming = append(p.Upcoming, UpcomingRow{
				UpcomingAppointment: u,
				Patient:             u.PatientLabel(),
				When:                when,
				StatusLabel:         status.Label(),
				StatusTone:          status.Tone(),
			})
		}
	}

	if byDayErr != nil {
		p.Errors[SectionByDay] = notification.Message(byDayErr, "No se pudieron cargar las citas por día")
	} else if byDay != nil {
		p.ByDay = byDay
	}

	if len(p.Errors) == 0 {
		p.Errors = nil
	}
	return p, nil
}
