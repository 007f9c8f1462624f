package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/clinicdesk/clinicdesk/internal/platform/apiclient"
)

type repoHTTP struct{ api *apiclient.Client }

func NewRepoHTTP(api *apiclient.Client) Repository {
	return &repoHTTP{api: api}
}

func (r *repoHTTP) Metrics(ctx context.Context, days int) (*Metrics, error) {
	var m Metrics
	q := url.Values{"days": {strconv.Itoa(days)}}
	if err := r.api.Get(ctx, "/dashboard/metrics", q, &m); err != nil {
		return nil, fmt.Errorf("dashboard metrics: %w", err)
	}
	return &m, nil
}

func (r *repoHTTP) Upcoming(ctx context.Context, days, limit int) ([]UpcomingAppointment, error) {
	var out []UpcomingAppointment
	q := url.Values{"days": {strconv.Itoa(days)}, "limit": {strconv.Itoa(limit)}}
	if err := r.api.Get(ctx, "/dashboard/upcoming", q, &out); err != nil {
		return nil, fmt.Errorf("dashboard upcoming: %w", err)
	}
	return out, nil
}

func (r *repoHTTP) AppointmentsByDay(ctx context.Context, dateFrom, dateTo string) ([]AppointmentsByDayPoint, error) {
	var out []AppointmentsByDayPoint
	q := url.Values{"date_from": {dateFrom}, "date_to": {dateTo}}
	if err := r.api.Get(ctx, "/dashboard/appointments-by-day", q, &out); err != nil {
		return nil, fmt.Errorf("dashboard appointments by day: %w", err)
	}
	return out, nil
}
