package dashboard

import "context"

type Repository interface {
	Metrics(ctx context.Context, days int) (*Metrics, error)
	Upcoming(ctx context.Context, days, limit int) ([]UpcomingAppointment, error)
	AppointmentsByDay(ctx context.Context, dateFrom, dateTo string) ([]AppointmentsByDayPoint, error)
}
