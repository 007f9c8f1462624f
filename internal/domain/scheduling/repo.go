package scheduling

import (
	"context"
	"net/url"
)

type AppointmentRepository interface {
	List(ctx context.Context, params url.Values) ([]Appointment, error)
	Create(ctx context.Context, req CreateRequest) (*Appointment, error)
	Update(ctx context.Context, id int64, payload map[string]interface{}) (*Appointment, error)
	Complete(ctx context.Context, id int64) (*Appointment, error)
	NoShow(ctx context.Context, id int64) (*Appointment, error)
	// Cancel deactivates the appointment.
	Cancel(ctx context.Context, id int64) error
	Availability(ctx context.Context, params url.Values) (*Availability, error)
}

type BlockRepository interface {
	List(ctx context.Context) ([]Block, error)
	Create(ctx context.Context, payload map[string]interface{}) (*Block, error)
	Update(ctx context.Context, id int64, payload map[string]interface{}) (*Block, error)
	Delete(ctx context.Context, id int64) error
}
