package scheduling

import (
	"context"
	"fmt"
	"net/url"

	"github.com/clinicdesk/clinicdesk/internal/platform/apiclient"
)

// =========== Appointment Repository ===========

type appointmentRepoHTTP struct{ api *apiclient.Client }

func NewAppointmentRepoHTTP(api *apiclient.Client) AppointmentRepository {
	return &appointmentRepoHTTP{api: api}
}

func (r *appointmentRepoHTTP) List(ctx context.Context, params url.Values) ([]Appointment, error) {
	var out []Appointment
	if err := r.api.Get(ctx, "/appointments/", params, &out); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

func (r *appointmentRepoHTTP) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	var a Appointment
	if err := r.api.Post(ctx, "/appointments/", req, &a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return &a, nil
}

func (r *appointmentRepoHTTP) Update(ctx context.Context, id int64, payload map[string]interface{}) (*Appointment, error) {
	var a Appointment
	if err := r.api.Put(ctx, fmt.Sprintf("/appointments/%d", id), payload, &a); err != nil {
		return nil, fmt.Errorf("update appointment %d: %w", id, err)
	}
	return &a, nil
}

func (r *appointmentRepoHTTP) Complete(ctx context.Context, id int64) (*Appointment, error) {
	var a Appointment
	if err := r.api.Put(ctx, fmt.Sprintf("/appointments/%d/complete", id), nil, &a); err != nil {
		return nil, fmt.Errorf("complete appointment %d: %w", id, err)
	}
	return &a, nil
}

func (r *appointmentRepoHTTP) NoShow(ctx context.Context, id int64) (*Appointment, error) {
	var a Appointment
	if err := r.api.Put(ctx, fmt.Sprintf("/appointments/%d/no-show", id), nil, &a); err != nil {
		return nil, fmt.Errorf("mark no-show %d: %w", id, err)
	}
	return &a, nil
}

func (r *appointmentRepoHTTP) Cancel(ctx context.Context, id int64) error {
	if err := r.api.Delete(ctx, fmt.Sprintf("/appointments/%d", id), nil); err != nil {
		return fmt.Errorf("cancel appointment %d: %w", id, err)
	}
	return nil
}

func (r *appointmentRepoHTTP) Availability(ctx context.Context, params url.Values) (*Availability, error) {
	var a Availability
	if err := r.api.Get(ctx, "/appointments/availability", params, &a); err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	return &a, nil
}

// =========== Block Repository ===========

type blockRepoHTTP struct{ api *apiclient.Client }

func NewBlockRepoHTTP(api *apiclient.Client) BlockRepository {
	return &blockRepoHTTP{api: api}
}

func (r *blockRepoHTTP) List(ctx context.Context) ([]Block, error) {
	var out []Block
	if err := r.api.Get(ctx, "/appointments/blocks/", nil, &out); err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return out, nil
}

func (r *blockRepoHTTP) Create(ctx context.Context, payload map[string]interface{}) (*Block, error) {
	var b Block
	if err := r.api.Post(ctx, "/appointments/blocks/", payload, &b); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	return &b, nil
}

func (r *blockRepoHTTP) Update(ctx context.Context, id int64, payload map[string]interface{}) (*Block, error) {
	var b Block
	if err := r.api.Put(ctx, fmt.Sprintf("/appointments/blocks/%d", id), payload, &b); err != nil {
		return nil, fmt.Errorf("update block %d: %w", id, err)
	}
	return &b, nil
}

func (r *blockRepoHTTP) Delete(ctx context.Context, id int64) error {
	if err := r.api.Delete(ctx, fmt.Sprintf("/appointments/blocks/%d", id), nil); err != nil {
		return fmt.Errorf("delete block %d: %w", id, err)
	}
	return nil
}
