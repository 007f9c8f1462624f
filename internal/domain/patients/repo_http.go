package patients

import (
	"context"
	"fmt"

	"github.com/clinicdesk/clinicdesk/internal/platform/apiclient"
)

type repoHTTP struct{ api *apiclient.Client }

func NewRepoHTTP(api *apiclient.Client) Repository { return &repoHTTP{api: api} }

func (r *repoHTTP) List(ctx context.Context) ([]Patient, error) {
	var out []Patient
	if err := r.api.Get(ctx, "/patients/", nil, &out); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return out, nil
}

func (r *repoHTTP) Get(ctx context.Context, id int64) (*Patient, error) {
	var p Patient
	if err := r.api.Get(ctx, fmt.Sprintf("/patients/%d", id), nil, &p); err != nil {
		return nil, fmt.Errorf("get patient %d: %w", id, err)
	}
	return &p, nil
}

func (r *repoHTTP) Create(ctx context.Context, payload map[string]interface{}) (*Patient, error) {
	var p Patient
	if err := r.api.Post(ctx, "/patients/", payload, &p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return &p, nil
}

func (r *repoHTTP) Update(ctx context.Context, id int64, payload map[string]interface{}) (*Patient, error) {
	var p Patient
	if err := r.api.Put(ctx, fmt.Sprintf("/patients/%d", id), payload, &p); err != nil {
		return nil, fmt.Errorf("update patient %d: %w", id, err)
	}
	return &p, nil
}

func (r *repoHTTP) Delete(ctx context.Context, id int64) error {
	if err := r.api.Delete(ctx, fmt.Sprintf("/patients/%d", id), nil); err != nil {
		return fmt.Errorf("delete patient %d: %w", id, err)
	}
	return nil
}
