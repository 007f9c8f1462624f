package notes

import (
	"context"
	"fmt"

	"github.com/clinicdesk/clinicdesk/internal/platform/apiclient"
)

type repoHTTP struct{ api *apiclient.Client }

func NewRepoHTTP(api *apiclient.Client) Repository {
	return &repoHTTP{api: api}
}

func (r *repoHTTP) List(ctx context.Context) ([]Note, error) {
	var out []Note
	if err := r.api.Get(ctx, "/notes/", nil, &out); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return out, nil
}

func (r *repoHTTP) ByPatient(ctx context.Context, patientID int64) ([]Note, error) {
	var out []Note
	if err := r.api.Get(ctx, fmt.Sprintf("/notes/by-patient/%d", patientID), nil, &out); err != nil {
		return nil, fmt.Errorf("notes of patient %d: %w", patientID, err)
	}
	return out, nil
}

func (r *repoHTTP) Create(ctx context.Context, payload map[string]interface{}) (*Note, error) {
	var n Note
	if err := r.api.Post(ctx, "/notes/", payload, &n); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	return &n, nil
}

func (r *repoHTTP) Update(ctx context.Context, id int64, payload map[string]interface{}) (*Note, error) {
	var n Note
	if err := r.api.Put(ctx, fmt.Sprintf("/notes/%d", id), payload, &n); err != nil {
		return nil, fmt.Errorf("update note %d: %w", id, err)
	}
	return &n, nil
}

func (r *repoHTTP) Delete(ctx context.Context, id int64) error {
	if err := r.api.Delete(ctx, fmt.Sprintf("/notes/%d", id), nil); err != nil {
		return fmt.Errorf("delete note %d: %w", id, err)
	}
	return nil
}
