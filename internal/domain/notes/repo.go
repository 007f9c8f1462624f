package notes

import "context"

type Repository interface {
	List(ctx context.Context) ([]Note, error)
	ByPatient(ctx context.Context, patientID int64) ([]Note, error)
	Create(ctx context.Context, payload map[string]interface{}) (*Note, error)
	Update(ctx context.Context, id int64, payload map[string]interface{}) (*Note, error)
	Delete(ctx context.Context, id int64) error
}
