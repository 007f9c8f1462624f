package patients

import "context"

type Repository interface {
	List(ctx context.Context) ([]Patient, error)
	Get(ctx context.Context, id int64) (*Patient, error)
	Create(ctx context.Context, payload map[string]interface{}) (*Patient, error)
	Update(ctx context.Context, id int64, payload map[string]interface{}) (*Patient, error)
	Delete(ctx context.Context, id int64) error
}
