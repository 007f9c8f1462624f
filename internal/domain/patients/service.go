package patients

import (
	"context"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

type Service struct {
	repo   Repository
	notify notification.Notifier
}

func NewService(repo Repository, notify notification.Notifier) *Service {
	if notify == nil {
		notify = notification.Discard
	}
	return &Service{repo: repo, notify: notify}
}

func (s *Service) List(ctx context.Context) ([]Patient, error) {
	list, err := s.repo.List(ctx)
	if list == nil {
		list = []Patient{}
	}
	return list, err
}

func (s *Service) Get(ctx context.Context, id int64) (*Patient, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and registers a new patient: a name is required, and
// either an age or a birth date.
func (s *Service) Create(ctx context.Context, f Form) (*Patient, error) {
	if strings.TrimSpace(f.FullName) == "" {
		return nil, s.fail(ctx, notification.Invalid("El nombre es obligatorio."), "")
	}
	if _, ok := f.age(); !ok && strings.TrimSpace(f.BirthDate) == "" {
		return nil, s.fail(ctx, notification.Invalid("Debes capturar Edad o Fecha de nacimiento."), "")
	}
	p, err := s.repo.Create(ctx, f.Payload())
	if err != nil {
		return nil, s.fail(ctx, err, "Error creando paciente")
	}
	s.notify.Notify(ctx, notification.Success("Paciente creado"))
	return p, nil
}

// Update saves the identification sheet.
func (s *Service) Update(ctx context.Context, id int64, f Form) (*Patient, error) {
	p, err := s.repo.Update(ctx, id, f.Payload())
	if err != nil {
		return nil, s.fail(ctx, err, "Error guardando ficha")
	}
	s.notify.Notify(ctx, notification.Success("Ficha guardada correctamente"))
	return p, nil
}

// Remove deactivates the patient.
func (s *Service) Remove(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.fail(ctx, err, "Error eliminando")
	}
	s.notify.Notify(ctx, notification.Success("Paciente eliminado"))
	return nil
}

func (s *Service) fail(ctx context.Context, err error, fallback string) error {
	s.notify.Notify(ctx, notification.FromError(err, fallback))
	return err
}
