package scheduling

import (
	"context"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/platform/naive"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

// BlockService manages schedule blocks (vacations, meetings).
type BlockService struct {
	repo   BlockRepository
	notify notification.Notifier
}

func NewBlockService(repo BlockRepository, notify notification.Notifier) *BlockService {
	if notify == nil {
		notify = notification.Discard
	}
	return &BlockService{repo: repo, notify: notify}
}

// List returns every block. Failures are notified.
func (s *BlockService) List(ctx context.Context) ([]Block, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		s.notify.Notify(ctx, notification.FromError(err, "Error cargando bloqueos"))
		return []Block{}, err
	}
	if list == nil {
		list = []Block{}
	}
	return list, nil
}

// Payload validates the form and builds the wire body. Both ends are
// required and the end must come after the start.
func (f BlockForm) Payload() (map[string]interface{}, error) {
	start := naive.ToNaiveLocalString(f.StartTime)
	end := naive.ToNaiveLocalString(f.EndTime)
	if start == "" || end == "" {
		return nil, notification.Invalid("Selecciona inicio y fin")
	}
	// both strings share one fixed-width layout, so they order as times
	if end <= start {
		return nil, notification.Invalid("El fin debe ser posterior al inicio")
	}
	var reason interface{}
	if r := strings.TrimSpace(f.Reason); r != "" {
		reason = r
	}
	return map[string]interface{}{
		"start_time": start,
		"end_time":   end,
		"reason":     reason,
	}, nil
}

// Save creates the block when id is 0 and updates it otherwise.
func (s *BlockService) Save(ctx context.Context, id int64, f BlockForm) (*Block, error) {
	payload, err := f.Payload()
	if err != nil {
		return nil, s.fail(ctx, err, "")
	}

	var b *Block
	msg := "Bloqueo creado"
	if id == 0 {
		b, err = s.repo.Create(ctx, payload)
	} else {
		b, err = s.repo.Update(ctx, id, payload)
		msg = "Bloqueo actualizado"
	}
	if err != nil {
		return nil, s.fail(ctx, err, "Error guardando bloqueo")
	}
	s.notify.Notify(ctx, notification.Success(msg))
	return b, nil
}

// Remove deactivates (unblocks) a block.
func (s *BlockService) Remove(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.fail(ctx, err, "Error")
	}
	s.notify.Notify(ctx, notification.Success("Bloqueo desactivado (desbloqueado)"))
	return nil
}

func (s *BlockService) fail(ctx context.Context, err error, fallback string) error {
	s.notify.Notify(ctx, notification.FromError(err, fallback))
	return err
}
