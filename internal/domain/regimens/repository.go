package regimens

import (
	"context"

	"medication-adherence/internal/domain/schedule"
)

// GetByID y Update devuelven ErrNotFound si el id no existe; cualquier otro error es del store.
type Repository interface {
	Create(ctx context.Context, r schedule.Regimen) error
	Update(ctx context.Context, r schedule.Regimen) error
	GetByID(ctx context.Context, id string) (schedule.Regimen, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]schedule.Regimen, error)

	// ListOwners devuelve los usuarios con al menos un régimen activo (para el sweeper).
	ListOwners(ctx context.Context) ([]string, error)
}
