package doselogs

import (
	"context"
	"time"

	"medication-adherence/internal/domain/schedule"
)

// ListFilter filtra por ScheduledTime. From y To son inclusivos; nil = sin límite.
type ListFilter struct {
	RegimenID string
	From      *time.Time
	To        *time.Time
	Limit     int // 0 = sin límite (solo para uso interno)
}

// Repository es append-only: los logs no se editan.
type Repository interface {
	Create(ctx context.Context, l schedule.DoseLog) error
	GetByID(ctx context.Context, id string) (schedule.DoseLog, error)
	// List devuelve los logs del dueño ordenados por ScheduledTime asc (y RecordedAt en empate).
	List(ctx context.Context, ownerUserID string, f ListFilter) ([]schedule.DoseLog, error)
}
