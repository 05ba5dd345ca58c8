package rewards

import (
	"context"
	"time"
)

// DoseEvent es lo que el servicio de puntos necesita saber de una toma.
// El cálculo de puntos y logros vive del otro lado.
type DoseEvent struct {
	UserID      string
	RegimenID   string
	DoseLogID   string
	Scheduled   time.Time
	Actual      time.Time
	MinutesLate int
	OnTime      bool
}

type Notifier interface {
	DoseLogged(ctx context.Context, ev DoseEvent) error
}

// Nop descarta los eventos. Se usa cuando no hay servicio de puntos configurado.
type Nop struct{}

func (Nop) DoseLogged(context.Context, DoseEvent) error { return nil }
