package jobs

import (
	"context"
	"errors"
	"fmt"

	"medication-adherence/internal/domain/doselogs"
	"medication-adherence/internal/domain/schedule"
	"medication-adherence/internal/platform/logger"
)

// Ayer y hoy: un slot de ayer a las 23:00 recién cruza la ventana hoy.
const sweepDays = 2

type OwnerSource interface {
	ListOwners(ctx context.Context) ([]string, error)
}

type MissedFinder interface {
	Missed(ctx context.Context, ownerUserID string, days int) ([]schedule.DoseSlot, error)
}

type DoseLogger interface {
	Log(ctx context.Context, ownerUserID string, in doselogs.LogInput) (doselogs.LogResult, error)
}

// Sweeper persiste como missed los slots pendientes que ya no se pueden registrar como taken.
type Sweeper struct {
	owners OwnerSource
	agenda MissedFinder
	doses  DoseLogger
	log    logger.Logger
}

func NewSweeper(owners OwnerSource, agenda MissedFinder, doses DoseLogger, lg logger.Logger) *Sweeper {
	if lg == nil {
		lg = logger.Nop()
	}
	return &Sweeper{owners: owners, agenda: agenda, doses: doses, log: lg}
}

type SweepReport struct {
	Owners int
	Marked int
	Failed int
}

// Run recorre todos los dueños con regímenes activos. El fallo de un dueño no corta
// el barrido; los errores se devuelven juntos al final.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	owners, err := s.owners.ListOwners(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list owners: %w", err)
	}

	var rep SweepReport
	var errs []error
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Owners++

		marked, err := s.sweepOwner(ctx, owner)
		rep.Marked += marked
		if err != nil {
			rep.Failed++
			errs = append(errs, fmt.Errorf("owner %s: %w", owner, err))
			s.log.Error("sweep owner failed", map[string]any{"owner_user_id": owner, "err": err})
		}
	}
	return rep, errors.Join(errs...)
}

func (s *Sweeper) sweepOwner(ctx context.Context, owner string) (int, error) {
	slots, err := s.agenda.Missed(ctx, owner, sweepDays)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, slot := range slots {
		// Los que ya tienen log no se tocan.
		if !slot.Virtual() {
			continue
		}
		_, err := s.doses.Log(ctx, owner, doselogs.LogInput{
			RegimenID:     slot.RegimenID,
			ScheduledTime: slot.ScheduledTime,
			Status:        schedule.DoseStatusMissed,
			Source:        schedule.LogSourceSweeper,
		})
		switch {
		case err == nil:
			marked++
		case errors.Is(err, doselogs.ErrAlreadyLogged):
			// El usuario lo registró entre la lectura y la escritura.
		default:
			return marked, err
		}
	}
	return marked, nil
}
