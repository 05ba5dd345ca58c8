package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"medication-adherence/internal/domain/doselogs"
	"medication-adherence/internal/domain/schedule"
)

type doseLogRepo struct {
	mu   sync.RWMutex
	byID map[string]schedule.DoseLog
}

func NewDoseLogRepo() doselogs.Repository {
	return &doseLogRepo{
		byID: make(map[string]schedule.DoseLog),
	}
}

func (r *doseLogRepo) Create(ctx context.Context, l schedule.DoseLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l.ID == "" {
		return errors.New("dose log id required")
	}
	if _, exists := r.byID[l.ID]; exists {
		return errors.New("dose log already exists")
	}
	// Igual que el índice único (regimen_id, scheduled_time) de postgres.
	for _, other := range r.byID {
		if other.RegimenID == l.RegimenID && other.ScheduledTime.Equal(l.ScheduledTime) {
			return fmt.Errorf("%w: %s at %s", doselogs.ErrAlreadyLogged, other.ID, other.ScheduledTime.Format(time.RFC3339))
		}
	}
	r.byID[l.ID] = cloneLog(l)
	return nil
}

func (r *doseLogRepo) GetByID(ctx context.Context, id string) (schedule.DoseLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.byID[id]
	if !ok {
		return schedule.DoseLog{}, ErrNotFound
	}
	return cloneLog(l), nil
}

func (r *doseLogRepo) List(ctx context.Context, ownerUserID string, filter doselogs.ListFilter) ([]schedule.DoseLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schedule.DoseLog, 0)
	for _, l := range r.byID {
		if l.OwnerUserID != ownerUserID {
			continue
		}
		if filter.RegimenID != "" && l.RegimenID != filter.RegimenID {
			continue
		}

		// Rango inclusivo sobre scheduled_time
		if filter.From != nil && l.ScheduledTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && l.ScheduledTime.After(*filter.To) {
			continue
		}

		out = append(out, cloneLog(l))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func cloneLog(l schedule.DoseLog) schedule.DoseLog {
	l.SideEffects = append([]string(nil), l.SideEffects...)
	if l.ActualTime != nil {
		at := *l.ActualTime
		l.ActualTime = &at
	}
	return l
}
