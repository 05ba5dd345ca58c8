package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"medication-adherence/internal/domain/regimens"
	"medication-adherence/internal/domain/schedule"
)

var (
	ErrNotFound = errors.New("not found")
)

type regimenRepo struct {
	mu   sync.RWMutex
	byID map[string]schedule.Regimen
}

func NewRegimenRepo() regimens.Repository {
	return &regimenRepo{
		byID: make(map[string]schedule.Regimen),
	}
}

func (r *regimenRepo) Create(ctx context.Context, reg schedule.Regimen) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(reg.ID) == "" {
		return errors.New("regimen id required")
	}
	if _, exists := r.byID[reg.ID]; exists {
		return errors.New("regimen already exists")
	}
	r.byID[reg.ID] = cloneRegimen(reg)
	return nil
}

func (r *regimenRepo) Update(ctx context.Context, reg schedule.Regimen) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[reg.ID]; !exists {
		return regimens.ErrNotFound
	}
	r.byID[reg.ID] = cloneRegimen(reg)
	return nil
}

func (r *regimenRepo) GetByID(ctx context.Context, id string) (schedule.Regimen, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.byID[id]
	if !ok {
		return schedule.Regimen{}, regimens.ErrNotFound
	}
	return cloneRegimen(reg), nil
}

func (r *regimenRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]schedule.Regimen, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schedule.Regimen, 0)
	for _, reg := range r.byID {
		if reg.OwnerUserID == ownerUserID {
			out = append(out, cloneRegimen(reg))
		}
	}

	// created_at asc, id en empate: el motor respeta el orden de entrada
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *regimenRepo) ListOwners(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, reg := range r.byID {
		if reg.IsActive {
			seen[reg.OwnerUserID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for owner := range seen {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out, nil
}

// Los slices no se comparten con el caller.
func cloneRegimen(reg schedule.Regimen) schedule.Regimen {
	reg.FixedTimes = append([]string(nil), reg.FixedTimes...)
	reg.CustomSchedule = append([]schedule.CustomTime(nil), reg.CustomSchedule...)
	if reg.EndDate != nil {
		end := *reg.EndDate
		reg.EndDate = &end
	}
	return reg
}
