package memory

import (
	"context"
	"errors"
	"sync"

	"medication-adherence/internal/domain/caregivers"
)

type caregiverRepo struct {
	mu   sync.RWMutex
	byID map[string]caregivers.Link
}

func NewCaregiverRepo() caregivers.Repository {
	return &caregiverRepo{
		byID: make(map[string]caregivers.Link),
	}
}

func (r *caregiverRepo) Create(ctx context.Context, l caregivers.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l.ID == "" {
		return errors.New("link id required")
	}
	if _, exists := r.byID[l.ID]; exists {
		return errors.New("link already exists")
	}
	r.byID[l.ID] = l
	return nil
}

func (r *caregiverRepo) Update(ctx context.Context, l caregivers.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[l.ID]; !exists {
		return ErrNotFound
	}
	r.byID[l.ID] = l
	return nil
}

func (r *caregiverRepo) GetByID(ctx context.Context, id string) (caregivers.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.byID[id]
	if !ok {
		return caregivers.Link{}, ErrNotFound
	}
	return l, nil
}

func (r *caregiverRepo) ListByPatient(ctx context.Context, patientUserID string) ([]caregivers.Link, error) {
	return r.filter(func(l caregivers.Link) bool { return l.PatientUserID == patientUserID }), nil
}

func (r *caregiverRepo) ListByCaregiver(ctx context.Context, caregiverUserID string) ([]caregivers.Link, error) {
	return r.filter(func(l caregivers.Link) bool { return l.CaregiverUserID == caregiverUserID }), nil
}

// Si por data sucia hubiera más de un vínculo activo para el par,
// gana el más reciente por UpdatedAt (y en empate, por CreatedAt).
func (r *caregiverRepo) GetActiveLink(ctx context.Context, patientUserID, caregiverUserID string) (caregivers.Link, error) {
	var winner caregivers.Link
	has := false

	for _, l := range r.filter(func(l caregivers.Link) bool {
		return l.PatientUserID == patientUserID &&
			l.CaregiverUserID == caregiverUserID &&
			l.Status == caregivers.StatusActive
	}) {
		switch {
		case !has:
			winner, has = l, true
		case l.UpdatedAt.After(winner.UpdatedAt):
			winner = l
		case l.UpdatedAt.Equal(winner.UpdatedAt) && l.CreatedAt.After(winner.CreatedAt):
			winner = l
		}
	}

	if !has {
		return caregivers.Link{}, ErrNotFound
	}
	return winner, nil
}

func (r *caregiverRepo) filter(keep func(caregivers.Link) bool) []caregivers.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]caregivers.Link, 0)
	for _, l := range r.byID {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}
