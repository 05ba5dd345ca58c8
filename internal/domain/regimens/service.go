package regimens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"medication-adherence/internal/domain/schedule"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = schedule.ErrRegimenNotFound
	ErrForbidden    = errors.New("forbidden")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

type CreateInput struct {
	MedicationRef  string
	MedicationName string
	Frequency      schedule.Frequency
	CustomSchedule []schedule.CustomTime
	StartDate      time.Time
	EndDate        *time.Time
	Dosage         schedule.Dosage
}

// UpdateInput usa punteros: nil = no tocar.
type UpdateInput struct {
	MedicationName *string
	CustomSchedule *[]schedule.CustomTime
	EndDate        PatchDate
	IsActive       *bool
	Dosage         *schedule.Dosage
}

// PatchDate distingue "no enviado" de "enviado como null".
type PatchDate struct {
	Present bool
	Value   *time.Time
}

func SetEndDate(t *time.Time) PatchDate {
	return PatchDate{Present: true, Value: t}
}

func (s *Service) Create(ctx context.Context, ownerUserID string, in CreateInput) (schedule.Regimen, error) {
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return schedule.Regimen{}, fmt.Errorf("%w: owner required", ErrInvalidInput)
	}

	name := strings.TrimSpace(in.MedicationName)
	ref := strings.TrimSpace(in.MedicationRef)
	if name == "" && ref == "" {
		return schedule.Regimen{}, fmt.Errorf("%w: medication_name or medication_ref required", ErrInvalidInput)
	}
	if !in.Frequency.Valid() {
		return schedule.Regimen{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, in.Frequency)
	}

	custom, err := normalizeCustom(in.Frequency, in.CustomSchedule)
	if err != nil {
		return schedule.Regimen{}, err
	}

	if in.StartDate.IsZero() {
		return schedule.Regimen{}, fmt.Errorf("%w: start_date required", ErrInvalidInput)
	}
	start := schedule.CivilDay(in.StartDate)
	end, err := normalizeEnd(start, in.EndDate)
	if err != nil {
		return schedule.Regimen{}, err
	}
	if in.Dosage.Amount < 0 {
		return schedule.Regimen{}, fmt.Errorf("%w: dosage amount must be >= 0", ErrInvalidInput)
	}

	fixed, _ := schedule.TimesFor(in.Frequency)
	now := s.now().UTC()

	r := schedule.Regimen{
		ID:             uuid.NewString(),
		OwnerUserID:    ownerUserID,
		MedicationRef:  ref,
		MedicationName: name,
		Frequency:      in.Frequency,
		FixedTimes:     fixed,
		CustomSchedule: custom,
		StartDate:      start,
		EndDate:        end,
		IsActive:       true,
		Dosage: schedule.Dosage{
			Amount: in.Dosage.Amount,
			Unit:   strings.TrimSpace(in.Dosage.Unit),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return schedule.Regimen{}, err
	}
	return r, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (schedule.Regimen, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return schedule.Regimen{}, ErrNotFound
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return schedule.Regimen{}, err
	}
	return r, nil
}

// GetOwned es GetByID + chequeo de dueño.
func (s *Service) GetOwned(ctx context.Context, id, ownerUserID string) (schedule.Regimen, error) {
	r, err := s.GetByID(ctx, id)
	if err != nil {
		return schedule.Regimen{}, err
	}
	if r.OwnerUserID != strings.TrimSpace(ownerUserID) {
		return schedule.Regimen{}, ErrForbidden
	}
	return r, nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerUserID string) ([]schedule.Regimen, error) {
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByOwner(ctx, ownerUserID)
}

func (s *Service) ListOwners(ctx context.Context) ([]string, error) {
	return s.repo.ListOwners(ctx)
}

func (s *Service) Update(ctx context.Context, id, ownerUserID string, in UpdateInput) (schedule.Regimen, error) {
	r, err := s.GetOwned(ctx, id, ownerUserID)
	if err != nil {
		return schedule.Regimen{}, err
	}

	if in.MedicationName != nil {
		name := strings.TrimSpace(*in.MedicationName)
		if name == "" && r.MedicationRef == "" {
			return schedule.Regimen{}, fmt.Errorf("%w: medication_name cannot be empty", ErrInvalidInput)
		}
		r.MedicationName = name
	}
	if in.CustomSchedule != nil {
		custom, err := normalizeCustom(r.Frequency, *in.CustomSchedule)
		if err != nil {
			return schedule.Regimen{}, err
		}
		r.CustomSchedule = custom
	}
	if in.EndDate.Present {
		end, err := normalizeEnd(r.StartDate, in.EndDate.Value)
		if err != nil {
			return schedule.Regimen{}, err
		}
		r.EndDate = end
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	if in.Dosage != nil {
		if in.Dosage.Amount < 0 {
			return schedule.Regimen{}, fmt.Errorf("%w: dosage amount must be >= 0", ErrInvalidInput)
		}
		r.Dosage = schedule.Dosage{Amount: in.Dosage.Amount, Unit: strings.TrimSpace(in.Dosage.Unit)}
	}

	r.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, r); err != nil {
		return schedule.Regimen{}, err
	}
	return r, nil
}

// Deactivate es idempotente.
func (s *Service) Deactivate(ctx context.Context, id, ownerUserID string) (schedule.Regimen, error) {
	r, err := s.GetOwned(ctx, id, ownerUserID)
	if err != nil {
		return schedule.Regimen{}, err
	}
	if !r.IsActive {
		return r, nil
	}
	r.IsActive = false
	r.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, r); err != nil {
		return schedule.Regimen{}, err
	}
	return r, nil
}

func normalizeCustom(f schedule.Frequency, in []schedule.CustomTime) ([]schedule.CustomTime, error) {
	if f != schedule.FrequencyCustom {
		if len(in) > 0 {
			return nil, fmt.Errorf("%w: custom_schedule only allowed with frequency=custom", ErrInvalidInput)
		}
		return nil, nil
	}
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: custom_schedule required for frequency=custom", ErrInvalidInput)
	}

	out := make([]schedule.CustomTime, 0, len(in))
	for _, ct := range in {
		tod, err := schedule.ParseTimeOfDay(ct.Time)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		out = append(out, schedule.CustomTime{
			Time:  tod.String(),
			Label: strings.TrimSpace(ct.Label),
		})
	}
	return out, nil
}

func normalizeEnd(start time.Time, end *time.Time) (*time.Time, error) {
	if end == nil {
		return nil, nil
	}
	e := schedule.CivilDay(*end)
	if e.Before(start) {
		return nil, fmt.Errorf("%w: end_date before start_date", ErrInvalidInput)
	}
	return &e, nil
}
