package doselogs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"medication-adherence/internal/domain/schedule"
	"medication-adherence/internal/platform/logger"
	"medication-adherence/internal/platform/metrics"
	"medication-adherence/internal/ports/rewards"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("dose log not found")
	ErrForbidden       = errors.New("forbidden")
	ErrRegimenNotFound = schedule.ErrRegimenNotFound
	// Ya hay un log para el mismo slot del régimen.
	ErrAlreadyLogged = errors.New("dose already logged")
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500

	maxClockSkew = time.Minute
)

// RegimenLookup evita importar el paquete regimens.
type RegimenLookup interface {
	GetByID(ctx context.Context, id string) (schedule.Regimen, error)
}

type Options struct {
	Policy schedule.LatePolicy
	// Define los slots (tolerancia y zona) para detectar duplicados. Nil = opciones por defecto.
	Reconciler *schedule.Reconciler
	Rewards    rewards.Notifier
	Logger     logger.Logger
	Metrics    *metrics.Metrics
	// Nil = time.Now.
	Now func() time.Time
}

type Service struct {
	repo     Repository
	regimens RegimenLookup

	policy  schedule.LatePolicy
	rc      *schedule.Reconciler
	rewards rewards.Notifier
	log     logger.Logger
	metrics *metrics.Metrics

	now func() time.Time
}

func NewService(repo Repository, regimens RegimenLookup, opts Options) *Service {
	s := &Service{
		repo:     repo,
		regimens: regimens,
		policy:   opts.Policy,
		rc:       opts.Reconciler,
		rewards:  opts.Rewards,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      time.Now,
	}
	if s.rc == nil {
		s.rc = schedule.NewReconciler(schedule.DefaultOptions())
	}
	if s.rewards == nil {
		s.rewards = rewards.Nop{}
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if opts.Now != nil {
		s.now = opts.Now
	}
	return s
}

type LogInput struct {
	RegimenID     string
	ScheduledTime time.Time
	Status        schedule.DoseStatus
	ActualTime    *time.Time // solo taken; nil = ahora

	Mood          string
	SideEffects   []string
	Effectiveness int
	Notes         string

	// Vacío = manual.
	Source schedule.LogSource
}

type LogResult struct {
	Log schedule.DoseLog
	// Solo tiene Decision para intentos de taken.
	Verdict schedule.LateVerdict
}

// Forced indica que se pidió taken pero se guardó missed.
func (r LogResult) Forced() bool {
	return r.Verdict.Rejected()
}

// Log persiste una toma del régimen de ownerUserID.
// Un taken pasa por el gate de registro tardío, medido desde la hora programada
// hasta el momento del registro: warn_late lo marca y force_missed lo guarda como missed.
func (s *Service) Log(ctx context.Context, ownerUserID string, in LogInput) (LogResult, error) {
	ownerUserID = strings.TrimSpace(ownerUserID)
	in.RegimenID = strings.TrimSpace(in.RegimenID)

	if ownerUserID == "" || in.RegimenID == "" {
		return LogResult{}, fmt.Errorf("%w: regimen_id required", ErrInvalidInput)
	}
	if in.ScheduledTime.IsZero() {
		return LogResult{}, fmt.Errorf("%w: scheduled_time required", ErrInvalidInput)
	}
	if !in.Status.Valid() {
		return LogResult{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, in.Status)
	}
	if in.Effectiveness < 0 || in.Effectiveness > 5 {
		return LogResult{}, fmt.Errorf("%w: effectiveness must be 1..5", ErrInvalidInput)
	}

	reg, err := s.regimens.GetByID(ctx, in.RegimenID)
	if err != nil {
		if errors.Is(err, ErrRegimenNotFound) {
			return LogResult{}, ErrRegimenNotFound
		}
		return LogResult{}, fmt.Errorf("get regimen: %w", err)
	}
	if reg.OwnerUserID != ownerUserID {
		return LogResult{}, ErrForbidden
	}

	now := s.now()
	scheduled := in.ScheduledTime.Truncate(time.Minute)

	if err := s.ensureNotLogged(ctx, reg, scheduled); err != nil {
		return LogResult{}, err
	}

	l := schedule.DoseLog{
		ID:            uuid.NewString(),
		OwnerUserID:   ownerUserID,
		RegimenID:     in.RegimenID,
		ScheduledTime: scheduled,
		Status:        in.Status,
		Mood:          strings.TrimSpace(in.Mood),
		SideEffects:   cleanList(in.SideEffects),
		Effectiveness: in.Effectiveness,
		Notes:         strings.TrimSpace(in.Notes),
		Source:        in.Source,
		RecordedAt:    now,
	}
	if l.Source == "" {
		l.Source = schedule.LogSourceManual
	}

	var verdict schedule.LateVerdict
	if in.Status == schedule.DoseStatusTaken {
		actual := now
		if in.ActualTime != nil {
			actual = *in.ActualTime
		}
		if actual.After(now.Add(maxClockSkew)) {
			return LogResult{}, fmt.Errorf("%w: actual_time is in the future", ErrInvalidInput)
		}

		verdict = s.policy.Evaluate(minutesBetween(scheduled, now))
		if verdict.Rejected() {
			l.Status = schedule.DoseStatusMissed
		} else {
			l.ActualTime = &actual
		}
	}

	if err := s.repo.Create(ctx, l); err != nil {
		return LogResult{}, err
	}

	s.metrics.RecordDoseLog(l.Status, verdict.Decision)
	fields := map[string]any{
		"dose_log_id": l.ID,
		"regimen_id":  l.RegimenID,
		"status":      string(l.Status),
		"source":      string(l.Source),
	}
	if verdict.Decision != "" {
		fields["decision"] = string(verdict.Decision)
		fields["minutes_late"] = verdict.MinutesLate
	}
	s.log.Info("dose logged", fields)

	if l.Status == schedule.DoseStatusTaken {
		s.notify(ctx, l, verdict)
	}

	return LogResult{Log: l, Verdict: verdict}, nil
}

// GetByID no chequea dueño; el handler decide quién puede verlo.
func (s *Service) GetByID(ctx context.Context, id string) (schedule.DoseLog, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return schedule.DoseLog{}, ErrNotFound
	}
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return schedule.DoseLog{}, ErrNotFound
	}
	return l, nil
}

func (s *Service) List(ctx context.Context, ownerUserID string, f ListFilter) ([]schedule.DoseLog, error) {
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return nil, ErrInvalidInput
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, fmt.Errorf("%w: from after to", ErrInvalidInput)
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	f.RegimenID = strings.TrimSpace(f.RegimenID)
	return s.repo.List(ctx, ownerUserID, f)
}

// ensureNotLogged rechaza un segundo log para el mismo slot del régimen: el que
// el reconciliador le asignaría a scheduled. Dos horarios cercanos (08:00 y 08:20)
// son slots distintos. Un log fuera de horario choca con otro fuera de horario
// dentro de la tolerancia.
func (s *Service) ensureNotLogged(ctx context.Context, reg schedule.Regimen, scheduled time.Time) error {
	tol := s.rc.Options().MatchTolerance
	slot, onSchedule := s.rc.SlotFor(reg, scheduled)
	center := scheduled
	if onSchedule {
		center = slot
	}
	from, to := center.Add(-tol), center.Add(tol)

	existing, err := s.repo.List(ctx, reg.OwnerUserID, ListFilter{RegimenID: reg.ID, From: &from, To: &to})
	if err != nil {
		return err
	}
	for _, l := range existing {
		other, ok := s.rc.SlotFor(reg, l.ScheduledTime)
		if ok != onSchedule || (ok && !other.Equal(slot)) {
			continue
		}
		return fmt.Errorf("%w: %s at %s", ErrAlreadyLogged, l.ID, l.ScheduledTime.Format(time.RFC3339))
	}
	return nil
}

// notify es best-effort: un fallo del servicio de puntos no invalida el registro.
func (s *Service) notify(ctx context.Context, l schedule.DoseLog, v schedule.LateVerdict) {
	ev := rewards.DoseEvent{
		UserID:      l.OwnerUserID,
		RegimenID:   l.RegimenID,
		DoseLogID:   l.ID,
		Scheduled:   l.ScheduledTime,
		MinutesLate: v.MinutesLate,
		OnTime:      v.Decision == schedule.LateAllow,
	}
	if l.ActualTime != nil {
		ev.Actual = *l.ActualTime
	}
	if err := s.rewards.DoseLogged(ctx, ev); err != nil {
		s.log.Warn("rewards notification failed", map[string]any{
			"dose_log_id": l.ID,
			"err":         err,
		})
	}
}

// minutesBetween es floor((to-from)/1m), 0 si to <= from.
func minutesBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
