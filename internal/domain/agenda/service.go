package agenda

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medication-adherence/internal/domain/doselogs"
	"medication-adherence/internal/domain/schedule"
	"medication-adherence/internal/platform/logger"
	"medication-adherence/internal/platform/metrics"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	DefaultMissedDays = 7
	MaxMissedDays     = 90

	DefaultAdherenceDays = 30
	MaxRangeDays         = 366
)

type RegimenSource interface {
	ListByOwner(ctx context.Context, ownerUserID string) ([]schedule.Regimen, error)
}

// LogFinder es el repositorio de logs: List con Limit 0 trae todo el rango.
type LogFinder interface {
	List(ctx context.Context, ownerUserID string, f doselogs.ListFilter) ([]schedule.DoseLog, error)
}

type Options struct {
	Policy  schedule.LatePolicy
	Logger  logger.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Service struct {
	regimens RegimenSource
	logs     LogFinder
	rc       *schedule.Reconciler

	policy  schedule.LatePolicy
	log     logger.Logger
	metrics *metrics.Metrics

	now func() time.Time
}

func NewService(regimens RegimenSource, logs LogFinder, rc *schedule.Reconciler, opts Options) *Service {
	s := &Service{
		regimens: regimens,
		logs:     logs,
		rc:       rc,
		policy:   opts.Policy,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      time.Now,
	}
	if s.rc == nil {
		s.rc = schedule.NewReconciler(schedule.DefaultOptions())
	}
	if s.policy.WindowMinutes <= 0 {
		s.policy.WindowMinutes = schedule.DefaultLateWindowMinutes
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if opts.Now != nil {
		s.now = opts.Now
	}
	return s
}

// Today es el día civil actual en la zona del reconciliador.
func (s *Service) Today() time.Time {
	return schedule.CivilDay(s.now().In(s.rc.Options().Location))
}

// Range reconcilia [from, to] (días civiles, inclusive) con una sola lectura de
// regímenes y logs. Los warnings se loguean y también se devuelven en cada Result.
func (s *Service) Range(ctx context.Context, ownerUserID string, from, to time.Time) ([]schedule.Result, error) {
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return nil, fmt.Errorf("%w: owner required", ErrInvalidInput)
	}
	first, last := schedule.CivilDay(from), schedule.CivilDay(to)
	if first.After(last) {
		return nil, fmt.Errorf("%w: from after to", ErrInvalidInput)
	}
	if n := schedule.DaysBetween(first, last) + 1; n > MaxRangeDays {
		return nil, fmt.Errorf("%w: range of %d days exceeds %d", ErrInvalidInput, n, MaxRangeDays)
	}

	started := time.Now()
	now := s.now()

	regs, err := s.regimens.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("list regimens: %w", err)
	}

	loc := s.rc.Options().Location
	winFrom, winTo := window(first, last, loc)
	logs, err := s.logs.List(ctx, ownerUserID, doselogs.ListFilter{From: &winFrom, To: &winTo})
	if err != nil {
		return nil, fmt.Errorf("list dose logs: %w", err)
	}

	results, err := s.rc.ReconcileRange(first, last, now, regs, logs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	for _, res := range results {
		for _, w := range res.Warnings {
			s.log.Warn("reconcile warning", map[string]any{
				"owner_user_id": ownerUserID,
				"date":          res.Date.Format(time.DateOnly),
				"kind":          string(w.Kind),
				"regimen_id":    w.RegimenID,
				"log_ids":       w.LogIDs,
				"err":           w.Err,
			})
		}
	}
	s.metrics.ObserveReconcile(results, time.Since(started))

	return results, nil
}

// Day es la agenda de un día. Un date cero significa hoy.
func (s *Service) Day(ctx context.Context, ownerUserID string, date time.Time) (schedule.Result, error) {
	if date.IsZero() {
		date = s.Today()
	}
	results, err := s.Range(ctx, ownerUserID, date, date)
	if err != nil {
		return schedule.Result{}, err
	}
	return results[0], nil
}

// Missed lista las dosis perdidas de los últimos days días (hoy incluido):
// logs missed y slots pendientes cuyo retraso ya superó la ventana de registro.
func (s *Service) Missed(ctx context.Context, ownerUserID string, days int) ([]schedule.DoseSlot, error) {
	switch {
	case days == 0:
		days = DefaultMissedDays
	case days < 0 || days > MaxMissedDays:
		return nil, fmt.Errorf("%w: days must be 1..%d", ErrInvalidInput, MaxMissedDays)
	}

	today := s.Today()
	results, err := s.Range(ctx, ownerUserID, today.AddDate(0, 0, -(days-1)), today)
	if err != nil {
		return nil, err
	}

	out := make([]schedule.DoseSlot, 0)
	for _, res := range results {
		for _, slot := range res.Slots {
			if s.isMissed(slot) {
				out = append(out, slot)
			}
		}
	}
	return out, nil
}

func (s *Service) isMissed(slot schedule.DoseSlot) bool {
	switch slot.Status {
	case schedule.SlotStatusMissed:
		return true
	case schedule.SlotStatusPending:
		return slot.IsOverdue && slot.MinutesLate > s.policy.WindowMinutes
	}
	return false
}

type Report struct {
	From time.Time
	To   time.Time

	Days  []schedule.DayStats
	Total schedule.Stats

	CurrentStreak int
	LongestStreak int
}

func (r Report) Rate() float64 {
	return r.Total.AdherenceRate()
}

// Adherence resume [from, to]. Ceros: los últimos 30 días hasta hoy.
func (s *Service) Adherence(ctx context.Context, ownerUserID string, from, to time.Time) (Report, error) {
	if to.IsZero() {
		to = s.Today()
	}
	if from.IsZero() {
		from = schedule.CivilDay(to).AddDate(0, 0, -(DefaultAdherenceDays - 1))
	}

	results, err := s.Range(ctx, ownerUserID, from, to)
	if err != nil {
		return Report{}, err
	}

	days, total := schedule.SummarizeDays(results)
	return Report{
		From:          schedule.CivilDay(from),
		To:            schedule.CivilDay(to),
		Days:          days,
		Total:         total,
		CurrentStreak: schedule.CurrentStreak(days),
		LongestStreak: schedule.LongestStreak(days),
	}, nil
}

// window convierte los días civiles [first, last] al intervalo absoluto que
// cubren en loc. El final es inclusivo.
func window(first, last time.Time, loc *time.Location) (time.Time, time.Time) {
	from := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	end := last.AddDate(0, 0, 1)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc).Add(-time.Nanosecond)
	return from, to
}
