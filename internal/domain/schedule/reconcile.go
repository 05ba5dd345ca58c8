package schedule

import (
	"fmt"
	"sort"
	"time"
)

const (
	DefaultMatchTolerance = 30 * time.Minute
	DefaultDueSoon        = 15 * time.Minute
)

// Options configura el reconciliador. Los ceros toman los valores por defecto.
type Options struct {
	// Distancia máxima (inclusive) entre un log y el slot al que corresponde.
	MatchTolerance time.Duration
	// Un slot pendiente a menos de esto en el futuro se marca DueSoon.
	DueSoon time.Duration
	// Retraso (minutos) a partir del cual un taken se considera tardío.
	OnTimeMinutes int
	// Zona horaria en la que se interpretan las horas HH:MM.
	Location *time.Location
}

func DefaultOptions() Options {
	return Options{
		MatchTolerance: DefaultMatchTolerance,
		DueSoon:        DefaultDueSoon,
		OnTimeMinutes:  DefaultOnTimeMinutes,
		Location:       time.UTC,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MatchTolerance <= 0 {
		o.MatchTolerance = d.MatchTolerance
	}
	if o.DueSoon <= 0 {
		o.DueSoon = d.DueSoon
	}
	if o.OnTimeMinutes <= 0 {
		o.OnTimeMinutes = d.OnTimeMinutes
	}
	if o.Location == nil {
		o.Location = d.Location
	}
	return o
}

// Reconciler genera y concilia los slots de un día.
// No guarda estado entre llamadas; es seguro usarlo desde varias goroutines.
type Reconciler struct {
	opts Options
}

func NewReconciler(opts Options) *Reconciler {
	return &Reconciler{opts: opts.withDefaults()}
}

func (rc *Reconciler) Options() Options {
	return rc.opts
}

// Input es la foto consistente que el caller trae del store.
// Now se inyecta siempre: el motor no lee el reloj.
type Input struct {
	Date     time.Time // solo se usa año/mes/día
	Now      time.Time
	Regimens []Regimen
	Logs     []DoseLog
}

type Result struct {
	Date     time.Time // medianoche UTC del día civil
	Slots    []DoseSlot
	Warnings []Warning
}

// Reconcile produce la lista ordenada de slots del día.
// Solo devuelve error si falta Now o Date; los datos malos se degradan a Warnings.
func (rc *Reconciler) Reconcile(in Input) (Result, error) {
	if in.Now.IsZero() {
		return Result{}, ErrMissingNow
	}
	if in.Date.IsZero() {
		return Result{}, ErrMissingDate
	}

	day := CivilDay(in.Date)
	res := Result{Date: day, Slots: make([]DoseSlot, 0)}

	valid := make([]bool, len(in.Logs))
	for i, l := range in.Logs {
		if err := checkLog(l); err != nil {
			res.Warnings = append(res.Warnings, Warning{
				Kind:      WarningInvalidDoseLog,
				RegimenID: l.RegimenID,
				LogIDs:    []string{l.ID},
				Err:       err,
			})
			continue
		}
		valid[i] = true
	}
	claimed := make([]bool, len(in.Logs))

	for _, reg := range in.Regimens {
		if !reg.IsActive {
			continue
		}
		if w, ok := checkRegimen(reg); !ok {
			res.Warnings = append(res.Warnings, w)
			continue
		}
		if !activeOn(reg, day) {
			continue
		}

		cands, ws := rc.candidates(reg, day)
		res.Warnings = append(res.Warnings, ws...)

		owner := rc.assign(reg.ID, cands, in.Logs, valid, claimed)
		for ci, c := range cands {
			idx := -1
			var contenders []string
			for li, l := range in.Logs {
				if !valid[li] || l.RegimenID != reg.ID || absDuration(l.ScheduledTime.Sub(c.at)) > rc.opts.MatchTolerance {
					continue
				}
				if owner[li] == ci {
					idx = li
				} else if claimed[li] {
					// ya pertenece a otro slot
					continue
				}
				contenders = append(contenders, l.ID)
			}

			if idx < 0 {
				res.Slots = append(res.Slots, rc.pendingSlot(reg.ID, c.label, c.at, in.Now))
				continue
			}

			slot := rc.loggedSlot(in.Logs[idx], c.label)
			slot.ScheduledTime = c.at
			res.Slots = append(res.Slots, slot)

			if len(contenders) > 1 {
				res.Warnings = append(res.Warnings, Warning{
					Kind:      WarningAmbiguousLogMatch,
					RegimenID: reg.ID,
					LogIDs:    contenders,
					Err: fmt.Errorf("%w: %d logs within %s of %s, kept %s",
						ErrAmbiguousLogMatch, len(contenders), rc.opts.MatchTolerance,
						c.at.Format(time.RFC3339), in.Logs[idx].ID),
				})
			}
		}
	}

	// Los logs que no corresponden a ningún slot generado se conservan tal cual.
	for i, l := range in.Logs {
		if !valid[i] || claimed[i] {
			continue
		}
		res.Slots = append(res.Slots, rc.loggedSlot(l, ""))
	}

	sort.SliceStable(res.Slots, func(i, j int) bool {
		return res.Slots[i].ScheduledTime.Before(res.Slots[j].ScheduledTime)
	})

	return res, nil
}

// ReconcileRange reconcilia cada día de [from, to] (inclusive).
// Cada log se asigna al día civil de su ScheduledTime en la zona configurada;
// los logs fuera del rango se ignoran.
func (rc *Reconciler) ReconcileRange(from, to, now time.Time, regimens []Regimen, logs []DoseLog) ([]Result, error) {
	if now.IsZero() {
		return nil, ErrMissingNow
	}
	if from.IsZero() || to.IsZero() {
		return nil, ErrMissingDate
	}
	first, last := CivilDay(from), CivilDay(to)
	if first.After(last) {
		return nil, ErrBadRange
	}

	byDay := make(map[string][]DoseLog)
	for _, l := range logs {
		k := l.ScheduledTime.In(rc.opts.Location).Format(time.DateOnly)
		byDay[k] = append(byDay[k], l)
	}

	out := make([]Result, 0, DaysBetween(first, last)+1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		res, err := rc.Reconcile(Input{
			Date:     d,
			Now:      now,
			Regimens: regimens,
			Logs:     byDay[d.Format(time.DateOnly)],
		})
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

type candidate struct {
	at    time.Time
	label string
}

// candidates devuelve los horarios del régimen en day, sin repetidos y en orden.
func (rc *Reconciler) candidates(reg Regimen, day time.Time) ([]candidate, []Warning) {
	times, ws := ResolveTimes(reg, day)
	out := make([]candidate, 0, len(times))
	seen := make(map[string]struct{}, len(times))
	for _, tod := range times {
		// Un horario custom con la misma hora repetida genera un solo slot.
		if _, dup := seen[tod.String()]; dup {
			continue
		}
		seen[tod.String()] = struct{}{}
		out = append(out, candidate{at: tod.On(day, rc.opts.Location), label: tod.Label})
	}
	return out, ws
}

// assign empareja candidatos y logs libres del régimen por distancia global:
// primero el par más cercano de todo el día. En empate gana el candidato anterior
// y después el primer log en el orden de entrada.
// Devuelve, por log, el índice del candidato que lo tomó (-1 si ninguno) y marca claimed.
func (rc *Reconciler) assign(regimenID string, cands []candidate, logs []DoseLog, valid, claimed []bool) []int {
	type pair struct {
		c, l int
		dist time.Duration
	}
	var pairs []pair
	for ci, c := range cands {
		for li, l := range logs {
			if !valid[li] || claimed[li] || l.RegimenID != regimenID {
				continue
			}
			if d := absDuration(l.ScheduledTime.Sub(c.at)); d <= rc.opts.MatchTolerance {
				pairs = append(pairs, pair{c: ci, l: li, dist: d})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].dist != pairs[j].dist {
			return pairs[i].dist < pairs[j].dist
		}
		if pairs[i].c != pairs[j].c {
			return pairs[i].c < pairs[j].c
		}
		return pairs[i].l < pairs[j].l
	})

	owner := make([]int, len(logs))
	for i := range owner {
		owner[i] = -1
	}
	taken := make([]bool, len(cands))
	for _, p := range pairs {
		if taken[p.c] || owner[p.l] >= 0 {
			continue
		}
		taken[p.c] = true
		owner[p.l] = p.c
		claimed[p.l] = true
	}
	return owner
}

// SlotFor devuelve el horario del régimen al que corresponde t: el candidato más
// cercano del mismo día civil (en la zona configurada) dentro de la tolerancia.
// ok es false si el régimen no genera slots ese día o t no cae cerca de ninguno.
func (rc *Reconciler) SlotFor(reg Regimen, t time.Time) (time.Time, bool) {
	if !reg.IsActive || t.IsZero() {
		return time.Time{}, false
	}
	if _, ok := checkRegimen(reg); !ok {
		return time.Time{}, false
	}
	day := CivilDay(t.In(rc.opts.Location))
	if !activeOn(reg, day) {
		return time.Time{}, false
	}

	cands, _ := rc.candidates(reg, day)
	best := -1
	var bestDist time.Duration
	for i, c := range cands {
		d := absDuration(t.Sub(c.at))
		if d > rc.opts.MatchTolerance {
			continue
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return time.Time{}, false
	}
	return cands[best].at, true
}

func (rc *Reconciler) pendingSlot(regimenID, label string, at, now time.Time) DoseSlot {
	s := DoseSlot{
		RegimenID:     regimenID,
		Label:         label,
		ScheduledTime: at,
		Status:        SlotStatusPending,
	}
	if at.Before(now) {
		s.IsOverdue = true
		s.MinutesLate = int(now.Sub(at) / time.Minute)
	} else if at.Sub(now) <= rc.opts.DueSoon {
		s.DueSoon = true
	}
	return s
}

// loggedSlot nunca marca IsOverdue: el retraso de un taken se expone como TakenLate,
// medido entre ActualTime y el ScheduledTime del propio log.
func (rc *Reconciler) loggedSlot(l DoseLog, label string) DoseSlot {
	s := DoseSlot{
		RegimenID:     l.RegimenID,
		LogID:         l.ID,
		Label:         label,
		ScheduledTime: l.ScheduledTime,
		Status:        SlotStatus(l.Status),
	}
	if l.Status == DoseStatusTaken && l.ActualTime != nil && l.ActualTime.After(l.ScheduledTime) {
		s.MinutesLate = int(l.ActualTime.Sub(l.ScheduledTime) / time.Minute)
		s.TakenLate = s.MinutesLate > rc.opts.OnTimeMinutes
	}
	return s
}

func checkRegimen(r Regimen) (Warning, bool) {
	if r.ID == "" {
		return invalidRegimen(r.ID, "id is required"), false
	}
	if r.StartDate.IsZero() {
		return invalidRegimen(r.ID, "start date is required"), false
	}
	if r.EndDate != nil && CivilDay(*r.EndDate).Before(CivilDay(r.StartDate)) {
		return invalidRegimen(r.ID, "end date %s is before start date %s",
			r.EndDate.Format(time.DateOnly), r.StartDate.Format(time.DateOnly)), false
	}
	return Warning{}, true
}

func checkLog(l DoseLog) error {
	switch {
	case l.RegimenID == "":
		return fmt.Errorf("%w: regimen is required", ErrInvalidDoseLog)
	case l.ScheduledTime.IsZero():
		return fmt.Errorf("%w: scheduled time is required", ErrInvalidDoseLog)
	case !l.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDoseLog, l.Status)
	}
	return nil
}

// activeOn aplica el rango [startDate, endDate] inclusive.
func activeOn(r Regimen, day time.Time) bool {
	if day.Before(CivilDay(r.StartDate)) {
		return false
	}
	if r.EndDate != nil && day.After(CivilDay(*r.EndDate)) {
		return false
	}
	return true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
