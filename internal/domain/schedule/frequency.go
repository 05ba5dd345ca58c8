package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fixedTimes es la tabla de horas para las frecuencias no personalizadas.
// every_other_day y weekly además pasan por la regla de paridad.
var fixedTimes = map[Frequency][]string{
	FrequencyOnceDaily:       {"08:00"},
	FrequencyTwiceDaily:      {"08:00", "20:00"},
	FrequencyThreeTimesDaily: {"08:00", "14:00", "20:00"},
	FrequencyFourTimesDaily:  {"08:00", "12:00", "16:00", "20:00"},
	FrequencyEveryOtherDay:   {"08:00"},
	FrequencyWeekly:          {"08:00"},
	FrequencyAsNeeded:        nil,
}

// TimesFor devuelve la tabla fija de una frecuencia, sin aplicar paridad.
// Frecuencias desconocidas caen en once_daily (ok=false).
// custom no tiene tabla: sus horas vienen de CustomSchedule.
func TimesFor(f Frequency) (times []string, ok bool) {
	if f == FrequencyCustom {
		return nil, true
	}
	t, ok := fixedTimes[f]
	if !ok {
		return cloneStrings(fixedTimes[FrequencyOnceDaily]), false
	}
	return cloneStrings(t), true
}

// TimeOfDay es una hora del día ya parseada.
type TimeOfDay struct {
	Hour   int
	Minute int
	Label  string
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On construye el instante para el día civil dado, con segundos en cero.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}

// ParseTimeOfDay valida un string HH:MM (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hh, mm, found := strings.Cut(s, ":")
	if !found || len(hh) != 2 || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("time %q must be HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("time %q has invalid hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time %q has invalid minute", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// ResolveTimes devuelve las horas del régimen para el día civil day.
// No filtra por IsActive ni por rango de fechas; eso lo hace el reconciliador.
// Usa siempre la tabla fija, no Regimen.FixedTimes (que es solo informativo).
//
// Nunca falla: un régimen mal formado devuelve nil y un Warning.
// Una frecuencia desconocida devuelve la lista de once_daily y un Warning.
func ResolveTimes(r Regimen, day time.Time) ([]TimeOfDay, []Warning) {
	switch r.Frequency {
	case FrequencyAsNeeded:
		return nil, nil

	case FrequencyCustom:
		// custom vacío se comporta igual que as_needed.
		if len(r.CustomSchedule) == 0 {
			return nil, nil
		}
		out := make([]TimeOfDay, 0, len(r.CustomSchedule))
		for _, c := range r.CustomSchedule {
			t, err := ParseTimeOfDay(c.Time)
			if err != nil {
				return nil, []Warning{invalidRegimen(r.ID, "custom schedule: %v", err)}
			}
			t.Label = strings.TrimSpace(c.Label)
			out = append(out, t)
		}
		return out, nil

	case FrequencyEveryOtherDay, FrequencyWeekly:
		if r.StartDate.IsZero() {
			return nil, []Warning{invalidRegimen(r.ID, "start date is required")}
		}
		period := 2
		if r.Frequency == FrequencyWeekly {
			period = 7
		}
		// La periodicidad se ancla al startDate del régimen, no a una época fija.
		if DaysBetween(r.StartDate, day)%period != 0 {
			return nil, nil
		}
	}

	raw, known := TimesFor(r.Frequency)
	var warnings []Warning
	if !known {
		warnings = append(warnings, Warning{
			Kind:      WarningUnknownFrequency,
			RegimenID: r.ID,
			Err:       fmt.Errorf("%w: %q, using %s", ErrUnknownFrequency, r.Frequency, FrequencyOnceDaily),
		})
	}

	out := make([]TimeOfDay, 0, len(raw))
	for _, s := range raw {
		t, err := ParseTimeOfDay(s)
		if err != nil {
			// La tabla es constante; esto solo pasa si alguien la rompe.
			panic(err)
		}
		out = append(out, t)
	}
	return out, warnings
}

// DaysBetween cuenta días civiles de from a to (negativo si to < from).
// Solo se leen año/mes/día de cada valor: un cambio de horario no mueve la paridad.
func DaysBetween(from, to time.Time) int {
	return int(CivilDay(to).Sub(CivilDay(from)).Hours() / 24)
}

// CivilDay normaliza a medianoche UTC usando solo año/mes/día de t.
// Las fechas de calendario (startDate, endDate, día objetivo) se tratan siempre así.
func CivilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
