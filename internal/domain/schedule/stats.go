package schedule

import "time"

// Stats resume un conjunto de slots.
// Due cuenta lo que ya debió ocurrir: logs + pendientes vencidos.
type Stats struct {
	Total     int
	Due       int
	Taken     int
	TakenLate int
	Missed    int
	Skipped   int
	Pending   int
	Overdue   int
}

// AdherenceRate es taken/due en [0, 1]. Sin dosis vencidas devuelve 0.
func (s Stats) AdherenceRate() float64 {
	if s.Due == 0 {
		return 0
	}
	return float64(s.Taken) / float64(s.Due)
}

// Perfect indica un día con dosis vencidas y todas tomadas.
func (s Stats) Perfect() bool {
	return s.Due > 0 && s.Taken == s.Due
}

func (s *Stats) add(o Stats) {
	s.Total += o.Total
	s.Due += o.Due
	s.Taken += o.Taken
	s.TakenLate += o.TakenLate
	s.Missed += o.Missed
	s.Skipped += o.Skipped
	s.Pending += o.Pending
	s.Overdue += o.Overdue
}

func Summarize(slots []DoseSlot) Stats {
	var st Stats
	for _, s := range slots {
		st.Total++
		switch s.Status {
		case SlotStatusTaken:
			st.Taken++
			st.Due++
			if s.TakenLate {
				st.TakenLate++
			}
		case SlotStatusMissed:
			st.Missed++
			st.Due++
		case SlotStatusSkipped:
			st.Skipped++
			st.Due++
		case SlotStatusPending:
			st.Pending++
			if s.IsOverdue {
				st.Overdue++
				st.Due++
			}
		}
	}
	return st
}

type DayStats struct {
	Date time.Time
	Stats
}

// SummarizeDays resume cada resultado diario y devuelve además el total.
func SummarizeDays(results []Result) ([]DayStats, Stats) {
	out := make([]DayStats, 0, len(results))
	var total Stats
	for _, r := range results {
		st := Summarize(r.Slots)
		total.add(st)
		out = append(out, DayStats{Date: r.Date, Stats: st})
	}
	return out, total
}

// CurrentStreak cuenta los días perfectos consecutivos terminando en el último día.
// Los días sin dosis vencidas no cortan ni suman la racha.
func CurrentStreak(days []DayStats) int {
	streak := 0
	for i := len(days) - 1; i >= 0; i-- {
		d := days[i]
		if d.Due == 0 {
			continue
		}
		if !d.Perfect() {
			break
		}
		streak++
	}
	return streak
}

// LongestStreak es la racha perfecta más larga dentro de days.
func LongestStreak(days []DayStats) int {
	best, cur := 0, 0
	for _, d := range days {
		if d.Due == 0 {
			continue
		}
		if d.Perfect() {
			cur++
			if cur > best {
				best = cur
			}
			continue
		}
		cur = 0
	}
	return best
}
