package agenda

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medication-adherence/internal/domain/caregivers"
	"medication-adherence/internal/domain/schedule"
)

func RegisterRoutes(r chi.Router, svc *Service, cg *caregivers.Service) {
	r.Get("/schedule", dayHandler(svc, cg))
	r.Get("/schedule/missed", missedHandler(svc, cg))
	r.Get("/adherence", adherenceHandler(svc, cg))

	// Cuidador con schedule:read
	r.Get("/patients/{patientID}/schedule", dayHandler(svc, cg))
	r.Get("/patients/{patientID}/schedule/missed", missedHandler(svc, cg))
	r.Get("/patients/{patientID}/adherence", adherenceHandler(svc, cg))
}

type slotResponse struct {
	RegimenID     string              `json:"regimen_id"`
	LogID         string              `json:"log_id,omitempty"`
	Label         string              `json:"label,omitempty"`
	ScheduledTime time.Time           `json:"scheduled_time"`
	Status        schedule.SlotStatus `json:"status"`
	IsOverdue     bool                `json:"is_overdue"`
	MinutesLate   int                 `json:"minutes_late"`
	TakenLate     bool                `json:"taken_late"`
	DueSoon       bool                `json:"due_soon"`
	Virtual       bool                `json:"virtual"`
}

type warningResponse struct {
	Kind      schedule.WarningKind `json:"kind"`
	RegimenID string               `json:"regimen_id,omitempty"`
	LogIDs    []string             `json:"log_ids,omitempty"`
	Message   string               `json:"message"`
}

type statsResponse struct {
	Total         int     `json:"total"`
	Due           int     `json:"due"`
	Taken         int     `json:"taken"`
	TakenLate     int     `json:"taken_late"`
	Missed        int     `json:"missed"`
	Skipped       int     `json:"skipped"`
	Pending       int     `json:"pending"`
	Overdue       int     `json:"overdue"`
	AdherenceRate float64 `json:"adherence_rate"`
}

type dayResponse struct {
	Date     string            `json:"date"`
	Slots    []slotResponse    `json:"slots"`
	Warnings []warningResponse `json:"warnings"`
	Summary  statsResponse     `json:"summary"`
}

type missedResponse struct {
	Days  int            `json:"days"`
	Slots []slotResponse `json:"slots"`
}

type dayStatsResponse struct {
	Date string `json:"date"`
	statsResponse
}

type adherenceResponse struct {
	From          string             `json:"from"`
	To            string             `json:"to"`
	Total         statsResponse      `json:"total"`
	CurrentStreak int                `json:"current_streak"`
	LongestStreak int                `json:"longest_streak"`
	Days          []dayStatsResponse `json:"days"`
}

// dayHandler godoc
// @Summary Agenda del día
// @Description Slots del día conciliados con los logs: taken/missed/skipped materializados y pending virtuales (con is_overdue, minutes_late y due_soon). Los datos inconsistentes se devuelven como warnings sin cortar la respuesta.
// @Tags schedule
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param patientID path string false "ID del paciente (solo cuidadores)"
// @Param date query string false "Día (YYYY-MM-DD). Por defecto hoy"
// @Success 200 {object} dayResponse
// @Failure 400 {string} string "date inválida"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /schedule [get]
// @Router /patients/{patientID}/schedule [get]
func dayHandler(svc *Service, cg *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := caregivers.Subject(r, cg, caregivers.ScopeScheduleRead)
		if err != nil {
			caregivers.WriteAccessError(w, err)
			return
		}

		date, err := parseDate(r.URL.Query().Get("date"))
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}

		res, err := svc.Day(r.Context(), acc.PatientUserID, date)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDayResponse(res))
	}
}

// missedHandler godoc
// @Summary Dosis perdidas
// @Description Logs missed y slots pendientes que ya superaron la ventana de registro tardío, en los últimos N días (hoy incluido).
// @Tags schedule
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param patientID path string false "ID del paciente (solo cuidadores)"
// @Param days query int false "Días hacia atrás (1-90). Por defecto 7"
// @Success 200 {object} missedResponse
// @Failure 400 {string} string "days inválido"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /schedule/missed [get]
// @Router /patients/{patientID}/schedule/missed [get]
func missedHandler(svc *Service, cg *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := caregivers.Subject(r, cg, caregivers.ScopeScheduleRead)
		if err != nil {
			caregivers.WriteAccessError(w, err)
			return
		}

		days := DefaultMissedDays
		if v := strings.TrimSpace(r.URL.Query().Get("days")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, "days must be a positive integer", http.StatusBadRequest)
				return
			}
			days = n
		}

		slots, err := svc.Missed(r.Context(), acc.PatientUserID, days)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, missedResponse{Days: days, Slots: toSlotResponses(slots)})
	}
}

// adherenceHandler godoc
// @Summary Reporte de adherencia
// @Description Estadísticas por día y totales (taken/due), con racha actual y más larga de días perfectos. Máximo 366 días.
// @Tags schedule
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param patientID path string false "ID del paciente (solo cuidadores)"
// @Param from query string false "Desde (YYYY-MM-DD). Por defecto hace 29 días"
// @Param to query string false "Hasta (YYYY-MM-DD). Por defecto hoy"
// @Success 200 {object} adherenceResponse
// @Failure 400 {string} string "rango inválido"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /adherence [get]
// @Router /patients/{patientID}/adherence [get]
func adherenceHandler(svc *Service, cg *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := caregivers.Subject(r, cg, caregivers.ScopeScheduleRead)
		if err != nil {
			caregivers.WriteAccessError(w, err)
			return
		}

		q := r.URL.Query()
		from, err := parseDate(q.Get("from"))
		if err != nil {
			http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		to, err := parseDate(q.Get("to"))
		if err != nil {
			http.Error(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}

		rep, err := svc.Adherence(r.Context(), acc.PatientUserID, from, to)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := adherenceResponse{
			From:          rep.From.Format(time.DateOnly),
			To:            rep.To.Format(time.DateOnly),
			Total:         toStats(rep.Total),
			CurrentStreak: rep.CurrentStreak,
			LongestStreak: rep.LongestStreak,
			Days:          make([]dayStatsResponse, 0, len(rep.Days)),
		}
		for _, d := range rep.Days {
			out.Days = append(out.Days, dayStatsResponse{Date: d.Date.Format(time.DateOnly), statsResponse: toStats(d.Stats)})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// parseDate devuelve cero para un valor vacío.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidInput) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func toDayResponse(res schedule.Result) dayResponse {
	out := dayResponse{
		Date:     res.Date.Format(time.DateOnly),
		Slots:    toSlotResponses(res.Slots),
		Warnings: make([]warningResponse, 0, len(res.Warnings)),
		Summary:  toStats(schedule.Summarize(res.Slots)),
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, warningResponse{
			Kind:      w.Kind,
			RegimenID: w.RegimenID,
			LogIDs:    w.LogIDs,
			Message:   w.Error(),
		})
	}
	return out
}

func toSlotResponses(slots []schedule.DoseSlot) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse{
			RegimenID:     s.RegimenID,
			LogID:         s.LogID,
			Label:         s.Label,
			ScheduledTime: s.ScheduledTime,
			Status:        s.Status,
			IsOverdue:     s.IsOverdue,
			MinutesLate:   s.MinutesLate,
			TakenLate:     s.TakenLate,
			DueSoon:       s.DueSoon,
			Virtual:       s.Virtual(),
		})
	}
	return out
}

func toStats(st schedule.Stats) statsResponse {
	return statsResponse{
		Total:         st.Total,
		Due:           st.Due,
		Taken:         st.Taken,
		TakenLate:     st.TakenLate,
		Missed:        st.Missed,
		Skipped:       st.Skipped,
		Pending:       st.Pending,
		Overdue:       st.Overdue,
		AdherenceRate: st.AdherenceRate(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
