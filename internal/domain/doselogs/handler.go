package doselogs

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
	"medication-adherence/internal/middleware"
)

func RegisterRoutes(r chi.Router, svc *Service, cg *caregivers.Service) {
	r.Route("/doses", func(dr chi.Router) {
		dr.Post("/", logDoseHandler(svc, cg))
		dr.Get("/", listDosesHandler(svc, cg))
		dr.Get("/{doseID}", getDoseHandler(svc, cg))
	})

	// Cuidador: registrar (doses:log) o ver (schedule:read) las tomas del paciente
	r.Post("/patients/{patientID}/doses", logDoseHandler(svc, cg))
	r.Get("/patients/{patientID}/doses", listDosesHandler(svc, cg))
}

type logDoseRequest struct {
	RegimenID     string              `json:"regimen_id"`
	ScheduledTime string              `json:"scheduled_time"` // RFC3339
	Status        schedule.DoseStatus `json:"status"`
	ActualTime    string              `json:"actual_time,omitempty"` // RFC3339 opcional, solo taken
	Mood          string              `json:"mood,omitempty"`
	SideEffects   []string            `json:"side_effects,omitempty"`
	Effectiveness int                 `json:"effectiveness,omitempty"` // 1..5
	Notes         string              `json:"notes,omitempty"`
}

type doseResponse struct {
	ID            string              `json:"id"`
	OwnerUserID   string              `json:"owner_user_id"`
	RegimenID     string              `json:"regimen_id"`
	ScheduledTime time.Time           `json:"scheduled_time"`
	ActualTime    *time.Time          `json:"actual_time,omitempty"`
	Status        schedule.DoseStatus `json:"status"`
	Mood          string              `json:"mood,omitempty"`
	SideEffects   []string            `json:"side_effects"`
	Effectiveness int                 `json:"effectiveness,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	Source        schedule.LogSource  `json:"source"`
	RecordedAt    time.Time           `json:"recorded_at"`
}

type logDoseResponse struct {
	Dose        doseResponse          `json:"dose"`
	Decision    schedule.LateDecision `json:"decision,omitempty"`
	MinutesLate int                   `json:"minutes_late"`
	TakenLate   bool                  `json:"taken_late"`
	Warning     string                `json:"warning,omitempty"`
}

// logDoseHandler godoc
// @Summary Registrar una toma
// @Description Registra taken, missed o skipped para un slot. Un taken se evalúa contra la ventana de registro tardío: hasta 60 min se acepta, hasta la ventana (240 min por defecto) se acepta con aviso (`decision=warn_late`), y pasada la ventana se guarda como missed (`decision=force_missed`). Con patientID actúa un cuidador con scope `doses:log`.
// @Tags doses
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param patientID path string false "ID del paciente (solo cuidadores)"
// @Param payload body logDoseRequest true "Toma; scheduled_time en RFC3339"
// @Success 201 {object} logDoseResponse
// @Failure 400 {string} string "invalid json / validación"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "regimen not found"
// @Failure 409 {string} string "dose already logged"
// @Router /doses [post]
// @Router /patients/{patientID}/doses [post]
func logDoseHandler(svc *Service, cg *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := caregivers.Subject(r, cg, caregivers.ScopeDosesLog)
		if err != nil {
			caregivers.WriteAccessError(w, err)
			return
		}

		var req logDoseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		scheduled, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledTime))
		if err != nil {
			http.Error(w, "scheduled_time must be RFC3339", http.StatusBadRequest)
			return
		}
		var actual *time.Time
		if strings.TrimSpace(req.ActualTime) != "" {
			t, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ActualTime))
			if err != nil {
				http.Error(w, "actual_time must be RFC3339", http.StatusBadRequest)
				return
			}
			actual = &t
		}

		source := schedule.LogSourceManual
		if acc.Delegated() {
			source = schedule.LogSourceCaregiver
		}

		res, err := svc.Log(r.Context(), acc.PatientUserID, LogInput{
			RegimenID:     req.RegimenID,
			ScheduledTime: scheduled,
			Status:        req.Status,
			ActualTime:    actual,
			Mood:          req.Mood,
			SideEffects:   req.SideEffects,
			Effectiveness: req.Effectiveness,
			Notes:         req.Notes,
			Source:        source,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := logDoseResponse{
			Dose:        toDoseResponse(res.Log),
			Decision:    res.Verdict.Decision,
			MinutesLate: res.Verdict.MinutesLate,
			TakenLate:   res.Verdict.TakenLate,
		}
		switch res.Verdict.Decision {
		case schedule.LateWarn:
			out.Warning = "dose logged late"
		case schedule.LateForceMissed:
			out.Warning = "late logging window exceeded; dose recorded as missed"
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// listDosesHandler godoc
// @Summary Listar tomas registradas
// @Description Filtra por régimen y por rango de scheduled_time (inclusivo). Con patientID requiere scope `schedule:read`.
// @Tags doses
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param patientID path string false "ID del paciente (solo cuidadores)"
// @Param regimen_id query string false "ID del régimen"
// @Param from query string false "scheduled_time mínimo (RFC3339)"
// @Param to query string false "scheduled_time máximo (RFC3339)"
// @Param limit query int false "Máximo a devolver (1-500). Por defecto 100"
// @Success 200 {array} doseResponse
// @Failure 400 {string} string "Parámetros de filtro inválidos"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /doses [get]
// @Router /patients/{patientID}/doses [get]
func listDosesHandler(svc *Service, cg *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := caregivers.Subject(r, cg, caregivers.ScopeScheduleRead)
		if err != nil {
			caregivers.WriteAccessError(w, err)
			return
		}

		f, err := parseListFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		items, err := svc.List(r.Context(), acc.PatientUserID, f)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := make([]doseResponse, 0, len(items))
		for _, l := range items {
			out = append(out, toDoseResponse(l))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// getDoseHandler godoc
// @Summary Obtener una toma
// @Tags doses
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param doseID path string true "ID del log"
// @Success 200 {object} doseResponse
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "dose log not found"
// @Router /doses/{doseID} [get]
func getDoseHandler(svc *Service, cg *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		l, err := svc.GetByID(r.Context(), chi.URLParam(r, "doseID"))
		if err != nil {
			http.Error(w, "dose log not found", http.StatusNotFound)
			return
		}
		if err := cg.Authorize(r.Context(), l.OwnerUserID, claims.UserID, caregivers.ScopeScheduleRead); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, toDoseResponse(l))
	}
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	f := ListFilter{RegimenID: strings.TrimSpace(q.Get("regimen_id"))}

	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return ListFilter{}, errors.New("limit must be a positive integer")
		}
		f.Limit = n
	}
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListFilter{}, errors.New("from must be RFC3339")
		}
		f.From = &t
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListFilter{}, errors.New("to must be RFC3339")
		}
		f.To = &t
	}
	return f, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrRegimenNotFound):
		http.Error(w, "regimen not found", http.StatusNotFound)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "dose log not found", http.StatusNotFound)
	case errors.Is(err, ErrAlreadyLogged):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toDoseResponse(l schedule.DoseLog) doseResponse {
	out := doseResponse{
		ID:            l.ID,
		OwnerUserID:   l.OwnerUserID,
		RegimenID:     l.RegimenID,
		ScheduledTime: l.ScheduledTime,
		ActualTime:    l.ActualTime,
		Status:        l.Status,
		Mood:          l.Mood,
		SideEffects:   l.SideEffects,
		Effectiveness: l.Effectiveness,
		Notes:         l.Notes,
		Source:        l.Source,
		RecordedAt:    l.RecordedAt,
	}
	if out.SideEffects == nil {
		out.SideEffects = []string{}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
