package regimens

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medication-adherence/internal/domain/caregivers"
	"medication-adherence/internal/domain/schedule"
	"medication-adherence/internal/middleware"
)

func RegisterRoutes(r chi.Router, svc *Service, cg *caregivers.Service) {
	r.Route("/regimens", func(rr chi.Router) {
		rr.Post("/", createRegimenHandler(svc))
		rr.Get("/", listRegimensHandler(svc, cg))

		rr.Get("/{regimenID}", getRegimenHandler(svc, cg))
		rr.Patch("/{regimenID}", updateRegimenHandler(svc))
		rr.Post("/{regimenID}/deactivate", deactivateRegimenHandler(svc))
	})

	// Cuidador con schedule:read
	r.Get("/patients/{patientID}/regimens", listRegimensHandler(svc, cg))
}

type customTimeDTO struct {
	Time  string `json:"time"` // HH:MM
	Label string `json:"label,omitempty"`
}

type dosageDTO struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

type createRegimenRequest struct {
	MedicationRef  string             `json:"medication_ref"`
	MedicationName string             `json:"medication_name"`
	Frequency      schedule.Frequency `json:"frequency"`
	CustomSchedule []customTimeDTO    `json:"custom_schedule"`
	StartDate      string             `json:"start_date"`         // YYYY-MM-DD
	EndDate        string             `json:"end_date,omitempty"` // YYYY-MM-DD opcional
	Dosage         dosageDTO          `json:"dosage"`
}

type updateRegimenRequest struct {
	MedicationName *string          `json:"medication_name"`
	CustomSchedule *[]customTimeDTO `json:"custom_schedule"`
	IsActive       *bool            `json:"is_active"`
	Dosage         *dosageDTO       `json:"dosage"`
	// end_date se lee aparte para distinguir null de ausente.
}

type regimenResponse struct {
	ID             string             `json:"id"`
	OwnerUserID    string             `json:"owner_user_id"`
	MedicationRef  string             `json:"medication_ref,omitempty"`
	MedicationName string             `json:"medication_name"`
	Frequency      schedule.Frequency `json:"frequency"`
	FixedTimes     []string           `json:"fixed_times"`
	CustomSchedule []customTimeDTO    `json:"custom_schedule,omitempty"`
	StartDate      string             `json:"start_date"`
	EndDate        *string            `json:"end_date,omitempty"`
	IsActive       bool               `json:"is_active"`
	Dosage         dosageDTO          `json:"dosage"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// createRegimenHandler godoc
// @Summary Crear régimen de medicación
// @Description Registra una pauta para el usuario autenticado. `custom_schedule` es obligatorio con frequency=custom y prohibido en el resto. Fechas en formato YYYY-MM-DD.
// @Tags regimens
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body createRegimenRequest true "Datos del régimen"
// @Success 201 {object} regimenResponse
// @Failure 400 {string} string "invalid json / validación"
// @Failure 401 {string} string "unauthorized"
// @Router /regimens [post]
func createRegimenHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createRegimenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		start, err := time.Parse(time.DateOnly, strings.TrimSpace(req.StartDate))
		if err != nil {
			http.Error(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		var end *time.Time
		if strings.TrimSpace(req.EndDate) != "" {
			t, err := time.Parse(time.DateOnly, strings.TrimSpace(req.EndDate))
			if err != nil {
				http.Error(w, "end_date must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			end = &t
		}

		reg, err := svc.Create(r.Context(), claims.UserID, CreateInput{
			MedicationRef:  req.MedicationRef,
			MedicationName: req.MedicationName,
			Frequency:      req.Frequency,
			CustomSchedule: fromCustomDTO(req.CustomSchedule),
			StartDate:      start,
			EndDate:        end,
			Dosage:         schedule.Dosage{Amount: req.Dosage.Amount, Unit: req.Dosage.Unit},
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRegimenResponse(reg))
	}
}

// listRegimensHandler godoc
// @Summary Listar regímenes
// @Description Sin patientID lista los regímenes propios. Con patientID requiere un vínculo de cuidador activo con scope `schedule:read`.
// @Tags regimens
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param patientID path string false "ID del paciente (solo cuidadores)"
// @Param active query bool false "Si es true, solo regímenes activos"
// @Success 200 {array} regimenResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /regimens [get]
// @Router /patients/{patientID}/regimens [get]
func listRegimensHandler(svc *Service, cg *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := caregivers.Subject(r, cg, caregivers.ScopeScheduleRead)
		if err != nil {
			caregivers.WriteAccessError(w, err)
			return
		}

		items, err := svc.ListByOwner(r.Context(), acc.PatientUserID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		onlyActive := r.URL.Query().Get("active") == "true"
		out := make([]regimenResponse, 0, len(items))
		for _, reg := range items {
			if onlyActive && !reg.IsActive {
				continue
			}
			out = append(out, toRegimenResponse(reg))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// getRegimenHandler godoc
// @Summary Obtener un régimen
// @Tags regimens
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param regimenID path string true "ID del régimen"
// @Success 200 {object} regimenResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "regimen not found"
// @Router /regimens/{regimenID} [get]
func getRegimenHandler(svc *Service, cg *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		reg, err := svc.GetByID(r.Context(), chi.URLParam(r, "regimenID"))
		if err != nil {
			http.Error(w, "regimen not found", http.StatusNotFound)
			return
		}
		if err := cg.Authorize(r.Context(), reg.OwnerUserID, claims.UserID, caregivers.ScopeScheduleRead); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, toRegimenResponse(reg))
	}
}

// updateRegimenHandler godoc
// @Summary Actualizar un régimen (PATCH)
// @Description Campos ausentes no se tocan. `end_date: null` quita la fecha de fin. La frecuencia y la fecha de inicio no se editan; para cambiarlas se crea un régimen nuevo.
// @Tags regimens
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param regimenID path string true "ID del régimen"
// @Param payload body updateRegimenRequest true "Campos a modificar"
// @Success 200 {object} regimenResponse
// @Failure 400 {string} string "invalid json / validación"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "regimen not found"
// @Router /regimens/{regimenID} [patch]
func updateRegimenHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		var req updateRegimenRequest
		b, _ := json.Marshal(raw)
		if err := json.Unmarshal(b, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		in := UpdateInput{
			MedicationName: req.MedicationName,
			IsActive:       req.IsActive,
		}
		if req.CustomSchedule != nil {
			cs := fromCustomDTO(*req.CustomSchedule)
			in.CustomSchedule = &cs
		}
		if req.Dosage != nil {
			in.Dosage = &schedule.Dosage{Amount: req.Dosage.Amount, Unit: req.Dosage.Unit}
		}
		if v, exists := raw["end_date"]; exists {
			if string(v) == "null" {
				in.EndDate = SetEndDate(nil)
			} else {
				var s string
				if err := json.Unmarshal(v, &s); err != nil {
					http.Error(w, "end_date must be YYYY-MM-DD or null", http.StatusBadRequest)
					return
				}
				t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
				if err != nil {
					http.Error(w, "end_date must be YYYY-MM-DD or null", http.StatusBadRequest)
					return
				}
				in.EndDate = SetEndDate(&t)
			}
		}

		reg, err := svc.Update(r.Context(), chi.URLParam(r, "regimenID"), claims.UserID, in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRegimenResponse(reg))
	}
}

// deactivateRegimenHandler godoc
// @Summary Desactivar un régimen
// @Description Un régimen inactivo deja de generar slots. Sus dosis registradas se conservan. Idempotente.
// @Tags regimens
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param regimenID path string true "ID del régimen"
// @Success 200 {object} regimenResponse
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "regimen not found"
// @Router /regimens/{regimenID}/deactivate [post]
func deactivateRegimenHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		reg, err := svc.Deactivate(r.Context(), chi.URLParam(r, "regimenID"), claims.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRegimenResponse(reg))
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "regimen not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func fromCustomDTO(in []customTimeDTO) []schedule.CustomTime {
	if in == nil {
		return nil
	}
	out := make([]schedule.CustomTime, 0, len(in))
	for _, c := range in {
		out = append(out, schedule.CustomTime{Time: c.Time, Label: c.Label})
	}
	return out
}

func toRegimenResponse(r schedule.Regimen) regimenResponse {
	out := regimenResponse{
		ID:             r.ID,
		OwnerUserID:    r.OwnerUserID,
		MedicationRef:  r.MedicationRef,
		MedicationName: r.MedicationName,
		Frequency:      r.Frequency,
		FixedTimes:     r.FixedTimes,
		StartDate:      r.StartDate.Format(time.DateOnly),
		IsActive:       r.IsActive,
		Dosage:         dosageDTO{Amount: r.Dosage.Amount, Unit: r.Dosage.Unit},
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if out.FixedTimes == nil {
		out.FixedTimes = []string{}
	}
	for _, c := range r.CustomSchedule {
		out.CustomSchedule = append(out.CustomSchedule, customTimeDTO{Time: c.Time, Label: c.Label})
	}
	if r.EndDate != nil {
		s := r.EndDate.Format(time.DateOnly)
		out.EndDate = &s
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
