package caregivers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medication-adherence/internal/middleware"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	// Paciente: invitar y listar sus cuidadores
	r.Route("/caregivers", func(cr chi.Router) {
		cr.Post("/", inviteHandler(svc))
		cr.Get("/", listMyCaregiversHandler(svc))

		cr.Post("/{linkID}/accept", acceptHandler(svc))
		cr.Post("/{linkID}/revoke", revokeHandler(svc))
	})

	// Cuidador: pacientes que lo invitaron
	r.Get("/me/patients", listMyPatientsHandler(svc))
}

type inviteRequest struct {
	CaregiverUserID string  `json:"caregiver_user_id"`
	Scopes          []Scope `json:"scopes"`
}

type linkResponse struct {
	ID              string     `json:"id"`
	PatientUserID   string     `json:"patient_user_id"`
	CaregiverUserID string     `json:"caregiver_user_id"`
	Scopes          []Scope    `json:"scopes"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
}

// inviteHandler godoc
// @Summary Invitar a un cuidador
// @Description El paciente invita a otro usuario como cuidador. Scopes válidos: `schedule:read`, `doses:log`. Sin scopes se usa `schedule:read`. Re-invitar al mismo cuidador actualiza los scopes del vínculo vigente.
// @Tags caregivers
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body inviteRequest true "Cuidador y scopes"
// @Success 201 {object} linkResponse
// @Failure 400 {string} string "invalid json / scope desconocido"
// @Failure 401 {string} string "unauthorized"
// @Router /caregivers [post]
func inviteHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req inviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.CaregiverUserID) == "" {
			http.Error(w, "caregiver_user_id required", http.StatusBadRequest)
			return
		}

		l, err := svc.Invite(r.Context(), InviteInput{
			PatientUserID:   claims.UserID,
			CaregiverUserID: req.CaregiverUserID,
			Scopes:          req.Scopes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toLinkResponse(l))
	}
}

// listMyCaregiversHandler godoc
// @Summary Listar mis cuidadores
// @Tags caregivers
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param status query string false "CSV de estados (invited,active,revoked)"
// @Success 200 {array} linkResponse
// @Failure 401 {string} string "unauthorized"
// @Router /caregivers [get]
func listMyCaregiversHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.ListByPatient(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, filterAndMap(items, parseStatusFilter(r.URL.Query().Get("status"))))
	}
}

// listMyPatientsHandler godoc
// @Summary Listar pacientes que me invitaron como cuidador
// @Tags caregivers
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param status query string false "CSV de estados (invited,active,revoked)"
// @Success 200 {array} linkResponse
// @Failure 401 {string} string "unauthorized"
// @Router /me/patients [get]
func listMyPatientsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.ListByCaregiver(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, filterAndMap(items, parseStatusFilter(r.URL.Query().Get("status"))))
	}
}

// acceptHandler godoc
// @Summary Aceptar una invitación de cuidador
// @Tags caregivers
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param linkID path string true "ID del vínculo"
// @Success 200 {object} linkResponse
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Failure 409 {string} string "invalid state"
// @Router /caregivers/{linkID}/accept [post]
func acceptHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		l, err := svc.Accept(r.Context(), chi.URLParam(r, "linkID"), claims.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toLinkResponse(l))
	}
}

// revokeHandler godoc
// @Summary Revocar un vínculo de cuidador
// @Description Solo el paciente puede revocar. Idempotente.
// @Tags caregivers
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param linkID path string true "ID del vínculo"
// @Success 200 {object} linkResponse
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Router /caregivers/{linkID}/revoke [post]
func revokeHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		l, err := svc.Revoke(r.Context(), chi.URLParam(r, "linkID"), claims.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toLinkResponse(l))
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrBadState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func filterAndMap(items []Link, allowed map[Status]struct{}) []linkResponse {
	out := make([]linkResponse, 0, len(items))
	for _, l := range items {
		if len(allowed) > 0 {
			if _, ok := allowed[l.Status]; !ok {
				continue
			}
		}
		out = append(out, toLinkResponse(l))
	}
	return out
}

func toLinkResponse(l Link) linkResponse {
	return linkResponse{
		ID:              l.ID,
		PatientUserID:   l.PatientUserID,
		CaregiverUserID: l.CaregiverUserID,
		Scopes:          l.Scopes,
		Status:          l.Status,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
		RevokedAt:       l.RevokedAt,
	}
}

func parseStatusFilter(raw string) map[Status]struct{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[Status]struct{}{}
	for _, p := range strings.Split(raw, ",") {
		if s := Status(strings.TrimSpace(p)); s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

// writeJSON se repite por módulo a propósito; cada paquete de dominio expone su propio HTTP.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
