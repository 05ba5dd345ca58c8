package caregivers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"medication-adherence/internal/middleware"
)

var ErrUnauthorized = errors.New("unauthorized")

// Access es el resultado de resolver sobre qué paciente actúa un request.
type Access struct {
	PatientUserID string
	ActorUserID   string
}

// Delegated indica que quien actúa es un cuidador.
func (a Access) Delegated() bool {
	return a.PatientUserID != a.ActorUserID
}

// Subject resuelve el paciente de un request.
// Sin {patientID} en la ruta el paciente es el propio usuario; con él, se exige
// un vínculo activo con el scope pedido.
func Subject(r *http.Request, svc *Service, scope Scope) (Access, error) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		return Access{}, ErrUnauthorized
	}

	actor := strings.TrimSpace(claims.UserID)
	patient := strings.TrimSpace(chi.URLParam(r, "patientID"))
	if patient == "" || patient == actor {
		return Access{PatientUserID: actor, ActorUserID: actor}, nil
	}

	if err := svc.Authorize(r.Context(), patient, actor, scope); err != nil {
		return Access{}, ErrForbidden
	}
	return Access{PatientUserID: patient, ActorUserID: actor}, nil
}

// WriteAccessError traduce los errores de Subject a HTTP.
func WriteAccessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
