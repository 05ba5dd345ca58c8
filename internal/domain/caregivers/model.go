package caregivers

import "time"

type Scope string

const (
	// Ver agenda, dosis perdidas, adherencia y regímenes del paciente.
	ScopeScheduleRead Scope = "schedule:read"
	// Registrar tomas en nombre del paciente.
	ScopeDosesLog Scope = "doses:log"
)

type Status string

const (
	StatusInvited Status = "invited"
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Link vincula un paciente con un cuidador.
type Link struct {
	ID string

	PatientUserID   string // quien comparte
	CaregiverUserID string

	Scopes []Scope
	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

func HasScope(l Link, scope Scope) bool {
	for _, s := range l.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
