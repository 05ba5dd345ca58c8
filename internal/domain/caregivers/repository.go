package caregivers

import "context"

type Repository interface {
	Create(ctx context.Context, l Link) error
	Update(ctx context.Context, l Link) error
	GetByID(ctx context.Context, id string) (Link, error)
	ListByPatient(ctx context.Context, patientUserID string) ([]Link, error)
	ListByCaregiver(ctx context.Context, caregiverUserID string) ([]Link, error)
	GetActiveLink(ctx context.Context, patientUserID, caregiverUserID string) (Link, error)
}
