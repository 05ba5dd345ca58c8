package caregivers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrBadState     = errors.New("invalid state")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

type InviteInput struct {
	PatientUserID   string
	CaregiverUserID string
	Scopes          []Scope
}

// Invite crea una invitación o, si ya hay un vínculo vigente con ese cuidador,
// le actualiza los scopes.
func (s *Service) Invite(ctx context.Context, in InviteInput) (Link, error) {
	patientID := strings.TrimSpace(in.PatientUserID)
	caregiverID := strings.TrimSpace(in.CaregiverUserID)

	if patientID == "" || caregiverID == "" || patientID == caregiverID {
		return Link{}, ErrInvalidInput
	}

	scopes := []Scope{ScopeScheduleRead}
	if len(in.Scopes) > 0 {
		var err error
		scopes, err = normalizeScopesStrict(in.Scopes)
		if err != nil {
			return Link{}, err
		}
		if len(scopes) == 0 {
			return Link{}, ErrInvalidInput
		}
	}

	now := s.now()

	existing, matches, err := s.findLatestMatch(ctx, patientID, caregiverID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Link{}, err
	}
	if err == nil && existing.Status != StatusRevoked {
		s.revokeOthers(ctx, existing.ID, matches, now)

		existing.Scopes = scopes
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, existing); err != nil {
			return Link{}, err
		}
		return existing, nil
	}

	l := Link{
		ID:              uuid.NewString(),
		PatientUserID:   patientID,
		CaregiverUserID: caregiverID,
		Scopes:          scopes,
		Status:          StatusInvited,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return Link{}, err
	}
	return l, nil
}

func (s *Service) Accept(ctx context.Context, linkID, caregiverUserID string) (Link, error) {
	linkID = strings.TrimSpace(linkID)
	caregiverUserID = strings.TrimSpace(caregiverUserID)
	if linkID == "" || caregiverUserID == "" {
		return Link{}, ErrInvalidInput
	}

	l, err := s.repo.GetByID(ctx, linkID)
	if err != nil {
		return Link{}, ErrNotFound
	}
	if l.CaregiverUserID != caregiverUserID {
		return Link{}, ErrForbidden
	}

	switch l.Status {
	case StatusActive:
		return l, nil
	case StatusInvited:
	default:
		return Link{}, ErrBadState
	}

	now := s.now()

	// Un único vínculo activo por (paciente, cuidador).
	if _, matches, err := s.findLatestMatch(ctx, l.PatientUserID, l.CaregiverUserID); err == nil {
		s.revokeOthers(ctx, l.ID, matches, now)
	}

	l.Status = StatusActive
	l.UpdatedAt = now
	if err := s.repo.Update(ctx, l); err != nil {
		return Link{}, err
	}
	return l, nil
}

func (s *Service) Revoke(ctx context.Context, linkID, patientUserID string) (Link, error) {
	linkID = strings.TrimSpace(linkID)
	patientUserID = strings.TrimSpace(patientUserID)
	if linkID == "" || patientUserID == "" {
		return Link{}, ErrInvalidInput
	}

	l, err := s.repo.GetByID(ctx, linkID)
	if err != nil {
		return Link{}, ErrNotFound
	}
	if l.PatientUserID != patientUserID {
		return Link{}, ErrForbidden
	}
	if l.Status == StatusRevoked {
		return l, nil
	}

	now := s.now()
	l.Status = StatusRevoked
	l.UpdatedAt = now
	l.RevokedAt = &now
	if err := s.repo.Update(ctx, l); err != nil {
		return Link{}, err
	}
	return l, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientUserID string) ([]Link, error) {
	patientUserID = strings.TrimSpace(patientUserID)
	if patientUserID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByPatient(ctx, patientUserID)
}

func (s *Service) ListByCaregiver(ctx context.Context, caregiverUserID string) ([]Link, error) {
	caregiverUserID = strings.TrimSpace(caregiverUserID)
	if caregiverUserID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByCaregiver(ctx, caregiverUserID)
}

// Authorize decide si actorID puede actuar sobre patientID con el scope dado.
// El propio paciente siempre puede.
func (s *Service) Authorize(ctx context.Context, patientUserID, actorUserID string, scope Scope) error {
	patientUserID = strings.TrimSpace(patientUserID)
	actorUserID = strings.TrimSpace(actorUserID)
	if patientUserID == "" || actorUserID == "" {
		return ErrInvalidInput
	}
	if patientUserID == actorUserID {
		return nil
	}

	l, err := s.repo.GetActiveLink(ctx, patientUserID, actorUserID)
	if err != nil {
		return ErrForbidden
	}
	if !HasScope(l, scope) {
		return ErrForbidden
	}
	return nil
}

func (s *Service) findLatestMatch(ctx context.Context, patientID, caregiverID string) (Link, []Link, error) {
	items, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return Link{}, nil, err
	}

	var (
		matches   []Link
		winner    Link
		hasWinner bool
	)
	for _, l := range items {
		if l.CaregiverUserID != caregiverID {
			continue
		}
		matches = append(matches, l)
		if !hasWinner || l.UpdatedAt.After(winner.UpdatedAt) {
			winner = l
			hasWinner = true
		}
	}
	if !hasWinner {
		return Link{}, matches, ErrNotFound
	}
	return winner, matches, nil
}

// revokeOthers es best-effort.
func (s *Service) revokeOthers(ctx context.Context, keepID string, matches []Link, now time.Time) {
	for _, l := range matches {
		if l.ID == keepID || l.Status == StatusRevoked {
			continue
		}
		l.Status = StatusRevoked
		l.UpdatedAt = now
		l.RevokedAt = &now
		_ = s.repo.Update(ctx, l)
	}
}

func normalizeScopesStrict(in []Scope) ([]Scope, error) {
	seen := map[Scope]struct{}{}
	out := make([]Scope, 0, len(in))

	for _, raw := range in {
		sc := Scope(strings.TrimSpace(string(raw)))
		if sc == "" {
			continue
		}
		if sc != ScopeScheduleRead && sc != ScopeDosesLog {
			return nil, ErrInvalidInput
		}
		if _, ok := seen[sc]; ok {
			continue
		}
		seen[sc] = struct{}{}
		out = append(out, sc)
	}
	return out, nil
}
