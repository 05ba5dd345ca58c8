package caregivers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medication-adherence/internal/middleware"
)

// -------------------------
// Test repo (in-memory)
// -------------------------

var errRepoNotFound = errors.New("repo: not found")

type testRepo struct {
	byID map[string]Link
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Link{}}
}

func (r *testRepo) Create(_ context.Context, l Link) error {
	if _, ok := r.byID[l.ID]; ok {
		return errors.New("repo: already exists")
	}
	r.byID[l.ID] = l
	return nil
}

func (r *testRepo) Update(_ context.Context, l Link) error {
	if _, ok := r.byID[l.ID]; !ok {
		return errRepoNotFound
	}
	r.byID[l.ID] = l
	return nil
}

func (r *testRepo) GetByID(_ context.Context, id string) (Link, error) {
	l, ok := r.byID[id]
	if !ok {
		return Link{}, errRepoNotFound
	}
	return l, nil
}

func (r *testRepo) ListByPatient(_ context.Context, patientUserID string) ([]Link, error) {
	var out []Link
	for _, l := range r.byID {
		if l.PatientUserID == patientUserID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *testRepo) ListByCaregiver(_ context.Context, caregiverUserID string) ([]Link, error) {
	var out []Link
	for _, l := range r.byID {
		if l.CaregiverUserID == caregiverUserID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *testRepo) GetActiveLink(_ context.Context, patientUserID, caregiverUserID string) (Link, error) {
	for _, l := range r.byID {
		if l.PatientUserID == patientUserID && l.CaregiverUserID == caregiverUserID && l.Status == StatusActive {
			return l, nil
		}
	}
	return Link{}, errRepoNotFound
}

func newTestService(now time.Time) (*Service, *testRepo) {
	repo := newTestRepo()
	svc := NewService(repo)
	svc.now = func() time.Time { return now }
	return svc, repo
}

// -------------------------
// Tests
// -------------------------

func TestService_Invite_DefaultScope(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(now)

	l, err := svc.Invite(context.Background(), InviteInput{PatientUserID: "pat-1", CaregiverUserID: "cg-1"})
	require.NoError(t, err)

	assert.Equal(t, StatusInvited, l.Status)
	assert.Equal(t, []Scope{ScopeScheduleRead}, l.Scopes)
	assert.Equal(t, now, l.CreatedAt)
}

func TestService_Invite_RejectsUnknownScopeAndSelf(t *testing.T) {
	svc, _ := newTestService(time.Now())

	_, err := svc.Invite(context.Background(), InviteInput{
		PatientUserID: "pat-1", CaregiverUserID: "cg-1",
		Scopes: []Scope{ScopeDosesLog, "regimens:delete"},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Invite(context.Background(), InviteInput{PatientUserID: "pat-1", CaregiverUserID: "pat-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_Invite_DedupUpdatesScopes(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, repo := newTestService(now)

	first, err := svc.Invite(context.Background(), InviteInput{PatientUserID: "pat-1", CaregiverUserID: "cg-1"})
	require.NoError(t, err)

	svc.now = func() time.Time { return now.Add(time.Minute) }
	second, err := svc.Invite(context.Background(), InviteInput{
		PatientUserID: "pat-1", CaregiverUserID: "cg-1",
		Scopes: []Scope{ScopeScheduleRead, ScopeDosesLog, ScopeDosesLog},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []Scope{ScopeScheduleRead, ScopeDosesLog}, second.Scopes)
	assert.Len(t, repo.byID, 1)
}

func TestService_AcceptAndRevoke(t *testing.T) {
	svc, _ := newTestService(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	l, err := svc.Invite(ctx, InviteInput{PatientUserID: "pat-1", CaregiverUserID: "cg-1"})
	require.NoError(t, err)

	_, err = svc.Accept(ctx, l.ID, "someone-else")
	assert.ErrorIs(t, err, ErrForbidden)

	accepted, err := svc.Accept(ctx, l.ID, "cg-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, accepted.Status)

	again, err := svc.Accept(ctx, l.ID, "cg-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, again.Status)

	_, err = svc.Revoke(ctx, l.ID, "cg-1")
	assert.ErrorIs(t, err, ErrForbidden)

	revoked, err := svc.Revoke(ctx, l.ID, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)

	_, err = svc.Accept(ctx, l.ID, "cg-1")
	assert.ErrorIs(t, err, ErrBadState)
}

func TestService_Accept_LeavesOnlyOneActive(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, repo := newTestService(now)
	ctx := context.Background()

	for i, id := range []string{"l1", "l2"} {
		ts := now.Add(time.Duration(i-2) * time.Minute)
		require.NoError(t, repo.Create(ctx, Link{
			ID: id, PatientUserID: "pat-1", CaregiverUserID: "cg-1",
			Scopes: []Scope{ScopeScheduleRead}, Status: StatusActive,
			CreatedAt: ts, UpdatedAt: ts,
		}))
	}
	require.NoError(t, repo.Create(ctx, Link{
		ID: "l3", PatientUserID: "pat-1", CaregiverUserID: "cg-1",
		Scopes: []Scope{ScopeScheduleRead}, Status: StatusInvited,
		CreatedAt: now, UpdatedAt: now,
	}))

	_, err := svc.Accept(ctx, "l3", "cg-1")
	require.NoError(t, err)

	active := 0
	for _, l := range repo.byID {
		if l.Status == StatusActive {
			active++
			assert.Equal(t, "l3", l.ID)
		}
	}
	assert.Equal(t, 1, active)
}

func TestService_Authorize(t *testing.T) {
	svc, _ := newTestService(time.Now())
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, "pat-1", "pat-1", ScopeDosesLog))
	assert.ErrorIs(t, svc.Authorize(ctx, "pat-1", "cg-1", ScopeScheduleRead), ErrForbidden)

	l, err := svc.Invite(ctx, InviteInput{PatientUserID: "pat-1", CaregiverUserID: "cg-1"})
	require.NoError(t, err)

	// invitado todavía no habilita nada
	assert.ErrorIs(t, svc.Authorize(ctx, "pat-1", "cg-1", ScopeScheduleRead), ErrForbidden)

	_, err = svc.Accept(ctx, l.ID, "cg-1")
	require.NoError(t, err)

	assert.NoError(t, svc.Authorize(ctx, "pat-1", "cg-1", ScopeScheduleRead))
	assert.ErrorIs(t, svc.Authorize(ctx, "pat-1", "cg-1", ScopeDosesLog), ErrForbidden)
}

func TestSubject(t *testing.T) {
	svc, _ := newTestService(time.Now())
	ctx := context.Background()
	l, err := svc.Invite(ctx, InviteInput{PatientUserID: "pat-1", CaregiverUserID: "cg-1"})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, l.ID, "cg-1")
	require.NoError(t, err)

	var got Access
	r := chi.NewRouter()
	r.Use(middleware.AuthContext(nil))
	h := func(w http.ResponseWriter, req *http.Request) {
		a, err := Subject(req, svc, ScopeScheduleRead)
		if err != nil {
			WriteAccessError(w, err)
			return
		}
		got = a
		w.WriteHeader(http.StatusNoContent)
	}
	r.Get("/schedule", h)
	r.Get("/patients/{patientID}/schedule", h)

	call := func(path, user string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if user != "" {
			req.Header.Set("X-Debug-User-ID", user)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, call("/schedule", ""))

	require.Equal(t, http.StatusNoContent, call("/schedule", "pat-1"))
	assert.False(t, got.Delegated())

	require.Equal(t, http.StatusNoContent, call("/patients/pat-1/schedule", "cg-1"))
	assert.True(t, got.Delegated())
	assert.Equal(t, "pat-1", got.PatientUserID)

	assert.Equal(t, http.StatusForbidden, call("/patients/pat-2/schedule", "cg-1"))
}
