package doselogs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medication-adherence/internal/domain/schedule"
	"medication-adherence/internal/ports/rewards"
)

type testRepo struct {
	mu   sync.Mutex
	logs []schedule.DoseLog
}

func (r *testRepo) Create(_ context.Context, l schedule.DoseLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, l)
	return nil
}

func (r *testRepo) GetByID(_ context.Context, id string) (schedule.DoseLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if l.ID == id {
			return l, nil
		}
	}
	return schedule.DoseLog{}, errors.New("not found")
}

func (r *testRepo) List(_ context.Context, owner string, f ListFilter) ([]schedule.DoseLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schedule.DoseLog
	for _, l := range r.logs {
		if l.OwnerUserID != owner {
			continue
		}
		if f.RegimenID != "" && l.RegimenID != f.RegimenID {
			continue
		}
		if f.From != nil && l.ScheduledTime.Before(*f.From) {
			continue
		}
		if f.To != nil && l.ScheduledTime.After(*f.To) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type regimenMap map[string]schedule.Regimen

func (m regimenMap) GetByID(_ context.Context, id string) (schedule.Regimen, error) {
	r, ok := m[id]
	if !ok {
		return schedule.Regimen{}, ErrRegimenNotFound
	}
	return r, nil
}

type brokenRegimens struct{ err error }

func (b brokenRegimens) GetByID(context.Context, string) (schedule.Regimen, error) {
	return schedule.Regimen{}, b.err
}

type recordingNotifier struct {
	events []rewards.DoseEvent
	err    error
}

func (n *recordingNotifier) DoseLogged(_ context.Context, ev rewards.DoseEvent) error {
	n.events = append(n.events, ev)
	return n.err
}

var (
	startDay    = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	scheduledAt = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T, now time.Time, n rewards.Notifier) (*Service, *testRepo) {
	t.Helper()
	repo := &testRepo{}
	regs := regimenMap{
		"reg-1": {ID: "reg-1", OwnerUserID: "user-1", Frequency: schedule.FrequencyOnceDaily, StartDate: startDay, IsActive: true},
		"reg-2": {ID: "reg-2", OwnerUserID: "user-2", Frequency: schedule.FrequencyOnceDaily, StartDate: startDay, IsActive: true},
		"reg-close": {
			ID: "reg-close", OwnerUserID: "user-1", Frequency: schedule.FrequencyCustom, StartDate: startDay, IsActive: true,
			CustomSchedule: []schedule.CustomTime{{Time: "08:00"}, {Time: "08:20"}},
		},
	}
	svc := NewService(repo, regs, Options{Policy: schedule.DefaultLatePolicy(), Rewards: n})
	svc.now = func() time.Time { return now }
	return svc, repo
}

func TestLog_LateGateBoundaries(t *testing.T) {
	cases := []struct {
		name       string
		lateBy     time.Duration
		wantStatus schedule.DoseStatus
		wantDec    schedule.LateDecision
		wantLate   bool
	}{
		{"early", -10 * time.Minute, schedule.DoseStatusTaken, schedule.LateAllow, false},
		{"on time edge", 60 * time.Minute, schedule.DoseStatusTaken, schedule.LateAllow, false},
		{"just late", 61 * time.Minute, schedule.DoseStatusTaken, schedule.LateWarn, true},
		{"window edge", 240 * time.Minute, schedule.DoseStatusTaken, schedule.LateWarn, true},
		{"window edge plus seconds", 240*time.Minute + 59*time.Second, schedule.DoseStatusTaken, schedule.LateWarn, true},
		{"past window", 241 * time.Minute, schedule.DoseStatusMissed, schedule.LateForceMissed, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newTestService(t, scheduledAt.Add(tc.lateBy), nil)

			res, err := svc.Log(context.Background(), "user-1", LogInput{
				RegimenID:     "reg-1",
				ScheduledTime: scheduledAt,
				Status:        schedule.DoseStatusTaken,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, res.Log.Status)
			assert.Equal(t, tc.wantDec, res.Verdict.Decision)
			assert.Equal(t, tc.wantLate, res.Verdict.TakenLate)
			assert.Equal(t, tc.wantDec == schedule.LateForceMissed, res.Forced())
		})
	}
}

func TestLog_ForceMissedPersistsWithoutActualTime(t *testing.T) {
	n := &recordingNotifier{}
	svc, repo := newTestService(t, scheduledAt.Add(5*time.Hour), n)

	res, err := svc.Log(context.Background(), "user-1", LogInput{
		RegimenID:     "reg-1",
		ScheduledTime: scheduledAt,
		Status:        schedule.DoseStatusTaken,
	})
	require.NoError(t, err)
	assert.Equal(t, 300, res.Verdict.MinutesLate)

	stored, err := repo.GetByID(context.Background(), res.Log.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.DoseStatusMissed, stored.Status)
	assert.Nil(t, stored.ActualTime)
	assert.Empty(t, n.events, "missed doses are not rewarded")
}

func TestLog_TakenDefaultsActualToNow(t *testing.T) {
	now := scheduledAt.Add(5 * time.Minute)
	svc, _ := newTestService(t, now, nil)

	res, err := svc.Log(context.Background(), "user-1", LogInput{
		RegimenID:     "reg-1",
		ScheduledTime: scheduledAt.Add(30 * time.Second),
		Status:        schedule.DoseStatusTaken,
		SideEffects:   []string{" nausea ", ""},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Log.ActualTime)
	assert.True(t, now.Equal(*res.Log.ActualTime))
	assert.True(t, scheduledAt.Equal(res.Log.ScheduledTime), "scheduled time truncated to the minute")
	assert.Equal(t, []string{"nausea"}, res.Log.SideEffects)
	assert.Equal(t, schedule.LogSourceManual, res.Log.Source)
}

func TestLog_RejectsFutureActualTime(t *testing.T) {
	svc, _ := newTestService(t, scheduledAt, nil)
	future := scheduledAt.Add(10 * time.Minute)

	_, err := svc.Log(context.Background(), "user-1", LogInput{
		RegimenID:     "reg-1",
		ScheduledTime: scheduledAt,
		Status:        schedule.DoseStatusTaken,
		ActualTime:    &future,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLog_Validation(t *testing.T) {
	svc, _ := newTestService(t, scheduledAt, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		owner string
		in    LogInput
		want  error
	}{
		{"missing regimen", "user-1", LogInput{ScheduledTime: scheduledAt, Status: schedule.DoseStatusTaken}, ErrInvalidInput},
		{"missing time", "user-1", LogInput{RegimenID: "reg-1", Status: schedule.DoseStatusTaken}, ErrInvalidInput},
		{"bad status", "user-1", LogInput{RegimenID: "reg-1", ScheduledTime: scheduledAt, Status: "late"}, ErrInvalidInput},
		{"bad effectiveness", "user-1", LogInput{RegimenID: "reg-1", ScheduledTime: scheduledAt, Status: schedule.DoseStatusSkipped, Effectiveness: 6}, ErrInvalidInput},
		{"unknown regimen", "user-1", LogInput{RegimenID: "nope", ScheduledTime: scheduledAt, Status: schedule.DoseStatusSkipped}, ErrRegimenNotFound},
		{"foreign regimen", "user-1", LogInput{RegimenID: "reg-2", ScheduledTime: scheduledAt, Status: schedule.DoseStatusSkipped}, ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Log(ctx, tc.owner, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLog_DuplicateWithinTolerance(t *testing.T) {
	svc, _ := newTestService(t, scheduledAt.Add(10*time.Minute), nil)
	ctx := context.Background()

	_, err := svc.Log(ctx, "user-1", LogInput{RegimenID: "reg-1", ScheduledTime: scheduledAt, Status: schedule.DoseStatusTaken})
	require.NoError(t, err)

	_, err = svc.Log(ctx, "user-1", LogInput{RegimenID: "reg-1", ScheduledTime: scheduledAt.Add(30 * time.Minute), Status: schedule.DoseStatusSkipped})
	assert.ErrorIs(t, err, ErrAlreadyLogged)

	_, err = svc.Log(ctx, "user-1", LogInput{RegimenID: "reg-1", ScheduledTime: scheduledAt.Add(31 * time.Minute), Status: schedule.DoseStatusSkipped})
	assert.NoError(t, err, "outside the match tolerance is a different slot")
}

func TestLog_CloseCustomTimesAreDistinctSlots(t *testing.T) {
	svc, repo := newTestService(t, scheduledAt.Add(30*time.Minute), nil)
	ctx := context.Background()
	at0820 := scheduledAt.Add(20 * time.Minute)

	_, err := svc.Log(ctx, "user-1", LogInput{RegimenID: "reg-close", ScheduledTime: scheduledAt, Status: schedule.DoseStatusTaken})
	require.NoError(t, err)

	res, err := svc.Log(ctx, "user-1", LogInput{RegimenID: "reg-close", ScheduledTime: at0820, Status: schedule.DoseStatusTaken})
	require.NoError(t, err, "08:20 is its own slot")
	assert.Equal(t, schedule.DoseStatusTaken, res.Log.Status)

	// 08:15 cae en el slot de 08:20, que ya está registrado.
	_, err = svc.Log(ctx, "user-1", LogInput{RegimenID: "reg-close", ScheduledTime: scheduledAt.Add(15 * time.Minute), Status: schedule.DoseStatusSkipped})
	assert.ErrorIs(t, err, ErrAlreadyLogged)
	_, err = svc.Log(ctx, "user-1", LogInput{RegimenID: "reg-close", ScheduledTime: scheduledAt, Status: schedule.DoseStatusSkipped})
	assert.ErrorIs(t, err, ErrAlreadyLogged)

	assert.Len(t, repo.logs, 2)
}

func TestLog_RegimenStoreErrorIsNotNotFound(t *testing.T) {
	outage := errors.New("connection refused")
	svc := NewService(&testRepo{}, brokenRegimens{err: outage}, Options{Policy: schedule.DefaultLatePolicy()})

	_, err := svc.Log(context.Background(), "user-1", LogInput{RegimenID: "reg-1", ScheduledTime: scheduledAt, Status: schedule.DoseStatusSkipped})
	require.Error(t, err)
	assert.ErrorIs(t, err, outage)
	assert.NotErrorIs(t, err, ErrRegimenNotFound)
}

func TestLog_RewardsNotifiedBestEffort(t *testing.T) {
	n := &recordingNotifier{err: errors.New("points down")}
	svc, repo := newTestService(t, scheduledAt.Add(90*time.Minute), n)

	res, err := svc.Log(context.Background(), "user-1", LogInput{RegimenID: "reg-1", ScheduledTime: scheduledAt, Status: schedule.DoseStatusTaken})
	require.NoError(t, err, "rewards failure must not fail the log")

	require.Len(t, n.events, 1)
	assert.Equal(t, res.Log.ID, n.events[0].DoseLogID)
	assert.Equal(t, 90, n.events[0].MinutesLate)
	assert.False(t, n.events[0].OnTime)

	_, err = repo.GetByID(context.Background(), res.Log.ID)
	assert.NoError(t, err)
}

func TestList_DefaultsAndRange(t *testing.T) {
	svc, _ := newTestService(t, scheduledAt.Add(72*time.Hour), nil)
	ctx := context.Background()

	for d := 0; d < 3; d++ {
		_, err := svc.Log(ctx, "user-1", LogInput{RegimenID: "reg-1", ScheduledTime: scheduledAt.Add(time.Duration(d) * 24 * time.Hour), Status: schedule.DoseStatusSkipped})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, "user-1", ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	from := scheduledAt.Add(24 * time.Hour)
	to := scheduledAt.Add(48 * time.Hour)
	some, err := svc.List(ctx, "user-1", ListFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, some, 2, "bounds are inclusive")

	_, err = svc.List(ctx, "user-1", ListFilter{From: &to, To: &from})
	assert.ErrorIs(t, err, ErrInvalidInput)

	none, err := svc.List(ctx, "user-2", ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}
