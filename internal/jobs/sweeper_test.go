package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "medication-adherence/internal/adapters/storage/memory"
	"medication-adherence/internal/domain/agenda"
	"medication-adherence/internal/domain/doselogs"
	"medication-adherence/internal/domain/regimens"
	"medication-adherence/internal/domain/schedule"
	"medication-adherence/internal/platform/metrics"
)

type ownerList []string

func (o ownerList) ListOwners(context.Context) ([]string, error) { return o, nil }

type missedMap map[string][]schedule.DoseSlot

func (m missedMap) Missed(_ context.Context, owner string, days int) ([]schedule.DoseSlot, error) {
	if days != sweepDays {
		return nil, errors.New("unexpected days")
	}
	slots, ok := m[owner]
	if !ok {
		return nil, errors.New("agenda down")
	}
	return slots, nil
}

type fakeLogger struct {
	calls []doselogs.LogInput
	fail  map[time.Time]error
}

func (f *fakeLogger) Log(_ context.Context, _ string, in doselogs.LogInput) (doselogs.LogResult, error) {
	f.calls = append(f.calls, in)
	if err := f.fail[in.ScheduledTime]; err != nil {
		return doselogs.LogResult{}, err
	}
	return doselogs.LogResult{Log: schedule.DoseLog{ID: "x", Status: in.Status}}, nil
}

var (
	at8  = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	at20 = time.Date(2025, 5, 1, 20, 0, 0, 0, time.UTC)
)

func TestSweeper_MarksVirtualSlotsOnly(t *testing.T) {
	agenda := missedMap{"user-1": {
		{RegimenID: "reg-1", ScheduledTime: at8, Status: schedule.SlotStatusPending, IsOverdue: true, MinutesLate: 600},
		{RegimenID: "reg-1", LogID: "log-1", ScheduledTime: at20, Status: schedule.SlotStatusMissed},
	}}
	doses := &fakeLogger{}
	sw := NewSweeper(ownerList{"user-1"}, agenda, doses, nil)

	rep, err := sw.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Owners: 1, Marked: 1}, rep)

	require.Len(t, doses.calls, 1)
	assert.Equal(t, schedule.DoseStatusMissed, doses.calls[0].Status)
	assert.Equal(t, schedule.LogSourceSweeper, doses.calls[0].Source)
	assert.True(t, at8.Equal(doses.calls[0].ScheduledTime))
}

func TestSweeper_AlreadyLoggedIsNotAFailure(t *testing.T) {
	agenda := missedMap{"user-1": {
		{RegimenID: "reg-1", ScheduledTime: at8, Status: schedule.SlotStatusPending, IsOverdue: true},
		{RegimenID: "reg-1", ScheduledTime: at20, Status: schedule.SlotStatusPending, IsOverdue: true},
	}}
	doses := &fakeLogger{fail: map[time.Time]error{at8: doselogs.ErrAlreadyLogged}}

	rep, err := NewSweeper(ownerList{"user-1"}, agenda, doses, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Marked)
	assert.Len(t, doses.calls, 2)
}

func TestSweeper_CloseCustomTimesGetTheirOwnMissedLog(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return time.Date(2025, 5, 2, 13, 0, 0, 0, time.UTC) }

	regRepo, doseRepo := mem.NewRegimenRepo(), mem.NewDoseLogRepo()
	regs := regimens.NewService(regRepo)
	rc := schedule.NewReconciler(schedule.DefaultOptions())
	doses := doselogs.NewService(doseRepo, regs, doselogs.Options{Reconciler: rc, Now: now})
	ag := agenda.NewService(regs, doseRepo, rc, agenda.Options{Now: now})

	reg, err := regs.Create(ctx, "user-1", regimens.CreateInput{
		MedicationName: "Insulina",
		Frequency:      schedule.FrequencyCustom,
		CustomSchedule: []schedule.CustomTime{{Time: "08:00"}, {Time: "08:20"}},
		StartDate:      time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = doses.Log(ctx, "user-1", doselogs.LogInput{
		RegimenID:     reg.ID,
		ScheduledTime: time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC),
		Status:        schedule.DoseStatusSkipped,
	})
	require.NoError(t, err)

	rep, err := NewSweeper(regs, ag, doses, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Marked, "08:20 is marked missed")

	missed, err := ag.Missed(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.False(t, missed[0].Virtual())
	assert.Equal(t, time.Date(2025, 5, 2, 8, 20, 0, 0, time.UTC), missed[0].ScheduledTime)

	again, err := NewSweeper(regs, ag, doses, nil).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Marked)
}

func TestSweeper_OwnerFailureDoesNotStopOthers(t *testing.T) {
	agenda := missedMap{"user-2": {
		{RegimenID: "reg-2", ScheduledTime: at8, Status: schedule.SlotStatusPending, IsOverdue: true},
	}}
	doses := &fakeLogger{}

	rep, err := NewSweeper(ownerList{"user-1", "user-2"}, agenda, doses, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user-1")
	assert.Equal(t, SweepReport{Owners: 2, Marked: 1, Failed: 1}, rep)
}

func TestScheduler_RunOnceRecordsMetrics(t *testing.T) {
	m := metrics.New()
	sw := NewSweeper(ownerList{}, missedMap{}, &fakeLogger{}, nil)

	s, err := NewScheduler("", time.UTC, sw, nil, m)
	require.NoError(t, err)
	s.RunOnce()

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "adherence_sweeper_runs_total" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestNewScheduler_RejectsBadSpec(t *testing.T) {
	sw := NewSweeper(ownerList{}, missedMap{}, &fakeLogger{}, nil)
	_, err := NewScheduler("not a cron spec", time.UTC, sw, nil, nil)
	assert.Error(t, err)
}
