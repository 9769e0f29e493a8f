package campaign

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/PixelCrafter-ath/fit/pkg/taskname"
	"github.com/PixelCrafter-ath/fit/services/settings"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *settings.Service, *fakeEnqueuer) {
	t.Helper()

	f := newFixture(t)
	enq := &fakeEnqueuer{}
	s := NewScheduler(SchedulerParams{
		Enqueuer: enq,
		Config:   f.cfg,
		Settings: f.settings,
	})
	t.Cleanup(func() {
		require.NoError(t, s.Stop(context.Background()))
	})
	return s, f.settings, enq
}

func TestSchedulerRegistersEntriesFromSettings(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	require.NoError(t, s.Start(context.Background()))
	require.Len(t, s.Entries(), 3)

	// Reminder entry fires at the seeded 18:00.
	base := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	next := s.Entries()[0].Schedule.Next(base)
	require.Equal(t, 18, next.Hour())
	require.Equal(t, 0, next.Minute())
}

func TestSchedulerReschedulesOnSettingsUpdate(t *testing.T) {
	s, settingsSvc, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))

	row, err := settingsSvc.Get(ctx)
	require.NoError(t, err)
	row.ReminderTime = "09:30"
	row.WeeklySummaryDay = "monday"
	_, err = settingsSvc.Update(ctx, row)
	require.NoError(t, err)

	entries := s.Entries()
	require.Len(t, entries, 3)

	base := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	next := entries[0].Schedule.Next(base)
	require.Equal(t, 9, next.Hour())
	require.Equal(t, 30, next.Minute())

	// Weekly boundary moved to Monday: 2026-08-31 is one, so the weekly
	// entry fires at the next Monday midnight.
	weekly := entries[1].Schedule.Next(base)
	require.Equal(t, time.Monday, weekly.Weekday())
}

func TestSchedulerEnqueuesReminderPassTask(t *testing.T) {
	s, _, enq := newTestScheduler(t)

	s.enqueueReminder()

	require.Len(t, enq.tasks, 1)
	require.Equal(t, taskname.CampaignReminder, enq.tasks[0].Type())
}
