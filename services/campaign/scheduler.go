package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/PixelCrafter-ath/fit/pkg/config"
	"github.com/PixelCrafter-ath/fit/pkg/task"
	"github.com/PixelCrafter-ath/fit/pkg/taskname"
	"github.com/PixelCrafter-ath/fit/services/settings"
)

// Scheduler owns the periodic triggers for the campaign passes. Each trigger
// enqueues a pass task keyed to its period; the broker-side task ID dedup
// means a pass runs at most once per period and never overlaps itself.
//
// Entries are built from the settings row and re-registered whenever the row
// changes, so editing the reminder time or the weekly boundary takes effect
// without a restart. The timezone is fixed at startup: the cron runner is
// bound to one location for its lifetime.
type Scheduler struct {
	cron     *cron.Cron
	enq      task.Enqueuer
	cfg      *config.Config
	settings *settings.Service
	loc      *time.Location

	mu      sync.Mutex
	entries []cron.EntryID
	weekday time.Weekday
}

type SchedulerParams struct {
	fx.In

	Enqueuer task.Enqueuer
	Config   *config.Config
	Settings *settings.Service
}

func NewScheduler(p SchedulerParams) *Scheduler {
	loc := p.Config.Location()
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		enq:      p.Enqueuer,
		cfg:      p.Config,
		settings: p.Settings,
		loc:      loc,
		weekday:  p.Config.SummaryWeekday(),
	}
}

// Start registers the cron entries from the current settings row, subscribes
// to settings updates, and starts the runner.
func (s *Scheduler) Start(ctx context.Context) error {
	row, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	if err := s.apply(row); err != nil {
		return err
	}
	s.settings.Subscribe(func(row *settings.Settings) {
		if err := s.apply(row); err != nil {
			zap.L().Error("scheduler not rescheduled after settings update", zap.Error(err))
		}
	})
	s.cron.Start()

	zap.L().Info("campaign scheduler started",
		zap.String("reminder_time", row.ReminderTime),
		zap.String("weekly_day", row.WeeklySummaryDay),
		zap.String("timezone", s.loc.String()),
	)
	return nil
}

// Stop drains the cron runner, waiting for any running trigger.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	zap.L().Info("campaign scheduler stopped")
	return nil
}

// apply swaps the full entry set to match a settings row. New entries are
// added before old ones are removed so a trigger time is never unscheduled.
func (s *Scheduler) apply(row *settings.Settings) error {
	reminderSpec, err := cronSpecForTime(row.ReminderTime)
	if err != nil {
		return err
	}
	weeklySpec := fmt.Sprintf("0 0 * * %d", int(row.SummaryWeekday()))

	var next []cron.EntryID

	id, err := s.cron.AddFunc(reminderSpec, s.enqueueReminder)
	if err != nil {
		return fmt.Errorf("invalid reminder schedule: %w", err)
	}
	next = append(next, id)

	id, err = s.cron.AddFunc(weeklySpec, s.enqueueWeeklySummary)
	if err != nil {
		s.removeAll(next)
		return fmt.Errorf("invalid weekly schedule: %w", err)
	}
	next = append(next, id)

	id, err = s.cron.AddFunc("59 23 * * *", s.enqueueAdminDigest)
	if err != nil {
		s.removeAll(next)
		return fmt.Errorf("invalid digest schedule: %w", err)
	}
	next = append(next, id)

	s.mu.Lock()
	old := s.entries
	s.entries = next
	s.weekday = row.SummaryWeekday()
	s.mu.Unlock()

	s.removeAll(old)
	return nil
}

func (s *Scheduler) removeAll(ids []cron.EntryID) {
	for _, id := range ids {
		s.cron.Remove(id)
	}
}

// Entries returns the live cron entries, for inspection.
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.Lock()
	ids := make([]cron.EntryID, len(s.entries))
	copy(ids, s.entries)
	s.mu.Unlock()

	out := make([]cron.Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.cron.Entry(id))
	}
	return out
}

// cronSpecForTime turns an "HH:MM" wall-clock time into a daily cron spec.
func cronSpecForTime(hhmm string) (string, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", fmt.Errorf("reminder time must be HH:MM: %w", err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

func (s *Scheduler) enqueueReminder() {
	day := time.Now().In(s.loc).Format(dateLayout)
	t, opts := NewDailyPassTask(taskname.CampaignReminder, day)
	s.enqueue(t, opts)
}

func (s *Scheduler) enqueueWeeklySummary() {
	s.mu.Lock()
	weekday := s.weekday
	s.mu.Unlock()

	weekStart := WeekStartFor(time.Now().In(s.loc), weekday)
	t, opts := NewWeeklyPassTask(weekStart)
	s.enqueue(t, opts)
}

func (s *Scheduler) enqueueAdminDigest() {
	day := time.Now().In(s.loc).Format(dateLayout)
	t, opts := NewDailyPassTask(taskname.CampaignAdminDigest, day)
	s.enqueue(t, opts)
}

func (s *Scheduler) enqueue(t *asynq.Task, opts []asynq.Option) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.enq.EnqueueContext(ctx, t, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			zap.L().Info("pass already enqueued for this period", zap.String("task_type", t.Type()))
			return
		}
		zap.L().Error("failed to enqueue campaign pass", zap.String("task_type", t.Type()), zap.Error(err))
	}
}

// StartScheduler hooks the cron lifecycle into the fx application.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Stop,
	})
}
