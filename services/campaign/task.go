package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/PixelCrafter-ath/fit/pkg/taskname"
)

// DailyPassPayload drives the reminder and admin digest passes.
type DailyPassPayload struct {
	Day string `json:"day"` // YYYY-MM-DD in the reference timezone
}

// WeeklyPassPayload drives the weekly summary pass.
type WeeklyPassPayload struct {
	WeekStart string `json:"week_start"` // YYYY-MM-DD
}

// NewDailyPassTask builds a pass task whose TaskID pins it to one run per
// (pass, day): a scheduler restart that re-fires the trigger enqueues a
// duplicate that the broker rejects.
func NewDailyPassTask(taskType, day string) (*asynq.Task, []asynq.Option) {
	payload, _ := json.Marshal(DailyPassPayload{Day: day})
	return asynq.NewTask(taskType, payload), []asynq.Option{
		asynq.TaskID(fmt.Sprintf("%s:%s", taskType, day)),
		asynq.Queue("critical"),
		asynq.Retention(48 * time.Hour),
	}
}

func NewWeeklyPassTask(weekStart string) (*asynq.Task, []asynq.Option) {
	payload, _ := json.Marshal(WeeklyPassPayload{WeekStart: weekStart})
	return asynq.NewTask(taskname.CampaignWeeklySummary, payload), []asynq.Option{
		asynq.TaskID(fmt.Sprintf("%s:%s", taskname.CampaignWeeklySummary, weekStart)),
		asynq.Queue("default"),
		asynq.Retention(8 * 24 * time.Hour),
	}
}

func (s *Service) HandleReminderTask(ctx context.Context, t *asynq.Task) error {
	var payload DailyPassPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid reminder payload: %w", err)
	}

	zap.L().Info("running reminder pass", zap.String("day", payload.Day))
	if err := s.RunReminderPass(ctx, payload.Day); err != nil {
		zap.L().Error("reminder pass failed", zap.String("day", payload.Day), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) HandleWeeklySummaryTask(ctx context.Context, t *asynq.Task) error {
	var payload WeeklyPassPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid weekly summary payload: %w", err)
	}

	zap.L().Info("running weekly summary pass", zap.String("week_start", payload.WeekStart))
	if err := s.RunWeeklySummaryPass(ctx, payload.WeekStart); err != nil {
		zap.L().Error("weekly summary pass failed", zap.String("week_start", payload.WeekStart), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) HandleAdminDigestTask(ctx context.Context, t *asynq.Task) error {
	var payload DailyPassPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid admin digest payload: %w", err)
	}

	zap.L().Info("running admin digest pass", zap.String("day", payload.Day))
	if err := s.RunAdminDigestPass(ctx, payload.Day); err != nil {
		zap.L().Error("admin digest pass failed", zap.String("day", payload.Day), zap.Error(err))
		return err
	}
	return nil
}

// RegisterHandlers binds the pass handlers onto the worker mux.
func RegisterHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.CampaignReminder, svc.HandleReminderTask)
	mux.HandleFunc(taskname.CampaignWeeklySummary, svc.HandleWeeklySummaryTask)
	mux.HandleFunc(taskname.CampaignAdminDigest, svc.HandleAdminDigestTask)
}
