package settings

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/PixelCrafter-ath/fit/pkg/config"
	"github.com/PixelCrafter-ath/fit/pkg/errutil"
)

const singletonID = 1

// Listener is notified after a settings update has been persisted.
type Listener func(*Settings)

type Service struct {
	db  *gorm.DB
	cfg *config.Config

	mu        sync.Mutex
	listeners []Listener
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB, cfg: p.Config}
}

// Get returns the settings row, seeding it from config defaults on first use.
func (s *Service) Get(ctx context.Context) (*Settings, error) {
	var row Settings
	err := s.db.WithContext(ctx).Where("id = ?", singletonID).First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.Storage("failed to load settings", err)
	}

	e := s.cfg.Engagement
	row = Settings{
		ID:                singletonID,
		ReminderTime:      e.ReminderTime,
		ReminderTimezone:  e.Timezone,
		MilestoneInterval: e.MilestoneInterval,
		MaxRetries:        e.MaxRetries,
		WeeklySummaryDay:  strings.ToLower(e.WeeklySummaryDay),
		AdminPhone:        e.AdminPhone,
		AdminName:         e.AdminName,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, errutil.Storage("failed to seed settings", err)
	}
	return &row, nil
}

// Update validates and persists new settings. Malformed values are rejected
// here so the scheduler never observes them.
func (s *Service) Update(ctx context.Context, in *Settings) (*Settings, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	in.ID = current.ID
	if err := s.db.WithContext(ctx).Model(&Settings{}).
		Where("id = ?", current.ID).
		Updates(map[string]any{
			"reminder_time":      in.ReminderTime,
			"reminder_timezone":  in.ReminderTimezone,
			"milestone_interval": in.MilestoneInterval,
			"max_retries":        in.MaxRetries,
			"weekly_summary_day": strings.ToLower(in.WeeklySummaryDay),
			"admin_phone":        in.AdminPhone,
			"admin_name":         in.AdminName,
		}).Error; err != nil {
		return nil, errutil.Storage("failed to update settings", err)
	}

	updated, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	s.notify(updated)
	return updated, nil
}

// Subscribe registers a listener invoked after every successful Update. The
// scheduler uses this to re-register cron entries without a restart.
func (s *Service) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify(row *Settings) {
	s.mu.Lock()
	fns := make([]Listener, len(s.listeners))
	copy(fns, s.listeners)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(row)
	}
}

var validWeekdays = map[string]bool{
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

func validate(in *Settings) error {
	if _, err := time.Parse("15:04", in.ReminderTime); err != nil {
		return errutil.InvalidConfiguration("reminder time must be HH:MM", errutil.WithErr(err))
	}
	if _, err := time.LoadLocation(in.ReminderTimezone); err != nil {
		return errutil.InvalidConfiguration("unknown timezone "+in.ReminderTimezone, errutil.WithErr(err))
	}
	if in.MilestoneInterval <= 0 {
		return errutil.InvalidConfiguration("milestone interval must be positive")
	}
	if in.MaxRetries < 0 {
		return errutil.InvalidConfiguration("max retries must not be negative")
	}
	if !validWeekdays[strings.ToLower(in.WeeklySummaryDay)] {
		return errutil.InvalidConfiguration("unknown weekly summary day " + in.WeeklySummaryDay)
	}
	return nil
}
