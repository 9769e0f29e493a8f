package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/PixelCrafter-ath/fit/pkg/errutil"
	"github.com/PixelCrafter-ath/fit/services/checkin"
	"github.com/PixelCrafter-ath/fit/services/contact"
	"github.com/PixelCrafter-ath/fit/services/delivery"
	"github.com/PixelCrafter-ath/fit/services/settings"
)

const (
	dateLayout   = "2006-01-02"
	expectedDays = 7

	// Upper bound on concurrent deliveries inside one pass. Each delivery
	// owns its own audit row and contact fields, so they are independent.
	deliveryWorkers = 8
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	contacts *contact.Service
	checkins *checkin.Service
	pipeline *delivery.Pipeline
	settings *settings.Service
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Contacts *contact.Service
	Checkins *checkin.Service
	Pipeline *delivery.Pipeline
	Settings *settings.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		contacts: p.Contacts,
		checkins: p.Checkins,
		pipeline: p.Pipeline,
		settings: p.Settings,
	}
}

// RunReminderPass sends the daily reminder to every active, reminder-enabled
// contact that has not checked in on day and has not been reminded today.
// The reminded marker is claimed before dispatch: at most one reminder per
// contact per day, even across scheduler restarts, with delivery failures
// visible only in the audit log. Individual contact failures are logged and
// skipped, never aborting the pass. The motivation pass runs right after
// over the same contact scope.
func (s *Service) RunReminderPass(ctx context.Context, day string) error {
	start := time.Now()

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(cfg.ReminderTimezone)
	if err != nil {
		return errutil.InvalidConfiguration("settings timezone invalid", errutil.WithErr(err))
	}

	contacts, err := s.contacts.ListReminderEligible(ctx)
	if err != nil {
		return err
	}

	checked, err := s.checkins.PhonesWithEventOn(ctx, day)
	if err != nil {
		return err
	}

	zap.L().Info("reminder pass started",
		zap.String("day", day),
		zap.Int("eligible", len(contacts)),
		zap.Int("checked_in", len(checked)),
	)

	var reminded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deliveryWorkers)

	for _, c := range contacts {
		if checked[c.PhoneNumber] {
			continue
		}

		c := c
		g.Go(func() error {
			claimed, err := s.contacts.MarkReminded(gctx, c.ID, day, loc)
			if err != nil {
				zap.L().Error("could not claim reminder slot",
					zap.String("contact_id", c.ID), zap.Error(err))
				return nil
			}
			if !claimed {
				return nil
			}

			reminded.Add(1)
			outcome := s.pipeline.Deliver(gctx, delivery.Request{
				Phone:     c.PhoneNumber,
				Template:  delivery.TemplateDailyReminder,
				Language:  c.LanguageCode(),
				Params:    []string{c.Name},
				ContactID: c.ID,
				Day:       day,
			})
			if !outcome.Delivered {
				zap.L().Warn("reminder delivery failed",
					zap.String("contact_id", c.ID),
					zap.Int("attempts", outcome.Attempts),
					zap.Error(outcome.Err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("reminder pass finished",
		zap.String("day", day),
		zap.Int64("reminders_dispatched", reminded.Load()),
		zap.Duration("duration", time.Since(start)),
	)

	return s.RunMotivationPass(ctx, day)
}

// RunMotivationPass sends a motivation message to every eligible contact
// whose current streak sits exactly on a milestone multiple. There is no
// dedup beyond the milestone condition itself: a contact only qualifies on
// days its streak is at such a multiple.
func (s *Service) RunMotivationPass(ctx context.Context, day string) error {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}

	contacts, err := s.contacts.ListReminderEligible(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deliveryWorkers)

	var sent int
	for _, c := range contacts {
		if c.CurrentStreak <= 0 || c.CurrentStreak%cfg.MilestoneInterval != 0 {
			continue
		}

		c := c
		sent++
		g.Go(func() error {
			outcome := s.pipeline.Deliver(gctx, delivery.Request{
				Phone:     c.PhoneNumber,
				Template:  delivery.TemplateStreakMotivation,
				Language:  c.LanguageCode(),
				Params:    []string{c.Name, fmt.Sprintf("%d", c.CurrentStreak)},
				ContactID: c.ID,
				Day:       day,
			})
			if !outcome.Delivered {
				zap.L().Warn("motivation delivery failed",
					zap.String("contact_id", c.ID),
					zap.Int("streak", c.CurrentStreak),
					zap.Error(outcome.Err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	if sent > 0 {
		zap.L().Info("motivation pass finished", zap.String("day", day), zap.Int("sent", sent))
	}
	return nil
}

// RunWeeklySummaryPass creates one WeeklySummary per active contact for the
// week starting at weekStart and notifies the contact. Safely re-runnable:
// a week already summarized for a contact is skipped, not duplicated.
func (s *Service) RunWeeklySummaryPass(ctx context.Context, weekStart string) error {
	start, err := time.Parse(dateLayout, weekStart)
	if err != nil {
		return errutil.BadRequest("week start must be YYYY-MM-DD", errutil.WithErr(err))
	}
	weekEnd := start.AddDate(0, 0, expectedDays-1).Format(dateLayout)

	contacts, err := s.contacts.ListActive(ctx)
	if err != nil {
		return err
	}

	zap.L().Info("weekly summary pass started",
		zap.String("week_start", weekStart),
		zap.String("week_end", weekEnd),
		zap.Int("contacts", len(contacts)),
	)

	var created int
	for _, c := range contacts {
		ok, err := s.summarizeContact(ctx, c, weekStart, weekEnd)
		if err != nil {
			zap.L().Error("weekly summary failed for contact",
				zap.String("contact_id", c.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		created++

		outcome := s.pipeline.Deliver(ctx, delivery.Request{
			Phone:     c.PhoneNumber,
			Template:  delivery.TemplateWeeklySummaryNotice,
			Language:  c.LanguageCode(),
			Params:    []string{c.Name},
			ContactID: c.ID,
			Day:       weekEnd,
		})
		if !outcome.Delivered {
			zap.L().Warn("summary notice delivery failed",
				zap.String("contact_id", c.ID), zap.Error(outcome.Err))
		}
	}

	zap.L().Info("weekly summary pass finished",
		zap.String("week_start", weekStart),
		zap.Int("summaries_created", created),
	)
	return nil
}

// summarizeContact creates the summary row for one (contact, week). Returns
// false without error when the week was already summarized.
func (s *Service) summarizeContact(ctx context.Context, c *contact.Contact, weekStart, weekEnd string) (bool, error) {
	var existing int64
	if err := s.db.WithContext(ctx).Model(&WeeklySummary{}).
		Where("contact_id = ? AND week_start_date = ?", c.ID, weekStart).
		Count(&existing).Error; err != nil {
		return false, errutil.Storage("failed to check existing summary", err)
	}
	if existing > 0 {
		return false, nil
	}

	events, err := s.checkins.EventsInRange(ctx, c.ID, weekStart, weekEnd)
	if err != nil {
		return false, err
	}

	seen := make(map[string]bool)
	payload := summaryPayload{WeekStart: weekStart, WeekEnd: weekEnd}
	for _, e := range events {
		if seen[e.EventDate] {
			continue
		}
		seen[e.EventDate] = true
		payload.DailyUpdates = append(payload.DailyUpdates, summaryDailyEntry{
			Date: e.EventDate,
			Text: snippet(e.Body, 100),
		})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return false, errutil.Internal("failed to encode summary payload", err)
	}

	row := &WeeklySummary{
		ID:             s.node.Generate().String(),
		ContactID:      c.ID,
		WeekStartDate:  weekStart,
		WeekEndDate:    weekEnd,
		ExpectedDays:   expectedDays,
		DaysUpdated:    len(seen),
		DaysMissed:     expectedDays - len(seen),
		StreakSnapshot: c.CurrentStreak,
		Payload:        datatypes.JSON(raw),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		// A concurrent run won the unique key; the week is summarized.
		var n int64
		if countErr := s.db.WithContext(ctx).Model(&WeeklySummary{}).
			Where("contact_id = ? AND week_start_date = ?", c.ID, weekStart).
			Count(&n).Error; countErr == nil && n > 0 {
			return false, nil
		}
		return false, errutil.Storage("failed to create weekly summary", err)
	}
	return true, nil
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// RunAdminDigestPass aggregates the day's updated/missed counts and reminder
// success rate and sends a single digest to the configured admin. Without an
// admin destination the pass is a no-op.
func (s *Service) RunAdminDigestPass(ctx context.Context, day string) error {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	if cfg.AdminPhone == "" {
		zap.L().Info("admin phone not configured, skipping digest", zap.String("day", day))
		return nil
	}

	// The digest population is the reminder audience: opted-out contacts
	// neither receive reminders nor count as missed.
	eligible, err := s.contacts.ListReminderEligible(ctx)
	if err != nil {
		return err
	}

	checked, err := s.checkins.PhonesWithEventOn(ctx, day)
	if err != nil {
		return err
	}

	total := int64(len(eligible))
	var updated int64
	for _, c := range eligible {
		if checked[c.PhoneNumber] {
			updated++
		}
	}
	missed := total - updated

	rate, err := s.pipeline.SuccessRate(ctx, day, delivery.TemplateDailyReminder)
	if err != nil {
		return err
	}

	body := fmt.Sprintf(
		"Daily Summary - %s | Total Active Users: %d | Updated Today: %d | Missed Today: %d | Reminder Success Rate: %d%%",
		day, total, updated, missed, rate,
	)

	adminName := cfg.AdminName
	if adminName == "" {
		adminName = "Admin"
	}

	outcome := s.pipeline.Deliver(ctx, delivery.Request{
		Phone:    cfg.AdminPhone,
		Template: delivery.TemplateAdminDigest,
		Language: "en_US",
		Params:   []string{adminName, body},
		Day:      day,
	})
	if !outcome.Delivered {
		zap.L().Warn("admin digest delivery failed", zap.String("day", day), zap.Error(outcome.Err))
	}
	return nil
}

// SummaryFilter narrows ListSummaries.
type SummaryFilter struct {
	ContactID string
	WeekStart string
}

func (s *Service) ListSummaries(ctx context.Context, f SummaryFilter) ([]*WeeklySummary, error) {
	q := s.db.WithContext(ctx).Model(&WeeklySummary{})
	if f.ContactID != "" {
		q = q.Where("contact_id = ?", f.ContactID)
	}
	if f.WeekStart != "" {
		q = q.Where("week_start_date = ?", f.WeekStart)
	}

	var rows []*WeeklySummary
	if err := q.Order("week_start_date DESC").Find(&rows).Error; err != nil {
		return nil, errutil.Storage("failed to list weekly summaries", err)
	}
	return rows, nil
}

// WeekStartFor returns the date of the most recent boundary weekday on or
// before t.
func WeekStartFor(t time.Time, boundary time.Weekday) string {
	delta := (int(t.Weekday()) - int(boundary) + 7) % 7
	return t.AddDate(0, 0, -delta).Format(dateLayout)
}
