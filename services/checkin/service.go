package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/PixelCrafter-ath/fit/pkg/config"
	"github.com/PixelCrafter-ath/fit/pkg/errutil"
	"github.com/PixelCrafter-ath/fit/pkg/rediskey"
	"github.com/PixelCrafter-ath/fit/services/contact"
	"github.com/PixelCrafter-ath/fit/services/settings"
)

const dedupTTL = 48 * time.Hour

// dedupStore is the slice of the redis client the dedup fast path needs.
// Satisfied by *redis.Client, replaced by a fake in tests.
type dedupStore interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	dedup    dedupStore
	contacts *contact.Service
	settings *settings.Service
	cfg      *config.Config
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Redis    *redis.Client `optional:"true"`
	Contacts *contact.Service
	Settings *settings.Service
	Config   *config.Config
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:       p.DB,
		node:     p.Node,
		contacts: p.Contacts,
		settings: p.Settings,
		cfg:      p.Config,
	}
	if p.Redis != nil {
		s.dedup = p.Redis
	}
	return s
}

type IngestRequest struct {
	Phone      string
	Type       string // raw provider message type
	Body       string
	ReceivedAt time.Time
	Raw        []byte // opaque provider payload, stored as-is
}

type IngestResult struct {
	Duplicate bool
	Milestone bool
	Contact   *contact.Contact
	Event     *CheckInEvent
}

// classifyKind folds the provider message type into the stored payload kind.
func classifyKind(msgType string) (kind, placeholder string) {
	switch msgType {
	case "text":
		return KindText, ""
	case "image", "document", "video", "audio", "sticker":
		return KindMedia, fmt.Sprintf("[%s received]", msgType)
	default:
		return KindUnsupported, fmt.Sprintf("[%s message received]", msgType)
	}
}

// Ingest records one inbound message with at-least-once transport semantics:
// the same (phone, timestamp) delivered twice yields exactly one event and
// one streak update. Milestone says whether this check-in landed the streak
// on a configured multiple; the campaign scheduler consumes it, nothing is
// sent from here.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	dup, err := s.isDuplicate(ctx, req.Phone, req.ReceivedAt)
	if err != nil {
		return nil, err
	}
	if dup {
		zap.L().Info("duplicate check-in discarded",
			zap.String("phone", req.Phone),
			zap.Time("received_at", req.ReceivedAt),
		)
		return &IngestResult{Duplicate: true}, nil
	}

	c, err := s.contacts.ResolveOrCreate(ctx, req.Phone)
	if err != nil {
		s.releaseDedup(ctx, req.Phone, req.ReceivedAt)
		return nil, err
	}

	kind, placeholder := classifyKind(req.Type)
	body := req.Body
	if body == "" {
		body = placeholder
	}

	loc := s.cfg.Location()
	event := &CheckInEvent{
		ID:          s.node.Generate().String(),
		ContactID:   c.ID,
		SenderPhone: req.Phone,
		EventDate:   req.ReceivedAt.In(loc).Format(dateLayout),
		ReceivedAt:  req.ReceivedAt,
		Kind:        kind,
		Body:        body,
	}
	if len(req.Raw) > 0 {
		event.Payload = datatypes.JSON(req.Raw)
	}

	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		s.releaseDedup(ctx, req.Phone, req.ReceivedAt)
		return nil, errutil.Storage("failed to append check-in event", err)
	}

	milestone, err := s.recompute(ctx, c)
	if err != nil {
		return nil, err
	}

	zap.L().Info("check-in recorded",
		zap.String("contact_id", c.ID),
		zap.String("event_date", event.EventDate),
		zap.String("kind", kind),
		zap.Int("current_streak", c.CurrentStreak),
	)

	return &IngestResult{
		Contact:   c,
		Event:     event,
		Milestone: milestone,
	}, nil
}

// isDuplicate checks the redis fast path first, then the durable store.
// Redis being down only costs the fast path, never correctness. The SETNX
// claim is released whenever the message does not end up persisted, so a
// later redelivery is not misclassified as a duplicate.
func (s *Service) isDuplicate(ctx context.Context, phone string, receivedAt time.Time) (bool, error) {
	if s.dedup != nil {
		key := rediskey.BuildCheckinDedupKey(phone, receivedAt.Unix())
		set, err := s.dedup.SetNX(ctx, key, 1, dedupTTL).Result()
		if err == nil && !set {
			return true, nil
		}
		if err != nil {
			zap.L().Warn("dedup fast path unavailable", zap.Error(err))
		}
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&CheckInEvent{}).
		Where("sender_phone = ? AND received_at = ?", phone, receivedAt).
		Count(&n).Error; err != nil {
		s.releaseDedup(ctx, phone, receivedAt)
		return false, errutil.Storage("failed to check for duplicate event", err)
	}
	return n > 0, nil
}

// releaseDedup drops the SETNX claim after a failed ingest. Without this the
// key would shadow the lost message for the full TTL.
func (s *Service) releaseDedup(ctx context.Context, phone string, receivedAt time.Time) {
	if s.dedup == nil {
		return
	}
	key := rediskey.BuildCheckinDedupKey(phone, receivedAt.Unix())
	if err := s.dedup.Del(ctx, key).Err(); err != nil {
		zap.L().Warn("dedup claim not released", zap.String("key", key), zap.Error(err))
	}
}

// recompute refreshes the contact's streak fields from the full distinct
// date set and reports whether a milestone was crossed. The contact value is
// updated in place so callers see the fresh streak.
func (s *Service) recompute(ctx context.Context, c *contact.Contact) (bool, error) {
	dates, err := s.DistinctDates(ctx, c.ID)
	if err != nil {
		return false, err
	}

	today := time.Now().In(s.cfg.Location()).Format(dateLayout)
	current, longest := RecomputeStreak(dates, c.CurrentStreak, c.LongestStreak, today)

	if err := s.contacts.UpdateStreak(ctx, c.ID, current, longest); err != nil {
		return false, err
	}
	c.CurrentStreak = current
	c.LongestStreak = longest

	interval := s.milestoneInterval(ctx)
	return current > 0 && current%interval == 0, nil
}

// milestoneInterval reads the live interval from settings, keeping config as
// the fallback when the row cannot be loaded.
func (s *Service) milestoneInterval(ctx context.Context) int {
	if s.settings != nil {
		if row, err := s.settings.Get(ctx); err == nil && row.MilestoneInterval > 0 {
			return row.MilestoneInterval
		}
	}
	return s.cfg.Engagement.MilestoneInterval
}

// DistinctDates returns the distinct check-in dates for a contact, ascending.
func (s *Service) DistinctDates(ctx context.Context, contactID string) ([]string, error) {
	var dates []string
	if err := s.db.WithContext(ctx).Model(&CheckInEvent{}).
		Distinct("event_date").
		Where("contact_id = ?", contactID).
		Order("event_date ASC").
		Pluck("event_date", &dates).Error; err != nil {
		return nil, errutil.Storage("failed to load check-in dates", err)
	}
	return dates, nil
}

// DatesInRange returns the distinct check-in dates within [start, end].
func (s *Service) DatesInRange(ctx context.Context, contactID, start, end string) ([]string, error) {
	var dates []string
	if err := s.db.WithContext(ctx).Model(&CheckInEvent{}).
		Distinct("event_date").
		Where("contact_id = ? AND event_date >= ? AND event_date <= ?", contactID, start, end).
		Order("event_date ASC").
		Pluck("event_date", &dates).Error; err != nil {
		return nil, errutil.Storage("failed to load check-in dates in range", err)
	}
	return dates, nil
}

// EventsInRange returns the raw events within [start, end], ascending by date.
func (s *Service) EventsInRange(ctx context.Context, contactID, start, end string) ([]*CheckInEvent, error) {
	var events []*CheckInEvent
	if err := s.db.WithContext(ctx).
		Where("contact_id = ? AND event_date >= ? AND event_date <= ?", contactID, start, end).
		Order("event_date ASC").
		Find(&events).Error; err != nil {
		return nil, errutil.Storage("failed to load check-in events", err)
	}
	return events, nil
}

// PhonesWithEventOn returns the set of phones that checked in on day.
func (s *Service) PhonesWithEventOn(ctx context.Context, day string) (map[string]bool, error) {
	var phones []string
	if err := s.db.WithContext(ctx).Model(&CheckInEvent{}).
		Distinct("sender_phone").
		Where("event_date = ?", day).
		Pluck("sender_phone", &phones).Error; err != nil {
		return nil, errutil.Storage("failed to load check-ins for day", err)
	}

	set := make(map[string]bool, len(phones))
	for _, p := range phones {
		set[p] = true
	}
	return set, nil
}
