package contact

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PixelCrafter-ath/fit/pkg/errutil"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	// locks serializes engine-side writes per contact so a concurrent ingest
	// and a reminder-eligibility write cannot lose updates.
	locks sync.Map // contact ID -> *sync.Mutex
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
	}
}

func (s *Service) lockFor(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ResolveOrCreate finds the contact for phone, creating a default-active one
// when the phone has never been seen. New contacts are named from the last
// four digits of the phone number.
func (s *Service) ResolveOrCreate(ctx context.Context, phone string) (*Contact, error) {
	var c Contact
	err := s.db.WithContext(ctx).Where("phone_number = ?", phone).First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.Storage("failed to look up contact", err)
	}

	suffix := phone
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}

	c = Contact{
		ID:              s.node.Generate().String(),
		Name:            "User " + suffix,
		PhoneNumber:     phone,
		Active:          true,
		ReminderEnabled: true,
		Language:        "en",
		UserType:        "general",
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		// Lost a race with a concurrent ingest for the same phone.
		var existing Contact
		if lookupErr := s.db.WithContext(ctx).Where("phone_number = ?", phone).First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, errutil.Storage("failed to create contact", err)
	}

	zap.L().Info("created new contact", zap.String("contact_id", c.ID), zap.String("phone", phone))
	return &c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Contact, error) {
	var c Contact
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.ContactNotFound("contact " + id + " does not exist")
		}
		return nil, errutil.Storage("failed to load contact", err)
	}
	return &c, nil
}

func (s *Service) ListActive(ctx context.Context) ([]*Contact, error) {
	var contacts []*Contact
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&contacts).Error; err != nil {
		return nil, errutil.Storage("failed to list active contacts", err)
	}
	return contacts, nil
}

func (s *Service) ListReminderEligible(ctx context.Context) ([]*Contact, error) {
	var contacts []*Contact
	if err := s.db.WithContext(ctx).
		Where("active = ? AND reminder_enabled = ?", true, true).
		Find(&contacts).Error; err != nil {
		return nil, errutil.Storage("failed to list reminder-eligible contacts", err)
	}
	return contacts, nil
}

// UpdateStreak persists a recomputed streak pair. The longest streak never
// decreases regardless of what the caller computed.
func (s *Service) UpdateStreak(ctx context.Context, id string, current, longest int) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if longest < c.LongestStreak {
		longest = c.LongestStreak
	}
	if longest < current {
		longest = current
	}

	if err := s.db.WithContext(ctx).Model(&Contact{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_streak": current,
			"longest_streak": longest,
		}).Error; err != nil {
		return errutil.Storage("failed to update streak", err)
	}
	return nil
}

// MarkReminded claims the single daily reminder slot for the contact. It
// returns false when a reminder was already recorded for day, which makes a
// re-run of the reminder pass a no-op for this contact.
func (s *Service) MarkReminded(ctx context.Context, id, day string, loc *time.Location) (bool, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	if c.RemindedOn(day, loc) {
		return false, nil
	}

	now := time.Now().In(loc)
	if err := s.db.WithContext(ctx).Model(&Contact{}).
		Where("id = ?", id).
		Update("last_reminder_at", now).Error; err != nil {
		return false, errutil.Storage("failed to mark contact reminded", err)
	}
	return true, nil
}
