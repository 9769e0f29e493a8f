package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PixelCrafter-ath/fit/pkg/config"
	"github.com/PixelCrafter-ath/fit/pkg/errutil"
	"github.com/PixelCrafter-ath/fit/services/campaign"
	"github.com/PixelCrafter-ath/fit/services/checkin"
	"github.com/PixelCrafter-ath/fit/services/contact"
	"github.com/PixelCrafter-ath/fit/services/delivery"
	"github.com/PixelCrafter-ath/fit/services/settings"
)

// Service prepares the database schema and seeds the runtime settings row so
// the engagement passes have a consistent view on first boot.
type Service struct {
	db       *gorm.DB
	config   *config.Config
	settings *settings.Service
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Config   *config.Config
	Settings *settings.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		config:   p.Config,
		settings: p.Settings,
	}
}

func (s *Service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&contact.Contact{},
		&checkin.CheckInEvent{},
		&delivery.DeliveryAttempt{},
		&campaign.WeeklySummary{},
		&settings.Settings{},
	); err != nil {
		zap.L().Error("[bootstrap] schema migration failed", zap.Error(err))
		return errutil.Storage("schema migration failed", err)
	}

	// Get seeds the singleton settings row from config when absent.
	if _, err := s.settings.Get(ctx); err != nil {
		zap.L().Error("[bootstrap] failed to seed settings", zap.Error(err))
		return err
	}

	zap.L().Info("[bootstrap] schema ready")
	return nil
}
