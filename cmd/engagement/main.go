package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/PixelCrafter-ath/fit/internal/httpapi"
	"github.com/PixelCrafter-ath/fit/internal/server"
	"github.com/PixelCrafter-ath/fit/pkg/config"
	"github.com/PixelCrafter-ath/fit/pkg/db"
	"github.com/PixelCrafter-ath/fit/pkg/health"
	"github.com/PixelCrafter-ath/fit/pkg/logger"
	"github.com/PixelCrafter-ath/fit/pkg/redis"
	"github.com/PixelCrafter-ath/fit/pkg/secretmanager"
	"github.com/PixelCrafter-ath/fit/pkg/task"
	"github.com/PixelCrafter-ath/fit/services/bootstrap"
	"github.com/PixelCrafter-ath/fit/services/campaign"
	"github.com/PixelCrafter-ath/fit/services/checkin"
	"github.com/PixelCrafter-ath/fit/services/contact"
	"github.com/PixelCrafter-ath/fit/services/delivery"
	"github.com/PixelCrafter-ath/fit/services/report"
	"github.com/PixelCrafter-ath/fit/services/settings"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		health.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		contact.Module,
		checkin.Module,
		delivery.Module,
		settings.Module,
		// bootstrap precedes campaign so the schema is migrated before the
		// scheduler reads the settings row on start.
		bootstrap.Module,
		campaign.Module,
		report.Module,
		httpapi.Module,
		fx.Provide(server.ProvideHTTPServer),
		fx.Invoke(server.Run),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
