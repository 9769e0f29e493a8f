package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/PixelCrafter-ath/fit/pkg/config"
	"github.com/PixelCrafter-ath/fit/pkg/errutil"
	"github.com/PixelCrafter-ath/fit/pkg/health"
	"github.com/PixelCrafter-ath/fit/services/campaign"
	"github.com/PixelCrafter-ath/fit/services/checkin"
	"github.com/PixelCrafter-ath/fit/services/contact"
	"github.com/PixelCrafter-ath/fit/services/delivery"
	"github.com/PixelCrafter-ath/fit/services/report"
	"github.com/PixelCrafter-ath/fit/services/settings"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		ProvideRouter,
	),
)

type RouterParams struct {
	fx.In

	Config   *config.Config
	Health   health.HealthService
	Contacts *contact.Service
	Checkins *checkin.Service
	Pipeline *delivery.Pipeline
	Campaign *campaign.Service
	Report   *report.Service
	Settings *settings.Service
}

// ProvideRouter builds the gin engine with every public route mounted.
func ProvideRouter(p RouterParams) http.Handler {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	wh := &webhookHandler{
		cfg:      p.Config,
		checkins: p.Checkins,
		pipeline: p.Pipeline,
	}
	h := &apiHandler{
		contacts: p.Contacts,
		campaign: p.Campaign,
		report:   p.Report,
		settings: p.Settings,
	}

	api := r.Group("/api")
	{
		api.GET("/webhook", wh.Verify)
		api.POST("/webhook", wh.Receive)
		if p.Config.WhatsApp.Mock {
			api.POST("/webhook/test", wh.Test)
		}

		api.GET("/contacts", h.ListContacts)
		api.GET("/contacts/:id/history", h.ContactHistory)
		api.GET("/status/:date", h.StatusForDate)
		api.GET("/summaries", h.ListSummaries)
		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.UpdateSettings)
	}

	return r
}

// respondError maps service errors onto their HTTP shape.
func respondError(c *gin.Context, err error) {
	var be errutil.BaseError
	if errors.As(err, &be) {
		c.JSON(be.Code.HTTPStatus(), be)
		return
	}

	zap.L().Error("unhandled api error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
