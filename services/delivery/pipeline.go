package delivery

import (
	"context"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PixelCrafter-ath/fit/pkg/config"
	"github.com/PixelCrafter-ath/fit/pkg/errutil"
	"github.com/PixelCrafter-ath/fit/services/settings"
)

// Pipeline sends one templated message with bounded retries and a durable
// audit row per logical send. Safe for concurrent use: every Deliver call
// owns its own audit row, retries of a single message are sequential.
type Pipeline struct {
	db       *gorm.DB
	node     *snowflake.Node
	sender   Sender
	settings *settings.Service

	// maxRetries is the config seed, used when the settings row cannot be
	// read. The live value comes from settings at every Deliver.
	maxRetries int
	baseDelay  time.Duration

	// sleep is context-aware so shutdown can interrupt a backoff wait.
	// Overridden in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

type PipelineParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Sender   Sender
	Config   *config.Config
	Settings *settings.Service
}

func NewPipeline(p PipelineParams) *Pipeline {
	return &Pipeline{
		db:         p.DB,
		node:       p.Node,
		sender:     p.Sender,
		settings:   p.Settings,
		maxRetries: p.Config.Engagement.MaxRetries,
		baseDelay:  p.Config.Engagement.BaseRetryDelay,
		sleep:      sleepContext,
	}
}

// retryBudget resolves max retries from the settings row so an admin edit
// takes effect on the next delivery without a restart.
func (p *Pipeline) retryBudget(ctx context.Context) int {
	if p.settings == nil {
		return p.maxRetries
	}
	row, err := p.settings.Get(ctx)
	if err != nil {
		zap.L().Warn("settings unavailable, using configured max retries", zap.Error(err))
		return p.maxRetries
	}
	return row.MaxRetries
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Request struct {
	Phone     string
	Template  string
	Language  string
	Params    []string
	ContactID string
	Day       string // day bucket, YYYY-MM-DD
}

// Outcome is the structured result of a delivery. A failed delivery is a
// value, not an error: the pipeline never lets a send failure escape.
type Outcome struct {
	Delivered         bool
	Attempts          int
	AttemptID         string
	ProviderMessageID string
	Err               error
}

// Deliver writes a pending audit row, then sends with exponential backoff:
// baseDelay * 3^(n-1) between failures, so 5s/15s/45s at the defaults. On
// exhaustion the row stays failed with maxRetries+1 attempts recorded.
func (p *Pipeline) Deliver(ctx context.Context, req Request) Outcome {
	maxRetries := p.retryBudget(ctx)
	row := &DeliveryAttempt{
		ID:         p.node.Generate().String(),
		Phone:      req.Phone,
		Template:   req.Template,
		Language:   req.Language,
		DayBucket:  req.Day,
		Status:     StatusPending,
		MaxRetries: maxRetries,
		ContactID:  req.ContactID,
	}
	if err := p.db.WithContext(ctx).Create(row).Error; err != nil {
		return Outcome{Err: errutil.Storage("failed to create audit row", err)}
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		providerID, err := p.sender.Send(ctx, req.Phone, req.Template, req.Language, req.Params)
		if err == nil {
			if uerr := p.update(ctx, row.ID, map[string]any{
				"status":              StatusSent,
				"attempts":            attempt,
				"provider_message_id": providerID,
			}); uerr != nil {
				zap.L().Error("audit row not advanced to sent", zap.String("attempt_id", row.ID), zap.Error(uerr))
			}
			return Outcome{
				Delivered:         true,
				Attempts:          attempt,
				AttemptID:         row.ID,
				ProviderMessageID: providerID,
			}
		}

		lastErr = err
		if uerr := p.update(ctx, row.ID, map[string]any{
			"status":     StatusFailed,
			"attempts":   attempt,
			"last_error": err.Error(),
		}); uerr != nil {
			zap.L().Error("audit row not advanced to failed", zap.String("attempt_id", row.ID), zap.Error(uerr))
		}

		if attempt > maxRetries {
			break
		}

		delay := time.Duration(float64(p.baseDelay) * math.Pow(3, float64(attempt-1)))
		zap.L().Warn("send failed, retrying",
			zap.String("phone", req.Phone),
			zap.String("template", req.Template),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := p.sleep(ctx, delay); err != nil {
			// Shutdown or caller cancellation: leave the row failed with the
			// attempts made so far.
			return Outcome{
				Attempts:  attempt,
				AttemptID: row.ID,
				Err:       errutil.DeliveryFailure("delivery interrupted", err),
			}
		}
	}

	zap.L().Error("delivery exhausted retries",
		zap.String("phone", req.Phone),
		zap.String("template", req.Template),
		zap.Int("attempts", maxRetries+1),
		zap.Error(lastErr),
	)

	return Outcome{
		Attempts:  maxRetries + 1,
		AttemptID: row.ID,
		Err:       errutil.DeliveryFailure("delivery failed after retries", lastErr),
	}
}

func (p *Pipeline) update(ctx context.Context, id string, fields map[string]any) error {
	return p.db.WithContext(ctx).Model(&DeliveryAttempt{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// MarkProviderStatus advances a sent row when the provider reports a
// delivery or read receipt. Unknown provider ids are ignored: receipts can
// arrive for messages sent before this engine existed.
func (p *Pipeline) MarkProviderStatus(ctx context.Context, providerMessageID, status string) error {
	if status != StatusDelivered && status != StatusRead {
		return nil
	}
	err := p.db.WithContext(ctx).Model(&DeliveryAttempt{}).
		Where("provider_message_id = ? AND status IN ?", providerMessageID, []string{StatusSent, StatusDelivered}).
		Update("status", status).Error
	if err != nil {
		return errutil.Storage("failed to record provider status", err)
	}
	return nil
}

// Stats are the day-level aggregates the admin digest reports.
type Stats struct {
	Total     int64
	Succeeded int64
}

// SuccessRate returns percentage of attempts for (day, template) that
// reached sent or better.
func (p *Pipeline) SuccessRate(ctx context.Context, day, template string) (int, error) {
	stats, err := p.StatsFor(ctx, day, template)
	if err != nil {
		return 0, err
	}
	if stats.Total == 0 {
		return 0, nil
	}
	return int(math.Round(float64(stats.Succeeded) / float64(stats.Total) * 100)), nil
}

func (p *Pipeline) StatsFor(ctx context.Context, day, template string) (*Stats, error) {
	var stats Stats

	q := p.db.WithContext(ctx).Model(&DeliveryAttempt{}).Where("day_bucket = ?", day)
	if template != "" {
		q = q.Where("template = ?", template)
	}

	if err := q.Count(&stats.Total).Error; err != nil {
		return nil, errutil.Storage("failed to count delivery attempts", err)
	}

	q = p.db.WithContext(ctx).Model(&DeliveryAttempt{}).
		Where("day_bucket = ? AND status IN ?", day, []string{StatusSent, StatusDelivered, StatusRead})
	if template != "" {
		q = q.Where("template = ?", template)
	}
	if err := q.Count(&stats.Succeeded).Error; err != nil {
		return nil, errutil.Storage("failed to count successful deliveries", err)
	}

	return &stats, nil
}
