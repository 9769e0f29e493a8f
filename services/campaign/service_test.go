package campaign

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PixelCrafter-ath/fit/pkg/config"
	"github.com/PixelCrafter-ath/fit/services/checkin"
	"github.com/PixelCrafter-ath/fit/services/contact"
	"github.com/PixelCrafter-ath/fit/services/delivery"
	"github.com/PixelCrafter-ath/fit/services/settings"
	"github.com/PixelCrafter-ath/fit/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type sentMessage struct {
	Phone    string
	Template string
	Params   []string
}

// recordingSender captures every send. Safe for the concurrent pass workers.
type recordingSender struct {
	mu    sync.Mutex
	sends []sentMessage
}

func (r *recordingSender) Send(ctx context.Context, phone, template, language string, params []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, sentMessage{Phone: phone, Template: template, Params: params})
	return fmt.Sprintf("wamid.%d", len(r.sends)), nil
}

func (r *recordingSender) byTemplate(template string) []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentMessage
	for _, s := range r.sends {
		if s.Template == template {
			out = append(out, s)
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	contacts *contact.Service
	checkins *checkin.Service
	settings *settings.Service
	sender   *recordingSender
	db       *gorm.DB
	cfg      *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&contact.Contact{},
		&checkin.CheckInEvent{},
		&delivery.DeliveryAttempt{},
		&WeeklySummary{},
		&settings.Settings{},
	)
	node := testutil.NewTestNode(t)

	cfg := &config.Config{}
	cfg.Engagement.ReminderTime = "18:00"
	cfg.Engagement.Timezone = "UTC"
	cfg.Engagement.MilestoneInterval = 5
	cfg.Engagement.MaxRetries = 0
	cfg.Engagement.BaseRetryDelay = time.Millisecond
	cfg.Engagement.WeeklySummaryDay = "sunday"

	contacts := contact.NewService(contact.ServiceParams{DB: db, Node: node})
	settingsSvc := settings.NewService(settings.ServiceParams{DB: db, Config: cfg})
	checkins := checkin.NewService(checkin.ServiceParams{
		DB: db, Node: node, Contacts: contacts, Settings: settingsSvc, Config: cfg,
	})
	sender := &recordingSender{}
	pipeline := delivery.NewPipeline(delivery.PipelineParams{
		DB: db, Node: node, Sender: sender, Config: cfg, Settings: settingsSvc,
	})

	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Contacts: contacts,
		Checkins: checkins,
		Pipeline: pipeline,
		Settings: settingsSvc,
	})

	return &fixture{
		svc:      svc,
		contacts: contacts,
		checkins: checkins,
		settings: settingsSvc,
		sender:   sender,
		db:       db,
		cfg:      cfg,
	}
}

func (f *fixture) seedEvent(t *testing.T, c *contact.Contact, day string) {
	t.Helper()
	receivedAt, err := time.Parse("2006-01-02", day)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&checkin.CheckInEvent{
		ID:          fmt.Sprintf("evt-%s-%s", c.ID, day),
		ContactID:   c.ID,
		SenderPhone: c.PhoneNumber,
		EventDate:   day,
		ReceivedAt:  receivedAt.Add(12 * time.Hour),
		Kind:        checkin.KindText,
		Body:        "meal logged on " + day,
	}).Error)
}

func TestReminderPassSkipsCheckedInAndRunsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := time.Now().UTC().Format(dateLayout)

	checked, err := f.contacts.ResolveOrCreate(ctx, "+1000")
	require.NoError(t, err)
	missing, err := f.contacts.ResolveOrCreate(ctx, "+2000")
	require.NoError(t, err)

	f.seedEvent(t, checked, today)

	require.NoError(t, f.svc.RunReminderPass(ctx, today))
	require.NoError(t, f.svc.RunReminderPass(ctx, today))

	reminders := f.sender.byTemplate(delivery.TemplateDailyReminder)
	require.Len(t, reminders, 1)
	require.Equal(t, "+2000", reminders[0].Phone)

	got, err := f.contacts.Get(ctx, missing.ID)
	require.NoError(t, err)
	require.True(t, got.RemindedOn(today, time.UTC))
}

func TestReminderPassSkipsOptedOutContacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := time.Now().UTC().Format(dateLayout)

	c, err := f.contacts.ResolveOrCreate(ctx, "+1000")
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&contact.Contact{}).Where("id = ?", c.ID).
		Update("reminder_enabled", false).Error)

	require.NoError(t, f.svc.RunReminderPass(ctx, today))
	require.Empty(t, f.sender.byTemplate(delivery.TemplateDailyReminder))
}

func TestMotivationPassSendsOnMilestoneMultiple(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := time.Now().UTC().Format(dateLayout)

	onMilestone, err := f.contacts.ResolveOrCreate(ctx, "+1000")
	require.NoError(t, err)
	require.NoError(t, f.contacts.UpdateStreak(ctx, onMilestone.ID, 5, 5))

	offMilestone, err := f.contacts.ResolveOrCreate(ctx, "+2000")
	require.NoError(t, err)
	require.NoError(t, f.contacts.UpdateStreak(ctx, offMilestone.ID, 3, 3))

	require.NoError(t, f.svc.RunMotivationPass(ctx, today))

	sends := f.sender.byTemplate(delivery.TemplateStreakMotivation)
	require.Len(t, sends, 1)
	require.Equal(t, "+1000", sends[0].Phone)
	require.Equal(t, []string{"User 1000", "5"}, sends[0].Params)
}

func TestWeeklySummaryPassIsRerunSafe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.contacts.ResolveOrCreate(ctx, "+1000")
	require.NoError(t, err)

	weekStart := "2026-08-02" // a Sunday
	f.seedEvent(t, c, "2026-08-03")
	f.seedEvent(t, c, "2026-08-04")
	f.seedEvent(t, c, "2026-08-06")

	require.NoError(t, f.svc.RunWeeklySummaryPass(ctx, weekStart))
	require.NoError(t, f.svc.RunWeeklySummaryPass(ctx, weekStart))

	rows, err := f.svc.ListSummaries(ctx, SummaryFilter{ContactID: c.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, weekStart, rows[0].WeekStartDate)
	require.Equal(t, "2026-08-08", rows[0].WeekEndDate)
	require.Equal(t, 7, rows[0].ExpectedDays)
	require.Equal(t, 3, rows[0].DaysUpdated)
	require.Equal(t, 4, rows[0].DaysMissed)

	require.Len(t, f.sender.byTemplate(delivery.TemplateWeeklySummaryNotice), 1)
}

func TestAdminDigestPass(t *testing.T) {
	f := newFixture(t)
	f.cfg.Engagement.AdminPhone = "+19990000"
	f.cfg.Engagement.AdminName = "Coach"
	ctx := context.Background()
	today := time.Now().UTC().Format(dateLayout)

	c, err := f.contacts.ResolveOrCreate(ctx, "+1000")
	require.NoError(t, err)
	f.seedEvent(t, c, today)
	_, err = f.contacts.ResolveOrCreate(ctx, "+2000")
	require.NoError(t, err)

	// Opted out of reminders: outside the digest population even though a
	// check-in landed today.
	optedOut, err := f.contacts.ResolveOrCreate(ctx, "+3000")
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&contact.Contact{}).Where("id = ?", optedOut.ID).
		Update("reminder_enabled", false).Error)
	f.seedEvent(t, optedOut, today)

	require.NoError(t, f.svc.RunAdminDigestPass(ctx, today))

	digests := f.sender.byTemplate(delivery.TemplateAdminDigest)
	require.Len(t, digests, 1)
	require.Equal(t, "+19990000", digests[0].Phone)
	require.Equal(t, "Coach", digests[0].Params[0])
	require.Contains(t, digests[0].Params[1], "Total Active Users: 2")
	require.Contains(t, digests[0].Params[1], "Updated Today: 1")
	require.Contains(t, digests[0].Params[1], "Missed Today: 1")
}

func TestAdminDigestPassNoopWithoutAdminPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RunAdminDigestPass(ctx, time.Now().UTC().Format(dateLayout)))
	require.Empty(t, f.sender.sends)
}

func TestWeekStartFor(t *testing.T) {
	monday := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "2026-08-30", WeekStartFor(monday, time.Sunday))
	require.Equal(t, "2026-08-31", WeekStartFor(monday, time.Monday))
	require.Equal(t, "2026-08-25", WeekStartFor(monday, time.Tuesday))
}
