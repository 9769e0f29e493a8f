package report

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PixelCrafter-ath/fit/pkg/config"
	"github.com/PixelCrafter-ath/fit/pkg/errutil"
	"github.com/PixelCrafter-ath/fit/services/checkin"
	"github.com/PixelCrafter-ath/fit/services/contact"
	"github.com/PixelCrafter-ath/fit/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc      *Service
	contacts *contact.Service
	db       *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &contact.Contact{}, &checkin.CheckInEvent{})
	node := testutil.NewTestNode(t)

	cfg := &config.Config{}
	cfg.Engagement.Timezone = "UTC"
	cfg.Engagement.MilestoneInterval = 5

	contacts := contact.NewService(contact.ServiceParams{DB: db, Node: node})
	checkins := checkin.NewService(checkin.ServiceParams{
		DB: db, Node: node, Contacts: contacts, Config: cfg,
	})
	svc := NewService(ServiceParams{Contacts: contacts, Checkins: checkins})

	return &fixture{svc: svc, contacts: contacts, db: db}
}

func (f *fixture) seedEvent(t *testing.T, c *contact.Contact, day, body string) {
	t.Helper()
	receivedAt, err := time.Parse(dateLayout, day)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&checkin.CheckInEvent{
		ID:          fmt.Sprintf("evt-%s-%s", c.ID, day),
		ContactID:   c.ID,
		SenderPhone: c.PhoneNumber,
		EventDate:   day,
		ReceivedAt:  receivedAt.Add(9 * time.Hour),
		Kind:        checkin.KindText,
		Body:        body,
	}).Error)
}

func TestStatusForDateSplitsContacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updated, err := f.contacts.ResolveOrCreate(ctx, "+1000")
	require.NoError(t, err)
	_, err = f.contacts.ResolveOrCreate(ctx, "+2000")
	require.NoError(t, err)

	f.seedEvent(t, updated, "2026-08-31", "breakfast done")

	status, err := f.svc.StatusForDate(ctx, "2026-08-31")
	require.NoError(t, err)
	require.Equal(t, 2, status.TotalContacts)
	require.Equal(t, 1, status.UpdatedCount)
	require.Equal(t, 1, status.MissedCount)
	require.Len(t, status.Received, 1)
	require.Equal(t, "+1000", status.Received[0].PhoneNumber)
	require.Len(t, status.NotReceived, 1)
	require.Equal(t, "+2000", status.NotReceived[0].PhoneNumber)
}

func TestStatusForDateRejectsMalformedDate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.StatusForDate(context.Background(), "31-08-2026")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusBadRequest))
}

func TestHistoryPerDayFlagsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.contacts.ResolveOrCreate(ctx, "+1000")
	require.NoError(t, err)
	f.seedEvent(t, c, "2026-08-25", "day one meals")
	f.seedEvent(t, c, "2026-08-27", "day three meals")

	h, err := f.svc.History(ctx, c.ID, "2026-08-25", "2026-08-28")
	require.NoError(t, err)
	require.Equal(t, c.ID, h.Contact.ID)
	require.Len(t, h.Days, 4)

	require.True(t, h.Days[0].Updated)
	require.Equal(t, "day one meals", h.Days[0].Message)
	require.False(t, h.Days[1].Updated)
	require.True(t, h.Days[2].Updated)
	require.False(t, h.Days[3].Updated)

	require.Equal(t, 4, h.Stats.TotalDays)
	require.Equal(t, 2, h.Stats.UpdatedDays)
	require.Equal(t, 2, h.Stats.MissedDays)
}

func TestHistoryUnknownContact(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.History(context.Background(), "missing", "2026-08-25", "2026-08-28")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusContactNotFound))
}

func TestHistoryRejectsInvertedRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.History(context.Background(), "anything", "2026-08-28", "2026-08-25")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusBadRequest))
}
