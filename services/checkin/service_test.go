package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PixelCrafter-ath/fit/pkg/config"
	"github.com/PixelCrafter-ath/fit/pkg/rediskey"
	"github.com/PixelCrafter-ath/fit/services/contact"
	"github.com/PixelCrafter-ath/fit/services/settings"
	"github.com/PixelCrafter-ath/fit/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Engagement.Timezone = "UTC"
	cfg.Engagement.ReminderTime = "18:00"
	cfg.Engagement.MilestoneInterval = 5
	cfg.Engagement.WeeklySummaryDay = "sunday"
	return cfg
}

func newTestService(t *testing.T) (*Service, *contact.Service, *settings.Service) {
	t.Helper()

	db := testutil.NewTestDB(t, &contact.Contact{}, &CheckInEvent{}, &settings.Settings{})
	node := testutil.NewTestNode(t)
	cfg := testConfig()

	contacts := contact.NewService(contact.ServiceParams{DB: db, Node: node})
	settingsSvc := settings.NewService(settings.ServiceParams{DB: db, Config: cfg})
	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Contacts: contacts,
		Settings: settingsSvc,
		Config:   cfg,
	})
	return svc, contacts, settingsSvc
}

// fakeDedup stands in for the redis fast path.
type fakeDedup struct {
	claimed map[string]bool
	deleted []string
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{claimed: make(map[string]bool)}
}

func (f *fakeDedup) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	if f.claimed[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.claimed[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeDedup) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if f.claimed[k] {
			delete(f.claimed, k)
			n++
		}
		f.deleted = append(f.deleted, k)
	}
	return redis.NewIntResult(n, nil)
}

func TestIngestCreatesContactAndEvent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, IngestRequest{
		Phone:      "+911234567890",
		Type:       "text",
		Body:       "had oats for breakfast",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.NotNil(t, res.Contact)
	require.Equal(t, "User 7890", res.Contact.Name)
	require.Equal(t, 1, res.Contact.CurrentStreak)
	require.Equal(t, "had oats for breakfast", res.Event.Body)
	require.Equal(t, KindText, res.Event.Kind)
}

func TestIngestDuplicateYieldsOneEvent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	ts := time.Now().UTC().Truncate(time.Second)
	req := IngestRequest{
		Phone:      "+15551234",
		Type:       "text",
		Body:       "lunch done",
		ReceivedAt: ts,
	}

	first, err := svc.Ingest(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := svc.Ingest(ctx, req)
	require.NoError(t, err)
	require.True(t, second.Duplicate)

	dates, err := svc.DistinctDates(ctx, first.Contact.ID)
	require.NoError(t, err)
	require.Len(t, dates, 1)

	var n int64
	require.NoError(t, svc.db.Model(&CheckInEvent{}).Count(&n).Error)
	require.EqualValues(t, 1, n)
}

func TestIngestMediaMessageGetsPlaceholderBody(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, IngestRequest{
		Phone:      "+15550001",
		Type:       "image",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, KindMedia, res.Event.Kind)
	require.Equal(t, "[image received]", res.Event.Body)
}

func TestIngestMilestoneOnConfiguredMultiple(t *testing.T) {
	svc, contacts, _ := newTestService(t)
	ctx := context.Background()

	c, err := contacts.ResolveOrCreate(ctx, "+15559999")
	require.NoError(t, err)
	require.NoError(t, contacts.UpdateStreak(ctx, c.ID, 4, 4))

	res, err := svc.Ingest(ctx, IngestRequest{
		Phone:      "+15559999",
		Type:       "text",
		Body:       "dinner logged",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, res.Milestone)
	require.Equal(t, 5, res.Contact.CurrentStreak)
	require.Equal(t, 5, res.Contact.LongestStreak)
}

func TestIngestMilestoneIntervalFollowsSettings(t *testing.T) {
	svc, contacts, settingsSvc := newTestService(t)
	ctx := context.Background()

	row, err := settingsSvc.Get(ctx)
	require.NoError(t, err)
	row.MilestoneInterval = 3
	_, err = settingsSvc.Update(ctx, row)
	require.NoError(t, err)

	c, err := contacts.ResolveOrCreate(ctx, "+15558888")
	require.NoError(t, err)
	require.NoError(t, contacts.UpdateStreak(ctx, c.ID, 2, 2))

	res, err := svc.Ingest(ctx, IngestRequest{
		Phone:      "+15558888",
		Type:       "text",
		Body:       "walked 5k",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Contact.CurrentStreak)
	require.True(t, res.Milestone)
}

func TestIngestReleasesDedupClaimOnStorageFailure(t *testing.T) {
	// Contacts table deliberately missing so persistence fails after the
	// fast-path claim succeeds.
	db := testutil.NewTestDB(t, &CheckInEvent{}, &settings.Settings{})
	node := testutil.NewTestNode(t)
	cfg := testConfig()

	dedup := newFakeDedup()
	contacts := contact.NewService(contact.ServiceParams{DB: db, Node: node})
	settingsSvc := settings.NewService(settings.ServiceParams{DB: db, Config: cfg})
	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Contacts: contacts,
		Settings: settingsSvc,
		Config:   cfg,
	})
	svc.dedup = dedup

	ts := time.Now().UTC().Truncate(time.Second)
	_, err := svc.Ingest(context.Background(), IngestRequest{
		Phone:      "+15557777",
		Type:       "text",
		Body:       "yoga done",
		ReceivedAt: ts,
	})
	require.Error(t, err)

	key := rediskey.BuildCheckinDedupKey("+15557777", ts.Unix())
	require.Contains(t, dedup.deleted, key)
	require.False(t, dedup.claimed[key], "claim must be re-acquirable after a failed ingest")
}

func TestIngestDedupFastPathRejectsRedelivery(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.dedup = newFakeDedup()
	ctx := context.Background()

	ts := time.Now().UTC().Truncate(time.Second)
	req := IngestRequest{Phone: "+15556666", Type: "text", Body: "done", ReceivedAt: ts}

	first, err := svc.Ingest(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := svc.Ingest(ctx, req)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
}

func TestPhonesWithEventOn(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := svc.Ingest(ctx, IngestRequest{Phone: "+1000", Type: "text", Body: "a", ReceivedAt: now})
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, IngestRequest{Phone: "+2000", Type: "text", Body: "b", ReceivedAt: now.Add(time.Second)})
	require.NoError(t, err)

	today := now.Format(dateLayout)
	set, err := svc.PhonesWithEventOn(ctx, today)
	require.NoError(t, err)
	require.True(t, set["+1000"])
	require.True(t, set["+2000"])
	require.False(t, set["+3000"])
}
