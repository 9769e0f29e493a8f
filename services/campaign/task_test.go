package campaign

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PixelCrafter-ath/fit/pkg/taskname"
)

func TestNewDailyPassTask(t *testing.T) {
	task, opts := NewDailyPassTask(taskname.CampaignReminder, "2026-08-31")

	require.Equal(t, taskname.CampaignReminder, task.Type())
	require.NotEmpty(t, opts)

	var decoded DailyPassPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.Equal(t, "2026-08-31", decoded.Day)
}

func TestNewWeeklyPassTask(t *testing.T) {
	task, opts := NewWeeklyPassTask("2026-08-30")

	require.Equal(t, taskname.CampaignWeeklySummary, task.Type())
	require.NotEmpty(t, opts)

	var decoded WeeklyPassPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.Equal(t, "2026-08-30", decoded.WeekStart)
}

func TestCronSpecForTime(t *testing.T) {
	spec, err := cronSpecForTime("18:05")
	require.NoError(t, err)
	require.Equal(t, "5 18 * * *", spec)

	spec, err = cronSpecForTime("00:00")
	require.NoError(t, err)
	require.Equal(t, "0 0 * * *", spec)

	_, err = cronSpecForTime("25:00")
	require.Error(t, err)

	_, err = cronSpecForTime("6pm")
	require.Error(t, err)
}
