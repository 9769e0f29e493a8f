package campaign

import (
	"time"

	"gorm.io/datatypes"
)

// WeeklySummary is created once per (contact, week start) by the weekly pass
// and is immutable afterwards; re-generation for an already summarized week
// is rejected on the unique key.
type WeeklySummary struct {
	ID             string         `gorm:"column:id;primaryKey;type:char(26)" json:"id"`
	ContactID      string         `gorm:"column:contact_id;uniqueIndex:idx_contact_week;not null" json:"contact_id"`
	WeekStartDate  string         `gorm:"column:week_start_date;uniqueIndex:idx_contact_week;type:char(10);not null" json:"week_start_date"` // YYYY-MM-DD
	WeekEndDate    string         `gorm:"column:week_end_date;type:char(10);not null" json:"week_end_date"`
	ExpectedDays   int            `gorm:"column:expected_days;default:7" json:"expected_days"`
	DaysUpdated    int            `gorm:"column:days_updated;default:0" json:"days_updated"`
	DaysMissed     int            `gorm:"column:days_missed;default:0" json:"days_missed"`
	StreakSnapshot int            `gorm:"column:streak_snapshot;default:0" json:"streak_snapshot"`
	Payload        datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	GeneratedAt    time.Time      `gorm:"autoCreateTime" json:"generated_at"`
}

func (WeeklySummary) TableName() string {
	return "weekly_summaries"
}

// summaryPayload is the free-form payload stored alongside the counters.
type summaryPayload struct {
	WeekStart    string              `json:"week_start"`
	WeekEnd      string              `json:"week_end"`
	DailyUpdates []summaryDailyEntry `json:"daily_updates"`
}

type summaryDailyEntry struct {
	Date string `json:"date"`
	Text string `json:"text"`
}
