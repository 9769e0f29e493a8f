package settings

import (
	"strings"
	"time"
)

// Settings is the single runtime-editable engagement settings row. The CRUD
// surface writes it; the engagement engine reads it at pass setup.
type Settings struct {
	ID                int       `gorm:"column:id;primaryKey" json:"id"`
	ReminderTime      string    `gorm:"column:reminder_time;type:char(5);default:'18:00'" json:"reminder_time"` // HH:MM
	ReminderTimezone  string    `gorm:"column:reminder_timezone;type:varchar(64);default:'Asia/Kolkata'" json:"reminder_timezone"`
	MilestoneInterval int       `gorm:"column:milestone_interval;default:5" json:"milestone_interval"`
	MaxRetries        int       `gorm:"column:max_retries;default:3" json:"max_retries"`
	WeeklySummaryDay  string    `gorm:"column:weekly_summary_day;type:varchar(10);default:'sunday'" json:"weekly_summary_day"`
	AdminPhone        string    `gorm:"column:admin_phone;type:varchar(32)" json:"admin_phone,omitempty"`
	AdminName         string    `gorm:"column:admin_name;type:varchar(100)" json:"admin_name,omitempty"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Settings) TableName() string {
	return "settings"
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// SummaryWeekday returns the configured week boundary weekday.
func (s *Settings) SummaryWeekday() time.Weekday {
	return weekdays[strings.ToLower(s.WeeklySummaryDay)]
}
