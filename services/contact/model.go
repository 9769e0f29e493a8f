package contact

import (
	"time"
)

// Contact is owned by the CRUD surface; the engagement engine only mutates
// the streak fields and the last reminder marker.
type Contact struct {
	ID              string     `gorm:"column:id;primaryKey;type:char(26)" json:"id"`
	Name            string     `gorm:"column:name;type:varchar(100);not null" json:"name"`
	PhoneNumber     string     `gorm:"column:phone_number;uniqueIndex;type:varchar(32);not null" json:"phone_number"`
	Active          bool       `gorm:"column:active;default:true" json:"active"`
	ReminderEnabled bool       `gorm:"column:reminder_enabled;default:true" json:"reminder_enabled"`
	Language        string     `gorm:"column:language;type:varchar(8);default:'en'" json:"language"`
	UserType        string     `gorm:"column:user_type;type:varchar(20);default:'general'" json:"user_type"`
	LastReminderAt  *time.Time `gorm:"column:last_reminder_at" json:"last_reminder_at,omitempty"`
	CurrentStreak   int        `gorm:"column:current_streak;default:0" json:"current_streak"`
	LongestStreak   int        `gorm:"column:longest_streak;default:0" json:"longest_streak"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// LanguageCode maps the stored language tag to the provider locale.
func (c *Contact) LanguageCode() string {
	if c.Language == "hi" {
		return "hi_IN"
	}
	return "en_US"
}

// RemindedOn reports whether the last reminder marker falls on day in loc.
func (c *Contact) RemindedOn(day string, loc *time.Location) bool {
	if c.LastReminderAt == nil {
		return false
	}
	return c.LastReminderAt.In(loc).Format("2006-01-02") == day
}
