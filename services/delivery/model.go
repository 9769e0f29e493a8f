package delivery

import (
	"time"
)

// Message templates known to the provider.
const (
	TemplateDailyReminder       = "DAILY_DIET_REMINDER"
	TemplateStreakMotivation    = "STREAK_MOTIVATION"
	TemplateWeeklySummaryNotice = "WEEKLY_SUMMARY_NOTICE"
	TemplateAdminDigest         = "DAILY_ADMIN_SUMMARY"
)

// Attempt statuses. pending -> {sent -> delivered|read} | failed
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// DeliveryAttempt is the audit row for one logical send. One row is created
// per Deliver call and advanced in place through retries; rows are never
// deleted.
type DeliveryAttempt struct {
	ID                string    `gorm:"column:id;primaryKey;type:char(26)" json:"id"`
	Phone             string    `gorm:"column:phone;index:idx_phone_created;type:varchar(32);not null" json:"phone"`
	Template          string    `gorm:"column:template;index;type:varchar(64);not null" json:"template"`
	Language          string    `gorm:"column:language;type:varchar(8);default:'en_US'" json:"language"`
	DayBucket         string    `gorm:"column:day_bucket;index;type:char(10);not null" json:"day_bucket"` // YYYY-MM-DD
	Status            string    `gorm:"column:status;index;type:varchar(16);default:'pending'" json:"status"`
	Attempts          int       `gorm:"column:attempts;default:0" json:"attempts"`
	MaxRetries        int       `gorm:"column:max_retries;default:3" json:"max_retries"`
	LastError         string    `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	ProviderMessageID string    `gorm:"column:provider_message_id;index;type:varchar(128)" json:"provider_message_id,omitempty"`
	ContactID         string    `gorm:"column:contact_id;index" json:"contact_id,omitempty"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index:idx_phone_created" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DeliveryAttempt) TableName() string {
	return "delivery_attempts"
}
