package checkin

import (
	"time"

	"gorm.io/datatypes"
)

// Payload kinds for an inbound check-in. Presence is what counts: an
// unsupported kind is still credited as a check-in, only flagged as such.
const (
	KindText        = "text"
	KindMedia       = "media"
	KindUnsupported = "unsupported"
)

// CheckInEvent is the append-only record of one inbound message. Multiple
// same-day events collapse to one credited day for streak purposes, but every
// raw event is kept for history and heatmap views.
type CheckInEvent struct {
	ID          string         `gorm:"column:id;primaryKey;type:char(26)" json:"id"`
	ContactID   string         `gorm:"column:contact_id;index:idx_contact_date;not null" json:"contact_id"`
	SenderPhone string         `gorm:"column:sender_phone;index:idx_phone_received;type:varchar(32);not null" json:"sender_phone"`
	EventDate   string         `gorm:"column:event_date;index:idx_contact_date;type:char(10);not null" json:"event_date"` // YYYY-MM-DD
	ReceivedAt  time.Time      `gorm:"column:received_at;index:idx_phone_received;not null" json:"received_at"`
	Kind        string         `gorm:"column:kind;type:varchar(16);default:'text'" json:"kind"`
	Body        string         `gorm:"column:body;type:text" json:"body"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (CheckInEvent) TableName() string {
	return "check_in_events"
}
