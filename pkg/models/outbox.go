package models

import "time"

// EventOutbox is a transactional row carrying one domain event for
// at-least-once delivery to external subscribers (spec §4.8, §6).
type EventOutbox struct {
	ID          string     `json:"id" gorm:"primaryKey;type:uuid"`
	EventType   string     `json:"event_type" gorm:"not null;index"`
	Payload     JSONMap    `json:"payload" gorm:"type:jsonb"`
	Destination string     `json:"destination" gorm:"not null;default:flow_events"`
	Priority    string     `json:"priority" gorm:"default:normal"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
	DeliveredAt *time.Time `json:"delivered_at" gorm:"index"`
	Attempts    int        `json:"attempts" gorm:"not null;default:0"`
	LastError   *string    `json:"last_error"`
}

func (EventOutbox) TableName() string { return "event_outbox" }
