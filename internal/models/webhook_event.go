package models

import "time"

// WebhookEvent records every processor delivery with a uniqueness
// constraint on (provider, event_id). Redelivered events hit the
// constraint and are acknowledged without being reprocessed.
type WebhookEvent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Provider    string     `gorm:"not null;uniqueIndex:ux_webhook_events_provider_event,priority:1" json:"provider"`
	EventID     string     `gorm:"not null;uniqueIndex:ux_webhook_events_provider_event,priority:2" json:"eventId"`
	EventType   string     `gorm:"not null;index" json:"eventType"`
	Payload     string     `gorm:"type:text" json:"-"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}
