// Package datastore persists notification history for the offline agent:
// every displayed notification and every user interaction with one. The
// interaction rows are the concrete landing place for dismissal analytics.
package datastore

import "time"

// NotificationRecord is one displayed notification.
type NotificationRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	NotificationID string    `gorm:"index;size:36" json:"notificationId"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Tag            string    `gorm:"index" json:"tag"`
	ReminderID     string    `json:"reminderId"`
	DisplayedAt    time.Time `gorm:"index" json:"displayedAt"`
}

// InteractionEvent is one click or close on a displayed notification.
type InteractionEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	NotificationID string    `gorm:"index;size:36" json:"notificationId"`
	Kind           string    `gorm:"size:16" json:"kind"`   // "click" or "close"
	Action         string    `gorm:"size:32" json:"action"` // "open", "dismiss", ""
	OccurredAt     time.Time `gorm:"index" json:"occurredAt"`
}
