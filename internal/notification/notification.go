// Package notification implements the push-notification side of the offline
// agent: payload parsing, notification records, display fan-out to
// subscribers and external notifiers, and user-interaction handling.
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Well-known action identifiers carried on notification buttons and clicks.
const (
	ActionOpen    = "open"
	ActionDismiss = "dismiss"
)

// PayloadTypeReminder marks a push payload as a reminder, which attaches
// reminder data to the displayed notification for later click handling.
const PayloadTypeReminder = "reminder"

// Action is a button rendered on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Data is the opaque payload attached to a reminder notification at display
// time and read back when the user interacts with it.
type Data struct {
	Type       string `json:"type"`
	ReminderID string `json:"reminderId"`
	Action     string `json:"action"`
}

// Notification is a displayed (or displayable) notification record.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tag       string    `json:"tag"`
	Icon      string    `json:"icon,omitempty"`
	Badge     string    `json:"badge,omitempty"`
	Actions   []Action  `json:"actions,omitempty"`
	Data      *Data     `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a notification with a fresh ID and the current timestamp.
func New(title, body, tag string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		Tag:       tag,
		Timestamp: time.Now(),
	}
}

// WithIcon sets the icon reference.
func (n *Notification) WithIcon(icon string) *Notification {
	n.Icon = icon
	return n
}

// WithBadge sets the badge reference.
func (n *Notification) WithBadge(badge string) *Notification {
	n.Badge = badge
	return n
}

// WithActions sets the notification buttons.
func (n *Notification) WithActions(actions ...Action) *Notification {
	n.Actions = actions
	return n
}

// WithReminderData attaches reminder data for click handling.
func (n *Notification) WithReminderData(reminderID, action string) *Notification {
	n.Data = &Data{Type: PayloadTypeReminder, ReminderID: reminderID, Action: action}
	return n
}

// IsReminder reports whether the notification carries reminder data.
func (n *Notification) IsReminder() bool {
	return n.Data != nil && n.Data.Type == PayloadTypeReminder
}

// Clone returns a deep copy, safe to marshal while the original is mutated.
func (n *Notification) Clone() *Notification {
	c := *n
	if n.Actions != nil {
		c.Actions = append([]Action(nil), n.Actions...)
	}
	if n.Data != nil {
		data := *n.Data
		c.Data = &data
	}
	return &c
}

// PushPayload is the optional JSON body of a push event. All fields are
// optional; absent fields keep the configured defaults.
type PushPayload struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	Tag        string `json:"tag"`
	Type       string `json:"type"`
	ReminderID string `json:"reminderId"`
	Action     string `json:"action"`
}
