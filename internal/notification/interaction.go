package notification

import (
	"context"
	"net/url"
	"strings"

	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/observability"
)

// Window is an open application window the agent can message and focus.
// Implemented by the pages package.
type Window interface {
	ID() string
	URL() string
	PostMessage(msg any) error
	Focus() error
}

// WindowRegistry enumerates open windows (in connect order) and opens new
// ones.
type WindowRegistry interface {
	Windows() []Window
	OpenWindow(target string) error
}

// ClickMessage is posted to a focused window when a reminder notification
// is clicked.
type ClickMessage struct {
	Type       string  `json:"type"`
	Action     string  `json:"action"`
	ReminderID *string `json:"reminderId"`
}

const (
	clickMessageType   = "notification-click"
	clickMessageAction = "open-reminders"

	interactionClick = "click"
	interactionClose = "close"
)

// Interactor handles user interaction with displayed notifications.
type Interactor struct {
	service *Service
	windows WindowRegistry
	scope   string
	log     logger.Logger
	metrics *observability.NotificationMetrics
}

// NewInteractor creates an interaction handler. scope is the registration
// scope URL prefix windows must fall under to be focused.
func NewInteractor(service *Service, windows WindowRegistry, scope string, log logger.Logger, metrics *observability.NotificationMetrics) *Interactor {
	return &Interactor{
		service: service,
		windows: windows,
		scope:   scope,
		log:     log,
		metrics: metrics,
	}
}

// HandleClick processes a click on the notification with the given ID. The
// notification is closed first in every case. A dismiss click stops there;
// any other action focuses the first in-scope window (posting it the click
// message for reminder notifications) or opens a new one.
func (i *Interactor) HandleClick(ctx context.Context, id, action string) error {
	n, err := i.service.CloseRecord(id)
	if err != nil {
		return err
	}
	if i.metrics != nil {
		i.metrics.RecordClick(action)
	}
	i.service.RecordInteraction(ctx, id, interactionClick, action)

	if action == ActionDismiss {
		return nil
	}

	if w := i.matchWindow(); w != nil {
		if n.IsReminder() {
			msg := ClickMessage{
				Type:       clickMessageType,
				Action:     clickMessageAction,
				ReminderID: reminderIDOrNil(n),
			}
			if err := w.PostMessage(msg); err != nil {
				i.log.Error("failed to post click message to window",
					logger.String("window", w.ID()),
					logger.Error(err))
			}
		}
		if err := w.Focus(); err != nil {
			i.log.Error("failed to focus window",
				logger.String("window", w.ID()),
				logger.Error(err))
		}
		return nil
	}

	return i.windows.OpenWindow(i.openTarget(n))
}

// HandleClose removes the record for a dismissed notification. It is a
// deliberate no-op beyond bookkeeping; dismissal analytics would hang off
// the persisted interaction. It never fails.
func (i *Interactor) HandleClose(ctx context.Context, id string) {
	if _, err := i.service.CloseRecord(id); err != nil {
		// Already gone; nothing to do.
		return
	}
	i.service.RecordInteraction(ctx, id, interactionClose, "")
}

// matchWindow returns the first open window whose URL falls under the
// registration scope, or nil. A page that reported the bare origin with no
// trailing slash is the scope root and matches too.
func (i *Interactor) matchWindow() Window {
	root := strings.TrimSuffix(i.scope, "/")
	for _, w := range i.windows.Windows() {
		if u := w.URL(); strings.HasPrefix(u, i.scope) || u == root {
			return w
		}
	}
	return nil
}

// openTarget builds the URL for a newly opened window: the scope root, plus
// reminder query parameters for reminder notifications.
func (i *Interactor) openTarget(n *Notification) string {
	target := strings.TrimSuffix(i.scope, "/") + "/"
	if !n.IsReminder() {
		return target
	}
	q := url.Values{}
	q.Set("open", "reminders")
	if n.Data.ReminderID != "" {
		q.Set("reminder", n.Data.ReminderID)
	}
	return target + "?" + q.Encode()
}

func reminderIDOrNil(n *Notification) *string {
	if n.Data == nil || n.Data.ReminderID == "" {
		return nil
	}
	id := n.Data.ReminderID
	return &id
}
