package notification

import (
	"context"
	"encoding/json"

	"github.com/dailytracker/offline-agent/internal/conf"
	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/observability"
)

// Forwarder delivers a displayed notification to an external target.
type Forwarder interface {
	Send(ctx context.Context, n *Notification) error
}

// Dispatcher turns push payloads into displayed notifications. Defaults come
// from configuration; a JSON payload overrides title/body/tag, and a payload
// of type "reminder" attaches reminder data for click handling. A payload
// that fails to parse is logged and the defaults are kept; push handling
// never surfaces a parse failure.
type Dispatcher struct {
	service    *Service
	defaults   conf.NotificationSettings
	forwarders []Forwarder
	log        logger.Logger
	metrics    *observability.NotificationMetrics
}

// NewDispatcher creates a push dispatcher over the given service.
func NewDispatcher(service *Service, defaults conf.NotificationSettings, log logger.Logger, metrics *observability.NotificationMetrics, forwarders ...Forwarder) *Dispatcher {
	return &Dispatcher{
		service:    service,
		defaults:   defaults,
		forwarders: forwarders,
		log:        log,
		metrics:    metrics,
	}
}

// HandlePush assembles and displays a notification for a push payload.
// It returns only after the display call has settled, so the caller can keep
// the triggering event alive until then.
func (d *Dispatcher) HandlePush(ctx context.Context, payload []byte) error {
	n := d.buildNotification(payload)
	if err := d.service.Display(ctx, n); err != nil {
		return err
	}
	for _, f := range d.forwarders {
		if err := f.Send(ctx, n); err != nil {
			if d.metrics != nil {
				d.metrics.RecordDeliverError()
			}
			d.log.Error("failed to forward notification",
				logger.String("id", n.ID),
				logger.Error(err))
		}
	}
	return nil
}

func (d *Dispatcher) buildNotification(payload []byte) *Notification {
	n := New(d.defaults.DefaultTitle, d.defaults.DefaultBody, d.defaults.DefaultTag).
		WithIcon(d.defaults.Icon).
		WithBadge(d.defaults.Badge).
		WithActions(
			Action{Action: ActionOpen, Title: "Open App"},
			Action{Action: ActionDismiss, Title: "Dismiss"},
		)

	if len(payload) == 0 {
		return n
	}

	var p PushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		if d.metrics != nil {
			d.metrics.RecordPayloadError()
		}
		d.log.Warn("malformed push payload, using defaults", logger.Error(err))
		return n
	}

	if p.Title != "" {
		n.Title = p.Title
	}
	if p.Body != "" {
		n.Body = p.Body
	}
	if p.Tag != "" {
		n.Tag = p.Tag
	}
	if p.Type == PayloadTypeReminder {
		action := p.Action
		if action == "" {
			action = ActionOpen
		}
		n.WithReminderData(p.ReminderID, action)
	}
	return n
}
