package agent

import (
	"context"

	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/pages"
)

// Message types recognized from controlled pages.
const (
	MessageScheduleReminder = "schedule-reminder"
	MessageCancelReminder   = "cancel-reminder"
	MessageUpdateCache      = "update-cache"
)

// routeMessage dispatches one page message by type. schedule-reminder and
// cancel-reminder are stubs for the reminder-scheduling subsystem that does
// not exist yet; they log and take no further action. Unrecognized types are
// logged and ignored, never an error.
func (a *Agent) routeMessage(ctx context.Context, msg pages.Message) error {
	if a.metrics != nil {
		a.metrics.RecordRouted(msg.Type)
	}
	switch msg.Type {
	case MessageScheduleReminder:
		// TODO(reminders): wire up once the scheduling subsystem lands.
		a.log.Info("schedule-reminder received, scheduling not implemented",
			logger.String("data", string(msg.Data)))
		return nil
	case MessageCancelReminder:
		a.log.Info("cancel-reminder received, scheduling not implemented",
			logger.String("data", string(msg.Data)))
		return nil
	case MessageUpdateCache:
		a.log.Info("update-cache requested")
		return a.lifecycle.Precache(ctx)
	default:
		a.log.Warn("ignoring unknown message type", logger.String("type", msg.Type))
		return nil
	}
}
