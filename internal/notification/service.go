package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/observability"
)

// ErrNotificationNotFound is returned when an interaction references an
// unknown or already-closed notification.
var ErrNotificationNotFound = errors.New("notification not found")

const (
	// defaultRecordTTL bounds how long an unclicked record stays claimable.
	defaultRecordTTL = 24 * time.Hour
	// recordSweepInterval is how often expired records are purged.
	recordSweepInterval = 10 * time.Minute
	// subscriberBuffer is the per-subscriber channel capacity. Slow
	// subscribers drop notifications rather than block display.
	subscriberBuffer = 16
)

// HistoryStore persists displayed notifications and user interactions.
// Implemented by the datastore package; nil disables persistence.
type HistoryStore interface {
	SaveDisplayed(ctx context.Context, n *Notification) error
	SaveInteraction(ctx context.Context, notificationID, kind, action string) error
}

// ServiceConfig configures the notification service.
type ServiceConfig struct {
	// RecordTTL is how long active records are retained; zero means the
	// default of 24h.
	RecordTTL time.Duration
	// History receives displayed notifications and interactions. Optional.
	History HistoryStore
	Logger  logger.Logger
	Metrics *observability.NotificationMetrics
}

// Service keeps the active notification records and fans displayed
// notifications out to subscribers. Records are keyed by tag: displaying a
// notification whose tag is already present replaces the prior record, the
// same collapsing the platform notification tray does.
type Service struct {
	records *gocache.Cache // tag → *Notification
	tags    map[string]string
	tagsMu  sync.Mutex // guards tags (id → tag index)

	subscribers []chan *Notification
	subMu       sync.RWMutex

	history HistoryStore
	log     logger.Logger
	metrics *observability.NotificationMetrics
}

// NewService creates a notification service.
func NewService(config *ServiceConfig) *Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	ttl := config.RecordTTL
	if ttl <= 0 {
		ttl = defaultRecordTTL
	}
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	s := &Service{
		records: gocache.New(ttl, recordSweepInterval),
		tags:    make(map[string]string),
		history: config.History,
		log:     log,
		metrics: config.Metrics,
	}
	// Keep the id index consistent when a record expires unclicked.
	s.records.OnEvicted(func(tag string, value any) {
		n, ok := value.(*Notification)
		if !ok {
			return
		}
		s.tagsMu.Lock()
		if s.tags[n.ID] == tag {
			delete(s.tags, n.ID)
		}
		s.tagsMu.Unlock()
	})
	return s
}

// Display records the notification and broadcasts it to all subscribers.
// A record with the same tag is replaced. Display returns once the record
// is stored and the broadcast attempted, so callers holding a push event
// open can treat its return as the display call settling.
func (s *Service) Display(ctx context.Context, n *Notification) error {
	s.tagsMu.Lock()
	if prev, found := s.records.Get(n.Tag); found {
		if old, ok := prev.(*Notification); ok {
			delete(s.tags, old.ID)
		}
	}
	s.records.SetDefault(n.Tag, n)
	s.tags[n.ID] = n.Tag
	s.tagsMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordDisplayed()
	}
	if s.history != nil {
		if err := s.history.SaveDisplayed(ctx, n); err != nil {
			s.log.Error("failed to persist notification history",
				logger.String("id", n.ID),
				logger.Error(err))
		}
	}

	s.broadcast(n)
	return nil
}

// broadcast sends n to every subscriber without blocking; a full subscriber
// channel drops the notification for that subscriber only.
func (s *Service) broadcast(n *Notification) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- n.Clone():
		default:
		}
	}
}

// Subscribe returns a channel receiving every displayed notification.
func (s *Service) Subscribe() <-chan *Notification {
	ch := make(chan *Notification, subscriberBuffer)
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (s *Service) Unsubscribe(ch <-chan *Notification) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Get returns the active record with the given ID.
func (s *Service) Get(id string) (*Notification, error) {
	s.tagsMu.Lock()
	tag, ok := s.tags[id]
	s.tagsMu.Unlock()
	if !ok {
		return nil, ErrNotificationNotFound
	}
	value, found := s.records.Get(tag)
	if !found {
		return nil, ErrNotificationNotFound
	}
	n, ok := value.(*Notification)
	if !ok || n.ID != id {
		// The tag was re-used by a newer notification.
		return nil, ErrNotificationNotFound
	}
	return n, nil
}

// List returns all active notification records.
func (s *Service) List() []*Notification {
	items := s.records.Items()
	out := make([]*Notification, 0, len(items))
	for _, item := range items {
		if n, ok := item.Object.(*Notification); ok {
			out = append(out, n.Clone())
		}
	}
	return out
}

// CloseRecord removes the record with the given ID, returning it. Closing a
// missing record returns ErrNotificationNotFound.
func (s *Service) CloseRecord(id string) (*Notification, error) {
	n, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	s.tagsMu.Lock()
	delete(s.tags, id)
	s.tagsMu.Unlock()
	s.records.Delete(n.Tag)
	return n, nil
}

// RecordInteraction persists a click/close interaction, if history is on.
func (s *Service) RecordInteraction(ctx context.Context, notificationID, kind, action string) {
	if s.history == nil {
		return
	}
	if err := s.history.SaveInteraction(ctx, notificationID, kind, action); err != nil {
		s.log.Error("failed to persist notification interaction",
			logger.String("id", notificationID),
			logger.String("kind", kind),
			logger.Error(err))
	}
}
