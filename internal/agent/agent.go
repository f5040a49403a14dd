// Package agent owns the offline agent's event loop. Lifecycle, push and
// page-message events are queued and handled strictly one at a time; each
// handler runs to completion before the next event is taken, which is what
// keeps a push event "alive" until its notification display settles. Fetch
// interception deliberately does not go through the loop: concurrent fetches
// stay independent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dailytracker/offline-agent/internal/lifecycle"
	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/notification"
	"github.com/dailytracker/offline-agent/internal/observability"
	"github.com/dailytracker/offline-agent/internal/pages"
)

// eventBufferSize is the capacity of the event queue. Enqueues on a full
// queue are dropped (with a log) rather than blocking producers.
const eventBufferSize = 256

// ErrStopped is returned for events delivered after the agent shut down.
var ErrStopped = errors.New("agent stopped")

// EventKind identifies the events the loop handles.
type EventKind string

const (
	EventPush    EventKind = "push"
	EventMessage EventKind = "message"
)

// Event is one queued occurrence. done is closed after the handler settles,
// carrying its error.
type event struct {
	kind    EventKind
	payload []byte
	message pages.Message
	done    chan error
}

// Agent wires the lifecycle manager, push dispatcher and message router
// behind a single serialized event loop.
type Agent struct {
	lifecycle  *lifecycle.Manager
	dispatcher *notification.Dispatcher

	eventCh    chan *event
	stopCh     chan struct{}
	workerDone chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	log     logger.Logger
	metrics *observability.MessageMetrics
}

// New creates an agent. Start must be called before events are accepted.
func New(lc *lifecycle.Manager, dispatcher *notification.Dispatcher, log logger.Logger, metrics *observability.MessageMetrics) *Agent {
	return &Agent{
		lifecycle:  lc,
		dispatcher: dispatcher,
		eventCh:    make(chan *event, eventBufferSize),
		stopCh:     make(chan struct{}),
		workerDone: make(chan struct{}),
		log:        log,
		metrics:    metrics,
	}
}

// Start runs the install and activate phases, then starts the event worker.
// Install failures on individual assets never surface here; only an
// unusable cache database aborts startup.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.lifecycle.Install(ctx); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := a.lifecycle.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	a.wg.Add(1)
	go a.processLoop()
	return nil
}

// Stop shuts the worker down after draining queued events. Safe to call
// multiple times.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
	a.wg.Wait()
}

// Push queues a push payload and waits until its notification display has
// settled, mirroring the "keep the event alive until the display call
// settles" contract.
func (a *Agent) Push(ctx context.Context, payload []byte) error {
	return a.deliver(ctx, &event{
		kind:    EventPush,
		payload: payload,
		done:    make(chan error, 1),
	})
}

// DeliverMessage queues a page message and waits for the router to finish
// with it.
func (a *Agent) DeliverMessage(ctx context.Context, msg pages.Message) error {
	return a.deliver(ctx, &event{
		kind:    EventMessage,
		message: msg,
		done:    make(chan error, 1),
	})
}

// HandlePageMessage is the hub callback for messages arriving over a window
// socket. Fire-and-forget: routing errors are logged by the router.
func (a *Agent) HandlePageMessage(msg pages.Message, _ *pages.Window) {
	ev := &event{kind: EventMessage, message: msg, done: make(chan error, 1)}
	select {
	case <-a.stopCh:
		return
	default:
	}
	select {
	case a.eventCh <- ev:
	default:
		a.log.Warn("event queue full, dropping page message",
			logger.String("type", msg.Type))
	}
}

func (a *Agent) deliver(ctx context.Context, ev *event) error {
	select {
	case <-a.stopCh:
		return ErrStopped
	case a.eventCh <- ev:
	case <-ctx.Done():
		return ctx.Err()
	}
	// The enqueue above can race Stop: stopCh is closed but the buffered
	// channel still accepts, and the event lands in a queue the worker has
	// already drained. Watching workerDone keeps the caller from blocking on
	// an answer that will never come.
	select {
	case err := <-ev.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-a.workerDone:
		select {
		case err := <-ev.done:
			return err
		default:
		}
		return ErrStopped
	}
}

// processLoop drains the event channel one event at a time. On stop it
// finishes everything already queued before exiting.
func (a *Agent) processLoop() {
	defer a.wg.Done()
	defer close(a.workerDone)
	for {
		select {
		case ev := <-a.eventCh:
			a.handle(ev)
		case <-a.stopCh:
			for {
				select {
				case ev := <-a.eventCh:
					a.handle(ev)
				default:
					return
				}
			}
		}
	}
}

// handle runs one event to completion with panic recovery so a failing
// handler cannot kill the loop.
func (a *Agent) handle(ev *event) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("event handler panic: %v", r)
				a.log.Error("event handler panicked",
					logger.String("kind", string(ev.kind)),
					logger.Any("panic", r))
			}
		}()
		err = a.dispatchEvent(ev)
	}()
	ev.done <- err
}

func (a *Agent) dispatchEvent(ev *event) error {
	ctx := context.Background()
	switch ev.kind {
	case EventPush:
		return a.dispatcher.HandlePush(ctx, ev.payload)
	case EventMessage:
		return a.routeMessage(ctx, ev.message)
	default:
		a.log.Warn("unknown event kind", logger.String("kind", string(ev.kind)))
		return nil
	}
}
