package pages

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/notification"
	"github.com/dailytracker/offline-agent/internal/observability"
)

// ErrWindowClosed is returned when sending to a disconnected window.
var ErrWindowClosed = errors.New("pages: window closed")

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	// sendBuffer is the per-window outbound command capacity.
	sendBuffer = 8
	// maxPendingOpens bounds open-window requests queued while no page is
	// connected; older requests are dropped first.
	maxPendingOpens = 4
)

// MessageHandler receives every inbound page message together with the
// window that sent it.
type MessageHandler func(msg Message, from *Window)

// Config tunes the hub's websocket behavior.
type Config struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// Hub is the registry of connected application windows. It implements the
// notification.WindowRegistry interface consumed by the interaction handler.
type Hub struct {
	mu      sync.RWMutex
	windows []*Window // connect order
	pending []string  // open-window targets queued while no page is connected

	handler      MessageHandler
	handlerMu    sync.RWMutex
	pingInterval time.Duration
	writeTimeout time.Duration

	log     logger.Logger
	metrics *observability.PageMetrics
}

// NewHub creates a window hub.
func NewHub(cfg Config, log logger.Logger, metrics *observability.PageMetrics) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Hub{
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
		log:          log,
		metrics:      metrics,
	}
}

// OnMessage registers the handler for inbound page messages.
func (h *Hub) OnMessage(handler MessageHandler) {
	h.handlerMu.Lock()
	h.handler = handler
	h.handlerMu.Unlock()
}

// Add registers an upgraded websocket connection as a window and starts its
// pumps. pageURL is the URL the page reported on connect.
func (h *Hub) Add(conn *websocket.Conn, pageURL string) *Window {
	w := &Window{
		id:   uuid.NewString(),
		url:  pageURL,
		conn: conn,
		send: make(chan Command, sendBuffer),
		done: make(chan struct{}),
		hub:  h,
		log:  h.log,
	}

	h.mu.Lock()
	h.windows = append(h.windows, w)
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WindowConnected()
	}
	h.log.Info("window connected",
		logger.String("window", w.id),
		logger.String("url", pageURL))

	go w.writePump(h.pingInterval, h.writeTimeout)
	go w.readPump()

	// Deliver open-window requests that arrived while no page was up.
	for _, target := range pending {
		if err := w.enqueue(Command{Type: CommandOpenWindow, URL: target}); err != nil {
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWindowOpened()
		}
	}
	return w
}

// remove unregisters a window and closes its connection. Safe to call more
// than once.
func (h *Hub) remove(w *Window) {
	h.mu.Lock()
	found := false
	for i, candidate := range h.windows {
		if candidate == w {
			h.windows = append(h.windows[:i], h.windows[i+1:]...)
			found = true
			break
		}
	}
	h.mu.Unlock()
	if !found {
		return
	}

	close(w.done)
	_ = w.conn.Close()
	if h.metrics != nil {
		h.metrics.WindowDisconnected()
	}
	h.log.Info("window disconnected", logger.String("window", w.id))
}

// dispatch hands an inbound message to the registered handler.
func (h *Hub) dispatch(msg Message, from *Window) {
	h.handlerMu.RLock()
	handler := h.handler
	h.handlerMu.RUnlock()
	if handler != nil {
		handler(msg, from)
	}
}

// Windows enumerates connected windows in connect order.
func (h *Hub) Windows() []notification.Window {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]notification.Window, len(h.windows))
	for i, w := range h.windows {
		out[i] = w
	}
	return out
}

// Len returns the number of connected windows.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.windows)
}

// OpenWindow asks the newest connected window's page to open target in a new
// window. With no page connected the request is queued for the next one.
func (h *Hub) OpenWindow(target string) error {
	h.mu.Lock()
	var newest *Window
	if len(h.windows) > 0 {
		newest = h.windows[len(h.windows)-1]
	} else {
		if len(h.pending) >= maxPendingOpens {
			h.pending = h.pending[1:]
		}
		h.pending = append(h.pending, target)
	}
	h.mu.Unlock()

	if newest == nil {
		h.log.Info("no window connected, queued open request",
			logger.String("target", target))
		return nil
	}
	if err := newest.enqueue(Command{Type: CommandOpenWindow, URL: target}); err != nil {
		return err
	}
	// Counted only when a page was actually asked to open a window; queued
	// requests count on delivery.
	if h.metrics != nil {
		h.metrics.RecordWindowOpened()
	}
	return nil
}

// Broadcast sends a message command to every connected window.
func (h *Hub) Broadcast(msg any) {
	h.mu.RLock()
	windows := make([]*Window, len(h.windows))
	copy(windows, h.windows)
	h.mu.RUnlock()
	for _, w := range windows {
		if err := w.PostMessage(msg); err != nil {
			h.log.Debug("broadcast to window failed",
				logger.String("window", w.id),
				logger.Error(err))
		}
	}
}

// CloseAll disconnects every window, used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	windows := make([]*Window, len(h.windows))
	copy(windows, h.windows)
	h.mu.RUnlock()
	for _, w := range windows {
		h.remove(w)
	}
}
