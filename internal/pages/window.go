// Package pages tracks the application windows controlled by the agent.
// Each open Daily Tracker page holds a websocket to the agent; through it
// the agent receives typed {type, data} messages and sends focus,
// open-window and notification-click commands back.
package pages

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dailytracker/offline-agent/internal/logger"
)

// Command types sent from the agent to a page.
const (
	CommandFocus      = "focus"
	CommandMessage    = "message"
	CommandOpenWindow = "open-window"
)

// Command is an agent→page instruction.
type Command struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Message is a page→agent message.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Window is one connected application window.
type Window struct {
	id   string
	url  string
	conn *websocket.Conn
	send chan Command
	done chan struct{}

	hub *Hub
	log logger.Logger
}

// ID returns the window's connection ID.
func (w *Window) ID() string { return w.id }

// URL returns the page URL the window reported on connect.
func (w *Window) URL() string { return w.url }

// PostMessage sends a message command to the page.
func (w *Window) PostMessage(msg any) error {
	return w.enqueue(Command{Type: CommandMessage, Data: msg})
}

// Focus asks the page to bring itself to the foreground.
func (w *Window) Focus() error {
	return w.enqueue(Command{Type: CommandFocus})
}

func (w *Window) enqueue(cmd Command) error {
	select {
	case w.send <- cmd:
		return nil
	case <-w.done:
		return ErrWindowClosed
	}
}

// writePump serializes all writes to the socket and keeps it alive with
// pings. gorilla/websocket allows one concurrent writer only.
func (w *Window) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case cmd := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := w.conn.WriteJSON(cmd); err != nil {
				w.log.Debug("window write failed",
					logger.String("window", w.id),
					logger.Error(err))
				w.hub.remove(w)
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.hub.remove(w)
				return
			}
		case <-w.done:
			return
		}
	}
}

// readPump delivers inbound page messages to the hub's handler until the
// socket closes.
func (w *Window) readPump() {
	defer w.hub.remove(w)
	for {
		var msg Message
		if err := w.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.log.Debug("window read failed",
					logger.String("window", w.id),
					logger.Error(err))
			}
			return
		}
		w.hub.dispatch(msg, w)
	}
}
