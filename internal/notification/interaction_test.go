package notification

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScope = "http://localhost:8080/"

type fakeWindow struct {
	id       string
	url      string
	messages []any
	focused  int
}

func (w *fakeWindow) ID() string  { return w.id }
func (w *fakeWindow) URL() string { return w.url }

func (w *fakeWindow) PostMessage(msg any) error {
	w.messages = append(w.messages, msg)
	return nil
}

func (w *fakeWindow) Focus() error {
	w.focused++
	return nil
}

type fakeRegistry struct {
	windows []Window
	opened  []string
}

func (r *fakeRegistry) Windows() []Window { return r.windows }

func (r *fakeRegistry) OpenWindow(target string) error {
	r.opened = append(r.opened, target)
	return nil
}

func newTestInteractor(registry *fakeRegistry) (*Interactor, *Service) {
	s := newTestService()
	return NewInteractor(s, registry, testScope, testLogger(), nil), s
}

func displayReminder(t *testing.T, s *Service, reminderID string) *Notification {
	t.Helper()
	n := New("Daily Tracker", "Time to check in!", "daily-tracker-reminder").
		WithReminderData(reminderID, ActionOpen)
	require.NoError(t, s.Display(context.Background(), n))
	return n
}

func TestHandleClick_DismissOnlyCloses(t *testing.T) {
	registry := &fakeRegistry{windows: []Window{&fakeWindow{id: "w1", url: testScope}}}
	i, s := newTestInteractor(registry)
	n := displayReminder(t, s, "42")

	require.NoError(t, i.HandleClick(context.Background(), n.ID, ActionDismiss))

	w := registry.windows[0].(*fakeWindow)
	assert.Zero(t, w.focused)
	assert.Empty(t, w.messages)
	assert.Empty(t, registry.opened)

	_, err := s.Get(n.ID)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestHandleClick_FocusesInScopeWindow(t *testing.T) {
	inScope := &fakeWindow{id: "w2", url: testScope + "habits"}
	registry := &fakeRegistry{windows: []Window{
		&fakeWindow{id: "w1", url: "http://other.example/"},
		inScope,
	}}
	i, s := newTestInteractor(registry)
	n := displayReminder(t, s, "42")

	require.NoError(t, i.HandleClick(context.Background(), n.ID, ActionOpen))

	assert.Equal(t, 1, inScope.focused)
	assert.Empty(t, registry.opened)

	require.Len(t, inScope.messages, 1)
	msg, ok := inScope.messages[0].(ClickMessage)
	require.True(t, ok)
	assert.Equal(t, "notification-click", msg.Type)
	assert.Equal(t, "open-reminders", msg.Action)
	require.NotNil(t, msg.ReminderID)
	assert.Equal(t, "42", *msg.ReminderID)
}

func TestHandleClick_BareOriginWindowMatches(t *testing.T) {
	// Pages report their own URL; the origin without a trailing slash is
	// still the scope root and must be focused instead of opening a
	// duplicate window.
	w := &fakeWindow{id: "w1", url: strings.TrimSuffix(testScope, "/")}
	registry := &fakeRegistry{windows: []Window{w}}
	i, s := newTestInteractor(registry)
	n := displayReminder(t, s, "42")

	require.NoError(t, i.HandleClick(context.Background(), n.ID, ActionOpen))

	assert.Equal(t, 1, w.focused)
	assert.Empty(t, registry.opened)
	require.Len(t, w.messages, 1)
}

func TestHandleClick_FirstInScopeWindowWins(t *testing.T) {
	first := &fakeWindow{id: "w1", url: testScope}
	second := &fakeWindow{id: "w2", url: testScope + "settings"}
	registry := &fakeRegistry{windows: []Window{first, second}}
	i, s := newTestInteractor(registry)
	n := displayReminder(t, s, "1")

	require.NoError(t, i.HandleClick(context.Background(), n.ID, ActionOpen))

	assert.Equal(t, 1, first.focused)
	assert.Zero(t, second.focused)
}

func TestHandleClick_NonReminderFocusWithoutMessage(t *testing.T) {
	w := &fakeWindow{id: "w1", url: testScope}
	registry := &fakeRegistry{windows: []Window{w}}
	i, s := newTestInteractor(registry)

	n := New("Daily Tracker", "Announcement", "tag")
	require.NoError(t, s.Display(context.Background(), n))

	require.NoError(t, i.HandleClick(context.Background(), n.ID, ActionOpen))

	assert.Equal(t, 1, w.focused)
	assert.Empty(t, w.messages)
}

func TestHandleClick_NoWindowOpensNew(t *testing.T) {
	registry := &fakeRegistry{}
	i, s := newTestInteractor(registry)
	n := displayReminder(t, s, "7")

	require.NoError(t, i.HandleClick(context.Background(), n.ID, ActionOpen))

	require.Len(t, registry.opened, 1)
	assert.Equal(t, testScope+"?open=reminders&reminder=7", registry.opened[0])
}

func TestHandleClick_NoWindowNonReminderOpensRoot(t *testing.T) {
	registry := &fakeRegistry{}
	i, s := newTestInteractor(registry)

	n := New("Daily Tracker", "body", "tag")
	require.NoError(t, s.Display(context.Background(), n))

	require.NoError(t, i.HandleClick(context.Background(), n.ID, ActionOpen))

	require.Len(t, registry.opened, 1)
	assert.Equal(t, testScope, registry.opened[0])
}

func TestHandleClick_ReminderWithoutIDOmitsParam(t *testing.T) {
	registry := &fakeRegistry{}
	i, s := newTestInteractor(registry)
	n := displayReminder(t, s, "")

	require.NoError(t, i.HandleClick(context.Background(), n.ID, ActionOpen))

	require.Len(t, registry.opened, 1)
	assert.Equal(t, testScope+"?open=reminders", registry.opened[0])
}

func TestHandleClick_UnknownNotification(t *testing.T) {
	i, _ := newTestInteractor(&fakeRegistry{})
	err := i.HandleClick(context.Background(), "no-such-id", ActionOpen)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestHandleClose_RemovesRecordQuietly(t *testing.T) {
	i, s := newTestInteractor(&fakeRegistry{})
	n := displayReminder(t, s, "42")

	i.HandleClose(context.Background(), n.ID)
	_, err := s.Get(n.ID)
	assert.ErrorIs(t, err, ErrNotificationNotFound)

	// Closing again is a no-op.
	i.HandleClose(context.Background(), n.ID)
}

func TestClickMessage_NullReminderID(t *testing.T) {
	msg := ClickMessage{Type: "notification-click", Action: "open-reminders"}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notification-click","action":"open-reminders","reminderId":null}`, string(raw))
}
