package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailytracker/offline-agent/internal/agent"
	"github.com/dailytracker/offline-agent/internal/cachestore"
	"github.com/dailytracker/offline-agent/internal/conf"
	"github.com/dailytracker/offline-agent/internal/datastore"
	"github.com/dailytracker/offline-agent/internal/fetcher"
	"github.com/dailytracker/offline-agent/internal/lifecycle"
	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/notification"
	"github.com/dailytracker/offline-agent/internal/pages"
)

type serverFixture struct {
	server   *Server
	service  *notification.Service
	history  datastore.HistoryRepository
	upstream *httptest.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("upstream:" + r.URL.EscapedPath()))
	}))
	t.Cleanup(upstream.Close)

	settings := &conf.Settings{
		Main: conf.MainSettings{Name: "offline-agent"},
		Cache: conf.CacheSettings{
			Version:  "daily-tracker-v1",
			Upstream: upstream.URL,
		},
		WebServer: conf.WebServerSettings{Listen: ":0"},
		Notification: conf.NotificationSettings{
			DefaultTitle: "Daily Tracker",
			DefaultBody:  "Time to check in on your habits!",
			DefaultTag:   "daily-tracker-reminder",
		},
	}

	db, err := cachestore.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	lc, err := lifecycle.NewManager(db, settings.Cache.Version, upstream.URL, nil, upstream.Client(), log, nil)
	require.NoError(t, err)

	history, err := datastore.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	service := notification.NewService(&notification.ServiceConfig{Logger: log, History: history})
	dispatcher := notification.NewDispatcher(service, settings.Notification, log, nil)

	hub := pages.NewHub(pages.Config{}, log, nil)
	t.Cleanup(hub.CloseAll)
	scope, err := settings.ScopeOrigin()
	require.NoError(t, err)
	interactor := notification.NewInteractor(service, hub, scope+"/", log, nil)

	ag := agent.New(lc, dispatcher, log, nil)
	require.NoError(t, ag.Start(context.Background()))
	t.Cleanup(ag.Stop)

	store, err := db.Store(settings.Cache.Version)
	require.NoError(t, err)
	transport := fetcher.New(store, scope, upstream.Client().Transport, log, nil)

	srv := New(Config{
		Settings:   settings,
		Agent:      ag,
		Hub:        hub,
		Service:    service,
		Interactor: interactor,
		History:    history,
		Transport:  transport,
		Logger:     log,
	})
	return &serverFixture{server: srv, service: service, history: history, upstream: upstream}
}

func (f *serverFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "daily-tracker-v1", body["version"])
}

func TestPush_DisplaysNotification(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/push", `{"title":"Hydrate","body":"Drink water"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	records := f.service.List()
	require.Len(t, records, 1)
	assert.Equal(t, "Hydrate", records[0].Title)
}

func TestPush_EmptyBodyUsesDefaults(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/push", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	records := f.service.List()
	require.Len(t, records, 1)
	assert.Equal(t, "Daily Tracker", records[0].Title)
}

func TestListNotifications(t *testing.T) {
	f := newServerFixture(t)
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/push", "").Code)

	rec := f.do(t, http.MethodGet, "/api/v1/notifications", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count         int                         `json:"count"`
		Notifications []notification.Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, "Daily Tracker", body.Notifications[0].Title)
}

func TestNotificationClick(t *testing.T) {
	f := newServerFixture(t)
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/push", "").Code)
	id := f.service.List()[0].ID

	rec := f.do(t, http.MethodPost, "/api/v1/notifications/"+id+"/click", `{"action":"dismiss"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.service.List())

	// Clicking the same notification again is a 404.
	rec = f.do(t, http.MethodPost, "/api/v1/notifications/"+id+"/click", `{"action":"dismiss"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationClick_Unknown(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/notifications/no-such-id/click", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationClose_AlwaysOK(t *testing.T) {
	f := newServerFixture(t)
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/push", "").Code)
	id := f.service.List()[0].ID

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/notifications/"+id+"/close", "").Code)
	assert.Empty(t, f.service.List())
	// Closing an unknown notification is still OK.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/notifications/"+id+"/close", "").Code)
}

func TestMessage_RequiresType(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/message", `{"data":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessage_UnknownTypeStillRouted(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/message", `{"type":"no-such-type"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMessage_UpdateCache(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/message", `{"type":"update-cache"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProxy_ForwardsAndCaches(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/app/index.html", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream:/index.html", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	// Upstream goes away; the cached copy still answers.
	f.upstream.Close()
	rec = f.do(t, http.MethodGet, "/app/index.html", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream:/index.html", rec.Body.String())
}

func TestProxy_BareAppPathMapsToRoot(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/app", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream:/", rec.Body.String())
}

func TestProxy_PreservesEncodedPath(t *testing.T) {
	f := newServerFixture(t)

	// An encoded slash must reach the upstream encoded, not re-decoded
	// into a different path.
	rec := f.do(t, http.MethodGet, "/app/reports%2F2026-08", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream:/reports%2F2026-08", rec.Body.String())
}

func TestProxy_UpstreamDown(t *testing.T) {
	f := newServerFixture(t)
	f.upstream.Close()

	rec := f.do(t, http.MethodGet, "/app/never-cached.html", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHistoryNotifications(t *testing.T) {
	f := newServerFixture(t)
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/push", `{"title":"Logged"}`).Code)

	rec := f.do(t, http.MethodGet, "/api/v1/history/notifications", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count         int                            `json:"count"`
		Notifications []datastore.NotificationRecord `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Logged", body.Notifications[0].Title)
}

func TestHistoryInteractions(t *testing.T) {
	f := newServerFixture(t)
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/push", "").Code)
	id := f.service.List()[0].ID
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/notifications/"+id+"/click", `{"action":"open"}`).Code)

	rec := f.do(t, http.MethodGet, "/api/v1/history/notifications/"+id+"/interactions", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count        int                          `json:"count"`
		Interactions []datastore.InteractionEvent `json:"interactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "click", body.Interactions[0].Kind)
	assert.Equal(t, "open", body.Interactions[0].Action)
}
