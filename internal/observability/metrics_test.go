package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAllCollectors(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	require.NotNil(t, m.Cache)
	require.NotNil(t, m.Notification)
	require.NotNil(t, m.Messages)
	require.NotNil(t, m.Pages)
}

func TestMetrics_HandlerExposesCounters(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Cache.RecordHit()
	m.Cache.RecordHit()
	m.Cache.RecordMiss()
	m.Notification.RecordDisplayed()
	m.Notification.RecordClick("open")
	m.Messages.RecordRouted("update-cache")
	m.Pages.WindowConnected()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "offline_agent_cache_hits_total 2")
	assert.Contains(t, body, "offline_agent_cache_misses_total 1")
	assert.Contains(t, body, "offline_agent_notifications_displayed_total 1")
	assert.Contains(t, body, `offline_agent_notification_clicks_total{action="open"} 1`)
	assert.Contains(t, body, `offline_agent_messages_routed_total{type="update-cache"} 1`)
	assert.Contains(t, body, "offline_agent_active_windows 1")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, err := NewMetrics()
	require.NoError(t, err)
	b, err := NewMetrics()
	require.NoError(t, err)

	a.Cache.RecordHit()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "offline_agent_cache_hits_total 0")
}
