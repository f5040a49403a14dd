// Package observability exposes Prometheus metrics for the offline agent.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheMetrics track the fetch interceptor and the cache stores.
type CacheMetrics struct {
	hits             prometheus.Counter
	misses           prometheus.Counter
	writes           prometheus.Counter
	fetchErrors      prometheus.Counter
	precacheFailures prometheus.Counter
	storesDeleted    prometheus.Counter
}

// NotificationMetrics track push handling and display.
type NotificationMetrics struct {
	displayed     prometheus.Counter
	payloadErrors prometheus.Counter
	clicks        *prometheus.CounterVec
	deliverErrors prometheus.Counter
}

// MessageMetrics track the page message router.
type MessageMetrics struct {
	routed *prometheus.CounterVec
}

// PageMetrics track connected application windows.
type PageMetrics struct {
	activeWindows prometheus.Gauge
	windowsOpened prometheus.Counter
}

// Metrics aggregates all collectors on a dedicated registry.
type Metrics struct {
	registry     *prometheus.Registry
	Cache        *CacheMetrics
	Notification *NotificationMetrics
	Messages     *MessageMetrics
	Pages        *PageMetrics
}

// NewMetrics creates and registers all agent collectors.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Cache: &CacheMetrics{
			hits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offline_agent_cache_hits_total",
				Help: "Same-origin requests answered from the cache store.",
			}),
			misses: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offline_agent_cache_misses_total",
				Help: "Same-origin requests that fell through to the network.",
			}),
			writes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offline_agent_cache_writes_total",
				Help: "Responses written back to the cache store.",
			}),
			fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offline_agent_fetch_errors_total",
				Help: "Network errors on cache-miss fetches.",
			}),
			precacheFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offline_agent_precache_failures_total",
				Help: "Asset manifest entries that failed to precache.",
			}),
			storesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offline_agent_cache_stores_deleted_total",
				Help: "Stale cache stores deleted during activation.",
			}),
		},
		Notification: &NotificationMetrics{
			displayed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offline_agent_notifications_displayed_total",
				Help: "Notifications displayed from push events.",
			}),
			payloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offline_agent_push_payload_errors_total",
				Help: "Push payloads that failed to parse as JSON.",
			}),
			clicks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "offline_agent_notification_clicks_total",
				Help: "Notification click interactions by action.",
			}, []string{"action"}),
			deliverErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offline_agent_notification_deliver_errors_total",
				Help: "Failures forwarding notifications to external notifiers.",
			}),
		},
		Messages: &MessageMetrics{
			routed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "offline_agent_messages_routed_total",
				Help: "Page messages routed by type.",
			}, []string{"type"}),
		},
		Pages: &PageMetrics{
			activeWindows: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "offline_agent_active_windows",
				Help: "Currently connected application windows.",
			}),
			windowsOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offline_agent_windows_opened_total",
				Help: "New windows requested by notification clicks.",
			}),
		},
	}

	collectors := []prometheus.Collector{
		m.Cache.hits, m.Cache.misses, m.Cache.writes, m.Cache.fetchErrors,
		m.Cache.precacheFailures, m.Cache.storesDeleted,
		m.Notification.displayed, m.Notification.payloadErrors,
		m.Notification.clicks, m.Notification.deliverErrors,
		m.Messages.routed,
		m.Pages.activeWindows, m.Pages.windowsOpened,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (c *CacheMetrics) RecordHit()             { c.hits.Inc() }
func (c *CacheMetrics) RecordMiss()            { c.misses.Inc() }
func (c *CacheMetrics) RecordWrite()           { c.writes.Inc() }
func (c *CacheMetrics) RecordFetchError()      { c.fetchErrors.Inc() }
func (c *CacheMetrics) RecordPrecacheFailure() { c.precacheFailures.Inc() }
func (c *CacheMetrics) RecordStoreDeleted()    { c.storesDeleted.Inc() }

func (n *NotificationMetrics) RecordDisplayed()    { n.displayed.Inc() }
func (n *NotificationMetrics) RecordPayloadError() { n.payloadErrors.Inc() }
func (n *NotificationMetrics) RecordClick(action string) {
	n.clicks.WithLabelValues(action).Inc()
}
func (n *NotificationMetrics) RecordDeliverError() { n.deliverErrors.Inc() }

func (m *MessageMetrics) RecordRouted(msgType string) {
	m.routed.WithLabelValues(msgType).Inc()
}

func (p *PageMetrics) WindowConnected()    { p.activeWindows.Inc() }
func (p *PageMetrics) WindowDisconnected() { p.activeWindows.Dec() }
func (p *PageMetrics) RecordWindowOpened() { p.windowsOpened.Inc() }
