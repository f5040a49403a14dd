// Package lifecycle implements the install/activate phases of the offline
// agent: whole-manifest precaching into the current cache store and pruning
// of stores left behind by previous versions.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dailytracker/offline-agent/internal/cachestore"
	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/observability"
)

// maxAssetSize bounds how much of an asset response is read during precache.
const maxAssetSize = 32 << 20 // 32 MiB

// Manager drives the agent lifecycle against the cache database.
type Manager struct {
	db       *cachestore.DB
	version  string
	upstream *url.URL
	assets   []string
	client   *http.Client
	log      logger.Logger
	metrics  *observability.CacheMetrics
}

// NewManager creates a lifecycle manager. client may be nil, in which case
// http.DefaultClient is used for asset fetches.
func NewManager(db *cachestore.DB, version, upstream string, assets []string, client *http.Client, log logger.Logger, metrics *observability.CacheMetrics) (*Manager, error) {
	base, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", upstream, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		db:       db,
		version:  version,
		upstream: base,
		assets:   assets,
		client:   client,
		log:      log,
		metrics:  metrics,
	}, nil
}

// Version returns the current cache store name.
func (m *Manager) Version() string {
	return m.version
}

// Install opens (creating if absent) the current cache store and populates
// it with the asset manifest. Population is best-effort: individual asset
// failures are logged and counted but never abort the install, leaving the
// store partially populated.
func (m *Manager) Install(ctx context.Context) error {
	store, err := m.db.Store(m.version)
	if err != nil {
		return fmt.Errorf("opening cache store %q: %w", m.version, err)
	}
	m.log.Info("installing offline agent",
		logger.String("version", m.version),
		logger.Int("assets", len(m.assets)))
	failed := m.populate(ctx, store)
	if failed > 0 {
		m.log.Warn("precache incomplete",
			logger.Int("failed", failed),
			logger.Int("total", len(m.assets)))
	}
	return nil
}

// Activate deletes every cache store whose name differs from the current
// version. Each deletion is attempted independently; failures are logged
// and do not block the remaining deletions.
func (m *Manager) Activate(ctx context.Context) error {
	names, err := m.db.Names()
	if err != nil {
		return fmt.Errorf("listing cache stores: %w", err)
	}
	for _, name := range names {
		if name == m.version {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.db.DeleteStore(name); err != nil {
			m.log.Error("failed to delete stale cache store",
				logger.String("store", name),
				logger.Error(err))
			continue
		}
		if m.metrics != nil {
			m.metrics.RecordStoreDeleted()
		}
		m.log.Info("deleted stale cache store", logger.String("store", name))
	}
	m.log.Info("offline agent activated", logger.String("version", m.version))
	return nil
}

// Precache re-adds the full asset manifest to the current store. Shared by
// Install and the update-cache page message; same best-effort semantics.
func (m *Manager) Precache(ctx context.Context) error {
	store, err := m.db.Store(m.version)
	if err != nil {
		return fmt.Errorf("opening cache store %q: %w", m.version, err)
	}
	if failed := m.populate(ctx, store); failed > 0 {
		m.log.Warn("cache update incomplete",
			logger.Int("failed", failed),
			logger.Int("total", len(m.assets)))
	}
	return nil
}

// populate fetches every manifest entry and stores it, returning the number
// of entries that could not be cached.
func (m *Manager) populate(ctx context.Context, store *cachestore.Store) int {
	var failed int
	for _, asset := range m.assets {
		if err := ctx.Err(); err != nil {
			m.log.Warn("precache aborted", logger.Error(err))
			return failed + 1
		}
		if err := m.cacheAsset(ctx, store, asset); err != nil {
			failed++
			if m.metrics != nil {
				m.metrics.RecordPrecacheFailure()
			}
			m.log.Error("failed to precache asset",
				logger.String("asset", asset),
				logger.Error(err))
		}
	}
	return failed
}

func (m *Manager) cacheAsset(ctx context.Context, store *cachestore.Store, asset string) error {
	target, err := m.resolveAsset(asset)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize))
	if err != nil {
		return err
	}
	return store.Put(cachestore.Key(target), &cachestore.StoredResponse{
		Status:    resp.StatusCode,
		Header:    resp.Header.Clone(),
		Body:      body,
		FetchedAt: time.Now(),
	})
}

// resolveAsset turns a manifest entry into an absolute URL. Root-relative
// entries resolve against the upstream origin; absolute entries (the
// cross-origin font URLs) pass through as-is.
func (m *Manager) resolveAsset(asset string) (*url.URL, error) {
	if strings.Contains(asset, "://") {
		u, err := url.Parse(asset)
		if err != nil {
			return nil, fmt.Errorf("invalid asset URL %q: %w", asset, err)
		}
		return u, nil
	}
	rel, err := url.Parse(asset)
	if err != nil {
		return nil, fmt.Errorf("invalid asset path %q: %w", asset, err)
	}
	return m.upstream.ResolveReference(rel), nil
}
