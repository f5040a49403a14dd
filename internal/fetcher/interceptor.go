// Package fetcher implements the cache-first fetch interceptor. It is an
// http.RoundTripper: same-origin requests are answered from the current
// cache store when possible, fetched from the network otherwise, with
// successful plain 200 responses written back to the store. Requests for
// other origins pass through untouched and are never cached.
package fetcher

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dailytracker/offline-agent/internal/cachestore"
	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/observability"
)

// Interceptor applies the cache-or-network policy to same-origin requests.
// Concurrent round trips are independent: two simultaneous misses for the
// same URL both hit the network and both write the cache, last write wins.
type Interceptor struct {
	inner       http.RoundTripper
	store       *cachestore.Store
	scopeOrigin string
	log         logger.Logger
	metrics     *observability.CacheMetrics
}

// New creates an Interceptor over inner. inner may be nil, in which case
// http.DefaultTransport is used. scopeOrigin is "scheme://host[:port]".
func New(store *cachestore.Store, scopeOrigin string, inner http.RoundTripper, log logger.Logger, metrics *observability.CacheMetrics) *Interceptor {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Interceptor{
		inner:       inner,
		store:       store,
		scopeOrigin: scopeOrigin,
		log:         log,
		metrics:     metrics,
	}
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if origin(req.URL) != i.scopeOrigin {
		return i.inner.RoundTrip(req)
	}

	key := cachestore.Key(req.URL)
	if req.Method == http.MethodGet {
		cached, err := i.store.Get(key)
		switch {
		case err == nil:
			if i.metrics != nil {
				i.metrics.RecordHit()
			}
			return synthesize(cached, req), nil
		case !errors.Is(err, cachestore.ErrNotFound):
			// A broken entry degrades to a miss.
			i.log.Warn("cache read failed",
				logger.String("url", key),
				logger.Error(err))
		}
	}

	if i.metrics != nil {
		i.metrics.RecordMiss()
	}
	resp, err := i.inner.RoundTrip(req)
	if err != nil {
		if i.metrics != nil {
			i.metrics.RecordFetchError()
		}
		i.log.Error("network fetch failed",
			logger.String("url", key),
			logger.Error(err))
		return nil, err
	}

	if i.cacheable(req, resp) {
		if err := i.storeResponse(key, resp); err != nil {
			i.log.Error("cache write failed",
				logger.String("url", key),
				logger.Error(err))
		} else if i.metrics != nil {
			i.metrics.RecordWrite()
		}
	}
	return resp, nil
}

// cacheable reports whether a network response may be written back: only
// plain 200 responses to GET requests qualify. Redirects, error statuses and
// partial content are returned to the caller uncached. The cache store only
// holds GET responses, matching the lookup gate above.
func (i *Interceptor) cacheable(req *http.Request, resp *http.Response) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if resp.StatusCode != http.StatusOK {
		return false
	}
	// The final response must come from our own origin. The transport does
	// not follow redirects itself, but a custom inner transport might.
	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	return origin(final) == i.scopeOrigin
}

// storeResponse duplicates the response body so caching never consumes the
// caller's stream, then writes the duplicate to the store. The write
// completes before the response is returned, so a follow-up request always
// observes it.
func (i *Interceptor) storeResponse(key string, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if closeErr != nil {
		return closeErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return i.store.Put(key, &cachestore.StoredResponse{
		Status:    resp.StatusCode,
		Header:    resp.Header.Clone(),
		Body:      body,
		FetchedAt: time.Now(),
	})
}

// synthesize builds an *http.Response from a stored entry. The cached bytes
// are returned unchanged with no network revalidation.
func synthesize(cached *cachestore.StoredResponse, req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", cached.Status, http.StatusText(cached.Status)),
		StatusCode:    cached.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        cached.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(cached.Body)),
		ContentLength: int64(len(cached.Body)),
		Request:       req,
	}
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
