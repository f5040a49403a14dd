package api

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dailytracker/offline-agent/internal/logger"
)

// hopHeaders are connection-scoped and must not be forwarded either way.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// handleProxy forwards /app/* requests to the upstream origin through the
// fetch interceptor, so pages fetching via the agent get cache-first
// behavior. A network failure on a cache miss is surfaced as 502, the
// sidecar equivalent of the page's own fetch rejecting.
func (s *Server) handleProxy(c echo.Context) error {
	upstream, err := url.Parse(s.settings.Cache.Upstream)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "invalid upstream configuration",
		})
	}

	req := c.Request()
	path := strings.TrimPrefix(req.URL.Path, "/app")
	rawPath := strings.TrimPrefix(req.URL.EscapedPath(), "/app")
	if path == "" {
		path, rawPath = "/", ""
	}
	target := *upstream
	target.Path = path
	if rawPath != path {
		// Keep percent-encoded octets (e.g. %2F) as the page sent them.
		target.RawPath = rawPath
	}
	target.RawQuery = req.URL.RawQuery

	outbound, err := http.NewRequestWithContext(req.Context(), req.Method, target.String(), req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid proxied request",
		})
	}
	copyHeaders(outbound.Header, req.Header)

	resp, err := s.proxy.Do(outbound)
	if err != nil {
		s.log.Error("proxied fetch failed",
			logger.String("url", target.String()),
			logger.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream fetch failed",
		})
	}
	defer func() { _ = resp.Body.Close() }()

	header := c.Response().Header()
	copyHeaders(header, resp.Header)
	c.Response().WriteHeader(resp.StatusCode)
	_, err = io.Copy(c.Response(), resp.Body)
	return err
}

func copyHeaders(dst, src http.Header) {
	src = src.Clone()
	for _, h := range hopHeaders {
		src.Del(h)
	}
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
