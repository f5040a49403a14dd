package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dailytracker/offline-agent/internal/logger"
)

// maxPushPayload bounds the accepted push body. Push services cap payloads
// at 4 KiB; anything near this limit is already suspect.
const maxPushPayload = 16 << 10

// handlePush accepts a push payload from the external push producer and
// holds the request open until the resulting notification display has
// settled. An empty body is a valid push: the defaults are displayed.
func (s *Server) handlePush(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPushPayload))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read push payload",
		})
	}

	if s.debugEnabled() {
		s.log.Debug("push received", logger.Int("bytes", len(payload)))
	}

	if err := s.agent.Push(c.Request().Context(), payload); err != nil {
		s.log.Error("push handling failed", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to display notification",
		})
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "displayed",
	})
}
