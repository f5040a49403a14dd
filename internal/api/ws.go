package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/dailytracker/offline-agent/internal/logger"
)

// upgrader accepts any origin: the agent is a local sidecar and the page URL
// is carried explicitly in the query.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWindowSocket upgrades a page connection and registers it as a
// controlled window. The page reports its own URL in the "url" query
// parameter; windows outside the registration scope still register (they are
// enumerated but never matched on notification click).
func (s *Server) handleWindowSocket(c echo.Context) error {
	pageURL := c.QueryParam("url")
	if pageURL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "url query parameter is required",
		})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", logger.Error(err))
		return nil // Upgrade already wrote the error response.
	}
	s.hub.Add(conn, pageURL)
	return nil
}
