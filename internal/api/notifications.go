package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/notification"
	"github.com/dailytracker/offline-agent/internal/pages"
)

// clickRequest is the body of a notification click.
type clickRequest struct {
	Action string `json:"action"`
}

// handleListNotifications returns the active notification records.
func (s *Server) handleListNotifications(c echo.Context) error {
	records := s.service.List()
	return c.JSON(http.StatusOK, map[string]any{
		"notifications": records,
		"count":         len(records),
	})
}

// handleNotificationClick processes a user click on a displayed
// notification. The default action when the body omits one is "open".
func (s *Server) handleNotificationClick(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "notification ID is required",
		})
	}

	var req clickRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid click body",
		})
	}
	action := req.Action
	if action == "" {
		action = notification.ActionOpen
	}

	if err := s.interactor.HandleClick(c.Request().Context(), id, action); err != nil {
		if errors.Is(err, notification.ErrNotificationNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "notification not found",
			})
		}
		s.log.Error("notification click failed",
			logger.String("id", id),
			logger.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to handle click",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "click handled",
	})
}

// handleNotificationClose processes a notification being dismissed without a
// click. Always succeeds, matching the no-op close contract.
func (s *Server) handleNotificationClose(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "notification ID is required",
		})
	}
	s.interactor.HandleClose(c.Request().Context(), id)
	return c.JSON(http.StatusOK, map[string]string{
		"message": "closed",
	})
}

// handleMessage accepts a page message over HTTP, for pages that have not
// established a websocket. Same router, same semantics.
func (s *Server) handleMessage(c echo.Context) error {
	var msg pages.Message
	if err := c.Bind(&msg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid message body",
		})
	}
	if msg.Type == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "message type is required",
		})
	}
	if err := s.agent.DeliverMessage(c.Request().Context(), msg); err != nil {
		s.log.Error("message routing failed",
			logger.String("type", msg.Type),
			logger.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to route message",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "routed",
	})
}

// handleHistoryNotifications lists persisted displayed notifications.
func (s *Server) handleHistoryNotifications(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.history.ListDisplayed(c.Request().Context(), limit)
	if err != nil {
		s.log.Error("failed to list notification history", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list history",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"notifications": records,
		"count":         len(records),
	})
}

// handleHistoryInteractions lists interactions for one notification.
func (s *Server) handleHistoryInteractions(c echo.Context) error {
	id := c.Param("id")
	events, err := s.history.ListInteractions(c.Request().Context(), id)
	if err != nil {
		s.log.Error("failed to list interactions",
			logger.String("id", id),
			logger.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list interactions",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"interactions": events,
		"count":        len(events),
	})
}
