// Package api exposes the agent's HTTP surface: the intercepting proxy the
// application pages fetch through, the push endpoint, the page websocket,
// and notification interaction routes.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dailytracker/offline-agent/internal/agent"
	"github.com/dailytracker/offline-agent/internal/conf"
	"github.com/dailytracker/offline-agent/internal/datastore"
	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/notification"
	"github.com/dailytracker/offline-agent/internal/observability"
	"github.com/dailytracker/offline-agent/internal/pages"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Server is the agent's HTTP front end.
type Server struct {
	echo       *echo.Echo
	settings   *conf.Settings
	agent      *agent.Agent
	hub        *pages.Hub
	service    *notification.Service
	interactor *notification.Interactor
	history    datastore.HistoryRepository
	proxy      *http.Client
	metrics    *observability.Metrics
	log        logger.Logger
}

// Config carries the server's collaborators.
type Config struct {
	Settings   *conf.Settings
	Agent      *agent.Agent
	Hub        *pages.Hub
	Service    *notification.Service
	Interactor *notification.Interactor
	History    datastore.HistoryRepository // optional
	// Transport is the fetch interceptor; app proxy requests go through it.
	Transport http.RoundTripper
	Metrics   *observability.Metrics
	Logger    logger.Logger
}

// New assembles the server and registers all routes.
func New(cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		settings:   cfg.Settings,
		agent:      cfg.Agent,
		hub:        cfg.Hub,
		service:    cfg.Service,
		interactor: cfg.Interactor,
		history:    cfg.History,
		proxy: &http.Client{
			Transport: cfg.Transport,
			// Redirects are surfaced to the page, not followed here, so the
			// interceptor sees and classifies the 3xx itself.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.echo.POST("/push", s.handlePush)
	s.echo.GET("/ws", s.handleWindowSocket)

	s.echo.Any("/app", s.handleProxy)
	s.echo.Any("/app/*", s.handleProxy)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/notifications", s.handleListNotifications)
	v1.POST("/notifications/:id/click", s.handleNotificationClick)
	v1.POST("/notifications/:id/close", s.handleNotificationClose)
	v1.POST("/message", s.handleMessage)
	if s.history != nil {
		v1.GET("/history/notifications", s.handleHistoryNotifications)
		v1.GET("/history/notifications/:id/interactions", s.handleHistoryInteractions)
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening",
		logger.String("addr", s.settings.WebServer.Listen))
	err := s.echo.Start(s.settings.WebServer.Listen)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.settings.Cache.Version,
	})
}

func (s *Server) debugEnabled() bool {
	return s.settings != nil && s.settings.WebServer.Debug
}
