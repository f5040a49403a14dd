package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dailytracker/offline-agent/internal/agent"
	"github.com/dailytracker/offline-agent/internal/api"
	"github.com/dailytracker/offline-agent/internal/cachestore"
	"github.com/dailytracker/offline-agent/internal/conf"
	"github.com/dailytracker/offline-agent/internal/datastore"
	"github.com/dailytracker/offline-agent/internal/fetcher"
	"github.com/dailytracker/offline-agent/internal/lifecycle"
	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/mqtt"
	"github.com/dailytracker/offline-agent/internal/notification"
	"github.com/dailytracker/offline-agent/internal/observability"
	"github.com/dailytracker/offline-agent/internal/pages"
)

// pushHandleTimeout bounds push handling for payloads arriving via MQTT,
// where no HTTP request context exists.
const pushHandleTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Install, activate and serve the offline agent",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings, err := conf.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(settings.Main.LogLevel)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	db, err := cachestore.Open(settings.Cache.Path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	scopeOrigin, err := settings.ScopeOrigin()
	if err != nil {
		return err
	}

	lc, err := lifecycle.NewManager(db, settings.Cache.Version, settings.Cache.Upstream,
		settings.Cache.Assets, nil, log.With(logger.String("component", "lifecycle")), metrics.Cache)
	if err != nil {
		return err
	}

	var history datastore.HistoryRepository
	if settings.History.Path != "" {
		history, err = datastore.Open(settings.History.Path)
		if err != nil {
			return err
		}
		defer func() { _ = history.Close() }()
		pruneHistory(cmd.Context(), history, settings.History.RetentionDays, log)
	}

	notification.Initialize(&notification.ServiceConfig{
		RecordTTL: settings.Notification.RecordTTL.Std(),
		History:   history,
		Logger:    log.With(logger.String("component", "notification")),
		Metrics:   metrics.Notification,
	})
	service := notification.MustGetService()

	var forwarders []notification.Forwarder
	if len(settings.Notification.Notifiers) > 0 {
		fwd, err := notification.NewShoutrrrForwarder(settings.Notification.Notifiers)
		if err != nil {
			return err
		}
		forwarders = append(forwarders, fwd)
	}
	dispatcher := notification.NewDispatcher(service, settings.Notification,
		log.With(logger.String("component", "dispatcher")), metrics.Notification, forwarders...)

	hub := pages.NewHub(pages.Config{
		PingInterval: settings.Pages.PingInterval.Std(),
		WriteTimeout: settings.Pages.WriteTimeout.Std(),
	}, log.With(logger.String("component", "pages")), metrics.Pages)

	interactor := notification.NewInteractor(service, hub, scopeOrigin+"/",
		log.With(logger.String("component", "interaction")), metrics.Notification)

	ag := agent.New(lc, dispatcher, log.With(logger.String("component", "agent")), metrics.Messages)
	hub.OnMessage(ag.HandlePageMessage)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ag.Start(ctx); err != nil {
		return err
	}
	defer ag.Stop()

	store, err := db.Store(settings.Cache.Version)
	if err != nil {
		return err
	}
	interceptor := fetcher.New(store, scopeOrigin, nil,
		log.With(logger.String("component", "fetcher")), metrics.Cache)

	if settings.MQTT.Enabled {
		source, err := mqtt.NewSource(settings.MQTT, func(payload []byte) {
			pushCtx, cancel := context.WithTimeout(context.Background(), pushHandleTimeout)
			defer cancel()
			if err := ag.Push(pushCtx, payload); err != nil {
				log.Error("mqtt push handling failed", logger.Error(err))
			}
		}, log.With(logger.String("component", "mqtt")))
		if err != nil {
			return err
		}
		if err := source.Connect(ctx); err != nil {
			// The HTTP push endpoint still works; keep serving.
			log.Error("mqtt connect failed, continuing without broker", logger.Error(err))
		} else {
			defer source.Disconnect()
		}
	}

	server := api.New(api.Config{
		Settings:   settings,
		Agent:      ag,
		Hub:        hub,
		Service:    service,
		Interactor: interactor,
		History:    history,
		Transport:  interceptor,
		Metrics:    metrics,
		Logger:     log.With(logger.String("component", "api")),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx := context.Background()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Error(err))
	}
	hub.CloseAll()
	return nil
}

// pruneHistory deletes history rows past the configured retention.
func pruneHistory(ctx context.Context, history datastore.HistoryRepository, retentionDays int, log logger.Logger) {
	if retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := history.DeleteBefore(ctx, cutoff)
	if err != nil {
		log.Error("history pruning failed", logger.Error(err))
		return
	}
	if deleted > 0 {
		log.Info("pruned notification history",
			logger.Int64("deleted", deleted),
			logger.Int("retention_days", retentionDays))
	}
}
