package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dailytracker/offline-agent/internal/cachestore"
	"github.com/dailytracker/offline-agent/internal/conf"
	"github.com/dailytracker/offline-agent/internal/lifecycle"
	"github.com/dailytracker/offline-agent/internal/logger"
	"github.com/dailytracker/offline-agent/internal/observability"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Precache the asset manifest into the current cache store and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		settings, lc, db, err := buildLifecycle()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if err := lc.Install(cmd.Context()); err != nil {
			return err
		}
		cmd.Printf("precached %d assets into %s\n", len(settings.Cache.Assets), settings.Cache.Version)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cache stores left behind by previous versions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, lc, db, err := buildLifecycle()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return lc.Activate(cmd.Context())
	},
}

// buildLifecycle loads settings and assembles a lifecycle manager for the
// one-shot subcommands.
func buildLifecycle() (*conf.Settings, *lifecycle.Manager, *cachestore.DB, error) {
	settings, err := conf.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log := newLogger(settings.Main.LogLevel)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := cachestore.Open(settings.Cache.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	lc, err := lifecycle.NewManager(db, settings.Cache.Version, settings.Cache.Upstream,
		settings.Cache.Assets, nil, log.With(logger.String("component", "lifecycle")), metrics.Cache)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	return settings, lc, db, nil
}
