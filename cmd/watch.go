// file: cmd/watch.go
// version: 1.2.0
// guid: 3f5a7c9e-1b2d-4e6f-8a0c-2d4e6f8a0b1c

package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jdfalk/catalog-watcher/internal/backup"
	"github.com/jdfalk/catalog-watcher/internal/config"
	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/jdfalk/catalog-watcher/internal/metrics"
	"github.com/jdfalk/catalog-watcher/internal/reconciler"
	"github.com/jdfalk/catalog-watcher/internal/scanner"
	"github.com/jdfalk/catalog-watcher/internal/server"
	"github.com/jdfalk/catalog-watcher/internal/server/middleware"
	"github.com/jdfalk/catalog-watcher/internal/watcher"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// statsTTL bounds how often the status server recounts the catalog.
const statsTTL = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the libraries and keep the catalog in sync",
	Long: `Start the daemon. Every configured library gets its own watcher loop that
handles changes one at a time, in the order they happened:

- a new media file is identified and mounted, a new directory is scanned
- a deleted file loses its record, and its work is deleted once it has no files
- a renamed or moved file keeps its record under the new path

Runs until interrupted. If --status-addr is set, metrics and catalog counts
are served over HTTP while the daemon runs.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.AppConfig
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer database.CloseStore()

	metrics.Register()
	scanner.RecordCatalogSize(store)

	opts, err := scannerOptions(cfg, logger)
	if err != nil {
		return err
	}
	snap, err := scheduledSnapshotter(cfg, store)
	if err != nil {
		return err
	}
	w, err := watcher.New(watcher.Options{
		Debounce: cfg.Debounce,
		Exclude:  cfg.ExcludePatterns,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	logger.Info("starting catalog watcher",
		"libraries", len(cfg.Libraries), "database", cfg.DatabasePath, "database_type", cfg.DatabaseType,
		"debounce", cfg.Debounce)

	// A library whose watch cannot be established stops the whole daemon.
	g, gctx := errgroup.WithContext(ctx)
	for _, lib := range cfg.Libraries {
		ingestor := scanner.New(store, lib, opts)
		daemon := reconciler.NewDaemon(w, reconciler.New(logger, store, ingestor, lib), logger)
		g.Go(func() error {
			return daemon.Run(gctx)
		})
	}

	if cfg.StatusAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		srv := server.New(server.Options{
			Addr:         cfg.StatusAddr,
			Store:        store,
			Libraries:    cfg.Libraries,
			DatabaseType: cfg.DatabaseType,
			Version:      Version,
			Credentials: middleware.Credentials{
				Username:     cfg.StatusUsername,
				PasswordHash: cfg.StatusPasswordHash,
			},
			RateLimit:      cfg.StatusRateLimit,
			RateLimitBurst: cfg.StatusRateBurst,
			StatsTTL:       statsTTL,
			Logger:         logger,
		})
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if snap != nil {
		bcfg := backupConfig(cfg, logger)
		g.Go(func() error {
			return backup.Schedule(gctx, cfg.BackupInterval, snap, cfg.DatabaseType, bcfg)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("catalog watcher stopped")
	return nil
}

// scheduledSnapshotter returns the store as a Snapshotter when scheduled
// backups are enabled, and nil when they are not.
func scheduledSnapshotter(cfg config.Config, store database.Store) (database.Snapshotter, error) {
	if cfg.BackupInterval <= 0 {
		return nil, nil
	}
	snap, ok := store.(database.Snapshotter)
	if !ok {
		return nil, fmt.Errorf("backup_interval is set: %w", database.ErrSnapshotUnsupported)
	}
	return snap, nil
}

func backupConfig(cfg config.Config, logger *slog.Logger) backup.Config {
	bcfg := backup.DefaultConfig()
	bcfg.Dir = cfg.BackupDir
	bcfg.MaxBackups = cfg.BackupMax
	bcfg.Logger = logger
	return bcfg
}
