// file: internal/backup/schedule.go
// version: 1.0.0
// guid: 7b9d1f3a-5c2e-4f4b-8d6a-9e1f3b5d7c8f

package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/jdfalk/catalog-watcher/internal/logging"
)

// Schedule creates a backup every interval until ctx is cancelled. A failed
// backup is logged and retried at the next tick.
func Schedule(ctx context.Context, interval time.Duration, store database.Snapshotter, dbType string, cfg Config) error {
	if interval <= 0 {
		return fmt.Errorf("backup interval must be positive, got %s", interval)
	}
	logger := logging.OrDefault(cfg.Logger).With("component", "backup")
	cfg.Logger = logger
	logger.Info("scheduled backups enabled", "interval", interval, "dir", cfg.Dir)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := Create(store, dbType, cfg); err != nil {
				logger.Error("scheduled backup failed", "error", err)
			}
		}
	}
}
