// file: internal/reconciler/dispatcher.go
// version: 1.0.0
// guid: 8e0a2c4d-6f1b-4a3c-9d5e-7f8a9b0c1d2e

package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jdfalk/catalog-watcher/internal/logging"
	"github.com/jdfalk/catalog-watcher/internal/metrics"
	"github.com/jdfalk/catalog-watcher/internal/watcher"
)

// WatchSource produces debounced change notifications for a directory tree.
// Both channels close once ctx is cancelled or the source gives up.
type WatchSource interface {
	Watch(ctx context.Context, root string) (<-chan watcher.Notification, <-chan error, error)
}

// Daemon runs the event loop for one library root.
type Daemon struct {
	source     WatchSource
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewDaemon creates a Daemon feeding notifications from source into r.
func NewDaemon(source WatchSource, r *Reconciler, logger *slog.Logger) *Daemon {
	return &Daemon{
		source:     source,
		reconciler: r,
		logger:     logging.OrDefault(logger).With("library", r.Library().DisplayName()),
	}
}

// Run watches the library root and handles notifications one at a time, in
// delivery order, until ctx is cancelled or the notification stream closes.
// Only a failure to establish the watch is returned; per-event failures are
// logged and never end the loop.
func (d *Daemon) Run(ctx context.Context) error {
	root := d.reconciler.Library().Path
	notes, errs, err := d.source.Watch(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to watch library %s: %w", root, err)
	}

	label := d.reconciler.Library().DisplayName()
	metrics.AddLibraries(1)
	defer metrics.AddLibraries(-1)
	d.logger.Info("library daemon started", "path", root)
	defer d.logger.Info("library daemon stopped", "path", root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notes:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, n)
		case err, ok := <-errs:
			if !ok {
				// Keep draining notifications; the stream decides when we stop.
				errs = nil
				continue
			}
			metrics.IncWatchError(label)
			d.logger.Error("received watch error", "error", err)
		}
	}
}

// Dispatch routes one notification to its handler.
func (d *Daemon) Dispatch(ctx context.Context, n watcher.Notification) {
	start := time.Now()
	metrics.IncNotification(d.reconciler.Library().DisplayName(), n.Kind.String())
	defer func() { metrics.ObserveHandlerDuration(n.Kind.String(), time.Since(start)) }()

	switch n.Kind {
	case watcher.Create:
		d.reconciler.HandleCreate(ctx, n.Path)
	case watcher.Rename:
		d.reconciler.HandleRename(ctx, n.From, n.To)
	case watcher.Remove:
		d.reconciler.HandleRemove(ctx, n.Path)
	case watcher.Error:
		metrics.IncWatchError(d.reconciler.Library().DisplayName())
		d.logger.Error("received watch error", "error", n.Err)
	default:
		d.logger.Debug("ignoring unmatched notification", "notification", n.String())
	}
}
