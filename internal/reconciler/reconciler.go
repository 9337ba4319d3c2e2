// file: internal/reconciler/reconciler.go
// version: 1.1.0
// guid: 5c7e9a1b-3d2f-4e6a-8b0c-1d2e3f4a5b6c

// Package reconciler keeps the catalog consistent with filesystem changes
// under one library root.
//
// Each handler re-resolves the records it needs from the store on every
// call, so duplicate, missing or out-of-order notifications are harmless:
// anything that does not resolve is a no-op. Two invariants hold after a
// handler returns successfully: no file record outlives its file, and no
// work is left without files.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/jdfalk/catalog-watcher/internal/config"
	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/jdfalk/catalog-watcher/internal/logging"
	"github.com/jdfalk/catalog-watcher/internal/metrics"
)

// ErrUnrepresentablePath is reported when a path is not valid UTF-8 and so
// cannot be stored in the catalog.
var ErrUnrepresentablePath = errors.New("path is not valid UTF-8")

// CatalogStore is the part of database.Store the handlers use.
type CatalogStore interface {
	GetFileByPath(path string) (*database.MediaFile, error)
	GetWorkByID(id string) (*database.Work, error)
	GetFilesByWorkID(workID string) ([]database.MediaFile, error)
	DeleteFile(id string) error
	DeleteWork(id string) error
	UpdateFile(id string, update *database.FileUpdate) error
}

// Ingestor brings files on disk into the catalog.
type Ingestor interface {
	// Mount ingests one newly discovered supported file.
	Mount(ctx context.Context, path string) error
	// Scan recursively ingests every supported file below path.
	Scan(ctx context.Context, path string)
	// FixOrphans ingests any file under the library root the catalog lacks.
	FixOrphans(ctx context.Context)
}

// Reconciler applies the catalog mutation implied by each filesystem change.
// It is not safe for concurrent use; the Daemon calls it from one goroutine.
type Reconciler struct {
	logger   *slog.Logger
	store    CatalogStore
	ingestor Ingestor
	library  config.Library
}

// New creates a Reconciler for library.
func New(logger *slog.Logger, store CatalogStore, ingestor Ingestor, library config.Library) *Reconciler {
	return &Reconciler{
		logger:   logging.OrDefault(logger).With("library", library.DisplayName()),
		store:    store,
		ingestor: ingestor,
		library:  library,
	}
}

// Library returns the library root this reconciler serves.
func (r *Reconciler) Library() config.Library { return r.library }

func (r *Reconciler) label() string { return r.library.DisplayName() }

// HandleCreate ingests a newly created path. A supported file is mounted and
// a directory is scanned. Orphans are then fixed unless the mount failed.
func (r *Reconciler) HandleCreate(ctx context.Context, path string) {
	r.logger.Debug("handling create", "path", path)

	info, err := os.Stat(path)
	switch {
	case err == nil && info.Mode().IsRegular() && r.library.MediaType.Supports(path):
		if err := r.ingestor.Mount(ctx, path); err != nil {
			metrics.IncFailure(r.label(), metrics.OpMount)
			r.logger.Warn("failed to mount file", "path", path, "error", err)
			return
		}
		metrics.IncMutation(r.label(), metrics.OpMount)
	case err == nil && info.IsDir():
		r.ingestor.Scan(ctx, path)
		metrics.IncMutation(r.label(), metrics.OpScan)
	case err != nil:
		// Gone again before we got to it; orphan fixing still runs.
		r.logger.Debug("created path vanished", "path", path, "error", err)
	}

	r.ingestor.FixOrphans(ctx)
	metrics.IncMutation(r.label(), metrics.OpFixOrphans)
}

// HandleRemove deletes the file record tracked at path and, when that was
// the last file of its work, the work as well.
func (r *Reconciler) HandleRemove(ctx context.Context, path string) {
	r.logger.Debug("handling remove", "path", path)

	file := r.lookup(path)
	if file == nil {
		return
	}

	work, err := r.store.GetWorkByID(file.WorkID)
	if err != nil {
		r.logger.Warn("failed to resolve work of removed file, skipping ghost check",
			"path", path, "work_id", file.WorkID, "error", err)
		work = nil
	}

	if err := r.store.DeleteFile(file.ID); err != nil {
		metrics.IncFailure(r.label(), metrics.OpDeleteFile)
		r.logger.Error("failed to delete media file", "path", path, "file_id", file.ID, "error", err)
		return
	}
	metrics.IncMutation(r.label(), metrics.OpDeleteFile)
	r.logger.Info("removed media file", "path", path, "file_id", file.ID)

	if work == nil {
		return
	}
	r.purgeIfGhost(work)
}

// purgeIfGhost deletes work when no file references it any more.
func (r *Reconciler) purgeIfGhost(work *database.Work) {
	remaining, err := r.store.GetFilesByWorkID(work.ID)
	if err != nil {
		r.logger.Warn("failed to list files of work, skipping ghost check", "work_id", work.ID, "error", err)
		return
	}
	if len(remaining) > 0 {
		return
	}
	if err := r.store.DeleteWork(work.ID); err != nil {
		metrics.IncFailure(r.label(), metrics.OpDeleteWork)
		r.logger.Error("failed to delete ghost work", "work_id", work.ID, "title", work.Title, "error", err)
		return
	}
	metrics.IncMutation(r.label(), metrics.OpDeleteWork)
	metrics.IncGhostWork(r.label())
	r.logger.Info("purged ghost work", "work_id", work.ID, "title", work.Title)
}

// HandleRename points the file record tracked at from to its new path.
// Nothing else on the record changes and the owning work is untouched.
func (r *Reconciler) HandleRename(ctx context.Context, from, to string) {
	r.logger.Debug("handling rename", "from", from, "to", to)

	file := r.lookup(from)
	if file == nil {
		return
	}

	if err := r.renameFile(file, to); err != nil {
		metrics.IncFailure(r.label(), metrics.OpUpdateFile)
		if errors.Is(err, database.ErrPathTracked) {
			// Both records stay; the one at from no longer has a file.
			metrics.IncRenameCollision(r.label())
			r.logger.Warn("rename target already tracked; run prune to drop the stale record",
				"from", from, "to", to, "file_id", file.ID)
			return
		}
		r.logger.Error("failed to update media file path",
			"from", from, "to", to, "file_id", file.ID, "error", err)
		return
	}
	metrics.IncMutation(r.label(), metrics.OpUpdateFile)
	r.logger.Info("renamed media file", "from", from, "to", to, "file_id", file.ID)
}

func (r *Reconciler) renameFile(file *database.MediaFile, to string) error {
	if !utf8.ValidString(to) {
		return fmt.Errorf("rename target %q: %w", to, ErrUnrepresentablePath)
	}
	return r.store.UpdateFile(file.ID, &database.FileUpdate{Path: &to})
}

// lookup resolves the file record tracked at path. Untracked paths, paths
// the catalog cannot represent, and failed lookups all yield nil.
func (r *Reconciler) lookup(path string) *database.MediaFile {
	if !utf8.ValidString(path) {
		r.logger.Debug("ignoring unrepresentable path", "path", path)
		return nil
	}
	file, err := r.store.GetFileByPath(path)
	if err != nil {
		metrics.IncFailure(r.label(), metrics.OpLookup)
		r.logger.Warn("failed to look up media file", "path", path, "error", err)
		return nil
	}
	if file == nil {
		r.logger.Debug("path not tracked", "path", path)
	}
	return file
}
