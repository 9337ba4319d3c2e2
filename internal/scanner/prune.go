// file: internal/scanner/prune.go
// version: 1.0.0
// guid: 2e4a6c8b-0d1f-4b3e-a5c7-9e1b3d5f7a2c

package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/jdfalk/catalog-watcher/internal/metrics"
)

// PruneResult counts what Prune removed.
type PruneResult struct {
	Checked      int
	FilesRemoved int
	WorksRemoved int
	Failed       int
}

// Prune deletes the records of files under the library root that no longer
// exist on disk, then deletes every work left without files. It catches up
// on removals the watcher missed while the daemon was not running.
func (s *Scanner) Prune(ctx context.Context) (PruneResult, error) {
	var res PruneResult

	files, err := s.store.GetAllFiles(0, 0)
	if err != nil {
		return res, fmt.Errorf("failed to list media files: %w", err)
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !within(s.library.Path, f.Path) {
			continue
		}
		res.Checked++
		if _, err := os.Lstat(f.Path); err == nil || !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := s.store.DeleteFile(f.ID); err != nil {
			res.Failed++
			s.logger.Error("failed to delete media file", "path", f.Path, "file_id", f.ID, "error", err)
			continue
		}
		res.FilesRemoved++
		metrics.IncMutation(s.library.DisplayName(), metrics.OpDeleteFile)
		s.logger.Info("pruned missing media file", "path", f.Path, "file_id", f.ID)
	}

	works, err := s.store.GetAllWorks()
	if err != nil {
		return res, fmt.Errorf("failed to list works: %w", err)
	}
	for _, w := range works {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		remaining, err := s.store.GetFilesByWorkID(w.ID)
		if err != nil {
			res.Failed++
			s.logger.Warn("failed to list files of work", "work_id", w.ID, "error", err)
			continue
		}
		if len(remaining) > 0 {
			continue
		}
		if err := s.store.DeleteWork(w.ID); err != nil {
			res.Failed++
			s.logger.Error("failed to delete ghost work", "work_id", w.ID, "title", w.Title, "error", err)
			continue
		}
		res.WorksRemoved++
		metrics.IncGhostWork(s.library.DisplayName())
		s.logger.Info("purged ghost work", "work_id", w.ID, "title", w.Title)
	}

	RecordCatalogSize(s.store)
	return res, nil
}

// RecordCatalogSize publishes the current work and file counts as gauges.
func RecordCatalogSize(store database.Store) {
	if n, err := store.CountWorks(); err == nil {
		metrics.SetWorks(n)
	}
	if n, err := store.CountFiles(); err == nil {
		metrics.SetFiles(n)
	}
}

// within reports whether path lies inside root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
