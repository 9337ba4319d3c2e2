// file: internal/scanner/walk.go
// version: 1.0.0
// guid: 9d2b4f6a-8c1e-4a3d-b5f7-0e2c4a6b8d1f

package scanner

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Result counts what a walk did.
type Result struct {
	Found     int // supported files seen
	Mounted   int // new file records created
	Unchanged int // already tracked
	Failed    int
}

func (r *Result) add(created bool, err error) {
	switch {
	case err != nil:
		r.Failed++
	case created:
		r.Mounted++
	default:
		r.Unchanged++
	}
}

// discover lists the supported regular files below root, skipping
// excluded entries. Unreadable subdirectories are skipped; only a failure
// to read root itself is returned.
func (s *Scanner) discover(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			s.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if s.exclude.Match(s.library.Path, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && s.library.MediaType.Supports(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

// Scan mounts every supported file below path. Failures are logged per
// file and never stop the walk.
func (s *Scanner) Scan(ctx context.Context, path string) {
	files, err := s.discover(ctx, path)
	if err != nil {
		s.logger.Warn("failed to scan directory", "path", path, "error", err)
		return
	}
	var res Result
	for _, file := range files {
		if ctx.Err() != nil {
			return
		}
		created, err := s.mountOne(file)
		res.add(created, err)
	}
	res.Found = len(files)
	s.logger.Info("scanned directory", "path", path,
		"found", res.Found, "mounted", res.Mounted, "failed", res.Failed)
}

// FixOrphans mounts every supported file under the library root that the
// catalog does not track yet.
func (s *Scanner) FixOrphans(ctx context.Context) {
	files, err := s.discover(ctx, s.library.Path)
	if err != nil {
		s.logger.Warn("failed to look for orphans", "error", err)
		return
	}
	var res Result
	for _, file := range files {
		if ctx.Err() != nil {
			return
		}
		tracked, err := s.store.GetFileByPath(file)
		if err != nil {
			s.logger.Warn("failed to look up media file", "path", file, "error", err)
			res.Failed++
			continue
		}
		if tracked != nil {
			res.Unchanged++
			continue
		}
		created, err := s.mountOne(file)
		res.add(created, err)
	}
	if res.Mounted > 0 || res.Failed > 0 {
		s.logger.Info("fixed orphans", "mounted", res.Mounted, "failed", res.Failed)
	}
}

func (s *Scanner) mountOne(path string) (bool, error) {
	c, err := s.identify(path)
	if err == nil {
		var created bool
		created, err = s.save(c)
		if err == nil {
			return created, nil
		}
	}
	s.logger.Warn("failed to mount file", "path", path, "error", err)
	return false, err
}

// ScanLibrary walks the whole library, identifying files on a pool of
// workers and reporting progress to out. A nil out disables the bar.
func (s *Scanner) ScanLibrary(ctx context.Context, out io.Writer) (Result, error) {
	files, err := s.discover(ctx, s.library.Path)
	if err != nil {
		return Result{}, err
	}
	if out == nil {
		out = io.Discard
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(s.library.DisplayName()),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var (
		mu  sync.Mutex
		res = Result{Found: len(files)}
		wg  sync.WaitGroup
	)
	semaphore := make(chan struct{}, s.workers)

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() {
				<-semaphore
				_ = bar.Add(1)
			}()
			created, err := s.mountOne(path)
			mu.Lock()
			res.add(created, err)
			mu.Unlock()
		}(file)
	}
	wg.Wait()
	_ = bar.Finish()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	s.logger.Info("library scan complete",
		"found", res.Found, "mounted", res.Mounted, "unchanged", res.Unchanged, "failed", res.Failed)
	return res, nil
}
