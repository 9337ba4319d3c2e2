// file: internal/scanner/scanner.go
// version: 2.0.0
// guid: 3c4d5e6f-7a8b-9c0d-1e2f-3a4b5c6d7e8f

// Package scanner brings media files on disk into the catalog: a single
// file (Mount), a subtree (Scan), the whole library (FixOrphans,
// ScanLibrary), and the reverse direction of dropping records whose files
// are gone (Prune).
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jdfalk/catalog-watcher/internal/config"
	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/jdfalk/catalog-watcher/internal/logging"
	"github.com/jdfalk/catalog-watcher/internal/matcher"
	"github.com/jdfalk/catalog-watcher/internal/mediatypes"
	"github.com/jdfalk/catalog-watcher/internal/watcher"
)

var (
	// ErrUnsupported is returned by Mount for a file the library does not ingest.
	ErrUnsupported = errors.New("unsupported media file")
	// ErrNoTitle is returned by Mount when neither tags nor the path name a work.
	ErrNoTitle = errors.New("cannot determine work title")
)

// Options configures a Scanner.
type Options struct {
	// Exclude skips matching files and directories during walks.
	Exclude *watcher.ExcludeSet
	// Workers bounds concurrent identification in ScanLibrary. Values below 1 mean 1.
	Workers int
	Logger  *slog.Logger
}

// Scanner ingests files of one library into a Store.
type Scanner struct {
	store   database.Store
	library config.Library
	exclude *watcher.ExcludeSet
	workers int
	logger  *slog.Logger

	// commit serializes work resolution so concurrent mounts of the same
	// title share one work.
	commit sync.Mutex

	readTags func(path string) (tagInfo, bool)
}

// New creates a Scanner for library backed by store.
func New(store database.Store, library config.Library, opts Options) *Scanner {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Scanner{
		store:    store,
		library:  library,
		exclude:  opts.Exclude,
		workers:  workers,
		logger:   logging.OrDefault(opts.Logger).With("library", library.DisplayName(), "component", "scanner"),
		readTags: readTags,
	}
}

// Library returns the library this scanner ingests into.
func (s *Scanner) Library() config.Library { return s.library }

// candidate is a file identified on disk but not yet written to the store.
type candidate struct {
	path   string
	format string
	size   int64
	ident  matcher.Parsed
}

// Mount ingests the file at path. A path that is already tracked only has
// its size refreshed, so mounting twice is harmless.
func (s *Scanner) Mount(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := s.identify(path)
	if err != nil {
		return err
	}
	_, err = s.save(c)
	return err
}

// identify stats path and works out which work it belongs to.
func (s *Scanner) identify(path string) (*candidate, error) {
	if !utf8.ValidString(path) {
		return nil, fmt.Errorf("%q: path is not valid UTF-8", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() || !s.library.MediaType.Supports(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}

	ident := matcher.ParseFilename(path, s.library.MediaType)
	if s.library.MediaType == mediatypes.Audiobook {
		if tags, ok := s.readTags(path); ok {
			tags.apply(&ident)
		}
	}
	if strings.TrimSpace(ident.Title) == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrNoTitle)
	}

	return &candidate{
		path:   path,
		format: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		size:   info.Size(),
		ident:  ident,
	}, nil
}

// save writes c to the catalog. It reports whether a new file record
// was created.
func (s *Scanner) save(c *candidate) (bool, error) {
	s.commit.Lock()
	defer s.commit.Unlock()

	existing, err := s.store.GetFileByPath(c.path)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", c.path, err)
	}
	if existing != nil {
		if existing.Size != c.size {
			size := c.size
			if err := s.store.UpdateFile(existing.ID, &database.FileUpdate{Size: &size}); err != nil {
				return false, fmt.Errorf("failed to refresh size of %s: %w", c.path, err)
			}
		}
		return false, nil
	}

	work, created, err := s.resolveWork(c.ident)
	if err != nil {
		return false, err
	}

	file := &database.MediaFile{
		WorkID:  work.ID,
		Path:    c.path,
		Format:  c.format,
		Size:    c.size,
		Season:  c.ident.Season,
		Episode: c.ident.Episode,
	}
	if _, err := s.store.CreateFile(file); err != nil {
		if created {
			// Do not leave a work behind with no files.
			if derr := s.store.DeleteWork(work.ID); derr != nil {
				s.logger.Warn("failed to roll back work", "work_id", work.ID, "error", derr)
			}
		}
		return false, fmt.Errorf("failed to create media file %s: %w", c.path, err)
	}
	s.logger.Info("mounted media file", "path", c.path, "file_id", file.ID, "work_id", work.ID, "title", work.Title)
	return true, nil
}

// resolveWork finds the work ident belongs to, creating it when none
// matches. Works sharing the exact title are preferred over fuzzy matches.
func (s *Scanner) resolveWork(ident matcher.Parsed) (*database.Work, bool, error) {
	mt := s.library.MediaType

	exact, err := s.store.GetWorksByTitle(ident.Title)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up works titled %q: %w", ident.Title, err)
	}
	if w := matcher.FindWork(exact, ident, mt); w != nil {
		return w, false, nil
	}

	all, err := s.store.GetAllWorks()
	if err != nil {
		return nil, false, fmt.Errorf("failed to list works: %w", err)
	}
	if w := matcher.FindWork(all, ident, mt); w != nil {
		return w, false, nil
	}

	work, err := s.store.CreateWork(&database.Work{
		Title:     strings.TrimSpace(ident.Title),
		Year:      ident.Year,
		MediaType: string(mt),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create work %q: %w", ident.Title, err)
	}
	return work, true, nil
}
