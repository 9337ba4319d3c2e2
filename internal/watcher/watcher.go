// file: internal/watcher/watcher.go
// version: 3.0.0
// guid: b2c3d4e5-f6a7-8901-bcde-f23456789012

package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jdfalk/catalog-watcher/internal/logging"
)

// DefaultDebounce is the default debounce period.
const DefaultDebounce = time.Second

// ErrNotDirectory is returned by Watch when the root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Options configures a Watcher.
type Options struct {
	// Debounce is how long a path must stay quiet before its change is
	// reported. Zero means DefaultDebounce.
	Debounce time.Duration
	// Exclude lists glob patterns for paths that are never watched or reported.
	Exclude []string
	Logger  *slog.Logger
}

// Watcher turns fsnotify events under a directory tree into debounced
// Notifications. One Watcher can serve any number of Watch calls.
type Watcher struct {
	debounce time.Duration
	excludes *ExcludeSet
	logger   *slog.Logger
}

// New creates a Watcher from opts.
func New(opts Options) (*Watcher, error) {
	excludes, err := CompileExcludes(opts.Exclude)
	if err != nil {
		return nil, err
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		debounce: debounce,
		excludes: excludes,
		logger:   logging.OrDefault(opts.Logger).With("component", "watcher"),
	}, nil
}

// Debounce returns the effective debounce window.
func (w *Watcher) Debounce() time.Duration { return w.debounce }

// Watch starts a recursive watch of root. Notifications and stream errors
// are delivered until ctx is cancelled, after which both channels close.
// A failure to establish the watch is returned directly.
func (w *Watcher) Watch(ctx context.Context, root string) (<-chan Notification, <-chan error, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("watch %s: %w", root, ErrNotDirectory)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("watch %s: %w", root, err)
	}

	out := make(chan Notification, 64)
	s := &session{
		root:     root,
		fsw:      fsw,
		excludes: w.excludes,
		logger:   w.logger.With("root", root),
		dirs:     make(map[string]bool),
		out:      out,
		errs:     make(chan error, 16),
	}
	s.coalescer = newCoalescer(w.debounce, out)
	s.coalescer.expand = s.expand

	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, nil, fmt.Errorf("watch %s: %w", root, err)
	}
	s.dirs[root] = true
	s.addRecursive(root)

	s.logger.Info("watching library", "directories", len(s.dirs), "debounce", w.debounce)
	go s.run(ctx)
	return out, s.errs, nil
}

// session is one running Watch.
type session struct {
	root      string
	fsw       *fsnotify.Watcher
	excludes  *ExcludeSet
	logger    *slog.Logger
	coalescer *coalescer

	// dirs is only touched by the run goroutine after setup.
	dirs map[string]bool

	out  chan Notification
	errs chan error
}

func (s *session) run(ctx context.Context) {
	defer func() {
		s.fsw.Close()
		s.coalescer.stop()
		close(s.out)
		close(s.errs)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handle(event)
		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.logger.Error("watch error", "error", err)
			select {
			case s.errs <- err:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *session) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if s.excludes.Match(s.root, path) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		isDir := false
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			isDir = true
			s.addRecursive(path)
		}
		s.coalescer.observe(path, fsnotify.Create, isDir)
	case event.Has(fsnotify.Remove):
		s.forgetDir(path)
		s.coalescer.observe(path, fsnotify.Remove, false)
	case event.Has(fsnotify.Rename):
		s.coalescer.observe(path, fsnotify.Rename, s.forgetDir(path))
	case event.Has(fsnotify.Write):
		s.coalescer.observe(path, fsnotify.Write, false)
	default:
		// Chmod alone never changes catalog state.
	}
}

// addRecursive watches dir and every non-excluded directory below it.
func (s *session) addRecursive(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if !d.IsDir() {
			return nil
		}
		if s.excludes.Match(s.root, path) {
			return filepath.SkipDir
		}
		if s.dirs[path] {
			return nil
		}
		if err := s.fsw.Add(path); err != nil {
			s.logger.Warn("cannot watch directory", "path", path, "error", err)
			return nil
		}
		s.dirs[path] = true
		return nil
	})
}

// forgetDir drops the watches on path and below. It reports whether path
// was a watched directory.
func (s *session) forgetDir(path string) bool {
	if !s.dirs[path] {
		return false
	}
	prefix := path + string(filepath.Separator)
	for dir := range s.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			// The kernel may already have dropped the watch.
			_ = s.fsw.Remove(dir)
			delete(s.dirs, dir)
		}
	}
	return true
}

// expand turns a directory rename into one Rename per file below it, since
// the catalog only tracks files.
func (s *session) expand(n Notification) []Notification {
	if n.Kind != Rename || !n.dir {
		return []Notification{n}
	}
	var out []Notification
	_ = filepath.WalkDir(n.To, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if s.excludes.Match(s.root, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(n.To, path)
		if err != nil {
			return nil
		}
		out = append(out, RenameOf(filepath.Join(n.From, rel), path))
		return nil
	})
	s.logger.Debug("expanded directory rename", "from", n.From, "to", n.To, "files", len(out))
	return out
}
