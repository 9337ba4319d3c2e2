// file: internal/watcher/exclude.go
// version: 1.0.0
// guid: 0b7e3c52-1d9a-4f6e-8c2b-5a4d3e2f1c0b

package watcher

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
)

// ExcludeSet matches paths against glob patterns such as "**/.*" or "*.part".
// Patterns use '/' as separator regardless of platform.
type ExcludeSet struct {
	patterns []string
	globs    []glob.Glob
}

// CompileExcludes compiles patterns. An empty list excludes nothing.
func CompileExcludes(patterns []string) (*ExcludeSet, error) {
	set := &ExcludeSet{}
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		set.patterns = append(set.patterns, pattern)
		set.globs = append(set.globs, g)
	}
	return set, nil
}

// Patterns returns the compiled source patterns.
func (s *ExcludeSet) Patterns() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.patterns...)
}

// Match reports whether path, which lives under root, is excluded. A pattern
// may match the absolute path, the path relative to root, or the base name.
// The root itself is never excluded.
func (s *ExcludeSet) Match(root, path string) bool {
	if s == nil || len(s.globs) == 0 {
		return false
	}
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return false
	}

	abs := filepath.ToSlash(path)
	base := filepath.Base(path)
	rel := ""
	if r, err := filepath.Rel(root, path); err == nil {
		rel = filepath.ToSlash(r)
	}
	for _, g := range s.globs {
		if g.Match(abs) || g.Match(base) || (rel != "" && g.Match(rel)) {
			return true
		}
	}
	return false
}
