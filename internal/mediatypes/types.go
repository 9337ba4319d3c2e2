// file: internal/mediatypes/types.go
// version: 1.0.0
// guid: 4e3c8be0-18db-4b36-8073-912c1b82f285

// Package mediatypes defines the media-type tags a library root can carry
// and the file extensions each of them ingests.
//
// It has no dependencies beyond the standard library so config, scanner and
// reconciler can all import it without cycles.
package mediatypes

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// MediaType tags a library root with the kind of media it holds.
type MediaType string

const (
	// Movie libraries hold one work per film.
	Movie MediaType = "movie"
	// TV libraries group episode files under their show.
	TV MediaType = "tv"
	// Audiobook libraries group part files under their book.
	Audiobook MediaType = "audiobook"
)

// VideoExtensions are the container formats mounted for movie and tv libraries.
var VideoExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".m4v":  true,
	".avi":  true,
	".webm": true,
	".mov":  true,
	".ts":   true,
}

// AudioExtensions are the formats mounted for audiobook libraries.
var AudioExtensions = map[string]bool{
	".m4b":  true,
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
	".wma":  true,
}

// All lists every known media type.
func All() []MediaType {
	return []MediaType{Movie, TV, Audiobook}
}

// Parse converts a config string into a MediaType.
func Parse(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies", "film":
		return Movie, nil
	case "tv", "show", "shows", "series":
		return TV, nil
	case "audiobook", "audiobooks", "book", "books":
		return Audiobook, nil
	default:
		return "", fmt.Errorf("unknown media type %q (supported: movie, tv, audiobook)", s)
	}
}

// Valid reports whether t is a known media type.
func (t MediaType) Valid() bool {
	_, err := Parse(string(t))
	return err == nil && string(t) == strings.ToLower(string(t))
}

// Extensions returns the supported extension set for t. Unknown types have none.
func (t MediaType) Extensions() map[string]bool {
	switch t {
	case Movie, TV:
		return VideoExtensions
	case Audiobook:
		return AudioExtensions
	default:
		return nil
	}
}

// ExtensionList returns the supported extensions of t in sorted order.
func (t MediaType) ExtensionList() []string {
	exts := make([]string, 0, len(t.Extensions()))
	for ext := range t.Extensions() {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether path has an extension t ingests.
// Matching is case-insensitive, so "Movie.MKV" counts as ".mkv".
func (t MediaType) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	return t.Extensions()[ext]
}
