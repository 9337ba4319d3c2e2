// file: internal/scanner/tags.go
// version: 1.0.0
// guid: 6a1d9e3b-4c2f-4b8a-9e7d-2f5c8b0a1d3e

package scanner

import (
	"os"
	"strings"

	"github.com/dhowden/tag"
	"github.com/jdfalk/catalog-watcher/internal/matcher"
)

// tagInfo is the subset of embedded audio tags used to identify a work.
type tagInfo struct {
	Album string
	Title string
	Year  int
	Track int
}

// readTags reads embedded tags from path. Files without readable tags
// report false and are identified from their path alone.
func readTags(path string) (tagInfo, bool) {
	f, err := os.Open(path)
	if err != nil {
		return tagInfo{}, false
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return tagInfo{}, false
	}
	track, _ := m.Track()
	return tagInfo{
		Album: strings.TrimSpace(m.Album()),
		Title: strings.TrimSpace(m.Title()),
		Year:  m.Year(),
		Track: track,
	}, true
}

// apply overlays tag values onto a filename-derived identity. For a book
// split into tracks the album names the work, not the track title.
func (t tagInfo) apply(p *matcher.Parsed) {
	switch {
	case t.Album != "":
		p.Title = t.Album
	case t.Title != "" && p.Title == "":
		p.Title = t.Title
	}
	if t.Year > 0 {
		year := t.Year
		p.Year = &year
	}
	if t.Track > 0 && p.Part == nil {
		track := t.Track
		p.Part = &track
	}
}
