// file: internal/mediatypes/types_test.go
// version: 1.0.0
// guid: eae73bcc-cfc8-43ae-8223-bd5e5ea7553f

package mediatypes

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    MediaType
		wantErr bool
	}{
		{"movie", Movie, false},
		{"Movies", Movie, false},
		{" tv ", TV, false},
		{"series", TV, false},
		{"audiobook", Audiobook, false},
		{"books", Audiobook, false},
		{"music", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSupports(t *testing.T) {
	tests := []struct {
		mt   MediaType
		path string
		want bool
	}{
		{Movie, "/lib/movies/Foo.mkv", true},
		{Movie, "/lib/movies/Foo.MKV", true},
		{Movie, "/lib/movies/poster.jpg", false},
		{Movie, "/lib/movies/noext", false},
		{TV, "/lib/tv/Show/S01E01.mp4", true},
		{TV, "/lib/tv/Show/S01E01.m4b", false},
		{Audiobook, "/lib/books/Dune/01.m4b", true},
		{Audiobook, "/lib/books/Dune/cover.png", false},
		{MediaType("bogus"), "/x/y.mkv", false},
	}
	for _, tt := range tests {
		if got := tt.mt.Supports(tt.path); got != tt.want {
			t.Errorf("%s.Supports(%q) = %v, want %v", tt.mt, tt.path, got, tt.want)
		}
	}
}

func TestValid(t *testing.T) {
	for _, mt := range All() {
		if !mt.Valid() {
			t.Errorf("%q should be valid", mt)
		}
	}
	if MediaType("Movie").Valid() {
		t.Error("non-canonical casing should not be valid")
	}
	if MediaType("").Valid() {
		t.Error("empty media type should not be valid")
	}
}

func TestExtensionListSorted(t *testing.T) {
	exts := Audiobook.ExtensionList()
	if len(exts) != len(AudioExtensions) {
		t.Fatalf("expected %d extensions, got %d", len(AudioExtensions), len(exts))
	}
	for i := 1; i < len(exts); i++ {
		if exts[i-1] > exts[i] {
			t.Fatalf("extensions not sorted: %v", exts)
		}
	}
}
