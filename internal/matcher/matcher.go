// file: internal/matcher/matcher.go
// version: 2.1.0
// guid: 1f2a3b4c-5d6e-7f8a-9b0c-1d2e3f4a5b6c

package matcher

import (
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/jdfalk/catalog-watcher/internal/mediatypes"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Parsed is what a file name says about the work it belongs to.
type Parsed struct {
	Title   string
	Year    *int
	Season  *int
	Episode *int
	Part    *int
}

var (
	// "Title (1999)", "Title.1999.1080p", "Title [1999]"
	yearPattern = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

	// "Show.S01E02", "Show - s1e2 - Pilot"
	seasonEpisodePattern = regexp.MustCompile(`(?i)^(.*?)[\s._\-]*s(\d{1,2})[\s._\-]?e(\d{1,3})`)
	// "Show 1x02"
	crossEpisodePattern = regexp.MustCompile(`(?i)^(.*?)[\s._\-]*\b(\d{1,2})x(\d{2,3})\b`)
	// "Season 1", "S01"
	seasonDirPattern = regexp.MustCompile(`(?i)^(?:season|series|s)[\s._\-]*(\d{1,2})$`)

	// "Book - Part 01", "Book - 01", "Book Chapter 3", "01"
	partPattern = regexp.MustCompile(`(?i)^(.*?)[\s._\-]*(?:(?:part|pt|chapter|ch|disc|cd|track)\.?[\s._\-]*)?(\d{1,3})$`)

	// Release noise trailing a title when no year delimits it.
	qualityPattern = regexp.MustCompile(`(?i)(?:^|[\s._\-]+)(?:2160p|1080p|720p|480p|4k|bluray|web[\s._\-]?dl|webrip|hdtv|x264|x265|hevc|remux)\b.*$`)
)

// ParseFilename derives the work identity of path for a library of type mt.
// Directory names fill in whatever the base name lacks.
func ParseFilename(path string, mt mediatypes.MediaType) Parsed {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch mt {
	case mediatypes.TV:
		return parseEpisode(base, path)
	case mediatypes.Audiobook:
		return parseAudiobook(base, path)
	default:
		return parseMovie(base, path)
	}
}

func parseMovie(base, path string) Parsed {
	p := splitYear(base)
	if p.Title == "" {
		// "1080p.mkv" inside "Heat (1995)/"
		parent := splitYear(filepath.Base(filepath.Dir(path)))
		p.Title = parent.Title
		if p.Year == nil {
			p.Year = parent.Year
		}
	}
	return p
}

func parseEpisode(base, path string) Parsed {
	var p Parsed
	rest := base
	if m := seasonEpisodePattern.FindStringSubmatch(base); m != nil {
		rest = m[1]
		p.Season = atoi(m[2])
		p.Episode = atoi(m[3])
	} else if m := crossEpisodePattern.FindStringSubmatch(base); m != nil {
		rest = m[1]
		p.Season = atoi(m[2])
		p.Episode = atoi(m[3])
	}

	show := splitYear(rest)
	if show.Title == "" {
		show = splitYear(showDir(path, &p))
	}
	p.Title = show.Title
	p.Year = show.Year
	return p
}

// showDir returns the directory naming the show, skipping a season folder.
// A season folder also supplies the season number when the file name lacks it.
func showDir(path string, p *Parsed) string {
	dir := filepath.Dir(path)
	name := filepath.Base(dir)
	if m := seasonDirPattern.FindStringSubmatch(name); m != nil {
		if p.Season == nil {
			p.Season = atoi(m[1])
		}
		return filepath.Base(filepath.Dir(dir))
	}
	return name
}

func parseAudiobook(base, path string) Parsed {
	var p Parsed
	title := cleanSeparators(base)
	if m := partPattern.FindStringSubmatch(title); m != nil {
		title = strings.TrimSpace(m[1])
		p.Part = atoi(m[2])
	}
	if title == "" {
		// "01.mp3" inside "Dune/"
		title = cleanSeparators(filepath.Base(filepath.Dir(path)))
	}
	// "Frank Herbert - Dune" keeps the title after the author.
	if author, rest, ok := strings.Cut(title, " - "); ok && author != "" && rest != "" {
		title = strings.TrimSpace(rest)
	}
	p.Title = title
	return p
}

// splitYear separates a trailing release year and release noise from s.
// The last year with a non-empty title before it wins, so
// "2001 A Space Odyssey (1968)" keeps its leading number.
func splitYear(s string) Parsed {
	s = cleanSeparators(s)
	matches := yearPattern.FindAllStringSubmatchIndex(s, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		title := cleanSeparators(s[:matches[i][0]])
		if title != "" {
			return Parsed{Title: title, Year: atoi(s[matches[i][2]:matches[i][3]])}
		}
	}
	return Parsed{Title: cleanSeparators(qualityPattern.ReplaceAllString(s, ""))}
}

// cleanSeparators turns dotted or underscored release names into words.
func cleanSeparators(s string) string {
	if !strings.Contains(s, " ") {
		s = strings.NewReplacer(".", " ", "_", " ").Replace(s)
	}
	s = strings.Trim(s, " -._[]()")
	return strings.Join(strings.Fields(s), " ")
}

func atoi(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

var foldTitle = cases.Fold()

// NormalizeTitle reduces a title to the form used for matching: accents
// stripped, case folded, punctuation collapsed, leading article dropped.
func NormalizeTitle(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, title)
	if err != nil {
		stripped = title
	}
	folded := foldTitle.String(stripped)

	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())
	if len(words) > 1 {
		switch words[0] {
		case "the", "a", "an":
			words = words[1:]
		}
	}
	return strings.Join(words, " ")
}

// maxDistance is the edit distance tolerated between normalized titles.
func maxDistance(title string) int {
	return len([]rune(title)) / 10
}

// FindWork returns the candidate that p most plausibly belongs to, or nil.
// Candidates of another media type never match. When both sides carry a
// year the years must agree. An exact normalized title wins over a near one.
func FindWork(candidates []database.Work, p Parsed, mt mediatypes.MediaType) *database.Work {
	want := NormalizeTitle(p.Title)
	if want == "" {
		return nil
	}

	var best *database.Work
	bestDistance := maxDistance(want) + 1
	for i := range candidates {
		c := &candidates[i]
		if c.MediaType != string(mt) {
			continue
		}
		if p.Year != nil && c.Year != nil && *p.Year != *c.Year {
			continue
		}
		have := NormalizeTitle(c.Title)
		if have == want {
			return c
		}
		if !fuzzy.MatchNormalizedFold(want, have) && !fuzzy.MatchNormalizedFold(have, want) {
			continue
		}
		if !sameNumerals(want, have) {
			// "Part II" and "Part III" are different works.
			continue
		}
		if d := fuzzy.LevenshteinDistance(want, have); d < bestDistance {
			best = c
			bestDistance = d
		}
	}
	return best
}

var romanNumeral = regexp.MustCompile(`^x{0,3}(ix|iv|v?i{0,3})$`)

// numerals returns the number tokens of a normalized title, arabic or roman.
func numerals(title string) []string {
	var out []string
	for _, w := range strings.Fields(title) {
		if _, err := strconv.Atoi(w); err == nil || romanNumeral.MatchString(w) {
			out = append(out, w)
		}
	}
	return out
}

func sameNumerals(a, b string) bool {
	return slices.Equal(numerals(a), numerals(b))
}
