package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/amaumene/streamarr/internal/metacache"
)

// TitleOptions controls which title categories are expanded
type TitleOptions struct {
	Primary    string   // Primary metadata language
	Languages  []string // Languages the providers search in
	Country    string
	QueryLimit int
	Expand     bool // Add original, native, local and alias titles
	Keywords   bool // Add the collection title
	Years      []int
}

const (
	nearDuplicate = 0.85
	minTitleRunes = 3
)

var (
	bracketYear  = regexp.MustCompile(`\s*[\(\[]\s*\d{4}\s*[\)\]]`)
	trailingYear = regexp.MustCompile(`\s+(\d{4})$`)
	initialism   = regexp.MustCompile(`\b(?:[A-Za-z]\.){2,}(?:[A-Za-z]\b)?`)
	seasonTitle  = regexp.MustCompile(`^[^:]+:\s*The\s+\S+$`)
	countries    = strings.NewReplacer("U.S.A.", "usa", "U.S.", "us", "U.K.", "uk")
	apostrophes  = strings.NewReplacer("’", "'", "‘", "'", "`", "'")
	umlauts      = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "Ä", "Ae", "Ö", "Oe", "Ü", "Ue", "ß", "ss")
)

var editions = map[string]bool{
	"extended":          true,
	"extended cut":      true,
	"extended edition":  true,
	"directors cut":     true,
	"director s cut":    true,
	"remastered":        true,
	"unrated":           true,
	"theatrical cut":    true,
	"special edition":   true,
	"uncut":             true,
	"version longue":    true,
	"edicion extendida": true,
	"kinofassung":       true,
}

// Titles expands the main title of a request into the search titles, best
// first. Each category is capped by the query limit; the main title and its
// variants always come first.
func Titles(main string, doc metacache.Document, opts TitleOptions) []string {
	limit := max(3, opts.QueryLimit/2)
	expander := &titleSet{years: opts.Years}

	expander.add(limit, main)
	if !opts.Expand {
		return expander.titles
	}

	expander.add(limit, docString(doc, "originaltitle"))
	for _, language := range opts.Languages {
		if language == opts.Primary {
			continue
		}
		expander.add(limit, translations(doc, language)...)
	}
	if opts.Primary != "" && opts.Primary != "en" {
		expander.add(limit, translations(doc, opts.Primary)...)
	}
	expander.add(limit, aliases(doc, opts.Country)...)
	if opts.Keywords {
		if collection := docString(doc, "collection"); collection != "" {
			expander.add(limit, strings.TrimSuffix(collection, " Collection"))
		}
	}
	return expander.titles
}

type titleSet struct {
	years  []int
	titles []string
	words  [][]string
}

// add appends up to limit new titles derived from one category
func (s *titleSet) add(limit int, sources ...string) {
	added := 0
	for _, source := range sources {
		for _, title := range s.variants(source) {
			if added >= limit {
				return
			}
			if s.accept(title) {
				added++
			}
		}
	}
}

// variants returns the title without its year followed by its normalized
// spellings
func (s *titleSet) variants(title string) []string {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	stripped := s.stripYear(title)

	out := []string{stripped}
	if abbreviated := initialism.FindAllString(stripped, -1); len(abbreviated) > 0 {
		collapsed := initialism.ReplaceAllStringFunc(stripped, func(m string) string {
			return strings.ReplaceAll(m, ".", "")
		})
		spaced := initialism.ReplaceAllStringFunc(stripped, func(m string) string {
			return strings.TrimSpace(strings.ReplaceAll(m, ".", " "))
		})
		out = append(out, collapsed, spaced)
	}

	base := apostrophes.Replace(countries.Replace(stripped))
	out = append(out, foldUnicode(base), foldUnicode(umlauts.Replace(base)))
	out = append(out, dropPossessive(base), strings.ReplaceAll(base, "'", ""))
	out = append(out, asciiOnly(base))

	for i, v := range out {
		out[i] = strings.Join(strings.Fields(v), " ")
	}
	return out
}

// accept adds title unless it is too short, a year, an edition marker or a
// near-duplicate of an accepted title
func (s *titleSet) accept(title string) bool {
	if len([]rune(title)) < minTitleRunes {
		return false
	}
	lower := strings.ToLower(title)
	if lower == "the" || s.isYear(lower) {
		return false
	}
	words := titleWords(lower)
	if len(words) == 0 || editions[strings.Join(words, " ")] {
		return false
	}
	for i, existing := range s.titles {
		if strings.EqualFold(existing, title) || sharedRatio(s.words[i], words) >= nearDuplicate && !sameWords(s.words[i], words) {
			return false
		}
	}
	s.titles = append(s.titles, title)
	s.words = append(s.words, words)
	return true
}

// stripYear removes "(2017)" and a trailing year adjacent to a known year
func (s *titleSet) stripYear(title string) string {
	title = bracketYear.ReplaceAllString(title, "")
	if m := trailingYear.FindStringSubmatch(title); m != nil {
		year, _ := strconv.Atoi(m[1])
		for _, y := range s.years {
			if year >= y-1 && year <= y+1 {
				title = strings.TrimSpace(title[:len(title)-len(m[0])])
				break
			}
		}
	}
	return strings.TrimSpace(title)
}

func (s *titleSet) isYear(title string) bool {
	if len(title) != 4 {
		return false
	}
	year, err := strconv.Atoi(title)
	if err != nil {
		return false
	}
	if len(s.years) == 0 {
		return year >= 1900 && year <= 2100
	}
	for _, y := range s.years {
		if y == year {
			return true
		}
	}
	return false
}

// sameWords reports titles differing only in punctuation. Those are distinct
// search strings and both are kept.
func sameWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sharedRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	shared := 0
	for _, w := range b {
		if set[w] {
			shared++
		}
	}
	return float64(shared) / float64(max(len(a), len(b)))
}

func titleWords(title string) []string {
	return strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// foldUnicode removes diacritics
func foldUnicode(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

func asciiOnly(s string) string {
	result, _, err := transform.String(runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})), foldUnicode(s))
	if err != nil {
		return s
	}
	return result
}

// dropPossessive turns "Bob's Burgers" into "Bob Burgers"
func dropPossessive(s string) string {
	s = strings.ReplaceAll(s, "'s ", " ")
	s = strings.TrimSuffix(s, "'s")
	return strings.ReplaceAll(s, "'", "")
}

func docString(doc metacache.Document, key string) string {
	value, _ := doc[key].(string)
	return value
}

func translations(doc metacache.Document, language string) []string {
	all, _ := doc["translations"].(map[string]any)
	list, _ := all[language].([]any)
	var titles []string
	for _, entry := range list {
		if title, ok := entry.(string); ok {
			titles = append(titles, title)
		}
	}
	return titles
}

// aliases returns the alias titles of the configured country, then the
// American ones. Season titles such as "Fargo: The Year" are skipped.
func aliases(doc metacache.Document, country string) []string {
	list, _ := doc["aliases"].([]any)
	var preferred, rest []string
	for _, entry := range list {
		alias, _ := entry.(map[string]any)
		title, _ := alias["title"].(string)
		if title == "" || seasonTitle.MatchString(title) {
			continue
		}
		switch code, _ := alias["country"].(string); {
		case country != "" && strings.EqualFold(code, country):
			preferred = append(preferred, title)
		case strings.EqualFold(code, "us"):
			rest = append(rest, title)
		}
	}
	return append(preferred, rest...)
}
