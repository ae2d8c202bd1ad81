package adjuster

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/moistari/rls"

	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/utils"
)

// titleSimilarity is the minimum similarity between a release title and one
// of the searched titles
const titleSimilarity = 0.75

// Finalize runs the enabled exclusion filters over every stream and returns
// the number of usable streams. The filters already ran as streams were added
// and processed; this pass settles streams whose processing never finished.
func (a *Adjuster) Finalize() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	usable := 0
	for _, stream := range a.streams {
		a.excludeLocked(stream)
		if !stream.Excluded(a.opts.Exclusions | models.ExcludeDuplicate) {
			usable++
		}
	}
	return usable
}

// excludeLocked sets the flags of every enabled filter the stream fails.
// Flags are only ever added.
func (a *Adjuster) excludeLocked(stream *models.Stream) {
	enabled := a.opts.Exclusions
	set := func(flag models.ExclusionFlag, hit bool) {
		if enabled.Has(flag) && hit {
			stream.Exclusions |= flag
		}
	}

	if enabled.Has(models.ExcludeKeyword) {
		blocked, _ := a.opts.Keywords.IsBlacklisted(stream.Name)
		set(models.ExcludeKeyword, blocked)
	}
	if enabled.Has(models.ExcludeMetadata) {
		set(models.ExcludeMetadata, !a.metadataMatches(stream))
	}
	set(models.ExcludeFormat, a.excludedFormat(stream.Name))
	set(models.ExcludeFake, fake(stream, a.target.Kind == models.KindEpisode))
	set(models.ExcludeSupport, !a.playable(stream.Source))
	set(models.ExcludePrecheck, stream.Precheck == models.PrecheckFailed)
	set(models.ExcludeCaptcha, stream.Captcha)
	set(models.ExcludeBlocked, a.blocked(stream))
}

// metadataMatches compares the parsed release name with the target
func (a *Adjuster) metadataMatches(stream *models.Stream) bool {
	if stream.Name == "" {
		return true
	}
	release := rls.ParseString(stream.Name)

	if release.Title != "" && len(a.target.Titles) > 0 && !titleMatches(release.Title, a.target.Titles) {
		return false
	}

	switch a.target.Kind {
	case models.KindMovie:
		if release.Year > 0 && len(a.target.Years) > 0 && !yearMatches(release.Year, a.target.Years) {
			return false
		}
	case models.KindEpisode, models.KindSeason:
		if a.target.Season != nil && release.Series > 0 && release.Series != *a.target.Season {
			return false
		}
		if a.target.Episode != nil && release.Episode > 0 && release.Episode != *a.target.Episode {
			return false
		}
	}
	return true
}

func yearMatches(year int, years []int) bool {
	for _, y := range years {
		if year >= y-1 && year <= y+1 {
			return true
		}
	}
	return false
}

func titleMatches(title string, targets []string) bool {
	normalized := simplify(title)
	if normalized == "" {
		return true
	}
	for _, target := range targets {
		other := simplify(target)
		if other == "" {
			continue
		}
		if normalized == other || strings.Contains(normalized, other) || strings.Contains(other, normalized) {
			return true
		}
		distance := levenshtein.ComputeDistance(normalized, other)
		longest := max(len([]rune(normalized)), len([]rune(other)))
		if 1-float64(distance)/float64(longest) >= titleSimilarity {
			return true
		}
	}
	return false
}

// simplify lowercases a title and keeps only letters and digits
func simplify(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (a *Adjuster) excludedFormat(name string) bool {
	if len(a.opts.Formats) == 0 {
		return false
	}
	tokens := make(map[string]bool)
	for _, token := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[token] = true
	}
	for _, format := range a.opts.Formats {
		if tokens[format] {
			return true
		}
	}
	return false
}

// fake reports releases far smaller than their claimed quality allows
func fake(stream *models.Stream, episode bool) bool {
	if stream.Size <= 0 || stream.Pack {
		return false
	}
	return stream.Size < utils.MinimumSize(stream.Quality, episode)
}

// playable reports whether a stream of source can be played with the
// configured services
func (a *Adjuster) playable(source models.SourceType) bool {
	switch source {
	case models.SourceTorrent, models.SourceUsenet:
		return a.supportedLocked(source)
	}
	return true
}

func (a *Adjuster) blocked(stream *models.Stream) bool {
	if len(a.opts.BlockedHosts) == 0 {
		return false
	}
	hosts := []string{strings.ToLower(stream.Host)}
	for _, link := range []string{stream.Link, stream.Resolved} {
		if u, err := url.Parse(link); err == nil && u.Host != "" {
			hosts = append(hosts, strings.ToLower(u.Hostname()))
		}
	}
	for _, host := range hosts {
		if host == "" {
			continue
		}
		for _, blocked := range a.opts.BlockedHosts {
			if host == blocked || strings.HasSuffix(host, "."+blocked) {
				return true
			}
		}
	}
	return false
}
