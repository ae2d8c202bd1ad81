package metacache

import (
	"time"

	"github.com/amaumene/streamarr/internal/models"
)

// Freshness defaults, in seconds
const (
	TOutdated int64 = 2678400  // 31 days
	TObsolete int64 = 31556952 // 1 year
	TRedo     int64 = 3600
	RedoLimit       = 5
)

// Release-aware T_outdated overrides, in seconds
const (
	windowUnreleased     int64 = 7200
	windowMissingRelease int64 = 259200
	day                  int64 = 86400
)

// releaseWindows maps the age since release to a shorter T_outdated. The first
// window the age fits in applies.
var releaseWindows = []struct {
	age      int64
	outdated int64
}{
	{1 * day, 10800},
	{2 * day, 21600},
	{4 * day, 43200},
	{7 * day, 86400},
	{14 * day, 172800},
	{21 * day, 259200},
}

// Thresholds are the freshness limits of one kind, in seconds
type Thresholds struct {
	Outdated int64
	Obsolete int64
	Redo     int64
}

// DefaultThresholds returns the limits every kind uses unless overridden
func DefaultThresholds() Thresholds {
	return Thresholds{Outdated: TOutdated, Obsolete: TObsolete, Redo: TRedo}
}

// classify derives the freshness status of a stored row
func classify(th Thresholds, kind models.Kind, r *record, current string, now time.Time) models.Status {
	delta := now.Unix() - r.time
	outdated := releaseOutdated(kind, r.doc, now, th.Outdated)

	switch {
	case delta >= th.Obsolete:
		return models.StatusObsolete
	case delta > outdated:
		return models.StatusOutdated
	case r.part != nil && delta > th.Redo:
		return models.StatusIncomplete
	case r.settings != current:
		return models.StatusSettings
	default:
		return models.StatusCurrent
	}
}

// releaseOutdated returns T_outdated shortened by the release-age windows. The
// result is never larger than outdated.
func releaseOutdated(kind models.Kind, doc map[string]any, now time.Time, outdated int64) int64 {
	window, ok := releaseWindow(kind, doc, now)
	if ok && window < outdated {
		return window
	}
	return outdated
}

func releaseWindow(kind models.Kind, doc map[string]any, now time.Time) (int64, bool) {
	if doc == nil || kind == models.KindSet {
		return 0, false
	}
	at := now.Unix()
	dates := releaseDates(kind, doc)

	if len(dates) == 0 {
		// No date at all is only suspicious for recent titles
		year := number(doc["year"])
		if year == 0 || year >= int64(now.Year()-1) {
			return windowMissingRelease, true
		}
		return 0, false
	}

	var latest int64
	for _, date := range dates {
		if date <= at && date > latest {
			latest = date
		}
	}
	if latest == 0 {
		return windowUnreleased, true
	}

	age := at - latest
	for _, w := range releaseWindows {
		if age <= w.age {
			return w.outdated, true
		}
	}

	// A movie that premiered a while ago but has no home release yet will get one soon
	if kind == models.KindMovie && age <= 365*day {
		times, _ := doc["time"].(map[string]any)
		if number(times["digital"]) == 0 && number(times["physical"]) == 0 {
			return windowMissingRelease, true
		}
	}
	return 0, false
}

// releaseDates collects the release timestamps of a document. Packs use their
// episode air dates, episode lists add theirs to the top-level dates.
func releaseDates(kind models.Kind, doc map[string]any) []int64 {
	var dates []int64
	add := func(times any) {
		m, ok := times.(map[string]any)
		if !ok {
			return
		}
		for _, key := range []string{"premiere", "digital", "physical"} {
			if date := number(m[key]); date > 0 {
				dates = append(dates, date)
			}
		}
	}
	addEpisodes := func(episodes any) {
		list, _ := episodes.([]any)
		for _, entry := range list {
			if episode, ok := entry.(map[string]any); ok {
				add(episode["time"])
			}
		}
	}

	switch kind {
	case models.KindPack:
		seasons, _ := doc["seasons"].([]any)
		for _, entry := range seasons {
			if season, ok := entry.(map[string]any); ok {
				addEpisodes(season["episodes"])
			}
		}
	case models.KindEpisode, models.KindSeason:
		add(doc["time"])
		addEpisodes(doc["episodes"])
	default:
		add(doc["time"])
	}
	return dates
}

// number converts a decoded JSON number to an int64, zero otherwise
func number(value any) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
