package scraper

import (
	"sort"

	"github.com/amaumene/streamarr/internal/metacache"
)

// Years reconciles the release year reported by Trakt, TMDb and IMDb with the
// requested year. The IMDb vote counts twice since release names usually
// follow IMDb. Years within one of the source year are accepted; the window
// widens to two when the services disagree more than that.
func Years(year int, doc metacache.Document, expand bool) []int {
	var votes []int
	reported, _ := doc["years"].(map[string]any)
	for _, service := range []string{"trakt", "tmdb", "imdb"} {
		if y := docInt(reported[service]); y > 0 {
			votes = append(votes, y)
			if service == "imdb" {
				votes = append(votes, y)
			}
		}
	}
	if len(votes) == 0 {
		if y := docInt(doc["year"]); y > 0 {
			votes = append(votes, y)
		}
	}

	source := year
	if len(votes) == 0 {
		if source <= 0 {
			return nil
		}
		return []int{source}
	}
	sort.Ints(votes)
	median := votes[len(votes)/2]
	if source <= 0 {
		source = median
	}
	if !expand {
		return []int{median}
	}

	window := 1
	if abs(median-source) > 1 {
		window = 2
	}
	years := []int{source}
	seen := map[int]bool{source: true}
	if !seen[median] && abs(median-source) <= window {
		years = append(years, median)
		seen[median] = true
	}
	for _, y := range votes {
		if !seen[y] && abs(y-source) <= window {
			years = append(years, y)
			seen[y] = true
		}
	}
	return years
}

func docInt(value any) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
