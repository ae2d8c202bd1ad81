package scraper

import (
	"time"

	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/providers"
)

// episodeDetails is what a pack document tells about the searched episode
type episodeDetails struct {
	title   string
	release providers.Release
	pack    providers.PackInfo
}

// packDetails reads the release times of the entity and, for shows, the
// searched episode's title and the airing state of its season
func packDetails(doc metacache.Document, season, episode *int, now time.Time) episodeDetails {
	var details episodeDetails
	details.release = releaseTimes(doc["time"])

	seasons, _ := doc["seasons"].([]any)
	for _, entry := range seasons {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		number := docInt(m["season"])
		if number <= 0 {
			continue
		}
		details.pack.Seasons++
		if season == nil || number != *season {
			continue
		}

		episodes, _ := m["episodes"].([]any)
		details.pack.Episodes = len(episodes)
		for _, e := range episodes {
			ep, ok := e.(map[string]any)
			if !ok {
				continue
			}
			premiere := releaseTimes(ep["time"]).Premiere
			if premiere > 0 && premiere <= now.Unix() {
				details.pack.Aired++
			}
			if episode != nil && docInt(ep["episode"]) == *episode {
				details.title, _ = ep["title"].(string)
				details.release = providers.Release{Premiere: premiere}
			}
		}
	}
	return details
}

func releaseTimes(value any) providers.Release {
	times, _ := value.(map[string]any)
	return providers.Release{
		Premiere: int64(docInt(times["premiere"])),
		Digital:  int64(docInt(times["digital"])),
		Physical: int64(docInt(times["physical"])),
	}
}

// EpisodeTitles expands an episode title the way show titles are expanded
func EpisodeTitles(title string, queryLimit int) []string {
	expander := &titleSet{}
	expander.add(max(3, queryLimit/2), title)
	return expander.titles
}
