package newznab

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
)

// pageSize is the number of results requested per page
const pageSize = 100

var (
	episodeRegex    = regexp.MustCompile(`(?i)(?:^|[\._ \-])S(\d{1,2})E(\d{1,3})`)
	seasonPackRegex = regexp.MustCompile(`(?i)(?:^|[\._ \-])S(\d{1,2})(?:[\._ \-]|$)`)
)

// ParseSeasonEpisode extracts season and episode numbers from a release title.
// Returns (season, episode, isSeasonPack).
func ParseSeasonEpisode(title string) (*int, *int, bool) {
	if matches := episodeRegex.FindStringSubmatch(title); matches != nil {
		season, _ := strconv.Atoi(matches[1])
		episode, _ := strconv.Atoi(matches[2])
		return &season, &episode, false
	}
	if matches := seasonPackRegex.FindStringSubmatch(title); matches != nil {
		season, _ := strconv.Atoi(matches[1])
		return &season, nil, true
	}
	return nil, nil, false
}

// Queries plans the API calls of a request: id-based searches first, then
// title searches, capped by the request limit
func Queries(req *providers.Request) []url.Values {
	show := req.Kind != models.KindMovie && req.Kind != models.KindSet
	searchType := "movie"
	if show {
		searchType = "tvsearch"
	}

	var queries []url.Values
	add := func(extra func(url.Values), episode bool) {
		params := url.Values{}
		params.Set("t", searchType)
		extra(params)
		if show && req.Season != nil {
			params.Set("season", strconv.Itoa(*req.Season))
			if episode && req.Episode != nil {
				params.Set("ep", strconv.Itoa(*req.Episode))
			}
		}
		queries = append(queries, params)
	}
	withIDs := func(params url.Values) {
		if req.IDs.IMDb != "" {
			params.Set("imdbid", strings.TrimPrefix(req.IDs.IMDb, "tt"))
		}
		if show && req.IDs.TVDb != "" {
			params.Set("tvdbid", req.IDs.TVDb)
		}
	}
	// Season packs only exist once the whole season aired
	packs := show && req.Pack && req.Episode != nil && req.PackInfo.Complete()

	if req.IDs.IMDb != "" || (show && req.IDs.TVDb != "") {
		add(withIDs, true)
		if packs {
			add(withIDs, false)
		}
	}

	titles := req.Titles
	if req.Exact && len(titles) > 1 {
		titles = titles[:1]
	}
	if req.QueryLimit > 0 && len(titles) > req.QueryLimit {
		titles = titles[:req.QueryLimit]
	}
	for _, title := range titles {
		text := title
		if !show && len(req.Years) > 0 {
			text += " " + strconv.Itoa(req.Years[0])
		}
		add(func(params url.Values) { params.Set("q", text) }, true)
		if packs {
			add(func(params url.Values) { params.Set("q", text) }, false)
		}
	}
	if req.Kind == models.KindEpisode && len(titles) > 0 && len(req.EpisodeTitles) > 0 {
		text := titles[0] + " " + req.EpisodeTitles[0]
		add(func(params url.Values) { params.Set("q", text) }, false)
	}

	if req.RequestLimit > 0 && len(queries) > req.RequestLimit {
		queries = queries[:req.RequestLimit]
	}
	return queries
}

// Matches reports whether a parsed release fits the requested episode.
// Movies always match.
func Matches(req *providers.Request, season, episode *int, pack bool) bool {
	if req.Kind == models.KindMovie || req.Kind == models.KindSet || req.Season == nil {
		return true
	}
	if season == nil {
		// Complete-series releases carry no season marker
		return req.Pack
	}
	if *season != *req.Season {
		return false
	}
	if pack {
		return req.Pack || req.Episode == nil
	}
	if req.Episode == nil {
		return true
	}
	return episode != nil && *episode == *req.Episode
}
