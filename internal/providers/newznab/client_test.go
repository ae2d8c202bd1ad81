package newznab

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/streamarr/internal/config"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
	"github.com/amaumene/streamarr/internal/utils"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:newznab="http://www.newznab.com/DTD/2010/feeds/attributes/">
  <channel>
    <title>Test Indexer</title>
    <item>
      <title>Test Show S01E01 1080p WEB-DL</title>
      <link>https://example.com/details/12346</link>
      <guid>https://example.com/details/12346</guid>
      <enclosure url="https://example.com/get/12346.nzb" length="2147483648" type="application/x-nzb"/>
      <newznab:attr name="size" value="2147483648"/>
      <newznab:attr name="season" value="1"/>
      <newznab:attr name="episode" value="1"/>
    </item>
    <item>
      <title>Test Show S01 1080p WEB-DL</title>
      <link>https://example.com/details/12347</link>
      <guid>https://example.com/details/12347</guid>
      <enclosure url="https://example.com/get/12347.nzb" length="21474836480" type="application/x-nzb"/>
      <newznab:attr name="season" value="1"/>
    </item>
    <item>
      <title>Test Show S01E02 720p WEB-DL</title>
      <link>https://example.com/details/12348</link>
      <guid>https://example.com/details/12348</guid>
      <enclosure url="https://example.com/get/12348.nzb" length="1073741824" type="application/x-nzb"/>
    </item>
  </channel>
</rss>`

func TestXMLParsing(t *testing.T) {
	var feed Feed
	if err := xml.Unmarshal([]byte(feedXML), &feed); err != nil {
		t.Fatalf("Failed to parse XML: %v", err)
	}

	if feed.Channel.Title != "Test Indexer" {
		t.Errorf("Expected channel title 'Test Indexer', got '%s'", feed.Channel.Title)
	}
	if len(feed.Channel.Items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(feed.Channel.Items))
	}

	episodeItem := feed.Channel.Items[0]
	if episodeItem.DownloadURL() != "https://example.com/get/12346.nzb" {
		t.Errorf("Expected enclosure URL, got %s", episodeItem.DownloadURL())
	}
	if season := episodeItem.AttrInt("season"); season == nil || *season != 1 {
		t.Errorf("Expected season 1, got %v", season)
	}
	if episodeItem.ContentLength() != 2147483648 {
		t.Errorf("Episode size mismatch")
	}

	packItem := feed.Channel.Items[1]
	if packItem.AttrInt("episode") != nil {
		t.Errorf("Season pack should not have episode attribute")
	}
	if packItem.ContentLength() != 21474836480 {
		t.Errorf("Season pack size should fall back to the enclosure length")
	}
}

func TestParseSeasonEpisode(t *testing.T) {
	season, episode, pack := ParseSeasonEpisode("Show.Name.S02E05.1080p")
	require.NotNil(t, season)
	require.NotNil(t, episode)
	assert.Equal(t, 2, *season)
	assert.Equal(t, 5, *episode)
	assert.False(t, pack)

	season, episode, pack = ParseSeasonEpisode("Show Name S03 Complete 720p")
	require.NotNil(t, season)
	assert.Equal(t, 3, *season)
	assert.Nil(t, episode)
	assert.True(t, pack)

	season, episode, pack = ParseSeasonEpisode("Movie.Title.2024.1080p")
	assert.Nil(t, season)
	assert.Nil(t, episode)
	assert.False(t, pack)
}

func TestQueries(t *testing.T) {
	season, episode := 1, 2
	req := &providers.Request{
		Kind:    models.KindEpisode,
		IDs:     models.IDs{IMDb: "tt0903747", TVDb: "81189"},
		Titles:  []string{"Breaking Bad", "Breaking Bad Reazioni collaterali"},
		Season:  &season,
		Episode: &episode,
		Pack:    true,
	}
	queries := Queries(req)
	require.Len(t, queries, 6)
	assert.Equal(t, "tvsearch", queries[0].Get("t"))
	assert.Equal(t, "0903747", queries[0].Get("imdbid"))
	assert.Equal(t, "81189", queries[0].Get("tvdbid"))
	assert.Equal(t, "2", queries[0].Get("ep"))
	assert.Equal(t, "", queries[1].Get("ep"), "pack search has no episode")
	assert.Equal(t, "Breaking Bad", queries[2].Get("q"))

	req.Exact = true
	assert.Len(t, Queries(req), 4)

	req.RequestLimit = 1
	assert.Len(t, Queries(req), 1)

	movie := &providers.Request{Kind: models.KindMovie, Titles: []string{"Heat"}, Years: []int{1995}}
	queries = Queries(movie)
	require.Len(t, queries, 1)
	assert.Equal(t, "movie", queries[0].Get("t"))
	assert.Equal(t, "Heat 1995", queries[0].Get("q"))
}

func TestQueriesUsePackAndEpisodeInfo(t *testing.T) {
	season, episode := 5, 14
	req := &providers.Request{
		Kind:          models.KindEpisode,
		IDs:           models.IDs{TVDb: "81189"},
		Titles:        []string{"Breaking Bad"},
		EpisodeTitles: []string{"Ozymandias"},
		Season:        &season,
		Episode:       &episode,
		Pack:          true,
		PackInfo:      providers.PackInfo{Seasons: 5, Episodes: 16, Aired: 14},
	}
	queries := Queries(req)
	require.Len(t, queries, 3, "no pack searches while the season airs")
	assert.Equal(t, "14", queries[0].Get("ep"))
	assert.Equal(t, "Breaking Bad", queries[1].Get("q"))
	assert.Equal(t, "Breaking Bad Ozymandias", queries[2].Get("q"))
	assert.Equal(t, "5", queries[2].Get("season"))
	assert.Empty(t, queries[2].Get("ep"))

	req.PackInfo.Aired = 16
	assert.Len(t, Queries(req), 5)
}

func TestScrapeFiltersEpisodes(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("apikey"))
		w.Write([]byte(feedXML))
	}))
	defer server.Close()

	provider, err := New(config.Indexer{Name: "Test", URL: server.URL, Key: "secret"}, utils.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "newznab:test", provider.ID())

	season, episode := 1, 1
	req := &providers.Request{
		Kind:    models.KindEpisode,
		IDs:     models.IDs{IMDb: "tt0903747"},
		Season:  &season,
		Episode: &episode,
		Pack:    true,
	}

	var streams []*models.Stream
	err = provider.Scrape(context.Background(), req, func(s *models.Stream) { streams = append(streams, s) })
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "episode and pack searches")

	require.Len(t, streams, 2, "S01E02 is dropped, repeated links are reported once")
	assert.Equal(t, "https://example.com/get/12346.nzb", streams[0].Link)
	assert.Equal(t, models.SourceUsenet, streams[0].Source)
	assert.Equal(t, models.QualityHD1080, streams[0].Quality)
	assert.Equal(t, "newznab:test", streams[0].Provider)
	assert.True(t, streams[1].Pack)
}

func TestScrapeReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid api key"))
	}))
	defer server.Close()

	provider, err := New(config.Indexer{Name: "Broken", URL: server.URL}, utils.NewTestLogger())
	require.NoError(t, err)

	err = provider.Scrape(context.Background(), &providers.Request{Kind: models.KindMovie, Titles: []string{"Heat"}},
		func(*models.Stream) {})
	require.Error(t, err)
	assert.Equal(t, providers.ErrorHard, providers.Classify(err))
}

func TestScrapeRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(feedXML))
	}))
	defer server.Close()

	provider, err := New(config.Indexer{Name: "Flaky", URL: server.URL}, utils.NewTestLogger())
	require.NoError(t, err)

	var count int
	err = provider.Scrape(context.Background(), &providers.Request{Kind: models.KindMovie, Titles: []string{"Test Show"}},
		func(*models.Stream) { count++ })
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 3, count)
}
