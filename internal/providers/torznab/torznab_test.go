package torznab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/streamarr/internal/config"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
	"github.com/amaumene/streamarr/internal/utils"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
  <channel>
    <title>Jackett</title>
    <item>
      <title>Heat.1995.2160p.UHD.BluRay.x265-GROUP</title>
      <link>https://example.com/dl/1.torrent</link>
      <size>45097156608</size>
      <torznab:attr name="seeders" value="42"/>
      <torznab:attr name="infohash" value="ABCDEF0123456789ABCDEF0123456789ABCDEF01"/>
      <torznab:attr name="magneturl" value="magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01"/>
    </item>
    <item>
      <title>Heat.1995.720p.BluRay.x264-OTHER</title>
      <enclosure url="https://example.com/dl/2.torrent" length="4294967296" type="application/x-bittorrent"/>
    </item>
  </channel>
</rss>`

func TestScrape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "movie", r.URL.Query().Get("t"))
		assert.Equal(t, "0113277", r.URL.Query().Get("imdbid"))
		w.Write([]byte(feedXML))
	}))
	defer server.Close()

	provider, err := New(config.Indexer{Name: "Jackett", URL: server.URL, Tier: 1}, utils.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "torznab:jackett", provider.ID())
	assert.Equal(t, 1, provider.Info().Tier)

	var streams []*models.Stream
	req := &providers.Request{Kind: models.KindMovie, IDs: models.IDs{IMDb: "tt0113277"}}
	require.NoError(t, provider.Scrape(context.Background(), req, func(s *models.Stream) { streams = append(streams, s) }))
	require.Len(t, streams, 2)

	first := streams[0]
	assert.Equal(t, models.SourceTorrent, first.Source)
	assert.Equal(t, "magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01", first.Link)
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", first.Hash)
	assert.Equal(t, 42, first.Seeds)
	assert.Equal(t, int64(45097156608), first.Size)
	assert.Equal(t, models.QualityHDUltra, first.Quality)
	assert.Equal(t, req.IDs, first.IDs)

	second := streams[1]
	assert.Equal(t, "https://example.com/dl/2.torrent", second.Link)
	assert.Empty(t, second.Hash, "the adjuster extracts hashes of .torrent links")
	assert.Equal(t, int64(4294967296), second.Size)
}
