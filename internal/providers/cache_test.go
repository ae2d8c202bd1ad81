package providers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/store"
	"github.com/amaumene/streamarr/internal/utils"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	logger := utils.NewTestLogger()
	s, err := store.Open(filepath.Join(t.TempDir(), "providers.db"), store.Options{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewCache(s, logger)
}

func TestCacheSaveLoad(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	ids := models.IDs{IMDb: "tt0111161", TMDb: "278"}

	batch := &Batch{
		Provider: "nzbgeek",
		IDs:      ids,
		Query:    "movie|the shawshank redemption|1994",
		Time:     1700000000,
		Streams: []*models.Stream{
			{Provider: "nzbgeek", Link: "https://example.com/1.nzb", Source: models.SourceUsenet, Name: "The.Shawshank.Redemption.1994.1080p"},
			{Provider: "nzbgeek", Link: "https://example.com/2.nzb", Source: models.SourceUsenet, Name: "The.Shawshank.Redemption.1994.720p"},
		},
	}
	require.NoError(t, cache.Save(ctx, models.KindMovie, batch))

	loaded, err := cache.Load(ctx, models.KindMovie, "nzbgeek", ids, nil, batch.Query)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(1700000000), loaded.Time)
	require.Len(t, loaded.Streams, 2)
	assert.Equal(t, "https://example.com/1.nzb", loaded.Streams[0].Link)
	assert.True(t, loaded.Streams[0].Origin.Cached)
	assert.Equal(t, int64(1700000000), loaded.Streams[0].Origin.Time)

	// Other providers and queries have their own rows
	other, err := cache.Load(ctx, models.KindMovie, "other", ids, nil, batch.Query)
	require.NoError(t, err)
	assert.Nil(t, other)
	other, err = cache.Load(ctx, models.KindMovie, "nzbgeek", ids, nil, "movie|other")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestCacheSaveReplaces(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	season := 1
	ids := models.IDs{IMDb: "tt0903747", TVDb: "81189"}

	first := &Batch{Provider: "p", IDs: ids, Season: &season, Query: "q", Time: 100,
		Streams: []*models.Stream{{Link: "a"}}}
	second := &Batch{Provider: "p", IDs: ids, Season: &season, Query: "q", Time: 200,
		Streams: []*models.Stream{{Link: "b"}, {Link: "c"}}}
	require.NoError(t, cache.Save(ctx, models.KindEpisode, first))
	require.NoError(t, cache.Save(ctx, models.KindEpisode, second))

	loaded, err := cache.Load(ctx, models.KindEpisode, "p", ids, &season, "q")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(200), loaded.Time)
	assert.Len(t, loaded.Streams, 2)

	removed, err := cache.Clean(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestCacheSkipsBatchesWithoutIDs(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Save(context.Background(), models.KindMovie, &Batch{Provider: "p", Query: "q"}))

	loaded, err := cache.Load(context.Background(), models.KindMovie, "p", models.IDs{}, nil, "q")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestKeyIsStable(t *testing.T) {
	assert.Equal(t, Key("p", "query"), Key("p", "query"))
	assert.NotEqual(t, Key("p", "query"), Key("p", "other"))
	assert.Contains(t, Key("p", "query"), "p:")
}
