package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/services/trakt"
	"github.com/amaumene/streamarr/internal/store"
	"github.com/amaumene/streamarr/internal/utils"
)

type fingerprint string

func (f fingerprint) Get() string { return string(f) }

func newTraktServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/shows/tt0903747", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"title":"Breaking Bad","year":2008,"first_aired":"2008-01-20T02:00:00.000Z",
			"ids":{"trakt":1388,"slug":"breaking-bad","imdb":"tt0903747","tmdb":1396,"tvdb":81189}}`))
	})
	mux.HandleFunc("/shows/tt0903747/aliases", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title":"Breaking Bad - Reazioni collaterali","country":"it"}]`))
	})
	mux.HandleFunc("/shows/tt0903747/translations/de", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title":"Breaking Bad","language":"de","country":"de"}]`))
	})
	mux.HandleFunc("/shows/tt0903747/seasons", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"number":0,"episodes":[]},{"number":1,"episodes":[
			{"season":1,"number":1,"title":"Pilot","first_aired":"2008-01-20T02:00:00.000Z"},
			{"season":1,"number":2,"title":"Cat's in the Bag...","first_aired":"2008-01-27T02:00:00.000Z"}]}]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestService(t *testing.T, traktURL string) *Service {
	t.Helper()
	logger := utils.NewTestLogger()
	s, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"), store.Options{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cache := metacache.New(s, fingerprint("A"), metacache.Options{}, logger)
	client := trakt.NewClient("client", logger).WithBaseURL(traktURL)
	return NewService(cache, client, nil, nil, []string{"de"}, "", logger)
}

func TestGetFetchesOnMissThenUsesCache(t *testing.T) {
	var calls atomic.Int32
	server := newTraktServer(t, &calls)
	service := newTestService(t, server.URL)
	ctx := context.Background()
	ids := models.IDs{IMDb: "tt0903747"}

	doc, err := service.Get(ctx, models.KindShow, ids, nil)
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad", doc["title"])
	assert.Equal(t, float64(2008), doc["year"])
	assert.Equal(t, []any{"Breaking Bad"}, doc["translations"].(map[string]any)["de"])
	assert.Len(t, doc["aliases"], 1)

	doc, err = service.Get(ctx, models.KindShow, ids, nil)
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad", doc["title"])
	assert.Equal(t, int32(1), calls.Load(), "second lookup is served from the cache")

	// The completed id tuple is stored too
	doc, err = service.Get(ctx, models.KindShow, models.IDs{TVDb: "81189"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad", doc["title"])
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPackAndEpisodes(t *testing.T) {
	var calls atomic.Int32
	server := newTraktServer(t, &calls)
	service := newTestService(t, server.URL)
	ctx := context.Background()
	ids := models.IDs{IMDb: "tt0903747"}

	pack, err := service.Get(ctx, models.KindPack, ids, nil)
	require.NoError(t, err)
	seasons := pack["seasons"].([]any)
	require.Len(t, seasons, 1, "specials are skipped")

	season := 1
	episodes, err := service.Get(ctx, models.KindEpisode, ids, &season)
	require.NoError(t, err)
	list := episodes["episodes"].([]any)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "Pilot", first["title"])
	assert.NotNil(t, first["time"].(map[string]any)["premiere"])
}

func TestFetchNeedsKnownID(t *testing.T) {
	var calls atomic.Int32
	server := newTraktServer(t, &calls)
	service := newTestService(t, server.URL)

	_, _, err := service.Fetch(context.Background(), models.KindMovie, models.IDs{TMDb: "278"}, nil)
	assert.Error(t, err)

	_, _, err = service.Fetch(context.Background(), models.KindSet, models.IDs{TMDb: "10"}, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}
