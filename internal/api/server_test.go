package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/streamarr/internal/config"
	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/scraper"
	"github.com/amaumene/streamarr/internal/utils"
)

type fakeScraper struct {
	last   scraper.Request
	result *scraper.Result
	err    error
}

func (f *fakeScraper) Scrape(ctx context.Context, req scraper.Request, handler scraper.Handler) (*scraper.Result, error) {
	f.last = req
	return f.result, f.err
}

func (f *fakeScraper) Active() int { return 2 }

type fakeMeta struct {
	deleted string
}

func (f *fakeMeta) Select(ctx context.Context, kind models.Kind, items []*metacache.Item, opts metacache.SelectOptions) ([]*metacache.Item, error) {
	out := *items[0]
	out.Status = models.StatusCurrent
	out.Data = metacache.Document{"title": "The Matrix"}
	return []*metacache.Item{&out}, nil
}

func (f *fakeMeta) Delete(ctx context.Context, kind models.Kind, settings string) (int64, error) {
	f.deleted = settings
	return 3, nil
}

func (f *fakeMeta) MemoSize() int { return 7 }

type fakeStats struct{}

func (fakeStats) Stats() []models.ProviderStat {
	return []models.ProviderStat{{ID: "indexer", Failures: 5}}
}

func (fakeStats) Suppressed(id string) bool { return id == "indexer" }

func newTestServer(sc *fakeScraper, meta *fakeMeta) *Server {
	cfg := &config.Config{ServerPort: "0", ScrapeTimeLimit: time.Minute}
	return NewServer(cfg, sc, meta, fakeStats{}, utils.NewTestLogger())
}

func do(t *testing.T, s *Server, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(body) > 0 && body[0] == '{' {
		require.NoError(t, json.Unmarshal(body, &decoded))
	}
	return resp.StatusCode, decoded
}

func TestHealthAndStatus(t *testing.T) {
	s := newTestServer(&fakeScraper{}, &fakeMeta{})

	code, body := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = do(t, s, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["active_scrapes"])
	assert.Equal(t, float64(7), body["memo_size"])
	providers := body["providers"].([]any)
	require.Len(t, providers, 1)
	assert.Equal(t, true, providers[0].(map[string]any)["suppressed"])
}

func TestScrapeEndpoint(t *testing.T) {
	sc := &fakeScraper{result: &scraper.Result{
		State:     scraper.StateFinished,
		Providers: 3,
		Finished:  3,
		Streams:   []*models.Stream{{Provider: "indexer", Link: "magnet:?xt=urn:btih:abc"}},
	}}
	s := newTestServer(sc, &fakeMeta{})

	req := httptest.NewRequest(http.MethodPost, "/api/scrape",
		strings.NewReader(`{"kind":"episode","show_title":"Fargo","ids":{"imdb":"tt2802850"},"season":1,"episode":2}`))
	req.Header.Set("Content-Type", "application/json")
	code, body := do(t, s, req)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, models.KindEpisode, sc.last.Kind)
	assert.Equal(t, "Fargo", sc.last.ShowTitle)
	assert.True(t, sc.last.Process)
	require.NotNil(t, sc.last.Season)
	assert.Equal(t, 1, *sc.last.Season)
	assert.Equal(t, "finished", body["state"])
	assert.Len(t, body["streams"], 1)
}

func TestScrapeEndpointErrors(t *testing.T) {
	sc := &fakeScraper{err: errors.New("invalid kind")}
	s := newTestServer(sc, &fakeMeta{})

	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(`{"kind":"album"}`))
	req.Header.Set("Content-Type", "application/json")
	code, body := do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid kind", body["error"])

	sc.err = nil
	sc.result = &scraper.Result{State: scraper.StateCancelled, Reason: scraper.ReasonCancelled, Err: scraper.ErrCancelled}
	req = httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(`{"kind":"movie","title":"Heat"}`))
	req.Header.Set("Content-Type", "application/json")
	code, body = do(t, s, req)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "cancelled", body["state"])
	assert.Equal(t, scraper.ErrCancelled.Error(), body["error"])
	assert.Empty(t, body["streams"])
}

func TestMetaEndpoints(t *testing.T) {
	meta := &fakeMeta{}
	s := newTestServer(&fakeScraper{}, meta)

	code, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/meta/movie?imdb=tt0133093", nil))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(models.StatusCurrent), body["status"])
	assert.Equal(t, "The Matrix", body["data"].(map[string]any)["title"])

	code, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/api/meta/movie", nil))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/api/meta/album?imdb=tt0133093", nil))
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/meta/movie?settings=abc", nil))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["removed"])
	assert.Equal(t, "abc", meta.deleted)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeScraper{}, &fakeMeta{})
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
