package scraper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/streamarr/internal/adjuster"
	"github.com/amaumene/streamarr/internal/config"
	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
	"github.com/amaumene/streamarr/internal/store"
	"github.com/amaumene/streamarr/internal/utils"
)

type fakeProvider struct {
	id      string
	tier    int
	streams int
	err     error
	calls   atomic.Int32
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) Info() providers.Info {
	return providers.Info{Name: f.id, Tier: f.tier, Kinds: []models.Kind{models.KindMovie}}
}

func (f *fakeProvider) Scrape(ctx context.Context, req *providers.Request, sink providers.Sink) error {
	f.calls.Add(1)
	for i := 0; i < f.streams; i++ {
		sink(&models.Stream{
			Link:   fmt.Sprintf("magnet:?xt=urn:btih:%s-%d", f.id, i),
			Name:   "The.Shawshank.Redemption.1994.1080p.BluRay.x264",
			Source: models.SourceTorrent,
		})
	}
	return f.err
}

func (f *fakeProvider) Resolve(ctx context.Context, link string) (string, error) { return link, nil }
func (f *fakeProvider) Stop()                                                    {}

type fixture struct {
	scraper  *Scraper
	registry *providers.Registry
	store    *store.Store
}

func newFixture(t *testing.T, list ...*fakeProvider) *fixture {
	t.Helper()
	logger := utils.NewTestLogger()

	registry, err := providers.NewRegistry(nil, providers.Options{}, logger)
	require.NoError(t, err)
	for _, p := range list {
		require.NoError(t, registry.Register(p))
	}

	s, err := store.Open(filepath.Join(t.TempDir(), "providers.db"), store.Options{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := &config.Config{
		LanguagePrimary:     "en",
		ScrapeTimeLimit:     time.Minute,
		OptimizationProfile: "mixed",
		CacheSaveWindow:     6 * time.Hour,
	}
	return &fixture{
		scraper: New(Deps{
			Config:   cfg,
			Registry: registry,
			Cache:    providers.NewCache(s, logger),
			Keywords: utils.NewBlacklist(),
			Logger:   logger,
		}),
		registry: registry,
		store:    s,
	}
}

func movieRequest() Request {
	return Request{
		Kind:    models.KindMovie,
		Title:   "The Shawshank Redemption",
		Year:    1994,
		IDs:     models.IDs{IMDb: "tt0111161"},
		Process: true,
	}
}

func TestScrapeWithoutProcessingReturnsItems(t *testing.T) {
	p := &fakeProvider{id: "p", streams: 3}
	f := newFixture(t, p)

	items := []*models.Stream{
		{Provider: "x", Link: "https://host.example/1", Source: models.SourceHoster},
		{Provider: "y", Link: "https://host.example/2", Source: models.SourceHoster},
	}
	req := movieRequest()
	req.Items = items
	req.Process = false

	result, err := f.scraper.Scrape(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, items, result.Streams)
	assert.Equal(t, StateFinished, result.State)
	assert.Zero(t, p.calls.Load())
}

func TestScrapeCancelAfterSecondProvider(t *testing.T) {
	var list []*fakeProvider
	for i := 1; i <= 12; i++ {
		list = append(list, &fakeProvider{id: fmt.Sprintf("p%02d", i), tier: i, streams: 2})
	}
	f := newFixture(t, list...)

	handler := HandlerFunc(func(p Progress) {
		if p.Phase == "scrape" && p.Finished == 2 {
			f.scraper.Cancel()
		}
	})
	result, err := f.scraper.Scrape(context.Background(), movieRequest(), handler)
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, result.State)
	assert.ErrorIs(t, result.Err, ErrCancelled)
	assert.Equal(t, 2, result.Finished)
	require.Len(t, result.Streams, 4)
	for _, stream := range result.Streams {
		assert.Contains(t, []string{"p01", "p02"}, stream.Provider)
	}
	for _, p := range list[2:] {
		assert.Zero(t, p.calls.Load(), "provider %s ran after cancel", p.id)
	}

	rows, err := f.store.Count(context.Background(), models.KindMovie)
	require.NoError(t, err)
	assert.Equal(t, 2, rows, "the results of both finished providers are persisted")
	assert.Zero(t, f.scraper.Active())
}

func TestScrapeOrdersByTierThenSequence(t *testing.T) {
	late := &fakeProvider{id: "late", tier: 2, streams: 2}
	first := &fakeProvider{id: "first", tier: 1, streams: 2}
	second := &fakeProvider{id: "second", tier: 1, streams: 2}
	f := newFixture(t, late, first, second)

	result, err := f.scraper.Scrape(context.Background(), movieRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateFinished, result.State)
	assert.Empty(t, result.Reason)

	var order []string
	for _, stream := range result.Streams {
		order = append(order, fmt.Sprintf("%s/%d", stream.Provider, stream.Sequence))
	}
	assert.Equal(t, []string{"first/0", "first/1", "second/0", "second/1", "late/0", "late/1"}, order)
	assert.Equal(t, 3, result.Finished)
}

func TestScrapeReadsProvidersCache(t *testing.T) {
	p := &fakeProvider{id: "p", streams: 2}
	f := newFixture(t, p)

	req := movieRequest()
	req.Cache = true
	result, err := f.scraper.Scrape(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, result.Streams, 2)
	assert.False(t, result.Streams[0].Origin.Cached)

	result, err = f.scraper.Scrape(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, result.Streams, 2)
	assert.Equal(t, int32(1), p.calls.Load(), "the second scrape is served from the providers-cache")
	for _, stream := range result.Streams {
		assert.True(t, stream.Origin.Cached)
		assert.Equal(t, "p", stream.Provider)
	}

	req.Cache = false
	_, err = f.scraper.Scrape(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestScrapeRecordsProviderFailures(t *testing.T) {
	failing := &fakeProvider{id: "failing", err: providers.NewError("failing", providers.ErrorHard, errors.New("boom"))}
	working := &fakeProvider{id: "working", streams: 1}
	f := newFixture(t, failing, working)

	var mu sync.Mutex
	var last Progress
	result, err := f.scraper.Scrape(context.Background(), movieRequest(), HandlerFunc(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		last = p
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failures)
	assert.Len(t, result.Streams, 1)

	stats := f.registry.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "failing", stats[0].ID)
	assert.Equal(t, 1, stats[0].Failures)
	assert.Equal(t, 1, stats[1].Successes)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "finished", last.Phase)
	assert.Equal(t, float64(100), last.Percent)
	assert.Equal(t, 1, last.Failures)
}

func TestScrapeRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t)

	_, err := f.scraper.Scrape(context.Background(), Request{Kind: "album", Title: "x", Process: true}, nil)
	assert.Error(t, err)

	_, err = f.scraper.Scrape(context.Background(), Request{Kind: models.KindEpisode, Title: "x", Process: true}, nil)
	assert.Error(t, err)
}

func TestExcludedHDStreamsDoNotEndDispatch(t *testing.T) {
	first := &fakeProvider{id: "first", tier: 1, streams: 6}
	second := &fakeProvider{id: "second", tier: 2, streams: 1}
	f := newFixture(t, first, second)
	f.scraper.cfg.TerminationHDCount = 2
	f.scraper.cfg.Exclusions = []string{"keyword"}
	f.scraper.deps.Keywords = utils.NewBlacklist("bluray")

	result, err := f.scraper.Scrape(context.Background(), movieRequest(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, ReasonSufficient, result.Reason)
	assert.Equal(t, int32(1), second.calls.Load(), "blacklisted streams never count towards the HD threshold")
	assert.Empty(t, result.Streams)
	assert.Len(t, result.Excluded, 7)
}

type episodeProvider struct {
	fakeProvider
	mu   sync.Mutex
	seen []providers.Request
}

func (e *episodeProvider) Info() providers.Info {
	return providers.Info{Name: e.id, Kinds: []models.Kind{models.KindEpisode}}
}

func (e *episodeProvider) Scrape(ctx context.Context, req *providers.Request, sink providers.Sink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, *req)
	return nil
}

type fakeMetadata struct {
	kinds []models.Kind
	doc   metacache.Document
}

func (f *fakeMetadata) Get(ctx context.Context, kind models.Kind, ids models.IDs, season *int) (metacache.Document, error) {
	f.kinds = append(f.kinds, kind)
	return f.doc, nil
}

func TestEpisodeRequestsCarryPackDetails(t *testing.T) {
	aired := func(day int) map[string]any {
		return map[string]any{"premiere": float64(time.Date(2013, 9, day, 2, 0, 0, 0, time.UTC).Unix())}
	}
	episode := func(number int, title string, day int) map[string]any {
		return map[string]any{"episode": float64(number), "title": title, "time": aired(day)}
	}
	meta := &fakeMetadata{doc: metacache.Document{
		"title": "Breaking Bad",
		"seasons": []any{
			map[string]any{"season": float64(4), "episodes": []any{episode(1, "Box Cutter", 1)}},
			map[string]any{"season": float64(5), "episodes": []any{
				episode(13, "To'hajiilee", 9),
				episode(14, "Ozymandias", 16),
				episode(15, "Granite State", 23),
			}},
		},
	}}

	f := newFixture(t)
	p := &episodeProvider{fakeProvider: fakeProvider{id: "episodes"}}
	require.NoError(t, f.registry.Register(p))
	f.scraper.deps.Metadata = meta
	f.scraper.deps.Now = func() time.Time { return time.Date(2013, 9, 20, 0, 0, 0, 0, time.UTC) }

	season, number := 5, 14
	_, err := f.scraper.Scrape(context.Background(), Request{
		Kind:    models.KindEpisode,
		IDs:     models.IDs{IMDb: "tt0903747"},
		Season:  &season,
		Episode: &number,
		Pack:    true,
		Process: true,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []models.Kind{models.KindPack}, meta.kinds)
	require.Len(t, p.seen, 1)
	req := p.seen[0]
	assert.Equal(t, "Breaking Bad", req.Titles[0])
	require.NotEmpty(t, req.EpisodeTitles)
	assert.Equal(t, "Ozymandias", req.EpisodeTitles[0])
	assert.Equal(t, time.Date(2013, 9, 16, 2, 0, 0, 0, time.UTC).Unix(), req.Release.Premiere)
	assert.Equal(t, providers.PackInfo{Seasons: 2, Episodes: 3, Aired: 2}, req.PackInfo)
	assert.False(t, req.PackInfo.Complete())
}

func TestTerminator(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("budget", func(t *testing.T) {
		term := newTerminator(clock, time.Minute, false, 0, 0, 0)
		assert.Empty(t, term.check(adjuster.Counters{}))
		now = now.Add(time.Minute)
		assert.Equal(t, ReasonBudget, term.check(adjuster.Counters{}))
	})

	t.Run("enough HD streams", func(t *testing.T) {
		term := newTerminator(clock, time.Hour, false, 0, 0, 3)
		counters := adjuster.Counters{Quality: map[models.Quality]int{models.QualityHD1080: 2}}
		assert.Empty(t, term.check(counters))
		counters.Quality[models.QualityHD720] = 1
		assert.Equal(t, ReasonSufficient, term.check(counters))
		assert.Equal(t, ReasonSufficient, term.terminated())
	})

	t.Run("unresponsive stragglers", func(t *testing.T) {
		term := newTerminator(clock, time.Hour, true, 2, 10*time.Second, 0)
		for _, id := range []string{"a", "b", "c"} {
			term.started(id)
		}
		assert.Empty(t, term.check(adjuster.Counters{}))

		term.done("a")
		assert.Empty(t, term.check(adjuster.Counters{}), "two providers still running")

		term.done("b")
		assert.Empty(t, term.check(adjuster.Counters{}))
		now = now.Add(9 * time.Second)
		assert.Empty(t, term.check(adjuster.Counters{}))
		now = now.Add(time.Second)
		assert.Equal(t, ReasonUnresponsive, term.check(adjuster.Counters{}))
	})

	t.Run("cancel keeps the first reason", func(t *testing.T) {
		term := newTerminator(clock, time.Hour, false, 0, 0, 0)
		term.cancel()
		assert.Equal(t, ReasonCancelled, term.terminated())
		now = now.Add(2 * time.Hour)
		assert.Equal(t, ReasonCancelled, term.check(adjuster.Counters{}))
	})
}

func TestLimitsFollowConfiguration(t *testing.T) {
	f := newFixture(t)
	f.scraper.cfg.QueryLimit = 2

	req := movieRequest()
	limits := f.scraper.limits(&req)
	assert.Equal(t, time.Minute, limits.TimeLimit)
	assert.Equal(t, 2, limits.QueryLimit)

	req.Preset = "speed"
	limits = f.scraper.limits(&req)
	assert.False(t, limits.ExpandTitles)
	assert.NotEqual(t, time.Minute, limits.TimeLimit)

	req.Preset = ""
	req.Binge = true
	assert.False(t, f.scraper.limits(&req).ExpandTitles)
}
