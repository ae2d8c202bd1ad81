package scraper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/amaumene/streamarr/internal/adjuster"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
)

// monitorInterval is how often the termination predicates are evaluated
const monitorInterval = 250 * time.Millisecond

// dispatch weight of the scrape phase in the progress percentage
const (
	scrapeOffset = 10.0
	scrapeWeight = 70.0
)

// scrape dispatches the providers tier by tier until every tier finished or
// the session is terminated
func (s *Session) scrape(ctx context.Context, tiers [][]providers.Provider, target adjuster.Target, limits providers.Limits) error {
	cfg := s.scraper.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	term := newTerminator(s.scraper.deps.Now, limits.TimeLimit, cfg.UnresponsiveEnabled,
		cfg.UnresponsiveCount, cfg.UnresponsiveDuration, cfg.TerminationHDCount)
	s.mu.Lock()
	s.term = term
	s.cancelDispatch = cancel
	s.mu.Unlock()
	if s.stop.Load() {
		term.cancel()
		return ErrCancelled
	}

	monitorDone := make(chan struct{})
	go s.monitor(ctx, term, cancel, monitorDone)
	defer func() {
		cancel()
		<-monitorDone
	}()

	s.mu.Lock()
	episode := s.episode
	s.mu.Unlock()
	var episodeTitles []string
	if episode.title != "" && target.Kind == models.KindEpisode {
		episodeTitles = EpisodeTitles(episode.title, limits.QueryLimit)
	}

	req := providers.Request{
		Kind:         target.Kind,
		IDs:          target.IDs,
		Titles:       target.Titles,
		Years:        target.Years,
		Season:       target.Season,
		Episode:      target.Episode,
		Pack:         s.req.Pack,
		Exact:        s.req.Exact,
		QueryLimit:   limits.QueryLimit,
		PageLimit:    limits.PageLimit,
		RequestLimit: limits.RequestLimit,
		Languages:    cfg.Languages(),
		BlockedHosts: cfg.BlockedHosts,

		EpisodeTitles: episodeTitles,
		Release:       episode.release,
		PackInfo:      episode.pack,
	}

	for i, tier := range tiers {
		if s.halted(ctx, term) {
			break
		}
		s.logger.WithFields(logrus.Fields{
			"tier":      i,
			"providers": len(tier),
		}).Debug("Dispatching provider tier")

		var finished atomic.Int32
		var g errgroup.Group
		g.SetLimit(len(tier))
		for _, p := range tier {
			g.Go(func() error {
				s.runProvider(ctx, p, req, term)
				done := finished.Add(1)
				s.mu.Lock()
				s.finished++
				s.mu.Unlock()
				weight := scrapeWeight / float64(len(tiers))
				s.report("scrape", scrapeOffset+float64(i)*weight+float64(done)/float64(len(tier))*weight, "")
				return nil
			})
		}
		_ = g.Wait()
	}

	switch reason := term.terminated(); reason {
	case "":
		return nil
	case ReasonCancelled:
		return ErrCancelled
	case ReasonBudget:
		return ErrBudget
	default:
		s.logger.WithField("reason", reason).Info("Scrape terminated early")
		return nil
	}
}

// halted reports whether no further tier may start
func (s *Session) halted(ctx context.Context, term *terminator) bool {
	return s.stop.Load() || ctx.Err() != nil || term.terminated() != ""
}

// monitor evaluates the termination predicates and runs partial debrid
// inspections while providers are running
func (s *Session) monitor(ctx context.Context, term *terminator, cancel context.CancelFunc, done chan<- struct{}) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(done)
	}()
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	var inspecting atomic.Bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if reason := term.check(s.adj.Counters()); reason != "" {
			s.logger.WithFields(logrus.Fields{
				"reason":  reason,
				"running": term.runningCount(),
			}).Debug("Terminating provider dispatch")
			cancel()
			return
		}
		if inspecting.CompareAndSwap(false, true) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer inspecting.Store(false)
				if err := s.adj.Inspect(ctx, true); err != nil && ctx.Err() == nil {
					s.logger.WithError(err).Debug("Partial inspection failed")
				}
			}()
		}
	}
}

// runProvider runs one provider, from the providers-cache when allowed
func (s *Session) runProvider(ctx context.Context, p providers.Provider, req providers.Request, term *terminator) {
	id := p.ID()
	registry := s.scraper.deps.Registry

	term.started(id)
	defer term.done(id)

	key := req.Key()
	if s.req.Cache && s.loadCached(ctx, id, key) {
		return
	}

	sink := func(stream *models.Stream) {
		if s.stop.Load() {
			return
		}
		stream.Provider = id
		stream.Query = key
		if stream.IDs.Empty() {
			stream.IDs = req.IDs
		}
		s.adj.Add(stream)
	}

	start := s.scraper.deps.Now()
	err := p.Scrape(ctx, &req, sink)
	switch {
	case err == nil:
		registry.RecordSuccess(id)
		s.logger.WithFields(logrus.Fields{
			"provider": id,
			"duration": s.scraper.deps.Now().Sub(start).Round(time.Millisecond),
		}).Debug("Provider finished")
	case ctx.Err() != nil:
		// Cut short by termination, not the provider's fault
		s.logger.WithField("provider", id).Debug("Provider stopped")
	default:
		s.failures.Add(1)
		registry.RecordFailure(id, err)
	}
}

// loadCached feeds the stored results of a provider query when they are
// younger than the save window
func (s *Session) loadCached(ctx context.Context, provider, key string) bool {
	deps := s.scraper.deps
	if deps.Cache == nil || s.req.IDs.Empty() {
		return false
	}
	batch, err := deps.Cache.Load(ctx, s.req.Kind, provider, s.req.IDs, s.req.Season, key)
	if err != nil {
		s.logger.WithError(err).WithField("provider", provider).Debug("Providers-cache read failed")
		return false
	}
	if batch == nil || deps.Now().Sub(time.Unix(batch.Time, 0)) >= s.scraper.cfg.CacheSaveWindow {
		return false
	}
	for _, stream := range batch.Streams {
		stream.Query = key
		s.adj.Add(stream)
	}
	s.logger.WithFields(logrus.Fields{
		"provider": provider,
		"streams":  len(batch.Streams),
	}).Debug("Using cached provider results")
	return true
}
