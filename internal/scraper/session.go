package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amaumene/streamarr/internal/adjuster"
	"github.com/amaumene/streamarr/internal/metrics"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
)

// Phase budgets
const (
	initializeBudget = 30 * time.Second
	metadataBudget   = 45 * time.Second
	finalizeBudget   = 60 * time.Second
	exclusionBudget  = 60 * time.Second
	persistBudget    = 60 * time.Second

	// The finalize drain may overrun once by this much while fewer than
	// drainOverrun percent of the tasks are still running
	drainExtension = 30 * time.Second
	drainOverrun   = 3
)

// Progress is reported to the Handler while a session runs
type Progress struct {
	State     State
	Phase     string
	Percent   float64
	Providers int
	Finished  int
	Streams   int
	Cached    int
	Failures  int
	Message   string
}

// Handler receives progress reports. It may be called from several
// goroutines at once.
type Handler interface {
	Progress(p Progress)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(p Progress)

// Progress calls f(p)
func (f HandlerFunc) Progress(p Progress) {
	f(p)
}

// Session is one scrape
type Session struct {
	scraper *Scraper
	req     Request
	handler Handler
	logger  *logrus.Entry

	stop     atomic.Bool
	failures atomic.Int32

	mu             sync.Mutex
	state          State
	adj            *adjuster.Adjuster
	term           *terminator
	cancelDispatch context.CancelFunc
	providers      int
	finished       int
	episode        episodeDetails

	done   chan struct{}
	result *Result
	err    error
}

func newSession(s *Scraper, req Request, handler Handler) *Session {
	if handler == nil {
		handler = HandlerFunc(func(Progress) {})
	}
	return &Session{
		scraper: s,
		req:     req,
		handler: handler,
		logger: s.logger.WithFields(logrus.Fields{
			"kind":  req.Kind,
			"title": req.Title,
		}),
		state: StateInitialize,
		done:  make(chan struct{}),
	}
}

// Wait blocks until the session ends
func (s *Session) Wait() (*Result, error) {
	<-s.done
	return s.result, s.err
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel stops dispatch and post-processing. Streams produced so far are
// still finalized and persisted.
func (s *Session) Cancel() {
	if !s.stop.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	if s.state != StateFinished {
		s.state = StateCancelled
	}
	term, cancel, adj := s.term, s.cancelDispatch, s.adj
	s.mu.Unlock()

	if term != nil {
		term.cancel()
	}
	if cancel != nil {
		cancel()
	}
	if adj != nil {
		adj.Stop()
	}
	s.logger.Info("Scrape cancelled")
}

// setState moves to state unless the session was cancelled
func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCancelled || s.state == StateFinished {
		return
	}
	s.state = state
}

func (s *Session) report(phase string, percent float64, message string) {
	s.mu.Lock()
	p := Progress{
		State:     s.state,
		Phase:     phase,
		Percent:   percent,
		Providers: s.providers,
		Finished:  s.finished,
		Failures:  int(s.failures.Load()),
		Message:   message,
	}
	adj := s.adj
	s.mu.Unlock()
	if adj != nil {
		counters := adj.Counters()
		p.Streams = counters.Total
		p.Cached = counters.Cached
	}
	s.handler.Progress(p)
}

// phase runs fn under its own budget and span
func (s *Session) phase(ctx context.Context, name string, budget time.Duration, fn func(ctx context.Context) error) error {
	start := s.scraper.deps.Now()
	ctx, span := s.scraper.tracer.Start(ctx, "scrape."+name)
	defer span.End()
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	err := fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%s: %w", name, ErrBudget)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WithError(err).WithField("phase", name).Warn("Scrape phase cut short")
	}
	metrics.PhaseDuration.WithLabelValues(name).Observe(s.scraper.deps.Now().Sub(start).Seconds())
	return err
}

func (s *Session) run(ctx context.Context) (*Result, error) {
	deps := s.scraper.deps
	start := deps.Now()
	ctx, span := s.scraper.tracer.Start(ctx, "scrape", trace.WithAttributes(
		attribute.String("kind", string(s.req.Kind)),
		attribute.String("imdb", s.req.IDs.IMDb),
	))
	defer span.End()

	if !s.req.Process && len(s.req.Items) > 0 {
		s.setState(StateFinished)
		return &Result{Streams: s.req.Items, State: StateFinished}, nil
	}
	if err := s.req.validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	metrics.ActiveScrapes.Inc()
	defer metrics.ActiveScrapes.Dec()

	s.logger.Info("Starting scrape")
	s.report("initialize", 0, "")

	var (
		limits providers.Limits
		tiers  [][]providers.Provider
	)
	_ = s.phase(ctx, "initialize", initializeBudget, func(ctx context.Context) error {
		limits = s.scraper.limits(&s.req)
		if deps.Registry != nil {
			tiers = deps.Registry.Tiers(s.req.Kind)
		}
		return ctx.Err()
	})
	s.mu.Lock()
	for _, tier := range tiers {
		s.providers += len(tier)
	}
	s.mu.Unlock()

	s.report("metadata", 5, "")
	var target adjuster.Target
	_ = s.phase(ctx, "metadata", metadataBudget, func(ctx context.Context) error {
		var err error
		target, err = s.target(ctx, limits)
		return err
	})

	var resolver adjuster.Resolver
	if deps.Registry != nil {
		resolver = deps.Registry
	}
	adj := adjuster.New(ctx, target, s.adjusterOptions(), adjuster.Deps{
		Resolver:   resolver,
		Services:   deps.Services,
		Identifier: deps.Identifier,
		Cache:      deps.Cache,
		HTTPClient: deps.HTTPClient,
		Now:        deps.Now,
		Logger:     deps.Logger,
	})
	defer adj.Stop()
	s.mu.Lock()
	s.adj = adj
	s.mu.Unlock()
	if s.stop.Load() {
		adj.Stop()
	}
	for _, item := range s.req.Items {
		adj.Add(item)
	}

	s.setState(StateScrape)
	s.report("scrape", 10, "")
	_ = s.phase(ctx, "scrape", 0, func(ctx context.Context) error {
		return s.scrape(ctx, tiers, target, limits)
	})

	s.setState(StateFinalize)
	s.report("finalize", 80, "")
	s.finalize(ctx)

	return s.finish(start, span), nil
}

// target gathers the titles and years searched for
func (s *Session) target(ctx context.Context, limits providers.Limits) (adjuster.Target, error) {
	req := &s.req
	cfg := s.scraper.cfg
	target := adjuster.Target{
		Kind:    req.Kind,
		IDs:     req.IDs,
		Season:  req.Season,
		Episode: req.Episode,
	}
	if target.Episode == nil && req.Number != nil {
		target.Episode = req.Number
	}

	doc := req.Metadata
	var err error
	if doc == nil && s.scraper.deps.Metadata != nil && !req.IDs.Empty() && !s.stop.Load() {
		doc, err = s.scraper.deps.Metadata.Get(ctx, metadataKind(req.Kind), req.IDs, nil)
		if err != nil {
			err = fmt.Errorf("failed to get metadata: %w", err)
		}
	}

	main := req.Title
	if req.ShowTitle != "" && req.Kind != models.KindMovie && req.Kind != models.KindSet {
		main = req.ShowTitle
	}
	if main == "" {
		main = docString(doc, "title")
	}

	episode := packDetails(doc, target.Season, target.Episode, s.scraper.deps.Now())
	s.mu.Lock()
	s.episode = episode
	s.mu.Unlock()

	target.Years = Years(req.Year, doc, limits.ExpandYears && !req.Exact)
	target.Titles = Titles(main, doc, TitleOptions{
		Primary:    cfg.LanguagePrimary,
		Languages:  cfg.Languages(),
		Country:    cfg.Country,
		QueryLimit: limits.QueryLimit,
		Expand:     limits.ExpandTitles && !req.Exact,
		Keywords:   limits.ExpandKeywords && req.Kind == models.KindMovie,
		Years:      target.Years,
	})
	s.logger.WithFields(logrus.Fields{
		"titles":  target.Titles,
		"years":   target.Years,
		"episode": episode.title,
	}).Debug("Expanded search terms")
	return target, err
}

// metadataKind is the kind whose document carries the searchable titles.
// The pack holds the show titles plus every episode.
func metadataKind(kind models.Kind) models.Kind {
	switch kind {
	case models.KindSeason, models.KindEpisode, models.KindPack:
		return models.KindPack
	}
	return kind
}

func (s *Session) adjusterOptions() adjuster.Options {
	cfg := s.scraper.cfg
	return adjuster.Options{
		Exclusions:     models.ParseExclusions(cfg.Exclusions),
		Keywords:       s.scraper.deps.Keywords,
		BlockedHosts:   cfg.BlockedHosts,
		Formats:        cfg.Formats,
		PreloadTorrent: cfg.PreloadTorrent,
		PreloadNZB:     cfg.PreloadNZB,
		Precheck:       cfg.Precheck,
		MetadataProbe:  cfg.MetadataProbe,
		CacheInspect:   cfg.CacheInspect,
		PrecheckTime:   cfg.PrecheckTimeLimit,
		MetadataTime:   cfg.MetadataTimeLimit,
		SaveWindow:     cfg.CacheSaveWindow,
	}
}

// finalize drains the adjuster, inspects the debrid caches, runs the
// exclusion filters and persists the results
func (s *Session) finalize(ctx context.Context) {
	cfg := s.scraper.cfg

	_ = s.phase(ctx, "drain", 0, s.drain)

	if !s.stop.Load() {
		s.report("inspection", 85, "")
		_ = s.phase(ctx, "inspection", cfg.InspectionTimeLimit, func(ctx context.Context) error {
			return s.adj.Inspect(ctx, false)
		})
	}

	s.report("exclusion", 90, "")
	_ = s.phase(ctx, "exclusion", exclusionBudget, func(ctx context.Context) error {
		s.adj.Finalize()
		return nil
	})

	s.report("persist", 95, "")
	_ = s.phase(ctx, "persist", persistBudget, func(ctx context.Context) error {
		_, err := s.adj.Persist(ctx)
		return err
	})
}

// drain waits for the post-processing tasks. The budget is extended once
// when only a few tasks are left.
func (s *Session) drain(ctx context.Context) error {
	budget := finalizeBudget
	for extended := false; ; extended = true {
		dctx, cancel := context.WithTimeout(ctx, budget)
		err := s.adj.Drain(dctx)
		cancel()
		if err == nil {
			return nil
		}
		pending, total := s.adj.Progress()
		if ctx.Err() != nil || extended || pending*100 >= drainOverrun*total {
			s.adj.Terminate(ReasonBudget)
			return fmt.Errorf("%d of %d tasks unfinished: %w", pending, total, ErrBudget)
		}
		s.logger.WithField("pending", pending).Debug("Extending the finalize drain")
		budget = drainExtension
	}
}

// finish orders the streams, records the metrics and builds the result
func (s *Session) finish(start time.Time, span trace.Span) *Result {
	deps := s.scraper.deps

	// Finished is visible before the list is handed over
	s.setState(StateFinished)
	state := s.State()

	streams := s.adj.Streams()
	enabled := models.ParseExclusions(s.scraper.cfg.Exclusions) | models.ExcludeDuplicate
	s.order(streams)

	result := &Result{
		State:     state,
		Providers: s.providers,
		Cached:    s.adj.Counters().Cached,
		Failures:  int(s.failures.Load()),
		Duration:  deps.Now().Sub(start),
	}
	s.mu.Lock()
	result.Finished = s.finished
	term := s.term
	s.mu.Unlock()
	if term != nil {
		result.Reason = term.terminated()
	}
	switch {
	case state == StateCancelled:
		result.Reason = ReasonCancelled
		result.Err = ErrCancelled
	case result.Reason == ReasonBudget:
		result.Err = ErrBudget
	}

	for _, stream := range streams {
		switch {
		case stream.Exclusions.Has(models.ExcludeDuplicate):
		case stream.Excluded(enabled):
			result.Excluded = append(result.Excluded, stream)
		default:
			result.Streams = append(result.Streams, stream)
		}
	}

	metrics.ScrapeDuration.WithLabelValues(string(state)).Observe(result.Duration.Seconds())
	metrics.ScrapeStreams.WithLabelValues("usable").Add(float64(len(result.Streams)))
	metrics.ScrapeStreams.WithLabelValues("excluded").Add(float64(len(result.Excluded)))
	metrics.ScrapeStreams.WithLabelValues("cached").Add(float64(result.Cached))
	span.SetAttributes(
		attribute.Int("streams", len(result.Streams)),
		attribute.String("state", string(state)),
	)

	message := ""
	if len(result.Streams) == 0 {
		message = "No usable streams found"
	}
	s.report("finished", 100, message)

	s.logger.WithFields(logrus.Fields{
		"state":    state,
		"reason":   result.Reason,
		"streams":  len(result.Streams),
		"excluded": len(result.Excluded),
		"cached":   result.Cached,
		"failures": result.Failures,
		"duration": result.Duration.Round(time.Millisecond),
	}).Info("Scrape finished")
	return result
}

// order sorts streams by provider tier and registration, keeping the
// insertion order of each provider
func (s *Session) order(streams []*models.Stream) {
	registry := s.scraper.deps.Registry
	if registry == nil {
		return
	}
	type position struct{ tier, order int }
	positions := make(map[string]position)
	for _, stream := range streams {
		if _, ok := positions[stream.Provider]; !ok {
			tier, order := registry.Order(stream.Provider)
			positions[stream.Provider] = position{tier, order}
		}
	}
	sort.SliceStable(streams, func(i, j int) bool {
		a, b := positions[streams[i].Provider], positions[streams[j].Provider]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.order != b.order {
			return a.order < b.order
		}
		if streams[i].Provider != streams[j].Provider {
			return streams[i].Provider < streams[j].Provider
		}
		return streams[i].Sequence < streams[j].Sequence
	})
}
