package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/amaumene/streamarr/internal/config"
	"github.com/amaumene/streamarr/internal/debrid"
	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
	"github.com/amaumene/streamarr/internal/utils"
)

var (
	// ErrCancelled is the termination cause of sessions cancelled by the caller
	ErrCancelled = errors.New("scrape cancelled")
	// ErrBudget is the termination cause of sessions that ran out of time
	ErrBudget = errors.New("scrape budget exhausted")
)

// State is the lifecycle state of a session
type State string

const (
	StateInitialize State = "initialize"
	StateScrape     State = "scrape"
	StateFinalize   State = "finalize"
	StateFinished   State = "finished"
	StateCancelled  State = "cancelled"
)

// Request describes one scrape
type Request struct {
	Kind      models.Kind
	Title     string
	ShowTitle string // Searched instead of Title for episodes, seasons and packs
	Year      int
	IDs       models.IDs
	Season    *int
	Episode   *int
	Number    *int // Absolute episode number, used when Episode is unset
	Pack      bool

	Metadata metacache.Document // Skips the metadata lookup when set
	Preset   string             // Optimization profile overriding the configured one
	Exact    bool               // No title expansion

	Items   []*models.Stream // Results of an earlier session
	Process bool             // Post-process Items again; false returns them unchanged
	Binge   bool             // Autoplay of the next episode, favours speed
	Cache   bool             // Read fresh provider results from the providers-cache
}

func (r *Request) validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid kind %q", r.Kind)
	}
	if r.Title == "" && r.ShowTitle == "" && r.IDs.Empty() && r.Metadata == nil {
		return fmt.Errorf("request has neither title nor ids")
	}
	if r.Kind == models.KindEpisode && r.Season == nil {
		return fmt.Errorf("episode requests need a season")
	}
	return nil
}

// Result is the outcome of a session
type Result struct {
	Streams  []*models.Stream // Usable streams in provider order
	Excluded []*models.Stream // Streams removed by an exclusion filter, duplicates left out
	State    State
	Reason   string // Why dispatch stopped early, empty when every provider finished
	Err      error  // ErrCancelled or ErrBudget when the session was cut short

	Providers int
	Finished  int
	Cached    int
	Failures  int
	Duration  time.Duration
}

// MetadataSource returns the metadata document of an entity
type MetadataSource interface {
	Get(ctx context.Context, kind models.Kind, ids models.IDs, season *int) (metacache.Document, error)
}

// Deps are the collaborators shared by every session
type Deps struct {
	Config     *config.Config
	Registry   *providers.Registry
	Metadata   MetadataSource    // Optional
	Cache      *providers.Cache  // Optional
	Services   []debrid.Service
	Identifier debrid.Identifier // Optional
	Keywords   *utils.Blacklist
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *logrus.Logger
}

// Scraper runs scrape sessions
type Scraper struct {
	deps   Deps
	cfg    *config.Config
	logger *logrus.Logger
	tracer trace.Tracer

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// New creates a scraper
func New(deps Deps) *Scraper {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config == nil {
		deps.Config = &config.Config{}
	}
	return &Scraper{
		deps:     deps,
		cfg:      deps.Config,
		logger:   deps.Logger,
		tracer:   otel.Tracer("github.com/amaumene/streamarr/internal/scraper"),
		sessions: make(map[*Session]struct{}),
	}
}

// Scrape runs one session to completion
func (s *Scraper) Scrape(ctx context.Context, req Request, handler Handler) (*Result, error) {
	return s.Start(ctx, req, handler).Wait()
}

// Start runs a session in the background
func (s *Scraper) Start(ctx context.Context, req Request, handler Handler) *Session {
	session := newSession(s, req, handler)
	s.mu.Lock()
	s.sessions[session] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.sessions, session)
			s.mu.Unlock()
			close(session.done)
		}()
		session.result, session.err = session.run(ctx)
	}()
	return session
}

// Cancel cancels every running session and asks the providers to stop
func (s *Scraper) Cancel() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.Cancel()
	}
	if len(sessions) > 0 && s.deps.Registry != nil {
		s.deps.Registry.StopAll()
	}
}

// Active returns the number of running sessions
func (s *Scraper) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// limits resolves the profile of a request and merges the configured limits
func (s *Scraper) limits(req *Request) providers.Limits {
	name := s.cfg.OptimizationProfile
	switch {
	case req.Preset != "":
		name = req.Preset
	case req.Binge:
		name = string(providers.ProfileSpeed)
	}
	profile, err := providers.ParseProfile(name)
	if err != nil {
		s.logger.WithError(err).Warn("Falling back to the mixed profile")
		profile = providers.ProfileMixed
	}

	limits := providers.Optimize(providers.Diagnose(s.cfg), profile)
	if req.Preset == "" && !req.Binge && s.cfg.ScrapeTimeLimit > 0 {
		limits.TimeLimit = s.cfg.ScrapeTimeLimit
	}
	if s.cfg.QueryLimit > 0 {
		limits.QueryLimit = min(limits.QueryLimit, s.cfg.QueryLimit)
	}
	return limits
}
