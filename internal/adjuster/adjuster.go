package adjuster

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/amaumene/streamarr/internal/debrid"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
	"github.com/amaumene/streamarr/internal/utils"
)

// TaskState is the state of one post-processing job
type TaskState int

const (
	TaskQueued TaskState = iota
	TaskBusy
	TaskDone
)

// Target describes the entity a session is scraping for
type Target struct {
	Kind    models.Kind
	IDs     models.IDs
	Season  *int
	Episode *int
	Titles  []string
	Years   []int
}

// Resolver finds the provider owning a stream
type Resolver interface {
	Get(id string) (providers.Provider, bool)
}

// Options selects the post-processing steps and their budgets
type Options struct {
	Exclusions     models.ExclusionFlag
	Keywords       *utils.Blacklist
	BlockedHosts   []string
	Formats        []string
	PreloadTorrent bool
	PreloadNZB     bool
	Precheck       bool
	MetadataProbe  bool
	CacheInspect   bool
	PrecheckTime   time.Duration
	MetadataTime   time.Duration
	SaveWindow     time.Duration
}

// Deps are the collaborators of an adjuster
type Deps struct {
	Resolver   Resolver
	Services   []debrid.Service
	Identifier debrid.Identifier // Optional
	Cache      *providers.Cache  // Optional, nothing is persisted without it
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *logrus.Logger
}

type task struct {
	index int
	state TaskState
}

const (
	// Partial inspections start once this many streams wait for a service...
	partialPending = 40
	// ...or once the oldest of them waited this long
	partialAge = 30 * time.Second
)

// Adjuster post-processes the streams of one scrape session. Streams live in
// an arena owned by the adjuster; tasks and duplicates refer to them by index.
type Adjuster struct {
	target Target
	opts   Options
	deps   Deps
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	stop   atomic.Bool

	// mu guards every field below
	mu         sync.Mutex
	streams    []*models.Stream
	added      []time.Time
	tasks      []*task
	duplicates map[int][]int // original index -> duplicate indices
	sequence   map[string]int
	counted    map[int]bool // streams already counted as cached
	cached     int
	draining   bool
	running    int

	normal *semaphore.Weighted
	drain  *semaphore.Weighted
	hashes singleflight.Group
}

// NormalLimit is the parallelism of post-processing while scraping
func NormalLimit(cores int) int64 {
	return int64(min(max(8, cores*3/2), 16))
}

// DrainLimit is the parallelism used to drain the queue at finalize
func DrainLimit(cores int) int64 {
	return int64(min(max(16, cores*2), 24))
}

// New creates the adjuster of one session. Cancelling ctx or calling Stop
// ends post-processing.
func New(ctx context.Context, target Target, opts Options, deps Deps) *Adjuster {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.Keywords == nil {
		opts.Keywords = utils.NewBlacklist()
	}
	ctx, cancel := context.WithCancel(ctx)
	cores := runtime.NumCPU()
	return &Adjuster{
		target:     target,
		opts:       opts,
		deps:       deps,
		logger:     deps.Logger,
		ctx:        ctx,
		cancel:     cancel,
		duplicates: make(map[int][]int),
		sequence:   make(map[string]int),
		counted:    make(map[int]bool),
		normal:     semaphore.NewWeighted(NormalLimit(cores)),
		drain:      semaphore.NewWeighted(DrainLimit(cores)),
	}
}

// Add appends a stream, merging it into an earlier duplicate, and queues its
// post-processing. Streams added after Stop are dropped.
func (a *Adjuster) Add(stream *models.Stream) {
	if a.stop.Load() {
		return
	}

	a.mu.Lock()
	stream.Sequence = a.sequence[stream.Provider]
	a.sequence[stream.Provider]++
	stream.Exclusions = 0
	stream.Termination = models.TerminationInfo{}
	if stream.AccessCache == nil {
		stream.AccessCache = models.AccessCache{}
	}
	if stream.Hash == "" && isMagnet(stream.Link) {
		stream.Hash = magnetHash(stream.Link)
	}
	if stream.Hash != "" && stream.HashTime == 0 {
		stream.HashTime = a.deps.Now().Unix()
	}
	if stream.Quality == "" {
		stream.Quality = utils.DetermineQuality(stream.Name)
	}

	index := len(a.streams)
	a.streams = append(a.streams, stream)
	a.added = append(a.added, a.deps.Now())
	duplicate := a.dedupLocked(index)
	a.excludeLocked(stream)
	if stream.AccessCache.Cached() {
		a.countCachedLocked(index)
	}

	t := &task{index: index}
	if duplicate {
		t.state = TaskDone
	}
	a.tasks = append(a.tasks, t)
	a.mu.Unlock()

	a.pump()
}

// dedupLocked compares the stream at index with every earlier stream. A match
// on link or hash marks the stream as duplicate and merges the access caches
// of both in each direction.
func (a *Adjuster) dedupLocked(index int) bool {
	stream := a.streams[index]
	for i := 0; i < index; i++ {
		other := a.streams[i]
		if other.Exclusions.Has(models.ExcludeDuplicate) {
			continue
		}
		if other.Link != stream.Link && (stream.Hash == "" || other.Hash != stream.Hash) {
			continue
		}

		merged := models.MergeAccess(other.AccessCache, stream.AccessCache)
		other.AccessCache = merged
		stream.AccessCache = models.MergeAccess(merged, nil)
		stream.Exclusions |= models.ExcludeDuplicate
		a.duplicates[i] = append(a.duplicates[i], index)
		if merged.Cached() {
			a.countCachedLocked(i)
		}

		a.logger.WithFields(logrus.Fields{
			"stream":   stream.Name,
			"provider": stream.Provider,
			"original": other.Provider,
		}).Debug("Merged duplicate stream")
		return true
	}
	return false
}

// syncDuplicatesLocked pushes the access cache of an original to its duplicates
func (a *Adjuster) syncDuplicatesLocked(index int) {
	for _, dup := range a.duplicates[index] {
		a.streams[dup].AccessCache = models.MergeAccess(a.streams[dup].AccessCache, a.streams[index].AccessCache)
	}
}

// countCachedLocked counts a stream as cached at most once across services
func (a *Adjuster) countCachedLocked(index int) {
	if a.counted[index] || a.streams[index].Exclusions.Has(models.ExcludeDuplicate) {
		return
	}
	a.counted[index] = true
	a.cached++
}

// pump starts queued tasks while the current semaphore has room. After Stop,
// queued tasks are marked done without running.
func (a *Adjuster) pump() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, t := range a.tasks {
		if t.state != TaskQueued {
			continue
		}
		if a.stop.Load() {
			t.state = TaskDone
			continue
		}
		sem := a.normal
		if a.draining {
			sem = a.drain
		}
		if !sem.TryAcquire(1) {
			return
		}
		t.state = TaskBusy
		a.running++
		go a.run(t, sem)
	}
}

func (a *Adjuster) run(t *task, sem *semaphore.Weighted) {
	defer func() {
		sem.Release(1)
		a.mu.Lock()
		// Resolve and precheck can add exclusions
		a.excludeLocked(a.streams[t.index])
		t.state = TaskDone
		a.running--
		a.mu.Unlock()
		a.pump()
	}()
	a.process(a.ctx, t.index)
}

// Stop ends the session: no stream is accepted anymore, queued tasks are
// dropped and running ones are cancelled
func (a *Adjuster) Stop() {
	a.stop.Store(true)
	a.cancel()
	a.pump()
}

// Stopped reports whether Stop was called
func (a *Adjuster) Stopped() bool {
	return a.stop.Load()
}

// Progress reports the number of unfinished and total tasks
func (a *Adjuster) Progress() (pending, total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.tasks {
		if t.state != TaskDone {
			pending++
		}
	}
	return pending, len(a.tasks)
}

// Running returns the number of tasks currently executing
func (a *Adjuster) Running() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Drain switches to the drain semaphore and waits until every task is done or
// ctx expires
func (a *Adjuster) Drain(ctx context.Context) error {
	a.mu.Lock()
	a.draining = true
	a.mu.Unlock()
	a.pump()

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if pending, _ := a.Progress(); pending == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Terminate stamps every unfinished stream with the reason its
// post-processing was cut short
func (a *Adjuster) Terminate(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.tasks {
		if t.state != TaskDone {
			a.streams[t.index].Termination = models.TerminationInfo{Terminated: true, Reason: reason}
		}
	}
}

// Streams returns the arena in insertion order. The streams are shared; do
// not modify them while the session runs.
func (a *Adjuster) Streams() []*models.Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*models.Stream(nil), a.streams...)
}

// CachedCount returns the number of streams found cached on any service
func (a *Adjuster) CachedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cached
}

// Counters classify the streams passing every enabled exclusion
type Counters struct {
	Total   int
	Quality map[models.Quality]int
	Source  map[models.SourceType]int
	Cached  int
	Debrid  int // Playable through a debrid service
	Direct  int // Hoster links played without a debrid service
	Premium int
	Local   int
}

// HD returns the number of HD streams
func (c Counters) HD() int {
	return c.Quality[models.QualityHDUltra] + c.Quality[models.QualityHD1080] + c.Quality[models.QualityHD720]
}

// Counters snapshots the classification counters
func (a *Adjuster) Counters() Counters {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := Counters{
		Quality: make(map[models.Quality]int),
		Source:  make(map[models.SourceType]int),
	}
	for _, stream := range a.streams {
		if stream.Excluded(a.opts.Exclusions | models.ExcludeDuplicate) {
			continue
		}
		c.Total++
		c.Quality[stream.Quality]++
		c.Source[stream.Source]++
		if stream.AccessCache.Cached() {
			c.Cached++
		}
		switch {
		case stream.Source == models.SourcePremium:
			c.Premium++
		case stream.Source == models.SourceLocal:
			c.Local++
		case a.supportedLocked(stream.Source):
			c.Debrid++
		case stream.Source == models.SourceHoster:
			c.Direct++
		}
	}
	return c
}

func (a *Adjuster) supportedLocked(source models.SourceType) bool {
	for _, service := range a.deps.Services {
		if service.Supports(source) {
			return true
		}
	}
	return false
}
