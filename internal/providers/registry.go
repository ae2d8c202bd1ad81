package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/metrics"
	"github.com/amaumene/streamarr/internal/models"
)

// Options configures failure tracking
type Options struct {
	FailureThreshold int           // Default consecutive failures before suppression
	Cooldown         time.Duration // How long a suppressed provider stays disabled
	Now              func() time.Time
}

type entry struct {
	provider Provider
	info     Info
	order    int
}

// Registry holds the registered providers and their failure statistics
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ordered []*entry
	stats   map[string]*models.ProviderStat
	db      *models.Database
	opts    Options
	logger  *logrus.Logger
}

// NewRegistry creates a registry. Statistics are loaded from and saved to db
// when it is not nil.
func NewRegistry(db *models.Database, opts Options, logger *logrus.Logger) (*Registry, error) {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Registry{
		entries: make(map[string]*entry),
		stats:   make(map[string]*models.ProviderStat),
		db:      db,
		opts:    opts,
		logger:  logger,
	}

	if db != nil {
		stats, err := db.GetAllProviderStats()
		if err != nil {
			return nil, fmt.Errorf("failed to load provider stats: %w", err)
		}
		for _, stat := range stats {
			r.stats[stat.ID] = stat
		}
	}
	return r, nil
}

// Register adds a provider. Registration order breaks ties within a tier.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if _, ok := r.entries[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	e := &entry{provider: p, info: p.Info(), order: len(r.ordered)}
	r.entries[id] = e
	r.ordered = append(r.ordered, e)

	r.logger.WithFields(logrus.Fields{
		"provider": id,
		"tier":     e.info.Tier,
	}).Debug("Registered provider")
	return nil
}

// Get returns the provider registered under id
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Providers returns every registered provider in registration order
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]Provider, 0, len(r.ordered))
	for _, e := range r.ordered {
		providers = append(providers, e.provider)
	}
	return providers
}

// Order returns the dispatch position of a provider: tier first, then
// registration. Unknown providers sort last.
func (r *Registry) Order(id string) (tier, order int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return int(^uint(0) >> 1), len(r.ordered)
	}
	return e.info.Tier, e.order
}

// Tiers groups the providers able to search kind by priority tier, lowest
// first. Suppressed providers are left out.
func (r *Registry) Tiers(kind models.Kind) [][]Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byTier := make(map[int][]*entry)
	for _, e := range r.ordered {
		if !e.info.Supports(kind) {
			continue
		}
		if r.suppressedLocked(e) {
			r.logger.WithField("provider", e.provider.ID()).Debug("Skipping suppressed provider")
			continue
		}
		byTier[e.info.Tier] = append(byTier[e.info.Tier], e)
	}

	levels := make([]int, 0, len(byTier))
	for tier := range byTier {
		levels = append(levels, tier)
	}
	sort.Ints(levels)

	tiers := make([][]Provider, 0, len(levels))
	for _, tier := range levels {
		entries := byTier[tier]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
		providers := make([]Provider, 0, len(entries))
		for _, e := range entries {
			providers = append(providers, e.provider)
		}
		tiers = append(tiers, providers)
	}
	return tiers
}

// Suppressed reports whether a provider is disabled after repeated failures
func (r *Registry) Suppressed(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	return r.suppressedLocked(e)
}

func (r *Registry) suppressedLocked(e *entry) bool {
	stat, ok := r.stats[e.provider.ID()]
	if !ok {
		return false
	}
	threshold := e.info.FailureThreshold
	if threshold <= 0 {
		threshold = r.opts.FailureThreshold
	}
	if stat.Consecutive < threshold {
		return false
	}
	return r.opts.Now().Sub(stat.LastFailure) < r.opts.Cooldown
}

// RecordSuccess resets the consecutive failure count of a provider
func (r *Registry) RecordSuccess(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stat := r.statLocked(id)
	stat.Successes++
	stat.Consecutive = 0
	stat.LastSuccess = r.opts.Now()
	r.saveLocked(stat)
}

// RecordFailure records a failed scrape. Cancellations are ignored and
// transient failures do not count towards suppression.
func (r *Registry) RecordFailure(id string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	kind := Classify(err)

	r.mu.Lock()
	defer r.mu.Unlock()

	stat := r.statLocked(id)
	stat.Failures++
	if kind != ErrorTransient {
		stat.Consecutive++
	}
	stat.LastFailure = r.opts.Now()
	stat.LastError = err.Error()
	r.saveLocked(stat)

	metrics.ProviderFailures.WithLabelValues(id, string(kind)).Inc()
	r.logger.WithFields(logrus.Fields{
		"provider":    id,
		"kind":        kind,
		"consecutive": stat.Consecutive,
	}).WithError(err).Warn("Provider failed")
}

func (r *Registry) statLocked(id string) *models.ProviderStat {
	stat, ok := r.stats[id]
	if !ok {
		stat = &models.ProviderStat{ID: id}
		r.stats[id] = stat
	}
	return stat
}

func (r *Registry) saveLocked(stat *models.ProviderStat) {
	if r.db == nil {
		return
	}
	if err := r.db.SaveProviderStat(stat); err != nil {
		r.logger.WithError(err).WithField("provider", stat.ID).Error("Failed to save provider stat")
	}
}

// Stats returns a copy of every provider's statistics, sorted by id
func (r *Registry) Stats() []models.ProviderStat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make([]models.ProviderStat, 0, len(r.stats))
	for _, stat := range r.stats {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats
}

// Reset clears the statistics of a provider, lifting any suppression
func (r *Registry) Reset(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stats, id)
	if r.db == nil {
		return nil
	}
	return r.db.DeleteProviderStat(id)
}

// StopAll asks every provider to stop its running searches
func (r *Registry) StopAll() {
	for _, p := range r.Providers() {
		p.Stop()
	}
}
