package adjuster

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/debrid"
	"github.com/amaumene/streamarr/internal/models"
)

// Inspect asks every debrid service about the streams it has not answered
// for yet. A partial inspection only runs for a service once enough streams
// are waiting or one has waited long enough.
func (a *Adjuster) Inspect(ctx context.Context, partial bool) error {
	if !a.opts.CacheInspect {
		return nil
	}
	var errs []error
	for _, service := range a.deps.Services {
		if err := a.inspectService(ctx, service, partial); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

type lookup struct {
	keys    []string
	indices map[string][]int
}

func (a *Adjuster) inspectService(ctx context.Context, service debrid.Service, partial bool) error {
	id := service.ID()
	now := a.deps.Now()

	a.mu.Lock()
	slices := make(map[models.SourceType]*lookup)
	var candidates []int
	stale := false
	for i, stream := range a.streams {
		if stream.Exclusions.Has(models.ExcludeDuplicate) || !service.Supports(stream.Source) ||
			stream.AccessCache.Inspected(id) {
			continue
		}
		byHash := service.ByHash(stream.Source)
		if byHash && stream.Hash == "" {
			continue
		}
		candidates = append(candidates, i)
		since := a.added[i]
		if stream.HashTime > 0 {
			since = timeOf(stream.HashTime)
		}
		if now.Sub(since) >= partialAge {
			stale = true
		}
	}
	if len(candidates) == 0 || (partial && len(candidates) < partialPending && !stale) {
		a.mu.Unlock()
		return nil
	}

	for _, i := range candidates {
		stream := a.streams[i]
		// Pending keeps a concurrent slice of the same service off these streams
		stream.AccessCache[id] = models.AccessEntry{Value: models.CachePending, Time: now.Unix()}

		key := stream.PlayLink()
		if service.ByHash(stream.Source) {
			key = stream.Hash
		}
		s, ok := slices[stream.Source]
		if !ok {
			s = &lookup{indices: make(map[string][]int)}
			slices[stream.Source] = s
		}
		if _, seen := s.indices[key]; !seen {
			s.keys = append(s.keys, key)
		}
		s.indices[key] = append(s.indices[key], i)
	}
	a.mu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"service": id,
		"streams": len(candidates),
		"partial": partial,
	}).Debug("Inspecting debrid cache")

	var firstErr error
	for source, s := range slices {
		err := service.Check(ctx, source, s.keys, func(key string, cached bool) {
			a.answer(id, s.indices[key], cached)
		})
		if err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"service": id,
				"source":  source,
			}).Warn("Debrid cache inspection failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	// Streams left pending get another chance in a later slice
	a.mu.Lock()
	for _, i := range candidates {
		if entry := a.streams[i].AccessCache[id]; entry.Value == models.CachePending {
			delete(a.streams[i].AccessCache, id)
		}
	}
	a.mu.Unlock()
	return firstErr
}

// answer records one service answer on the streams sharing a key
func (a *Adjuster) answer(service string, indices []int, cached bool) {
	now := a.deps.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, i := range indices {
		a.streams[i].AccessCache.Set(service, cached, now)
		if cached {
			a.countCachedLocked(i)
		}
		a.syncDuplicatesLocked(i)
	}
}

func timeOf(unix int64) time.Time {
	return time.Unix(unix, 0)
}
