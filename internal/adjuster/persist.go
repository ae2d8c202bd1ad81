package adjuster

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
)

type batchKey struct {
	provider string
	query    string
}

// Persist saves the streams into the providers-cache, one batch per provider
// and query. Batches read from the cache are only rewritten once their row is
// older than the save window.
func (a *Adjuster) Persist(ctx context.Context) (int, error) {
	if a.deps.Cache == nil || a.target.IDs.Empty() {
		return 0, nil
	}
	now := a.deps.Now()

	a.mu.Lock()
	batches := make(map[batchKey]*providers.Batch)
	var order []batchKey
	fresh := make(map[batchKey]bool)
	for _, stream := range a.streams {
		if stream.Exclusions.Has(models.ExcludeDuplicate) {
			continue
		}
		key := batchKey{provider: stream.Provider, query: stream.Query}
		batch, ok := batches[key]
		if !ok {
			batch = &providers.Batch{
				Provider: stream.Provider,
				IDs:      a.target.IDs,
				Season:   a.target.Season,
				Query:    stream.Query,
				Time:     now.Unix(),
			}
			batches[key] = batch
			order = append(order, key)
		}
		saved := *stream
		saved.AccessCache = models.MergeAccess(stream.AccessCache, nil)
		saved.Origin = models.Origin{}
		batch.Streams = append(batch.Streams, &saved)

		if !stream.Origin.Cached || now.Unix()-stream.Origin.Time > int64(a.opts.SaveWindow.Seconds()) {
			fresh[key] = true
		}
	}
	a.mu.Unlock()

	var save []*providers.Batch
	for _, key := range order {
		if fresh[key] {
			save = append(save, batches[key])
		}
	}
	if len(save) == 0 {
		return 0, nil
	}

	if err := a.deps.Cache.Save(ctx, a.target.Kind, save...); err != nil {
		return 0, err
	}
	a.logger.WithFields(logrus.Fields{
		"kind":    a.target.Kind,
		"batches": len(save),
		"skipped": len(order) - len(save),
	}).Debug("Persisted provider results")
	return len(save), nil
}
