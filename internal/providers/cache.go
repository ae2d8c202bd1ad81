package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/store"
)

// Batch is the set of streams one provider returned for one entity and query
type Batch struct {
	Provider string
	IDs      models.IDs
	Season   *int
	Query    string
	Time     int64
	Streams  []*models.Stream
}

// Cache persists provider results, one row per (provider, ids, query)
type Cache struct {
	store  *store.Store
	logger *logrus.Logger
}

// NewCache creates a providers-cache over s
func NewCache(s *store.Store, logger *logrus.Logger) *Cache {
	return &Cache{store: s, logger: logger}
}

// Key returns the settings column value identifying a provider query
func Key(provider, query string) string {
	return provider + ":" + strconv.FormatUint(xxhash.Sum64String(query), 16)
}

// Save replaces the stored batches. Batches without ids are skipped.
func (c *Cache) Save(ctx context.Context, kind models.Kind, batches ...*Batch) error {
	var replacements []store.Replacement
	for _, batch := range batches {
		if batch.IDs.Empty() {
			continue
		}
		data, err := json.Marshal(batch.Streams)
		if err != nil {
			return fmt.Errorf("failed to encode streams of %s: %w", batch.Provider, err)
		}
		written := batch.Time
		if written == 0 {
			written = time.Now().Unix()
		}
		key := Key(batch.Provider, batch.Query)
		replacements = append(replacements, store.Replacement{
			Delete: store.MatchAll(batch.IDs, batch.Season).WithSettings(key),
			Row: store.Row{
				Time:     written,
				Settings: key,
				IDs:      batch.IDs,
				Season:   batch.Season,
				Data:     data,
			},
		})
	}
	if len(replacements) == 0 {
		return nil
	}
	if err := c.store.Replace(ctx, kind, replacements); err != nil {
		return fmt.Errorf("failed to save provider results: %w", err)
	}
	c.logger.WithFields(logrus.Fields{
		"kind":    kind,
		"batches": len(replacements),
	}).Debug("Saved provider results")
	return nil
}

// Load returns the stored batch of a provider query, nil when there is none
func (c *Cache) Load(ctx context.Context, kind models.Kind, provider string, ids models.IDs, season *int, query string) (*Batch, error) {
	q := store.MatchAll(ids, season).WithSettings(Key(provider, query))
	q.Limit = 1
	rows, err := c.store.Select(ctx, kind, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].Data == nil {
		return nil, nil
	}

	var streams []*models.Stream
	if err := json.Unmarshal(rows[0].Data, &streams); err != nil {
		c.logger.WithError(err).WithField("provider", provider).Debug("Discarding unreadable provider results")
		return nil, nil
	}
	for _, stream := range streams {
		stream.Origin = models.Origin{Cached: true, Time: rows[0].Time}
	}
	return &Batch{
		Provider: provider,
		IDs:      rows[0].IDs,
		Season:   rows[0].Season,
		Query:    query,
		Time:     rows[0].Time,
		Streams:  streams,
	}, nil
}

// Clean removes batches written before the given Unix time
func (c *Cache) Clean(ctx context.Context, before int64) (int64, error) {
	var total int64
	for _, kind := range models.Kinds {
		n, err := c.store.DeleteBy(ctx, kind, "time < ?", before)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Compact reclaims the space of deleted batches
func (c *Cache) Compact(ctx context.Context) error {
	return c.store.Compact(ctx)
}
