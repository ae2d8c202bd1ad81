package metacache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/metrics"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/store"
)

// Fingerprint returns the current settings fingerprint
type Fingerprint interface {
	Get() string
}

// Item is a metadata entity as passed to and returned from the cache
type Item struct {
	IDs    models.IDs
	Season *int // Episode lists only
	Data   Document

	// Annotations set by Select
	Status   models.Status
	Refresh  models.Refresh
	Time     int64
	Settings string
	Part     *models.Part
}

// SelectOptions controls a lookup
type SelectOptions struct {
	UseMemo bool
}

// InsertOptions controls a write
type InsertOptions struct {
	Time int64 // Write time, zero means now
	Wait bool  // Block until multi-item writes are committed
}

// Options configures a MetaCache
type Options struct {
	Thresholds map[models.Kind]Thresholds // Per-kind overrides of DefaultThresholds
	External   *store.Store               // Optional read-only store consulted on primary misses
	Now        func() time.Time
}

// MetaCache classifies, memoizes and persists metadata documents
type MetaCache struct {
	mu          sync.RWMutex
	primary     *store.Store
	external    *store.Store
	fingerprint Fingerprint
	thresholds  map[models.Kind]Thresholds
	memo        *memo
	now         func() time.Time
	logger      *logrus.Logger
}

// New creates a metadata cache over the primary store
func New(primary *store.Store, fingerprint Fingerprint, opts Options, logger *logrus.Logger) *MetaCache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &MetaCache{
		primary:     primary,
		external:    opts.External,
		fingerprint: fingerprint,
		thresholds:  opts.Thresholds,
		memo:        newMemo(),
		now:         now,
		logger:      logger,
	}
}

// Thresholds returns the freshness limits of kind
func (c *MetaCache) Thresholds(kind models.Kind) Thresholds {
	if th, ok := c.thresholds[kind]; ok {
		return th
	}
	return DefaultThresholds()
}

// MemoSize returns the number of memo keys
func (c *MetaCache) MemoSize() int {
	return c.memo.len()
}

// SetExternal attaches or detaches the read-only external store
func (c *MetaCache) SetExternal(external *store.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.external = external
}

// Select looks up every skeleton item and returns annotated copies with the
// cached document merged in
func (c *MetaCache) Select(ctx context.Context, kind models.Kind, items []*Item, opts SelectOptions) ([]*Item, error) {
	current := c.fingerprint.Get()
	now := c.now()
	result := make([]*Item, 0, len(items))

	for _, item := range items {
		selected, err := c.selectOne(ctx, kind, item, current, now, opts)
		if err != nil {
			return nil, err
		}
		metrics.MetaCacheLookups.WithLabelValues(string(kind), string(selected.Status)).Inc()
		result = append(result, selected)
	}
	return result, nil
}

func (c *MetaCache) selectOne(ctx context.Context, kind models.Kind, item *Item, current string, now time.Time, opts SelectOptions) (*Item, error) {
	out := &Item{IDs: item.IDs, Season: item.Season, Data: item.Data}
	if item.IDs.Empty() {
		return annotate(out, nil, models.StatusInvalid), nil
	}

	if opts.UseMemo {
		c.mu.RLock()
		r := c.memo.get(kind, item.IDs, item.Season)
		c.mu.RUnlock()
		if r != nil {
			return c.resolve(kind, out, r, models.StatusMemory), nil
		}
	}

	r, err := c.lookup(ctx, kind, item.IDs, item.Season, current)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return annotate(out, nil, models.StatusInvalid), nil
	}

	status := models.StatusExternal
	if !r.external {
		status = classify(c.Thresholds(kind), kind, r, current, now)
	} else {
		r.time = now.Unix()
	}
	if status == models.StatusCurrent {
		c.mu.Lock()
		c.memo.set(kind, r)
		c.mu.Unlock()
	}
	return c.resolve(kind, out, r, status), nil
}

// lookup returns the best-matching row: the first row written under the current
// settings, else the best match. The external store is consulted only when
// the primary has nothing decodable.
func (c *MetaCache) lookup(ctx context.Context, kind models.Kind, ids models.IDs, season *int, current string) (*record, error) {
	rows, err := c.primary.Select(ctx, kind, store.MatchAny(ids, season))
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", kind, err)
	}

	// Rows under the current settings first, then the rest in match order.
	// Rows that fail to decode are skipped and left in place.
	order := make([]int, 0, len(rows))
	for i := range rows {
		if rows[i].Settings == current {
			order = append(order, i)
		}
	}
	for i := range rows {
		if rows[i].Settings != current {
			order = append(order, i)
		}
	}
	for _, i := range order {
		if rows[i].Data == nil {
			continue
		}
		if r := c.decode(kind, &rows[i], false); r != nil {
			return r, nil
		}
	}

	c.mu.RLock()
	external := c.external
	c.mu.RUnlock()
	if external == nil {
		return nil, nil
	}

	rows, err = external.Select(ctx, kind, store.MatchAny(ids, season))
	if err != nil {
		c.logger.WithError(err).WithField("kind", kind).Warn("Failed to query external metadata store")
		return nil, nil
	}
	for i := range rows {
		if rows[i].Data == nil {
			continue
		}
		if r := c.decode(kind, &rows[i], true); r != nil {
			return r, nil
		}
	}
	return nil, nil
}

func (c *MetaCache) decode(kind models.Kind, row *store.Row, external bool) *record {
	doc, err := decodeDocument(row.Data)
	if err != nil {
		c.logger.WithError(err).WithField("kind", kind).Debug("Failed to parse metadata document")
		return nil
	}
	r := &record{
		ids:      row.IDs,
		season:   row.Season,
		time:     row.Time,
		settings: row.Settings,
		doc:      doc,
		external: external,
	}
	if row.Part != nil {
		var part models.Part
		if err := json.Unmarshal(row.Part, &part); err == nil {
			r.part = &part
		}
	}
	return r
}

// resolve builds the returned item from a record: shared copy of the document
// with the skeleton merged in
func (c *MetaCache) resolve(kind models.Kind, out *Item, r *record, status models.Status) *Item {
	out.IDs = out.IDs.Merge(r.ids)
	if out.Season == nil {
		out.Season = r.season
	}
	out.Data = merge(share(kind, r.doc), out.Data)
	return annotate(out, r, status)
}

func annotate(item *Item, r *record, status models.Status) *Item {
	item.Status = status
	item.Refresh = models.RefreshFor(status)
	if r != nil {
		item.Time = r.time
		item.Settings = r.settings
		item.Part = r.part
	}
	return item
}

// Handle tracks an insert that may run in the background
type Handle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the insert finished and returns its error
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Done is closed when the insert finished
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Insert persists items and updates the memo. Empty input returns nil. Items
// without any id are skipped. With Wait unset, multi-item writes run in the
// background.
func (c *MetaCache) Insert(ctx context.Context, kind models.Kind, items []*Item, opts InsertOptions) *Handle {
	if len(items) == 0 {
		return nil
	}

	h := &Handle{done: make(chan struct{})}
	run := func(ctx context.Context) {
		defer close(h.done)
		h.err = c.insert(ctx, kind, items, opts)
		if h.err != nil {
			c.logger.WithError(h.err).WithField("kind", kind).Error("Failed to insert metadata")
		}
	}

	if !opts.Wait && len(items) > 1 {
		go run(context.WithoutCancel(ctx))
	} else {
		run(ctx)
	}
	return h
}

func (c *MetaCache) insert(ctx context.Context, kind models.Kind, items []*Item, opts InsertOptions) error {
	written := opts.Time
	if written == 0 {
		written = c.now().Unix()
	}
	settings := c.fingerprint.Get()

	var replacements []store.Replacement
	var records []*record
	for _, item := range items {
		if item.IDs.Empty() {
			continue
		}
		if item.Data == nil {
			item.Data = Document{}
		}
		stripTemp(item.Data)

		part := nextPart(kind, item, written)
		data, err := json.Marshal(item.Data)
		if err != nil {
			return fmt.Errorf("failed to encode %s document: %w", kind, err)
		}
		row := store.Row{
			Time:     written,
			Settings: settings,
			IDs:      item.IDs,
			Season:   item.Season,
			Data:     data,
		}
		if part != nil {
			if row.Part, err = json.Marshal(part); err != nil {
				return fmt.Errorf("failed to encode %s part: %w", kind, err)
			}
		}

		// The memo keeps its own decoded copy, detached from the caller's map
		doc, err := decodeDocument(data)
		if err != nil {
			return fmt.Errorf("failed to decode %s document: %w", kind, err)
		}

		replacements = append(replacements, store.Replacement{
			Delete: store.MatchAll(item.IDs, item.Season).WithSettings(settings),
			Row:    row,
		})
		records = append(records, &record{
			ids:      item.IDs,
			season:   item.Season,
			time:     written,
			settings: settings,
			part:     part,
			doc:      doc,
		})
	}
	if len(replacements) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.primary.Replace(ctx, kind, replacements); err != nil {
		return err
	}
	for _, r := range records {
		c.memo.set(kind, r)
	}
	metrics.MetaCacheInserts.WithLabelValues(string(kind)).Add(float64(len(records)))
	return nil
}

// nextPart derives the part annotation of an insert from the missing required
// fields and the previous annotation. It is dropped once RedoLimit is reached.
func nextPart(kind models.Kind, item *Item, written int64) *models.Part {
	missing := missingFields(kind, item.Data)
	if len(missing) == 0 {
		return nil
	}
	failCount := 1
	if item.Part != nil {
		failCount = item.Part.FailCount + 1
	}
	if failCount >= RedoLimit {
		return nil
	}
	return &models.Part{FailCount: failCount, Missing: missing, Time: written}
}

// Delete removes every row of kind written under settings
func (c *MetaCache) Delete(ctx context.Context, kind models.Kind, settings string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed, err := c.primary.Delete(ctx, kind, store.All().WithSettings(settings))
	if err != nil {
		return 0, err
	}
	c.memo.flush()
	return removed, nil
}

// Clean removes every row written before the given Unix time
func (c *MetaCache) Clean(ctx context.Context, before int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, kind := range models.Kinds {
		removed, err := c.primary.DeleteBy(ctx, kind, "time < ?", before)
		if err != nil {
			return total, err
		}
		total += removed
	}
	c.memo.flush()

	c.logger.WithFields(logrus.Fields{
		"before":  before,
		"removed": total,
	}).Info("Cleaned metadata cache")
	return total, nil
}

// Compact reclaims space in the primary store
func (c *MetaCache) Compact(ctx context.Context) error {
	return c.primary.Compact(ctx)
}

// Import ingests the store at path. Primary stores are copied row by row into
// the primary; external stores are attached as the read-only fallback. A nil
// kinds imports every kind.
func (c *MetaCache) Import(ctx context.Context, path string, kinds []models.Kind) (int, error) {
	schema, err := store.DetectSchema(ctx, path)
	if err != nil {
		return 0, err
	}
	if len(kinds) == 0 {
		kinds = models.Kinds
	}

	if schema == store.External {
		external, err := store.Open(path, store.Options{Schema: store.External, ReadOnly: true}, c.logger)
		if err != nil {
			return 0, err
		}
		c.SetExternal(external)
		c.logger.WithField("path", path).Info("Attached external metadata store")
		return 0, nil
	}

	source, err := store.Open(path, store.Options{Schema: store.Primary, ReadOnly: true}, c.logger)
	if err != nil {
		return 0, err
	}
	defer source.Close()

	imported := 0
	for _, kind := range kinds {
		rows, err := source.Select(ctx, kind, store.All())
		if err != nil {
			return imported, err
		}
		kept := rows[:0]
		for _, row := range rows {
			if row.Data != nil {
				kept = append(kept, row)
			}
		}

		c.mu.Lock()
		err = c.primary.Insert(ctx, kind, kept)
		c.mu.Unlock()
		if err != nil {
			return imported, err
		}
		imported += len(kept)
	}
	c.memo.flush()

	c.logger.WithFields(logrus.Fields{
		"path":     path,
		"imported": imported,
	}).Info("Imported metadata")
	return imported, nil
}

// ExternalGenerate writes the read-only external variant of input to output.
// An empty input uses the primary store.
func (c *MetaCache) ExternalGenerate(ctx context.Context, input, output string) error {
	if input == "" {
		input = c.primary.Path()
	}
	return store.ExternalGenerate(ctx, input, output, c.logger)
}
