package metacache

import (
	"strconv"

	"github.com/patrickmn/go-cache"

	"github.com/amaumene/streamarr/internal/models"
)

// record is a stored or memoized row with its decoded document
type record struct {
	ids      models.IDs
	season   *int
	time     int64
	settings string
	part     *models.Part
	doc      Document
	external bool
}

// memo is the per-process record cache. Entries never expire; the memo dies
// with the process.
type memo struct {
	items *cache.Cache
}

func newMemo() *memo {
	return &memo{items: cache.New(cache.NoExpiration, 0)}
}

func memoKey(kind models.Kind, provider, id string, season *int) string {
	key := string(kind) + ":" + provider + ":" + id
	if season != nil {
		key += ":" + strconv.Itoa(*season)
	}
	return key
}

// get returns the memoized record matching the most ids of the query. Records
// holding an id that contradicts the query are skipped; ties go to the newest.
func (m *memo) get(kind models.Kind, ids models.IDs, season *int) *record {
	var best *record
	bestScore := 0
	ids.Each(func(provider, id string) {
		value, ok := m.items.Get(memoKey(kind, provider, id, season))
		if !ok {
			return
		}
		r := value.(*record)
		if r == best {
			return
		}
		score, ok := matchScore(ids, r.ids)
		if !ok {
			return
		}
		if score > bestScore || (score == bestScore && best != nil && r.time > best.time) {
			best, bestScore = r, score
		}
	})
	return best
}

// matchScore counts the ids query and stored share. It reports false when a
// provider is set on both sides with different values.
func matchScore(query, stored models.IDs) (int, bool) {
	score := 0
	for _, pair := range [][2]string{
		{query.IMDb, stored.IMDb},
		{query.TMDb, stored.TMDb},
		{query.TVDb, stored.TVDb},
		{query.Trakt, stored.Trakt},
		{query.Slug, stored.Slug},
	} {
		if pair[0] == "" || pair[1] == "" {
			continue
		}
		if pair[0] != pair[1] {
			return 0, false
		}
		score++
	}
	return score, true
}

// set stores r under one key per known id
func (m *memo) set(kind models.Kind, r *record) {
	r.ids.Each(func(provider, id string) {
		m.items.Set(memoKey(kind, provider, id, r.season), r, cache.NoExpiration)
	})
}

func (m *memo) len() int {
	return m.items.ItemCount()
}

func (m *memo) flush() {
	m.items.Flush()
}
