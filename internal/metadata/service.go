package metadata

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/services/omdb"
	"github.com/amaumene/streamarr/internal/services/tmdb"
	"github.com/amaumene/streamarr/internal/services/trakt"
)

// ErrUnsupported is returned for kinds no configured service can describe
var ErrUnsupported = errors.New("metadata: unsupported kind")

// Service returns metadata documents, from the cache when fresh enough and
// from the web services otherwise
type Service struct {
	cache     *metacache.MetaCache
	trakt     *trakt.Client
	tmdb      *tmdb.Client
	omdb      *omdb.Client
	languages []string
	country   string
	group     singleflight.Group
	logger    *logrus.Logger
}

// NewService creates a metadata service. tmdb and omdb may be nil.
func NewService(cache *metacache.MetaCache, traktClient *trakt.Client, tmdbClient *tmdb.Client,
	omdbClient *omdb.Client, languages []string, country string, logger *logrus.Logger) *Service {
	return &Service{
		cache:     cache,
		trakt:     traktClient,
		tmdb:      tmdbClient,
		omdb:      omdbClient,
		languages: languages,
		country:   country,
		logger:    logger,
	}
}

// Get returns the document of an entity. Foreground refreshes block, background
// refreshes return the cached document and update it asynchronously.
func (s *Service) Get(ctx context.Context, kind models.Kind, ids models.IDs, season *int) (metacache.Document, error) {
	items, err := s.cache.Select(ctx, kind, []*metacache.Item{{IDs: ids, Season: season}}, metacache.SelectOptions{UseMemo: true})
	if err != nil {
		return nil, err
	}
	item := items[0]

	logger := s.logger.WithFields(logrus.Fields{
		"kind":   kind,
		"ids":    ids,
		"status": item.Status,
	})

	switch item.Refresh {
	case models.RefreshForeground:
		logger.Debug("Fetching metadata")
		return s.refresh(ctx, kind, item)
	case models.RefreshBackground:
		logger.Debug("Refreshing metadata in background")
		go func() {
			if _, err := s.refresh(context.WithoutCancel(ctx), kind, item); err != nil {
				logger.WithError(err).Warn("Background metadata refresh failed")
			}
		}()
	}
	return item.Data, nil
}

// refresh fetches and stores the document of item, deduplicating concurrent calls
func (s *Service) refresh(ctx context.Context, kind models.Kind, item *metacache.Item) (metacache.Document, error) {
	key := string(kind) + ":" + item.IDs.IMDb + ":" + item.IDs.TMDb + ":" + item.IDs.TVDb + ":" + item.IDs.Trakt
	if item.Season != nil {
		key += ":" + strconv.Itoa(*item.Season)
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		doc, ids, err := s.Fetch(ctx, kind, item.IDs, item.Season)
		if err != nil {
			return nil, err
		}
		h := s.cache.Insert(ctx, kind, []*metacache.Item{{IDs: ids, Season: item.Season, Data: doc, Part: item.Part}},
			metacache.InsertOptions{Wait: true})
		if h != nil {
			if err := h.Wait(); err != nil {
				return nil, err
			}
		}
		return doc, nil
	})
	if err != nil {
		// A stale document beats none
		if item.Data != nil {
			s.logger.WithError(err).WithField("kind", kind).Warn("Metadata fetch failed, using cached document")
			return item.Data, nil
		}
		return nil, err
	}
	return value.(metacache.Document), nil
}

// Fetch builds a fresh document from the web services and returns it with the
// completed id tuple
func (s *Service) Fetch(ctx context.Context, kind models.Kind, ids models.IDs, season *int) (metacache.Document, models.IDs, error) {
	if s.trakt == nil || !s.trakt.Enabled() {
		return nil, ids, fmt.Errorf("trakt is not configured")
	}

	switch kind {
	case models.KindMovie:
		return s.fetchMovie(ctx, ids)
	case models.KindShow:
		return s.fetchShow(ctx, ids)
	case models.KindPack, models.KindSeason:
		return s.fetchPack(ctx, ids)
	case models.KindEpisode:
		if season == nil {
			return nil, ids, fmt.Errorf("episode lookups need a season")
		}
		doc, ids, err := s.fetchPack(ctx, ids)
		if err != nil {
			return nil, ids, err
		}
		return episodeList(doc, *season), ids, nil
	}
	return nil, ids, fmt.Errorf("%w: %s", ErrUnsupported, kind)
}
