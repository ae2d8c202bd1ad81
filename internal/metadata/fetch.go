package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/services/trakt"
)

// traktKey returns the identifier Trakt accepts for ids: its own id, the slug
// or the IMDb id
func traktKey(ids models.IDs) (string, error) {
	switch {
	case ids.Trakt != "":
		return ids.Trakt, nil
	case ids.Slug != "":
		return ids.Slug, nil
	case ids.IMDb != "":
		return ids.IMDb, nil
	}
	return "", fmt.Errorf("no trakt, slug or imdb id")
}

func mergeTraktIDs(ids models.IDs, t trakt.IDs) models.IDs {
	return ids.Merge(models.IDs{
		IMDb:  t.IMDB,
		TMDb:  trakt.String(t.TMDB),
		TVDb:  trakt.String(t.TVDB),
		Trakt: trakt.String(t.Trakt),
		Slug:  t.Slug,
	})
}

func (s *Service) fetchMovie(ctx context.Context, ids models.IDs) (metacache.Document, models.IDs, error) {
	key, err := traktKey(ids)
	if err != nil {
		return nil, ids, err
	}
	summary, err := s.trakt.GetSummary(ctx, false, key)
	if err != nil {
		return nil, ids, err
	}
	ids = mergeTraktIDs(ids, summary.IDs)

	doc := baseDocument(summary)
	times := map[string]any{}
	if released, err := time.Parse("2006-01-02", summary.Released); err == nil {
		times["premiere"] = released.Unix()
	}
	if s.country != "" {
		releases, err := s.trakt.GetReleases(ctx, key, s.country)
		if err != nil {
			s.logger.WithError(err).Debug("Failed to get releases")
		}
		for _, release := range releases {
			date, err := time.Parse("2006-01-02", release.ReleaseDate)
			if err != nil {
				continue
			}
			switch release.ReleaseType {
			case "digital", "physical":
				if current, ok := times[release.ReleaseType].(int64); !ok || date.Unix() < current {
					times[release.ReleaseType] = date.Unix()
				}
			}
		}
	}
	doc["time"] = times

	s.addTitles(ctx, doc, false, key)
	years := doc["years"].(map[string]any)

	if s.tmdb != nil && ids.TMDb != "" {
		details, err := s.tmdb.Movie(ctx, ids.TMDb)
		if err != nil {
			s.logger.WithError(err).Debug("TMDb lookup failed")
		} else {
			doc["originaltitle"] = details.OriginalTitle
			if details.Collection != "" {
				doc["collection"] = details.Collection
			}
			if details.Year > 0 {
				years["tmdb"] = details.Year
			}
			ids = ids.Merge(models.IDs{IMDb: details.IMDbID})
		}
	}
	s.addIMDbYear(ctx, ids, years)

	return normalize(doc), ids, nil
}

func (s *Service) fetchShow(ctx context.Context, ids models.IDs) (metacache.Document, models.IDs, error) {
	key, err := traktKey(ids)
	if err != nil {
		return nil, ids, err
	}
	summary, err := s.trakt.GetSummary(ctx, true, key)
	if err != nil {
		return nil, ids, err
	}
	ids = mergeTraktIDs(ids, summary.IDs)

	doc := baseDocument(summary)
	times := map[string]any{}
	if summary.FirstAired != nil {
		times["premiere"] = summary.FirstAired.Unix()
	}
	doc["time"] = times

	s.addTitles(ctx, doc, true, key)
	years := doc["years"].(map[string]any)

	if s.tmdb != nil && ids.TMDb != "" {
		details, err := s.tmdb.Show(ctx, ids.TMDb)
		if err != nil {
			s.logger.WithError(err).Debug("TMDb lookup failed")
		} else {
			doc["originaltitle"] = details.OriginalTitle
			if details.Year > 0 {
				years["tmdb"] = details.Year
			}
		}
	}
	s.addIMDbYear(ctx, ids, years)

	return normalize(doc), ids, nil
}

func (s *Service) fetchPack(ctx context.Context, ids models.IDs) (metacache.Document, models.IDs, error) {
	doc, ids, err := s.fetchShow(ctx, ids)
	if err != nil {
		return nil, ids, err
	}
	key, _ := traktKey(ids)

	seasons, err := s.trakt.GetSeasons(ctx, key)
	if err != nil {
		return nil, ids, err
	}

	var list []any
	for _, season := range seasons {
		if season.Number == 0 {
			continue
		}
		var episodes []any
		for _, episode := range season.Episodes {
			entry := map[string]any{
				"episode": episode.Number,
				"title":   episode.Title,
				"number": map[string]any{
					"standard": map[string]any{"season": season.Number, "episode": episode.Number},
				},
			}
			if episode.FirstAired != nil {
				entry["time"] = map[string]any{"premiere": episode.FirstAired.Unix()}
			}
			episodes = append(episodes, entry)
		}
		list = append(list, map[string]any{"season": season.Number, "episodes": episodes})
	}
	doc["seasons"] = list

	s.logger.WithFields(logrus.Fields{
		"show":    doc["title"],
		"seasons": len(list),
	}).Debug("Fetched episode pack")
	return normalize(doc), ids, nil
}

// episodeList extracts one season of a pack as an episode-list document
func episodeList(pack metacache.Document, season int) metacache.Document {
	doc := metacache.Document{
		"title":  pack["title"],
		"year":   pack["year"],
		"season": season,
	}
	seasons, _ := pack["seasons"].([]any)
	for _, entry := range seasons {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if n, _ := m["season"].(float64); int(n) == season {
			doc["episodes"] = m["episodes"]
		}
	}
	return normalize(doc)
}

func baseDocument(summary *trakt.Summary) metacache.Document {
	doc := metacache.Document{
		"title":    summary.Title,
		"year":     summary.Year,
		"years":    map[string]any{"trakt": summary.Year},
		"country":  summary.Country,
		"language": summary.Language,
	}
	if len(summary.Genres) > 0 {
		doc["genres"] = summary.Genres
	}
	return doc
}

// addTitles adds aliases and the translations of every configured language
func (s *Service) addTitles(ctx context.Context, doc metacache.Document, show bool, key string) {
	aliases, err := s.trakt.GetAliases(ctx, show, key)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to get aliases")
	}
	var aliasList []any
	for _, alias := range aliases {
		aliasList = append(aliasList, map[string]any{"title": alias.Title, "country": alias.Country})
	}
	if len(aliasList) > 0 {
		doc["aliases"] = aliasList
	}

	translations := map[string]any{}
	for _, language := range s.languages {
		results, err := s.trakt.GetTranslations(ctx, show, key, language)
		if err != nil {
			s.logger.WithError(err).WithField("language", language).Debug("Failed to get translations")
			continue
		}
		var titles []any
		for _, translation := range results {
			if translation.Title != "" {
				titles = append(titles, translation.Title)
			}
		}
		if len(titles) > 0 {
			translations[language] = titles
		}
	}
	if len(translations) > 0 {
		doc["translations"] = translations
	}
}

func (s *Service) addIMDbYear(ctx context.Context, ids models.IDs, years map[string]any) {
	if s.omdb == nil || ids.IMDb == "" {
		return
	}
	details, err := s.omdb.Lookup(ctx, ids.IMDb)
	if err != nil {
		s.logger.WithError(err).Debug("OMDb lookup failed")
		return
	}
	if details.Year > 0 {
		years["imdb"] = details.Year
	}
}

// normalize gives a document the shape it has after a store round trip
func normalize(doc metacache.Document) metacache.Document {
	data, err := json.Marshal(doc)
	if err != nil {
		return doc
	}
	var out metacache.Document
	if err := json.Unmarshal(data, &out); err != nil {
		return doc
	}
	return out
}
