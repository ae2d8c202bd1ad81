package models

// IDs is the id-tuple addressing an entity. Any id can be absent.
type IDs struct {
	IMDb  string `json:"imdb,omitempty"`
	TMDb  string `json:"tmdb,omitempty"`
	TVDb  string `json:"tvdb,omitempty"`
	Trakt string `json:"trakt,omitempty"`
	Slug  string `json:"slug,omitempty"`
}

// Provider names used for memo keys and logging
const (
	ProviderIMDb  = "imdb"
	ProviderTMDb  = "tmdb"
	ProviderTVDb  = "tvdb"
	ProviderTrakt = "trakt"
	ProviderSlug  = "slug"
)

// Empty reports whether no id is set
func (i IDs) Empty() bool {
	return i.IMDb == "" && i.TMDb == "" && i.TVDb == "" && i.Trakt == "" && i.Slug == ""
}

// Each calls fn for every non-empty id in a fixed order
func (i IDs) Each(fn func(provider, id string)) {
	if i.IMDb != "" {
		fn(ProviderIMDb, i.IMDb)
	}
	if i.TMDb != "" {
		fn(ProviderTMDb, i.TMDb)
	}
	if i.TVDb != "" {
		fn(ProviderTVDb, i.TVDb)
	}
	if i.Trakt != "" {
		fn(ProviderTrakt, i.Trakt)
	}
	if i.Slug != "" {
		fn(ProviderSlug, i.Slug)
	}
}

// Merge returns i with blank ids filled from other
func (i IDs) Merge(other IDs) IDs {
	if i.IMDb == "" {
		i.IMDb = other.IMDb
	}
	if i.TMDb == "" {
		i.TMDb = other.TMDb
	}
	if i.TVDb == "" {
		i.TVDb = other.TVDb
	}
	if i.Trakt == "" {
		i.Trakt = other.Trakt
	}
	if i.Slug == "" {
		i.Slug = other.Slug
	}
	return i
}

// Part marks that a prior retrieval returned incomplete data
type Part struct {
	FailCount int      `json:"fail_count"`
	Missing   []string `json:"missing,omitempty"`
	Time      int64    `json:"time,omitempty"`
}
