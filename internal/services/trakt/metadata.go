package trakt

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// IDs are the identifiers Trakt returns for an entity
type IDs struct {
	Trakt int    `json:"trakt"`
	Slug  string `json:"slug"`
	IMDB  string `json:"imdb"`
	TMDB  int    `json:"tmdb"`
	TVDB  int    `json:"tvdb"`
}

// Summary is the extended summary of a movie or show
type Summary struct {
	Title      string     `json:"title"`
	Year       int        `json:"year"`
	IDs        IDs        `json:"ids"`
	Released   string     `json:"released"`    // Movies, "2006-01-02"
	FirstAired *time.Time `json:"first_aired"` // Shows
	Country    string     `json:"country"`
	Language   string     `json:"language"`
	Genres     []string   `json:"genres"`
	Status     string     `json:"status"`
}

// Alias is an alternative title used in one country
type Alias struct {
	Title   string `json:"title"`
	Country string `json:"country"`
}

// Translation is the title of an entity in one language
type Translation struct {
	Title    string `json:"title"`
	Language string `json:"language"`
	Country  string `json:"country"`
}

// Release is a dated release of a movie in one country
type Release struct {
	Country     string `json:"country"`
	ReleaseDate string `json:"release_date"`
	ReleaseType string `json:"release_type"` // "theatrical", "digital", "physical", ...
}

// Episode is one episode of a season
type Episode struct {
	Season     int        `json:"season"`
	Number     int        `json:"number"`
	Title      string     `json:"title"`
	IDs        IDs        `json:"ids"`
	FirstAired *time.Time `json:"first_aired"`
}

// Season is a season with its episodes
type Season struct {
	Number   int       `json:"number"`
	IDs      IDs       `json:"ids"`
	Episodes []Episode `json:"episodes"`
}

// mediaPath maps a media type to its API collection
func mediaPath(show bool) string {
	if show {
		return "shows"
	}
	return "movies"
}

// GetSummary retrieves the extended summary. id can be a Trakt id, slug or IMDb id.
func (c *Client) GetSummary(ctx context.Context, show bool, id string) (*Summary, error) {
	var summary Summary
	path := fmt.Sprintf("/%s/%s?extended=full", mediaPath(show), url.PathEscape(id))
	if err := c.doRequest(ctx, path, &summary); err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &summary, nil
}

// GetAliases retrieves the alternative titles
func (c *Client) GetAliases(ctx context.Context, show bool, id string) ([]Alias, error) {
	var aliases []Alias
	path := fmt.Sprintf("/%s/%s/aliases", mediaPath(show), url.PathEscape(id))
	if err := c.doRequest(ctx, path, &aliases); err != nil {
		return nil, fmt.Errorf("failed to get aliases: %w", err)
	}
	return aliases, nil
}

// GetTranslations retrieves the titles in one language, every language when empty
func (c *Client) GetTranslations(ctx context.Context, show bool, id, language string) ([]Translation, error) {
	var translations []Translation
	path := fmt.Sprintf("/%s/%s/translations", mediaPath(show), url.PathEscape(id))
	if language != "" {
		path += "/" + url.PathEscape(language)
	}
	if err := c.doRequest(ctx, path, &translations); err != nil {
		return nil, fmt.Errorf("failed to get translations: %w", err)
	}
	return translations, nil
}

// GetReleases retrieves the dated releases of a movie in one country
func (c *Client) GetReleases(ctx context.Context, id, country string) ([]Release, error) {
	var releases []Release
	path := fmt.Sprintf("/movies/%s/releases/%s", url.PathEscape(id), url.PathEscape(country))
	if err := c.doRequest(ctx, path, &releases); err != nil {
		return nil, fmt.Errorf("failed to get releases: %w", err)
	}
	return releases, nil
}

// GetSeasons retrieves every season of a show with its episodes
func (c *Client) GetSeasons(ctx context.Context, id string) ([]Season, error) {
	var seasons []Season
	path := fmt.Sprintf("/shows/%s/seasons?extended=episodes,full", url.PathEscape(id))
	if err := c.doRequest(ctx, path, &seasons); err != nil {
		return nil, fmt.Errorf("failed to get seasons: %w", err)
	}
	return seasons, nil
}

// String renders a numeric id, empty for zero
func String(id int) string {
	if id == 0 {
		return ""
	}
	return strconv.Itoa(id)
}
