package tmdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tmdb "github.com/ryanbradynd05/go-tmdb"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// API is the subset of the TMDb SDK the client uses
type API interface {
	GetMovieInfo(id int, options map[string]string) (*tmdb.Movie, error)
	GetTvInfo(id int, options map[string]string) (*tmdb.TV, error)
}

// Details are the TMDb facts used for title and year expansion
type Details struct {
	Title         string
	OriginalTitle string
	Year          int
	Collection    string
	ReleaseDate   time.Time
	IMDbID        string
}

// Client fetches movie and show details from TMDb
type Client struct {
	api     API
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewClient creates a TMDb client, nil when no API key is configured
func NewClient(apiKey string, logger *logrus.Logger) *Client {
	if apiKey == "" {
		return nil
	}
	return NewClientWithAPI(tmdb.Init(tmdb.Config{APIKey: apiKey}), logger)
}

// NewClientWithAPI creates a client over an existing SDK instance
func NewClientWithAPI(api API, logger *logrus.Logger) *Client {
	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
		logger:  logger,
	}
}

// Movie returns the details of a movie by TMDb id. Titles are requested in
// English regardless of the user locale.
func (c *Client) Movie(ctx context.Context, id string) (*Details, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("invalid tmdb id %q: %w", id, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	movie, err := c.api.GetMovieInfo(n, map[string]string{"language": "en-US"})
	if err != nil {
		return nil, fmt.Errorf("failed to get tmdb movie %d: %w", n, err)
	}

	details := &Details{
		Title:         movie.Title,
		OriginalTitle: movie.OriginalTitle,
		Collection:    movie.BelongsToCollection.Name,
		IMDbID:        movie.ImdbID,
	}
	details.ReleaseDate, details.Year = parseDate(movie.ReleaseDate)
	return details, nil
}

// Show returns the details of a show by TMDb id
func (c *Client) Show(ctx context.Context, id string) (*Details, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("invalid tmdb id %q: %w", id, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	show, err := c.api.GetTvInfo(n, map[string]string{"language": "en-US"})
	if err != nil {
		return nil, fmt.Errorf("failed to get tmdb show %d: %w", n, err)
	}

	details := &Details{
		Title:         show.Name,
		OriginalTitle: show.OriginalName,
	}
	details.ReleaseDate, details.Year = parseDate(show.FirstAirDate)
	return details, nil
}

func parseDate(value string) (time.Time, int) {
	date, err := time.Parse("2006-01-02", value)
	if err != nil {
		if len(value) >= 4 {
			year, _ := strconv.Atoi(value[:4])
			return time.Time{}, year
		}
		return time.Time{}, 0
	}
	return date, date.Year()
}
