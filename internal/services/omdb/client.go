package omdb

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Digital-Shane/omdb"
	"github.com/sirupsen/logrus"
)

// API is the subset of the OMDb SDK the client uses
type API interface {
	SearchByImdbID(query omdb.QueryData) (any, error)
}

// Details are the IMDb facts OMDb returns
type Details struct {
	Title string
	Year  int
}

// Client looks up IMDb titles and years through OMDb
type Client struct {
	api    API
	logger *logrus.Logger
}

// NewClient creates an OMDb client, nil when no API key is configured
func NewClient(apiKey string, logger *logrus.Logger) *Client {
	if apiKey == "" {
		return nil
	}
	return NewClientWithAPI(omdb.NewClient(apiKey, &http.Client{Timeout: 10 * time.Second}), logger)
}

// NewClientWithAPI creates a client over an existing SDK instance
func NewClientWithAPI(api API, logger *logrus.Logger) *Client {
	return &Client{api: api, logger: logger}
}

// Lookup returns the title and first year of an IMDb id
func (c *Client) Lookup(ctx context.Context, imdbID string) (*Details, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := c.api.SearchByImdbID(omdb.QueryData{ImdbID: imdbID})
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", imdbID, err)
	}

	var title, year string
	switch r := result.(type) {
	case omdb.MovieResult:
		title, year = r.Title, r.Year
	case *omdb.MovieResult:
		title, year = r.Title, r.Year
	case omdb.SeriesResult:
		title, year = r.Title, r.Year
	case *omdb.SeriesResult:
		title, year = r.Title, r.Year
	default:
		return nil, fmt.Errorf("%s not found", imdbID)
	}

	n, _ := strconv.Atoi(omdb.FirstYear(year))
	c.logger.WithFields(logrus.Fields{
		"imdb":  imdbID,
		"title": title,
		"year":  n,
	}).Debug("OMDb lookup")
	return &Details{Title: title, Year: n}, nil
}
