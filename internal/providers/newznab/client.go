package newznab

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/providers"
)

// Feed represents the XML RSS response of a Newznab or Torznab API
type Feed struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Channel represents the channel element in RSS
type Channel struct {
	Title string `xml:"title"`
	Items []Item `xml:"item"`
}

// Item represents a single search result
type Item struct {
	Title      string      `xml:"title"`
	Link       string      `xml:"link"` // Details page or direct download, depending on the indexer
	GUID       string      `xml:"guid"`
	PubDate    string      `xml:"pubDate"`
	Size       int64       `xml:"size"`
	Enclosure  Enclosure   `xml:"enclosure"` // The actual download URL
	Attributes []Attribute `xml:"attr"`
}

// Enclosure represents the enclosure element containing the download URL
type Enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// Attribute represents a newznab:attr or torznab:attr element
type Attribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Attr returns the value of the named attribute
func (i Item) Attr(name string) string {
	for _, attr := range i.Attributes {
		if attr.Name == name {
			return attr.Value
		}
	}
	return ""
}

// AttrInt returns the named attribute as an integer, nil when absent
func (i Item) AttrInt(name string) *int {
	value, err := strconv.Atoi(i.Attr(name))
	if err != nil {
		return nil
	}
	return &value
}

// ContentLength returns the size of the release from the size attribute, the
// enclosure or the size element
func (i Item) ContentLength() int64 {
	if size, err := strconv.ParseInt(i.Attr("size"), 10, 64); err == nil && size > 0 {
		return size
	}
	if i.Enclosure.Length > 0 {
		return i.Enclosure.Length
	}
	return i.Size
}

// DownloadURL returns the enclosure URL, falling back to the link element
func (i Item) DownloadURL() string {
	if i.Enclosure.URL != "" {
		return i.Enclosure.URL
	}
	return i.Link
}

// Client performs Newznab-style API calls
type Client struct {
	id         string
	baseURL    string
	apiKey     string
	retries    int
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates an API client. id names the indexer in errors and logs.
func NewClient(id, baseURL, apiKey string, retries int, logger *logrus.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%s: URL is required", id)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%s: invalid URL: %w", id, err)
	}
	return &Client{
		id:      id,
		baseURL: baseURL,
		apiKey:  apiKey,
		retries: retries,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// Search calls the API with params, retrying transient failures
func (c *Client) Search(ctx context.Context, params url.Values) ([]Item, error) {
	apiURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, providers.NewError(c.id, providers.ErrorHard, fmt.Errorf("invalid URL: %w", err))
	}
	if apiURL.Path == "" || apiURL.Path == "/" {
		apiURL.Path = "/api"
	}
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	apiURL.RawQuery = params.Encode()
	finalURL := apiURL.String()

	c.logger.WithFields(logrus.Fields{
		"indexer": c.id,
		"type":    params.Get("t"),
		"query":   params.Get("q"),
		"imdb":    params.Get("imdbid"),
		"season":  params.Get("season"),
		"episode": params.Get("ep"),
	}).Debug("Performing indexer search")

	var items []Item
	operation := func() error {
		var err error
		items, err = c.fetch(ctx, finalURL)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || providers.Classify(err) != providers.ErrorTransient {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(max(c.retries, 0))), ctx)
	err = backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"indexer": c.id,
			"wait":    wait,
		}).Debug("Retrying indexer search")
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"indexer": c.id,
		"count":   len(items),
	}).Debug("Indexer search completed")
	return items, nil
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

func (c *Client) fetch(ctx context.Context, finalURL string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, providers.NewError(c.id, providers.ErrorHard, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", "streamarr/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, providers.NewError(c.id, providers.ErrorTransient, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, providers.StatusError(c.id, resp.StatusCode, string(body))
	}

	var feed Feed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, providers.NewError(c.id, providers.ErrorHard, fmt.Errorf("failed to parse XML response: %w", err))
	}
	return feed.Channel.Items, nil
}
