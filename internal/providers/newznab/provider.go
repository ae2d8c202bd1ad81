package newznab

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/config"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
	"github.com/amaumene/streamarr/internal/utils"
)

// Converter turns a feed item into a stream, nil to drop it
type Converter func(item Item, req *providers.Request) *models.Stream

// Provider searches one Newznab-compatible indexer
type Provider struct {
	id      string
	info    providers.Info
	client  *Client
	convert Converter
	logger  *logrus.Logger

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	next    int
}

var searchKinds = []models.Kind{models.KindMovie, models.KindShow, models.KindSeason, models.KindEpisode, models.KindPack}

// New creates a usenet provider for a Newznab indexer
func New(indexer config.Indexer, logger *logrus.Logger) (*Provider, error) {
	return NewProvider("newznab", indexer, ConvertUsenet, logger)
}

// NewProvider creates a provider for an indexer speaking the Newznab API.
// prefix namespaces the provider id.
func NewProvider(prefix string, indexer config.Indexer, convert Converter, logger *logrus.Logger) (*Provider, error) {
	name := indexer.Name
	if name == "" {
		name = hostName(indexer.URL)
	}
	id := prefix + ":" + strings.ToLower(name)

	info := providers.Info{
		Name:    name,
		Tier:    indexer.Tier,
		Kinds:   searchKinds,
		Retries: 2,
	}
	client, err := NewClient(id, indexer.URL, indexer.Key, info.Retries, logger)
	if err != nil {
		return nil, err
	}
	return &Provider{
		id:      id,
		info:    info,
		client:  client,
		convert: convert,
		logger:  logger,
		cancels: make(map[int]context.CancelFunc),
	}, nil
}

func hostName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Hostname()
}

// ID returns the provider id
func (p *Provider) ID() string {
	return p.id
}

// Info describes the provider
func (p *Provider) Info() providers.Info {
	return p.info
}

// Scrape runs every planned query and hands matching releases to sink.
// Failed queries are skipped; the error of the last one is returned when
// nothing was found.
func (p *Provider) Scrape(ctx context.Context, req *providers.Request, sink providers.Sink) error {
	ctx, done := p.track(ctx)
	defer done()

	seen := make(map[string]bool)
	found := 0
	var lastErr error

	for _, params := range Queries(req) {
		for page := 0; page < max(req.PageLimit, 1); page++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			paged := cloneValues(params)
			paged.Set("limit", strconv.Itoa(pageSize))
			if page > 0 {
				paged.Set("offset", strconv.Itoa(page*pageSize))
			}

			items, err := p.client.Search(ctx, paged)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				lastErr = err
				p.logger.WithError(err).WithField("provider", p.id).Debug("Indexer query failed")
				break
			}

			for _, item := range items {
				stream := p.convert(item, req)
				if stream == nil || seen[stream.Link] {
					continue
				}
				seen[stream.Link] = true
				stream.Provider = p.id
				stream.IDs = req.IDs
				found++
				sink(stream)
			}
			if len(items) < pageSize {
				break
			}
		}
	}

	if found == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// Resolve returns the link unchanged; indexer links are direct downloads
func (p *Provider) Resolve(ctx context.Context, link string) (string, error) {
	return link, nil
}

// Stop cancels every running search
func (p *Provider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cancel := range p.cancels {
		cancel()
	}
}

func (p *Provider) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	key := p.next
	p.next++
	p.cancels[key] = cancel
	p.mu.Unlock()

	return ctx, func() {
		p.mu.Lock()
		delete(p.cancels, key)
		p.mu.Unlock()
		cancel()
	}
}

func cloneValues(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for key, list := range values {
		out[key] = append([]string(nil), list...)
	}
	return out
}

// ConvertUsenet converts a Newznab item into a usenet stream
func ConvertUsenet(item Item, req *providers.Request) *models.Stream {
	link := item.DownloadURL()
	if link == "" || item.Title == "" {
		return nil
	}
	season, episode, pack := ParseSeasonEpisode(item.Title)
	if !Matches(req, season, episode, pack) {
		return nil
	}
	return &models.Stream{
		Link:    link,
		Source:  models.SourceUsenet,
		Name:    item.Title,
		Size:    item.ContentLength(),
		Quality: utils.DetermineQuality(item.Title),
		Host:    hostName(link),
		Season:  season,
		Episode: episode,
		Pack:    pack,
	}
}
