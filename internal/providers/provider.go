package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/amaumene/streamarr/internal/models"
)

var (
	// ErrDuplicate is returned when a provider id is registered twice
	ErrDuplicate = errors.New("provider already registered")
	// ErrSuppressed is returned for providers disabled after repeated failures
	ErrSuppressed = errors.New("provider suppressed")
)

// Info describes a provider to the registry
type Info struct {
	Name             string
	Tier             int // Lower tiers are dispatched first
	Languages        []string
	Kinds            []models.Kind
	FailureThreshold int // Consecutive failures before suppression, 0 uses the registry default
	Retries          int // Attempts on transient network errors
}

// Supports reports whether the provider can search for kind
func (i Info) Supports(kind models.Kind) bool {
	for _, k := range i.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Release holds the release dates of the searched entity in Unix seconds.
// Zero means unknown.
type Release struct {
	Premiere int64
	Digital  int64
	Physical int64
}

// PackInfo describes the season of the searched episode within its pack
type PackInfo struct {
	Seasons  int // Numbered seasons of the show
	Episodes int // Episodes of the searched season, 0 when unknown
	Aired    int // Episodes of the searched season already aired
}

// Complete reports whether every episode of the season aired. Unknown
// seasons count as complete.
func (p PackInfo) Complete() bool {
	return p.Episodes == 0 || p.Aired >= p.Episodes
}

// Request carries everything a provider needs to search for one entity
type Request struct {
	Kind          models.Kind
	IDs           models.IDs
	Titles        []string // Expanded search titles, best first
	EpisodeTitles []string // Spellings of the episode title, episodes only
	Years         []int    // Accepted release years, best first
	Season        *int
	Episode       *int
	Pack          bool // Season and show packs are wanted too
	Exact         bool // Search the first title only, no expansion
	Query         string

	Release  Release
	PackInfo PackInfo

	QueryLimit   int
	PageLimit    int
	RequestLimit int

	Languages    []string
	BlockedHosts []string
}

// Key returns the canonical query string of the request, used to group
// results in the providers-cache
func (r *Request) Key() string {
	if r.Query != "" {
		return r.Query
	}
	var b strings.Builder
	b.WriteString(string(r.Kind))
	if len(r.Titles) > 0 {
		b.WriteString("|" + strings.ToLower(r.Titles[0]))
	}
	if len(r.Years) > 0 {
		b.WriteString("|" + strconv.Itoa(r.Years[0]))
	}
	if r.Season != nil {
		b.WriteString("|s" + strconv.Itoa(*r.Season))
	}
	if r.Episode != nil {
		b.WriteString("|e" + strconv.Itoa(*r.Episode))
	}
	if r.Pack {
		b.WriteString("|pack")
	}
	return b.String()
}

// Sink receives the streams of a provider as they are found
type Sink func(stream *models.Stream)

// Provider is a stream source searched by the scraper
type Provider interface {
	ID() string
	Info() Info
	Scrape(ctx context.Context, req *Request, sink Sink) error
	// Resolve turns a provider link into a playable one
	Resolve(ctx context.Context, link string) (string, error)
	Stop()
}

// ErrorKind classifies provider failures
type ErrorKind string

const (
	ErrorTransient ErrorKind = "transient"
	ErrorQuota     ErrorKind = "quota"
	ErrorHard      ErrorKind = "hard"
)

// ProviderError is a classified provider failure
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s failure: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewError wraps err as a failure of provider
func NewError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// StatusError classifies an HTTP status returned by a provider endpoint
func StatusError(provider string, status int, body string) *ProviderError {
	err := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == 429 || status == 402:
		return NewError(provider, ErrorQuota, err)
	case status >= 500:
		return NewError(provider, ErrorTransient, err)
	default:
		return NewError(provider, ErrorHard, err)
	}
}

// Classify returns the kind of a provider failure. Unclassified network
// errors are transient, everything else is hard.
func Classify(err error) ErrorKind {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTransient
	}
	return ErrorHard
}
