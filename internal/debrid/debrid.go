package debrid

import (
	"context"
	"errors"

	"github.com/amaumene/streamarr/internal/models"
)

// ErrUnsupported is returned when a service cannot answer for a source type
var ErrUnsupported = errors.New("debrid: unsupported source type")

// Callback receives one answer of a cache lookup. key is the hash or link
// that was asked for.
type Callback func(key string, cached bool)

// Service is a debrid service able to tell whether streams are cached
type Service interface {
	ID() string
	// Supports reports whether the service can answer for source
	Supports(source models.SourceType) bool
	// ByHash reports whether streams of source are looked up by container
	// hash rather than by link
	ByHash(source models.SourceType) bool
	// Check looks keys up and calls fn once per answered key
	Check(ctx context.Context, source models.SourceType, keys []string, fn Callback) error
}

// Identifier finds the container hash of a link. An empty hash means the
// link cannot be identified for source.
type Identifier interface {
	HashByLink(ctx context.Context, source models.SourceType, link string) (string, error)
}
