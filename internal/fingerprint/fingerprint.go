package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"

	"github.com/amaumene/streamarr/internal/config"
)

// Contributors returns, in order, every setting that changes the metadata a
// service returns or how it is stored. Rating preferences are applied when a
// document is read and are never part of the list.
//
// Per-service API keys contribute their presence only: a configured key
// decides whether a service adds data to a document, while the key value
// itself does not change what is returned. Hashing the presence keeps rows
// valid across key rotation and keeps secrets out of the stored settings.
func Contributors(cfg *config.Config) []string {
	return []string{
		// Titles, overviews and translations
		cfg.LanguagePrimary,
		cfg.LanguageSecondary,
		cfg.LanguageTertiary,
		// Release dates and certifications
		cfg.Country,
		// Which optional fields are requested
		cfg.DetailLevel,
		// Artwork selection
		cfg.Images.Style,
		cfg.Images.Language,
		strconv.FormatBool(cfg.Images.PreferText),
		// Services that only contribute data when a key is configured
		present(cfg.TMDbAPIKey),
		present(cfg.OMDbAPIKey),
		present(cfg.FanartAPIKey),
		present(cfg.TVDbAPIKey),
		present(cfg.TraktClientID),
	}
}

func present(key string) string {
	if key == "" {
		return "0"
	}
	return "1"
}

// Compute returns the hex SHA-256 of the contributors joined by "_"
func Compute(cfg *config.Config) string {
	sum := sha256.Sum256([]byte(strings.Join(Contributors(cfg), "_")))
	return hex.EncodeToString(sum[:])
}

// Fingerprinter caches the fingerprint of a configuration until Reset
type Fingerprinter struct {
	mu    sync.Mutex
	cfg   *config.Config
	value string
}

// New creates a fingerprinter over cfg
func New(cfg *config.Config) *Fingerprinter {
	return &Fingerprinter{cfg: cfg}
}

// Get returns the cached fingerprint, computing it on first use
func (f *Fingerprinter) Get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.value == "" {
		f.value = Compute(f.cfg)
	}
	return f.value
}

// Reset invalidates the cached fingerprint after a settings change
func (f *Fingerprinter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = ""
}
