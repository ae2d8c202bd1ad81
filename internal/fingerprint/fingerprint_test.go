package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amaumene/streamarr/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		LanguagePrimary: "en",
		Country:         "us",
		DetailLevel:     "standard",
		Images:          config.ImageSelection{Style: "poster"},
		RatingSource:    "imdb",
	}
}

func TestComputeIsSHA256OfJoinedContributors(t *testing.T) {
	cfg := baseConfig()
	sum := sha256.Sum256([]byte("en___us_standard_poster__false_0_0_0_0_0"))
	assert.Equal(t, hex.EncodeToString(sum[:]), Compute(cfg))
}

func TestComputeIgnoresRatings(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.RatingSource = "tmdb"
	assert.Equal(t, Compute(a), Compute(b))
}

func TestComputeChangesWithContributors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"primary language", func(c *config.Config) { c.LanguagePrimary = "de" }},
		{"secondary language", func(c *config.Config) { c.LanguageSecondary = "fr" }},
		{"country", func(c *config.Config) { c.Country = "gb" }},
		{"detail level", func(c *config.Config) { c.DetailLevel = "extended" }},
		{"image style", func(c *config.Config) { c.Images.Style = "fanart" }},
		{"tmdb key presence", func(c *config.Config) { c.TMDbAPIKey = "secret" }},
	}

	base := Compute(baseConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.modify(cfg)
			assert.NotEqual(t, base, Compute(cfg))
		})
	}
}

func TestComputeIgnoresKeyValues(t *testing.T) {
	a := baseConfig()
	a.TMDbAPIKey = "one"
	b := baseConfig()
	b.TMDbAPIKey = "two"
	assert.Equal(t, Compute(a), Compute(b))
}

func TestFingerprinterReset(t *testing.T) {
	cfg := baseConfig()
	f := New(cfg)
	first := f.Get()

	cfg.LanguagePrimary = "nl"
	assert.Equal(t, first, f.Get(), "cached until reset")

	f.Reset()
	assert.NotEqual(t, first, f.Get())
}
