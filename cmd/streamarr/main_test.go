package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"scrape"},
		{"meta", "clean"},
		{"meta", "delete"},
		{"meta", "import"},
		{"meta", "external-generate"},
		{"providers", "stats"},
		{"providers", "reset"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestScrapeFlags(t *testing.T) {
	flags := scrapeCmd.Flags()
	for _, name := range []string{"kind", "title", "show-title", "year", "imdb", "season", "episode", "preset", "cache"} {
		assert.NotNil(t, flags.Lookup(name), name)
	}
	assert.Equal(t, "movie", flags.Lookup("kind").DefValue)
}
