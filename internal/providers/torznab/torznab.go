// Package torznab searches torrent indexers speaking the Torznab API, the
// torrent flavour of Newznab.
package torznab

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/config"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
	"github.com/amaumene/streamarr/internal/providers/newznab"
	"github.com/amaumene/streamarr/internal/utils"
)

// New creates a torrent provider for a Torznab indexer
func New(indexer config.Indexer, logger *logrus.Logger) (*newznab.Provider, error) {
	return newznab.NewProvider("torznab", indexer, Convert, logger)
}

// Convert turns a Torznab item into a torrent stream. The magnet link is
// preferred over the .torrent download.
func Convert(item newznab.Item, req *providers.Request) *models.Stream {
	link := item.Attr("magneturl")
	if link == "" {
		link = item.DownloadURL()
	}
	if link == "" || item.Title == "" {
		return nil
	}

	season, episode, pack := newznab.ParseSeasonEpisode(item.Title)
	if !newznab.Matches(req, season, episode, pack) {
		return nil
	}

	stream := &models.Stream{
		Link:    link,
		Source:  models.SourceTorrent,
		Name:    item.Title,
		Size:    item.ContentLength(),
		Quality: utils.DetermineQuality(item.Title),
		Season:  season,
		Episode: episode,
		Pack:    pack,
	}
	if hash := strings.ToLower(item.Attr("infohash")); hash != "" {
		stream.Hash = hash
	}
	if seeds, err := strconv.Atoi(item.Attr("seeders")); err == nil {
		stream.Seeds = seeds
	}
	return stream
}
