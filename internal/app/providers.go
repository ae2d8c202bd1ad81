package app

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/api"
	"github.com/amaumene/streamarr/internal/config"
	"github.com/amaumene/streamarr/internal/controllers"
	"github.com/amaumene/streamarr/internal/debrid"
	"github.com/amaumene/streamarr/internal/fingerprint"
	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/metadata"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/providers"
	"github.com/amaumene/streamarr/internal/providers/newznab"
	"github.com/amaumene/streamarr/internal/providers/torznab"
	"github.com/amaumene/streamarr/internal/scheduler"
	"github.com/amaumene/streamarr/internal/scraper"
	"github.com/amaumene/streamarr/internal/services/omdb"
	"github.com/amaumene/streamarr/internal/services/tmdb"
	"github.com/amaumene/streamarr/internal/services/trakt"
	"github.com/amaumene/streamarr/internal/store"
	"github.com/amaumene/streamarr/internal/utils"
)

// ProvideLogger creates the process logger
func ProvideLogger(cfg *config.Config) *logrus.Logger {
	return utils.NewLogger(cfg.LogLevel, cfg.LogFile)
}

// ProvideDatabase opens the provider statistics database
func ProvideDatabase(cfg *config.Config) (*models.Database, func(), error) {
	db, err := models.NewDatabase(cfg.ProviderStatFile)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}

// ProvideMetaCache opens the metadata store and attaches the external store
// when it is enabled and present
func ProvideMetaCache(cfg *config.Config, fp *fingerprint.Fingerprinter, logger *logrus.Logger) (*metacache.MetaCache, func(), error) {
	primary, err := store.Open(cfg.MetadataFile, store.Options{Schema: store.Primary}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	closers := []func() error{primary.Close}

	opts := metacache.Options{}
	if cfg.ExternalEnabled {
		if _, statErr := os.Stat(cfg.ExternalFile); statErr == nil {
			external, err := store.Open(cfg.ExternalFile, store.Options{Schema: store.External, ReadOnly: true}, logger)
			if err != nil {
				logger.WithError(err).Warn("Failed to open external metadata store, continuing without it")
			} else {
				opts.External = external
				closers = append(closers, external.Close)
			}
		}
	}

	cleanup := func() {
		for _, closeStore := range closers {
			if err := closeStore(); err != nil {
				logger.WithError(err).Warn("Failed to close store")
			}
		}
	}
	return metacache.New(primary, fp, opts, logger), cleanup, nil
}

// ProvideProvidersCache opens the providers-cache store
func ProvideProvidersCache(cfg *config.Config, logger *logrus.Logger) (*providers.Cache, func(), error) {
	s, err := store.Open(cfg.ProvidersFile, store.Options{Schema: store.Primary}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open providers-cache: %w", err)
	}
	return providers.NewCache(s, logger), func() { s.Close() }, nil
}

// ProvideMetadata creates the metadata lookup service
func ProvideMetadata(cfg *config.Config, cache *metacache.MetaCache, logger *logrus.Logger) *metadata.Service {
	return metadata.NewService(cache,
		trakt.NewClient(cfg.TraktClientID, logger),
		tmdb.NewClient(cfg.TMDbAPIKey, logger),
		omdb.NewClient(cfg.OMDbAPIKey, logger),
		cfg.Languages(), cfg.Country, logger)
}

// ProvideRegistry creates the provider registry and registers every
// configured indexer
func ProvideRegistry(cfg *config.Config, db *models.Database, logger *logrus.Logger) (*providers.Registry, func(), error) {
	registry, err := providers.NewRegistry(db, providers.Options{
		FailureThreshold: cfg.ProviderFailLimit,
		Cooldown:         cfg.ProviderCooldown,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	register := func(kind string, indexers []config.Indexer, build func(config.Indexer, *logrus.Logger) (*newznab.Provider, error)) {
		for _, indexer := range indexers {
			p, err := build(indexer, logger)
			if err == nil {
				err = registry.Register(p)
			}
			if err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"kind":    kind,
					"indexer": indexer.Name,
				}).Warn("Skipping indexer")
			}
		}
	}
	register("newznab", cfg.Newznab, newznab.New)
	register("torznab", cfg.Torznab, torznab.New)

	logger.WithField("providers", len(registry.Providers())).Info("Provider registry initialized")
	return registry, registry.StopAll, nil
}

// Debrid holds the configured debrid services
type Debrid struct {
	Services   []debrid.Service
	Identifier debrid.Identifier
}

// ProvideDebrid creates the configured debrid services
func ProvideDebrid(cfg *config.Config, logger *logrus.Logger) *Debrid {
	d := &Debrid{}
	if cfg.TorBoxAPIKey == "" {
		return d
	}
	torbox, err := debrid.NewTorBox(cfg.TorBoxAPIKey, logger)
	if err != nil {
		logger.WithError(err).Warn("TorBox disabled")
		return d
	}
	d.Services = append(d.Services, torbox)
	d.Identifier = torbox
	return d
}

// ProvideBlacklist loads the keyword blacklist merged with the configured
// keywords
func ProvideBlacklist(cfg *config.Config, logger *logrus.Logger) *utils.Blacklist {
	blacklist, err := utils.LoadBlacklist(cfg.BlacklistFile, cfg.Keywords...)
	if err != nil {
		logger.WithError(err).Warn("Failed to load blacklist, continuing without it")
		return utils.NewBlacklist(cfg.Keywords...)
	}
	return blacklist
}

// ProvideScraper creates the scrape orchestrator
func ProvideScraper(cfg *config.Config, registry *providers.Registry, meta *metadata.Service, cache *providers.Cache,
	d *Debrid, blacklist *utils.Blacklist, logger *logrus.Logger) *scraper.Scraper {
	return scraper.New(scraper.Deps{
		Config:     cfg,
		Registry:   registry,
		Metadata:   meta,
		Cache:      cache,
		Services:   d.Services,
		Identifier: d.Identifier,
		Keywords:   blacklist,
		Logger:     logger,
	})
}

// ProvideCleanup creates the cache cleanup controller
func ProvideCleanup(cfg *config.Config, meta *metacache.MetaCache, cache *providers.Cache, logger *logrus.Logger) *controllers.CleanupController {
	return controllers.NewCleanupController(meta, cache, cfg.MetaCleanAge, cfg.ProviderCleanAge, logger)
}

// ProvideScheduler creates the maintenance scheduler
func ProvideScheduler(cleanup *controllers.CleanupController, s *scraper.Scraper, logger *logrus.Logger) *scheduler.Scheduler {
	return scheduler.NewScheduler(cleanup, s, logger)
}

// ProvideServer creates the HTTP server
func ProvideServer(cfg *config.Config, s *scraper.Scraper, meta *metacache.MetaCache, registry *providers.Registry, logger *logrus.Logger) *api.Server {
	return api.NewServer(cfg, s, meta, registry, logger)
}
