//go:build wireinject

package app

import (
	"github.com/google/wire"

	"github.com/amaumene/streamarr/internal/config"
	"github.com/amaumene/streamarr/internal/fingerprint"
)

// InitializeServices builds the service container from the configuration
func InitializeServices(cfg *config.Config) (*Services, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideDatabase,
		fingerprint.New,
		ProvideMetaCache,
		ProvideProvidersCache,
		ProvideMetadata,
		ProvideRegistry,
		ProvideDebrid,
		ProvideBlacklist,
		ProvideScraper,
		ProvideCleanup,
		ProvideScheduler,
		ProvideServer,
		wire.Struct(new(Services), "*"),
	)
	return nil, nil, nil
}
