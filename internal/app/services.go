package app

import (
	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/api"
	"github.com/amaumene/streamarr/internal/config"
	"github.com/amaumene/streamarr/internal/controllers"
	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/metadata"
	"github.com/amaumene/streamarr/internal/providers"
	"github.com/amaumene/streamarr/internal/scheduler"
	"github.com/amaumene/streamarr/internal/scraper"
)

// Services is the process-wide container every command works from
type Services struct {
	Config    *config.Config
	Logger    *logrus.Logger
	MetaCache *metacache.MetaCache
	Metadata  *metadata.Service
	Registry  *providers.Registry
	Cache     *providers.Cache
	Scraper   *scraper.Scraper
	Cleanup   *controllers.CleanupController
	Scheduler *scheduler.Scheduler
	Server    *api.Server
}
