package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/models"
)

// StatsSource returns the provider statistics
type StatsSource interface {
	Stats() []models.ProviderStat
	Suppressed(id string) bool
}

// MemoSource returns the number of memoized metadata records
type MemoSource interface {
	MemoSize() int
}

// ActivitySource returns the number of running scrape sessions
type ActivitySource interface {
	Active() int
}

// StatusHandler handles status requests
type StatusHandler struct {
	stats    StatsSource
	memo     MemoSource
	activity ActivitySource
	logger   *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(stats StatsSource, memo MemoSource, activity ActivitySource, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		stats:    stats,
		memo:     memo,
		activity: activity,
		logger:   logger,
	}
}

// ProviderStatus is the state of one provider
type ProviderStatus struct {
	models.ProviderStat
	Suppressed bool `json:"suppressed"`
}

// StatusResponse represents the status response
type StatusResponse struct {
	ActiveScrapes int              `json:"active_scrapes"`
	MemoSize      int              `json:"memo_size"`
	Providers     []ProviderStatus `json:"providers"`
}

// Handle serves the status endpoint
func (h *StatusHandler) Handle(c *fiber.Ctx) error {
	response := StatusResponse{
		Providers: []ProviderStatus{},
	}
	if h.activity != nil {
		response.ActiveScrapes = h.activity.Active()
	}
	if h.memo != nil {
		response.MemoSize = h.memo.MemoSize()
	}
	if h.stats != nil {
		for _, stat := range h.stats.Stats() {
			response.Providers = append(response.Providers, ProviderStatus{
				ProviderStat: stat,
				Suppressed:   h.stats.Suppressed(stat.ID),
			})
		}
	}
	return c.JSON(response)
}
