package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/scraper"
)

// Scraper runs one scrape session
type Scraper interface {
	Scrape(ctx context.Context, req scraper.Request, handler scraper.Handler) (*scraper.Result, error)
}

// ScrapeHandler handles scrape requests
type ScrapeHandler struct {
	scraper Scraper
	logger  *logrus.Logger
}

// NewScrapeHandler creates a new scrape handler
func NewScrapeHandler(s Scraper, logger *logrus.Logger) *ScrapeHandler {
	return &ScrapeHandler{scraper: s, logger: logger}
}

// ScrapeRequest is the body of POST /api/scrape
type ScrapeRequest struct {
	Kind      models.Kind `json:"kind"`
	Title     string      `json:"title"`
	ShowTitle string      `json:"show_title"`
	Year      int         `json:"year"`
	IDs       models.IDs  `json:"ids"`
	Season    *int        `json:"season"`
	Episode   *int        `json:"episode"`
	Number    *int        `json:"number"`
	Pack      bool        `json:"pack"`
	Preset    string      `json:"preset"`
	Exact     bool        `json:"exact"`
	Binge     bool        `json:"binge"`
	Cache     bool        `json:"cache"`
}

// ScrapeResponse is the outcome of a scrape
type ScrapeResponse struct {
	State      scraper.State    `json:"state"`
	Reason     string           `json:"reason,omitempty"`
	Error      string           `json:"error,omitempty"`
	Streams    []*models.Stream `json:"streams"`
	Excluded   []*models.Stream `json:"excluded,omitempty"`
	Providers  int              `json:"providers"`
	Finished   int              `json:"finished"`
	Cached     int              `json:"cached"`
	Failures   int              `json:"failures"`
	DurationMS int64            `json:"duration_ms"`
}

// Handle runs a scrape and answers once it finished
func (h *ScrapeHandler) Handle(c *fiber.Ctx) error {
	var body ScrapeRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.scraper.Scrape(c.UserContext(), scraper.Request{
		Kind:      body.Kind,
		Title:     body.Title,
		ShowTitle: body.ShowTitle,
		Year:      body.Year,
		IDs:       body.IDs,
		Season:    body.Season,
		Episode:   body.Episode,
		Number:    body.Number,
		Pack:      body.Pack,
		Preset:    body.Preset,
		Exact:     body.Exact,
		Binge:     body.Binge,
		Cache:     body.Cache,
		Process:   true,
	}, nil)
	if err != nil {
		h.logger.WithError(err).WithField("kind", body.Kind).Warn("Rejected scrape request")
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	response := ScrapeResponse{
		State:      result.State,
		Reason:     result.Reason,
		Streams:    result.Streams,
		Excluded:   result.Excluded,
		Providers:  result.Providers,
		Finished:   result.Finished,
		Cached:     result.Cached,
		Failures:   result.Failures,
		DurationMS: result.Duration.Milliseconds(),
	}
	if response.Streams == nil {
		response.Streams = []*models.Stream{}
	}
	if result.Err != nil {
		response.Error = result.Err.Error()
	}
	if errors.Is(result.Err, scraper.ErrCancelled) {
		return c.Status(fiber.StatusAccepted).JSON(response)
	}
	return c.JSON(response)
}
