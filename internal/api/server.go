package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/api/handlers"
	"github.com/amaumene/streamarr/internal/api/middleware"
	"github.com/amaumene/streamarr/internal/config"
)

// Scraper is the scrape surface served over HTTP
type Scraper interface {
	handlers.Scraper
	handlers.ActivitySource
}

// Meta is the metadata cache surface served over HTTP
type Meta interface {
	handlers.MetaStore
	handlers.MemoSource
}

// Server represents the HTTP server
type Server struct {
	app    *fiber.App
	addr   string
	logger *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, scraper Scraper, meta Meta, stats handlers.StatsSource, logger *logrus.Logger) *Server {
	s := &Server{
		addr:   ":" + cfg.ServerPort,
		logger: logger,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "streamarr",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		// Scrapes answer once the session finished
		WriteTimeout: cfg.ScrapeTimeLimit + 5*time.Minute,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: errorHandler,
	})
	s.app.Use(middleware.Logging(logger))
	s.setupRoutes(scraper, meta, stats)
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(scraper Scraper, meta Meta, stats handlers.StatsSource) {
	s.app.Get("/health", handlers.NewHealthHandler(s.logger).Handle)
	s.app.Get("/status", handlers.NewStatusHandler(stats, meta, scraper, s.logger).Handle)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")
	api.Post("/scrape", handlers.NewScrapeHandler(scraper, s.logger).Handle)

	metaHandler := handlers.NewMetaHandler(meta, s.logger)
	api.Get("/meta/:kind", metaHandler.Select)
	api.Delete("/meta/:kind", metaHandler.Delete)
}

// errorHandler answers every error as JSON
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// App returns the underlying fiber application
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the HTTP server and blocks until ctx is done
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(s.addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(shutdownCtx)
}
