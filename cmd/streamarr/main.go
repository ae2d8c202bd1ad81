package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amaumene/streamarr/internal/app"
	"github.com/amaumene/streamarr/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "streamarr",
	Short: "Metadata cache and stream scraper",
	Long: `streamarr caches movie and show metadata and scrapes stream results from
usenet and torrent indexers, checking them against debrid caches.

Configuration is read from the environment and from a .env file in the
working directory.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, scrapeCmd, metaCmd, providersCmd)
}

// loadServices loads the configuration and builds the service container
func loadServices() (*app.Services, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	services, cleanup, err := app.InitializeServices(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return services, cleanup, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the maintenance scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, cleanup, err := loadServices()
		if err != nil {
			return err
		}
		defer cleanup()
		logger := services.Logger
		logger.Info("Starting streamarr")

		if services.Config.TracingEnabled {
			shutdown := app.SetupTracing(logger)
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.WithError(err).Warn("Failed to shut down tracing")
				}
			}()
		}

		if err := services.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer services.Scheduler.Stop()

		ctx, stop := signalContext()
		defer stop()
		go func() {
			<-ctx.Done()
			// Running scrapes still persist what they found
			services.Scraper.Cancel()
		}()

		logger.Info("streamarr is running")
		if err := services.Server.Start(ctx); err != nil {
			return err
		}
		logger.Info("streamarr stopped")
		return nil
	},
}
