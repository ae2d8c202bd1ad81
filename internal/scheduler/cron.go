package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/controllers"
)

// Schedules of the maintenance jobs
const (
	MetadataCleanSchedule  = "0 * * * *"
	ProvidersCleanSchedule = "30 3 * * *"
	CompactSchedule        = "0 4 * * 0"
)

// Activity reports the number of running scrape sessions
type Activity interface {
	Active() int
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron        *cron.Cron
	cleanupCtrl *controllers.CleanupController
	activity    Activity
	logger      *logrus.Logger

	// Maintenance jobs never overlap each other
	mu sync.Mutex
}

// NewScheduler creates a new scheduler. activity may be nil when no scrape
// can run in the process.
func NewScheduler(cleanupCtrl *controllers.CleanupController, activity Activity, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		cleanupCtrl: cleanupCtrl,
		activity:    activity,
		logger:      logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	jobs := []struct {
		name     string
		schedule string
		run      func()
	}{
		{"metadata clean", MetadataCleanSchedule, s.runMetadataClean},
		{"providers clean", ProvidersCleanSchedule, s.runProvidersClean},
		{"compact", CompactSchedule, s.runCompact},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.schedule, job.run); err != nil {
			return fmt.Errorf("failed to add %s job: %w", job.name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
}

// busy reports whether a scrape is running. Store maintenance waits for idle
// time.
func (s *Scheduler) busy(job string) bool {
	if s.activity == nil {
		return false
	}
	if active := s.activity.Active(); active > 0 {
		s.logger.WithFields(logrus.Fields{
			"job":    job,
			"active": active,
		}).Info("Skipping maintenance while scraping")
		return true
	}
	return false
}

func (s *Scheduler) runMetadataClean() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy("metadata clean") {
		return
	}
	s.logger.Debug("Running scheduled metadata clean")

	if _, err := s.cleanupCtrl.CleanMetadata(context.Background()); err != nil {
		s.logger.WithError(err).Error("Metadata clean job failed")
	}
}

func (s *Scheduler) runProvidersClean() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy("providers clean") {
		return
	}
	s.logger.Debug("Running scheduled providers-cache clean")

	if _, err := s.cleanupCtrl.CleanProviders(context.Background()); err != nil {
		s.logger.WithError(err).Error("Providers clean job failed")
	}
}

func (s *Scheduler) runCompact() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy("compact") {
		return
	}
	s.logger.Info("Running scheduled compaction")

	if err := s.cleanupCtrl.Compact(context.Background()); err != nil {
		s.logger.WithError(err).Error("Compact job failed")
	} else {
		s.logger.Info("Compact job completed successfully")
	}
}
