package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/providers"
)

// CleanupController removes aged rows from the metadata cache and the
// providers-cache and compacts both stores
type CleanupController struct {
	meta        *metacache.MetaCache
	cache       *providers.Cache
	metaAge     time.Duration
	providerAge time.Duration
	now         func() time.Time
	logger      *logrus.Logger
}

// NewCleanupController creates a new cleanup controller. A zero age disables
// the clean of that store.
func NewCleanupController(meta *metacache.MetaCache, cache *providers.Cache, metaAge, providerAge time.Duration, logger *logrus.Logger) *CleanupController {
	return &CleanupController{
		meta:        meta,
		cache:       cache,
		metaAge:     metaAge,
		providerAge: providerAge,
		now:         time.Now,
		logger:      logger,
	}
}

// CleanMetadata removes metadata rows written before the configured age
func (c *CleanupController) CleanMetadata(ctx context.Context) (int64, error) {
	if c.meta == nil || c.metaAge <= 0 {
		c.logger.Debug("Metadata clean disabled")
		return 0, nil
	}
	before := c.now().Add(-c.metaAge).Unix()
	removed, err := c.meta.Clean(ctx, before)
	if err != nil {
		return removed, fmt.Errorf("failed to clean metadata cache: %w", err)
	}
	return removed, nil
}

// CleanProviders removes provider results written before the configured age
func (c *CleanupController) CleanProviders(ctx context.Context) (int64, error) {
	if c.cache == nil || c.providerAge <= 0 {
		c.logger.Debug("Providers-cache clean disabled")
		return 0, nil
	}
	before := c.now().Add(-c.providerAge).Unix()
	removed, err := c.cache.Clean(ctx, before)
	if err != nil {
		return removed, fmt.Errorf("failed to clean providers-cache: %w", err)
	}
	c.logger.WithFields(logrus.Fields{
		"before":  before,
		"removed": removed,
	}).Info("Cleaned providers-cache")
	return removed, nil
}

// Compact reclaims the space of deleted rows in both stores. Both are
// attempted even when the first fails.
func (c *CleanupController) Compact(ctx context.Context) error {
	var errs []error
	if c.meta != nil {
		if err := c.meta.Compact(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to compact metadata cache: %w", err))
		}
	}
	if c.cache != nil {
		if err := c.cache.Compact(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to compact providers-cache: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.logger.Info("Compacted stores")
	return nil
}
