package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/models"
)

// MetaStore is the metadata cache surface exposed over HTTP
type MetaStore interface {
	Select(ctx context.Context, kind models.Kind, items []*metacache.Item, opts metacache.SelectOptions) ([]*metacache.Item, error)
	Delete(ctx context.Context, kind models.Kind, settings string) (int64, error)
}

// MetaHandler handles metadata cache requests
type MetaHandler struct {
	meta   MetaStore
	logger *logrus.Logger
}

// NewMetaHandler creates a new metadata handler
func NewMetaHandler(meta MetaStore, logger *logrus.Logger) *MetaHandler {
	return &MetaHandler{meta: meta, logger: logger}
}

func kindParam(c *fiber.Ctx) (models.Kind, error) {
	kind := models.Kind(c.Params("kind"))
	if !kind.Valid() {
		return "", fiber.NewError(fiber.StatusBadRequest, "unknown kind "+strconv.Quote(string(kind)))
	}
	return kind, nil
}

// Select returns the cached entity matching the query ids, annotated with its
// freshness status
func (h *MetaHandler) Select(c *fiber.Ctx) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	item := &metacache.Item{
		IDs: models.IDs{
			IMDb:  c.Query("imdb"),
			TMDb:  c.Query("tmdb"),
			TVDb:  c.Query("tvdb"),
			Trakt: c.Query("trakt"),
			Slug:  c.Query("slug"),
		},
	}
	if value := c.Query("season"); value != "" {
		season, err := strconv.Atoi(value)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid season")
		}
		item.Season = &season
	}
	if item.IDs.Empty() {
		return fiber.NewError(fiber.StatusBadRequest, "at least one id is required")
	}

	items, err := h.meta.Select(c.UserContext(), kind, []*metacache.Item{item}, metacache.SelectOptions{UseMemo: true})
	if err != nil {
		h.logger.WithError(err).WithField("kind", kind).Error("Failed to select metadata")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to select metadata")
	}
	return c.JSON(fiber.Map{
		"ids":      items[0].IDs,
		"status":   items[0].Status,
		"refresh":  items[0].Refresh,
		"time":     items[0].Time,
		"settings": items[0].Settings,
		"part":     items[0].Part,
		"data":     items[0].Data,
	})
}

// Delete removes every row of a kind written under the given settings
func (h *MetaHandler) Delete(c *fiber.Ctx) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	settings := c.Query("settings")
	if settings == "" {
		return fiber.NewError(fiber.StatusBadRequest, "settings is required")
	}

	removed, err := h.meta.Delete(c.UserContext(), kind, settings)
	if err != nil {
		h.logger.WithError(err).WithField("kind", kind).Error("Failed to delete metadata")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to delete metadata")
	}
	h.logger.WithFields(logrus.Fields{
		"kind":    kind,
		"removed": removed,
	}).Info("Deleted metadata rows")
	return c.JSON(fiber.Map{"removed": removed})
}
