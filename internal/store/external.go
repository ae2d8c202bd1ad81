package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/models"
)

// ExternalGenerate rewrites the primary store at input into a read-only
// external store at output: time, settings and idSlug are dropped, rows are
// recompressed with LZMA and indices rebuilt. When several settings variants
// of one entity exist, the newest wins.
func ExternalGenerate(ctx context.Context, input, output string, logger *logrus.Logger) error {
	source, err := Open(input, Options{Schema: Primary, ReadOnly: true}, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove previous output: %w", err)
	}
	target, err := Open(output, Options{Schema: External, Codec: LZMACodec{}}, logger)
	if err != nil {
		return err
	}
	defer target.Close()

	for _, kind := range models.Kinds {
		rows, err := source.Select(ctx, kind, All())
		if err != nil {
			return err
		}

		kept := rows[:0]
		for _, row := range rows {
			if row.Data != nil {
				kept = append(kept, row)
			}
		}
		if err := target.Insert(ctx, kind, kept); err != nil {
			return err
		}

		logger.WithFields(logrus.Fields{
			"kind":    kind,
			"rows":    len(kept),
			"skipped": len(rows) - len(kept),
		}).Info("Generated external table")
	}

	return target.Compact(ctx)
}

// DetectSchema inspects the movie table of the store at path
func DetectSchema(ctx context.Context, path string) (Schema, error) {
	if _, err := os.Stat(path); err != nil {
		return Primary, fmt.Errorf("failed to open %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Primary, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer db.Close()

	cols, err := tableColumns(ctx, db, models.KindMovie)
	if err != nil {
		return Primary, err
	}
	if len(cols) == 0 {
		return Primary, fmt.Errorf("%s has no %s table", path, models.KindMovie)
	}
	if slices.Contains(cols, colSettings) {
		return Primary, nil
	}
	return External, nil
}
