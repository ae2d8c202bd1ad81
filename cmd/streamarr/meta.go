package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/amaumene/streamarr/internal/models"
)

var metaCmd = &cobra.Command{
	Use:   "meta",
	Short: "Maintain the metadata cache",
}

var metaCleanBefore time.Duration

var metaCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove metadata rows older than --before",
	RunE: func(cmd *cobra.Command, args []string) error {
		if metaCleanBefore <= 0 {
			return fmt.Errorf("--before must be positive")
		}
		services, cleanup, err := loadServices()
		if err != nil {
			return err
		}
		defer cleanup()

		removed, err := services.MetaCache.Clean(context.Background(), time.Now().Add(-metaCleanBefore).Unix())
		if err != nil {
			return err
		}
		if err := services.MetaCache.Compact(context.Background()); err != nil {
			return err
		}
		fmt.Printf("Removed %d rows\n", removed)
		return nil
	},
}

var metaDeleteSettings string

var metaDeleteCmd = &cobra.Command{
	Use:   "delete <kind>",
	Short: "Remove every row of a kind written under --settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := models.Kind(args[0])
		if !kind.Valid() {
			return fmt.Errorf("unknown kind %q", args[0])
		}
		services, cleanup, err := loadServices()
		if err != nil {
			return err
		}
		defer cleanup()

		removed, err := services.MetaCache.Delete(context.Background(), kind, metaDeleteSettings)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d rows\n", removed)
		return nil
	},
}

var metaImportKinds []string

var metaImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import a metadata store, or attach an external one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var kinds []models.Kind
		for _, name := range metaImportKinds {
			kind := models.Kind(name)
			if !kind.Valid() {
				return fmt.Errorf("unknown kind %q", name)
			}
			kinds = append(kinds, kind)
		}
		services, cleanup, err := loadServices()
		if err != nil {
			return err
		}
		defer cleanup()

		imported, err := services.MetaCache.Import(context.Background(), args[0], kinds)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d rows\n", imported)
		return nil
	},
}

var metaExternalInput string

var metaExternalCmd = &cobra.Command{
	Use:   "external-generate <output>",
	Short: "Write the read-only external variant of a metadata store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, cleanup, err := loadServices()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := services.MetaCache.ExternalGenerate(context.Background(), metaExternalInput, args[0]); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", args[0])
		return nil
	},
}

func init() {
	metaCleanCmd.Flags().DurationVar(&metaCleanBefore, "before", 0, "Remove rows written longer ago than this")
	metaDeleteCmd.Flags().StringVar(&metaDeleteSettings, "settings", "", "Settings fingerprint of the rows to remove")
	_ = metaDeleteCmd.MarkFlagRequired("settings")
	metaImportCmd.Flags().StringSliceVar(&metaImportKinds, "kinds", nil, "Kinds to import, all when empty")
	metaExternalCmd.Flags().StringVar(&metaExternalInput, "input", "", "Store to convert, the metadata store when empty")

	metaCmd.AddCommand(metaCleanCmd, metaDeleteCmd, metaImportCmd, metaExternalCmd)
}
