package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect the registered providers",
}

var providersStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the failure statistics of every provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, cleanup, err := loadServices()
		if err != nil {
			return err
		}
		defer cleanup()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tSUCCESSES\tFAILURES\tCONSECUTIVE\tSUPPRESSED\tLAST ERROR")
		for _, stat := range services.Registry.Stats() {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%t\t%s\n", stat.ID, stat.Successes, stat.Failures,
				stat.Consecutive, services.Registry.Suppressed(stat.ID), stat.LastError)
		}
		return w.Flush()
	},
}

var providersResetCmd = &cobra.Command{
	Use:   "reset <provider>",
	Short: "Clear the statistics of a provider, lifting its suppression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, cleanup, err := loadServices()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := services.Registry.Reset(args[0]); err != nil {
			return err
		}
		fmt.Printf("Reset %s\n", args[0])
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersStatsCmd, providersResetCmd)
}
