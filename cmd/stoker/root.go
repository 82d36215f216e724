package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stoker",
	Short: "stoker schedules DAGs of long-running external jobs",
	Long: `stoker watches a home directory for session bundles, each describing a
dependency graph of externally-executed jobs, and advances them tick by tick
until every job is complete.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "stoker.yaml", "Path to the configuration file")
}
