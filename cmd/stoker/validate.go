package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stokerproj/stoker/pkg/backend"
	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/scheduler"
)

var validateCmd = &cobra.Command{
	Use:   "validate <session-dir>",
	Short: "Check a session bundle without registering it",
	Long: `Decodes the job bundle in the given session directory and runs the same
validation the daemon applies on registration: every dependency edge must
reference a defined job and the graph must be acyclic.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		data, err := os.ReadFile(filepath.Join(dir, domain.DefaultBundleName))
		if err != nil {
			return err
		}
		bundle, err := domain.DecodeBundle(data)
		if err != nil {
			return err
		}
		descriptors, err := bundle.Descriptors()
		if err != nil {
			return err
		}

		// A throwaway scheduler exercises the registration path end to end.
		probe := scheduler.New(backend.NewSerial(dir))
		if err := probe.AddJobs(filepath.Base(dir), descriptors, bundle.Dependencies); err != nil {
			return err
		}

		fmt.Printf("ok: %d jobs, graph acyclic\n", len(descriptors))
		for _, name := range bundle.JobNames() {
			preds := bundle.Dependencies[name]
			if len(preds) == 0 {
				fmt.Printf("  %s (root)\n", name)
			} else {
				fmt.Printf("  %s <- %v\n", name, preds)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
