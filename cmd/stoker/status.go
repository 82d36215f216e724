package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stokerproj/stoker/internal/config"
	"github.com/stokerproj/stoker/internal/monitor"
	"github.com/stokerproj/stoker/internal/render"
	"github.com/stokerproj/stoker/internal/store"
	"github.com/stokerproj/stoker/pkg/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the session table from the last snapshot",
	Long: `Reads the daemon's snapshot file without taking the directory lock and
prints every registered session with its jobs. Read-only: safe to run while
the daemon holds the lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		st := store.NewFileStore(filepath.Join(cfg.Home, store.DefaultFileName))
		snap, err := st.Load(context.Background())
		if err != nil {
			if errors.Is(err, domain.ErrSnapshotNotFound) {
				fmt.Println("no snapshot yet; has the daemon run?")
				return nil
			}
			return err
		}
		if snap.Version != monitor.SnapshotVersion {
			return fmt.Errorf("snapshot is version %d, this build expects %d: %w",
				snap.Version, monitor.SnapshotVersion, domain.ErrVersionMismatch)
		}

		sessions := make(map[string][]domain.Job, len(snap.Sessions))
		for id, rec := range snap.Sessions {
			jobs := make([]domain.Job, 0, len(rec.Jobs))
			for _, j := range rec.Jobs {
				jobs = append(jobs, j)
			}
			domain.SortJobs(jobs)
			sessions[id] = jobs
		}
		fmt.Print(render.SessionTable(sessions))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
