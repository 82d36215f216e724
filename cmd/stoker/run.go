package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/stokerproj/stoker/internal/archive"
	"github.com/stokerproj/stoker/internal/config"
	"github.com/stokerproj/stoker/internal/lock"
	"github.com/stokerproj/stoker/internal/logging"
	"github.com/stokerproj/stoker/internal/monitor"
	"github.com/stokerproj/stoker/internal/statusapi"
	redislock "github.com/stokerproj/stoker/pkg/adapters/redis"
	"github.com/stokerproj/stoker/pkg/backend"
	"github.com/stokerproj/stoker/pkg/ports"
	"github.com/stokerproj/stoker/pkg/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor daemon over the home directory",
	Long: `Acquires the home directory lock, restores the last snapshot, and loops:
discover new sessions, advance the scheduler one tick, persist state, sleep.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		niter, _ := cmd.Flags().GetInt("niter")
		verbose, _ := cmd.Flags().GetBool("verbose")
		once, _ := cmd.Flags().GetBool("until-empty")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("backend") {
			cfg.Backend, _ = cmd.Flags().GetString("backend")
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := logging.New(level)

		sched := scheduler.New(buildBackend(cfg), scheduler.WithLogger(logger))

		registry := prometheus.NewRegistry()
		metrics := monitor.NewMetrics(registry)

		archiver := archive.New(cfg.Home, archivePath(cfg))
		mon, err := monitor.New(cfg.Home, cfg.Archive, sched, buildLocker(cfg),
			monitor.WithLogger(logger),
			monitor.WithLockWait(cfg.LockWait),
			monitor.WithMetrics(metrics),
			monitor.WithCompletionHook(archiver.Move),
		)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Listen != "" {
			srv := &http.Server{
				Addr:    cfg.Listen,
				Handler: statusapi.NewHandler(sched, registry),
			}
			go func() {
				logger.Info("status api listening", "addr", cfg.Listen)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("status api", "err", err)
				}
			}()
			defer srv.Close()
		}

		stopCond := monitor.StopNever
		if once {
			stopCond = monitor.StopNoSession
		}

		logger.Info("daemon starting", "home", cfg.Home, "backend", cfg.Backend, "interval", cfg.Interval)
		return mon.Run(ctx, monitor.RunOptions{
			NIter:    niter,
			Verbose:  verbose,
			StopCond: stopCond,
			Interval: cfg.Interval,
		})
	},
}

// buildBackend maps the configured backend name to a strategy.
func buildBackend(cfg *config.Config) ports.ExecutionBackend {
	switch cfg.Backend {
	case "serial":
		return backend.NewSerial(cfg.Home)
	case "queue":
		return backend.NewQueue(cfg.Home, cfg.Queue.SubmitCmd, cfg.Queue.SubmitArgs...)
	default:
		return backend.NewDirect(cfg.Home)
	}
}

// buildLocker picks the Redis locker when configured, the file lock otherwise.
func buildLocker(cfg *config.Config) ports.Locker {
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return redislock.NewLocker(client, "stoker:")
	}
	return lock.New()
}

func archivePath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Archive) {
		return cfg.Archive
	}
	return filepath.Join(cfg.Home, cfg.Archive)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntP("niter", "n", 0, "Number of iterations to run (0 = forever)")
	runCmd.Flags().BoolP("verbose", "v", false, "Print the session table each tick and log at debug level")
	runCmd.Flags().Bool("until-empty", false, "Exit once no sessions remain registered")
	runCmd.Flags().String("backend", "", "Override the execution backend (direct, serial, queue)")
}
