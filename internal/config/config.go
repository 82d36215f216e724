// Package config loads the daemon's configuration from a YAML file with
// environment-variable overrides, in that order of precedence: defaults,
// file, environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides, mirroring the scratch/archive convention of the
// batch clusters this daemon grew up on.
const (
	EnvHome    = "STOKER_HOME"
	EnvArchive = "STOKER_ARCHIVE"
)

// DefaultArchiveDir is the archive subdirectory name inside home.
const DefaultArchiveDir = "archive"

// QueueConfig describes the batch-queue submission command.
type QueueConfig struct {
	SubmitCmd  string   `yaml:"submit_cmd"`
	SubmitArgs []string `yaml:"submit_args"`
}

// RedisConfig enables the Redis locker when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Config is the daemon's full configuration surface.
type Config struct {
	// Home is the directory scanned for session subdirectories.
	Home string `yaml:"home"`

	// Archive is where completed sessions are moved. Relative paths are
	// resolved under Home.
	Archive string `yaml:"archive"`

	// Backend selects the execution strategy: direct, serial, or queue.
	Backend string `yaml:"backend"`

	// Interval is the pause between daemon iterations.
	Interval time.Duration `yaml:"interval"`

	// LockWait bounds how many poll quanta to wait for the directory lock.
	LockWait int `yaml:"lock_wait"`

	// Listen, when set, serves the status API on this address.
	Listen string `yaml:"listen"`

	Queue QueueConfig `yaml:"queue"`
	Redis RedisConfig `yaml:"redis"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Archive:  DefaultArchiveDir,
		Backend:  "direct",
		Interval: 10 * time.Second,
		LockWait: 12,
	}
}

// Load reads the config file at path, if it exists, and applies environment
// overrides. A missing file is not an error; a missing Home is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if home := os.Getenv(EnvHome); home != "" {
		cfg.Home = home
	}
	if archive := os.Getenv(EnvArchive); archive != "" {
		cfg.Archive = archive
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The daemon chdirs into home while backends keep resolving job paths
	// against it, so a relative home must be pinned before anyone moves.
	home, err := filepath.Abs(cfg.Home)
	if err != nil {
		return nil, fmt.Errorf("resolve home: %w", err)
	}
	cfg.Home = home
	return cfg, nil
}

// Validate checks the fields no default can supply.
func (c *Config) Validate() error {
	if c.Home == "" {
		return fmt.Errorf("no home directory configured (set home: in the config file or %s)", EnvHome)
	}
	switch c.Backend {
	case "direct", "serial", "queue":
	default:
		return fmt.Errorf("unknown backend %q (want direct, serial, or queue)", c.Backend)
	}
	if c.Backend == "queue" && c.Queue.SubmitCmd == "" {
		return fmt.Errorf("backend queue requires queue.submit_cmd")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.LockWait < 1 {
		return fmt.Errorf("lock_wait must be at least 1, got %d", c.LockWait)
	}
	return nil
}
