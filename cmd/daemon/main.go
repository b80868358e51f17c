// SPDX-License-Identifier: MIT

// Command daemon runs the separation service: job store, worker pool,
// input-directory watcher and the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/api"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/config"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/health"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/jobs"
	xglog "github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/log"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/separate"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/watch"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "nmfsep",
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Explicit -config wins; otherwise auto-load ${NMFSEP_DATA}/config.yaml
	// when it exists.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(config.ParseString("NMFSEP_DATA", ""))
		if dataDir != "" {
			autoPath := filepath.Join(dataDir, "config.yaml")
			if _, err := os.Stat(autoPath); err == nil {
				effectivePath = autoPath
			}
		}
	}

	loader := config.NewLoader(effectivePath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Str("data_dir", cfg.DataDir).
		Str("input_dir", cfg.InputDir).
		Str("output_dir", cfg.OutputDir).
		Int("workers", cfg.Workers).
		Msg("starting nmfsep daemon")

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "daemon.failed").Msg("daemon exited with error")
	}
	logger.Info().Str(xglog.FieldEvent, "shutdown.complete").Msg("daemon stopped")
}

func run(ctx context.Context, cfg config.AppConfig) error {
	logger := xglog.WithComponent("daemon")

	for _, dir := range []string{cfg.DataDir, cfg.InputDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	store, err := jobs.OpenStore(ctx, filepath.Join(cfg.DataDir, "jobs.db"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Str(xglog.FieldEvent, "store.close_error").Msg("failed to close job store")
		}
	}()

	manager := jobs.NewManager(store, nil, jobs.ManagerConfig{Workers: cfg.Workers})

	hm := health.NewManager(cfg.Version)
	hm.Register(health.NewStoreChecker(store))
	hm.Register(health.NewDirChecker("output_dir", cfg.OutputDir))
	hm.Register(health.NewDirChecker("input_dir", cfg.InputDir))

	server := api.New(cfg, manager, hm)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(ctx) })
	g.Go(func() error { return server.ListenAndServe(ctx) })

	if cfg.Watch {
		watcher, err := watch.New(watch.Config{
			Dir:      cfg.InputDir,
			Debounce: cfg.WatchDebounce,
		}, watch.SubmitterFunc(func(ctx context.Context, path string) error {
			d := cfg.Defaults
			_, err := manager.Submit(ctx, separate.Request{
				InputPath:  path,
				OutputDir:  cfg.OutputDir,
				Model:      d.Model,
				Rank:       d.Rank,
				Iterations: d.Iterations,
				Domain:     d.Domain,
				Algorithm:  d.Algorithm,
				FFTSize:    d.FFTSize,
				HopSize:    d.HopSize,
				Tolerance:  d.Tolerance,
			})
			return err
		}))
		if err != nil {
			return err
		}
		g.Go(func() error { return watcher.Run(ctx) })
	}

	return g.Wait()
}
