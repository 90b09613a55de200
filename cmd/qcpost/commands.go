// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/qcpost/pkg/logging"
	"github.com/AleutianAI/qcpost/services/postprocessing/config"
	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
	"github.com/AleutianAI/qcpost/services/postprocessing/runner"
	"github.com/AleutianAI/qcpost/services/postprocessing/telemetry"
	"github.com/AleutianAI/qcpost/services/postprocessing/trending"
)

const version = "0.1.0"

var (
	configPath string
	taskName   string
	fromMillis int64
	toMillis   int64
	stepMillis int64
	runNumber  int
	serveAddr  string

	rootCmd = &cobra.Command{
		Use:           "qcpost",
		Short:         "Post-processing for quality-control objects",
		Long:          "qcpost trends, compares and aggregates quality-control objects stored in a CCDB-like repository.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the configured post-processing tasks",
		Long: "Runs every task from the configuration file against the object store. " +
			"With --task and a --from/--to window one task is replayed over stored data instead.",
		RunE: runTasks,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the embedded object store over HTTP",
		RunE:  runServe,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the qcpost version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "qcpost", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "configuration file")

	runCmd.Flags().StringVar(&taskName, "task", "", "replay only this task")
	runCmd.Flags().Int64Var(&fromMillis, "from", 0, "replay window start, ms since epoch")
	runCmd.Flags().Int64Var(&toMillis, "to", 0, "replay window end, ms since epoch")
	runCmd.Flags().Int64Var(&stepMillis, "step", 60_000, "replay step, ms")
	runCmd.Flags().IntVar(&runNumber, "run", 0, "run number for the replayed activity")

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")

	rootCmd.AddCommand(runCmd, serveCmd, versionCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Dir:     cfg.Log.Dir,
		Service: "qcpost",
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Slog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, "qcpost", version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.Background())

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := runner.NewRunner(db, log, cfg)
	if err != nil {
		return err
	}
	if sink := trending.NewInfluxSink(cfg.Influx); sink != nil {
		defer sink.Close()
		r.Trends = sink
	}

	if taskName != "" && fromMillis > 0 && toMillis > fromMillis {
		var timestamps []int64
		for ts := fromMillis; ts <= toMillis; ts += stepMillis {
			timestamps = append(timestamps, ts)
		}
		if len(timestamps) < 2 {
			timestamps = append(timestamps, toMillis)
		}
		log.Info("replaying task over stored data",
			"task", taskName, "from", fromMillis, "to", toMillis, "ticks", len(timestamps))
		return r.RunOverTimestamps(ctx, taskName, timestamps, core.NewActivity(runNumber))
	}

	log.Info("starting post-processing runner", "tasks", len(cfg.Tasks))
	return r.Run(ctx)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.Kind != "badger" {
		return fmt.Errorf("serve needs an embedded store, got %q: %w", cfg.Database.Kind, core.ErrConfig)
	}
	logger, err := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Dir:     cfg.Log.Dir,
		Service: "qcpost-serve",
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Slog()

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry, "qcpost-serve", version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.Background())

	store, err := repository.OpenBadger(repository.DefaultBadgerConfig(cfg.Database.Path))
	if err != nil {
		return err
	}
	defer store.Close()

	log.Info("serving object store", "addr", serveAddr, "path", cfg.Database.Path)
	return repository.NewServer(store, log).Run(serveAddr)
}

// openDatabase picks the store backend from the configuration.
func openDatabase(cfg *config.Config) (repository.Database, error) {
	switch cfg.Database.Kind {
	case "badger":
		return repository.OpenBadger(repository.DefaultBadgerConfig(cfg.Database.Path))
	case "http":
		return repository.NewClient(repository.ClientConfig{
			BaseURL:           cfg.Database.URL,
			Timeout:           cfg.Database.Timeout,
			RequestsPerSecond: cfg.Database.RequestsPerSecond,
		}), nil
	default:
		return nil, fmt.Errorf("unknown database kind %q: %w", cfg.Database.Kind, core.ErrConfig)
	}
}
