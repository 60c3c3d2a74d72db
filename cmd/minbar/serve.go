// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/ManuGH/minbar/internal/api"
	"github.com/ManuGH/minbar/internal/config"
	"github.com/ManuGH/minbar/internal/jobs"
	"github.com/ManuGH/minbar/internal/log"
	"github.com/ManuGH/minbar/internal/pipeline"
	"github.com/ManuGH/minbar/internal/store"
)

func cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (JSON or YAML)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		path = config.ConfigPathFromEnv()
	}
	manager, err := config.NewManager(path)
	if err != nil {
		return err
	}
	cfg := manager.Current()
	configureLogging(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	go func() {
		if err := manager.Watch(ctx); err != nil {
			logger := log.WithComponent("config")
			logger.Warn().Err(err).Msg("config watcher stopped")
		}
	}()

	// Each job sees the config snapshot current at its start time.
	runner := func(jobCtx context.Context, job jobs.Job) error {
		cur := manager.Current()
		engine := pipeline.New(cur, st)
		req := pipeline.Request{Force: job.Force, Overrides: job.Overrides}
		if job.Kind == pipeline.KindURL {
			req.URLs = []string{job.Input}
		} else {
			req.Paths = []string{job.Input}
		}
		_, err := engine.Run(jobCtx, req)
		return err
	}
	jm := jobs.NewManager(ctx, cfg.JobConcurrency, runner)

	srv := api.NewServer(cfg, st, jm)
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	jm.Wait()
	return ctx.Err()
}
