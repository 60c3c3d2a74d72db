// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// minbar is a local-first transcription pipeline: it downloads or ingests
// media, transcodes and optionally enhances the audio, transcribes it and
// serves the results over a searchable HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/minbar/internal/config"
	"github.com/ManuGH/minbar/internal/log"
)

// version is injected at build time.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "serve":
		err = cmdServe(ctx, args[1:])
	case "run":
		err = cmdRun(ctx, args[1:])
	case "search":
		err = cmdSearch(ctx, args[1:])
	case "version", "-v", "--version":
		fmt.Println("minbar", version)
		return 0
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		return 2
	}

	if err != nil {
		logger := log.L()
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			logger.Warn().Str("event", "main.interrupted").Msg("interrupted")
			return 130
		}
		logger.Error().Err(err).Msg("command failed")
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: minbar <command> [flags]

Commands:
  serve    start the HTTP API and job workers
  run      process media files, URLs or playlists once
  search   full-text search over stored transcripts
  version  print the version
`)
}

// loadConfig resolves the config path (flag value, then environment) and
// loads the effective configuration.
func loadConfig(path string) (config.RunConfig, string, error) {
	if path == "" {
		path = config.ConfigPathFromEnv()
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

func configureLogging(cfg config.RunConfig) {
	log.Configure(log.Config{Level: cfg.LogLevel, Version: version})
}
