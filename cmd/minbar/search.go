// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/ManuGH/minbar/internal/store"
)

func cmdSearch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (JSON or YAML)")
	limit := fs.Int("limit", 20, "maximum number of hits")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return errors.New("search requires a query")
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	configureLogging(cfg)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	hits, err := st.SearchSegments(ctx, query, *limit)
	if err != nil {
		return err
	}
	for _, hit := range hits {
		fmt.Printf("%s [%s - %s] %s\n",
			hit.VideoID, formatTimestamp(hit.StartMs), formatTimestamp(hit.EndMs), hit.Text)
	}
	return nil
}

// formatTimestamp renders milliseconds as HH:MM:SS.
func formatTimestamp(ms int64) string {
	totalSeconds := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d",
		totalSeconds/3600, (totalSeconds%3600)/60, totalSeconds%60)
}
