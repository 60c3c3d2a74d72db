// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline is the batch engine: it expands inputs, drives download,
// transcode, enhancement and transcription per item, and persists the
// results atomically.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/minbar/internal/config"
	"github.com/ManuGH/minbar/internal/download"
	"github.com/ManuGH/minbar/internal/log"
	"github.com/ManuGH/minbar/internal/store"
)

var itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "minbar_pipeline_items_total",
	Help: "Pipeline item outcomes",
}, []string{"outcome"})

// Engine runs transcription batches against one store and one config.
type Engine struct {
	cfg config.RunConfig
	st  *store.Store
	dl  *download.Client
}

// New returns an engine bound to cfg and st.
func New(cfg config.RunConfig, st *store.Store) *Engine {
	return &Engine{cfg: cfg, st: st, dl: download.NewClient()}
}

// Summary aggregates per-item outcomes of one batch.
type Summary struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Run expands the request and processes every item, fanning out across at
// most cfg.Jobs workers. A failed item never aborts the batch; context
// cancellation does. The returned error is non-nil when any item failed.
func (e *Engine) Run(ctx context.Context, req Request) (*Summary, error) {
	inputs, err := e.ExpandInputs(ctx, req)
	if err != nil {
		return nil, err
	}

	cfg := req.Overrides.Apply(e.cfg)
	logger := log.WithComponentFromContext(ctx, "pipeline")
	logger.Info().
		Str("event", "pipeline.batch_start").
		Int("items", len(inputs)).
		Bool("force", req.Force).
		Msg("starting batch")

	workers := cfg.Jobs
	if workers > len(inputs) {
		workers = len(inputs)
	}
	if workers < 1 {
		workers = 1
	}

	var (
		next    atomic.Int64
		mu      sync.Mutex
		summary Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(next.Add(1)) - 1
				if i >= len(inputs) {
					return nil
				}
				outcome, err := e.processItem(gctx, cfg, inputs[i], req.Force)

				mu.Lock()
				switch {
				case err != nil:
					summary.Failed++
					summary.Errors = append(summary.Errors,
						fmt.Sprintf("%s: %v", inputs[i].URI, err))
					itemsTotal.WithLabelValues("error").Inc()
				case outcome == outcomeSkipped:
					summary.Skipped++
					itemsTotal.WithLabelValues("skipped").Inc()
				default:
					summary.Processed++
					itemsTotal.WithLabelValues("done").Inc()
				}
				mu.Unlock()

				// Cancellation aborts the batch; any other failure moves on.
				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return &summary, err
	}

	logger.Info().
		Str("event", "pipeline.batch_done").
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("batch finished")

	if summary.Failed > 0 {
		return &summary, fmt.Errorf("%d of %d items failed", summary.Failed, len(inputs))
	}
	return &summary, nil
}
