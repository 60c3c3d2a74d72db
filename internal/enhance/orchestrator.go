// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package enhance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/renameio/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuGH/minbar/internal/config"
	"github.com/ManuGH/minbar/internal/execx"
	"github.com/ManuGH/minbar/internal/log"
)

// ErrEnhancementFailed marks helper CLI failures, carrying the output tail.
var ErrEnhancementFailed = errors.New("enhancement failed")

var runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "minbar_enhancement_runs_total",
	Help: "Enhancement run outcomes",
}, []string{"status"})

// Skip reasons surfaced in telemetry.
const (
	SkipDisabled    = "enhancement_disabled"
	SkipAnalyzeOnly = "analyze_only_mode"
)

// Orchestrator runs the enhancement sub-pipeline for single videos.
type Orchestrator struct {
	cfg config.EnhancementConfig
}

// New returns an orchestrator bound to an immutable enhancement config.
func New(cfg config.EnhancementConfig) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Run executes the enhancement algorithm for one video. rawWav is the
// transcoded 16 kHz WAV; workDir is the per-video working directory.
func (o *Orchestrator) Run(ctx context.Context, videoID, rawWav, workDir string) (*Outcome, error) {
	out := &Outcome{
		WavPath:   rawWav,
		Mode:      o.cfg.Mode,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	finish := func(status string) *Outcome {
		out.FinishedAt = time.Now().UTC().Format(time.RFC3339)
		runsTotal.WithLabelValues(status).Inc()
		return out
	}

	if o.cfg.Mode == config.EnhanceOff {
		out.SkipReason = SkipDisabled
		return finish("skipped"), nil
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	analysis, analysisPath, err := o.resolveAnalysis(ctx, videoID, rawWav, workDir)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	out.Analysis = analysis
	out.Artifacts = append(out.Artifacts, Artifact{Kind: KindAnalysisJSON, Path: analysisPath})

	if o.cfg.PlanOutDir != "" {
		planPath := filepath.Join(o.cfg.PlanOutDir, videoID+".json")
		if err := writeJSONAtomic(planPath, analysis); err != nil {
			runsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("write plan: %w", err)
		}
		out.Artifacts = append(out.Artifacts, Artifact{Kind: KindPlanJSON, Path: planPath})
	}

	if o.cfg.Mode == config.EnhanceAnalyzeOnly {
		out.SkipReason = SkipAnalyzeOnly
		return finish("skipped"), nil
	}

	// SNR gate: in auto mode a clean recording skips processing entirely.
	if o.cfg.Mode == config.EnhanceAuto && analysis.SnrDb != nil &&
		*analysis.SnrDb >= o.cfg.SnrSkipThresholdDb {
		out.SkipReason = fmt.Sprintf("snr_above_threshold (%.1f >= %g)",
			*analysis.SnrDb, o.cfg.SnrSkipThresholdDb)
		return finish("skipped"), nil
	}

	o.applyOverrides(analysis)
	if err := writeJSONAtomic(analysisPath, analysis); err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("rewrite analysis: %w", err)
	}

	enhancedWav := filepath.Join(workDir, "enhanced.wav")
	resultPath := filepath.Join(workDir, "result.json")
	result, err := o.process(ctx, rawWav, analysisPath, enhancedWav, resultPath)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	out.Result = result
	out.WavPath = enhancedWav
	out.Applied = true
	out.Artifacts = append(out.Artifacts,
		Artifact{Kind: KindEnhancedWav, Path: enhancedWav},
		Artifact{Kind: KindResultJSON, Path: resultPath})
	return finish("completed"), nil
}

// resolveAnalysis loads a pre-computed plan when available, otherwise runs
// the analyzer CLI.
func (o *Orchestrator) resolveAnalysis(ctx context.Context, videoID, rawWav, workDir string) (*Analysis, string, error) {
	analysisPath := filepath.Join(workDir, "analysis.json")

	if o.cfg.PlanInDir != "" {
		planPath := filepath.Join(o.cfg.PlanInDir, videoID+".json")
		if raw, err := os.ReadFile(planPath); err == nil { // #nosec G304 -- plan dir from config
			var analysis Analysis
			if err := json.Unmarshal(raw, &analysis); err != nil {
				return nil, "", fmt.Errorf("%w: parse plan %s: %v", ErrEnhancementFailed, planPath, err)
			}
			if err := writeJSONAtomic(analysisPath, &analysis); err != nil {
				return nil, "", fmt.Errorf("copy plan into work dir: %w", err)
			}
			logger := log.WithComponentFromContext(ctx, "enhance")
			logger.Debug().
				Str("event", "enhance.plan_loaded").
				Str("path", planPath).
				Msg("loaded pre-computed analysis plan")
			return &analysis, analysisPath, nil
		}
	}

	res, err := execx.Run(ctx, []string{
		o.cfg.PythonBin, o.cfg.AnalyzeScript,
		"--input", rawWav,
		"--output", analysisPath,
		"--vad-threshold", strconv.FormatFloat(o.cfg.VadThreshold, 'f', -1, 64),
		"--min-silence-ms", strconv.Itoa(o.cfg.MinSilenceMs),
		"--max-regimes", strconv.Itoa(o.cfg.MaxRegimes),
	}, execx.Options{Stream: true})
	if err != nil {
		return nil, "", fmt.Errorf("analyze: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, "", fmt.Errorf("%w: analyzer exited %d: %s", ErrEnhancementFailed, res.ExitCode, res.Stderr)
	}

	raw, err := os.ReadFile(analysisPath) // #nosec G304 -- path constructed above
	if err != nil {
		return nil, "", fmt.Errorf("%w: read analysis: %v", ErrEnhancementFailed, err)
	}
	var analysis Analysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, "", fmt.Errorf("%w: parse analysis: %v", ErrEnhancementFailed, err)
	}
	return &analysis, analysisPath, nil
}

// applyOverrides applies the configured attenuation limit to every regime and
// forces dereverb for acoustically hard source classes. Only the analysis
// payload is mutated; the config stays immutable.
func (o *Orchestrator) applyOverrides(analysis *Analysis) {
	forceDereverb := o.cfg.SourceClass == "far-field" || o.cfg.SourceClass == "podium"
	for i := range analysis.Regimes {
		analysis.Regimes[i].Recommended.AttenLimDb = o.cfg.AttenLimDb
		if forceDereverb {
			analysis.Regimes[i].Recommended.Dereverb = true
		}
	}
}

func (o *Orchestrator) process(ctx context.Context, rawWav, analysisPath, enhancedWav, resultPath string) (*ProcessingResult, error) {
	res, err := execx.Run(ctx, []string{
		o.cfg.PythonBin, o.cfg.ProcessScript,
		"--input", rawWav,
		"--analysis", analysisPath,
		"--output", enhancedWav,
		"--result", resultPath,
		"--atten-lim-db", strconv.FormatFloat(o.cfg.AttenLimDb, 'f', -1, 64),
		"--dereverb", o.cfg.DereverbMode,
		"--overlap-ms", strconv.Itoa(o.cfg.OverlapMs),
		"--deep-filter-bin", o.cfg.DeepFilterBin,
	}, execx.Options{Stream: true})
	if err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: processor exited %d: %s", ErrEnhancementFailed, res.ExitCode, res.Stderr)
	}

	raw, err := os.ReadFile(resultPath) // #nosec G304 -- path constructed above
	if err != nil {
		return nil, fmt.Errorf("%w: read result: %v", ErrEnhancementFailed, err)
	}
	var result ProcessingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: parse result: %v", ErrEnhancementFailed, err)
	}
	return &result, nil
}

func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, raw, 0o644)
}
