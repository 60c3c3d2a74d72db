// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ErrInvalid marks configuration validation failures. Fatal on startup.
var ErrInvalid = errors.New("invalid config")

// Validate checks enum membership, numeric ranges and required fields.
func Validate(cfg RunConfig) error {
	var problems []string

	requireNonEmpty := func(field, v string) {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, field+" must not be empty")
		}
	}
	requireOneOf := func(field, v string, set []string) {
		if !slices.Contains(set, v) {
			problems = append(problems, fmt.Sprintf("%s must be one of %v, got %q", field, set, v))
		}
	}
	requireFinite := func(field string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			problems = append(problems, field+" must be finite")
		}
	}

	requireNonEmpty("dataDir", cfg.DataDir)
	requireNonEmpty("dbPath", cfg.DBPath)
	requireNonEmpty("modelPath", cfg.ModelPath)
	requireOneOf("engine", cfg.Engine, Engines)
	requireOneOf("whisperxComputeType", cfg.WhisperXComputeType, ComputeTypes)

	if cfg.Jobs < 1 {
		problems = append(problems, "jobs must be >= 1")
	}
	if cfg.WhisperXBatchSize < 1 {
		problems = append(problems, "whisperxBatchSize must be >= 1")
	}
	if len(cfg.OutputFormats) == 0 {
		problems = append(problems, "outputFormats must not be empty")
	}
	for _, f := range cfg.OutputFormats {
		if !slices.Contains(OutputFormats, f) {
			problems = append(problems, fmt.Sprintf("outputFormats contains unknown format %q", f))
		}
	}

	e := cfg.Enhancement
	requireOneOf("enhancement.mode", e.Mode, EnhancementModes)
	requireOneOf("enhancement.sourceClass", e.SourceClass, SourceClasses)
	requireOneOf("enhancement.dereverbMode", e.DereverbMode, DereverbModes)
	requireOneOf("enhancement.failPolicy", e.FailPolicy, FailPolicies)
	if e.VadThreshold < 0 || e.VadThreshold > 1 {
		problems = append(problems, "enhancement.vadThreshold must be within [0,1]")
	}
	if e.MinSilenceMs < 0 {
		problems = append(problems, "enhancement.minSilenceMs must be >= 0")
	}
	if e.MaxRegimes < 1 {
		problems = append(problems, "enhancement.maxRegimes must be >= 1")
	}
	requireFinite("enhancement.attenLimDb", e.AttenLimDb)
	requireFinite("enhancement.snrSkipThresholdDb", e.SnrSkipThresholdDb)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// NormalizeOutputFormats lowercases, trims and deduplicates a format list,
// preserving first-seen order.
func NormalizeOutputFormats(formats []string) []string {
	seen := make(map[string]struct{}, len(formats))
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
