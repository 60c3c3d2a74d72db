// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path, overlays environment variables
// and resolves relative filesystem paths against the config file's directory.
// An empty path yields the defaults (resolved against the working directory).
func Load(path string) (RunConfig, error) {
	cfg := Default()

	baseDir := "."
	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
		if err != nil {
			return RunConfig{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, raw, &cfg); err != nil {
			return RunConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return RunConfig{}, fmt.Errorf("resolve config path: %w", err)
		}
		baseDir = filepath.Dir(abs)
	}

	applyEnv(&cfg)
	resolvePaths(&cfg, baseDir)

	if err := Validate(cfg); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// decode picks the decoder by file extension. JSON is the documented format;
// YAML is accepted with the same keys.
func decode(path string, raw []byte, cfg *RunConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(raw, cfg)
	default:
		return json.Unmarshal(raw, cfg)
	}
}

// resolvePaths anchors relative filesystem paths at baseDir. Absolute paths
// are kept unchanged.
func resolvePaths(cfg *RunConfig, baseDir string) {
	cfg.DataDir = resolveOne(baseDir, cfg.DataDir)
	cfg.DBPath = resolveOne(baseDir, cfg.DBPath)
	cfg.Enhancement.PythonBin = resolveBin(baseDir, cfg.Enhancement.PythonBin)
	cfg.Enhancement.DeepFilterBin = resolveBin(baseDir, cfg.Enhancement.DeepFilterBin)
	cfg.Enhancement.AnalyzeScript = resolveOne(baseDir, cfg.Enhancement.AnalyzeScript)
	cfg.Enhancement.ProcessScript = resolveOne(baseDir, cfg.Enhancement.ProcessScript)
	if cfg.Enhancement.PlanInDir != "" {
		cfg.Enhancement.PlanInDir = resolveOne(baseDir, cfg.Enhancement.PlanInDir)
	}
	if cfg.Enhancement.PlanOutDir != "" {
		cfg.Enhancement.PlanOutDir = resolveOne(baseDir, cfg.Enhancement.PlanOutDir)
	}
}

func resolveOne(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// resolveBin keeps bare command names for PATH lookup and only anchors
// paths that contain a separator.
func resolveBin(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || !strings.ContainsRune(p, filepath.Separator) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func joinData(dataDir, sub string) string {
	return filepath.Join(dataDir, sub)
}
