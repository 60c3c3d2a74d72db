// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package enhance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/minbar/internal/config"
)

func testEnhancementConfig() config.EnhancementConfig {
	cfg := config.Default().Enhancement
	cfg.Mode = config.EnhanceAuto
	return cfg
}

func writePlan(t *testing.T, dir, videoID string, analysis Analysis) {
	t.Helper()
	raw, err := json.Marshal(analysis)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, videoID+".json"), raw, 0o644))
}

func TestRunModeOffSkips(t *testing.T) {
	cfg := testEnhancementConfig()
	cfg.Mode = config.EnhanceOff

	out, err := New(cfg).Run(context.Background(), "vid1", "/tmp/raw.wav", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, SkipDisabled, out.SkipReason)
	assert.False(t, out.Applied)
	assert.Equal(t, "/tmp/raw.wav", out.WavPath)
}

func TestRunSNRGateSkipsCleanAudio(t *testing.T) {
	planDir := t.TempDir()
	cfg := testEnhancementConfig()
	cfg.PlanInDir = planDir
	cfg.SnrSkipThresholdDb = 15

	snr := 20.0
	writePlan(t, planDir, "vid1", Analysis{Version: "1", SnrDb: &snr})

	out, err := New(cfg).Run(context.Background(), "vid1", "/tmp/raw.wav", t.TempDir())
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, "snr_above_threshold (20.0 >= 15)", out.SkipReason)
	assert.Equal(t, "/tmp/raw.wav", out.WavPath)
}

func TestRunSNRGateBoundary(t *testing.T) {
	// Exactly at the threshold still skips; just below does not. The below
	// case would proceed to processing, so only the skip side runs end to end.
	planDir := t.TempDir()
	cfg := testEnhancementConfig()
	cfg.PlanInDir = planDir
	cfg.SnrSkipThresholdDb = 15

	snr := 15.0
	writePlan(t, planDir, "vid1", Analysis{Version: "1", SnrDb: &snr})

	out, err := New(cfg).Run(context.Background(), "vid1", "/tmp/raw.wav", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "snr_above_threshold (15.0 >= 15)", out.SkipReason)
}

func TestRunAnalyzeOnlyStopsAfterAnalysis(t *testing.T) {
	planDir := t.TempDir()
	planOut := t.TempDir()
	cfg := testEnhancementConfig()
	cfg.Mode = config.EnhanceAnalyzeOnly
	cfg.PlanInDir = planDir
	cfg.PlanOutDir = planOut

	snr := 3.0
	writePlan(t, planDir, "vid1", Analysis{Version: "1", SnrDb: &snr, RegimeCount: 2})

	out, err := New(cfg).Run(context.Background(), "vid1", "/tmp/raw.wav", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, SkipAnalyzeOnly, out.SkipReason)
	assert.False(t, out.Applied)

	// The plan must have been exported for later runs.
	_, statErr := os.Stat(filepath.Join(planOut, "vid1.json"))
	assert.NoError(t, statErr)
}

func TestRunCorruptPlanFails(t *testing.T) {
	planDir := t.TempDir()
	cfg := testEnhancementConfig()
	cfg.PlanInDir = planDir
	require.NoError(t, os.WriteFile(filepath.Join(planDir, "vid1.json"), []byte("{broken"), 0o644))

	_, err := New(cfg).Run(context.Background(), "vid1", "/tmp/raw.wav", t.TempDir())
	assert.ErrorIs(t, err, ErrEnhancementFailed)
}

func TestApplyOverrides(t *testing.T) {
	cfg := testEnhancementConfig()
	cfg.AttenLimDb = 24
	cfg.SourceClass = "far-field"

	analysis := &Analysis{Regimes: []Regime{
		{Index: 0, Recommended: Recommended{AttenLimDb: 6, Dereverb: false}},
		{Index: 1, Recommended: Recommended{AttenLimDb: 12, Dereverb: false}},
	}}
	New(cfg).applyOverrides(analysis)

	for i, regime := range analysis.Regimes {
		assert.InDelta(t, 24.0, regime.Recommended.AttenLimDb, 1e-9, "regime %d", i)
		assert.True(t, regime.Recommended.Dereverb, "regime %d", i)
	}

	// A studio class keeps the analyzer's dereverb recommendation.
	cfg.SourceClass = "studio"
	analysis2 := &Analysis{Regimes: []Regime{
		{Index: 0, Recommended: Recommended{Dereverb: false}},
	}}
	New(cfg).applyOverrides(analysis2)
	assert.False(t, analysis2.Regimes[0].Recommended.Dereverb)
}

func TestSkipReasonFormat(t *testing.T) {
	got := fmt.Sprintf("snr_above_threshold (%.1f >= %g)", 19.96, 15.0)
	assert.Equal(t, "snr_above_threshold (20.0 >= 15)", got)
}

func TestResetPreflight(t *testing.T) {
	ResetPreflight()
	preflightMu.Lock()
	assert.Empty(t, preflightOK)
	preflightMu.Unlock()
}
