// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, EngineWhisperX, cfg.Engine)
	assert.Equal(t, 8787, cfg.APIPort)
	assert.Equal(t, "127.0.0.1", cfg.APIHost)
	assert.Equal(t, EnhanceOff, cfg.Enhancement.Mode)
	assert.InDelta(t, 15.0, cfg.Enhancement.SnrSkipThresholdDb, 1e-9)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"dataDir": "mydata",
		"dbPath": "mydata/minbar.db"
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mydata"), cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "mydata", "minbar.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(cfg.DataDir, "audio"), cfg.AudioDir())
	assert.Equal(t, filepath.Join(cfg.DataDir, "source_audio"), cfg.SourceAudioDir())
}

func TestLoadKeepsBareBinaryNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"enhancement": {"pythonBin": "python3", "deepFilterBin": "bin/deep-filter"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "python3", cfg.Enhancement.PythonBin)
	assert.Equal(t, filepath.Join(dir, "bin", "deep-filter"), cfg.Enhancement.DeepFilterBin)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: tafrigh\nlanguage: ar\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, EngineTafrigh, cfg.Engine)
	assert.Equal(t, "ar", cfg.Language)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"apiPort": 9000}`), 0o644))

	t.Setenv(EnvAPIPort, "9100")
	t.Setenv(EnvAPIHost, "0.0.0.0")
	t.Setenv(EnvJobConcurrency, "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.APIPort)
	assert.Equal(t, "0.0.0.0", cfg.APIHost)
	assert.Equal(t, 4, cfg.JobConcurrency)
}

func TestWitAiKeysFromEnv(t *testing.T) {
	t.Setenv(EnvWitAiKeys, "  key1   key2\tkey3 ")
	assert.Equal(t, []string{"key1", "key2", "key3"}, WitAiKeysFromEnv())

	t.Setenv(EnvWitAiKeys, "")
	assert.Empty(t, WitAiKeysFromEnv())
}

func TestValidateRejectsBadEnums(t *testing.T) {
	cfg := Default()
	cfg.Engine = "nope"
	err := Validate(cfg)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "engine")

	cfg = Default()
	cfg.Enhancement.Mode = "sometimes"
	assert.ErrorIs(t, Validate(cfg), ErrInvalid)

	cfg = Default()
	cfg.OutputFormats = []string{"json", "doc"}
	assert.ErrorIs(t, Validate(cfg), ErrInvalid)

	cfg = Default()
	cfg.Jobs = 0
	assert.ErrorIs(t, Validate(cfg), ErrInvalid)
}

func TestValidateRejectsNonFinite(t *testing.T) {
	cfg := Default()
	cfg.Enhancement.AttenLimDb = math.Inf(1)
	assert.ErrorIs(t, Validate(cfg), ErrInvalid)

	cfg = Default()
	cfg.Enhancement.SnrSkipThresholdDb = math.NaN()
	assert.ErrorIs(t, Validate(cfg), ErrInvalid)
}

func TestNormalizeOutputFormats(t *testing.T) {
	got := NormalizeOutputFormats([]string{" JSON ", "txt", "json", "", "Txt"})
	assert.Equal(t, []string{"json", "txt"}, got)
}

func TestManagerCurrentSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"language": "ar"}`), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, "ar", m.Current().Language)
}
