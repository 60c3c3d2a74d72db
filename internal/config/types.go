// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config defines the typed run configuration and its loader.
package config

// Engine names accepted by the pipeline.
const (
	EngineWhisperX = "whisperx"
	EngineTafrigh  = "tafrigh"
)

// Enhancement modes.
const (
	EnhanceOff         = "off"
	EnhanceAuto        = "auto"
	EnhanceOn          = "on"
	EnhanceAnalyzeOnly = "analyze-only"
)

// Fail policies for the enhancement sub-pipeline.
const (
	FailPolicyFallbackRaw = "fallback_raw"
	FailPolicyFail        = "fail"
)

// Closed sets used by validation and the /api/options endpoint.
var (
	Engines          = []string{EngineWhisperX, EngineTafrigh}
	EnhancementModes = []string{EnhanceOff, EnhanceAuto, EnhanceOn, EnhanceAnalyzeOnly}
	SourceClasses    = []string{"auto", "studio", "podium", "far-field", "cassette"}
	DereverbModes    = []string{"off", "auto", "on"}
	OutputFormats    = []string{"json", "txt", "srt", "vtt", "tsv"}
	ComputeTypes     = []string{"int8", "float16", "float32"}
	FailPolicies     = []string{FailPolicyFallbackRaw, FailPolicyFail}

	// WhisperModels is advisory: modelPath also accepts a filesystem path.
	WhisperModels = []string{
		"tiny", "base", "small", "medium",
		"large-v2", "large-v3", "large-v3-turbo",
	}
	Languages = []string{"auto", "ar", "de", "en", "es", "fr", "id", "tr", "ur"}
)

// EnhancementConfig is the nested immutable enhancement sub-config.
// Overrides construct a new value; nothing mutates it in place.
type EnhancementConfig struct {
	Mode               string  `json:"mode" yaml:"mode"`
	SourceClass        string  `json:"sourceClass" yaml:"sourceClass"`
	DereverbMode       string  `json:"dereverbMode" yaml:"dereverbMode"`
	FailPolicy         string  `json:"failPolicy" yaml:"failPolicy"`
	AttenLimDb         float64 `json:"attenLimDb" yaml:"attenLimDb"`
	SnrSkipThresholdDb float64 `json:"snrSkipThresholdDb" yaml:"snrSkipThresholdDb"`
	VadThreshold       float64 `json:"vadThreshold" yaml:"vadThreshold"`
	MinSilenceMs       int     `json:"minSilenceMs" yaml:"minSilenceMs"`
	MaxRegimes         int     `json:"maxRegimes" yaml:"maxRegimes"`
	OverlapMs          int     `json:"overlapMs" yaml:"overlapMs"`
	KeepIntermediate   bool    `json:"keepIntermediate" yaml:"keepIntermediate"`
	PlanInDir          string  `json:"planInDir" yaml:"planInDir"`
	PlanOutDir         string  `json:"planOutDir" yaml:"planOutDir"`
	PythonBin          string  `json:"pythonBin" yaml:"pythonBin"`
	DeepFilterBin      string  `json:"deepFilterBin" yaml:"deepFilterBin"`
	AnalyzeScript      string  `json:"analyzeScript" yaml:"analyzeScript"`
	ProcessScript      string  `json:"processScript" yaml:"processScript"`
}

// RunConfig is the typed configuration passed down the call stack as a value.
type RunConfig struct {
	DataDir             string            `json:"dataDir" yaml:"dataDir"`
	DBPath              string            `json:"dbPath" yaml:"dbPath"`
	Engine              string            `json:"engine" yaml:"engine"`
	Language            string            `json:"language" yaml:"language"`
	ModelPath           string            `json:"modelPath" yaml:"modelPath"`
	WhisperXComputeType string            `json:"whisperxComputeType" yaml:"whisperxComputeType"`
	WhisperXBatchSize   int               `json:"whisperxBatchSize" yaml:"whisperxBatchSize"`
	AutoDownloadModel   bool              `json:"autoDownloadModel" yaml:"autoDownloadModel"`
	ModelDownloadURL    string            `json:"modelDownloadUrl" yaml:"modelDownloadUrl"`
	OutputFormats       []string          `json:"outputFormats" yaml:"outputFormats"`
	Jobs                int               `json:"jobs" yaml:"jobs"`
	KeepWav             bool              `json:"keepWav" yaml:"keepWav"`
	KeepSourceAudio     bool              `json:"keepSourceAudio" yaml:"keepSourceAudio"`
	DownloadVideo       bool              `json:"downloadVideo" yaml:"downloadVideo"`
	ForceOverwrites     bool              `json:"forceOverwrites" yaml:"forceOverwrites"`
	WitAiApiKeys        []string          `json:"witAiApiKeys" yaml:"witAiApiKeys"`
	Enhancement         EnhancementConfig `json:"enhancement" yaml:"enhancement"`

	APIHost        string `json:"apiHost" yaml:"apiHost"`
	APIPort        int    `json:"apiPort" yaml:"apiPort"`
	JobConcurrency int    `json:"jobConcurrency" yaml:"jobConcurrency"`
	LogLevel       string `json:"logLevel" yaml:"logLevel"`
}

// Default returns the built-in configuration used when no file is present.
func Default() RunConfig {
	return RunConfig{
		DataDir:             "data",
		DBPath:              "data/minbar.db",
		Engine:              EngineWhisperX,
		Language:            "auto",
		ModelPath:           "turbo",
		WhisperXComputeType: "int8",
		WhisperXBatchSize:   8,
		OutputFormats:       []string{"json", "txt"},
		Jobs:                1,
		KeepSourceAudio:     true,
		Enhancement: EnhancementConfig{
			Mode:               EnhanceOff,
			SourceClass:        "auto",
			DereverbMode:       "auto",
			FailPolicy:         FailPolicyFallbackRaw,
			AttenLimDb:         12,
			SnrSkipThresholdDb: 15,
			VadThreshold:       0.5,
			MinSilenceMs:       300,
			MaxRegimes:         8,
			OverlapMs:          250,
			PythonBin:          "python3",
			DeepFilterBin:      "deep-filter",
			AnalyzeScript:      "scripts/analyze_audio.py",
			ProcessScript:      "scripts/process_audio.py",
		},
		APIHost:        "127.0.0.1",
		APIPort:        8787,
		JobConcurrency: 1,
		LogLevel:       "info",
	}
}

// AudioDir returns the intermediate WAV directory under the data root.
func (c RunConfig) AudioDir() string { return joinData(c.DataDir, "audio") }

// SourceAudioDir returns the downloaded media directory under the data root.
func (c RunConfig) SourceAudioDir() string { return joinData(c.DataDir, "source_audio") }

// TranscriptsDir returns the per-video transcript output root.
func (c RunConfig) TranscriptsDir() string { return joinData(c.DataDir, "transcripts") }

// EnhanceDir returns the per-video enhancement working root.
func (c RunConfig) EnhanceDir() string { return joinData(c.DataDir, "enhance") }
