// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package enhance orchestrates the audio-enhancement sub-pipeline: analysis,
// SNR gating, source-class overrides and the external processor.
package enhance

// Analysis is the analyzer's output schema.
type Analysis struct {
	Version          string            `json:"version"`
	InputPath        string            `json:"input_path"`
	DurationMs       int64             `json:"duration_ms"`
	SampleRate       int               `json:"sample_rate"`
	SnrDb            *float64          `json:"snr_db"`
	SpeechRatio      float64           `json:"speech_ratio"`
	RegimeCount      int               `json:"regime_count"`
	Regimes          []Regime          `json:"regimes"`
	SilenceSpans     []Span            `json:"silence_spans"`
	SpeechSpans      []Span            `json:"speech_spans"`
	AnalysisDuration int64             `json:"analysis_duration_ms"`
	Versions         map[string]string `json:"versions"`
}

// Regime is a contiguous acoustic segment with homogeneous noise
// characteristics.
type Regime struct {
	Index              int         `json:"index"`
	StartMs            int64       `json:"start_ms"`
	EndMs              int64       `json:"end_ms"`
	NoiseRmsDb         *float64    `json:"noise_rms_db"`
	SpectralCentroidHz *float64    `json:"spectral_centroid_hz"`
	NoiseReference     *Span       `json:"noise_reference"`
	Recommended        Recommended `json:"recommended"`
}

// Span is a half-open time interval in milliseconds.
type Span struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

// Recommended carries per-regime processing recommendations.
type Recommended struct {
	Dereverb   bool    `json:"dereverb"`
	Denoise    bool    `json:"denoise"`
	AttenLimDb float64 `json:"atten_lim_db"`
}

// ProcessingResult is the processor's output schema.
type ProcessingResult struct {
	Version      string             `json:"version"`
	InputPath    string             `json:"input_path"`
	OutputPath   string             `json:"output_path"`
	DurationMs   int64              `json:"duration_ms"`
	ProcessingMs int64              `json:"processing_ms"`
	Segments     []ProcessedSegment `json:"segments"`
	Versions     map[string]string  `json:"versions"`
}

// ProcessedSegment is one analysis regime actually processed.
type ProcessedSegment struct {
	SegmentIndex    int     `json:"segment_index"`
	StartMs         int64   `json:"start_ms"`
	EndMs           int64   `json:"end_ms"`
	DereverbApplied bool    `json:"dereverb_applied"`
	DenoiseApplied  bool    `json:"denoise_applied"`
	AttenLimDb      float64 `json:"atten_lim_db"`
	ProcessingMs    int64   `json:"processing_ms"`
}

// Artifact kinds produced by the orchestrator.
const (
	KindAnalysisJSON = "enhancement_analysis_json"
	KindPlanJSON     = "enhancement_plan_json"
	KindResultJSON   = "enhancement_result_json"
	KindEnhancedWav  = "audio_wav_enhanced"
)

// Artifact is a file the orchestrator produced, by kind and absolute path.
type Artifact struct {
	Kind string
	Path string
}

// Outcome is the orchestrator's result for one video.
type Outcome struct {
	WavPath    string // path to hand to transcription
	Applied    bool
	Mode       string
	SkipReason string
	Analysis   *Analysis
	Result     *ProcessingResult
	Artifacts  []Artifact
	StartedAt  string
	FinishedAt string
}
