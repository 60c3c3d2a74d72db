// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

// Video lifecycle states.
const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
	StatusFailed     = "failed"
)

// Known artifact kinds.
const (
	ArtifactAudioWav         = "audio_wav"
	ArtifactAudioWavEnhanced = "audio_wav_enhanced"
	ArtifactSourceAudio      = "source_audio"
	ArtifactSourceInfoJSON   = "source_info_json"
	ArtifactTranscriptTxt    = "transcript_txt"
	ArtifactTranscriptJSON   = "transcript_json"
	ArtifactAnalysisJSON     = "enhancement_analysis_json"
	ArtifactPlanJSON         = "enhancement_plan_json"
	ArtifactResultJSON       = "enhancement_result_json"
)

// Video is the root entity, one row per logical source.
type Video struct {
	VideoID           string `json:"videoId"`
	SourceKind        string `json:"sourceKind"` // "url" | "file"
	SourceURI         string `json:"sourceUri"`
	Title             string `json:"title,omitempty"`
	Description       string `json:"description,omitempty"`
	UploaderID        string `json:"uploaderId,omitempty"`
	ChannelID         string `json:"channelId,omitempty"`
	DurationMs        *int64 `json:"durationMs,omitempty"`
	UploadDate        string `json:"uploadDate,omitempty"`
	RawMetadata       string `json:"-"`
	LocalPath         string `json:"localPath,omitempty"`
	Language          string `json:"language,omitempty"`
	Engine            string `json:"engine,omitempty"`
	EngineVersion     string `json:"engineVersion,omitempty"`
	Model             string `json:"model,omitempty"`
	OutputFormats     string `json:"outputFormats,omitempty"`     // JSON array
	EnhancementConfig string `json:"enhancementConfig,omitempty"` // JSON blob
	Status            string `json:"status"`
	Error             string `json:"error,omitempty"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
}

// Transcript is the one-per-video transcript row.
type Transcript struct {
	VideoID   string `json:"videoId"`
	Model     string `json:"model,omitempty"`
	Language  string `json:"language,omitempty"`
	Text      string `json:"text"`
	WordsJSON string `json:"wordsJson,omitempty"` // compact transcript JSON
	CreatedAt string `json:"createdAt"`
}

// Segment is a timestamped slice of a transcript.
type Segment struct {
	VideoID      string   `json:"videoId"`
	StartMs      int64    `json:"startMs"`
	EndMs        int64    `json:"endMs"`
	Text         string   `json:"text"`
	AvgLogprob   *float64 `json:"avgLogprob,omitempty"`
	NoSpeechProb *float64 `json:"noSpeechProb,omitempty"`
}

// Chapter is a provider-declared section of a video.
type Chapter struct {
	VideoID string `json:"videoId"`
	StartMs int64  `json:"startMs"`
	EndMs   *int64 `json:"endMs,omitempty"`
	Title   string `json:"title"`
}

// Artifact records an auxiliary file produced by the pipeline.
type Artifact struct {
	VideoID   string `json:"videoId"`
	Kind      string `json:"kind"`
	URI       string `json:"uri"`
	SizeBytes int64  `json:"sizeBytes"`
	CreatedAt string `json:"createdAt"`
}

// EnhancementRun records one enhancement execution for a video.
type EnhancementRun struct {
	ID                   int64    `json:"id"`
	VideoID              string   `json:"videoId"`
	Status               string   `json:"status"` // completed | skipped | error
	Applied              bool     `json:"applied"`
	Mode                 string   `json:"mode,omitempty"`
	SourceClass          string   `json:"sourceClass,omitempty"`
	SnrDb                *float64 `json:"snrDb,omitempty"`
	SpeechRatio          *float64 `json:"speechRatio,omitempty"`
	RegimeCount          *int64   `json:"regimeCount,omitempty"`
	AnalysisDurationMs   *int64   `json:"analysisDurationMs,omitempty"`
	ProcessingDurationMs *int64   `json:"processingDurationMs,omitempty"`
	MetricsJSON          string   `json:"-"`
	VersionsJSON         string   `json:"-"`
	ConfigJSON           string   `json:"-"`
	StartedAt            string   `json:"startedAt,omitempty"`
	FinishedAt           string   `json:"finishedAt,omitempty"`
	SkipReason           string   `json:"skipReason,omitempty"`
	Error                string   `json:"error,omitempty"`
}

// EnhancementSegment records one processed analysis regime within a run.
type EnhancementSegment struct {
	RunID              int64    `json:"runId"`
	SegmentIndex       int      `json:"segmentIndex"`
	StartMs            int64    `json:"startMs"`
	EndMs              int64    `json:"endMs"`
	DereverbApplied    bool     `json:"dereverbApplied"`
	DenoiseApplied     bool     `json:"denoiseApplied"`
	AttenLimDb         *float64 `json:"attenLimDb,omitempty"`
	ProcessingMs       *int64   `json:"processingMs,omitempty"`
	NoiseRmsDb         *float64 `json:"noiseRmsDb,omitempty"`
	SpectralCentroidHz *float64 `json:"spectralCentroidHz,omitempty"`
	SpeechRatio        *float64 `json:"speechRatio,omitempty"`
}

// SearchHit is one full-text match; lower Score means a better match.
type SearchHit struct {
	VideoID string  `json:"videoId"`
	StartMs int64   `json:"startMs"`
	EndMs   int64   `json:"endMs"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}
