// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transcribe adapts the external transcription engines and
// normalizes their output to a common segment/word timeline.
package transcribe

import "errors"

var (
	// ErrBadInput marks invalid engine parameters (e.g. empty key list).
	ErrBadInput = errors.New("bad transcription input")
	// ErrTranscriptionFailed marks engine invocation failures.
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// Word is one timed token. EndMs >= StartMs >= 0.
type Word struct {
	StartMs int64  `json:"b"`
	EndMs   int64  `json:"e"`
	Word    string `json:"w"`
}

// Segment is one timed utterance. EndMs >= StartMs >= 0.
type Segment struct {
	StartMs      int64
	EndMs        int64
	Text         string
	AvgLogprob   *float64
	NoSpeechProb *float64
}

// Output is the normalized engine result.
type Output struct {
	Language string
	Segments []Segment
	Words    []Word
	// JSONPath is the engine's raw JSON output file, when one was written.
	JSONPath string
	// TextPath is the engine's plain text output file, when one was written.
	TextPath string
}

// Request carries the per-run engine parameters.
type Request struct {
	WavPath       string
	Language      string // empty or "auto" lets the engine detect
	Model         string
	ComputeType   string // int8 | float16 | float32
	BatchSize     int
	OutputDir     string
	OutputBase    string // basename for renamed output files
	OutputFormats []string
	APIKeys       []string // tafrigh only
}
