// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcribe

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEngineJSONCurrentSchema(t *testing.T) {
	raw := []byte(`{
		"language": "ar",
		"segments": [
			{"start": 0.0, "end": 1.5, "text": " hello world ", "words": [
				{"start": 0.0, "end": 0.7, "word": "hello"},
				{"start": 0.7, "end": 1.5, "word": "world"}
			]},
			{"start": 2.0, "end": 3.0, "text": "no words here"}
		]
	}`)

	out, err := ParseEngineJSON(raw, "en")
	require.NoError(t, err)
	assert.Equal(t, "ar", out.Language)
	require.Len(t, out.Segments, 2)
	assert.Equal(t, int64(0), out.Segments[0].StartMs)
	assert.Equal(t, int64(1500), out.Segments[0].EndMs)
	assert.Equal(t, "hello world", out.Segments[0].Text)
	assert.Equal(t, "no words here", out.Segments[1].Text)
	require.Len(t, out.Words, 2)
	assert.Equal(t, int64(700), out.Words[1].StartMs)
}

func TestParseEngineJSONLegacyOffsets(t *testing.T) {
	raw := []byte(`{
		"transcription": [
			{"offsets": {"from": 100, "to": 900}, "text": "legacy segment"}
		]
	}`)

	out, err := ParseEngineJSON(raw, "en")
	require.NoError(t, err)
	assert.Equal(t, "en", out.Language) // fallback when the doc has none
	require.Len(t, out.Segments, 1)
	assert.Equal(t, int64(100), out.Segments[0].StartMs)
	assert.Equal(t, int64(900), out.Segments[0].EndMs)
}

func TestParseEngineJSONDropsMalformedSegments(t *testing.T) {
	raw := []byte(`{
		"language": "en",
		"segments": [
			{"text": "no bounds at all"},
			{"start": 5.0, "end": 1.0, "text": "end before start"},
			{"start": 1.0, "end": 2.0, "text": "   "},
			{"start": 3.0, "end": 4.0, "text": "kept"}
		]
	}`)

	out, err := ParseEngineJSON(raw, "")
	require.NoError(t, err)
	require.Len(t, out.Segments, 1)
	assert.Equal(t, "kept", out.Segments[0].Text)
}

func TestParseEngineJSONInvalid(t *testing.T) {
	_, err := ParseEngineJSON([]byte("{not json"), "")
	assert.Error(t, err)
}

func TestTightenText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"hello , world", "hello, world"},
		{"hello  !", "hello!"},
		{"( inner )", "(inner)"},
		{"quote \" end", "quote\" end"},
		{"arabic ، comma ؟", "arabic، comma؟"},
		{"plain text stays", "plain text stays"},
		{"  leading and trailing  ", "leading and trailing"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TightenText(tc.in), "input %q", tc.in)
	}
}

func TestJoinWordsSortsAndTightens(t *testing.T) {
	words := []Word{
		{StartMs: 500, EndMs: 900, Word: "world"},
		{StartMs: 0, EndMs: 400, Word: "hello"},
		{StartMs: 900, EndMs: 1000, Word: "!"},
	}
	sortWords(words)
	assert.Equal(t, "hello world!", JoinWords(words))
}

func TestWhisperxArgsOmitsAutoLanguage(t *testing.T) {
	base := Request{
		WavPath:     "/tmp/a.wav",
		Model:       "turbo",
		ComputeType: "int8",
		BatchSize:   8,
		OutputDir:   "/tmp/out",
	}

	for _, lang := range []string{"", "auto", " auto "} {
		req := base
		req.Language = lang
		args := whisperxArgs("whisperx", req)
		assert.NotContains(t, args, "--language", "language %q", lang)
	}

	req := base
	req.Language = "ar"
	args := whisperxArgs("whisperx", req)
	require.Contains(t, args, "--language")
	for i, a := range args {
		if a == "--language" {
			assert.Equal(t, "ar", args[i+1])
		}
	}
}

func TestWhisperxArgsClampsBatchSize(t *testing.T) {
	args := whisperxArgs("whisperx", Request{WavPath: "a.wav", Model: "turbo", BatchSize: 0})
	for i, a := range args {
		if a == "--batch_size" {
			assert.Equal(t, "1", args[i+1])
		}
	}
}

func TestNormalizeUtterances(t *testing.T) {
	var utterances []witUtterance
	require.NoError(t, json.Unmarshal([]byte(`[
		{"text": "hello world", "start": 0, "end": 1200, "speech": {"tokens": [
			{"start": 0, "end": 600, "token": "hello"},
			{"start": 600, "end": 1200, "token": "world"}
		]}},
		{"text": "no tokens", "start": 1200, "end": 2000},
		{"text": "   ", "start": 2000, "end": 2100}
	]`), &utterances))

	out := normalizeUtterances(utterances, "ar")
	assert.Equal(t, "ar", out.Language)
	require.Len(t, out.Segments, 2)
	assert.Equal(t, "hello world", out.Segments[0].Text)
	require.Len(t, out.Words, 3)
	// Tokenless utterances get one word spanning the segment.
	assert.Equal(t, "no tokens", out.Words[2].Word)
	assert.Equal(t, int64(1200), out.Words[2].StartMs)
}

func TestRunTafrighRequiresKeys(t *testing.T) {
	_, err := RunTafrigh(t.Context(), Request{WavPath: "/tmp/a.wav"})
	assert.ErrorIs(t, err, ErrBadInput)
}
