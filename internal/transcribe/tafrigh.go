// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ManuGH/minbar/internal/log"
)

// witEndpoint is the cloud speech endpoint the tafrigh engine talks to.
const witEndpoint = "https://api.wit.ai/speech?v=20240304"

// witHTTPClient is replaceable by tests.
var witHTTPClient = &http.Client{Timeout: 5 * time.Minute}

// witUtterance is one recognized utterance in the provider's response stream.
type witUtterance struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Speech  struct {
		Tokens []struct {
			Start int64  `json:"start"` // ms
			End   int64  `json:"end"`
			Token string `json:"token"`
		} `json:"tokens"`
	} `json:"speech"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// RunTafrigh submits the WAV to the cloud engine and normalizes the result.
// Keys are tried in order; an authorization failure rotates to the next key.
func RunTafrigh(ctx context.Context, req Request) (*Output, error) {
	if len(req.APIKeys) == 0 {
		return nil, fmt.Errorf("%w: tafrigh requires at least one API key", ErrBadInput)
	}

	wav, err := os.ReadFile(req.WavPath) // #nosec G304 -- pipeline-owned path
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}

	logger := log.WithComponentFromContext(ctx, "transcribe")
	var lastErr error
	for _, key := range req.APIKeys {
		utterances, err := witSubmit(ctx, key, wav)
		if err != nil {
			lastErr = err
			logger.Warn().Err(err).Str("event", "tafrigh.key_failed").Msg("rotating to next API key")
			continue
		}
		return normalizeUtterances(utterances, req.Language), nil
	}
	return nil, fmt.Errorf("%w: all API keys failed: %v", ErrTranscriptionFailed, lastErr)
}

func witSubmit(ctx context.Context, key string, wav []byte) ([]witUtterance, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, witEndpoint, bytes.NewReader(wav))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "audio/wav")

	resp, err := witHTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	// The provider streams concatenated JSON objects; decode them all and
	// keep the final utterances.
	var utterances []witUtterance
	dec := json.NewDecoder(bytes.NewReader(body))
	for {
		var u witUtterance
		if err := dec.Decode(&u); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("parse provider response: %w", err)
		}
		if u.IsFinal {
			utterances = append(utterances, u)
		}
	}
	return utterances, nil
}

// normalizeUtterances maps provider utterances onto segments and words.
// Token-level words are used when present; otherwise one word entry per
// segment carries the segment text and bounds.
func normalizeUtterances(utterances []witUtterance, language string) *Output {
	out := &Output{Language: language}
	for _, u := range utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		startMs, endMs := u.Start, u.End
		if startMs < 0 || endMs < startMs {
			continue
		}

		var words []Word
		for _, tok := range u.Speech.Tokens {
			w := strings.TrimSpace(tok.Token)
			if w == "" || tok.Start < 0 || tok.End < tok.Start {
				continue
			}
			words = append(words, Word{StartMs: tok.Start, EndMs: tok.End, Word: w})
		}
		if len(words) == 0 {
			words = []Word{{StartMs: startMs, EndMs: endMs, Word: text}}
		} else {
			text = JoinWords(words)
		}
		if text == "" {
			continue
		}

		out.Segments = append(out.Segments, Segment{StartMs: startMs, EndMs: endMs, Text: text})
		out.Words = append(out.Words, words...)
	}
	sortWords(out.Words)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
