// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcribe

import (
	"math"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// engineJSON tolerates both the current engine schema (segments[], numeric
// start/end seconds) and the legacy one (transcription[], offsets in ms).
// One malformed segment never fails the whole transcript; it is dropped.
type engineJSON struct {
	Language      string          `json:"language"`
	Segments      []engineSegment `json:"segments"`
	Transcription []engineSegment `json:"transcription"`
}

type engineSegment struct {
	Start        *float64      `json:"start"` // seconds
	End          *float64      `json:"end"`
	Offsets      *legacyOffset `json:"offsets"` // milliseconds
	Text         string        `json:"text"`
	AvgLogprob   *float64      `json:"avg_logprob"`
	NoSpeechProb *float64      `json:"no_speech_prob"`
	Words        []engineWord  `json:"words"`
}

type legacyOffset struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

type engineWord struct {
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	Word  string   `json:"word"`
}

// ParseEngineJSON normalizes a raw engine JSON document.
func ParseEngineJSON(raw []byte, fallbackLanguage string) (*Output, error) {
	var doc engineJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	segments := doc.Segments
	if len(segments) == 0 {
		segments = doc.Transcription
	}

	out := &Output{Language: doc.Language}
	if out.Language == "" {
		out.Language = fallbackLanguage
	}

	for _, seg := range segments {
		startMs, endMs, ok := segmentBounds(seg)
		if !ok {
			continue
		}

		var words []Word
		for _, w := range seg.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" || w.Start == nil || w.End == nil ||
				!isFinite(*w.Start) || !isFinite(*w.End) {
				continue
			}
			b, e := roundMs(*w.Start), roundMs(*w.End)
			if b < 0 || e < b {
				continue
			}
			words = append(words, Word{StartMs: b, EndMs: e, Word: word})
		}

		text := strings.TrimSpace(seg.Text)
		if len(words) > 0 {
			text = JoinWords(words)
		}
		if text == "" {
			continue
		}

		out.Segments = append(out.Segments, Segment{
			StartMs:      startMs,
			EndMs:        endMs,
			Text:         text,
			AvgLogprob:   seg.AvgLogprob,
			NoSpeechProb: seg.NoSpeechProb,
		})
		out.Words = append(out.Words, words...)
	}

	sortWords(out.Words)
	return out, nil
}

func segmentBounds(seg engineSegment) (int64, int64, bool) {
	switch {
	case seg.Start != nil && seg.End != nil && isFinite(*seg.Start) && isFinite(*seg.End):
		b, e := roundMs(*seg.Start), roundMs(*seg.End)
		return b, e, b >= 0 && e >= b
	case seg.Offsets != nil && isFinite(seg.Offsets.From) && isFinite(seg.Offsets.To):
		b, e := int64(math.Round(seg.Offsets.From)), int64(math.Round(seg.Offsets.To))
		return b, e, b >= 0 && e >= b
	default:
		return 0, 0, false
	}
}

func roundMs(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// sortWords orders by start ascending, keeping original order for ties.
func sortWords(words []Word) {
	sort.SliceStable(words, func(i, j int) bool {
		return words[i].StartMs < words[j].StartMs
	})
}

// JoinWords reconstructs text from a word list: single-space joined, then
// tightened around punctuation and brackets.
func JoinWords(words []Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if w.Word != "" {
			parts = append(parts, w.Word)
		}
	}
	return TightenText(strings.Join(parts, " "))
}

const (
	trailingPunct = ",.;:!?،؟" // includes Arabic comma and question mark
	closingMarks  = "'\")]}"
	openingMarks  = "[({"
)

// TightenText removes whitespace immediately before trailing punctuation and
// closing marks, and immediately after opening brackets.
func TightenText(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == ' ' || r == '\t' {
			// Look ahead: drop the run of spaces if punctuation follows.
			j := i
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t') {
				j++
			}
			if j < len(runes) && (strings.ContainsRune(trailingPunct, runes[j]) ||
				strings.ContainsRune(closingMarks, runes[j])) {
				i = j - 1
				continue
			}
			// Drop spaces following an opening bracket.
			if prev, ok := lastRune(&b); ok && strings.ContainsRune(openingMarks, prev) {
				i = j - 1
				continue
			}
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func lastRune(b *strings.Builder) (rune, bool) {
	s := b.String()
	if s == "" {
		return 0, false
	}
	runes := []rune(s)
	return runes[len(runes)-1], true
}
