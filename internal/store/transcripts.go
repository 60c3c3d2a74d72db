// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// InsertTranscript upserts the transcript row for a video.
func (s *Store) InsertTranscript(ctx context.Context, t Transcript) error {
	if t.CreatedAt == "" {
		t.CreatedAt = nowRFC3339()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO transcripts (video_id, model, language, text, words_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(video_id) DO UPDATE SET
		model = excluded.model,
		language = excluded.language,
		text = excluded.text,
		words_json = excluded.words_json,
		created_at = excluded.created_at`,
		t.VideoID, nullIfEmpty(t.Model), nullIfEmpty(t.Language), t.Text,
		nullIfEmpty(t.WordsJSON), t.CreatedAt)
	return err
}

// InsertTranscriptTx is InsertTranscript inside an existing transaction.
func InsertTranscriptTx(ctx context.Context, tx *sql.Tx, t Transcript) error {
	if t.CreatedAt == "" {
		t.CreatedAt = nowRFC3339()
	}
	_, err := tx.ExecContext(ctx, `
	INSERT INTO transcripts (video_id, model, language, text, words_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(video_id) DO UPDATE SET
		model = excluded.model,
		language = excluded.language,
		text = excluded.text,
		words_json = excluded.words_json,
		created_at = excluded.created_at`,
		t.VideoID, nullIfEmpty(t.Model), nullIfEmpty(t.Language), t.Text,
		nullIfEmpty(t.WordsJSON), t.CreatedAt)
	return err
}

// GetTranscript retrieves the transcript for a video.
func (s *Store) GetTranscript(ctx context.Context, videoID string) (*Transcript, error) {
	var t Transcript
	err := s.db.QueryRowContext(ctx, `
	SELECT video_id, COALESCE(model, ''), COALESCE(language, ''),
		COALESCE(text, ''), COALESCE(words_json, ''), created_at
	FROM transcripts WHERE video_id = ?`, videoID).Scan(
		&t.VideoID, &t.Model, &t.Language, &t.Text, &t.WordsJSON, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transcript %s: %w", videoID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TranscriptListItem is a transcript joined with its video for list views.
type TranscriptListItem struct {
	VideoID    string `json:"videoId"`
	Title      string `json:"title,omitempty"`
	ChannelID  string `json:"channelId,omitempty"`
	UploaderID string `json:"uploaderId,omitempty"`
	Language   string `json:"language,omitempty"`
	Model      string `json:"model,omitempty"`
	DurationMs *int64 `json:"durationMs,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// ListTranscripts retrieves transcripts newest-first with optional full-text
// filter and channel filter.
func (s *Store) ListTranscripts(ctx context.Context, limit, offset int, query, channelID string) ([]TranscriptListItem, error) {
	if limit <= 0 {
		limit = 50
	}

	var sb strings.Builder
	var args []any
	sb.WriteString(`
	SELECT DISTINCT t.video_id, COALESCE(v.title, ''), COALESCE(v.channel_id, ''),
		COALESCE(v.uploader_id, ''), COALESCE(t.language, ''), COALESCE(t.model, ''),
		v.duration_ms, substr(COALESCE(t.text, ''), 1, 240), t.created_at
	FROM transcripts t
	JOIN videos v ON v.video_id = t.video_id`)

	var where []string
	if strings.TrimSpace(query) != "" {
		sb.WriteString(` JOIN segments_fts f ON f.video_id = t.video_id`)
		where = append(where, `segments_fts MATCH ?`)
		args = append(args, query)
	}
	if channelID != "" {
		where = append(where, `v.channel_id = ?`)
		args = append(args, channelID)
	}
	if len(where) > 0 {
		sb.WriteString(` WHERE ` + strings.Join(where, ` AND `))
	}
	sb.WriteString(` ORDER BY t.created_at DESC, t.video_id LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []TranscriptListItem
	for rows.Next() {
		var it TranscriptListItem
		var durationMs sql.NullInt64
		if err := rows.Scan(&it.VideoID, &it.Title, &it.ChannelID, &it.UploaderID,
			&it.Language, &it.Model, &durationMs, &it.Snippet, &it.CreatedAt); err != nil {
			return nil, err
		}
		if durationMs.Valid {
			d := durationMs.Int64
			it.DurationMs = &d
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// InsertSegments bulk-inserts segments in a single transaction. The FTS
// shadow is maintained by triggers.
func (s *Store) InsertSegments(ctx context.Context, segments []Segment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return InsertSegmentsTx(ctx, tx, segments)
	})
}

// InsertSegmentsTx bulk-inserts segments inside an existing transaction.
func InsertSegmentsTx(ctx context.Context, tx *sql.Tx, segments []Segment) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO segments (video_id, start_ms, end_ms, text, avg_logprob, no_speech_prob)
	VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, seg := range segments {
		if _, err := stmt.ExecContext(ctx, seg.VideoID, seg.StartMs, seg.EndMs,
			seg.Text, nullFloat(seg.AvgLogprob), nullFloat(seg.NoSpeechProb)); err != nil {
			return err
		}
	}
	return nil
}

// ListSegments retrieves a video's segments in timeline order.
func (s *Store) ListSegments(ctx context.Context, videoID string) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT video_id, start_ms, end_ms, text, avg_logprob, no_speech_prob
	FROM segments WHERE video_id = ? ORDER BY start_ms, id`, videoID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var segments []Segment
	for rows.Next() {
		var seg Segment
		var avgLogprob, noSpeechProb sql.NullFloat64
		if err := rows.Scan(&seg.VideoID, &seg.StartMs, &seg.EndMs, &seg.Text,
			&avgLogprob, &noSpeechProb); err != nil {
			return nil, err
		}
		if avgLogprob.Valid {
			seg.AvgLogprob = &avgLogprob.Float64
		}
		if noSpeechProb.Valid {
			seg.NoSpeechProb = &noSpeechProb.Float64
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// ListChapters retrieves a video's chapters in timeline order.
func (s *Store) ListChapters(ctx context.Context, videoID string) ([]Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT video_id, start_ms, end_ms, title
	FROM chapters WHERE video_id = ? ORDER BY start_ms, id`, videoID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chapters []Chapter
	for rows.Next() {
		var ch Chapter
		var endMs sql.NullInt64
		if err := rows.Scan(&ch.VideoID, &ch.StartMs, &endMs, &ch.Title); err != nil {
			return nil, err
		}
		if endMs.Valid {
			ch.EndMs = &endMs.Int64
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

// InsertChapters bulk-inserts chapters in a single transaction. Empty titles
// default to "Chapter".
func (s *Store) InsertChapters(ctx context.Context, chapters []Chapter) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return InsertChaptersTx(ctx, tx, chapters)
	})
}

// InsertChaptersTx bulk-inserts chapters inside an existing transaction.
func InsertChaptersTx(ctx context.Context, tx *sql.Tx, chapters []Chapter) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO chapters (video_id, start_ms, end_ms, title) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, ch := range chapters {
		title := strings.TrimSpace(ch.Title)
		if title == "" {
			title = "Chapter"
		}
		if _, err := stmt.ExecContext(ctx, ch.VideoID, ch.StartMs, nullInt(ch.EndMs), title); err != nil {
			return err
		}
	}
	return nil
}

// InsertArtifacts bulk-inserts artifacts in a single transaction.
func (s *Store) InsertArtifacts(ctx context.Context, artifacts []Artifact) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return InsertArtifactsTx(ctx, tx, artifacts)
	})
}

// InsertArtifactsTx bulk-inserts artifacts inside an existing transaction.
func InsertArtifactsTx(ctx context.Context, tx *sql.Tx, artifacts []Artifact) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO artifacts (video_id, kind, uri, size_bytes, created_at)
	VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, a := range artifacts {
		createdAt := a.CreatedAt
		if createdAt == "" {
			createdAt = nowRFC3339()
		}
		if _, err := stmt.ExecContext(ctx, a.VideoID, a.Kind, a.URI, a.SizeBytes, createdAt); err != nil {
			return err
		}
	}
	return nil
}

// ListArtifacts retrieves a video's artifacts newest-first.
func (s *Store) ListArtifacts(ctx context.Context, videoID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT video_id, kind, uri, COALESCE(size_bytes, 0), created_at
	FROM artifacts WHERE video_id = ? ORDER BY created_at DESC, id DESC`, videoID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.VideoID, &a.Kind, &a.URI, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}
