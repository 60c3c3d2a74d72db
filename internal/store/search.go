// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
	"strings"
)

// SearchSegments runs a full-text match over the segment index, ordered by
// bm25 relevance ascending (lower is better). An expression the FTS engine
// rejects surfaces as ErrInvalidQuery.
func (s *Store) SearchSegments(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT video_id, start_ms, end_ms, text, bm25(segments_fts) AS score
	FROM segments_fts
	WHERE segments_fts MATCH ?
	ORDER BY score
	LIMIT ?`, query, limit)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.VideoID, &h.StartMs, &h.EndMs, &h.Text, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		if isFTSSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		return nil, err
	}
	return hits, nil
}

// isFTSSyntaxError recognises fts5 match expression errors. The driver
// surfaces them as generic sqlite errors, so matching on the message is the
// only available signal.
func isFTSSyntaxError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "unknown special query") ||
		strings.Contains(msg, "no such column") && strings.Contains(msg, "fts")
}
