// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
)

// deleteVideoRows removes every row referencing videoID outside the videos
// table. Enhancement segments cascade via the run foreign key, deleted
// explicitly here because legacy databases may predate foreign_keys=ON.
func deleteVideoRows(ctx context.Context, tx *sql.Tx, videoID string) error {
	stmts := []string{
		`DELETE FROM enhancement_segments WHERE run_id IN
			(SELECT id FROM enhancement_runs WHERE video_id = ?)`,
		`DELETE FROM enhancement_runs WHERE video_id = ?`,
		`DELETE FROM artifacts WHERE video_id = ?`,
		`DELETE FROM chapters WHERE video_id = ?`,
		`DELETE FROM segments WHERE video_id = ?`,
		`DELETE FROM transcripts WHERE video_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, videoID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteVideoData removes all dependent rows for a video in one transaction,
// leaving the video row itself. Used by retry and force re-runs.
func (s *Store) DeleteVideoData(ctx context.Context, videoID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteVideoRows(ctx, tx, videoID)
	})
}

// DeleteVideoFully additionally removes the video row.
func (s *Store) DeleteVideoFully(ctx context.Context, videoID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteVideoRows(ctx, tx, videoID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE video_id = ?`, videoID)
		return err
	})
}
