// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
)

// WithTx runs fn inside a single transaction. Used by the pipeline engine to
// persist transcript, segments, artifacts, telemetry and the terminal status
// flip atomically.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withTx(ctx, fn)
}

// UpdateVideoStatusTx is UpdateVideoStatus inside an existing transaction.
func UpdateVideoStatusTx(ctx context.Context, tx *sql.Tx, videoID, status, errMsg string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE videos SET status = ?, error = ?, updated_at = ? WHERE video_id = ?`,
		status, nullIfEmpty(errMsg), nowRFC3339(), videoID)
	return err
}

// InsertEnhancementRun inserts a run row and returns its new id.
func (s *Store) InsertEnhancementRun(ctx context.Context, run EnhancementRun) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = InsertEnhancementRunTx(ctx, tx, run)
		return err
	})
	return id, err
}

// InsertEnhancementRunTx inserts a run row inside an existing transaction.
func InsertEnhancementRunTx(ctx context.Context, tx *sql.Tx, run EnhancementRun) (int64, error) {
	applied := 0
	if run.Applied {
		applied = 1
	}
	res, err := tx.ExecContext(ctx, `
	INSERT INTO enhancement_runs (
		video_id, status, applied, mode, source_class, snr_db, speech_ratio,
		regime_count, analysis_duration_ms, processing_duration_ms,
		metrics_json, versions_json, config_json, started_at, finished_at,
		skip_reason, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.VideoID, run.Status, applied, nullIfEmpty(run.Mode), nullIfEmpty(run.SourceClass),
		nullFloat(run.SnrDb), nullFloat(run.SpeechRatio), nullInt(run.RegimeCount),
		nullInt(run.AnalysisDurationMs), nullInt(run.ProcessingDurationMs),
		nullIfEmpty(run.MetricsJSON), nullIfEmpty(run.VersionsJSON), nullIfEmpty(run.ConfigJSON),
		nullIfEmpty(run.StartedAt), nullIfEmpty(run.FinishedAt),
		nullIfEmpty(run.SkipReason), nullIfEmpty(run.Error))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertEnhancementSegments bulk-inserts regime telemetry for a run.
func (s *Store) InsertEnhancementSegments(ctx context.Context, segments []EnhancementSegment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return InsertEnhancementSegmentsTx(ctx, tx, segments)
	})
}

// InsertEnhancementSegmentsTx bulk-inserts regime telemetry inside an
// existing transaction.
func InsertEnhancementSegmentsTx(ctx context.Context, tx *sql.Tx, segments []EnhancementSegment) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO enhancement_segments (
		run_id, segment_index, start_ms, end_ms, dereverb_applied,
		denoise_applied, atten_lim_db, processing_ms, noise_rms_db,
		spectral_centroid_hz, speech_ratio
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, seg := range segments {
		dereverb, denoise := 0, 0
		if seg.DereverbApplied {
			dereverb = 1
		}
		if seg.DenoiseApplied {
			denoise = 1
		}
		if _, err := stmt.ExecContext(ctx, seg.RunID, seg.SegmentIndex, seg.StartMs, seg.EndMs,
			dereverb, denoise, nullFloat(seg.AttenLimDb), nullInt(seg.ProcessingMs),
			nullFloat(seg.NoiseRmsDb), nullFloat(seg.SpectralCentroidHz),
			nullFloat(seg.SpeechRatio)); err != nil {
			return err
		}
	}
	return nil
}

// LatestEnhancementRun retrieves the most recent run for a video, or nil.
func (s *Store) LatestEnhancementRun(ctx context.Context, videoID string) (*EnhancementRun, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, video_id, status, applied, COALESCE(mode, ''), COALESCE(source_class, ''),
		snr_db, speech_ratio, regime_count, analysis_duration_ms, processing_duration_ms,
		COALESCE(metrics_json, ''), COALESCE(versions_json, ''), COALESCE(config_json, ''),
		COALESCE(started_at, ''), COALESCE(finished_at, ''),
		COALESCE(skip_reason, ''), COALESCE(error, '')
	FROM enhancement_runs WHERE video_id = ? ORDER BY id DESC LIMIT 1`, videoID)

	var run EnhancementRun
	var applied int
	var snr, speech sql.NullFloat64
	var regimes, analysisMs, processingMs sql.NullInt64
	err := row.Scan(&run.ID, &run.VideoID, &run.Status, &applied, &run.Mode, &run.SourceClass,
		&snr, &speech, &regimes, &analysisMs, &processingMs,
		&run.MetricsJSON, &run.VersionsJSON, &run.ConfigJSON,
		&run.StartedAt, &run.FinishedAt, &run.SkipReason, &run.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Applied = applied == 1
	if snr.Valid {
		run.SnrDb = &snr.Float64
	}
	if speech.Valid {
		run.SpeechRatio = &speech.Float64
	}
	if regimes.Valid {
		run.RegimeCount = &regimes.Int64
	}
	if analysisMs.Valid {
		run.AnalysisDurationMs = &analysisMs.Int64
	}
	if processingMs.Valid {
		run.ProcessingDurationMs = &processingMs.Int64
	}
	return &run, nil
}
