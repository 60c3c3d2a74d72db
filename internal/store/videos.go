// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound marks lookups for rows that do not exist.
var ErrNotFound = errors.New("not found")

// UpsertVideo inserts or updates a video by primary key. CreatedAt is taken
// from the record when set and defaults to now otherwise; UpdatedAt is always
// refreshed.
func (s *Store) UpsertVideo(ctx context.Context, v Video) error {
	if v.CreatedAt == "" {
		v.CreatedAt = nowRFC3339()
	}
	v.UpdatedAt = nowRFC3339()

	query := `
	INSERT INTO videos (
		video_id, source_kind, source_uri, title, description, uploader_id,
		channel_id, duration_ms, upload_date, raw_metadata, local_path,
		language, engine, engine_version, model, output_formats,
		enhancement_config, status, error, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(video_id) DO UPDATE SET
		source_kind = excluded.source_kind,
		source_uri = excluded.source_uri,
		title = excluded.title,
		description = excluded.description,
		uploader_id = excluded.uploader_id,
		channel_id = excluded.channel_id,
		duration_ms = excluded.duration_ms,
		upload_date = excluded.upload_date,
		raw_metadata = excluded.raw_metadata,
		local_path = excluded.local_path,
		language = excluded.language,
		engine = excluded.engine,
		engine_version = excluded.engine_version,
		model = excluded.model,
		output_formats = excluded.output_formats,
		enhancement_config = excluded.enhancement_config,
		status = excluded.status,
		error = excluded.error,
		updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		v.VideoID, v.SourceKind, v.SourceURI, nullIfEmpty(v.Title), nullIfEmpty(v.Description),
		nullIfEmpty(v.UploaderID), nullIfEmpty(v.ChannelID), nullInt(v.DurationMs),
		nullIfEmpty(v.UploadDate), nullIfEmpty(v.RawMetadata), nullIfEmpty(v.LocalPath),
		nullIfEmpty(v.Language), nullIfEmpty(v.Engine), nullIfEmpty(v.EngineVersion),
		nullIfEmpty(v.Model), nullIfEmpty(v.OutputFormats), nullIfEmpty(v.EnhancementConfig),
		v.Status, nullIfEmpty(v.Error), v.CreatedAt, v.UpdatedAt,
	)
	return err
}

// UpdateVideoStatus updates status, error and updated_at only.
func (s *Store) UpdateVideoStatus(ctx context.Context, videoID, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET status = ?, error = ?, updated_at = ? WHERE video_id = ?`,
		status, nullIfEmpty(errMsg), nowRFC3339(), videoID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	return nil
}

const videoSelect = `
SELECT video_id, source_kind, source_uri,
	COALESCE(title, ''), COALESCE(description, ''), COALESCE(uploader_id, ''),
	COALESCE(channel_id, ''), duration_ms, COALESCE(upload_date, ''),
	COALESCE(raw_metadata, ''), COALESCE(local_path, ''), COALESCE(language, ''),
	COALESCE(engine, ''), COALESCE(engine_version, ''), COALESCE(model, ''),
	COALESCE(output_formats, ''), COALESCE(enhancement_config, ''),
	status, COALESCE(error, ''), created_at, updated_at
FROM videos`

func scanVideo(scan func(...any) error) (Video, error) {
	var v Video
	var durationMs sql.NullInt64
	err := scan(
		&v.VideoID, &v.SourceKind, &v.SourceURI, &v.Title, &v.Description,
		&v.UploaderID, &v.ChannelID, &durationMs, &v.UploadDate, &v.RawMetadata,
		&v.LocalPath, &v.Language, &v.Engine, &v.EngineVersion, &v.Model,
		&v.OutputFormats, &v.EnhancementConfig, &v.Status, &v.Error,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if durationMs.Valid {
		d := durationMs.Int64
		v.DurationMs = &d
	}
	return v, err
}

// GetVideo retrieves a single video by ID.
func (s *Store) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, videoSelect+` WHERE video_id = ?`, videoID)
	v, err := scanVideo(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVideos retrieves videos newest-first.
func (s *Store) ListVideos(ctx context.Context, limit int) ([]Video, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, videoSelect+` ORDER BY created_at DESC, video_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var videos []Video
	for rows.Next() {
		v, err := scanVideo(rows.Scan)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// HasTranscript reports whether a transcript row exists for the video.
func (s *Store) HasTranscript(ctx context.Context, videoID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM transcripts WHERE video_id = ?`, videoID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
