// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"fmt"
)

// schemaVersion is the current schema. Migrations are forward-only and
// idempotent; after running, user_version is set to this value regardless
// of its prior value.
const schemaVersion = 3

const baseSchema = `
CREATE TABLE IF NOT EXISTS videos (
	video_id TEXT PRIMARY KEY,
	source_kind TEXT NOT NULL CHECK(source_kind IN ('url', 'file')),
	source_uri TEXT NOT NULL,
	title TEXT,
	description TEXT,
	uploader_id TEXT,
	channel_id TEXT,
	duration_ms INTEGER,
	upload_date TEXT,
	raw_metadata TEXT,
	local_path TEXT,
	language TEXT,
	engine TEXT,
	engine_version TEXT,
	model TEXT,
	output_formats TEXT,
	enhancement_config TEXT,
	status TEXT NOT NULL DEFAULT 'new',
	error TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transcripts (
	video_id TEXT PRIMARY KEY REFERENCES videos(video_id),
	model TEXT,
	language TEXT,
	text TEXT,
	words_json TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS segments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id TEXT NOT NULL REFERENCES videos(video_id),
	start_ms INTEGER NOT NULL CHECK(start_ms >= 0),
	end_ms INTEGER NOT NULL CHECK(end_ms >= start_ms),
	text TEXT NOT NULL,
	avg_logprob REAL,
	no_speech_prob REAL
);
CREATE INDEX IF NOT EXISTS idx_segments_video ON segments(video_id);

CREATE TABLE IF NOT EXISTS chapters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id TEXT NOT NULL REFERENCES videos(video_id),
	start_ms INTEGER NOT NULL,
	end_ms INTEGER,
	title TEXT NOT NULL DEFAULT 'Chapter'
);
CREATE INDEX IF NOT EXISTS idx_chapters_video ON chapters(video_id);

CREATE TABLE IF NOT EXISTS artifacts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id TEXT NOT NULL REFERENCES videos(video_id),
	kind TEXT NOT NULL,
	uri TEXT NOT NULL,
	size_bytes INTEGER,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_video ON artifacts(video_id);

CREATE TABLE IF NOT EXISTS enhancement_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id TEXT NOT NULL REFERENCES videos(video_id),
	status TEXT NOT NULL CHECK(status IN ('completed', 'skipped', 'error')),
	applied INTEGER NOT NULL DEFAULT 0 CHECK(applied IN (0, 1)),
	mode TEXT,
	source_class TEXT,
	snr_db REAL,
	speech_ratio REAL,
	regime_count INTEGER,
	analysis_duration_ms INTEGER,
	processing_duration_ms INTEGER,
	metrics_json TEXT,
	versions_json TEXT,
	config_json TEXT,
	started_at TEXT,
	finished_at TEXT,
	skip_reason TEXT,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_enhancement_runs_video ON enhancement_runs(video_id);

CREATE TABLE IF NOT EXISTS enhancement_segments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES enhancement_runs(id) ON DELETE CASCADE,
	segment_index INTEGER NOT NULL,
	start_ms INTEGER NOT NULL,
	end_ms INTEGER NOT NULL,
	dereverb_applied INTEGER NOT NULL DEFAULT 0,
	denoise_applied INTEGER NOT NULL DEFAULT 0,
	atten_lim_db REAL,
	processing_ms INTEGER,
	noise_rms_db REAL,
	spectral_centroid_hz REAL,
	speech_ratio REAL
);
CREATE INDEX IF NOT EXISTS idx_enhancement_segments_run ON enhancement_segments(run_id);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS segments_fts USING fts5(
	text,
	video_id UNINDEXED,
	start_ms UNINDEXED,
	end_ms UNINDEXED,
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS segments_ai AFTER INSERT ON segments BEGIN
	INSERT INTO segments_fts(rowid, text, video_id, start_ms, end_ms)
	VALUES (new.id, new.text, new.video_id, new.start_ms, new.end_ms);
END;

CREATE TRIGGER IF NOT EXISTS segments_ad AFTER DELETE ON segments BEGIN
	DELETE FROM segments_fts WHERE rowid = old.id;
END;

CREATE TRIGGER IF NOT EXISTS segments_au AFTER UPDATE ON segments BEGIN
	DELETE FROM segments_fts WHERE rowid = old.id;
	INSERT INTO segments_fts(rowid, text, video_id, start_ms, end_ms)
	VALUES (new.id, new.text, new.video_id, new.start_ms, new.end_ms);
END;
`

// videoColumns lists every column the videos table must carry; ensureVideoColumns
// adds missing ones so databases created by older builds keep working.
var videoColumns = map[string]string{
	"source_kind":        "TEXT NOT NULL DEFAULT 'url'",
	"source_uri":         "TEXT NOT NULL DEFAULT ''",
	"title":              "TEXT",
	"description":        "TEXT",
	"uploader_id":        "TEXT",
	"channel_id":         "TEXT",
	"duration_ms":        "INTEGER",
	"upload_date":        "TEXT",
	"raw_metadata":       "TEXT",
	"local_path":         "TEXT",
	"language":           "TEXT",
	"engine":             "TEXT",
	"engine_version":     "TEXT",
	"model":              "TEXT",
	"output_formats":     "TEXT",
	"enhancement_config": "TEXT",
	"status":             "TEXT NOT NULL DEFAULT 'new'",
	"error":              "TEXT",
	"created_at":         "TEXT NOT NULL DEFAULT ''",
	"updated_at":         "TEXT NOT NULL DEFAULT ''",
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(baseSchema); err != nil {
		return fmt.Errorf("base schema: %w", err)
	}
	if _, err := s.db.Exec(ftsSchema); err != nil {
		return fmt.Errorf("fts schema: %w", err)
	}

	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version < 1 {
		if err := s.ensureVideoColumns(); err != nil {
			return fmt.Errorf("migration v0->v1: %w", err)
		}
	}
	if version < 2 {
		if err := s.rebuildFTS(); err != nil {
			return fmt.Errorf("migration v1->v2: %w", err)
		}
	}
	if version < 3 {
		if err := s.ensureVideoColumns(); err != nil {
			return fmt.Errorf("migration v2->v3: %w", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (s *Store) ensureVideoColumns() error {
	rows, err := s.db.Query(`PRAGMA table_info(videos)`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[string]struct{})
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return err
		}
		existing[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for col, decl := range videoColumns {
		if _, ok := existing[col]; ok {
			continue
		}
		if _, err := s.db.Exec(fmt.Sprintf(`ALTER TABLE videos ADD COLUMN %s %s`, col, decl)); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

// rebuildFTS drops and repopulates the segment index from the segments table.
func (s *Store) rebuildFTS() error {
	stmts := []string{
		`DROP TRIGGER IF EXISTS segments_ai`,
		`DROP TRIGGER IF EXISTS segments_ad`,
		`DROP TRIGGER IF EXISTS segments_au`,
		`DROP TABLE IF EXISTS segments_fts`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := s.db.Exec(ftsSchema); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO segments_fts(rowid, text, video_id, start_ms, end_ms)
		SELECT id, text, video_id, start_ms, end_ms FROM segments`)
	return err
}
