// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"time"
)

// Stats is the headline counter set for the dashboard.
type Stats struct {
	TranscriptsTotal       int64 `json:"transcriptsTotal"`
	VideosTotal            int64 `json:"videosTotal"`
	AudioBackedTranscripts int64 `json:"audioBackedTranscripts"`
	ActiveJobs             int64 `json:"activeJobs"` // filled in by the API layer
}

// Channel is an aggregate over videos sharing a channel_id.
type Channel struct {
	ChannelID   string `json:"channelId"`
	UploaderID  string `json:"uploaderId,omitempty"`
	Videos      int64  `json:"videos"`
	Transcripts int64  `json:"transcripts"`
}

// DailyCount is one day of the 30-day transcript series.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// Distribution is a label -> count histogram entry.
type Distribution struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// SeriesPoint is one per-entity value in a time-ordered series.
type SeriesPoint struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

// EnhancementPoint carries per-run analytics values.
type EnhancementPoint struct {
	VideoID      string   `json:"videoId"`
	AnalysisMs   *int64   `json:"analysisMs,omitempty"`
	ProcessingMs *int64   `json:"processingMs,omitempty"`
	SpeechRatio  *float64 `json:"speechRatio,omitempty"`
	SnrDb        *float64 `json:"snrDb,omitempty"`
}

// Analytics is the read-only aggregate payload for the dashboard.
type Analytics struct {
	Summary struct {
		TranscriptsTotal   int64   `json:"transcriptsTotal"`
		VideosTotal        int64   `json:"videosTotal"`
		TranscribedHours   float64 `json:"transcribedHours"`
		AveragePerDayLast7 float64 `json:"averagePerDayLast7"`
	} `json:"summary"`
	Daily               []DailyCount       `json:"daily"`
	Languages           []Distribution     `json:"languages"`
	SourceTypes         []Distribution     `json:"sourceTypes"`
	VideoStatuses       []Distribution     `json:"videoStatuses"`
	EnhancementOutcomes []Distribution     `json:"enhancementOutcomes"`
	DurationBuckets     []Distribution     `json:"durationBuckets"`
	JobDurations        []SeriesPoint      `json:"jobDurations"`
	Enhancement         []EnhancementPoint `json:"enhancement"`
	SignalNoise         struct {
		Speech float64 `json:"speech"`
		Noise  float64 `json:"noise"`
	} `json:"signalNoise"`
}

// GetStats computes the headline counters (ActiveJobs excluded).
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&st.TranscriptsTotal); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&st.VideosTotal); err != nil {
		return st, err
	}
	err := s.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM transcripts t JOIN videos v ON v.video_id = t.video_id
	WHERE COALESCE(v.local_path, '') <> ''
	   OR EXISTS (SELECT 1 FROM artifacts a WHERE a.video_id = t.video_id
	              AND a.kind IN ('source_audio', 'audio_wav_enhanced', 'audio_wav'))`).
		Scan(&st.AudioBackedTranscripts)
	return st, err
}

// ListChannels aggregates videos per channel.
func (s *Store) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT v.channel_id, COALESCE(MAX(v.uploader_id), ''), COUNT(*),
		SUM(CASE WHEN t.video_id IS NOT NULL THEN 1 ELSE 0 END)
	FROM videos v
	LEFT JOIN transcripts t ON t.video_id = v.video_id
	WHERE COALESCE(v.channel_id, '') <> ''
	GROUP BY v.channel_id
	ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var channels []Channel
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.ChannelID, &c.UploaderID, &c.Videos, &c.Transcripts); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// GetAnalytics computes the dashboard aggregate payload.
func (s *Store) GetAnalytics(ctx context.Context) (*Analytics, error) {
	var a Analytics

	st, err := s.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	a.Summary.TranscriptsTotal = st.TranscriptsTotal
	a.Summary.VideosTotal = st.VideosTotal

	if err := s.db.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(v.duration_ms), 0) / 3600000.0
	FROM transcripts t JOIN videos v ON v.video_id = t.video_id`).
		Scan(&a.Summary.TranscribedHours); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	weekAgo := now.AddDate(0, 0, -7).Format(time.RFC3339)
	var last7 int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcripts WHERE created_at >= ?`, weekAgo).Scan(&last7); err != nil {
		return nil, err
	}
	a.Summary.AveragePerDayLast7 = float64(last7) / 7.0

	daily, err := s.dailySeries(ctx, now)
	if err != nil {
		return nil, err
	}
	a.Daily = daily

	for _, q := range []struct {
		dst   *[]Distribution
		query string
	}{
		{&a.Languages, `SELECT COALESCE(NULLIF(language, ''), 'unknown'), COUNT(*) FROM transcripts GROUP BY 1 ORDER BY 2 DESC`},
		{&a.SourceTypes, `SELECT source_kind, COUNT(*) FROM videos GROUP BY 1 ORDER BY 2 DESC`},
		{&a.VideoStatuses, `SELECT status, COUNT(*) FROM videos GROUP BY 1 ORDER BY 2 DESC`},
		{&a.EnhancementOutcomes, `SELECT status, COUNT(*) FROM enhancement_runs GROUP BY 1 ORDER BY 2 DESC`},
		{&a.DurationBuckets, `
			SELECT CASE
				WHEN duration_ms < 300000 THEN '<5m'
				WHEN duration_ms < 900000 THEN '5-15m'
				WHEN duration_ms < 1800000 THEN '15-30m'
				WHEN duration_ms < 3600000 THEN '30-60m'
				ELSE '60m+'
			END, COUNT(*)
			FROM videos WHERE duration_ms IS NOT NULL GROUP BY 1`},
	} {
		dist, err := s.distribution(ctx, q.query)
		if err != nil {
			return nil, err
		}
		*q.dst = dist
	}

	// Per-video job wall clock: created_at -> updated_at for finished videos.
	rows, err := s.db.QueryContext(ctx, `
	SELECT video_id,
		(julianday(updated_at) - julianday(created_at)) * 86400.0
	FROM videos WHERE status = 'done' ORDER BY updated_at DESC LIMIT 100`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var p SeriesPoint
		if err := rows.Scan(&p.ID, &p.Value); err != nil {
			return nil, err
		}
		a.JobDurations = append(a.JobDurations, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	enh, avgSpeech, err := s.enhancementSeries(ctx)
	if err != nil {
		return nil, err
	}
	a.Enhancement = enh
	a.SignalNoise.Speech = avgSpeech
	a.SignalNoise.Noise = 1 - avgSpeech

	return &a, nil
}

func (s *Store) dailySeries(ctx context.Context, now time.Time) ([]DailyCount, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT substr(created_at, 1, 10) AS day, COUNT(*)
	FROM transcripts WHERE created_at >= ?
	GROUP BY day`, now.AddDate(0, 0, -30).Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	byDay := make(map[string]int64)
	for rows.Next() {
		var day string
		var count int64
		if err := rows.Scan(&day, &count); err != nil {
			return nil, err
		}
		byDay[day] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Backfill the full 30-day window with zeros, oldest first.
	series := make([]DailyCount, 0, 30)
	for i := 29; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		series = append(series, DailyCount{Date: day, Count: byDay[day]})
	}
	return series, nil
}

func (s *Store) distribution(ctx context.Context, query string) ([]Distribution, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var dist []Distribution
	for rows.Next() {
		var d Distribution
		if err := rows.Scan(&d.Label, &d.Count); err != nil {
			return nil, err
		}
		dist = append(dist, d)
	}
	return dist, rows.Err()
}

func (s *Store) enhancementSeries(ctx context.Context) ([]EnhancementPoint, float64, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT video_id, analysis_duration_ms, processing_duration_ms, speech_ratio, snr_db
	FROM enhancement_runs ORDER BY id DESC LIMIT 100`)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var points []EnhancementPoint
	var speechSum float64
	var speechCount int64
	for rows.Next() {
		var p EnhancementPoint
		var analysisMs, processingMs sql.NullInt64
		var speech, snr sql.NullFloat64
		if err := rows.Scan(&p.VideoID, &analysisMs, &processingMs, &speech, &snr); err != nil {
			return nil, 0, err
		}
		if analysisMs.Valid {
			p.AnalysisMs = &analysisMs.Int64
		}
		if processingMs.Valid {
			p.ProcessingMs = &processingMs.Int64
		}
		if speech.Valid {
			p.SpeechRatio = &speech.Float64
			speechSum += speech.Float64
			speechCount++
		}
		if snr.Valid {
			p.SnrDb = &snr.Float64
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	avg := 0.0
	if speechCount > 0 {
		avg = speechSum / float64(speechCount)
	}
	return points, avg, nil
}
