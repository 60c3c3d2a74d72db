// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedVideo(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.UpsertVideo(context.Background(), Video{
		VideoID:    id,
		SourceKind: "url",
		SourceURI:  "https://example.com/watch?v=" + id,
		Title:      "Title " + id,
		Status:     StatusNew,
	}))
}

func TestMigrateSetsUserVersion(t *testing.T) {
	s := openTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow(`PRAGMA user_version`).Scan(&version))
	assert.Equal(t, schemaVersion, version)

	// Re-opening an existing database must be a no-op.
	require.NoError(t, s.migrate())
	require.NoError(t, s.db.QueryRow(`PRAGMA user_version`).Scan(&version))
	assert.Equal(t, schemaVersion, version)
}

func TestUpsertVideoPreservesCreatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertVideo(ctx, Video{
		VideoID:    "abc",
		SourceKind: "url",
		SourceURI:  "https://example.com/abc",
		Status:     StatusNew,
		CreatedAt:  "2024-01-01T00:00:00Z",
	}))
	require.NoError(t, s.UpsertVideo(ctx, Video{
		VideoID:    "abc",
		SourceKind: "url",
		SourceURI:  "https://example.com/abc",
		Title:      "updated",
		Status:     StatusProcessing,
	}))

	v, err := s.GetVideo(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", v.CreatedAt)
	assert.Equal(t, "updated", v.Title)
	assert.Equal(t, StatusProcessing, v.Status)
}

func TestUpdateVideoStatusNotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateVideoStatus(context.Background(), "missing", StatusDone, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFTSShadowFollowsSegments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedVideo(t, s, "vid1")

	require.NoError(t, s.InsertSegments(ctx, []Segment{
		{VideoID: "vid1", StartMs: 0, EndMs: 1000, Text: "bismillah opening words"},
		{VideoID: "vid1", StartMs: 1000, EndMs: 2000, Text: "unrelated closing words"},
	}))

	hits, err := s.SearchSegments(ctx, "bismillah", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "vid1", hits[0].VideoID)
	assert.Equal(t, int64(0), hits[0].StartMs)

	// Deleting the source rows must drop them from the index too.
	require.NoError(t, s.DeleteVideoData(ctx, "vid1"))
	hits, err = s.SearchSegments(ctx, "bismillah", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchDiacriticInsensitive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedVideo(t, s, "vid1")

	require.NoError(t, s.InsertSegments(ctx, []Segment{
		{VideoID: "vid1", StartMs: 0, EndMs: 500, Text: "café conversation"},
	}))

	hits, err := s.SearchSegments(ctx, "cafe", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchInvalidQuery(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SearchSegments(context.Background(), `"unbalanced`, 10)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestTranscriptUpsertAndHasTranscript(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedVideo(t, s, "vid1")

	has, err := s.HasTranscript(ctx, "vid1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.InsertTranscript(ctx, Transcript{
		VideoID: "vid1", Language: "ar", Text: "first version",
	}))
	require.NoError(t, s.InsertTranscript(ctx, Transcript{
		VideoID: "vid1", Language: "ar", Text: "second version",
	}))

	got, err := s.GetTranscript(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, "second version", got.Text)

	has, err = s.HasTranscript(ctx, "vid1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDeleteVideoFullyCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedVideo(t, s, "vid1")

	require.NoError(t, s.InsertTranscript(ctx, Transcript{VideoID: "vid1", Text: "text"}))
	require.NoError(t, s.InsertSegments(ctx, []Segment{
		{VideoID: "vid1", StartMs: 0, EndMs: 100, Text: "text"},
	}))
	require.NoError(t, s.InsertChapters(ctx, []Chapter{{VideoID: "vid1", StartMs: 0, Title: ""}}))
	require.NoError(t, s.InsertArtifacts(ctx, []Artifact{
		{VideoID: "vid1", Kind: ArtifactAudioWav, URI: "/tmp/vid1.wav", SizeBytes: 10},
	}))

	runID, err := s.InsertEnhancementRun(ctx, EnhancementRun{
		VideoID: "vid1", Status: "completed", Applied: true, Mode: "auto",
	})
	require.NoError(t, err)
	require.NoError(t, s.InsertEnhancementSegments(ctx, []EnhancementSegment{
		{RunID: runID, SegmentIndex: 0, StartMs: 0, EndMs: 100},
	}))

	require.NoError(t, s.DeleteVideoFully(ctx, "vid1"))

	_, err = s.GetVideo(ctx, "vid1")
	assert.ErrorIs(t, err, ErrNotFound)
	for _, table := range []string{
		"transcripts", "segments", "chapters", "artifacts",
		"enhancement_runs",
	} {
		var count int
		require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&count))
		assert.Zero(t, count, table)
	}
	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM enhancement_segments`).Scan(&count))
	assert.Zero(t, count)
}

func TestEmptyChapterTitleDefaults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedVideo(t, s, "vid1")

	require.NoError(t, s.InsertChapters(ctx, []Chapter{
		{VideoID: "vid1", StartMs: 0, Title: "   "},
	}))
	chapters, err := s.ListChapters(ctx, "vid1")
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, "Chapter", chapters[0].Title)
}

func TestLatestEnhancementRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedVideo(t, s, "vid1")

	run, err := s.LatestEnhancementRun(ctx, "vid1")
	require.NoError(t, err)
	assert.Nil(t, run)

	_, err = s.InsertEnhancementRun(ctx, EnhancementRun{VideoID: "vid1", Status: "skipped"})
	require.NoError(t, err)
	snr := 12.5
	_, err = s.InsertEnhancementRun(ctx, EnhancementRun{
		VideoID: "vid1", Status: "completed", Applied: true, SnrDb: &snr,
	})
	require.NoError(t, err)

	run, err = s.LatestEnhancementRun(ctx, "vid1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "completed", run.Status)
	assert.True(t, run.Applied)
	require.NotNil(t, run.SnrDb)
	assert.InDelta(t, 12.5, *run.SnrDb, 1e-9)
}

func TestListTranscriptsWithQueryAndChannel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertVideo(ctx, Video{
		VideoID: "vid1", SourceKind: "url", SourceURI: "u1",
		ChannelID: "chan-a", Status: StatusDone,
	}))
	require.NoError(t, s.UpsertVideo(ctx, Video{
		VideoID: "vid2", SourceKind: "url", SourceURI: "u2",
		ChannelID: "chan-b", Status: StatusDone,
	}))
	require.NoError(t, s.InsertTranscript(ctx, Transcript{VideoID: "vid1", Text: "alpha"}))
	require.NoError(t, s.InsertTranscript(ctx, Transcript{VideoID: "vid2", Text: "beta"}))
	require.NoError(t, s.InsertSegments(ctx, []Segment{
		{VideoID: "vid1", StartMs: 0, EndMs: 1, Text: "alpha"},
		{VideoID: "vid2", StartMs: 0, EndMs: 1, Text: "beta"},
	}))

	items, err := s.ListTranscripts(ctx, 10, 0, "", "")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = s.ListTranscripts(ctx, 10, 0, "alpha", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "vid1", items[0].VideoID)

	items, err = s.ListTranscripts(ctx, 10, 0, "", "chan-b")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "vid2", items[0].VideoID)

	_, err = s.ListTranscripts(ctx, 10, 0, `"unbalanced`, "")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
