// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/minbar/internal/config"
	"github.com/ManuGH/minbar/internal/jobs"
	"github.com/ManuGH/minbar/internal/pipeline"
	"github.com/ManuGH/minbar/internal/store"
)

type testEnv struct {
	srv     *Server
	st      *store.Store
	cfg     config.RunConfig
	handler http.Handler
}

// newTestEnv builds a server over a temp store with a no-op job runner.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ResetAudioSourceCache()
	t.Cleanup(ResetAudioSourceCache)

	dataDir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.DBPath = filepath.Join(dataDir, "test.db")

	st, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	jm := jobs.NewManager(context.Background(), 1, func(ctx context.Context, job jobs.Job) error {
		return nil
	})
	t.Cleanup(jm.Wait)

	srv := NewServer(cfg, st, jm)
	return &testEnv{srv: srv, st: st, cfg: cfg, handler: srv.Router()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body struct {
		OK   bool   `json:"ok"`
		Time string `json:"time"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.NotEmpty(t, body.Time)
}

func TestPreflightReturnsNoContent(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOptionsExposesClosedSets(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/options", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Defaults         map[string]any `json:"defaults"`
		Engines          []string       `json:"engines"`
		EnhancementModes []string       `json:"enhancementModes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.ElementsMatch(t, config.Engines, body.Engines)
	assert.ElementsMatch(t, config.EnhancementModes, body.EnhancementModes)
	assert.Equal(t, env.cfg.Engine, body.Defaults["engine"])
	assert.Equal(t, env.cfg.Language, body.Defaults["language"])
}

func TestCreateJobValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"empty body", `{}`, http.StatusBadRequest},
		{"blank input", `{"input":"   "}`, http.StatusBadRequest},
		{"not json", `{{{`, http.StatusBadRequest},
		{"bad engine", `{"input":"https://a.example/x","overrides":{"engine":"siri"}}`, http.StatusBadRequest},
		{"bad output format", `{"input":"https://a.example/x","overrides":{"outputFormats":["doc"]}}`, http.StatusBadRequest},
		{"atten out of range", `{"input":"https://a.example/x","overrides":{"attenLimDb":61}}`, http.StatusBadRequest},
		{"snr out of range", `{"input":"https://a.example/x","overrides":{"snrSkipThresholdDb":-30}}`, http.StatusBadRequest},
		{"valid", `{"input":"https://a.example/x"}`, http.StatusCreated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/jobs", tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateJobConflictOnActiveInput(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.DBPath = filepath.Join(dataDir, "test.db")
	st, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	block := make(chan struct{})
	jm := jobs.NewManager(context.Background(), 1, func(ctx context.Context, job jobs.Job) error {
		<-block
		return nil
	})
	t.Cleanup(func() {
		close(block)
		jm.Wait()
	})
	handler := NewServer(cfg, st, jm).Router()

	body := `{"input":"https://a.example/x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidVideoIDRejected(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{
		"/api/transcripts/..%2F..%2Fetc",
		"/api/media/audio/has%20space",
	} {
		rec := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestGetTranscriptNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/transcripts/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTranscriptsInvalidQuery(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, `/api/transcripts?q=%22unbalanced`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetrySemantics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/api/videos/unknown/retry", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, env.st.UpsertVideo(ctx, store.Video{
		VideoID:       "vid1",
		SourceKind:    "url",
		SourceURI:     "https://example.com/vid1",
		Status:        store.StatusError,
		Engine:        config.EngineWhisperX,
		Language:      "ar",
		Model:         "turbo",
		OutputFormats: `["json","srt"]`,
	}))

	rec = env.do(t, http.MethodPost, "/api/videos/vid1/retry", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var job jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "https://example.com/vid1", job.Input)
	assert.True(t, job.Force)
	assert.Equal(t, "ar", job.Overrides.Language)
	assert.Equal(t, []string{"json", "srt"}, job.Overrides.OutputFormats)
}

func TestRetryRejectsNonRetryableStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.st.UpsertVideo(ctx, store.Video{
		VideoID:    "vid1",
		SourceKind: "url",
		SourceURI:  "https://example.com/vid1",
		Status:     store.StatusDone,
	}))

	rec := env.do(t, http.MethodPost, "/api/videos/vid1/retry", "")
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestDeleteVideoConflictsWithActiveJob(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.DBPath = filepath.Join(dataDir, "test.db")
	st, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	block := make(chan struct{})
	jm := jobs.NewManager(context.Background(), 1, func(ctx context.Context, job jobs.Job) error {
		<-block
		return nil
	})
	t.Cleanup(func() {
		close(block)
		jm.Wait()
	})
	handler := NewServer(cfg, st, jm).Router()

	require.NoError(t, st.UpsertVideo(context.Background(), store.Video{
		VideoID:    "vid1",
		SourceKind: "url",
		SourceURI:  "https://example.com/vid1",
		Status:     store.StatusProcessing,
	}))
	jm.Create("url", "https://example.com/vid1", false, pipeline.Overrides{})

	req := httptest.NewRequest(http.MethodDelete, "/api/videos/vid1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	_, err = st.GetVideo(context.Background(), "vid1")
	assert.NoError(t, err, "video row must survive a blocked delete")
}

func TestListJobsHonorsLimit(t *testing.T) {
	env := newTestEnv(t)
	for _, input := range []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"} {
		env.do(t, http.MethodPost, "/api/jobs", `{"input":"`+input+`"}`)
	}

	rec := env.do(t, http.MethodGet, "/api/jobs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Jobs []jobs.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Jobs, 2)
}

func seedAudioVideo(t *testing.T, env *testEnv, videoID, content string) string {
	t.Helper()
	ctx := context.Background()
	audioDir := env.cfg.AudioDir()
	require.NoError(t, os.MkdirAll(audioDir, 0o755))
	wavPath := filepath.Join(audioDir, videoID+".wav")
	require.NoError(t, os.WriteFile(wavPath, []byte(content), 0o644))

	require.NoError(t, env.st.UpsertVideo(ctx, store.Video{
		VideoID: videoID, SourceKind: "url", SourceURI: "u", Status: store.StatusDone,
	}))
	require.NoError(t, env.st.InsertArtifacts(ctx, []store.Artifact{
		{VideoID: videoID, Kind: store.ArtifactAudioWav, URI: wavPath, SizeBytes: int64(len(content))},
	}))
	return wavPath
}

func TestAudioFullAndRangeRequests(t *testing.T) {
	env := newTestEnv(t)
	content := "0123456789abcdef"
	seedAudioVideo(t, env, "vid1", content)

	// Full response.
	rec := env.do(t, http.MethodGet, "/api/media/audio/vid1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.String())
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))

	// Closed range.
	req := httptest.NewRequest(http.MethodGet, "/api/media/audio/vid1", nil)
	req.Header.Set("Range", "bytes=2-5")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusPartialContent, rr.Code)
	assert.Equal(t, "2345", rr.Body.String())
	assert.Equal(t, "bytes 2-5/16", rr.Header().Get("Content-Range"))
	assert.Equal(t, "4", rr.Header().Get("Content-Length"))

	// Open-ended range.
	req = httptest.NewRequest(http.MethodGet, "/api/media/audio/vid1", nil)
	req.Header.Set("Range", "bytes=10-")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusPartialContent, rr.Code)
	assert.Equal(t, "abcdef", rr.Body.String())

	// Suffix range.
	req = httptest.NewRequest(http.MethodGet, "/api/media/audio/vid1", nil)
	req.Header.Set("Range", "bytes=-4")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusPartialContent, rr.Code)
	assert.Equal(t, "cdef", rr.Body.String())

	// Unsatisfiable range.
	req = httptest.NewRequest(http.MethodGet, "/api/media/audio/vid1", nil)
	req.Header.Set("Range", "bytes=999-")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rr.Code)
	assert.Equal(t, "bytes */16", rr.Header().Get("Content-Range"))
}

func TestAudioHeadReturnsNoBody(t *testing.T) {
	env := newTestEnv(t)
	seedAudioVideo(t, env, "vid1", "0123456789")

	rec := env.do(t, http.MethodHead, "/api/media/audio/vid1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.String())
}

func TestAudioNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/media/audio/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteVideoConfinedToDataRoot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A file outside the data root, registered as an artifact, must survive.
	outsideDir := t.TempDir()
	outsidePath := filepath.Join(outsideDir, "precious.mp3")
	require.NoError(t, os.WriteFile(outsidePath, []byte("keep me"), 0o644))

	insidePath := seedAudioVideo(t, env, "vid1", "wav bytes")
	require.NoError(t, env.st.InsertArtifacts(ctx, []store.Artifact{
		{VideoID: "vid1", Kind: store.ArtifactSourceAudio, URI: outsidePath, SizeBytes: 7},
	}))

	rec := env.do(t, http.MethodDelete, "/api/videos/vid1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := os.Stat(insidePath)
	assert.True(t, os.IsNotExist(err), "in-root artifact should be deleted")
	_, err = os.Stat(outsidePath)
	assert.NoError(t, err, "out-of-root file must never be touched")

	_, err = env.st.GetVideo(ctx, "vid1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteVideoNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodDelete, "/api/videos/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsIncludesActiveJobs(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Stats store.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Stats.VideosTotal)
	assert.Zero(t, body.Stats.ActiveJobs)
}

func TestParseRange(t *testing.T) {
	cases := []struct {
		header     string
		start, end int64
		err        bool
		none       bool
	}{
		{"", 0, 0, false, true},
		{"bytes=0-0", 0, 0, false, false},
		{"bytes=2-5", 2, 5, false, false},
		{"bytes=10-", 10, 15, false, false},
		{"bytes=-4", 12, 15, false, false},
		{"bytes=-100", 0, 15, false, false},
		{"bytes=0-999", 0, 15, false, false},
		{"bytes=16-", 0, 0, true, false},
		{"bytes=5-2", 0, 0, true, false},
		{"bytes=-0", 0, 0, true, false},
		{"bytes=0-1,3-4", 0, 0, false, true}, // multi-range falls back to full
		{"items=0-1", 0, 0, false, true},
	}
	for _, tc := range cases {
		rng, err := parseRange(tc.header, 16)
		if tc.err {
			assert.ErrorIs(t, err, errUnsatisfiableRange, tc.header)
			continue
		}
		require.NoError(t, err, tc.header)
		if tc.none {
			assert.Nil(t, rng, tc.header)
			continue
		}
		require.NotNil(t, rng, tc.header)
		assert.Equal(t, tc.start, rng.start, tc.header)
		assert.Equal(t, tc.end, rng.end, tc.header)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
