// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureModelNamedAlias(t *testing.T) {
	// Engine-resolved aliases need no local file.
	assert.NoError(t, EnsureModel(context.Background(), "large-v3", false, ""))
	assert.NoError(t, EnsureModel(context.Background(), "  turbo  ", false, ""))
	assert.NoError(t, EnsureModel(context.Background(), "", true, "http://unused"))
}

func TestEnsureModelExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	assert.NoError(t, EnsureModel(context.Background(), path, false, ""))
}

func TestEnsureModelMissingWithoutAutoDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	err := EnsureModel(context.Background(), path, false, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadInput)

	// A URL alone is not enough; auto-download must be enabled.
	err = EnsureModel(context.Background(), path, false, "http://models.example/m.bin")
	assert.ErrorIs(t, err, ErrBadInput)
}

func TestEnsureModelDownloads(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("model weights"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "models", "model.bin")
	require.NoError(t, EnsureModel(context.Background(), path, true, srv.URL))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "model weights", string(got))
	assert.Equal(t, int64(1), hits.Load())

	// Present on disk now; no second fetch.
	require.NoError(t, EnsureModel(context.Background(), path, true, srv.URL))
	assert.Equal(t, int64(1), hits.Load())
}

func TestEnsureModelDownloadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "model.bin")
	err := EnsureModel(context.Background(), path, true, srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 500")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
