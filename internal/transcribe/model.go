// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/minbar/internal/log"
)

// modelHTTPClient is replaceable by tests.
var modelHTTPClient = &http.Client{Timeout: 30 * time.Minute}

// EnsureModel makes sure the configured model is usable before an engine
// run. Named model aliases (no path separator) are resolved by the engine
// itself and pass through. A filesystem path must exist on disk; when
// auto-download is enabled and a URL is configured, a missing model file is
// fetched once and written atomically.
func EnsureModel(ctx context.Context, modelPath string, autoDownload bool, downloadURL string) error {
	modelPath = strings.TrimSpace(modelPath)
	if modelPath == "" || !strings.ContainsRune(modelPath, os.PathSeparator) {
		return nil
	}
	if _, err := os.Stat(modelPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat model %s: %w", modelPath, err)
	}

	if !autoDownload || downloadURL == "" {
		return fmt.Errorf("%w: model file %s missing and auto-download is not configured",
			ErrBadInput, modelPath)
	}
	return downloadModel(ctx, modelPath, downloadURL)
}

func downloadModel(ctx context.Context, modelPath, url string) error {
	logger := log.WithComponentFromContext(ctx, "transcribe")
	logger.Info().
		Str("event", "model.download").
		Str("url", url).
		Str("path", modelPath).
		Msg("downloading model")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := modelHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download model: server returned %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(modelPath), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	pending, err := renameio.NewPendingFile(modelPath)
	if err != nil {
		return fmt.Errorf("stage model file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	written, err := io.Copy(pending, resp.Body)
	if err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit model file: %w", err)
	}

	logger.Info().
		Str("event", "model.download_done").
		Int64("bytes", written).
		Str("path", modelPath).
		Msg("model downloaded")
	return nil
}
