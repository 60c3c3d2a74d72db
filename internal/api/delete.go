// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/minbar/internal/fsutil"
	"github.com/ManuGH/minbar/internal/log"
	"github.com/ManuGH/minbar/internal/store"
)

// handleDeleteVideo removes a video's database rows and its files under the
// data root. Files outside the data root (a user's original local media) are
// never touched.
func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	videoID, ok := pathVideoID(w, r)
	if !ok {
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")

	video, err := s.st.GetVideo(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "video not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if video.SourceURI != "" {
		if existing, ok := s.jm.FindActiveByInput(video.SourceURI); ok {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error": "an active job targets this video",
				"job":   existing,
			})
			return
		}
	}

	dataRoot, err := filepath.Abs(s.cfg.DataDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	removeConfined := func(path string) {
		if path == "" {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return
		}
		confined, err := fsutil.ConfineAbsPath(dataRoot, abs)
		if err != nil {
			logger.Warn().Str("path", path).Msg("skipping delete outside data root")
			return
		}
		if err := os.RemoveAll(confined); err != nil {
			logger.Warn().Err(err).Str("path", confined).Msg("delete failed")
		}
	}

	artifacts, err := s.st.ListArtifacts(r.Context(), videoID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	for _, a := range artifacts {
		removeConfined(a.URI)
	}
	removeConfined(video.LocalPath)
	removeConfined(filepath.Join(s.cfg.TranscriptsDir(), videoID))
	removeConfined(filepath.Join(s.cfg.EnhanceDir(), videoID))

	// Stray downloads and WAVs are keyed <id>.<ext> in their directories.
	for _, dir := range []string{s.cfg.SourceAudioDir(), s.cfg.AudioDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasPrefix(entry.Name(), videoID+".") {
				continue
			}
			removeConfined(filepath.Join(dir, entry.Name()))
		}
	}

	if err := s.st.DeleteVideoFully(r.Context(), videoID); err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	ResetAudioSourceCache()

	logger.Info().
		Str("event", "api.video_deleted").
		Str("video_id", videoID).
		Msg("video deleted")
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "videoId": videoID})
}
