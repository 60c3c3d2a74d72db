// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/minbar/internal/config"
	"github.com/ManuGH/minbar/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleOptions exposes the closed sets the UI needs for form validation,
// plus the configured defaults those forms start from.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"defaults": map[string]any{
			"engine":              s.cfg.Engine,
			"language":            s.cfg.Language,
			"modelPath":           s.cfg.ModelPath,
			"outputFormats":       s.cfg.OutputFormats,
			"whisperxComputeType": s.cfg.WhisperXComputeType,
			"whisperxBatchSize":   s.cfg.WhisperXBatchSize,
			"enhancementMode":     s.cfg.Enhancement.Mode,
			"sourceClass":         s.cfg.Enhancement.SourceClass,
			"dereverbMode":        s.cfg.Enhancement.DereverbMode,
			"failPolicy":          s.cfg.Enhancement.FailPolicy,
			"attenLimDb":          s.cfg.Enhancement.AttenLimDb,
			"snrSkipThresholdDb":  s.cfg.Enhancement.SnrSkipThresholdDb,
		},
		"engines":          config.Engines,
		"enhancementModes": config.EnhancementModes,
		"sourceClasses":    config.SourceClasses,
		"dereverbModes":    config.DereverbModes,
		"outputFormats":    config.OutputFormats,
		"computeTypes":     config.ComputeTypes,
		"failPolicies":     config.FailPolicies,
		"models":           config.WhisperModels,
		"languages":        config.Languages,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.st.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	stats.ActiveJobs = int64(s.jm.CountActive())
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.st.GetAnalytics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analytics": analytics})
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	videos, err := s.st.ListVideos(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if videos == nil {
		videos = []store.Video{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.st.ListChannels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if channels == nil {
		channels = []store.Channel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

func (s *Server) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	channelID := strings.TrimSpace(r.URL.Query().Get("channel_id"))

	items, err := s.st.ListTranscripts(r.Context(), limit, offset, query, channelID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, "invalid search query")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if items == nil {
		items = []store.TranscriptListItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transcripts": items,
		"limit":       limit,
		"offset":      offset,
	})
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	videoID, ok := pathVideoID(w, r)
	if !ok {
		return
	}

	transcript, err := s.st.GetTranscript(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transcript not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	video, err := s.st.GetVideo(r.Context(), videoID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	segments, err := s.st.ListSegments(r.Context(), videoID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	chapters, err := s.st.ListChapters(r.Context(), videoID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if segments == nil {
		segments = []store.Segment{}
	}
	if chapters == nil {
		chapters = []store.Chapter{}
	}

	resp := map[string]any{
		"video":      video,
		"transcript": transcript,
		"segments":   segments,
		"chapters":   chapters,
		"hasAudio":   false,
	}
	if src, err := s.resolveAudioSource(r.Context(), videoID); err == nil && src != nil {
		resp["hasAudio"] = true
		resp["audioKind"] = src.Kind
		resp["audioUrl"] = "/api/media/audio/" + videoID
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
