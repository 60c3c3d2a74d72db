// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/ManuGH/minbar/internal/config"
	"github.com/ManuGH/minbar/internal/jobs"
	"github.com/ManuGH/minbar/internal/pipeline"
	"github.com/ManuGH/minbar/internal/store"
)

// CreateJobRequest is the POST /api/jobs payload. Input is a URL when it
// carries an http(s) scheme, a local path otherwise.
type CreateJobRequest struct {
	Input     string             `json:"input"`
	Force     bool               `json:"force,omitempty"`
	Overrides pipeline.Overrides `json:"overrides"`
}

func (req *CreateJobRequest) validate() error {
	req.Input = strings.TrimSpace(req.Input)
	if req.Input == "" {
		return errors.New("input is required")
	}
	return validateOverrides(req.Overrides)
}

// kind classifies the input as a URL or a local file.
func (req *CreateJobRequest) kind() string {
	if strings.HasPrefix(req.Input, "http://") || strings.HasPrefix(req.Input, "https://") {
		return pipeline.KindURL
	}
	return pipeline.KindFile
}

func validateOverrides(ov pipeline.Overrides) error {
	checks := []struct {
		value   string
		allowed []string
		name    string
	}{
		{ov.Engine, config.Engines, "engine"},
		{ov.EnhanceMode, config.EnhancementModes, "enhancementMode"},
		{ov.SourceClass, config.SourceClasses, "sourceClass"},
		{ov.DereverbMode, config.DereverbModes, "dereverbMode"},
		{ov.FailPolicy, config.FailPolicies, "failPolicy"},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		if !contains(c.allowed, c.value) {
			return fmt.Errorf("invalid %s %q", c.name, c.value)
		}
	}
	for _, f := range ov.OutputFormats {
		if !contains(config.OutputFormats, strings.ToLower(strings.TrimSpace(f))) {
			return fmt.Errorf("invalid output format %q", f)
		}
	}
	if ov.AttenLimDb != nil && (*ov.AttenLimDb < 0 || *ov.AttenLimDb > 60) {
		return fmt.Errorf("attenLimDb %g out of range [0, 60]", *ov.AttenLimDb)
	}
	if ov.SnrSkipThresholdDb != nil && (*ov.SnrSkipThresholdDb < -20 || *ov.SnrSkipThresholdDb > 60) {
		return fmt.Errorf("snrSkipThresholdDb %g out of range [-20, 60]", *ov.SnrSkipThresholdDb)
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if existing, ok := s.jm.FindActiveByInput(req.Input); ok {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "an active job already exists for this input",
			"job":   existing,
		})
		return
	}

	job := s.jm.Create(req.kind(), req.Input, req.Force, req.Overrides)
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list := s.jm.List()
	if list == nil {
		list = []jobs.Job{}
	}
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jm.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// retryableStatuses are the video states a retry may start from.
var retryableStatuses = map[string]bool{
	store.StatusError:      true,
	store.StatusFailed:     true,
	store.StatusProcessing: true,
}

// handleRetryVideo re-runs a known video with force, carrying over the
// engine parameters recorded on its row.
func (s *Server) handleRetryVideo(w http.ResponseWriter, r *http.Request) {
	videoID, ok := pathVideoID(w, r)
	if !ok {
		return
	}

	video, err := s.st.GetVideo(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "video not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !retryableStatuses[video.Status] {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("video status %q is not retryable", video.Status))
		return
	}
	if video.SourceURI == "" {
		writeError(w, http.StatusUnprocessableEntity, "video has no retryable source")
		return
	}
	if existing, ok := s.jm.FindActiveByInput(video.SourceURI); ok {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "an active job already exists for this video",
			"job":   existing,
		})
		return
	}

	overrides := carryOverOverrides(r, s, video)
	job := s.jm.Create(video.SourceKind, video.SourceURI, true, overrides)
	writeJSON(w, http.StatusCreated, job)
}

// carryOverOverrides reconstructs the previous run's parameters from the
// video row, preferring the latest enhancement run's recorded config.
func carryOverOverrides(r *http.Request, s *Server, video *store.Video) pipeline.Overrides {
	ov := pipeline.Overrides{
		Engine:   video.Engine,
		Language: video.Language,
		Model:    video.Model,
	}
	if video.OutputFormats != "" {
		var formats []string
		if err := json.Unmarshal([]byte(video.OutputFormats), &formats); err == nil {
			ov.OutputFormats = formats
		}
	}

	cfgJSON := video.EnhancementConfig
	if run, err := s.st.LatestEnhancementRun(r.Context(), video.VideoID); err == nil && run != nil && run.ConfigJSON != "" {
		cfgJSON = run.ConfigJSON
	}
	if cfgJSON == "" {
		return ov
	}

	var enh config.EnhancementConfig
	if err := json.Unmarshal([]byte(cfgJSON), &enh); err != nil {
		return ov
	}
	ov.EnhanceMode = enh.Mode
	ov.SourceClass = enh.SourceClass
	ov.DereverbMode = enh.DereverbMode
	ov.FailPolicy = enh.FailPolicy
	atten := enh.AttenLimDb
	snr := enh.SnrSkipThresholdDb
	ov.AttenLimDb = &atten
	ov.SnrSkipThresholdDb = &snr
	return ov
}
