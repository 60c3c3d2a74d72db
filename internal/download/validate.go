// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/ManuGH/minbar/internal/execx"
	"github.com/ManuGH/minbar/internal/log"
)

// InfoJSON is the subset of the downloader's metadata sidecar the pipeline
// consumes. Raw holds the full blob for persistence.
type InfoJSON struct {
	ID             string    `json:"id"`
	Ext            string    `json:"ext"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Uploader       string    `json:"uploader"`
	UploaderID     string    `json:"uploader_id"`
	ChannelID      string    `json:"channel_id"`
	Duration       float64   `json:"duration"` // seconds
	UploadDate     string    `json:"upload_date"`
	Filesize       int64     `json:"filesize"`
	FilesizeApprox int64     `json:"filesize_approx"`
	WebpageURL     string    `json:"webpage_url"`
	Chapters       []Chapter `json:"chapters"`

	Raw []byte `json:"-"`
}

// Chapter is a provider-declared chapter marker.
type Chapter struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Title     string  `json:"title"`
}

// Result describes a validated download.
type Result struct {
	ID        string
	MediaPath string
	InfoPath  string
	Info      *InfoJSON
	SizeBytes int64
}

// validate reads the info sidecar, stats the media file and cross-checks
// declared size and duration within a 95% tolerance.
func (c *Client) validate(ctx context.Context, outputDir, videoID string) (*Result, error) {
	infoPath := filepath.Join(outputDir, videoID+".info.json")
	raw, err := os.ReadFile(infoPath) // #nosec G304 -- path derived from validated video id
	if err != nil {
		return nil, fmt.Errorf("%w: read info.json: %v", ErrIncompleteDownload, err)
	}

	var info InfoJSON
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: parse info.json: %v", ErrIncompleteDownload, err)
	}
	info.Raw = raw
	if info.ID == "" {
		return nil, fmt.Errorf("%w: info.json has empty id", ErrIncompleteDownload)
	}
	if info.Ext == "" {
		info.Ext = "webm"
	}

	mediaPath := filepath.Join(outputDir, info.ID+"."+info.Ext)
	st, err := os.Stat(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: media file missing: %v", ErrIncompleteDownload, err)
	}

	declared := info.Filesize
	if declared == 0 {
		declared = info.FilesizeApprox
	}
	if declared > 0 && float64(st.Size()) < 0.95*float64(declared) {
		return nil, fmt.Errorf("%w: size %d below 95%% of declared %d",
			ErrIncompleteDownload, st.Size(), declared)
	}

	if info.Duration > 0 {
		probed, err := c.ProbeDuration(ctx, mediaPath)
		if err != nil {
			// A probe failure means unknown duration, not a failed download.
			logger := log.WithComponentFromContext(ctx, "download")
			logger.Warn().
				Err(err).
				Str("event", "download.probe_failed").
				Str("path", mediaPath).
				Msg("could not probe duration, skipping duration check")
		} else if probed < 0.95*info.Duration {
			return nil, fmt.Errorf("%w: duration %.1fs below 95%% of declared %.1fs",
				ErrIncompleteDownload, probed, info.Duration)
		}
	}

	return &Result{
		ID:        info.ID,
		MediaPath: mediaPath,
		InfoPath:  infoPath,
		Info:      &info,
		SizeBytes: st.Size(),
	}, nil
}

// ProbeDuration asks ffprobe for the container duration in seconds.
func (c *Client) ProbeDuration(ctx context.Context, path string) (float64, error) {
	res, err := execx.Run(ctx, []string{
		c.ffprobe(), "-v", "quiet", "-print_format", "json", "-show_format", path,
	}, execx.Options{})
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		return 0, fmt.Errorf("ffprobe exited %d: %s", res.ExitCode, tailLine(res.Stderr))
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return dur, nil
}
