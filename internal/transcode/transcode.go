// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transcode normalizes media to the WAV layout the engines expect.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/minbar/internal/execx"
)

// ErrTranscodeFailed marks a non-zero ffmpeg exit, carrying the stderr tail.
var ErrTranscodeFailed = errors.New("transcode failed")

// ToWav16kMono converts any input to 16 kHz mono 16-bit signed PCM WAV at
// outPath.
func ToWav16kMono(ctx context.Context, ffmpegBin, inPath, outPath string) error {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	res, err := execx.Run(ctx, []string{
		ffmpegBin, "-y", "-hide_banner", "-loglevel", "error",
		"-i", inPath,
		"-vn", "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le",
		outPath,
	}, execx.Options{})
	if err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: ffmpeg exited %d: %s", ErrTranscodeFailed, res.ExitCode, res.Stderr)
	}
	return nil
}
