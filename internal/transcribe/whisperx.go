// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ManuGH/minbar/internal/execx"
	"github.com/ManuGH/minbar/internal/log"
)

// EnvWhisperXBin overrides whisperx binary resolution.
const EnvWhisperXBin = "WHISPERX_BIN"

// Candidate in-tree virtual-environment locations, tried after PATH.
var venvCandidates = []string{
	".venv/bin/whisperx",
	"venv/bin/whisperx",
}

var (
	whisperxMu  sync.Mutex
	whisperxBin string
)

// resolveWhisperX picks the whisperx binary: env var, PATH, then known
// venv paths. The first hit is cached for the process lifetime.
func resolveWhisperX() (string, error) {
	whisperxMu.Lock()
	defer whisperxMu.Unlock()
	if whisperxBin != "" {
		return whisperxBin, nil
	}

	if env := strings.TrimSpace(os.Getenv(EnvWhisperXBin)); env != "" {
		whisperxBin = env
		return whisperxBin, nil
	}
	if path, err := exec.LookPath("whisperx"); err == nil {
		whisperxBin = path
		return whisperxBin, nil
	}
	for _, candidate := range venvCandidates {
		if st, err := os.Stat(candidate); err == nil && st.Mode().IsRegular() {
			whisperxBin = candidate
			return whisperxBin, nil
		}
	}
	return "", fmt.Errorf("%w: no whisperx binary found", ErrTranscriptionFailed)
}

// ResetWhisperXCache clears the cached binary selection. Test hook.
func ResetWhisperXCache() {
	whisperxMu.Lock()
	defer whisperxMu.Unlock()
	whisperxBin = ""
}

// whisperxArgs builds the CLI invocation. Language is omitted when empty or
// "auto" so the engine detects it.
func whisperxArgs(bin string, req Request) []string {
	args := []string{
		bin, req.WavPath,
		"--model", req.Model,
	}
	if lang := strings.TrimSpace(req.Language); lang != "" && lang != "auto" {
		args = append(args, "--language", lang)
	}
	batch := req.BatchSize
	if batch < 1 {
		batch = 1
	}
	args = append(args,
		"--output_dir", req.OutputDir,
		"--output_format", "all",
		"--compute_type", req.ComputeType,
		"--batch_size", strconv.Itoa(batch),
		"--vad_method", "silero",
		"--print_progress", "True",
	)
	return args
}

// RunWhisperX invokes the local whisperx CLI and normalizes its JSON output.
func RunWhisperX(ctx context.Context, req Request) (*Output, error) {
	bin, err := resolveWhisperX()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	res, err := execx.Run(ctx, whisperxArgs(bin, req), execx.Options{
		Stream: true,
		Env: map[string]string{
			"PYTHONWARNINGS": "ignore::UserWarning:pyannote.audio.core.io",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisperx: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: whisperx exited %d: %s",
			ErrTranscriptionFailed, res.ExitCode, res.Stderr)
	}

	jsonPath, textPath, err := collectOutputs(ctx, req)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(jsonPath) // #nosec G304 -- path constructed above
	if err != nil {
		return nil, fmt.Errorf("%w: read engine json: %v", ErrTranscriptionFailed, err)
	}
	out, err := ParseEngineJSON(raw, req.Language)
	if err != nil {
		return nil, fmt.Errorf("%w: parse engine json: %v", ErrTranscriptionFailed, err)
	}
	out.JSONPath = jsonPath
	out.TextPath = textPath
	return out, nil
}

// engineFormats is everything whisperx emits with --output_format all.
var engineFormats = []string{"json", "txt", "srt", "vtt", "tsv"}

// collectOutputs renames requested-format files from the input stem to the
// output base and deletes the rest. JSON is always kept.
func collectOutputs(ctx context.Context, req Request) (jsonPath, textPath string, err error) {
	logger := log.WithComponentFromContext(ctx, "transcribe")
	stem := strings.TrimSuffix(filepath.Base(req.WavPath), filepath.Ext(req.WavPath))

	requested := make(map[string]bool, len(req.OutputFormats))
	for _, f := range req.OutputFormats {
		requested[strings.ToLower(strings.TrimSpace(f))] = true
	}
	requested["json"] = true

	for _, ext := range engineFormats {
		src := filepath.Join(req.OutputDir, stem+"."+ext)
		if _, statErr := os.Stat(src); statErr != nil {
			continue
		}
		if !requested[ext] {
			if rmErr := os.Remove(src); rmErr != nil {
				logger.Warn().Err(rmErr).Str("path", src).Msg("failed to remove unrequested output")
			}
			continue
		}
		dst := filepath.Join(req.OutputDir, req.OutputBase+"."+ext)
		if src != dst {
			_ = os.Remove(dst)
			if renameErr := os.Rename(src, dst); renameErr != nil {
				return "", "", fmt.Errorf("rename %s output: %w", ext, renameErr)
			}
		}
		switch ext {
		case "json":
			jsonPath = dst
		case "txt":
			textPath = dst
		}
	}

	if jsonPath == "" {
		return "", "", fmt.Errorf("%w: engine wrote no json output for stem %q",
			ErrTranscriptionFailed, stem)
	}
	return jsonPath, textPath, nil
}
