// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/minbar/internal/pipeline"
	"github.com/ManuGH/minbar/internal/store"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// splitCSV splits a comma-separated flag value, dropping empty entries.
func splitCSV(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func cmdRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (JSON or YAML)")
	var paths, urls stringList
	fs.Var(&paths, "paths", "file or directory to process (repeatable)")
	fs.Var(&urls, "url", "media or playlist URL (repeatable)")
	urlsFile := fs.String("urls", "", "file with one URL per line, '#' comments")
	force := fs.Bool("force", false, "re-process inputs that already have a transcript")
	dryRun := fs.Bool("dry-run", false, "expand inputs and print them without processing")
	jobsN := fs.Int("jobs", 0, "parallel items (overrides config)")
	engine := fs.String("engine", "", "transcription engine (whisperx, tafrigh)")
	language := fs.String("language", "", "transcription language, or 'auto'")
	model := fs.String("model", "", "model name or path")
	computeType := fs.String("whisperx-compute-type", "", "whisperx compute type (int8, float16, float32)")
	batchSize := fs.Int("whisperx-batch-size", 0, "whisperx batch size")
	autoDownload := fs.Bool("auto-download-model", false, "download a missing model file")
	modelURL := fs.String("model-download-url", "", "URL to fetch a missing model file from")
	outputFormats := fs.String("output-formats", "", "comma-separated transcript formats")
	witKeys := fs.String("wit-ai-api-keys", "", "comma-separated API keys for the tafrigh engine")
	keepWav := fs.Bool("keep-wav", false, "keep the intermediate WAV")
	keepSourceAudio := fs.Bool("keep-source-audio", true, "keep downloaded source media")
	downloadVideo := fs.Bool("download-video", false, "download full video instead of audio only")
	enhanceMode := fs.String("enhance", "", "enhancement mode (off, auto, on, analyze-only)")
	sourceClass := fs.String("source-class", "", "acoustic source class")
	dereverb := fs.String("dereverb", "", "dereverb mode (off, auto, on)")
	failPolicy := fs.String("fail-policy", "", "enhancement fail policy (fallback_raw, fail)")
	attenLimDb := fs.Float64("atten-lim-db", -1, "attenuation limit override in dB")
	snrSkip := fs.Float64("snr-skip-threshold-db", -1000, "SNR skip threshold override in dB")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	configureLogging(cfg)
	if *jobsN > 0 {
		cfg.Jobs = *jobsN
	}

	// Flags with meaningful zero values only apply when given explicitly.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "keep-wav":
			cfg.KeepWav = *keepWav
		case "keep-source-audio":
			cfg.KeepSourceAudio = *keepSourceAudio
		case "download-video":
			cfg.DownloadVideo = *downloadVideo
		case "auto-download-model":
			cfg.AutoDownloadModel = *autoDownload
		case "whisperx-batch-size":
			cfg.WhisperXBatchSize = *batchSize
		}
	})
	if *computeType != "" {
		cfg.WhisperXComputeType = *computeType
	}
	if *modelURL != "" {
		cfg.ModelDownloadURL = *modelURL
	}

	overrides := pipeline.Overrides{
		Engine:        *engine,
		Language:      *language,
		Model:         *model,
		OutputFormats: splitCSV(*outputFormats),
		WitAiApiKeys:  splitCSV(*witKeys),
		EnhanceMode:   *enhanceMode,
		SourceClass:   *sourceClass,
		DereverbMode:  *dereverb,
		FailPolicy:    *failPolicy,
	}
	if *attenLimDb >= 0 {
		overrides.AttenLimDb = attenLimDb
	}
	if *snrSkip > -1000 {
		overrides.SnrSkipThresholdDb = snrSkip
	}

	req := pipeline.Request{
		Paths:     append([]string(paths), fs.Args()...),
		URLs:      urls,
		URLsFile:  *urlsFile,
		Force:     *force,
		Overrides: overrides,
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	engineRun := pipeline.New(cfg, st)
	if *dryRun {
		inputs, err := engineRun.ExpandInputs(ctx, req)
		if err != nil {
			return err
		}
		for _, in := range inputs {
			fmt.Printf("%s\t%s\n", in.Kind, in.URI)
		}
		return nil
	}

	summary, err := engineRun.Run(ctx, req)
	if summary != nil {
		fmt.Printf("processed %d, skipped %d, failed %d\n",
			summary.Processed, summary.Skipped, summary.Failed)
		for _, msg := range summary.Errors {
			fmt.Fprintln(os.Stderr, " -", msg)
		}
	}
	return err
}
