// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/ManuGH/minbar/internal/config"
	"github.com/ManuGH/minbar/internal/download"
	"github.com/ManuGH/minbar/internal/enhance"
	"github.com/ManuGH/minbar/internal/log"
	"github.com/ManuGH/minbar/internal/store"
	"github.com/ManuGH/minbar/internal/transcode"
	"github.com/ManuGH/minbar/internal/transcribe"
)

type itemOutcome int

const (
	outcomeProcessed itemOutcome = iota
	outcomeSkipped
)

// processItem handles one input end to end: identity, idempotency check,
// video row lifecycle and the media work itself.
func (e *Engine) processItem(ctx context.Context, cfg config.RunConfig, in Input, force bool) (itemOutcome, error) {
	var (
		videoID string
		err     error
	)
	if in.Kind == KindURL {
		videoID, err = e.dl.ResolveID(ctx, in.URI)
	} else {
		videoID, err = FileVideoID(in.URI)
	}
	if err != nil {
		return 0, fmt.Errorf("derive video id: %w", err)
	}

	ctx = log.ContextWithVideoID(ctx, videoID)
	logger := log.WithComponentFromContext(ctx, "pipeline")

	if force {
		if err := e.st.DeleteVideoData(ctx, videoID); err != nil {
			return 0, fmt.Errorf("clear previous results: %w", err)
		}
	} else {
		has, err := e.st.HasTranscript(ctx, videoID)
		if err != nil {
			return 0, err
		}
		if has {
			logger.Info().Str("event", "pipeline.skip").Msg("Skipping (already transcribed)")
			return outcomeSkipped, nil
		}
	}

	video := store.Video{
		VideoID:           videoID,
		SourceKind:        in.Kind,
		SourceURI:         in.URI,
		Status:            store.StatusProcessing,
		Engine:            cfg.Engine,
		Model:             cfg.ModelPath,
		Language:          cfg.Language,
		OutputFormats:     marshalString(cfg.OutputFormats),
		EnhancementConfig: marshalString(cfg.Enhancement),
	}
	if in.Kind == KindFile {
		video.LocalPath = in.URI
		video.Title = strings.TrimSuffix(filepath.Base(in.URI), filepath.Ext(in.URI))
	}
	if err := e.st.UpsertVideo(ctx, video); err != nil {
		return 0, fmt.Errorf("upsert video: %w", err)
	}

	if err := e.runItem(ctx, cfg, in, videoID, video); err != nil {
		if statusErr := e.st.UpdateVideoStatus(ctx, videoID, store.StatusError, err.Error()); statusErr != nil {
			logger.Error().Err(statusErr).Msg("failed to record error status")
		}
		return 0, err
	}
	return outcomeProcessed, nil
}

// runItem executes the media stages. The video row already exists in
// processing state; this flips it to done inside the final transaction.
func (e *Engine) runItem(ctx context.Context, cfg config.RunConfig, in Input, videoID string, video store.Video) error {
	logger := log.WithComponentFromContext(ctx, "pipeline")

	mediaPath := in.URI
	var dlRes *download.Result
	if in.Kind == KindURL {
		res, err := e.dl.Download(ctx, in.URI, videoID, download.Options{
			OutputDir:       cfg.SourceAudioDir(),
			ForceOverwrites: cfg.ForceOverwrites,
			DownloadVideo:   cfg.DownloadVideo,
		})
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		dlRes = res
		mediaPath = res.MediaPath

		video = applyInfo(video, res.Info)
		if err := e.st.UpsertVideo(ctx, video); err != nil {
			return fmt.Errorf("refresh video metadata: %w", err)
		}
	}

	rawWav := filepath.Join(cfg.AudioDir(), videoID+".wav")
	if err := transcode.ToWav16kMono(ctx, "", mediaPath, rawWav); err != nil {
		return err
	}

	wavForEngine := rawWav
	var (
		enhOutcome *enhance.Outcome
		enhRunErr  error
	)
	if cfg.Enhancement.Mode != config.EnhanceOff {
		if err := enhance.CheckAvailable(ctx, cfg.Enhancement); err != nil {
			enhRunErr = err
		} else {
			workDir := filepath.Join(cfg.EnhanceDir(), videoID)
			enhOutcome, enhRunErr = enhance.New(cfg.Enhancement).Run(ctx, videoID, rawWav, workDir)
		}
		if enhRunErr != nil {
			if cfg.Enhancement.FailPolicy == config.FailPolicyFail {
				return fmt.Errorf("enhancement: %w", enhRunErr)
			}
			logger.Warn().Err(enhRunErr).
				Str("event", "pipeline.enhance_fallback").
				Msg("enhancement failed, falling back to raw audio")
		} else if enhOutcome != nil {
			wavForEngine = enhOutcome.WavPath
		}
	}

	outDir := filepath.Join(cfg.TranscriptsDir(), videoID)
	treq := transcribe.Request{
		WavPath:       wavForEngine,
		Language:      cfg.Language,
		Model:         cfg.ModelPath,
		ComputeType:   cfg.WhisperXComputeType,
		BatchSize:     cfg.WhisperXBatchSize,
		OutputDir:     outDir,
		OutputBase:    videoID,
		OutputFormats: cfg.OutputFormats,
		APIKeys:       cfg.WitAiApiKeys,
	}
	tout, err := e.transcribeOne(ctx, cfg, treq)
	if err != nil {
		return err
	}

	compact, err := compactTranscriptJSON(tout)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	e.cleanupItem(ctx, cfg, in, rawWav, dlRes, enhOutcome)
	artifacts := e.collectArtifacts(videoID, cfg, in, rawWav, dlRes, enhOutcome, tout)

	segments := make([]store.Segment, 0, len(tout.Segments))
	for _, seg := range tout.Segments {
		segments = append(segments, store.Segment{
			VideoID:      videoID,
			StartMs:      seg.StartMs,
			EndMs:        seg.EndMs,
			Text:         seg.Text,
			AvgLogprob:   seg.AvgLogprob,
			NoSpeechProb: seg.NoSpeechProb,
		})
	}

	var chapters []store.Chapter
	if dlRes != nil && dlRes.Info != nil {
		chapters = chaptersFromInfo(videoID, dlRes.Info.Chapters)
	}

	return e.st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.InsertTranscriptTx(ctx, tx, store.Transcript{
			VideoID:   videoID,
			Model:     cfg.ModelPath,
			Language:  tout.Language,
			Text:      transcriptText(tout),
			WordsJSON: compact,
		}); err != nil {
			return err
		}
		if err := store.InsertSegmentsTx(ctx, tx, segments); err != nil {
			return err
		}
		if len(chapters) > 0 {
			if err := store.InsertChaptersTx(ctx, tx, chapters); err != nil {
				return err
			}
		}
		if err := store.InsertArtifactsTx(ctx, tx, artifacts); err != nil {
			return err
		}
		if err := persistEnhancementTx(ctx, tx, videoID, cfg, enhOutcome, enhRunErr); err != nil {
			return err
		}
		return store.UpdateVideoStatusTx(ctx, tx, videoID, store.StatusDone, "")
	})
}

func (e *Engine) transcribeOne(ctx context.Context, cfg config.RunConfig, req transcribe.Request) (*transcribe.Output, error) {
	if cfg.Engine == config.EngineTafrigh {
		out, err := transcribe.RunTafrigh(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := writeTafrighOutputs(req, out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if err := transcribe.EnsureModel(ctx, cfg.ModelPath, cfg.AutoDownloadModel, cfg.ModelDownloadURL); err != nil {
		return nil, err
	}
	return transcribe.RunWhisperX(ctx, req)
}

// writeTafrighOutputs materializes json and txt files for the cloud engine,
// which has no on-disk output of its own.
func writeTafrighOutputs(req transcribe.Request, out *transcribe.Output) error {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	doc, err := compactTranscriptJSON(out)
	if err != nil {
		return err
	}
	jsonPath := filepath.Join(req.OutputDir, req.OutputBase+".json")
	if err := os.WriteFile(jsonPath, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write transcript json: %w", err)
	}
	out.JSONPath = jsonPath

	for _, f := range req.OutputFormats {
		if strings.EqualFold(strings.TrimSpace(f), "txt") {
			textPath := filepath.Join(req.OutputDir, req.OutputBase+".txt")
			if err := os.WriteFile(textPath, []byte(transcriptText(out)+"\n"), 0o644); err != nil {
				return fmt.Errorf("write transcript txt: %w", err)
			}
			out.TextPath = textPath
			break
		}
	}
	return nil
}

// compactTranscriptJSON renders the canonical word-level document stored in
// the transcripts table: {"language":...,"words":[{"b":..,"e":..,"w":..}]}.
// Words are ordered by start time.
func compactTranscriptJSON(out *transcribe.Output) (string, error) {
	doc := struct {
		Language string           `json:"language"`
		Words    []transcribe.Word `json:"words"`
	}{Language: out.Language, Words: out.Words}
	if doc.Words == nil {
		doc.Words = []transcribe.Word{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func transcriptText(out *transcribe.Output) string {
	parts := make([]string, 0, len(out.Segments))
	for _, seg := range out.Segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanupItem removes intermediate files according to the keep flags. Runs
// before artifact collection so only surviving files are recorded.
func (e *Engine) cleanupItem(ctx context.Context, cfg config.RunConfig, in Input, rawWav string, dlRes *download.Result, enhOutcome *enhance.Outcome) {
	logger := log.WithComponentFromContext(ctx, "pipeline")
	remove := func(path string) {
		if path == "" {
			return
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", path).Msg("cleanup failed")
		}
	}

	if !cfg.KeepWav {
		remove(rawWav)
	}
	if !cfg.KeepSourceAudio && in.Kind == KindURL && dlRes != nil {
		remove(dlRes.MediaPath)
		remove(dlRes.InfoPath)
	}
	if enhOutcome != nil && !cfg.Enhancement.KeepIntermediate {
		for _, a := range enhOutcome.Artifacts {
			switch a.Kind {
			case enhance.KindAnalysisJSON, enhance.KindResultJSON, enhance.KindEnhancedWav:
				remove(a.Path)
			}
		}
	}
}

// collectArtifacts builds the artifact rows for every file that survived
// cleanup.
func (e *Engine) collectArtifacts(videoID string, cfg config.RunConfig, in Input, rawWav string, dlRes *download.Result, enhOutcome *enhance.Outcome, tout *transcribe.Output) []store.Artifact {
	var artifacts []store.Artifact
	add := func(kind, path string) {
		if path == "" {
			return
		}
		st, err := os.Stat(path)
		if err != nil {
			return
		}
		artifacts = append(artifacts, store.Artifact{
			VideoID:   videoID,
			Kind:      kind,
			URI:       path,
			SizeBytes: st.Size(),
		})
	}

	if in.Kind == KindURL && dlRes != nil {
		add(store.ArtifactSourceAudio, dlRes.MediaPath)
		add(store.ArtifactSourceInfoJSON, dlRes.InfoPath)
	}
	add(store.ArtifactAudioWav, rawWav)
	if enhOutcome != nil {
		for _, a := range enhOutcome.Artifacts {
			add(a.Kind, a.Path)
		}
	}
	add(store.ArtifactTranscriptJSON, tout.JSONPath)
	add(store.ArtifactTranscriptTxt, tout.TextPath)
	return artifacts
}

// persistEnhancementTx records the enhancement run and its regime telemetry.
// A fallback after a failed run is recorded as an error run; speech ratio is
// only known at the whole-file level, so segment rows leave it unset.
func persistEnhancementTx(ctx context.Context, tx *sql.Tx, videoID string, cfg config.RunConfig, outcome *enhance.Outcome, runErr error) error {
	if outcome == nil && runErr == nil {
		return nil
	}

	run := store.EnhancementRun{
		VideoID:     videoID,
		SourceClass: cfg.Enhancement.SourceClass,
		ConfigJSON:  marshalString(cfg.Enhancement),
	}
	if runErr != nil {
		run.Status = "error"
		run.Mode = cfg.Enhancement.Mode
		run.Error = runErr.Error()
	} else {
		run.Applied = outcome.Applied
		run.Mode = outcome.Mode
		run.StartedAt = outcome.StartedAt
		run.FinishedAt = outcome.FinishedAt
		run.SkipReason = outcome.SkipReason
		if outcome.Applied {
			run.Status = "completed"
		} else {
			run.Status = "skipped"
		}
		if a := outcome.Analysis; a != nil {
			run.SnrDb = a.SnrDb
			speech := a.SpeechRatio
			run.SpeechRatio = &speech
			regimes := int64(a.RegimeCount)
			run.RegimeCount = &regimes
			analysisMs := a.AnalysisDuration
			run.AnalysisDurationMs = &analysisMs
			run.VersionsJSON = marshalString(a.Versions)
		}
		if r := outcome.Result; r != nil {
			processingMs := r.ProcessingMs
			run.ProcessingDurationMs = &processingMs
			run.MetricsJSON = marshalString(r)
		}
	}

	runID, err := store.InsertEnhancementRunTx(ctx, tx, run)
	if err != nil {
		return err
	}
	if runErr != nil || outcome.Result == nil {
		return nil
	}

	regimeByIndex := make(map[int]enhance.Regime)
	if outcome.Analysis != nil {
		for _, r := range outcome.Analysis.Regimes {
			regimeByIndex[r.Index] = r
		}
	}
	segments := make([]store.EnhancementSegment, 0, len(outcome.Result.Segments))
	for _, seg := range outcome.Result.Segments {
		atten := seg.AttenLimDb
		processingMs := seg.ProcessingMs
		row := store.EnhancementSegment{
			RunID:           runID,
			SegmentIndex:    seg.SegmentIndex,
			StartMs:         seg.StartMs,
			EndMs:           seg.EndMs,
			DereverbApplied: seg.DereverbApplied,
			DenoiseApplied:  seg.DenoiseApplied,
			AttenLimDb:      &atten,
			ProcessingMs:    &processingMs,
		}
		if regime, ok := regimeByIndex[seg.SegmentIndex]; ok {
			row.NoiseRmsDb = regime.NoiseRmsDb
			row.SpectralCentroidHz = regime.SpectralCentroidHz
		}
		segments = append(segments, row)
	}
	return store.InsertEnhancementSegmentsTx(ctx, tx, segments)
}

// applyInfo folds the downloader's metadata sidecar into the video row.
func applyInfo(video store.Video, info *download.InfoJSON) store.Video {
	if info == nil {
		return video
	}
	video.Title = info.Title
	video.Description = info.Description
	video.UploaderID = firstNonEmpty(info.UploaderID, info.Uploader)
	video.ChannelID = info.ChannelID
	video.UploadDate = info.UploadDate
	video.RawMetadata = string(info.Raw)
	if info.Duration > 0 {
		durationMs := int64(math.Round(info.Duration * 1000))
		video.DurationMs = &durationMs
	}
	return video
}

func chaptersFromInfo(videoID string, chapters []download.Chapter) []store.Chapter {
	rows := make([]store.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		row := store.Chapter{
			VideoID: videoID,
			StartMs: int64(math.Round(ch.StartTime * 1000)),
			Title:   ch.Title,
		}
		if ch.EndTime > 0 {
			endMs := int64(math.Round(ch.EndTime * 1000))
			row.EndMs = &endMs
		}
		rows = append(rows, row)
	}
	return rows
}

func marshalString(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
