// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/minbar/internal/log"
)

// ErrNoInputs marks a request that expanded to zero work items.
var ErrNoInputs = errors.New("no inputs to process")

// Walk guards for directory inputs.
const (
	maxWalkDepth = 10
	maxWalkFiles = 10000
)

// Input source kinds.
const (
	KindURL  = "url"
	KindFile = "file"
)

// Input is one expanded work item.
type Input struct {
	Kind string // "url" | "file"
	URI  string // URL, or absolute local path
}

// Request describes one batch of work before expansion.
type Request struct {
	Paths     []string // files or directories
	URLs      []string
	URLsFile  string // one URL per line, '#' comments
	Force     bool
	Overrides Overrides
}

// mediaExts limits directory walks to media files. Explicitly named files
// bypass the filter.
var mediaExts = map[string]struct{}{
	".mp3": {}, ".m4a": {}, ".aac": {}, ".ogg": {}, ".opus": {}, ".wav": {},
	".flac": {}, ".wma": {}, ".webm": {}, ".mp4": {}, ".mkv": {}, ".avi": {},
	".mov": {}, ".ts": {},
}

// ExpandInputs resolves paths, URL flags, the URLs file and playlists into a
// deduplicated ordered input list.
func (e *Engine) ExpandInputs(ctx context.Context, req Request) ([]Input, error) {
	logger := log.WithComponentFromContext(ctx, "pipeline")

	seen := make(map[string]struct{})
	var inputs []Input
	add := func(in Input) {
		key := in.Kind + "\x00" + in.URI
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		inputs = append(inputs, in)
	}

	for _, p := range req.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve path %s: %w", p, err)
		}
		st, err := os.Lstat(abs)
		if err != nil {
			logger.Warn().Err(err).Str("path", p).Msg("skipping unreadable path")
			continue
		}
		if st.IsDir() {
			files, err := walkMediaDir(abs, logger)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				add(Input{Kind: KindFile, URI: f})
			}
			continue
		}
		if st.Mode()&os.ModeSymlink != 0 {
			logger.Warn().Str("path", abs).Msg("skipping symlink input")
			continue
		}
		add(Input{Kind: KindFile, URI: abs})
	}

	urls := append([]string{}, req.URLs...)
	if req.URLsFile != "" {
		fromFile, err := readURLsFile(req.URLsFile)
		if err != nil {
			return nil, err
		}
		urls = append(urls, fromFile...)
	}
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		expanded, err := e.dl.ExpandPlaylist(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", u, err)
		}
		for _, entry := range expanded {
			add(Input{Kind: KindURL, URI: entry})
		}
	}

	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	return inputs, nil
}

// walkMediaDir collects media files under root, bounded in depth and count.
// Hitting the file cap truncates the result with a warning rather than
// failing the batch. Symlinks are skipped with a warning.
func walkMediaDir(root string, logger zerolog.Logger) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		depth := strings.Count(rel, string(filepath.Separator))
		if d.IsDir() {
			if depth >= maxWalkDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			logger.Warn().Str("path", path).Msg("skipping symlink during walk")
			return nil
		}
		if _, ok := mediaExts[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		if len(files) >= maxWalkFiles {
			logger.Warn().
				Str("root", root).
				Int("max_files", maxWalkFiles).
				Msg("directory walk truncated at file cap")
			return fs.SkipAll
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func readURLsFile(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	return urls, nil
}

// FileVideoID derives a stable 32-hex identifier for a local media file from
// its basename, size and mtime truncated to milliseconds. Renaming or
// touching the file yields a new identity on purpose.
func FileVideoID(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	mtimeMs := st.ModTime().UnixMilli()
	seed := fmt.Sprintf("%s-%d-%d", filepath.Base(path), st.Size(), mtimeMs)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:32], nil
}
