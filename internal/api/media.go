// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/minbar/internal/store"
)

// Audio source kinds, in resolution priority order.
var audioKindPriority = []string{
	store.ArtifactSourceAudio,
	store.ArtifactAudioWavEnhanced,
	store.ArtifactAudioWav,
}

// audioSource is a resolved playable file for a video.
type audioSource struct {
	Path string
	Kind string
}

// Resolution results are cached briefly; the artifact table rarely changes
// for finished videos but every seek issues a new request.
const (
	audioCacheTTL = 30 * time.Second
	audioCacheMax = 5000
)

type audioCacheEntry struct {
	src     *audioSource
	expires time.Time
}

var (
	audioCacheMu sync.Mutex
	audioCache   = make(map[string]audioCacheEntry)
)

// ResetAudioSourceCache clears the resolver cache. Test hook.
func ResetAudioSourceCache() {
	audioCacheMu.Lock()
	audioCache = make(map[string]audioCacheEntry)
	audioCacheMu.Unlock()
}

// resolveAudioSource picks the best playable file for a video: downloaded
// source audio, then enhanced WAV, then raw WAV, then the original local
// file. Returns nil when nothing playable exists on disk.
func (s *Server) resolveAudioSource(ctx context.Context, videoID string) (*audioSource, error) {
	audioCacheMu.Lock()
	if entry, ok := audioCache[videoID]; ok && time.Now().Before(entry.expires) {
		audioCacheMu.Unlock()
		return entry.src, nil
	}
	audioCacheMu.Unlock()

	src, err := s.lookupAudioSource(ctx, videoID)
	if err != nil {
		return nil, err
	}

	audioCacheMu.Lock()
	if len(audioCache) >= audioCacheMax {
		evictOldestLocked()
	}
	audioCache[videoID] = audioCacheEntry{src: src, expires: time.Now().Add(audioCacheTTL)}
	audioCacheMu.Unlock()
	return src, nil
}

// evictOldestLocked drops the entry closest to expiry. Caller holds the lock.
func evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range audioCache {
		if oldestKey == "" || entry.expires.Before(oldest) {
			oldestKey = key
			oldest = entry.expires
		}
	}
	if oldestKey != "" {
		delete(audioCache, oldestKey)
	}
}

func (s *Server) lookupAudioSource(ctx context.Context, videoID string) (*audioSource, error) {
	artifacts, err := s.st.ListArtifacts(ctx, videoID)
	if err != nil {
		return nil, err
	}
	byKind := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		if _, ok := byKind[a.Kind]; !ok {
			byKind[a.Kind] = a.URI
		}
	}
	for _, kind := range audioKindPriority {
		path, ok := byKind[kind]
		if !ok {
			continue
		}
		if st, err := os.Stat(path); err == nil && st.Mode().IsRegular() {
			return &audioSource{Path: path, Kind: kind}, nil
		}
	}

	video, err := s.st.GetVideo(ctx, videoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if video.LocalPath != "" {
		if st, err := os.Stat(video.LocalPath); err == nil && st.Mode().IsRegular() {
			return &audioSource{Path: video.LocalPath, Kind: "local_path"}, nil
		}
	}
	return nil, nil
}

// contentTypeFor maps common media extensions; everything else streams as
// octets.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// byteRange is a resolved inclusive range within a file of known size.
type byteRange struct {
	start, end int64
}

var errUnsatisfiableRange = errors.New("unsatisfiable range")

// parseRange handles single ranges of the forms "bytes=a-b", "bytes=a-" and
// "bytes=-n". Multi-range requests fall back to a full response.
func parseRange(header string, size int64) (*byteRange, error) {
	if header == "" || !strings.HasPrefix(header, "bytes=") {
		return nil, nil
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		return nil, nil
	}
	dash := strings.Index(spec, "-")
	if dash < 0 {
		return nil, nil
	}
	startStr, endStr := strings.TrimSpace(spec[:dash]), strings.TrimSpace(spec[dash+1:])

	if startStr == "" {
		// Suffix form: last n bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil, errUnsatisfiableRange
		}
		if n > size {
			n = size
		}
		return &byteRange{start: size - n, end: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return nil, errUnsatisfiableRange
	}
	end := size - 1
	if endStr != "" {
		e, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || e < start {
			return nil, errUnsatisfiableRange
		}
		if e < end {
			end = e
		}
	}
	return &byteRange{start: start, end: end}, nil
}

// handleAudio streams the resolved audio file with single-range support.
// HEAD returns headers only.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	videoID, ok := pathVideoID(w, r)
	if !ok {
		return
	}

	src, err := s.resolveAudioSource(r.Context(), videoID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if src == nil {
		writeError(w, http.StatusNotFound, "no audio available")
		return
	}

	f, err := os.Open(src.Path) // #nosec G304 -- path from the artifact store
	if err != nil {
		writeError(w, http.StatusNotFound, "no audio available")
		return
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	size := st.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentTypeFor(src.Path))

	rng, err := parseRange(r.Header.Get("Range"), size)
	if errors.Is(err, errUnsatisfiableRange) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if rng == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = io.Copy(w, f)
		return
	}

	length := rng.end - rng.start + 1
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := f.Seek(rng.start, io.SeekStart); err != nil {
		return
	}
	_, _ = io.CopyN(w, f, length)
}
