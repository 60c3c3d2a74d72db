// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package download drives yt-dlp and ffprobe: ID resolution, playlist
// expansion, media download with a fallback ladder, and output validation.
package download

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ManuGH/minbar/internal/execx"
	"github.com/ManuGH/minbar/internal/log"
)

var (
	// ErrBadInput marks URLs the downloader could not resolve to an ID.
	ErrBadInput = errors.New("bad input")
	// ErrDownloadFailed marks a ladder exhausted without a successful attempt.
	ErrDownloadFailed = errors.New("download failed")
	// ErrIncompleteDownload marks media that failed size or duration validation.
	ErrIncompleteDownload = errors.New("incomplete download")
	// ErrInterrupted marks a user interrupt observed in downloader output.
	ErrInterrupted = errors.New("download interrupted by user")
)

var httpLine = regexp.MustCompile(`^https?://`)

// Client drives the external downloader binaries.
type Client struct {
	Bin        string // defaults to "yt-dlp"
	FFprobeBin string // defaults to "ffprobe"
}

// NewClient returns a Client with default binary names.
func NewClient() *Client {
	return &Client{Bin: "yt-dlp", FFprobeBin: "ffprobe"}
}

func (c *Client) bin() string {
	if c.Bin == "" {
		return "yt-dlp"
	}
	return c.Bin
}

func (c *Client) ffprobe() string {
	if c.FFprobeBin == "" {
		return "ffprobe"
	}
	return c.FFprobeBin
}

// ResolveID asks the downloader for its canonical ID for a URL. The last
// non-empty stdout line wins.
func (c *Client) ResolveID(ctx context.Context, url string) (string, error) {
	res, err := execx.Run(ctx, []string{
		c.bin(), "--no-playlist", "--skip-download", "--print", "%(id)s", url,
	}, execx.Options{})
	if err != nil {
		return "", fmt.Errorf("resolve id: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%w: resolve id exited %d: %s", ErrBadInput, res.ExitCode, tailLine(res.Stderr))
	}
	id := lastNonEmptyLine(res.Stdout)
	if id == "" {
		return "", fmt.Errorf("%w: empty id for %s", ErrBadInput, url)
	}
	return id, nil
}

// ExpandPlaylist lists the entry URLs of a playlist or channel link. Lines
// that are not http(s) URLs are dropped; duplicates are removed preserving
// order. A URL with no entries expands to itself.
func (c *Client) ExpandPlaylist(ctx context.Context, url string) ([]string, error) {
	res, err := execx.Run(ctx, []string{
		c.bin(), "--yes-playlist", "--flat-playlist", "--print", "%(webpage_url)s", url,
	}, execx.Options{})
	if err != nil {
		return nil, fmt.Errorf("expand playlist: %w", err)
	}

	seen := make(map[string]struct{})
	var urls []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if !httpLine.MatchString(line) {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		urls = append(urls, line)
	}
	if len(urls) == 0 {
		return []string{url}, nil
	}
	return urls, nil
}

// Options control a single media download.
type Options struct {
	OutputDir       string
	AudioFormat     string // yt-dlp format selector; empty picks bestaudio/best
	ForceOverwrites bool
	DownloadVideo   bool // keep the video stream instead of audio-only
}

// commonArgs are shared by every ladder attempt.
func commonArgs(opts Options) []string {
	args := []string{
		"--retries", "5",
		"--fragment-retries", "5",
		"--file-access-retries", "10",
		"--retry-sleep", "3",
		"--socket-timeout", "30",
		"--concurrent-fragments", "1",
		"--force-ipv4",
		"--write-info-json",
		"--continue",
		"--part",
		"--no-playlist",
		"-o", opts.OutputDir + "/%(id)s.%(ext)s",
	}
	if opts.ForceOverwrites {
		args = append(args, "--force-overwrites")
	}
	return args
}

// ladder returns the ordered argument variants; the first attempt with
// exit 0 wins.
func (c *Client) ladder(ctx context.Context, opts Options) [][]string {
	format := opts.AudioFormat
	if format == "" {
		format = "bestaudio/best"
	}
	if opts.DownloadVideo {
		format = "best"
	}
	common := commonArgs(opts)

	variants := [][]string{
		append([]string{"-f", format}, common...),
		append([]string{"-f", "bestaudio[acodec=opus][abr<=96]/bestaudio"}, common...),
		append([]string{"-f", "bestaudio[acodec=opus][abr<=64]/bestaudio/best"}, common...),
	}
	if aria2cAvailable(ctx) {
		variants = append(variants, append([]string{
			"-f", format,
			"--downloader", "aria2c",
			"--downloader-args", "aria2c:-x 4 -s 4 -k 1M",
		}, common...))
	}
	variants = append(variants,
		append([]string{
			"-f", format,
			"--downloader", "ffmpeg",
			"--downloader-args", "ffmpeg_i:-reconnect 1 -reconnect_streamed 1 -reconnect_delay_max 5",
		}, common...),
		append([]string{"-f", "best"}, common...),
	)
	return variants
}

// Download fetches the media for url into opts.OutputDir and validates the
// result. Returns the validated media description.
func (c *Client) Download(ctx context.Context, url, videoID string, opts Options) (*Result, error) {
	logger := log.WithComponentFromContext(ctx, "download")

	var lastRes execx.Result
	attempts := c.ladder(ctx, opts)
	for i, variant := range attempts {
		argv := append([]string{c.bin()}, append(variant, url)...)
		res, err := execx.Run(ctx, argv, execx.Options{Stream: true})
		if err != nil {
			return nil, fmt.Errorf("downloader: %w", err)
		}
		combined := res.Stdout + "\n" + res.Stderr
		if interrupted(combined) {
			return nil, ErrInterrupted
		}
		if res.ExitCode == 0 {
			return c.validate(ctx, opts.OutputDir, videoID)
		}
		lastRes = res
		logger.Warn().
			Str("event", "download.attempt_failed").
			Int("attempt", i+1).
			Int("exit_code", res.ExitCode).
			Msg("download attempt failed, trying next variant")
	}
	return nil, fmt.Errorf("%w: all %d attempts failed: %s",
		ErrDownloadFailed, len(attempts), tailLine(lastRes.Stderr))
}

// interrupted matches user-interrupt markers in downloader output.
func interrupted(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "interrupted by user") ||
		strings.Contains(lower, "keyboardinterrupt")
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func tailLine(s string) string {
	return lastNonEmptyLine(s)
}

// aria2c availability is probed once per process; tests reset it.
var (
	aria2cMu     sync.Mutex
	aria2cProbed bool
	aria2cOK     bool
)

func aria2cAvailable(ctx context.Context) bool {
	aria2cMu.Lock()
	defer aria2cMu.Unlock()
	if aria2cProbed {
		return aria2cOK
	}
	res, err := execx.Run(ctx, []string{"aria2c", "--version"}, execx.Options{})
	aria2cProbed = true
	aria2cOK = err == nil && res.ExitCode == 0
	return aria2cOK
}

// ResetAria2cProbe clears the cached probe result. Test hook.
func ResetAria2cProbe() {
	aria2cMu.Lock()
	defer aria2cMu.Unlock()
	aria2cProbed = false
	aria2cOK = false
}
