// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package execx spawns external CLIs with captured or streamed output.
package execx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var subprocessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "minbar_subprocess_duration_seconds",
	Help:    "Wall-clock duration of external CLI invocations",
	Buckets: prometheus.ExponentialBuckets(0.05, 4, 10),
}, []string{"tool"})

// TailLimit bounds the rolling stderr/stdout tail kept per stream.
const TailLimit = 64 * 1024

// Options control subprocess spawning.
type Options struct {
	Dir string            // working directory; empty keeps the caller's
	Env map[string]string // overlay merged over the process environment
	// Stream forwards output chunks to the host's standard streams as they
	// arrive, keeping only a bounded tail per stream. When false, stdout and
	// stderr are captured in full.
	Stream bool
}

// Result carries the outcome of a finished subprocess.
type Result struct {
	Stdout   string // full capture, or bounded tail in stream mode
	Stderr   string
	ExitCode int
}

// Run spawns argv[0] with argv[1:] as arguments. No shell is involved.
// A non-zero exit is not an error; the caller inspects ExitCode. The
// returned error covers spawn failures and context cancellation.
func Run(ctx context.Context, argv []string, opts Options) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("execx: empty argv")
	}

	start := time.Now()
	defer func() {
		subprocessDuration.WithLabelValues(argv[0]).Observe(time.Since(start).Seconds())
	}()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- explicit argv vector
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		env := os.Environ()
		for k, v := range opts.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, err
	}

	var outTail, errTail tailWriter
	var outSink, errSink io.Writer = &outTail, &errTail
	if opts.Stream {
		outSink = io.MultiWriter(os.Stdout, &outTail)
		errSink = io.MultiWriter(os.Stderr, &errTail)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, err
	}

	// Reader goroutines keep the child from blocking on full pipes.
	var ioWg sync.WaitGroup
	ioWg.Add(2)
	go func() {
		defer ioWg.Done()
		_, _ = io.Copy(outSink, stdout)
	}()
	go func() {
		defer ioWg.Done()
		_, _ = io.Copy(errSink, stderr)
	}()

	waitErr := cmd.Wait()
	ioWg.Wait()

	res := Result{
		Stdout: outTail.String(),
		Stderr: errTail.String(),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, nil
		}
		return res, waitErr
	}
	return res, nil
}

// tailWriter keeps at most TailLimit trailing bytes of everything written.
type tailWriter struct {
	buf bytes.Buffer
}

func (t *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n >= TailLimit {
		t.buf.Reset()
		t.buf.Write(p[n-TailLimit:])
		return n, nil
	}
	if over := t.buf.Len() + n - TailLimit; over > 0 {
		trimmed := t.buf.Bytes()[over:]
		rest := make([]byte, len(trimmed))
		copy(rest, trimmed)
		t.buf.Reset()
		t.buf.Write(rest)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailWriter) String() string {
	return t.buf.String()
}
