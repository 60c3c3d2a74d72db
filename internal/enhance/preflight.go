// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package enhance

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ManuGH/minbar/internal/config"
	"github.com/ManuGH/minbar/internal/execx"
	"github.com/ManuGH/minbar/internal/fsutil"
)

// preflight success is memoized per resolved-path tuple; any path change
// bypasses the memo.
var (
	preflightMu sync.Mutex
	preflightOK = make(map[string]struct{})
)

// CheckAvailable verifies the Python runtime, the helper scripts, the module
// health check and (unless analyze-only) the deep-filter binary.
func CheckAvailable(ctx context.Context, cfg config.EnhancementConfig) error {
	key := strings.Join([]string{
		cfg.PythonBin, cfg.AnalyzeScript, cfg.ProcessScript, cfg.DeepFilterBin, cfg.Mode,
	}, "\x00")

	preflightMu.Lock()
	_, ok := preflightOK[key]
	preflightMu.Unlock()
	if ok {
		return nil
	}

	if res, err := execx.Run(ctx, []string{cfg.PythonBin, "--version"}, execx.Options{}); err != nil || res.ExitCode != 0 {
		return fmt.Errorf("%w: python runtime %q not usable", ErrEnhancementFailed, cfg.PythonBin)
	}
	for _, script := range []string{cfg.AnalyzeScript, cfg.ProcessScript} {
		if err := fsutil.IsRegularFile(script); err != nil {
			return fmt.Errorf("%w: helper script missing: %v", ErrEnhancementFailed, err)
		}
	}
	if res, err := execx.Run(ctx, []string{
		cfg.PythonBin, "-c", "import numpy, soundfile, scipy",
	}, execx.Options{}); err != nil || res.ExitCode != 0 {
		return fmt.Errorf("%w: python module health check failed", ErrEnhancementFailed)
	}
	if cfg.Mode != config.EnhanceAnalyzeOnly {
		if res, err := execx.Run(ctx, []string{cfg.DeepFilterBin, "--version"}, execx.Options{}); err != nil || res.ExitCode != 0 {
			return fmt.Errorf("%w: deep-filter binary %q not usable", ErrEnhancementFailed, cfg.DeepFilterBin)
		}
	}

	preflightMu.Lock()
	preflightOK[key] = struct{}{}
	preflightMu.Unlock()
	return nil
}

// ResetPreflight clears the memoized preflight results. Test hook.
func ResetPreflight() {
	preflightMu.Lock()
	preflightOK = make(map[string]struct{})
	preflightMu.Unlock()
}
