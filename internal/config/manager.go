// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ManuGH/minbar/internal/log"
)

// Manager holds the current config snapshot and reloads it when the backing
// file changes. Readers get a value copy; a reload swaps the snapshot and
// never mutates a config already handed out.
type Manager struct {
	mu   sync.RWMutex
	path string
	cur  RunConfig
}

// NewManager loads the initial snapshot from path.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, cur: cfg}, nil
}

// Current returns the active config snapshot.
func (m *Manager) Current() RunConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Watch reloads the snapshot whenever the config file changes, until ctx is
// done. A reload that fails validation keeps the previous snapshot.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(m.path); err != nil {
		return err
	}

	logger := log.WithComponent("config")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(m.path)
			if err != nil {
				logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("keeping previous config")
				continue
			}
			m.mu.Lock()
			m.cur = cfg
			m.mu.Unlock()
			logger.Info().Str("event", "config.reloaded").Str("path", m.path).Msg("config reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Str("event", "config.watch_error").Msg("config watcher error")
		}
	}
}
