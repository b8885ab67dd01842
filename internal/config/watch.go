package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a DSL network-declaration file for changes and invokes
// onChange with a freshly loaded Runtime, supporting cmd/dhcpd's reload path
// (a write, create or rename of the file re-runs the parser without
// restarting the process; there is no signal-triggered reload) without
// requiring the operator to script their own file-change detection.
//
// Grounded on AdGuardHome go.mod's github.com/fsnotify/fsnotify dependency;
// no pack repo wires fsnotify into a running watch loop, so the loop shape
// here (a single goroutine draining Events/Errors until ctx is done) follows
// fsnotify's own documented usage pattern.
type Watcher struct {
	w      *fsnotify.Watcher
	logger *slog.Logger
}

// NewWatcher starts watching cfg.ConfigFile for writes/renames.
func NewWatcher(cfg *Config, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}

	if err = fw.Add(cfg.ConfigFile); err != nil {
		_ = fw.Close()

		return nil, fmt.Errorf("watching config file %q: %w", cfg.ConfigFile, err)
	}

	return &Watcher{w: fw, logger: logger}, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.w.Close()
}

// Run blocks, calling onChange with a Runtime reloaded from cfg each time
// the watched file is
// written or replaced, until ctx is done. Parse/validation errors from a
// reload attempt are logged, not returned — a bad edit shouldn't crash a
// running server, mirroring §7's permissive config-reload policy.
func (w *Watcher) Run(ctx context.Context, cfg *Config, onChange func(*Runtime)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			rt, err := LoadNetwork(cfg, w.logger)
			if err != nil {
				w.logger.ErrorContext(ctx, "config reload failed", "error", err)

				continue
			}

			onChange(rt)
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}

			w.logger.ErrorContext(ctx, "config watch error", "error", err)
		}
	}
}
