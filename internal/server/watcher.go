// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/n1n-api/xiaoshubao/configapi"
)

// ConfigReceiver receives configuration snapshots. Server implements it; the
// indirection keeps the watcher testable.
type ConfigReceiver interface {
	// LoadConfig swaps in a new configuration snapshot.
	LoadConfig(ctx context.Context, cfg *configapi.Config) error
}

type configWatcher struct {
	lastMod time.Time
	dir     string
	rcv     ConfigReceiver
	l       *slog.Logger
}

// StartConfigWatcher loads the config directory once and then polls it for
// changes, pushing each new snapshot to the receiver. A missing directory is
// not an error: the default configuration is loaded and the watcher keeps
// polling so the directory can appear later.
func StartConfigWatcher(ctx context.Context, dir string, rcv ConfigReceiver, l *slog.Logger, tick time.Duration) error {
	cw := &configWatcher{dir: dir, rcv: rcv, l: l}

	cw.lastMod = cw.newestModTime()
	if err := cw.loadConfig(ctx); err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}

	l.Info("start watching the config directory",
		slog.String("dir", dir), slog.String("interval", tick.String()))
	go cw.watch(ctx, tick)
	return nil
}

// watch periodically re-stats the config files and reloads when any of them
// changed.
func (cw *configWatcher) watch(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cw.l.Info("stop watching the config directory", slog.String("dir", cw.dir))
			return
		case <-ticker.C:
			mod := cw.newestModTime()
			if !mod.After(cw.lastMod) {
				continue
			}
			cw.lastMod = mod
			perTickCtx, cancel := context.WithTimeout(ctx, tick)
			if err := cw.loadConfig(perTickCtx); err != nil {
				cw.l.Error("failed to reload config", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

// loadConfig reads the directory and pushes the snapshot to the receiver.
func (cw *configWatcher) loadConfig(ctx context.Context) error {
	cfg, err := configapi.LoadDir(cw.dir)
	if err != nil {
		return err
	}
	cw.l.Info("loading configuration", slog.String("dir", cw.dir))
	if err := cw.rcv.LoadConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// newestModTime returns the most recent modification time across the watched
// config and prompt files. Missing files contribute nothing, so creating a
// previously missing file also triggers a reload.
func (cw *configWatcher) newestModTime() time.Time {
	var newest time.Time
	for _, name := range []string{
		configapi.ImageProvidersFile,
		configapi.TextProvidersFile,
		configapi.StorageFile,
		filepath.Join("prompts", configapi.ImagePromptFile),
		filepath.Join("prompts", configapi.ImagePromptShortFile),
		filepath.Join("prompts", configapi.OutlinePromptFile),
	} {
		stat, err := os.Stat(filepath.Join(cw.dir, name))
		if err != nil {
			continue
		}
		if stat.ModTime().After(newest) {
			newest = stat.ModTime()
		}
	}
	return newest
}
