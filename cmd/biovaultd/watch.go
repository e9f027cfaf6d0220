package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/n1/biovault/internal/config"
	"github.com/n1/biovault/internal/log"
)

// watchConfig calls onChange with the reloaded configuration whenever the
// file at path is written or replaced. The parent directory is watched so
// editors that save by rename are seen. Invalid files are logged and
// skipped. It returns when ctx is done.
func watchConfig(ctx context.Context, path string, onChange func(config.Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := config.Load(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Ignoring invalid configuration")
				continue
			}
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Configuration watcher error")
		}
	}
}
