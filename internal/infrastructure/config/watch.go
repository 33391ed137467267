package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 300 * time.Millisecond

// Watch reloads the config file whenever it changes on disk and passes
// every successfully loaded config to onChange. Editors often write a
// file in several steps, so reloads are debounced. Watch returns once the
// watcher is set up; it stops when ctx is done.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func(Config)) error {
	if path == "" {
		return nil
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}

	fire := make(chan struct{}, 1)
	reload := func() {
		select {
		case fire <- struct{}{}:
		default:
		}
	}

	go func() {
		defer func() { _ = w.Close() }()

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.AfterFunc(reloadDebounce, reload)
				} else {
					timer.Reset(reloadDebounce)
				}

			case <-fire:
				cfg, err := Load(path)
				if err != nil {
					log.Warn("config reload failed", zap.String("path", path), zap.Error(err))
					continue
				}
				log.Info("config reloaded", zap.String("path", path))
				onChange(cfg)

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify error", zap.Error(err))
			}
		}
	}()

	return nil
}
