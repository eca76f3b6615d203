package config

import (
	"context"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config for workspace whenever its on-disk file
// changes and publishes the result on the returned channel. It never
// mutates application state itself: the engine loop is the sole consumer
// that applies a reload, the same way it applies PTY output or snapshot
// results. A file watch is used instead of SIGHUP because the engine
// holds the terminal in raw mode and has no daemon control channel.
func Watch(ctx context.Context, workspace string, log *slog.Logger) (<-chan *Config, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	out := make(chan *Config, 1)
	path := Path(workspace)
	if path != "" {
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	go func() {
		defer watcher.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(workspace)
				if err != nil {
					log.Warn("config reload failed", "error", err)
					continue
				}
				select {
				case out <- cfg:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watch error", "error", err)
			}
		}
	}()
	return out, nil
}

// EnsureDataDir creates <workspace>/.cc-workbench if absent.
func EnsureDataDir(workspace string) error {
	return os.MkdirAll(DataDir(workspace), 0o755)
}
