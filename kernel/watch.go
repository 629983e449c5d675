package kernel

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tailored-agentic-units/polyglot/observability"
)

const watchDebounce = 200 * time.Millisecond

// WatchConfig reloads the kernel list from path whenever the file changes,
// until ctx is done. The parent directory is watched so editors that
// replace the file on save are followed. Reload failures are reported to
// the observer and the previous catalog stays in effect.
func (k *Kernel) WatchConfig(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			k.reportWatch(ctx, path, err)

		case <-timer.C:
			cfg, err := LoadConfig(path)
			if err == nil {
				err = k.Reload(cfg)
			}
			if err != nil {
				k.reportWatch(ctx, path, err)
			}
		}
	}
}

func (k *Kernel) reportWatch(ctx context.Context, path string, err error) {
	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventError,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "kernel.WatchConfig",
		Data:      map[string]any{"path": path, "error": err.Error()},
	})
}
