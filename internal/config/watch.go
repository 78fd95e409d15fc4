package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	appLog "hackonomics/internal/log"
)

// Watch re-reads the config file whenever it is written or replaced and
// passes the normalized result to onChange. Unparseable edits are logged
// and skipped. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file so that atomic
// replacements (including Save) are seen.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = w.Close()
	}()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			data, err := os.ReadFile(target)
			if err != nil || len(data) == 0 {
				// Mid-write or removed; the next event carries the content.
				continue
			}
			cfg, err := parse(target, data)
			if err != nil {
				appLog.Warn("config reload failed", "path", target, "err", err.Error())
				continue
			}
			appLog.Info("config reloaded", "path", target)
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Warn("config watcher error", "err", err.Error())
		}
	}
}
