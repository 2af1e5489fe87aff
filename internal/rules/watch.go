package rules

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tabtriage/tabtriage/internal/applog"
)

const debounceWindow = 200 * time.Millisecond

// Watch reloads the rules file whenever it changes and delivers each
// successfully compiled rule set on the returned channel. The parent
// directory is watched, not the file, so editor save-via-rename is
// caught. Reload failures are logged and the previous rules stay live.
func Watch(ctx context.Context, path string) (<-chan []Rule, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	out := make(chan []Rule, 1)
	name := filepath.Base(path)

	go func() {
		defer w.Close()
		defer close(out)

		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounceWindow)
					fire = timer.C
				} else {
					timer.Reset(debounceWindow)
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				applog.Error("rules.watch", err)

			case <-fire:
				timer = nil
				fire = nil
				loaded, err := Load(path)
				if err != nil {
					applog.Error("rules.reload", err, "path", path)
					continue
				}
				applog.Info("rules.reload", "path", path, "count", len(loaded))
				// Replace any undelivered set so the engine always
				// picks up the newest one.
				select {
				case <-out:
				default:
				}
				out <- loaded
			}
		}
	}()

	return out, nil
}
