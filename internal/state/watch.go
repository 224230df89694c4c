package state

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"laserlens/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with the current session, then again whenever the state
// file changes, until ctx is done. The directory is watched because Save
// replaces the file by rename. Bursts of events are debounced.
func (s *Store) Watch(ctx context.Context, debounce time.Duration, fn func(*Session)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.Dir(), err)
	}
	logging.StoreDebug("watching %s", s.path)

	fn(s.Load())

	var timer *time.Timer
	var fire <-chan time.Time
	name := filepath.Base(s.path)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			fn(s.Load())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryStore).Warn("state watcher error: %v", err)
		}
	}
}
