package shard

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads shard segments whenever a separate indexer process renames a
// finished .spdx file into one of the shard directories. Bursts of events
// are coalesced over debounce. It blocks until ctx is cancelled.
func (r *Router) Watch(ctx context.Context, debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating segment watcher: %w", err)
	}
	defer w.Close()
	for _, dir := range r.dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	r.logger.Info("watching shard directories for new segments", "dirs", len(r.dirs))

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if isSegmentEvent(ev) {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("segment watcher error", "error", err)
		case <-timer.C:
			if n := r.ReloadAll(); n > 0 {
				r.logger.Info("new segments loaded", "count", n)
			}
		}
	}
}

func isSegmentEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return strings.EqualFold(filepath.Ext(ev.Name), ".spdx")
}
