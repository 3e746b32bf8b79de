package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/pkg/clog"
)

const watchDebounce = 100 * time.Millisecond

// runWatch prints the schedule once and again after every change to path
// until ctx is done. A file that fails to load or schedule is reported and
// the watch goes on.
func runWatch(ctx context.Context, w io.Writer, path string, day time.Time) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors and Save replace the file by rename, so watch the directory.
	dir, name := filepath.Dir(path), filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	changed := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	render := func() {
		fmt.Fprintf(w, "\n%s %s\n", calendar.FormatDate(day), path)
		if err := runCalc(ctx, w, path, day, false, false); err != nil {
			slog.WarnContext(ctx, "schedule not updated", "file", path, clog.ErrorAttributeKey, err)
		}
	}
	render()
	slog.InfoContext(ctx, "watching project file", "file", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
		case <-changed:
			render()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "file watcher error", clog.ErrorAttributeKey, err)
		}
	}
}
