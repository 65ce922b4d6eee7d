package store

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// ProgressWatcher is satisfied by the caller's handler for external
// progress.json mutations (e.g. a human editing the file by hand while a
// run is in flight).
type ProgressWatcher func(projectID string, progress *Progress)

// WatchProgress implements watchProgress(progress.json) -> reload-on-change
// (§4.1): it watches a project's progress.json for writes made by anyone
// other than the current process (editors write via rename or truncate;
// filelock.LockAndWrite writes via temp-file-then-rename, which also
// surfaces as a Create event on the target path after the rename lands) and
// invokes onChange with the freshly reloaded snapshot. It blocks until ctx
// is cancelled.
func (s *Store) WatchProgress(ctx context.Context, projectID string, onChange ProgressWatcher) error {
	if err := s.EnsureProjectDir(projectID); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create progress watcher: %w", err)
	}
	defer watcher.Close()

	dir := s.projectDir(projectID)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := s.progressFile(projectID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("progress watcher error: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != target {
				continue
			}
			if !(ev.Op&fsnotify.Write == fsnotify.Write || ev.Op&fsnotify.Create == fsnotify.Create) {
				continue
			}
			progress, err := s.GetProgress(projectID)
			if err != nil {
				continue // a partial write mid-rename is not surfaced as an error
			}
			onChange(projectID, progress)
		}
	}
}
