package permission

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentgate/agentgate/internal/eventbus"
)

// WatchDebounceInterval is the delay after a filesystem event before a
// change notification is published, letting rapid event bursts settle
// (atomic replace is a write plus a rename).
const WatchDebounceInterval = 200 * time.Millisecond

// Watcher observes the permission set directory of a local storage backend
// and publishes PermissionChanged events when a set document changes on
// disk, so operators can edit sets out of band and have running resolutions
// pick them up.
type Watcher struct {
	dir string
	bus *eventbus.Bus
}

// NewWatcher watches dir, the filesystem directory holding permission set
// YAML documents.
func NewWatcher(dir string, bus *eventbus.Bus) *Watcher {
	return &Watcher{dir: dir, bus: bus}
}

// Run blocks until ctx is cancelled. The watched directory must exist
// before Run is called.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	slog.InfoContext(ctx, "watching permission sets", "dir", w.dir)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			// Ignore in-progress atomic writes and non-YAML files.
			if strings.HasSuffix(name, ".tmp") || !strings.HasSuffix(name, ".yaml") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			setID := strings.TrimSuffix(name, ".yaml")
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(WatchDebounceInterval, func() {
				slog.InfoContext(ctx, "permission set changed on disk", "permission_set_id", setID)
				w.bus.PublishNew(eventbus.EventTypePermissionChanged, setID, map[string]string{
					"op": event.Op.String(),
				})
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "permission watcher error", "error", err)
		}
	}
}
