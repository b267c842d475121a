// Package watch reports changes below a content root.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change reported for a path.
type Op string

const (
	Created Op = "created"
	Updated Op = "updated"
	Deleted Op = "deleted"
	// Resync reports that changes could not be attributed to single files,
	// e.g. after a directory was renamed away. Path is empty.
	Resync Op = "resync"
)

// Event is one change, with Path relative to the root in slash form.
type Event struct {
	Op   Op
	Path string
}

// Handler receives events. It runs on the watcher goroutine.
type Handler func(Event)

// resyncDelay debounces bursts of renames and directory removals into a
// single Resync event.
const resyncDelay = 200 * time.Millisecond

// Watch watches root recursively until ctx is cancelled. Directories created
// at runtime are added to the watch list and the files already inside them
// are reported as created.
func Watch(ctx context.Context, root string, logger *slog.Logger, h Handler) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dirs := make(map[string]struct{})
	if err := addDirsRecursive(w, root, dirs); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var resyncTimer *time.Timer
	var resyncCh <-chan time.Time

	scheduleResync := func() {
		if resyncTimer == nil {
			resyncTimer = time.NewTimer(resyncDelay)
			resyncCh = resyncTimer.C
		} else {
			resyncTimer.Reset(resyncDelay)
		}
	}

	emit := func(op Op, abs string) {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return
		}
		logger.Debug("watcher: change", slog.String("path", rel), slog.String("op", string(op)))
		h(Event{Op: op, Path: filepath.ToSlash(rel)})
	}

	for {
		select {
		case <-ctx.Done():
			if resyncTimer != nil {
				resyncTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-resyncCh:
			logger.Debug("watcher: resync")
			h(Event{Op: Resync})

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, abs, dirs); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", abs),
							slog.String("error", addErr.Error()))
					}
					walkFiles(abs, func(p string) { emit(Created, p) })
					continue
				}
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				emit(Created, abs)
			case ev.Op&fsnotify.Write != 0:
				emit(Updated, abs)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if _, isDir := dirs[abs]; isDir {
					delete(dirs, abs)
					scheduleResync()
					continue
				}
				emit(Deleted, abs)
				if ev.Op&fsnotify.Rename != 0 {
					// The new name arrives as a Create only when it stays
					// inside a watched directory.
					scheduleResync()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func walkFiles(dir string, fn func(string)) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		fn(p)
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string, dirs map[string]struct{}) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(p); err != nil {
			return err
		}
		dirs[p] = struct{}{}
		return nil
	})
}
