package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/bakery/internal/logfields"
)

// fileWatcher watches directory trees and reports debounced changes.
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	trees    map[string]bool // directories watched for every file
	files    map[string]bool // single files watched through their directory
	ignore   []string
	debounce time.Duration
	notify   func(reason string)
	logger   *slog.Logger
}

func newFileWatcher(debounce time.Duration, ignore []string, notify func(string), logger *slog.Logger) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &fileWatcher{
		watcher:  w,
		trees:    make(map[string]bool),
		files:    make(map[string]bool),
		ignore:   ignore,
		debounce: debounce,
		notify:   notify,
		logger:   logger,
	}, nil
}

// addTree watches root and every directory below it. A missing root is skipped.
func (fw *fileWatcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == root {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if fw.ignored(p) || (p != root && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		fw.trees[p] = true
		return fw.watcher.Add(p)
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	return nil
}

// addFile watches a single file through its directory, which is more
// reliable across editors that replace files on save.
func (fw *fileWatcher) addFile(path string) error {
	fw.files[path] = true
	if err := fw.watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return nil
}

func (fw *fileWatcher) ignored(p string) bool {
	for _, ig := range fw.ignore {
		if ig == "" {
			continue
		}
		if p == ig || strings.HasPrefix(p, ig+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// relevant filters events down to files inside watched trees and the
// single files registered with addFile, skipping ignored and hidden paths.
func (fw *fileWatcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod || fw.ignored(ev.Name) || strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return fw.files[ev.Name] || fw.trees[filepath.Dir(ev.Name)] || fw.trees[ev.Name]
}

// run consumes events until ctx is done, firing notify once per quiet period.
func (fw *fileWatcher) run(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(ev) {
				continue
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := fw.addTree(ev.Name); err != nil {
						fw.logger.Warn("Failed to watch new directory", logfields.Path(ev.Name), logfields.Error(err))
					}
				}
			}
			fw.logger.Debug("Change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			reason := "changed: " + ev.Name
			timer = time.AfterFunc(fw.debounce, func() { fw.notify(reason) })
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("File watcher error", logfields.Error(err))
		}
	}
}

func (fw *fileWatcher) close() error {
	return fw.watcher.Close()
}
