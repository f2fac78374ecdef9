// Package watch reruns scenarios when feature or configuration files
// change, behind a small terminal UI.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDefault collapses editor save bursts into one rerun.
const debounceDefault = 200 * time.Millisecond

// Watcher observes feature directories and config files and emits one
// batch of changed paths per quiet period.
type Watcher struct {
	roots    []string
	handler  func(changed []string)
	debounce time.Duration
}

// NewWatcher creates a watcher over roots. Directories are walked and
// watched recursively; file roots are watched through their parent.
func NewWatcher(roots []string, handler func(changed []string)) *Watcher {
	return &Watcher{
		roots:    roots,
		handler:  handler,
		debounce: debounceDefault,
	}
}

// Run watches until ctx is cancelled. Each burst of relevant events is
// debounced with a single timer and delivered as one sorted batch.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	for _, root := range w.roots {
		if err := addRoot(watcher, root); err != nil {
			return err
		}
	}

	var mu sync.Mutex
	changed := make(map[string]bool)

	flush := func() {
		mu.Lock()
		batch := make([]string, 0, len(changed))
		for p := range changed {
			batch = append(batch, p)
		}
		changed = make(map[string]bool)
		mu.Unlock()

		if len(batch) == 0 {
			return
		}
		sort.Strings(batch)
		w.handler(batch)
	}

	// Single debounce timer, reset on each event. Initialized stopped;
	// the first event starts it.
	debounceTimer := time.NewTimer(w.debounce)
	debounceTimer.Stop()
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounceTimer.C:
			flush()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// New directories join the watch so nested features are seen.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRoot(watcher, event.Name)
					continue
				}
			}
			if !relevant(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}

			mu.Lock()
			changed[event.Name] = true
			mu.Unlock()

			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			_ = err
		}
	}
}

// addRoot registers root with the watcher: directories recursively,
// plain files via their parent directory.
func addRoot(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// relevant reports whether a change to path should trigger a rerun:
// feature files and YAML configuration, skipping editor temp files.
func relevant(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".#") || strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") {
		return false
	}
	switch filepath.Ext(name) {
	case ".feature", ".yaml", ".yml":
		return true
	}
	return false
}
