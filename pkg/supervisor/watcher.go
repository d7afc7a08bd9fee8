package supervisor

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/core-tools/hsu-launch-go/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultIgnoreWatch is always excluded from watching, in addition to an app's own patterns
var DefaultIgnoreWatch = []string{".git", "node_modules", "__pycache__", "*.pyc", "*.log", "*.pid"}

// treeWatcher reports debounced changes anywhere under root.
// fsnotify watches single directories, so every directory is added and
// directories created later are added as they appear.
type treeWatcher struct {
	root     string
	ignore   []string
	debounce time.Duration
	logger   logging.Logger

	watcher   *fsnotify.Watcher
	events    chan string
	done      chan struct{}
	closeOnce sync.Once
}

func newTreeWatcher(root string, ignore []string, debounce time.Duration, logger logging.Logger) (*treeWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &treeWatcher{
		root:     root,
		ignore:   append(append([]string{}, DefaultIgnoreWatch...), ignore...),
		debounce: debounce,
		logger:   logger,
		watcher:  fsWatcher,
		events:   make(chan string, 1),
		done:     make(chan struct{}),
	}

	if err := w.addTree(root); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Events delivers the last changed path of each debounced burst
func (w *treeWatcher) Events() <-chan string {
	return w.events
}

func (w *treeWatcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

func (w *treeWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			// Unreadable subtrees are skipped
			w.logger.Debugf("Skipping unreadable path, path: %s, error: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.isIgnored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		return nil
	})
}

func (w *treeWatcher) loop() {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod || w.isIgnored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warnf("Failed to watch new directory, path: %s, error: %v", event.Name, err)
					}
				}
			}

			pending = event.Name
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("File watcher error, root: %s, error: %v", w.root, err)

		case <-timerC:
			timerC = nil
			// A restart already queued covers this burst too
			select {
			case w.events <- pending:
			default:
			}
		}
	}
}

// isIgnored matches patterns against the base name and the slash-separated path relative to root
func (w *treeWatcher) isIgnored(path string) bool {
	base := filepath.Base(path)
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range w.ignore {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}
