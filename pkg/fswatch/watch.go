package fswatch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/tree"
)

var fs = afero.NewOsFs()

// eventBuffer is how many events can be pending before new events are
// dropped. Dropping is safe because consumers only care that something
// changed since they last synced.
const eventBuffer = 256

// Event is a change to a path under the watched root.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher reports changes to a directory tree.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	events  chan Event
}

// Watch watches every file and directory under `root`, except for ignored
// metadata files. Directories created later are watched as well.
func Watch(root string) (*Watcher, error) {
	pathsToWatch, err := getPathsToWatch(root)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, path := range pathsToWatch {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}

	w := &Watcher{root: root, watcher: watcher, events: make(chan Event, eventBuffer)}
	go w.run()
	return w, nil
}

// Events returns the channel that changes are sent on. It's closed when the
// watcher is closed.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.events)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).WithField("root", w.root).Warn("File watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || tree.IsIgnored(filepath.Base(event.Name)) {
		return
	}

	// fsnotify doesn't watch recursively, so new directories have to be
	// added by hand.
	if event.Op&fsnotify.Create != 0 {
		if fi, err := fs.Stat(event.Name); err == nil && fi.IsDir() {
			w.addTree(event.Name)
		}
	}

	select {
	case w.events <- Event{Path: event.Name, Op: event.Op}:
	default:
		log.WithField("path", event.Name).Debug("Dropping file event")
	}
}

func (w *Watcher) addTree(dir string) {
	paths, err := getChildren(dir)
	if err != nil {
		log.WithError(err).WithField("path", dir).Warn("Failed to list new directory")
	}

	for _, path := range append([]string{dir}, paths...) {
		if err := w.watcher.Add(path); err != nil {
			log.WithError(err).WithField("path", path).Warn("Failed to watch new path")
		}
	}
}

func getPathsToWatch(root string) ([]string, error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		// Watch the parent as well so that we notice if the file is removed
		// and re-added.
		return []string{root, filepath.Dir(root)}, nil
	}

	// Because fsnotify doesn't watch directories recursively, we walk the
	// directory's contents and add all subdirectories and files.
	children, err := getChildren(root)
	if err != nil {
		return nil, errors.WithContext(err, "get subdirs")
	}
	return append([]string{root}, children...), nil
}

func getChildren(dir string) (paths []string, err error) {
	err = afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if path == dir {
			return nil
		}

		if tree.IsIgnored(fi.Name()) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		paths = append(paths, path)
		return nil
	})
	return paths, err
}
