package fswatch

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/parasync/pkg/errors"
)

func TestGetPathsToWatch(t *testing.T) {
	tests := []struct {
		name     string
		root     string
		dirs     []string
		files    []string
		expPaths []string
		expErr   error
	}{
		{
			name: "Simple case -- all directories",
			root: "/sync",
			dirs: []string{"/sync/docs", "/sync/docs/drafts", "/sync/photos"},
			files: []string{"/sync/docs/a.txt", "/sync/docs/drafts/b.txt",
				"/sync/photos/c.jpg"},
			expPaths: []string{"/sync", "/sync/docs", "/sync/docs/a.txt",
				"/sync/docs/drafts", "/sync/docs/drafts/b.txt", "/sync/photos",
				"/sync/photos/c.jpg"},
		},
		{
			name:     "Don't watch ignored paths",
			root:     "/sync",
			dirs:     []string{"/sync/.Trashes", "/sync/.Trashes/501", "/sync/docs"},
			files:    []string{"/sync/.DS_Store", "/sync/.Trashes/501/x", "/sync/docs/._a.txt", "/sync/docs/a.txt"},
			expPaths: []string{"/sync", "/sync/docs", "/sync/docs/a.txt"},
		},
		{
			name:     "Watch file",
			root:     "/home/alice/notes.txt",
			dirs:     []string{"/home/alice"},
			files:    []string{"/home/alice/notes.txt"},
			expPaths: []string{"/home/alice", "/home/alice/notes.txt"},
		},
		{
			name:   "Missing root",
			root:   "/missing",
			expErr: errors.FileNotFound{Path: "/missing"},
		},
	}

	for _, test := range tests {
		fs = afero.NewMemMapFs()
		for _, dir := range test.dirs {
			assert.NoError(t, fs.MkdirAll(dir, 0755))
		}
		for _, file := range test.files {
			assert.NoError(t, afero.WriteFile(fs, file, []byte("testfile"), 0644))
		}

		paths, err := getPathsToWatch(test.root)
		if test.expErr != nil {
			assert.Equal(t, test.expErr, errors.RootCause(err), test.name)
			continue
		}
		assert.NoError(t, err, test.name)

		// Sort for consistency.
		sort.Strings(test.expPaths)
		sort.Strings(paths)
		assert.Equal(t, test.expPaths, paths, test.name)
	}
}

func waitForEvent(t *testing.T, events <-chan Event, path string) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			require.True(t, ok, "events channel closed")
			if event.Path == path {
				return event
			}
		case <-timeout:
			t.Fatalf("no event for %s", path)
		}
	}
}

func TestWatch(t *testing.T) {
	fs = afero.NewOsFs()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "existing"), 0755))

	watcher, err := Watch(root)
	require.NoError(t, err)
	defer watcher.Close()

	file := filepath.Join(root, "existing", "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0644))
	event := waitForEvent(t, watcher.Events(), file)
	assert.True(t, event.Op&(fsnotify.Create|fsnotify.Write) != 0)

	// New directories are watched too.
	dir := filepath.Join(root, "new")
	require.NoError(t, os.Mkdir(dir, 0755))
	waitForEvent(t, watcher.Events(), dir)

	nested := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(nested, []byte("hi"), 0644))
	waitForEvent(t, watcher.Events(), nested)

	require.NoError(t, watcher.Close())
	for range watcher.Events() {
	}
}

func TestWatchIgnoresMetadata(t *testing.T) {
	fs = afero.NewOsFs()
	root := t.TempDir()

	watcher, err := Watch(root)
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, ".DS_Store"), []byte("x"), 0644))
	marker := filepath.Join(root, "marker")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0644))

	// Events arrive in order, so the ignored file would have been seen first.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event := <-watcher.Events():
			assert.NotEqual(t, ".DS_Store", filepath.Base(event.Path))
			if event.Path == marker {
				return
			}
		case <-timeout:
			t.Fatal("no event for marker")
		}
	}
}
