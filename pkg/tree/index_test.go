package tree

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
	"github.com/sidkik/parasync/pkg/remote"
	"github.com/sidkik/parasync/pkg/remote/mocks"
)

var testHost = peer.RemoteHost{Address: "10.211.55.2", Port: 22}

func TestIndexLocal(t *testing.T) {
	fs := afero.NewMemMapFs()
	modTime := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for path, contents := range map[string]string{
		"/sync/a.txt":            "hello",
		"/sync/docs/b.txt":       "hi",
		"/sync/.DS_Store":        "junk",
		"/sync/docs/._b.txt":     "junk",
		"/sync/.Trashes/1/x.txt": "junk",
	} {
		require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
		require.NoError(t, fs.Chtimes(path, modTime, modTime))
	}
	require.NoError(t, fs.MkdirAll("/sync/empty", 0755))

	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	idx := Indexer{Fs: fs, Clock: clock}
	snapshot, err := idx.Index(context.Background(), "/sync", Local)
	require.NoError(t, err)

	assert.Equal(t, Local, snapshot.Side())
	assert.Equal(t, clock.Now(), snapshot.CapturedAt())
	assert.Equal(t, []string{"a.txt", "docs/b.txt", "empty"}, snapshot.Paths())

	a, _ := snapshot.Get("a.txt")
	assert.Equal(t, file("a.txt", 5, modTime.Unix()), a)

	empty, _ := snapshot.Get("empty")
	assert.True(t, empty.IsDirectory)
}

func TestIndexLocalErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/file", []byte("x"), 0644))
	idx := Indexer{Fs: fs}

	_, err := idx.IndexLocal("/missing")
	var indexErr errors.IndexError
	if assert.True(t, errors.As(err, &indexErr)) {
		assert.Equal(t, "does not exist", indexErr.Reason)
	}

	_, err = idx.IndexLocal("/file")
	if assert.True(t, errors.As(err, &indexErr)) {
		assert.Equal(t, "not a directory", indexErr.Reason)
	}
}

// unreadableFs fails to open the directories in `denied`.
type unreadableFs struct {
	afero.Fs
	denied map[string]bool
}

func (fs unreadableFs) Open(name string) (afero.File, error) {
	if fs.denied[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return fs.Fs.Open(name)
}

func TestIndexLocalUnreadableDirectory(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/sync/a.txt", []byte("a"), 0644))
	require.NoError(t, afero.WriteFile(mem, "/sync/private/b.txt", []byte("b"), 0644))

	idx := Indexer{Fs: unreadableFs{Fs: mem, denied: map[string]bool{"/sync/private": true}}}
	_, err := idx.IndexLocal("/sync")

	var indexErr errors.IndexError
	if assert.True(t, errors.As(err, &indexErr)) {
		assert.Equal(t, "/sync", indexErr.Root)
		assert.Equal(t, "walk failed", indexErr.Reason)
	}
	assert.True(t, errors.Is(err, os.ErrPermission))
}

func TestIndexRemote(t *testing.T) {
	tests := []struct {
		name     string
		res      remote.Result
		runErr   error
		expPaths []string
		checkErr func(*testing.T, error)
	}{
		{
			name: "Listing",
			res: remote.Result{Stdout: "f\t5\t1700000000.0\ta.txt\n" +
				"d\t4096\t1700000000.0\tdocs\n" +
				"f\t2\t1700000000.0\tdocs/b.txt\n" +
				"d\t4096\t1700000000.0\tempty\n" +
				"f\t4\t1700000000.0\tdocs/.DS_Store\n" +
				"d\t4096\t1700000000.0\t.Trashes\n" +
				"f\t4\t1700000000.0\t.Trashes/x\n"},
			expPaths: []string{"a.txt", "docs/b.txt", "empty"},
		},
		{
			name:     "Missing root",
			res:      remote.Result{ExitCode: remote.ExitRootMissing},
			expPaths: nil,
		},
		{
			name: "Root is a file",
			res:  remote.Result{ExitCode: remote.ExitRootNotADir},
			checkErr: func(t *testing.T, err error) {
				var indexErr errors.IndexError
				assert.True(t, errors.As(err, &indexErr))
			},
		},
		{
			name: "Listing command failed",
			res:  remote.Result{ExitCode: 1, Stderr: "find: permission denied"},
			checkErr: func(t *testing.T, err error) {
				var transportErr errors.TransportError
				if assert.True(t, errors.As(err, &transportErr)) {
					assert.Equal(t, 1, transportErr.ExitCode)
				}
			},
		},
		{
			name:   "Connection failed",
			runErr: errors.TransportError{Op: "connect", Host: testHost.Addr(), Err: assert.AnError},
			checkErr: func(t *testing.T, err error) {
				assert.Equal(t, assert.AnError, errors.RootCause(err))
			},
		},
		{
			name: "Garbage output",
			res:  remote.Result{Stdout: "garbage\n"},
			checkErr: func(t *testing.T, err error) {
				var indexErr errors.IndexError
				assert.True(t, errors.As(err, &indexErr))
			},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			transport := &mocks.Transport{}
			transport.On("Run", mock.Anything, testHost, remote.ListCommand("~/shared")).
				Return(test.res, test.runErr)

			idx := Indexer{Transport: transport, Host: testHost}
			snapshot, err := idx.Index(context.Background(), "~/shared", Remote)
			transport.AssertExpectations(t)

			if test.checkErr != nil {
				assert.Error(t, err)
				test.checkErr(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Remote, snapshot.Side())
			assert.Equal(t, "~/shared", snapshot.Root())
			assert.Equal(t, test.expPaths, snapshot.Paths())
		})
	}
}

// The local and remote indexers must produce the same snapshot for the same
// tree.
func TestIndexSidesConverge(t *testing.T) {
	home := t.TempDir()
	root := filepath.Join(home, "tree")
	modTime := time.Date(2023, 6, 1, 8, 30, 0, 0, time.UTC)
	fs := afero.NewOsFs()
	for _, p := range []string{"a.txt", "nested/b c.txt", "nested/deeper/d"} {
		path := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(p), 0644))
		require.NoError(t, fs.Chtimes(path, modTime, modTime))
	}
	require.NoError(t, fs.MkdirAll(filepath.Join(root, "empty"), 0755))

	idx := Indexer{Fs: fs, Transport: remote.NewLocalTransport(home), Host: testHost}
	local, err := idx.IndexLocal(root)
	require.NoError(t, err)
	remoteSnapshot, err := idx.IndexRemote(context.Background(), "~/tree")
	require.NoError(t, err)

	assert.Equal(t, local.Paths(), remoteSnapshot.Paths())
	result := Diff(local, remoteSnapshot)
	assert.Equal(t, local.Len(), result.Counts.Unchanged)
}
