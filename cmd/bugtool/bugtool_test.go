package bugtool

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/parasync/pkg/config"
	"github.com/sidkik/parasync/pkg/store"
	"github.com/sidkik/parasync/pkg/sync"
	"github.com/sidkik/parasync/pkg/tree"
)

type file struct {
	path, contents string
}

func TestSetupSettings(t *testing.T) {
	fs = afero.NewMemMapFs()
	settings := config.Settings{
		Version: "1.0",
		Host:    config.Host{Address: "10.211.55.4", Port: 22},
		User:    "alice",
		Pairs: []config.SyncPair{
			{Name: "docs", LocalRoot: "/docs", RemoteRoot: "~/docs", Mode: config.PushMirror},
		},
	}

	require.NoError(t, fs.Mkdir("root", 0755))
	assert.NoError(t, setupSettings("root", settings))
	assertFiles(t, []file{{"root/settings.yaml", `host:
  address: 10.211.55.4
  port: 22
pairs:
- localRoot: /docs
  mode: push-mirror
  name: docs
  remoteRoot: ~/docs
user: alice
version: "1.0"
`}}, "setupSettings should write the settings")
}

func TestSetupJournal(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, fs.Mkdir("root", 0755))

	journal, err := store.Open(":memory:")
	require.NoError(t, err)
	defer journal.Close()

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	pair := config.SyncPair{Name: "docs", LocalRoot: "/docs", RemoteRoot: "~/docs", Mode: config.PushMirror}
	require.NoError(t, journal.RecordSync(context.Background(), pair, sync.SyncReport{
		Pair:    "docs",
		Mode:    config.PushMirror,
		Copied:  []string{"a.txt"},
		Trashed: []string{"c.txt"},
		Failed:  []sync.Failure{{Path: "d.txt", Reason: "permission denied"}},
		TrashRecords: []sync.TrashRecord{{
			OriginalRelativePath: "c.txt",
			TrashedPath:          "~/.Trash/parasync/20240506T070809Z/c.txt",
			TrashedAt:            at,
			Side:                 tree.Remote,
		}},
		StartedAt:  at,
		FinishedAt: at,
	}))

	require.NoError(t, setupJournal("root", journal))

	runs, err := afero.ReadFile(fs, "root/runs.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(runs), "Status: partial")
	assert.Contains(t, string(runs), "- path: d.txt\n    reason: permission denied")

	trash, err := afero.ReadFile(fs, "root/trash.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(trash), "originalRelativePath: c.txt")
	assert.Contains(t, string(trash), "20240506T070809Z/c.txt")
}

func TestTarDirectory(t *testing.T) {
	fs = afero.NewMemMapFs()
	assert.NoError(t, setupFiles([]file{
		{"root/settings.yaml", "user: alice\n"},
		{"root/version/local", "local version: set-by-make\n"},
	}))

	require.NoError(t, tarDirectory("root", "out.tar.gz"))

	f, err := fs.Open("out.tar.gz")
	require.NoError(t, err)
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gzr)

	contents := map[string]string{}
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		b, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[header.Name] = string(b)
	}

	assert.Equal(t, map[string]string{
		"parasync-bug-info":               "",
		"parasync-bug-info/settings.yaml": "user: alice\n",
		"parasync-bug-info/version":       "",
		"parasync-bug-info/version/local": "local version: set-by-make\n",
	}, contents)
}

func setupFiles(files []file) error {
	for _, f := range files {
		if err := afero.WriteFile(fs, f.path, []byte(f.contents), 0644); err != nil {
			return err
		}
	}
	return nil
}

func assertFiles(t *testing.T, files []file, msg string) {
	for _, f := range files {
		contents, err := afero.ReadFile(fs, f.path)
		assert.NoError(t, err, msg)
		assert.Equal(t, f.contents, string(contents), msg)
	}
}
