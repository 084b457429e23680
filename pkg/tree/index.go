package tree

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
	"github.com/sidkik/parasync/pkg/remote"
)

// Indexer takes snapshots of the local filesystem and of the peer.
type Indexer struct {
	Fs        afero.Fs
	Transport remote.Transport
	Host      peer.RemoteHost
	Clock     clockwork.Clock
}

// Index takes a snapshot of `root` on the given side.
func (idx Indexer) Index(ctx context.Context, root string, side Side) (Snapshot, error) {
	if side == Local {
		return idx.IndexLocal(root)
	}
	return idx.IndexRemote(ctx, root)
}

// IndexLocal walks `root` on the local filesystem. Symlinks and other
// irregular files are skipped. Any unreadable directory fails the index.
func (idx Indexer) IndexLocal(root string) (Snapshot, error) {
	fi, err := idx.Fs.Stat(root)
	switch {
	case os.IsNotExist(err):
		return Snapshot{}, errors.IndexError{Root: root, Reason: "does not exist"}
	case err != nil:
		return Snapshot{}, errors.IndexError{Root: root, Reason: "stat failed", Err: err}
	case !fi.IsDir():
		return Snapshot{}, errors.IndexError{Root: root, Reason: "not a directory"}
	}

	capturedAt := idx.now()
	var entries []FileEntry
	err = afero.Walk(idx.Fs, root, func(p string, fi os.FileInfo, err error) error {
		// A skipped subtree would diff as deleted, so nothing is skipped.
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}

		if IsIgnored(fi.Name()) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return errors.WithContext(err, "relative path")
		}
		rel = filepath.ToSlash(rel)

		switch {
		case fi.IsDir():
			entries = append(entries, FileEntry{
				RelativePath: rel,
				ModTime:      fi.ModTime().UTC(),
				IsDirectory:  true,
			})
		case fi.Mode().IsRegular():
			entries = append(entries, FileEntry{
				RelativePath: rel,
				Size:         fi.Size(),
				ModTime:      fi.ModTime().UTC(),
			})
		default:
			log.WithField("path", p).Debug("Skipping irregular file")
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, errors.IndexError{Root: root, Reason: "walk failed", Err: err}
	}
	return NewSnapshot(root, Local, capturedAt, entries), nil
}

// IndexRemote lists `root` on the peer with a single command. A root that
// doesn't exist yet yields an empty snapshot.
func (idx Indexer) IndexRemote(ctx context.Context, root string) (Snapshot, error) {
	capturedAt := idx.now()
	res, err := idx.Transport.Run(ctx, idx.Host, remote.ListCommand(root))
	if err != nil {
		return Snapshot{}, errors.WithContext(err, "list remote")
	}

	switch res.ExitCode {
	case 0:
	case remote.ExitRootMissing:
		log.WithField("root", root).Debug("Remote root doesn't exist yet")
		return NewSnapshot(root, Remote, capturedAt, nil), nil
	case remote.ExitRootNotADir:
		return Snapshot{}, errors.IndexError{Root: root, Reason: "not a directory"}
	default:
		return Snapshot{}, errors.TransportError{
			Op:       "list " + root,
			Host:     idx.Host.Addr(),
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
		}
	}

	listing, err := remote.ParseListing(res.Stdout)
	if err != nil {
		return Snapshot{}, errors.IndexError{Root: root, Reason: "unparseable listing", Err: err}
	}

	var entries []FileEntry
	for _, entry := range listing {
		if isIgnoredPath(entry.Path) {
			continue
		}

		fileEntry := FileEntry{
			RelativePath: entry.Path,
			ModTime:      entry.ModTime,
			IsDirectory:  entry.IsDir,
		}
		if !entry.IsDir {
			fileEntry.Size = entry.Size
		}
		entries = append(entries, fileEntry)
	}
	return NewSnapshot(root, Remote, capturedAt, entries), nil
}

func (idx Indexer) now() time.Time {
	if idx.Clock == nil {
		return time.Now().UTC()
	}
	return idx.Clock.Now().UTC()
}
