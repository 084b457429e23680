package sync

import (
	"github.com/sidkik/parasync/pkg/config"
	"github.com/sidkik/parasync/pkg/remote"
	"github.com/sidkik/parasync/pkg/tree"
)

type opKind int

const (
	// opTrash moves the path on `side` into that side's trash.
	opTrash opKind = iota

	// opCopy copies the path in `direction`.
	opCopy
)

type operation struct {
	kind opKind
	path string

	side      tree.Side
	direction remote.Direction

	// isDir is set when the source of a copy is a directory. Only the
	// directory itself is created; its contents have their own operations.
	isDir bool
}

// plan is the list of operations that applies a diff. Trash operations come
// first, then copies, each sorted by path so that parents are handled before
// their children.
type plan struct {
	ops       []operation
	conflicts []string
	skipped   []Failure
}

func (p plan) empty() bool {
	return len(p.ops) == 0 && len(p.skipped) == 0
}

func newPlan(mode config.Mode, diff tree.DiffResult) plan {
	var p plan
	var trashes, copies []operation
	trash := func(entry tree.DiffEntry, side tree.Side) {
		trashes = append(trashes, operation{kind: opTrash, path: entry.RelativePath, side: side})
	}
	cp := func(entry tree.DiffEntry, dir remote.Direction) {
		src := entry.Local
		if dir == remote.FromRemote {
			src = entry.Remote
		}
		copies = append(copies, operation{
			kind:      opCopy,
			path:      entry.RelativePath,
			direction: dir,
			isDir:     src.IsDirectory,
		})
	}

	for _, entry := range diff.Entries {
		switch mode {
		case config.PushMirror:
			switch entry.Kind {
			case tree.Added:
				cp(entry, remote.ToRemote)
			case tree.Modified:
				trash(entry, tree.Remote)
				cp(entry, remote.ToRemote)
			case tree.Removed:
				trash(entry, tree.Remote)
			case tree.Unchanged:
				// Trashing may have removed the directory's last file.
				if entry.Local.IsDirectory {
					cp(entry, remote.ToRemote)
				}
			}

		case config.PullMirror:
			switch entry.Kind {
			case tree.Removed:
				cp(entry, remote.FromRemote)
			case tree.Modified:
				trash(entry, tree.Local)
				cp(entry, remote.FromRemote)
			case tree.Added:
				trash(entry, tree.Local)
			case tree.Unchanged:
				if entry.Remote.IsDirectory {
					cp(entry, remote.FromRemote)
				}
			}

		default:
			switch entry.Kind {
			case tree.Added:
				cp(entry, remote.ToRemote)
			case tree.Removed:
				cp(entry, remote.FromRemote)
			case tree.Modified:
				if entry.Local.IsDirectory != entry.Remote.IsDirectory {
					p.conflicts = append(p.conflicts, entry.RelativePath)
					p.skipped = append(p.skipped, Failure{
						Path:   entry.RelativePath,
						Reason: "file on one side and directory on the other",
					})
					continue
				}

				winner, conflict := newer(*entry.Local, *entry.Remote)
				if conflict {
					p.conflicts = append(p.conflicts, entry.RelativePath)
				}
				if winner == tree.Local {
					trash(entry, tree.Remote)
					cp(entry, remote.ToRemote)
				} else {
					trash(entry, tree.Local)
					cp(entry, remote.FromRemote)
				}
			}
		}
	}

	p.ops = append(trashes, copies...)
	return p
}

// newer returns the side with the more recently modified copy. If the
// modification times are indistinguishable, the local copy wins and the
// conflict is flagged.
func newer(local, remote tree.FileEntry) (winner tree.Side, conflict bool) {
	if tree.SameModTime(local.ModTime, remote.ModTime) {
		return tree.Local, true
	}
	if local.ModTime.After(remote.ModTime) {
		return tree.Local, false
	}
	return tree.Remote, false
}
