package util

import (
	"fmt"
	"io"

	"github.com/buger/goterm"

	"github.com/sidkik/parasync/pkg/config"
	"github.com/sidkik/parasync/pkg/sync"
	"github.com/sidkik/parasync/pkg/tree"
)

// Changes groups the differences by what applying them in `mode` would do.
func Changes(diff tree.DiffResult, mode config.Mode) (adds, deletes, updates []string) {
	for _, entry := range diff.Entries {
		name := entry.RelativePath
		if isDir(entry) {
			name += "/"
		}

		switch {
		case entry.Kind == tree.Modified:
			updates = append(updates, name)
		case entry.Kind == tree.Added && mode == config.PullMirror,
			entry.Kind == tree.Removed && mode == config.PushMirror:
			deletes = append(deletes, name)
		case entry.Kind == tree.Added, entry.Kind == tree.Removed:
			adds = append(adds, name)
		}
	}
	return adds, deletes, updates
}

func isDir(entry tree.DiffEntry) bool {
	return (entry.Local != nil && entry.Local.IsDirectory) ||
		(entry.Remote != nil && entry.Remote.IsDirectory)
}

// RenderPreview prints what syncing `pair` would do.
func RenderPreview(out io.Writer, pair config.SyncPair, diff tree.DiffResult) {
	adds, deletes, updates := Changes(diff, pair.Mode)
	fmt.Fprintf(out, "Preview of %s (%s): %s <-> %s\n",
		pair.Name, pair.Mode, pair.LocalRoot, pair.RemoteRoot)

	if len(adds)+len(deletes)+len(updates) == 0 {
		fmt.Fprintln(out, "(no changes)")
		return
	}

	for _, path := range deletes {
		fmt.Fprintf(out, "%s %s\n", goterm.Color("DELETE:", goterm.RED), path)
	}
	for _, path := range adds {
		fmt.Fprintf(out, "%s %s\n", goterm.Color("ADD:", goterm.GREEN), path)
	}
	for _, path := range updates {
		fmt.Fprintf(out, "%s %s\n", goterm.Color("UPDATE:", goterm.YELLOW), path)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "+%d to add | -%d to delete | ~%d to overwrite\n",
		len(adds), len(deletes), len(updates))

	if len(deletes)+len(updates) == 0 {
		return
	}

	localTrash, remoteTrash, err := pair.TrashRoots()
	if err != nil {
		return
	}
	switch pair.Mode {
	case config.PushMirror:
		fmt.Fprintf(out, "Deleted and overwritten files will be moved to %s on the peer.\n", remoteTrash)
	case config.PullMirror:
		fmt.Fprintf(out, "Deleted and overwritten files will be moved to %s.\n", localTrash)
	default:
		fmt.Fprintf(out, "Overwritten files will be moved to %s or to %s on the peer.\n",
			localTrash, remoteTrash)
	}
}

// RenderReport prints the outcome of a sync.
func RenderReport(out io.Writer, report sync.SyncReport) {
	fmt.Fprintf(out, "Copied %d files, trashed %d.\n", len(report.Copied), len(report.Trashed))

	for _, conflict := range report.Conflicts {
		fmt.Fprintf(out, "%s %s (kept the local version)\n",
			goterm.Color("CONFLICT:", goterm.YELLOW), conflict)
	}
	for _, failure := range report.Failed {
		fmt.Fprintf(out, "%s %s\n", goterm.Color("FAILED:", goterm.RED), failure)
	}
	if report.Cancelled {
		fmt.Fprintln(out, goterm.Color("Cancelled before all changes were applied.", goterm.YELLOW))
	}

	status := string(report.Status())
	switch report.Status() {
	case sync.StatusSuccess:
		status = goterm.Color(status, goterm.GREEN)
	case sync.StatusPartial:
		status = goterm.Color(status, goterm.YELLOW)
	default:
		status = goterm.Color(status, goterm.RED)
	}
	fmt.Fprintf(out, "Status: %s (%d bytes transferred)\n", status, report.BytesTransferred)
}
