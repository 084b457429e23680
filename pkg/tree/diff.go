package tree

import (
	"fmt"
	"sort"
	"time"
)

// ModTimeTolerance is the largest modification time difference between two
// copies of a file that are still considered identical. It absorbs clock skew
// and filesystems with coarse timestamps.
const ModTimeTolerance = 2 * time.Second

// Kind classifies a path from the local side's perspective.
type Kind int

const (
	// Unchanged paths are identical on both sides.
	Unchanged Kind = iota

	// Added paths exist locally, but not on the peer.
	Added

	// Removed paths exist on the peer, but not locally.
	Removed

	// Modified paths exist on both sides with different contents.
	Modified
)

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Inverse returns the classification the path gets when the two sides are
// swapped.
func (k Kind) Inverse() Kind {
	switch k {
	case Added:
		return Removed
	case Removed:
		return Added
	}
	return k
}

// DiffEntry is the classification of one path.
type DiffEntry struct {
	RelativePath string
	Kind         Kind

	// Local and Remote are nil when the path doesn't exist on that side.
	Local  *FileEntry
	Remote *FileEntry
}

// Counts summarizes a DiffResult.
type Counts struct {
	Added     int
	Removed   int
	Modified  int
	Unchanged int
}

// Changes returns the number of paths that aren't Unchanged.
func (c Counts) Changes() int {
	return c.Added + c.Removed + c.Modified
}

// DiffResult is the classification of every path in two snapshots, sorted by
// path.
type DiffResult struct {
	LocalRoot  string
	RemoteRoot string
	Entries    []DiffEntry
	Counts     Counts
}

// Filter returns the entries of the given kinds, in order.
func (d DiffResult) Filter(kinds ...Kind) (entries []DiffEntry) {
	for _, entry := range d.Entries {
		for _, kind := range kinds {
			if entry.Kind == kind {
				entries = append(entries, entry)
				break
			}
		}
	}
	return entries
}

// Diff compares the two snapshots. Every path in either snapshot appears in
// the result exactly once.
//
// A path that's recorded on one side and is only implied as a directory on
// the other (because the other side has files underneath it) isn't missing
// from the other side: it's Unchanged if it's an empty directory, and
// Modified if it's a file.
func Diff(local, remote Snapshot) DiffResult {
	result := DiffResult{
		LocalRoot:  local.Root(),
		RemoteRoot: remote.Root(),
	}

	paths := union(local.paths, remote.paths)
	for _, p := range paths {
		entry := DiffEntry{RelativePath: p}
		localEntry, inLocal := local.Get(p)
		remoteEntry, inRemote := remote.Get(p)
		if inLocal {
			entry.Local = &localEntry
		}
		if inRemote {
			entry.Remote = &remoteEntry
		}

		switch {
		case inLocal && inRemote:
			entry.Kind = compare(localEntry, remoteEntry)
		case inLocal && remote.HasDescendants(p):
			entry.Remote = impliedDir(p)
			entry.Kind = compare(localEntry, *entry.Remote)
		case inRemote && local.HasDescendants(p):
			entry.Local = impliedDir(p)
			entry.Kind = compare(*entry.Local, remoteEntry)
		case inLocal:
			entry.Kind = Added
		default:
			entry.Kind = Removed
		}

		switch entry.Kind {
		case Added:
			result.Counts.Added++
		case Removed:
			result.Counts.Removed++
		case Modified:
			result.Counts.Modified++
		case Unchanged:
			result.Counts.Unchanged++
		}
		result.Entries = append(result.Entries, entry)
	}
	return result
}

func compare(a, b FileEntry) Kind {
	if a.IsDirectory != b.IsDirectory {
		return Modified
	}
	if a.IsDirectory {
		return Unchanged
	}
	if a.Size != b.Size || !SameModTime(a.ModTime, b.ModTime) {
		return Modified
	}
	return Unchanged
}

// SameModTime returns whether the two times are within ModTimeTolerance of
// each other.
func SameModTime(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= ModTimeTolerance
}

func impliedDir(p string) *FileEntry {
	return &FileEntry{RelativePath: p, IsDirectory: true}
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var paths []string
	for _, list := range [][]string{a, b} {
		for _, p := range list {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}
