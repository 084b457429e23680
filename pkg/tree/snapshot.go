// Package tree builds inventories of directory trees on either side of a
// sync pair, and compares them.
//
// Both sides are reduced to the same Snapshot shape: a set of paths relative
// to the sync root, using forward slashes. Directories are only recorded when
// they're empty. Every other directory is implied by the paths it contains.
package tree

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Side is the machine a snapshot was taken on.
type Side int

const (
	// Local is this machine.
	Local Side = iota

	// Remote is the peer.
	Remote
)

func (s Side) String() string {
	if s == Local {
		return "local"
	}
	return "remote"
}

// FileEntry describes a single file or empty directory.
type FileEntry struct {
	RelativePath string    `json:"relativePath"`
	Size         int64     `json:"size"`
	ModTime      time.Time `json:"modTime"`
	IsDirectory  bool      `json:"isDirectory"`
}

// Snapshot is an immutable inventory of a directory tree.
type Snapshot struct {
	root       string
	side       Side
	capturedAt time.Time

	paths   []string
	entries map[string]FileEntry
}

// NewSnapshot creates a snapshot from the given entries. Paths are cleaned,
// duplicates are collapsed with the last entry winning, and directories that
// contain other entries are dropped since they're implied.
func NewSnapshot(root string, side Side, capturedAt time.Time, entries []FileEntry) Snapshot {
	byPath := map[string]FileEntry{}
	for _, entry := range entries {
		p := cleanRelative(entry.RelativePath)
		if p == "" {
			continue
		}
		entry.RelativePath = p
		byPath[p] = entry
	}

	implied := map[string]struct{}{}
	for p := range byPath {
		for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
			implied[dir] = struct{}{}
		}
	}

	snapshot := Snapshot{
		root:       root,
		side:       side,
		capturedAt: capturedAt,
		entries:    map[string]FileEntry{},
	}
	for p, entry := range byPath {
		if _, ok := implied[p]; ok {
			continue
		}
		snapshot.entries[p] = entry
		snapshot.paths = append(snapshot.paths, p)
	}
	sort.Strings(snapshot.paths)
	return snapshot
}

func cleanRelative(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// Root returns the directory the snapshot was taken of.
func (s Snapshot) Root() string {
	return s.root
}

// Side returns the machine the snapshot was taken on.
func (s Snapshot) Side() Side {
	return s.side
}

// CapturedAt returns when the snapshot was taken.
func (s Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// Len returns the number of recorded entries.
func (s Snapshot) Len() int {
	return len(s.paths)
}

// Paths returns the recorded paths in sorted order.
func (s Snapshot) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Get returns the entry at `p`.
func (s Snapshot) Get(p string) (FileEntry, bool) {
	entry, ok := s.entries[p]
	return entry, ok
}

// Entries returns the recorded entries sorted by path.
func (s Snapshot) Entries() []FileEntry {
	entries := make([]FileEntry, 0, len(s.paths))
	for _, p := range s.paths {
		entries = append(entries, s.entries[p])
	}
	return entries
}

// HasDescendants returns whether any entry lives under the directory `dir`.
func (s Snapshot) HasDescendants(dir string) bool {
	prefix := dir + "/"
	i := sort.SearchStrings(s.paths, prefix)
	return i < len(s.paths) && strings.HasPrefix(s.paths[i], prefix)
}

// TotalSize returns the sum of the sizes of all files.
func (s Snapshot) TotalSize() (total int64) {
	for _, entry := range s.entries {
		if !entry.IsDirectory {
			total += entry.Size
		}
	}
	return total
}
