package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSnapshot(t *testing.T) {
	snapshot := NewSnapshot("/root", Local, at(5), []FileEntry{
		file("b/c.txt", 3, 1),
		dir("b"),
		dir("empty"),
		file("./a.txt", 1, 1),
		file("a.txt", 2, 2),
		dir("."),
	})

	assert.Equal(t, "/root", snapshot.Root())
	assert.Equal(t, Local, snapshot.Side())
	assert.Equal(t, at(5), snapshot.CapturedAt())
	assert.Equal(t, []string{"a.txt", "b/c.txt", "empty"}, snapshot.Paths())

	a, ok := snapshot.Get("a.txt")
	assert.True(t, ok)
	assert.Equal(t, int64(2), a.Size, "later duplicates win")

	_, ok = snapshot.Get("b")
	assert.False(t, ok, "non-empty directories are implied")

	assert.True(t, snapshot.HasDescendants("b"))
	assert.False(t, snapshot.HasDescendants("a.txt"))
	assert.False(t, snapshot.HasDescendants("bb"))
	assert.Equal(t, int64(5), snapshot.TotalSize())
}

func TestIsIgnored(t *testing.T) {
	for _, name := range []string{".DS_Store", "Thumbs.db", "._photo.jpg",
		"$RECYCLE.BIN", ".parasync-a.txt.tmp"} {
		assert.True(t, IsIgnored(name), name)
	}
	for _, name := range []string{"photo.jpg", ".bashrc", ".git", "DS_Store"} {
		assert.False(t, IsIgnored(name), name)
	}
	assert.True(t, isIgnoredPath(".Trashes/501/file"))
	assert.False(t, isIgnoredPath("docs/file"))
}
