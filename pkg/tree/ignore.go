package tree

import "strings"

// ignoredNames are metadata files created by operating systems and file
// browsers. They're never synced in either direction.
var ignoredNames = map[string]struct{}{
	".DS_Store":                 {},
	"Thumbs.db":                 {},
	"desktop.ini":               {},
	".localized":                {},
	".Spotlight-V100":           {},
	".Trashes":                  {},
	".fseventsd":                {},
	".TemporaryItems":           {},
	"$RECYCLE.BIN":              {},
	"System Volume Information": {},
}

// IsIgnored returns whether a file or directory with the given base name is
// skipped when indexing.
func IsIgnored(name string) bool {
	if _, ok := ignoredNames[name]; ok {
		return true
	}

	// Partial downloads.
	if strings.HasPrefix(name, ".parasync-") && strings.HasSuffix(name, ".tmp") {
		return true
	}

	// AppleDouble files hold resource forks on non-HFS volumes.
	return strings.HasPrefix(name, "._")
}

// isIgnoredPath returns whether any component of the slash separated path is
// ignored.
func isIgnoredPath(p string) bool {
	for _, name := range strings.Split(p, "/") {
		if IsIgnored(name) {
			return true
		}
	}
	return false
}
