package remote

import (
	"bufio"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
)

// Exit codes used by the listing scripts.
const (
	ExitRootMissing   = 3
	ExitRootNotADir   = 4
	touchTimestampFmt = "200601021504.05"
)

// Entry is one line of a remote listing.
type Entry struct {
	// Path is relative to the listed root, and uses forward slashes.
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// QuotePath quotes a remote path for the shell. A leading `~` is replaced
// with $HOME so that it still expands after quoting.
func QuotePath(p string) string {
	switch {
	case p == "~":
		return `"$HOME"`
	case strings.HasPrefix(p, "~/"):
		return `"$HOME"/` + shellescape.Quote(strings.TrimPrefix(p, "~/"))
	}
	return shellescape.Quote(p)
}

// The listing is printed as `TYPE\tSIZE\tMTIME\tPATH`. GNU find supports
// -printf; BSD systems (macOS) fall back to stat -f, which prints a
// different type name and a "./" prefix that ParseListing accepts.
const listScript = `root=%s
if [ ! -e "$root" ]; then exit 3; fi
if [ ! -d "$root" ]; then exit 4; fi
cd "$root" || exit 4
if find . -maxdepth 0 -printf '' >/dev/null 2>&1; then
  find . -mindepth 1 \( -type f -o -type d \) -printf '%%y\t%%s\t%%T@\t%%P\n'
else
  find . -mindepth 1 \( -type f -o -type d \) -exec stat -f '%%HT%%t%%z%%t%%m%%t%%N' {} +
fi`

const statScript = `p=%s
if [ ! -e "$p" ]; then exit 3; fi
if find "$p" -maxdepth 0 -printf '' >/dev/null 2>&1; then
  find "$p" -maxdepth 0 -printf '%%y\t%%s\t%%T@\t.\n'
else
  stat -f '%%HT%%t%%z%%t%%m%%t.' "$p"
fi`

// ListCommand returns a command that lists every file and directory under
// `root`, recursively.
func ListCommand(root string) string {
	return fmt.Sprintf(listScript, QuotePath(root))
}

// StatCommand returns a command that prints a single listing line for `p`,
// with the path ".".
func StatCommand(p string) string {
	return fmt.Sprintf(statScript, QuotePath(p))
}

// MkdirCommand returns a command that creates `dir` and its parents.
func MkdirCommand(dir string) string {
	return "mkdir -p " + QuotePath(dir)
}

const trashScript = `src=%s
dst=%s
root=%s
if [ ! -e "$src" ] && [ ! -L "$src" ]; then exit 3; fi
mkdir -p "$(dirname "$dst")" || exit 1
base="$dst"
n=1
while [ -e "$dst" ] || [ -L "$dst" ]; do
  dst="${base}_$n"
  n=$((n+1))
done
mv "$src" "$dst" || exit 1
printf '%%s\n' "$dst"
if [ -n "$root" ]; then
  d=$(dirname "$src")
  while [ "$d" != "$root" ] && [ "$d" != "/" ] && [ "$d" != "." ] && rmdir "$d" 2>/dev/null; do
    d=$(dirname "$d")
  done
fi
exit 0`

// TrashCommand returns a command that moves `src` to `dst`, creating the
// parents of `dst`. If `dst` is taken, a `_N` suffix is appended. The command
// prints the path that `src` was moved to, and exits with ExitRootMissing if
// `src` doesn't exist.
//
// If `root` is set, the directories between `src` and `root` that are left
// empty are removed.
func TrashCommand(src, dst, root string) string {
	return fmt.Sprintf(trashScript, QuotePath(src), QuotePath(dst), QuotePath(root))
}

// ReceiveCommand returns a command that writes its stdin to `p` and sets
// the modification time.
func ReceiveCommand(p string, modTime time.Time) string {
	return fmt.Sprintf("mkdir -p %s && cat > %s && TZ=UTC touch -t %s %s",
		QuotePath(path.Dir(p)), QuotePath(p),
		modTime.UTC().Format(touchTimestampFmt), QuotePath(p))
}

// SendCommand returns a command that writes the contents of `p` to stdout.
func SendCommand(p string) string {
	return "cat " + QuotePath(p)
}

// ParseListing parses the output of ListCommand or StatCommand.
func ParseListing(out string) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		entry, err := parseListingLine(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseListingLine(line string) (Entry, error) {
	fields := strings.SplitN(line, "\t", 4)
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf("malformed listing line %q", line)
	}

	var entry Entry
	switch fields[0] {
	case "f", "Regular File":
	case "d", "Directory":
		entry.IsDir = true
	default:
		return Entry{}, fmt.Errorf("unexpected file type %q", fields[0])
	}

	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parse size %q: %s", fields[1], err)
	}
	entry.Size = size

	modTime, err := parseUnixTime(fields[2])
	if err != nil {
		return Entry{}, fmt.Errorf("parse mtime %q: %s", fields[2], err)
	}
	entry.ModTime = modTime

	entry.Path = strings.TrimPrefix(fields[3], "./")
	if entry.Path == "" {
		entry.Path = "."
	}
	return entry, nil
}

// parseUnixTime parses seconds since the epoch, with an optional fractional
// part.
func parseUnixTime(s string) (time.Time, error) {
	secStr, fracStr := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		secStr, fracStr = s[:i], s[i+1:]
	}

	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	var nsec int64
	if fracStr != "" {
		if len(fracStr) > 9 {
			fracStr = fracStr[:9]
		}
		frac, err := strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		nsec = frac * int64(math.Pow10(9-len(fracStr)))
	}
	return time.Unix(sec, nsec).UTC(), nil
}
