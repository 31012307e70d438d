// Package keyspace applies a folder view to the flat key space of an object
// store.
//
// Keys are opaque strings; "/" is only a convention. The helpers here turn
// keys into display names, parent prefixes, object URLs and trash locations
// without ever talking to the store.
package keyspace

import (
	"strings"
	"time"
)

// Delimiter is the separator used to project folders onto keys.
const Delimiter = "/"

// DefaultArchiveName is used when a prefix has no usable segment.
const DefaultArchiveName = "archive"

// CollapseSlashes replaces every run of consecutive "/" with a single "/".
func CollapseSlashes(s string) string {
	if !strings.Contains(s, "//") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prevSlash := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// NormalizePrefix collapses slashes and guarantees a trailing "/" on a
// non-empty prefix. A leading "/" is removed because S3 keys never carry one
// in this view.
func NormalizePrefix(p string) string {
	p = strings.TrimLeft(CollapseSlashes(p), "/")
	if p == "" {
		return ""
	}
	if !strings.HasSuffix(p, Delimiter) {
		p += Delimiter
	}
	return p
}

// IsPrefix reports whether s names a folder (ends with the delimiter).
func IsPrefix(s string) bool {
	return strings.HasSuffix(s, Delimiter)
}

// Name returns the last non-empty segment of a key.
//
//	Name("a/b/c.txt") == "c.txt"
//	Name("a/b/")      == "b"
func Name(key string) string {
	trimmed := strings.TrimRight(key, Delimiter)
	if i := strings.LastIndex(trimmed, Delimiter); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// FolderName returns the display name of a folder prefix, keeping the
// trailing delimiter.
//
//	FolderName("a/b/") == "b/"
func FolderName(prefix string) string {
	n := Name(prefix)
	if n == "" {
		return ""
	}
	return n + Delimiter
}

// Parent returns the prefix that directly contains key or prefix.
// The parent of a top-level entry is "".
func Parent(key string) string {
	trimmed := strings.TrimSuffix(key, Delimiter)
	if i := strings.LastIndex(trimmed, Delimiter); i >= 0 {
		return trimmed[:i+1]
	}
	return ""
}

// Depth returns the number of folder segments in prefix.
func Depth(prefix string) int {
	return strings.Count(CollapseSlashes(prefix), Delimiter)
}

// Relative strips root from an absolute key. Keys outside root are returned
// unchanged with ok=false.
func Relative(root, key string) (rel string, ok bool) {
	if root == "" {
		return key, true
	}
	if !strings.HasPrefix(key, root) {
		return key, false
	}
	return key[len(root):], true
}

// Join concatenates root, prefix and name into an absolute key and collapses
// duplicate slashes introduced by the concatenation.
func Join(parts ...string) string {
	return CollapseSlashes(strings.Join(parts, ""))
}

// TrashTimestamp renders t as an ISO-8601 UTC instant with ":" and "."
// replaced by "-", suitable as a single key segment.
func TrashTimestamp(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}

// TrashKey returns the location an object is copied to when its deletion is
// refused: <trashPrefix><timestamp>/<key>.
func TrashKey(trashPrefix, timestamp, key string) string {
	return Join(trashPrefix, timestamp, Delimiter, key)
}

// ArchiveName returns the base name (without extension) for an archive of
// the given prefix: its last non-empty segment, or DefaultArchiveName.
func ArchiveName(prefix string) string {
	for _, seg := range reverseSegments(prefix) {
		if seg != "" {
			return seg
		}
	}
	return DefaultArchiveName
}

func reverseSegments(p string) []string {
	segs := strings.Split(p, Delimiter)
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return segs
}
