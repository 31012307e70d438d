package browse

import (
	"strings"

	"github.com/3leaps/bucketnav/pkg/keyspace"
)

// ValidPrefix reports whether a user-typed prefix may be navigated to.
// Surrounding spaces and empty segments are rejected, as is a leading "/"
// once the current location is below the root.
func ValidPrefix(prefix, current string) bool {
	switch {
	case prefix == "":
		return true
	case strings.TrimSpace(prefix) != prefix:
		return false
	case strings.Contains(prefix, "//"):
		return false
	case strings.HasPrefix(prefix, "/") && strings.Contains(current, "/"):
		return false
	}
	return true
}

// ResolveSearch interprets a search prefix relative to the folder of current.
func ResolveSearch(current, search string) string {
	return current[:strings.LastIndex(current, keyspace.Delimiter)+1] + search
}

// Crumb is one step of the path from the root to a prefix.
type Crumb struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
}

// Breadcrumbs splits a root-relative prefix into its ancestors, starting
// with the root itself (empty prefix, name "/").
func Breadcrumbs(prefix string) []Crumb {
	crumbs := []Crumb{{Name: keyspace.Delimiter}}
	prefix = keyspace.NormalizePrefix(prefix)
	var acc string
	for _, seg := range strings.Split(strings.TrimSuffix(prefix, keyspace.Delimiter), keyspace.Delimiter) {
		if seg == "" {
			continue
		}
		acc += seg + keyspace.Delimiter
		crumbs = append(crumbs, Crumb{Name: seg, Prefix: acc})
	}
	return crumbs
}
