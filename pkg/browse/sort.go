package browse

import (
	"fmt"
	"slices"
	"strings"
)

// SortColumn names a sortable entry attribute.
type SortColumn string

const (
	SortByName         SortColumn = "name"
	SortBySize         SortColumn = "size"
	SortByLastModified SortColumn = "lastModified"
)

// Order is a column and a direction.
type Order struct {
	Column    SortColumn
	Ascending bool
}

// DefaultOrder sorts by name, ascending.
var DefaultOrder = Order{Column: SortByName, Ascending: true}

// ParseOrder parses "column" or "column-asc|desc", e.g. "size-desc".
func ParseOrder(s string) (Order, error) {
	if s == "" {
		return DefaultOrder, nil
	}
	col, dir, _ := strings.Cut(s, "-")
	o := Order{Ascending: true}
	switch strings.ToLower(col) {
	case "name":
		o.Column = SortByName
	case "size":
		o.Column = SortBySize
	case "lastmodified", "modified", "mtime":
		o.Column = SortByLastModified
	default:
		return Order{}, fmt.Errorf("unknown sort column %q", col)
	}
	switch strings.ToLower(dir) {
	case "", "asc":
	case "desc":
		o.Ascending = false
	default:
		return Order{}, fmt.Errorf("unknown sort direction %q", dir)
	}
	return o, nil
}

// SortEntries sorts entries in place. Folders always precede files,
// whatever the direction. Missing values sort first when ascending.
func SortEntries(entries []Entry, o Order) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if a.IsFolder() != b.IsFolder() {
			if a.IsFolder() {
				return -1
			}
			return 1
		}
		c := compareColumn(a, b, o.Column)
		if !o.Ascending {
			c = -c
		}
		return c
	})
}

func compareColumn(a, b Entry, col SortColumn) int {
	switch col {
	case SortBySize:
		if a.IsFolder() {
			return 0
		}
		return cmpInt64(a.Size, b.Size)
	case SortByLastModified:
		switch {
		case a.LastModified == nil && b.LastModified == nil:
			return 0
		case a.LastModified == nil:
			return -1
		case b.LastModified == nil:
			return 1
		}
		return a.LastModified.Compare(*b.LastModified)
	default:
		return strings.Compare(a.Name, b.Name)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
