package match

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/bucketnav/pkg/provider"
)

// Selector narrows enumerated objects for search-style commands.
//
// An object is selected when it matches at least one include rule (or no
// includes are configured), matches no exclude rule, and falls inside the
// optional size and modification windows.
type Selector struct {
	includes *Set
	excludes *Set

	minSize int64 // -1 means no minimum
	maxSize int64 // -1 means no maximum
	after   time.Time
	before  time.Time
}

// SelectorConfig configures a Selector.
type SelectorConfig struct {
	Includes []string
	Excludes []string

	// MinSize and MaxSize accept raw bytes or units: "10KB", "1.5MiB".
	MinSize string
	MaxSize string

	// After (inclusive) and Before (exclusive) accept "2006-01-02" or RFC 3339.
	After  string
	Before string
}

// Selector errors.
var (
	ErrInvalidSize = errors.New("invalid size value")
	ErrInvalidDate = errors.New("invalid date value")
)

// NewSelector builds a Selector from cfg.
func NewSelector(cfg SelectorConfig) (*Selector, error) {
	inc, err := NewSet(cfg.Includes...)
	if err != nil {
		return nil, err
	}
	exc, err := NewSet(cfg.Excludes...)
	if err != nil {
		return nil, err
	}
	sel := &Selector{includes: inc, excludes: exc, minSize: -1, maxSize: -1}

	if cfg.MinSize != "" {
		if sel.minSize, err = ParseSize(cfg.MinSize); err != nil {
			return nil, err
		}
	}
	if cfg.MaxSize != "" {
		if sel.maxSize, err = ParseSize(cfg.MaxSize); err != nil {
			return nil, err
		}
	}
	if sel.minSize >= 0 && sel.maxSize >= 0 && sel.minSize > sel.maxSize {
		return nil, fmt.Errorf("%w: min (%d) > max (%d)", ErrInvalidSize, sel.minSize, sel.maxSize)
	}

	if cfg.After != "" {
		if sel.after, err = parseDate(cfg.After); err != nil {
			return nil, err
		}
	}
	if cfg.Before != "" {
		if sel.before, err = parseDate(cfg.Before); err != nil {
			return nil, err
		}
	}
	if !sel.after.IsZero() && !sel.before.IsZero() && !sel.after.Before(sel.before) {
		return nil, fmt.Errorf("%w: after (%s) >= before (%s)", ErrInvalidDate, cfg.After, cfg.Before)
	}
	return sel, nil
}

// Select reports whether obj passes every configured criterion. rel is the
// key relative to the browsing root, which is what patterns are written
// against.
func (s *Selector) Select(rel string, obj *provider.ObjectSummary) bool {
	if s.includes.Len() > 0 && !s.includes.Match(rel) {
		return false
	}
	if s.excludes.Match(rel) {
		return false
	}
	if s.minSize >= 0 && obj.Size < s.minSize {
		return false
	}
	if s.maxSize >= 0 && obj.Size > s.maxSize {
		return false
	}
	if !s.after.IsZero() && obj.LastModified.Before(s.after) {
		return false
	}
	if !s.before.IsZero() && !obj.LastModified.Before(s.before) {
		return false
	}
	return true
}

// Size unit multipliers.
const (
	KB int64 = 1000
	MB       = 1000 * KB
	GB       = 1000 * MB
	TB       = 1000 * GB

	KiB int64 = 1024
	MiB       = 1024 * KiB
	GiB       = 1024 * MiB
	TiB       = 1024 * GiB
)

// ParseSize parses a human-readable size. KB/MB/GB are base-10 and
// KiB/MiB/GiB base-2. Units are case insensitive.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.') {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	var mult int64
	switch strings.ToUpper(strings.TrimSpace(s[end:])) {
	case "", "B":
		mult = 1
	case "K", "KB":
		mult = KB
	case "M", "MB":
		mult = MB
	case "G", "GB":
		mult = GB
	case "T", "TB":
		mult = TB
	case "KI", "KIB":
		mult = KiB
	case "MI", "MIB":
		mult = MiB
	case "GI", "GIB":
		mult = GiB
	case "TI", "TIB":
		mult = TiB
	default:
		return 0, fmt.Errorf("%w: unknown unit in %q", ErrInvalidSize, s)
	}

	num, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	bytes := num * float64(mult)
	if bytes > float64(1<<63-1) {
		return 0, fmt.Errorf("%w: size overflows int64", ErrInvalidSize)
	}
	return int64(bytes), nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
