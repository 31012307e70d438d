// Package browse projects one delimiter listing page into folder and file
// entries and drives forward/backward pagination over a prefix.
//
// Browsing is scoped to a root prefix: every prefix handled here is relative
// to it, while provider keys stay absolute.
package browse

import (
	"errors"

	"github.com/3leaps/bucketnav/pkg/keyspace"
	"github.com/3leaps/bucketnav/pkg/match"
)

const (
	// DefaultTrashPrefix is where refused deletes are copied to.
	DefaultTrashPrefix = "_trash/"

	// DefaultPageSize is the number of entries requested per listing page.
	DefaultPageSize = 50

	// MaxPageSize is the largest page size a bucket listing honours.
	MaxPageSize = 1000
)

// Options are the raw settings a Config is built from.
type Options struct {
	// BucketURL is the address listings and object requests go to.
	BucketURL string

	// BucketMaskURL is the base for user-facing object links.
	// Defaults to BucketURL.
	BucketMaskURL string

	// RootPrefix confines browsing; keys outside it are never shown.
	RootPrefix string

	// TrashPrefix is the absolute prefix trash copies are written under.
	TrashPrefix string

	// ExcludePatterns hide matching root-relative keys. See package match.
	ExcludePatterns []string

	// PageSize is the listing page size.
	PageSize int
}

// Config is the validated, immutable browsing configuration.
// It is a value type; copies are independent.
type Config struct {
	BucketURL     string
	BucketMaskURL string
	RootPrefix    string
	TrashPrefix   string
	PageSize      int

	excludes *match.Set
}

// Config errors.
var (
	ErrInvalidPageSize = errors.New("page size must be between 1 and 1000")
)

// NewConfig validates opts and compiles the exclude rules. The trash
// location is added as an exclude rule, relative to the root. A trash
// prefix outside the root needs no rule since nothing under it is listed.
func NewConfig(opts Options) (Config, error) {
	cfg := Config{
		BucketURL:     opts.BucketURL,
		BucketMaskURL: opts.BucketMaskURL,
		RootPrefix:    keyspace.NormalizePrefix(opts.RootPrefix),
		TrashPrefix:   keyspace.NormalizePrefix(opts.TrashPrefix),
		PageSize:      opts.PageSize,
	}
	if cfg.BucketMaskURL == "" {
		cfg.BucketMaskURL = cfg.BucketURL
	}
	if cfg.TrashPrefix == "" {
		cfg.TrashPrefix = DefaultTrashPrefix
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize < 0 || cfg.PageSize > MaxPageSize {
		return Config{}, ErrInvalidPageSize
	}

	set, err := match.NewSet(opts.ExcludePatterns...)
	if err != nil {
		return Config{}, err
	}
	if rel, ok := cfg.Relative(cfg.TrashPrefix); ok && rel != "" {
		if set, err = set.With(match.AnchoredLiteral(rel)); err != nil {
			return Config{}, err
		}
	}
	cfg.excludes = set
	return cfg, nil
}

// Excluded reports whether the root-relative key or prefix is hidden.
func (c Config) Excluded(rel string) bool {
	return c.excludes.Match(rel)
}

// ExcludePatterns returns the effective exclude rules, trash rule included.
func (c Config) ExcludePatterns() []string {
	return c.excludes.Patterns()
}

// Absolute turns a root-relative prefix or key into a bucket key.
func (c Config) Absolute(rel string) string {
	return keyspace.Join(c.RootPrefix, rel)
}

// Relative strips the root prefix from an absolute key.
func (c Config) Relative(key string) (string, bool) {
	return keyspace.Relative(c.RootPrefix, key)
}

// ObjectURL returns the user-facing link for an absolute key.
func (c Config) ObjectURL(key string) string {
	return keyspace.ObjectURL(c.BucketMaskURL, key)
}
