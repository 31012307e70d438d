package browse

import (
	"time"

	"github.com/3leaps/bucketnav/pkg/keyspace"
	"github.com/3leaps/bucketnav/pkg/provider"
)

// Kind distinguishes folder entries from file entries.
type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// Entry is one row of a projected listing page.
type Entry struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// Name is the display name: the last segment, with a trailing "/" for folders.
	Name string `json:"name" yaml:"name"`

	// Prefix is the root-relative prefix of a folder.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Key is the absolute key of a file.
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// Size is the file size in bytes. Folders carry no size.
	Size int64 `json:"size,omitempty" yaml:"size,omitempty"`

	// LastModified is nil when the store reported none, as for rolled-up
	// common prefixes.
	LastModified *time.Time `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`

	// URL is the user-facing link of a file.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// IsFolder reports whether e is a folder entry.
func (e Entry) IsFolder() bool { return e.Kind == KindFolder }

func (e Entry) identity() string {
	if e.IsFolder() {
		return "d:" + e.Prefix
	}
	return "f:" + e.Key
}

// Project turns one delimiter listing page into entries for query, the
// absolute prefix that was listed.
//
// Common prefixes come first in response order, followed by contents.
// Excluded items, the placeholder for query itself and keys outside the
// root are dropped. A zero-byte key ending in "/" is a folder placeholder.
// When a folder is reported both as a common prefix and as a placeholder,
// one entry remains, carrying the placeholder's modification time.
func Project(res *provider.ListResult, query string, cfg Config) []Entry {
	if res == nil {
		return nil
	}
	entries := make([]Entry, 0, len(res.CommonPrefixes)+len(res.Objects))
	index := make(map[string]int, cap(entries))

	add := func(e Entry) {
		id := e.identity()
		if i, ok := index[id]; ok {
			if entries[i].LastModified == nil && e.LastModified != nil {
				entries[i] = e
			}
			return
		}
		index[id] = len(entries)
		entries = append(entries, e)
	}

	for _, cp := range res.CommonPrefixes {
		rel, ok := cfg.Relative(cp)
		if !ok || cfg.Excluded(rel) {
			continue
		}
		add(Entry{Kind: KindFolder, Name: keyspace.FolderName(rel), Prefix: rel})
	}

	for _, obj := range res.Objects {
		if obj.Key == query {
			continue
		}
		rel, ok := cfg.Relative(obj.Key)
		if !ok || cfg.Excluded(rel) {
			continue
		}
		var modified *time.Time
		if !obj.LastModified.IsZero() {
			t := obj.LastModified
			modified = &t
		}
		if keyspace.IsPrefix(obj.Key) && obj.Size == 0 {
			add(Entry{Kind: KindFolder, Name: keyspace.FolderName(rel), Prefix: rel, LastModified: modified})
			continue
		}
		add(Entry{
			Kind:         KindFile,
			Name:         keyspace.Name(obj.Key),
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: modified,
			URL:          cfg.ObjectURL(obj.Key),
		})
	}
	return entries
}

// Files returns the file entries of entries, preserving order.
func Files(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if !e.IsFolder() {
			out = append(out, e)
		}
	}
	return out
}
