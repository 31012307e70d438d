// Package file serves a local directory as a bucket.
//
// Keys are slash-separated paths relative to the directory. Directories
// exist only through the files under them, so deleting the last file of a
// folder removes the folder as well, the way prefixes vanish in S3.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/3leaps/bucketnav/pkg/provider"
)

// DefaultMaxKeys is the page size when a listing sets none.
const DefaultMaxKeys = 1000

// tempPrefix names in-progress uploads, which listings skip.
const tempPrefix = ".bucketnav-put-"

// Provider implements provider.Provider over a local directory.
type Provider struct {
	dir string
}

var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.ObjectGetter  = (*Provider)(nil)
	_ provider.ObjectPutter  = (*Provider)(nil)
	_ provider.ObjectDeleter = (*Provider)(nil)
)

// Config configures the file provider.
type Config struct {
	// Dir is the directory served as the bucket root. It must exist.
	Dir string
}

// ErrMissingDir is returned when Config.Dir is empty.
var ErrMissingDir = errors.New("file backend: dir is required")

// Validate checks that cfg names an existing directory.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return ErrMissingDir
	}
	st, err := os.Stat(c.Dir)
	if err != nil {
		return fmt.Errorf("file backend: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("file backend: %s is not a directory", c.Dir)
	}
	return nil
}

// New opens the directory named by cfg.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{dir: filepath.Clean(cfg.Dir)}, nil
}

// Close implements provider.Provider.
func (p *Provider) Close() error { return nil }

type listItem struct {
	key    string
	folder bool
}

// List implements provider.Provider. The continuation token is the last key
// or common prefix returned, and the next page starts strictly after it.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	prefix, keys, err := p.keysWithPrefix(ctx, opts.Prefix)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	var items []listItem
	for _, k := range keys {
		if opts.Delimiter != "" {
			rest := k[len(prefix):]
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				cp := prefix + rest[:i+len(opts.Delimiter)]
				if n := len(items); n == 0 || items[n-1].key != cp {
					items = append(items, listItem{key: cp, folder: true})
				}
				continue
			}
		}
		items = append(items, listItem{key: k})
	}

	start := 0
	if opts.ContinuationToken != "" {
		start, _ = slices.BinarySearchFunc(items, opts.ContinuationToken, func(it listItem, tok string) int {
			return strings.Compare(it.key, tok)
		})
		for start < len(items) && items[start].key <= opts.ContinuationToken {
			start++
		}
	}
	end := min(start+maxKeys, len(items))

	res := &provider.ListResult{
		Objects:        []provider.ObjectSummary{},
		CommonPrefixes: []string{},
	}
	if opts.Delimiter != "" {
		res.Delimiter = opts.Delimiter
		res.HasDelimiter = true
	}
	for _, it := range items[start:end] {
		if it.folder {
			res.CommonPrefixes = append(res.CommonPrefixes, it.key)
			continue
		}
		st, err := os.Stat(p.path(it.key))
		if err != nil || st.IsDir() {
			continue
		}
		res.Objects = append(res.Objects, provider.ObjectSummary{
			Key:          it.key,
			Size:         st.Size(),
			LastModified: st.ModTime(),
		})
	}
	if end < len(items) {
		res.IsTruncated = true
		res.ContinuationToken = items[end-1].key
	}
	return res, nil
}

// keysWithPrefix walks the deepest directory that can hold keys starting
// with prefix and returns the cleaned prefix with the matching keys sorted.
func (p *Provider) keysWithPrefix(ctx context.Context, prefix string) (string, []string, error) {
	rel, err := cleanKey(prefix)
	if err != nil {
		return "", nil, err
	}
	if strings.HasSuffix(prefix, "/") && rel != "" {
		rel += "/"
	}
	walkRoot := p.dir
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		walkRoot = filepath.Join(p.dir, filepath.FromSlash(rel[:i]))
	}
	if _, err := os.Stat(walkRoot); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rel, nil, nil
		}
		return "", nil, err
	}

	var keys []string
	err = filepath.WalkDir(walkRoot, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		r, err := filepath.Rel(p.dir, fp)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(r); strings.HasPrefix(key, rel) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	slices.Sort(keys)
	return rel, keys, nil
}

// Head implements provider.Provider. The content type is sniffed from the
// file contents.
func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, st, err := p.statFile(key)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	meta := &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{Key: key, Size: st.Size(), LastModified: st.ModTime()},
	}
	if mt, err := mimetype.DetectFile(full); err == nil {
		meta.ContentType = mt.String()
	}
	return meta, nil
}

// GetObject implements provider.ObjectGetter.
func (p *Provider) GetObject(ctx context.Context, key string) (*provider.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, st, err := p.statFile(key)
	if err != nil {
		return nil, p.wrapError("GetObject", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, p.wrapError("GetObject", key, err)
	}
	return &provider.Object{Body: f, ContentLength: st.Size()}, nil
}

// PutObject implements provider.ObjectPutter. The file is written to a
// temporary name and renamed into place. contentType is not stored.
func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, err := cleanKey(key)
	if err != nil || rel == "" || strings.HasSuffix(key, "/") {
		return p.wrapError("PutObject", key, fmt.Errorf("invalid object key %q", key))
	}
	full := p.path(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return p.wrapError("PutObject", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), tempPrefix+"*")
	if err != nil {
		return p.wrapError("PutObject", key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	if err := tmp.Close(); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	return nil
}

// DeleteObject implements provider.ObjectDeleter. Deleting a missing key
// succeeds. Directories left empty are removed up to the bucket root.
func (p *Provider) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, err := cleanKey(key)
	if err != nil || rel == "" {
		return p.wrapError("DeleteObject", key, fmt.Errorf("invalid object key %q", key))
	}
	full := p.path(rel)
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return p.wrapError("DeleteObject", key, err)
	}
	for dir := filepath.Dir(full); dir != p.dir && strings.HasPrefix(dir, p.dir); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

func (p *Provider) statFile(key string) (string, os.FileInfo, error) {
	rel, err := cleanKey(key)
	if err != nil {
		return "", nil, err
	}
	full := p.path(rel)
	st, err := os.Stat(full)
	if err != nil {
		return "", nil, err
	}
	if st.IsDir() {
		return "", nil, provider.ErrNotFound
	}
	return full, st, nil
}

func (p *Provider) path(rel string) string {
	return filepath.Join(p.dir, filepath.FromSlash(rel))
}

// cleanKey turns a key into a clean relative slash path. Keys escaping the
// bucket root are rejected.
func cleanKey(key string) (string, error) {
	clean := strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+key)), "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path %q", key)
	}
	if clean == "." {
		clean = ""
	}
	return clean, nil
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Key: key, Err: err}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		wrapped.Err = provider.ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
