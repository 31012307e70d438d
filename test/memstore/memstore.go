// Package memstore is an in-memory object store for tests.
//
// It implements the provider interfaces with S3 listing semantics:
// lexicographic key order, delimiter roll-up into common prefixes counted
// against MaxKeys, and opaque continuation tokens. Hooks let tests deny
// deletes, fail individual operations and observe concurrency.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3leaps/bucketnav/pkg/provider"
)

// DefaultPageSize matches the S3 default for MaxKeys.
const DefaultPageSize = 1000

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Store is an in-memory provider. The zero value is not usable; call New.
type Store struct {
	mu      sync.Mutex
	objects map[string]object
	now     func() time.Time

	// DenyDelete refuses deletion of matching keys with ErrDeleteDenied.
	DenyDelete func(key string) bool
	// FailGet, FailPut and FailList inject errors. A nil return means proceed.
	FailGet  func(key string) error
	FailPut  func(key string) error
	FailList func(opts provider.ListOptions) error
	// OmitDelimiter drops the delimiter marker from listings.
	OmitDelimiter bool
	// Delay is applied to every object operation, to widen overlap windows.
	Delay time.Duration

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	lists       atomic.Int64
	deletes     atomic.Int64
}

var (
	_ provider.Provider      = (*Store)(nil)
	_ provider.ObjectGetter  = (*Store)(nil)
	_ provider.ObjectPutter  = (*Store)(nil)
	_ provider.ObjectDeleter = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		objects: make(map[string]object),
		now:     time.Now,
	}
}

// Seed stores key with data. Chainable for compact test setup.
func (s *Store) Seed(key string, data []byte, contentType string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: bytes.Clone(data), contentType: contentType, modified: s.now()}
	return s
}

// SeedKeys stores each key with its own name as content.
func (s *Store) SeedKeys(keys ...string) *Store {
	for _, k := range keys {
		s.Seed(k, []byte(k), "")
	}
	return s
}

// SetModified overrides the modification time of key.
func (s *Store) SetModified(key string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.objects[key]; ok {
		o.modified = t
		s.objects[key] = o
	}
}

// Data returns the stored bytes of key.
func (s *Store) Data(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[key]
	return bytes.Clone(o.data), ok
}

// ContentType returns the stored content type of key.
func (s *Store) ContentType(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key].contentType
}

// Has reports whether key exists.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// Keys returns all keys in lexicographic order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedKeysLocked()
}

// KeysWithPrefix returns the sorted keys starting with prefix.
func (s *Store) KeysWithPrefix(prefix string) []string {
	var out []string
	for _, k := range s.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

// MaxInFlight returns the highest number of concurrent object operations seen.
func (s *Store) MaxInFlight() int64 { return s.maxInFlight.Load() }

// ListCalls returns the number of List calls served.
func (s *Store) ListCalls() int64 { return s.lists.Load() }

// DeleteCalls returns the number of DeleteObject calls served.
func (s *Store) DeleteCalls() int64 { return s.deletes.Load() }

func (s *Store) sortedKeysLocked() []string {
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

type item struct {
	key    string
	prefix bool
}

// List implements provider.Provider.
func (s *Store) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lists.Add(1)
	if s.FailList != nil {
		if err := s.FailList(opts); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	keys := s.sortedKeysLocked()
	objects := make(map[string]object, len(keys))
	for _, k := range keys {
		objects[k] = s.objects[k]
	}
	s.mu.Unlock()

	var items []item
	seen := map[string]bool{}
	for _, k := range keys {
		if !strings.HasPrefix(k, opts.Prefix) {
			continue
		}
		if opts.Delimiter != "" {
			rest := k[len(opts.Prefix):]
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				cp := opts.Prefix + rest[:i+len(opts.Delimiter)]
				if !seen[cp] {
					seen[cp] = true
					items = append(items, item{key: cp, prefix: true})
				}
				continue
			}
		}
		items = append(items, item{key: k})
	}

	start := 0
	if opts.ContinuationToken != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(opts.ContinuationToken, "tok-"))
		if err != nil || n < 0 || n > len(items) {
			return nil, fmt.Errorf("memstore: invalid continuation token %q", opts.ContinuationToken)
		}
		start = n
	}
	pageSize := opts.MaxKeys
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	end := min(start+pageSize, len(items))

	res := &provider.ListResult{
		Objects:        []provider.ObjectSummary{},
		CommonPrefixes: []string{},
	}
	if opts.Delimiter != "" && !s.OmitDelimiter {
		res.Delimiter = opts.Delimiter
		res.HasDelimiter = true
	}
	for _, it := range items[start:end] {
		if it.prefix {
			res.CommonPrefixes = append(res.CommonPrefixes, it.key)
			continue
		}
		o := objects[it.key]
		res.Objects = append(res.Objects, provider.ObjectSummary{
			Key:          it.key,
			Size:         int64(len(o.data)),
			ETag:         fmt.Sprintf("%x", len(o.data)),
			LastModified: o.modified,
		})
	}
	if end < len(items) {
		res.IsTruncated = true
		res.ContinuationToken = "tok-" + strconv.Itoa(end)
	}
	return res, nil
}

// Head implements provider.Provider.
func (s *Store) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	defer s.track()()
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	o, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return nil, s.wrap("Head", key, provider.ErrNotFound)
	}
	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{Key: key, Size: int64(len(o.data)), LastModified: o.modified},
		ContentType:   o.contentType,
	}, nil
}

// GetObject implements provider.ObjectGetter.
func (s *Store) GetObject(ctx context.Context, key string) (*provider.Object, error) {
	defer s.track()()
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if s.FailGet != nil {
		if err := s.FailGet(key); err != nil {
			return nil, s.wrap("GetObject", key, err)
		}
	}
	s.mu.Lock()
	o, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return nil, s.wrap("GetObject", key, provider.ErrNotFound)
	}
	return &provider.Object{
		Body:          io.NopCloser(bytes.NewReader(o.data)),
		ContentLength: int64(len(o.data)),
		ContentType:   o.contentType,
	}, nil
}

// PutObject implements provider.ObjectPutter.
func (s *Store) PutObject(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	defer s.track()()
	if err := s.wait(ctx); err != nil {
		return err
	}
	if s.FailPut != nil {
		if err := s.FailPut(key); err != nil {
			return s.wrap("PutObject", key, err)
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return s.wrap("PutObject", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: data, contentType: contentType, modified: s.now()}
	return nil
}

// DeleteObject implements provider.ObjectDeleter.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	defer s.track()()
	s.deletes.Add(1)
	if err := s.wait(ctx); err != nil {
		return err
	}
	if s.DenyDelete != nil && s.DenyDelete(key) {
		return s.wrap("DeleteObject", key, provider.ErrDeleteDenied)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Close implements provider.Provider.
func (s *Store) Close() error { return nil }

func (s *Store) track() func() {
	n := s.inFlight.Add(1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	return func() { s.inFlight.Add(-1) }
}

func (s *Store) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.Delay):
		return nil
	}
}

func (s *Store) wrap(op, key string, err error) error {
	return &provider.ProviderError{Op: op, Provider: provider.ProviderMemory, Bucket: "memory", Key: key, Err: err}
}
