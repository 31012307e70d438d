// Package transfer implements copy, delete and rename on stores that may
// refuse deletes.
//
// Deletion is never assumed to work: a refused delete falls back to copying
// the object under the trash prefix, and the original stays in place.
// Renames copy first and only attempt deletion once every copy succeeded.
//
// Object keys passed to this package are absolute. Prefix arguments are
// relative to the browsing root.
package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/pkg/browse"
	"github.com/3leaps/bucketnav/pkg/crawler"
	"github.com/3leaps/bucketnav/pkg/keyspace"
	"github.com/3leaps/bucketnav/pkg/provider"
	"github.com/3leaps/bucketnav/pkg/workpool"
)

// DefaultContentType is used when the source object carries none.
const DefaultContentType = "application/octet-stream"

// Options tune a Mutator.
type Options struct {
	// CopyConcurrency bounds parallel copies during a prefix rename.
	// Default: 4
	CopyConcurrency int

	// UploadConcurrency bounds parallel uploads.
	// Default: 5
	UploadConcurrency int

	// TrashConcurrency bounds parallel copies into the trash.
	// Zero starts one copy per key.
	TrashConcurrency int

	// RetryBufferMaxMemoryBytes is the largest body held in memory
	// during a copy. Default: DefaultRetryBufferMaxMemoryBytes
	RetryBufferMaxMemoryBytes int64

	// PageSize is the MaxKeys used when enumerating a prefix.
	PageSize int

	// Clock stamps trash locations. Default: time.Now
	Clock func() time.Time

	Logger *zap.Logger
}

// DefaultOptions returns the default mutation options.
func DefaultOptions() Options {
	return Options{
		CopyConcurrency:           4,
		UploadConcurrency:         5,
		RetryBufferMaxMemoryBytes: DefaultRetryBufferMaxMemoryBytes,
		Clock:                     time.Now,
	}
}

// DeleteOutcome is the result of a delete attempt.
type DeleteOutcome int

const (
	// Deleted means the store removed the object.
	Deleted DeleteOutcome = iota
	// Denied means the store refused or the request failed.
	Denied
)

func (o DeleteOutcome) String() string {
	if o == Deleted {
		return "deleted"
	}
	return "denied"
}

// Mutator performs mutations against one store and browsing config.
type Mutator struct {
	store   provider.ReadWriter
	deleter provider.ObjectDeleter
	cfg     browse.Config
	opts    Options
	lister  *crawler.Crawler
	log     *zap.Logger
}

// New creates a Mutator. p must support GetObject and PutObject. A provider
// without DeleteObject has every delete denied.
func New(p provider.Provider, cfg browse.Config, opts Options) (*Mutator, error) {
	rw, ok := p.(provider.ReadWriter)
	if !ok {
		return nil, ErrNotWritable
	}
	def := DefaultOptions()
	if opts.CopyConcurrency <= 0 {
		opts.CopyConcurrency = def.CopyConcurrency
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = def.UploadConcurrency
	}
	if opts.TrashConcurrency < 0 {
		opts.TrashConcurrency = 0
	}
	if opts.RetryBufferMaxMemoryBytes <= 0 {
		opts.RetryBufferMaxMemoryBytes = def.RetryBufferMaxMemoryBytes
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	m := &Mutator{
		store:  rw,
		cfg:    cfg,
		opts:   opts,
		lister: crawler.New(p, crawler.Config{PageSize: opts.PageSize}),
		log:    log,
	}
	m.deleter, _ = p.(provider.ObjectDeleter)
	return m, nil
}

// Copy downloads src and uploads it to dst with the same content type.
// Any failure is a *CopyError.
func (m *Mutator) Copy(ctx context.Context, src, dst string) error {
	obj, err := m.store.GetObject(ctx, src)
	if err != nil {
		return &CopyError{Src: src, Dst: dst, Leg: LegGet, Err: err}
	}
	body, err := spool(ctx, src, obj.Body, obj.ContentLength, m.opts.RetryBufferMaxMemoryBytes)
	if err != nil {
		return &CopyError{Src: src, Dst: dst, Leg: LegBuffer, Err: err}
	}
	defer func() { _ = body.Close() }()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	if err := m.store.PutObject(ctx, dst, body.Reader(), body.Size(), contentType); err != nil {
		return &CopyError{Src: src, Dst: dst, Leg: LegPut, Err: err}
	}
	m.log.Debug("copied object", zap.String("src", src), zap.String("dst", dst), zap.Int64("bytes", body.Size()))
	return nil
}

// Delete attempts to delete key. Every failure, not only a refusal, is
// reported as Denied.
func (m *Mutator) Delete(ctx context.Context, key string) DeleteOutcome {
	if m.deleter == nil {
		return Denied
	}
	if err := m.deleter.DeleteObject(ctx, key); err != nil {
		m.log.Debug("delete refused", zap.String("key", key), zap.Error(err))
		return Denied
	}
	return Deleted
}

// TrashObject copies key under a fresh timestamped trash location and
// returns the trash key. The original is left in place.
func (m *Mutator) TrashObject(ctx context.Context, key string) (string, error) {
	dst := keyspace.TrashKey(m.cfg.TrashPrefix, m.timestamp(), key)
	if err := m.Copy(ctx, key, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// DeleteResult describes a single-object delete.
type DeleteResult struct {
	Key      string
	Outcome  DeleteOutcome
	TrashKey string
}

// Trashed reports whether the object was copied to trash instead of deleted.
func (r *DeleteResult) Trashed() bool { return r.TrashKey != "" }

// DeleteObject deletes key, or copies it to trash when the delete is denied.
func (m *Mutator) DeleteObject(ctx context.Context, key string) (*DeleteResult, error) {
	res := &DeleteResult{Key: key, Outcome: m.Delete(ctx, key)}
	if res.Outcome == Deleted {
		return res, nil
	}
	m.log.Warn("delete denied, copying to trash", zap.String("key", key))
	trashKey, err := m.TrashObject(ctx, key)
	if err != nil {
		return res, err
	}
	res.TrashKey = trashKey
	return res, nil
}

// RenameResult describes a single-object rename.
type RenameResult struct {
	Src string
	Dst string
	DeleteResult
}

// RenameObject copies src to dst, then deletes src with trash fallback.
// Nothing is deleted when the copy fails.
func (m *Mutator) RenameObject(ctx context.Context, src, dst string) (*RenameResult, error) {
	if src == dst {
		return nil, ErrUnchanged
	}
	if err := m.Copy(ctx, src, dst); err != nil {
		return nil, err
	}
	del, err := m.DeleteObject(ctx, src)
	res := &RenameResult{Src: src, Dst: dst, DeleteResult: *del}
	return res, err
}

// DeletePrefix deletes every key under the root-relative prefix, one at a
// time in listing order. It returns false at the first denied delete
// without trying the remaining keys; earlier deletes are not undone.
// An error is returned only when the prefix cannot be listed.
func (m *Mutator) DeletePrefix(ctx context.Context, rel string) (bool, error) {
	full, err := m.absPrefix(rel)
	if err != nil {
		return false, err
	}
	keys, err := m.lister.Keys(ctx, full)
	if err != nil {
		return false, err
	}
	for i, key := range keys {
		if m.Delete(ctx, key) == Denied {
			m.log.Warn("prefix delete stopped",
				zap.String("prefix", full),
				zap.String("key", key),
				zap.Int("deleted", i),
				zap.Int("remaining", len(keys)-i))
			return false, nil
		}
	}
	return true, nil
}

// TrashResult describes a prefix copied into the trash.
type TrashResult struct {
	// Prefix is the absolute prefix that was trashed.
	Prefix string
	// Root is the timestamped trash prefix holding the copies.
	Root string
	// Copied are the trash keys written, in listing order.
	Copied []string
	// Failed are the source keys whose copy failed.
	Failed []string
}

// TrashPrefix copies every key under the root-relative prefix to one
// timestamped trash location. Originals are left untouched. Copy failures
// are collected and returned joined after every key was attempted.
func (m *Mutator) TrashPrefix(ctx context.Context, rel string) (*TrashResult, error) {
	full, err := m.absPrefix(rel)
	if err != nil {
		return nil, err
	}
	keys, err := m.lister.Keys(ctx, full)
	if err != nil {
		return nil, err
	}

	ts := m.timestamp()
	res := &TrashResult{Prefix: full, Root: keyspace.TrashKey(m.cfg.TrashPrefix, ts, "")}
	dsts := make([]string, len(keys))
	for i, k := range keys {
		dsts[i] = keyspace.TrashKey(m.cfg.TrashPrefix, ts, k)
	}

	results := workpool.Run(ctx, m.opts.TrashConcurrency, keys, func(ctx context.Context, i int, key string) error {
		return m.Copy(ctx, key, dsts[i])
	})
	for _, r := range results {
		if r.Err != nil {
			res.Failed = append(res.Failed, keys[r.Index])
			m.log.Warn("trash copy failed", zap.String("key", keys[r.Index]), zap.Error(r.Err))
			continue
		}
		res.Copied = append(res.Copied, dsts[r.Index])
	}
	if err := workpool.Errors(results); err != nil {
		return res, fmt.Errorf("trash %s: %w", full, err)
	}
	return res, nil
}

// RemoveResult describes a prefix removal.
type RemoveResult struct {
	Prefix  string
	Outcome DeleteOutcome
	// Trash is set when deletion was denied and the prefix was trashed.
	Trash *TrashResult
}

// RemovePrefix deletes the prefix and, if any delete is denied, copies the
// whole prefix into the trash.
func (m *Mutator) RemovePrefix(ctx context.Context, rel string) (*RemoveResult, error) {
	full, err := m.absPrefix(rel)
	if err != nil {
		return nil, err
	}
	ok, err := m.DeletePrefix(ctx, rel)
	if err != nil {
		return nil, err
	}
	res := &RemoveResult{Prefix: full, Outcome: Deleted}
	if ok {
		return res, nil
	}
	res.Outcome = Denied
	res.Trash, err = m.TrashPrefix(ctx, rel)
	return res, err
}

// PrefixRenameResult describes a prefix rename.
type PrefixRenameResult struct {
	Old string
	New string
	// Copied are the new keys written, in listing order.
	Copied []string
	// Failed are the old keys whose copy failed.
	Failed []string
	// Removal is the outcome of removing the old prefix. It is nil when a
	// copy failed and nothing was removed.
	Removal *RemoveResult
}

// RenamePrefix copies every key under oldRel to the same suffix under
// newRel, then removes oldRel with trash fallback. If any copy fails no
// deletion is attempted.
func (m *Mutator) RenamePrefix(ctx context.Context, oldRel, newRel string) (*PrefixRenameResult, error) {
	fullOld, err := m.absPrefix(oldRel)
	if err != nil {
		return nil, err
	}
	fullNew, err := m.absPrefix(newRel)
	if err != nil {
		return nil, err
	}
	switch {
	case fullOld == fullNew:
		return nil, ErrSamePrefix
	case strings.HasPrefix(fullNew, fullOld):
		return nil, fmt.Errorf("%w: %s under %s", ErrNestedPrefix, fullNew, fullOld)
	}

	keys, err := m.lister.Keys(ctx, fullOld)
	if err != nil {
		return nil, err
	}
	res := &PrefixRenameResult{Old: fullOld, New: fullNew}
	dsts := make([]string, len(keys))
	for i, k := range keys {
		dsts[i] = fullNew + strings.TrimPrefix(k, fullOld)
	}

	results := workpool.Run(ctx, m.opts.CopyConcurrency, keys, func(ctx context.Context, i int, key string) error {
		return m.Copy(ctx, key, dsts[i])
	})
	for _, r := range results {
		if r.Err != nil {
			res.Failed = append(res.Failed, keys[r.Index])
			continue
		}
		res.Copied = append(res.Copied, dsts[r.Index])
	}
	if err := workpool.Errors(results); err != nil {
		m.log.Warn("prefix rename aborted before delete",
			zap.String("old", fullOld), zap.String("new", fullNew), zap.Int("failed", len(res.Failed)))
		return res, fmt.Errorf("rename %s: %w", fullOld, err)
	}

	res.Removal, err = m.RemovePrefix(ctx, oldRel)
	return res, err
}

func (m *Mutator) absPrefix(rel string) (string, error) {
	p := keyspace.NormalizePrefix(rel)
	if p == "" {
		return "", ErrEmptyPrefix
	}
	return m.cfg.Absolute(p), nil
}

func (m *Mutator) timestamp() string {
	return keyspace.TrashTimestamp(m.opts.Clock())
}
