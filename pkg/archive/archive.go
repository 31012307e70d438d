// Package archive streams a set of objects into a single ZIP.
//
// Objects are fetched concurrently and written as stored (uncompressed)
// entries in input order. Each fetch hands chunks to the writer through a
// small buffer, so memory stays bounded by the fetch concurrency rather than
// by object sizes.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/pkg/browse"
	"github.com/3leaps/bucketnav/pkg/keyspace"
	"github.com/3leaps/bucketnav/pkg/provider"
	"github.com/3leaps/bucketnav/pkg/workpool"
)

const (
	// DefaultChunkSize is the read size for object bodies.
	DefaultChunkSize = 32 << 10

	// chunkBuffer is the number of chunks a fetch may get ahead of the writer.
	chunkBuffer = 16

	// Extension is appended to archive names.
	Extension = ".zip"
)

// ErrNoFiles is returned when Build is given nothing to archive.
var ErrNoFiles = errors.New("no files to archive")

// Source is one object to include.
type Source struct {
	// Name is the entry name inside the archive.
	Name string
	// Key is the absolute object key.
	Key string
	// Modified is the entry time. Zero uses the build time.
	Modified time.Time
}

// Progress is a snapshot of a build.
type Progress struct {
	FileCount      int
	FilesCompleted int
	// BytesKnown is the sum of Content-Length of the bodies opened so far.
	BytesKnown int64
	// BytesTransferred counts bytes received from the store, in any file
	// order, not only those already written to the archive.
	BytesTransferred int64
	// Fraction is in [0,1], never decreases, and is 1 only once every
	// file has been written.
	Fraction float64
}

// Options configure a Builder.
type Options struct {
	// Concurrency bounds parallel fetches. Zero fetches every file at once.
	Concurrency int

	// ChunkSize is the body read size. Default: DefaultChunkSize
	ChunkSize int

	// OnProgress is called from the writing goroutine after every chunk
	// and every completed file.
	OnProgress func(Progress)

	Logger *zap.Logger
}

// Builder builds archives from one object store.
type Builder struct {
	getter provider.ObjectGetter
	opts   Options
	log    *zap.Logger
}

// New creates a Builder reading objects through g.
func New(g provider.ObjectGetter, opts Options) *Builder {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Concurrency < 0 {
		opts.Concurrency = 0
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{getter: g, opts: opts, log: log}
}

// Name returns the download name for an archive of prefix.
func Name(prefix string) string {
	return keyspace.ArchiveName(prefix) + Extension
}

// CanDownloadAll reports whether a page offers downloading all of its files
// at once: the feature must be allowed and the page must hold at least two
// files.
func CanDownloadAll(entries []browse.Entry, allowed bool) bool {
	return allowed && len(browse.Files(entries)) >= 2
}

// Sources turns the file entries of a page into archive sources.
func Sources(entries []browse.Entry) []Source {
	files := browse.Files(entries)
	out := make([]Source, len(files))
	for i, e := range files {
		out[i] = Source{Name: e.Name, Key: e.Key}
		if e.LastModified != nil {
			out[i].Modified = *e.LastModified
		}
	}
	return out
}

type stream struct {
	chunks chan []byte
	// err is set before chunks is closed.
	err error
}

// Build writes a ZIP of files to w and returns the final progress. The
// first fetch failure aborts the build; w then holds a truncated archive.
func (b *Builder) Build(ctx context.Context, files []Source, w io.Writer) (*Progress, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streams := make([]*stream, len(files))
	for i := range streams {
		streams[i] = &stream{chunks: make(chan []byte, chunkBuffer)}
	}

	var (
		counts   counters
		firstErr error
		errOnce  sync.Once
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
		cancel()
	}

	fetched := make(chan struct{})
	go func() {
		defer close(fetched)
		workpool.Run(ctx, b.opts.Concurrency, files, func(ctx context.Context, i int, src Source) error {
			st := streams[i]
			st.err = b.fetch(ctx, src, st.chunks, &counts)
			close(st.chunks)
			if st.err != nil {
				fail(st.err)
			}
			return st.err
		})
	}()

	prog, err := b.write(ctx, files, streams, &counts, w)
	cancel()
	<-fetched
	if firstErr != nil {
		return prog, firstErr
	}
	return prog, err
}

// counters are shared by the fetchers and read by the writer.
type counters struct {
	known    atomic.Int64
	received atomic.Int64
}

func (b *Builder) fetch(ctx context.Context, src Source, out chan<- []byte, counts *counters) error {
	obj, err := b.getter.GetObject(ctx, src.Key)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", src.Key, err)
	}
	defer func() { _ = obj.Body.Close() }()
	if obj.ContentLength > 0 {
		counts.known.Add(obj.ContentLength)
	}

	for {
		buf := make([]byte, b.opts.ChunkSize)
		n, err := obj.Body.Read(buf)
		if n > 0 {
			counts.received.Add(int64(n))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- buf[:n]:
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", src.Key, err)
		}
	}
}

func (b *Builder) write(ctx context.Context, files []Source, streams []*stream, counts *counters, w io.Writer) (*Progress, error) {
	zw := zip.NewWriter(w)
	tr := tracker{prog: Progress{FileCount: len(files)}, counts: counts, notify: b.opts.OnProgress}
	now := time.Now()

	for i, src := range files {
		modified := src.Modified
		if modified.IsZero() {
			modified = now
		}
		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     src.Name,
			Method:   zip.Store,
			Modified: modified,
		})
		if err != nil {
			return tr.snapshot(), fmt.Errorf("add %s: %w", src.Name, err)
		}

		st := streams[i]
	entryLoop:
		for {
			select {
			case <-ctx.Done():
				return tr.snapshot(), ctx.Err()
			case chunk, ok := <-st.chunks:
				if !ok {
					if st.err != nil {
						return tr.snapshot(), st.err
					}
					break entryLoop
				}
				if _, err := entry.Write(chunk); err != nil {
					return tr.snapshot(), fmt.Errorf("write %s: %w", src.Name, err)
				}
				tr.update()
			}
		}
		tr.completeFile()
		b.log.Debug("archived", zap.String("key", src.Key), zap.Int("completed", tr.prog.FilesCompleted))
	}

	if err := zw.Close(); err != nil {
		return tr.snapshot(), fmt.Errorf("finish archive: %w", err)
	}
	tr.finish()
	return tr.snapshot(), nil
}

// tracker is touched only by the writing goroutine.
type tracker struct {
	prog   Progress
	counts *counters
	notify func(Progress)
}

func (t *tracker) completeFile() {
	t.prog.FilesCompleted++
	t.update()
}

func (t *tracker) finish() {
	t.prog.BytesTransferred = t.counts.received.Load()
	t.prog.Fraction = 1
	t.emit()
}

func (t *tracker) update() {
	t.prog.BytesKnown = t.counts.known.Load()
	t.prog.BytesTransferred = max(t.prog.BytesTransferred, t.counts.received.Load())
	var byBytes float64
	if t.prog.BytesKnown > 0 {
		byBytes = min(float64(t.prog.BytesTransferred)/float64(t.prog.BytesKnown), 1)
	}
	byFiles := float64(t.prog.FilesCompleted) / float64(t.prog.FileCount)
	// byFiles stays below 1 until the last file, so f does too.
	f := (byBytes + byFiles) / 2
	t.prog.Fraction = max(t.prog.Fraction, f)
	t.emit()
}

func (t *tracker) emit() {
	if t.notify != nil {
		t.notify(t.prog)
	}
}

func (t *tracker) snapshot() *Progress {
	p := t.prog
	return &p
}
