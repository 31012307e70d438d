package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
)

// DefaultRetryBufferMaxMemoryBytes is the largest body held in memory while
// copying. Larger or unknown-size bodies are spooled to a temp file.
const DefaultRetryBufferMaxMemoryBytes int64 = 16 << 20 // 16 MiB

// spooledBody is a fully read, seekable copy of an object body. PUT needs a
// seekable body so providers can set Content-Length and retry.
type spooledBody struct {
	reader  io.ReadSeeker
	size    int64
	cleanup func() error
}

func (b *spooledBody) Reader() io.ReadSeeker { return b.reader }

func (b *spooledBody) Size() int64 { return b.size }

func (b *spooledBody) Close() error {
	if b.cleanup == nil {
		return nil
	}
	return b.cleanup()
}

// spool drains src (closing it) into memory or a temp file. A declared size
// >= 0 is checked against the bytes actually read.
func spool(ctx context.Context, key string, src io.ReadCloser, size, maxMemoryBytes int64) (*spooledBody, error) {
	defer func() { _ = src.Close() }()
	if maxMemoryBytes <= 0 {
		maxMemoryBytes = DefaultRetryBufferMaxMemoryBytes
	}
	r := &ctxReader{ctx: ctx, r: src}

	if size >= 0 && size <= maxMemoryBytes {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) != size {
			return nil, &SizeMismatchError{Key: key, Expected: size, Got: int64(len(data))}
		}
		return &spooledBody{reader: bytes.NewReader(data), size: size}, nil
	}

	f, err := os.CreateTemp("", "bucketnav-copy-*")
	if err != nil {
		return nil, err
	}
	discard := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}

	n, err := io.Copy(f, r)
	if err != nil {
		discard()
		return nil, err
	}
	if size >= 0 && n != size {
		discard()
		return nil, &SizeMismatchError{Key: key, Expected: size, Got: n}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		discard()
		return nil, err
	}

	return &spooledBody{
		reader: f,
		size:   n,
		cleanup: func() error {
			name := f.Name()
			closeErr := f.Close()
			rmErr := os.Remove(name)
			if closeErr != nil {
				return fmt.Errorf("close temp file: %w", closeErr)
			}
			if rmErr != nil {
				return fmt.Errorf("remove temp file: %w", rmErr)
			}
			return nil
		},
	}, nil
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
