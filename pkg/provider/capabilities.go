package provider

import (
	"context"
	"io"
)

// Optional provider capability interfaces.
//
// Callers discover them with type assertions; a backend that cannot write
// simply does not implement ObjectPutter.

// Object is an open object body.
type Object struct {
	// Body must be closed by the caller.
	Body io.ReadCloser

	// ContentLength is the body size in bytes, or -1 when unknown.
	ContentLength int64

	// ContentType is the stored MIME type, possibly empty.
	ContentType string
}

// ObjectGetter can download objects as a stream.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) (*Object, error)
}

// ObjectPutter can create or overwrite objects.
//
// contentLength may be -1 when unknown. contentType may be empty, in which
// case the backend applies its own default.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentLength int64, contentType string) error
}

// ObjectDeleter can delete objects.
//
// A refusal by the store is reported as an error wrapping ErrDeleteDenied.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// ReadWriter is a provider that can both download and upload objects, the
// minimum needed for copy-based mutations.
type ReadWriter interface {
	Provider
	ObjectGetter
	ObjectPutter
}
