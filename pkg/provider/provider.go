// Package provider defines the object store surface used by bucketnav.
//
// The core Provider interface covers listing and metadata. Reading, writing
// and deleting objects are optional capabilities discovered through type
// assertions, so read-only backends stay small.
package provider

import (
	"context"
	"net/http"
	"time"
)

// Provider abstracts object store listing operations.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// List returns one page of keys. With a Delimiter, keys that contain the
	// delimiter after Prefix are rolled up into CommonPrefixes.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Head returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	Prefix string

	// Delimiter groups keys into common prefixes. Empty lists recursively.
	Delimiter string

	// ContinuationToken resumes listing from a previous ListResult.
	ContinuationToken string

	// MaxKeys limits keys plus common prefixes per page.
	// Zero uses the store default (typically 1000).
	MaxKeys int
}

// ListResult contains one page of a List operation.
type ListResult struct {
	// Objects are the keys returned on this page.
	Objects []ObjectSummary

	// CommonPrefixes are the rolled-up child prefixes (delimiter listings only).
	CommonPrefixes []string

	// ContinuationToken retrieves the next page. Empty means no more pages.
	ContinuationToken string

	// IsTruncated reports whether the store claims more results exist.
	IsTruncated bool

	// Delimiter echoes the delimiter reported by the store.
	Delimiter string

	// HasDelimiter reports whether the response carried a Delimiter element.
	// A delimiter listing without it did not come from a bucket listing API.
	HasDelimiter bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	// Key is the full object key in the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ETag is the entity tag, without surrounding quotes.
	ETag string

	// LastModified is when the object was last modified.
	LastModified time.Time
}

// ObjectMeta contains full metadata for a single object.
// Returned by Head operations.
type ObjectMeta struct {
	ObjectSummary

	// ContentType is the MIME type of the object.
	ContentType string

	// Metadata contains user-defined metadata key-value pairs.
	Metadata map[string]string

	// Headers holds the raw response headers when the backend speaks HTTP.
	Headers http.Header
}

// ProviderType identifies a storage backend.
type ProviderType string

const (
	// ProviderS3 talks to S3 or S3-compatible storage through the AWS SDK.
	ProviderS3 ProviderType = "s3"

	// ProviderHTTP talks to a bucket listing endpoint over plain HTTP,
	// typically the signing proxy.
	ProviderHTTP ProviderType = "http"

	// ProviderFile serves a local directory as a bucket.
	ProviderFile ProviderType = "file"

	// ProviderMemory is an in-process store used by tests.
	ProviderMemory ProviderType = "memory"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
