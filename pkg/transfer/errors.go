package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/bucketnav/pkg/output"
	"github.com/3leaps/bucketnav/pkg/provider"
)

// Copy legs.
const (
	LegGet    = "get"
	LegBuffer = "buffer"
	LegPut    = "put"
)

// CopyError reports a failed copy. Leg names the step that failed.
type CopyError struct {
	Src string
	Dst string
	Leg string
	Err error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy %s -> %s: %s: %v", e.Src, e.Dst, e.Leg, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

// SizeMismatchError indicates a body shorter or longer than its declared
// Content-Length.
type SizeMismatchError struct {
	Key      string
	Expected int64
	Got      int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch for %s: expected=%d got=%d", e.Key, e.Expected, e.Got)
}

// Argument errors.
var (
	ErrEmptyPrefix   = errors.New("prefix must not be empty")
	ErrNestedPrefix  = errors.New("new prefix is inside the old prefix")
	ErrSamePrefix    = errors.New("new prefix equals the old prefix")
	ErrInvalidName   = errors.New("invalid name")
	ErrUnchanged     = errors.New("name is unchanged")
	ErrNotWritable   = errors.New("provider cannot read and write objects")
	ErrNoUploadFiles = errors.New("no files to upload")
)

// IsCopyError reports whether err came from a failed copy.
func IsCopyError(err error) bool {
	var ce *CopyError
	return errors.As(err, &ce)
}

// ErrorCode maps a mutation error to an output error code.
func ErrorCode(err error) string {
	var sm *SizeMismatchError
	switch {
	case provider.IsDeleteDenied(err):
		return output.ErrCodeDeleteDenied
	case provider.IsNotFound(err):
		return output.ErrCodeNotFound
	case provider.IsAccessDenied(err):
		return output.ErrCodeAccessDenied
	case provider.IsThrottled(err):
		return output.ErrCodeThrottled
	case provider.IsProviderUnavailable(err), provider.IsNetwork(err):
		return output.ErrCodeProviderUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return output.ErrCodeTimeout
	case errors.As(err, &sm):
		// The object changed under us; report it like a vanished key.
		return output.ErrCodeNotFound
	default:
		return output.ErrCodeInternal
	}
}
