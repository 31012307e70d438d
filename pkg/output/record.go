// Package output emits bucketnav results as JSONL records.
//
// Every line is an envelope with a type tag and a type-specific payload,
// so a consumer can parse any line on its own.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants follow the pattern bucketnav.<type>.v<version>.
const (
	TypeObject   = "bucketnav.object.v1"
	TypeEntry    = "bucketnav.entry.v1"
	TypePage     = "bucketnav.page.v1"
	TypeMutation = "bucketnav.mutation.v1"
	TypeError    = "bucketnav.error.v1"
	TypeProgress = "bucketnav.progress.v1"
	TypeSummary  = "bucketnav.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the payload kind.
	Type string `json:"type"`

	// TS is when the record was created.
	TS time.Time `json:"ts"`

	// JobID correlates all records of one command invocation.
	JobID string `json:"job_id"`

	// Provider identifies the backend ("s3", "http").
	Provider string `json:"provider"`

	Data json.RawMessage `json:"data"`
}

// ObjectRecord describes one enumerated object.
type ObjectRecord struct {
	Key          string            `json:"key"`
	Rel          string            `json:"rel,omitempty"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	URL          string            `json:"url,omitempty"`
}

// EntryRecord is one row of a browsed page.
type EntryRecord struct {
	Kind         string     `json:"kind"`
	Name         string     `json:"name"`
	Prefix       string     `json:"prefix,omitempty"`
	Key          string     `json:"key,omitempty"`
	Size         int64      `json:"size,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	URL          string     `json:"url,omitempty"`
}

// PageRecord closes the entries of one browsed page.
type PageRecord struct {
	Prefix      string `json:"prefix"`
	Number      int    `json:"number"`
	Entries     int    `json:"entries"`
	HasNext     bool   `json:"has_next"`
	HasPrevious bool   `json:"has_previous"`
}

// MutationRecord reports the outcome of a copy, delete, rename or upload.
type MutationRecord struct {
	// Op is one of the Op* constants.
	Op string `json:"op"`

	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`

	// Outcome is one of the Outcome* constants.
	Outcome string `json:"outcome"`

	// TrashKey is set when the source was copied to trash instead of deleted.
	TrashKey string `json:"trash_key,omitempty"`

	// Objects and Failed count keys for prefix and upload operations.
	Objects int `json:"objects,omitempty"`
	Failed  int `json:"failed,omitempty"`

	Bytes   int64  `json:"bytes,omitempty"`
	Message string `json:"message,omitempty"`
}

// Mutation operations.
const (
	OpCopy    = "copy"
	OpDelete  = "delete"
	OpTrash   = "trash"
	OpRename  = "rename"
	OpUpload  = "upload"
	OpArchive = "archive"
)

// Mutation outcomes.
const (
	OutcomeDone    = "done"
	OutcomeDenied  = "denied"
	OutcomeTrashed = "trashed"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// ErrorRecord is the data payload for errors that do not stop a command.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	Message string `json:"message"`
	Key     string `json:"key,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeAccessDenied        = "ACCESS_DENIED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeThrottled           = "THROTTLED"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeDeleteDenied        = "DELETE_DENIED"
	ErrCodeInternal            = "INTERNAL"
)

// ProgressRecord reports progress of long-running commands.
type ProgressRecord struct {
	Phase string `json:"phase"`

	ObjectsFound   int64  `json:"objects_found,omitempty"`
	ObjectsMatched int64  `json:"objects_matched,omitempty"`
	BytesTotal     int64  `json:"bytes_total,omitempty"`
	Prefix         string `json:"prefix,omitempty"`

	// Archive progress.
	FilesCompleted int     `json:"files_completed,omitempty"`
	FileCount      int     `json:"file_count,omitempty"`
	Fraction       float64 `json:"fraction,omitempty"`
}

// Progress phase constants.
const (
	PhaseStarting  = "starting"
	PhaseListing   = "listing"
	PhaseArchiving = "archiving"
	PhaseComplete  = "complete"
)

// SummaryRecord closes a search with aggregate statistics.
type SummaryRecord struct {
	ObjectsFound   int64         `json:"objects_found"`
	ObjectsMatched int64         `json:"objects_matched"`
	BytesTotal     int64         `json:"bytes_total"`
	Duration       time.Duration `json:"duration_ns"`
	DurationHuman  string        `json:"duration"`
	Errors         int64         `json:"errors"`
	Prefixes       []string      `json:"prefixes,omitempty"`
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("writer is closed")

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // marshal_data, marshal_record or write
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
