package errors

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Error types for the workspace contract index
type ErrorType string

const (
	// Persistence errors
	ErrorTypeCorrupt         ErrorType = "corrupt"
	ErrorTypeVersionMismatch ErrorType = "version_mismatch"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeIO              ErrorType = "io"

	// Snapshot errors
	ErrorTypeValidationStale ErrorType = "validation_stale"

	// Query errors
	ErrorTypeQueryPatternInvalid ErrorType = "query_pattern_invalid"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// IndexError represents an error raised by the index core or its persistence layer
type IndexError struct {
	Type        ErrorType
	Path        string
	Operation   string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// New creates a new index error with context
func New(typ ErrorType, op string, err error) *IndexError {
	return &IndexError{
		Type:       typ,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithPath adds the file or directory the operation touched
func (e *IndexError) WithPath(path string) *IndexError {
	e.Path = path
	return e
}

// WithRecoverable marks the error as recoverable
func (e *IndexError) WithRecoverable(recoverable bool) *IndexError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface
func (e *IndexError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s failed for %s: %v", e.Type, e.Operation, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *IndexError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable checks if the operation can be retried
func (e *IndexError) IsRecoverable() bool {
	return e.Recoverable
}

// QueryPatternError reports a malformed query pattern. It never aborts other
// in-flight queries; the caller surfaces it as an empty result or a protocol error.
type QueryPatternError struct {
	Type       ErrorType
	Pattern    string
	Reason     string
	Underlying error
	Timestamp  time.Time
}

// NewQueryPatternError creates a new query pattern error
func NewQueryPatternError(pattern, reason string) *QueryPatternError {
	return &QueryPatternError{
		Type:      ErrorTypeQueryPatternInvalid,
		Pattern:   pattern,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *QueryPatternError) Error() string {
	return fmt.Sprintf("invalid query pattern %q: %s", e.Pattern, e.Reason)
}

// Unwrap returns the underlying error
func (e *QueryPatternError) Unwrap() error {
	return e.Underlying
}

// Is lets errors.Is match any *IndexError of the same type, so callers can
// branch on the taxonomy without keeping sentinel instances around.
func (e *IndexError) Is(target error) bool {
	var other *IndexError
	if errors.As(target, &other) {
		return e.Type == other.Type
	}
	return false
}

// TypeOf extracts the taxonomy type of an error chain, or ErrorTypeInternal
// when none of the wrapped errors carry one.
func TypeOf(err error) ErrorType {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Type
	}
	var qe *QueryPatternError
	if errors.As(err, &qe) {
		return qe.Type
	}
	return ErrorTypeInternal
}

// ClassifyIO maps a filesystem error to the persistence taxonomy.
func ClassifyIO(op, path string, err error) *IndexError {
	typ := ErrorTypeIO
	if os.IsNotExist(err) {
		typ = ErrorTypeNotFound
	}
	return New(typ, op, err).WithPath(path)
}
