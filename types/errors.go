package types

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the draftsync library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// External errors are wrapped with context using fmt.Errorf("%s: %w", msg, err).

// Manager errors - Public API errors returned by Manager and Draft.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSharedKVRequired is returned when the shared coordination store is nil.
	ErrSharedKVRequired = errors.New("shared KV store is required")

	// ErrChangeBusRequired is returned when the change notification bus is nil.
	ErrChangeBusRequired = errors.New("change bus is required")

	// ErrStorageAdapterRequired is returned when the storage adapter is nil.
	ErrStorageAdapterRequired = errors.New("storage adapter is required")

	// ErrEmptyResourceID is returned when a draft is opened without a resource ID.
	ErrEmptyResourceID = errors.New("resource ID must not be empty")

	// ErrAlreadyStarted is returned when Start is called on an already running component.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when operations require a started component.
	ErrNotStarted = errors.New("not started")

	// ErrStopped is returned when a component has been stopped.
	// Pending Flush callers are released with this error during teardown.
	ErrStopped = errors.New("stopped")
)

// Auto-save errors - Errors surfaced by the auto-save coordinator.
var (
	// ErrNotLeader is returned by Save when this context does not hold leadership.
	// No adapter call is made.
	ErrNotLeader = errors.New("not the leader for this resource")

	// ErrValidationFailed is returned when the configured validator rejects a snapshot.
	ErrValidationFailed = errors.New("validation failed")

	// ErrVersionConflict is returned when the backend holds a newer version than the save's base.
	ErrVersionConflict = errors.New("version conflict")

	// ErrNoConflict is returned by ResolveConflict when no conflict is pending.
	ErrNoConflict = errors.New("no conflict to resolve")
)

// Coordination store errors.
var (
	// ErrKeyNotFound is returned by SharedKV.Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrConnectivity indicates a coordination or storage connectivity issue.
	// Storage errors wrapping it are classified as retryable.
	ErrConnectivity = errors.New("connectivity issue")
)

// ErrorCode classifies a StorageError.
type ErrorCode string

const (
	// CodeValidation marks snapshots rejected before reaching the backend. Not retryable.
	CodeValidation ErrorCode = "validation"

	// CodeStorage marks generic backend failures. Retryable.
	CodeStorage ErrorCode = "storage"

	// CodeUnavailable marks network or connectivity failures. Retryable.
	CodeUnavailable ErrorCode = "unavailable"

	// CodeConflict marks optimistic-concurrency conflicts. Not retryable.
	CodeConflict ErrorCode = "conflict"

	// CodeHydration marks failures loading the persisted draft. Retryable.
	CodeHydration ErrorCode = "hydration"
)

// StorageError is the classified error surfaced by the auto-save coordinator.
//
// Storage adapters may return a *StorageError directly to control retry
// behavior; any other error is classified by ClassifyError.
type StorageError struct {
	// Code is the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Retryable reports whether a single automatic retry should be scheduled.
	Retryable bool

	// Conflict carries both sides of an optimistic-concurrency conflict. Set only for CodeConflict.
	Conflict *ConflictData

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewConflictError builds a non-retryable conflict error carrying both sides.
func NewConflictError(conflict *ConflictData) *StorageError {
	return &StorageError{
		Code:      CodeConflict,
		Message:   fmt.Sprintf("base version %d is behind remote version %d", conflict.LocalVersion, conflict.RemoteVersion),
		Retryable: false,
		Conflict:  conflict,
		Err:       ErrVersionConflict,
	}
}

// ClassifyError converts an arbitrary adapter error into a *StorageError.
//
// Classification rules:
//   - *StorageError values are returned unchanged
//   - ErrValidationFailed is CodeValidation, not retryable
//   - ErrVersionConflict is CodeConflict, not retryable
//   - context deadline and ErrConnectivity are CodeUnavailable, retryable
//   - context cancellation is CodeStorage, not retryable (the caller gave up)
//   - anything else is CodeStorage, retryable
//
// Returns nil when err is nil.
func ClassifyError(err error) *StorageError {
	if err == nil {
		return nil
	}

	var se *StorageError
	if errors.As(err, &se) {
		return se
	}

	switch {
	case errors.Is(err, ErrValidationFailed):
		return &StorageError{Code: CodeValidation, Message: "snapshot rejected", Err: err}
	case errors.Is(err, ErrVersionConflict):
		return &StorageError{Code: CodeConflict, Message: "version conflict", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrConnectivity):
		return &StorageError{Code: CodeUnavailable, Message: "backend unavailable", Retryable: true, Err: err}
	case errors.Is(err, context.Canceled):
		return &StorageError{Code: CodeStorage, Message: "operation canceled", Err: err}
	default:
		return &StorageError{Code: CodeStorage, Message: "save failed", Retryable: true, Err: err}
	}
}

// IsRetryable reports whether err is classified as retryable.
func IsRetryable(err error) bool {
	se := ClassifyError(err)

	return se != nil && se.Retryable
}
