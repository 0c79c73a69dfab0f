package types

import (
	"context"
	"time"
)

// SharedKV is the coordination store visible to every context.
//
// Implementations must be safe for concurrent use. Get returns ErrKeyNotFound
// (possibly wrapped) when the key does not exist.
type SharedKV interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ChangeEvent describes a mutation of a SharedKV key.
type ChangeEvent struct {
	// Key is the mutated key.
	Key string

	// Value is the new value. Empty when Deleted is true.
	Value []byte

	// Deleted reports whether the key was removed.
	Deleted bool
}

// ChangeBus delivers change notifications for SharedKV keys.
//
// Notifications are fired at least in contexts other than the writer. Implementations
// backed by a server-side watch may also echo a context's own writes; consumers must
// tolerate that.
type ChangeBus interface {
	// Watch subscribes to changes of key.
	//
	// Returns:
	//   - <-chan ChangeEvent: Event stream, closed after stop is called or ctx is done
	//   - func(): Stops the subscription; safe to call more than once
	//   - error: Subscription failure
	Watch(ctx context.Context, key string) (<-chan ChangeEvent, func(), error)
}

// Clock abstracts wall time and timers so that timing-sensitive code can be
// driven deterministically in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer creates a timer that fires once after d.
	NewTimer(d time.Duration) Timer
}

// Timer is a single-shot timer created by a Clock.
type Timer interface {
	// C returns the channel on which the fire time is delivered.
	C() <-chan time.Time

	// Stop prevents the timer from firing. Returns false if it already fired or was stopped.
	Stop() bool

	// Reset changes the timer to fire after d. Returns true if the timer had been active.
	Reset(d time.Duration) bool
}

// LifecycleSignal delivers the "about to unload" notification of a context.
type LifecycleSignal interface {
	// OnBeforeUnload registers handler. The handler returns true to request that
	// the user confirm leaving because unsaved state remains.
	//
	// Returns a function that unregisters the handler.
	OnBeforeUnload(handler func() bool) func()
}

// StorageAdapter is the durable backend contract.
//
// Only the believed leader calls Save; every context may call Load.
type StorageAdapter interface {
	// Save persists data under key, conditioned on baseVersion.
	//
	// baseVersion is the version the caller last observed (0 for a resource never saved).
	// Adapters that enforce optimistic concurrency return a *StorageError with
	// Code CodeConflict and Conflict populated when the backend holds a different version.
	//
	// Returns the new version on success.
	Save(ctx context.Context, key string, data EstimateData, baseVersion int64) (int64, error)

	// Load returns the persisted snapshot for key, or nil, nil when none exists.
	Load(ctx context.Context, key string) (*EstimateData, error)
}

// EmergencyLog is the local crash-recovery log.
type EmergencyLog interface {
	// Append writes rec under rec.Key(). Records with the same key coexist; later
	// ones get a numeric suffix.
	Append(ctx context.Context, rec EmergencyRecord) error

	// ReadAll returns every stored record ordered by key.
	ReadAll(ctx context.Context) ([]EmergencyRecord, error)

	// Clear removes every record for resourceID, or all records when resourceID is empty.
	Clear(ctx context.Context, resourceID string) error
}

// Validator checks a snapshot before it is saved.
//
// A non-nil error fails the save without retry and without calling the adapter.
type Validator func(data EstimateData) error
