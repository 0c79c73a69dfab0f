package autosave

import (
	"time"

	"github.com/arloliu/draftsync/types"
)

// View is an immutable snapshot of coordinator state.
type View struct {
	// Status is the observable auto-save status. Offline overrides everything else.
	Status types.AutoSaveStatus

	// Dirty reports unsaved edits.
	Dirty bool

	// Saving reports a save in flight.
	Saving bool

	// Err is the last save or hydration failure, nil after a success or a new edit.
	Err *types.StorageError

	// Conflict is the pending optimistic-concurrency conflict, if any.
	Conflict *types.ConflictData

	// LastSaved is the completion time of the last successful save.
	LastSaved time.Time

	// Version is the optimistic-concurrency base used by the next save.
	Version int64

	// Hydrated is the snapshot loaded on first leadership, nil when none was persisted.
	Hydrated *types.EstimateData

	// HydrationDone reports whether hydration has completed successfully.
	HydrationDone bool

	// IsLeader is the leadership last observed by the coordinator.
	IsLeader bool

	// Online reports the connectivity signal.
	Online bool

	// Data is the live draft. Treat it as read-only; use Data.Clone() before modifying.
	Data types.EstimateData
}
