package types

// AutoSaveStatus represents the persistence status of a draft.
//
// Lifecycle:
//
//	StatusIdle → StatusSaving → StatusSaved → StatusIdle
//	                          ↘ StatusError → (auto-retry) → StatusSaving
//
// StatusOffline overrides all of the above while connectivity is absent.
type AutoSaveStatus int

const (
	// StatusIdle indicates no save is in progress.
	StatusIdle AutoSaveStatus = iota

	// StatusSaving indicates a save is in flight.
	StatusSaving

	// StatusSaved indicates the last save succeeded. Reverts to idle after a short display window.
	StatusSaved

	// StatusError indicates the last save failed.
	StatusError

	// StatusOffline indicates connectivity to the durable store is absent.
	StatusOffline
)

// String returns the string representation of the status.
func (s AutoSaveStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusError:
		return "error"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// LeaderStatus represents the leadership state of a context for one resource.
//
// Transitions:
//
//	LeaderStatusClaiming → LeaderStatusLeader | LeaderStatusFollower
//
// The machine is re-entered on every observed change to the leader record and
// on every staleness sweep.
type LeaderStatus int

const (
	// LeaderStatusClaiming indicates a claim was written and is awaiting confirmation.
	LeaderStatusClaiming LeaderStatus = iota

	// LeaderStatusLeader indicates this context believes it is the sole writer.
	LeaderStatusLeader

	// LeaderStatusFollower indicates another context holds leadership.
	LeaderStatusFollower
)

// String returns the string representation of the leader status.
func (s LeaderStatus) String() string {
	switch s {
	case LeaderStatusClaiming:
		return "claiming"
	case LeaderStatusLeader:
		return "leader"
	case LeaderStatusFollower:
		return "follower"
	default:
		return "unknown"
	}
}
