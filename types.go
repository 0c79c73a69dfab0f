package draftsync

import "github.com/arloliu/draftsync/types"

// Re-export types from the types package.
//
// Internal packages depend on types rather than on the root package; these aliases
// give users draftsync.EstimateData, draftsync.Logger and so on.
type (
	EstimateData       = types.EstimateData
	LeaderRecord       = types.LeaderRecord
	EmergencyRecord    = types.EmergencyRecord
	ConflictData       = types.ConflictData
	ConflictResolution = types.ConflictResolution
	StorageError       = types.StorageError
	ErrorCode          = types.ErrorCode
	AutoSaveStatus     = types.AutoSaveStatus
	LeaderStatus       = types.LeaderStatus
)

// Re-export interfaces from the types package for convenience.
type (
	SharedKV         = types.SharedKV
	ChangeBus        = types.ChangeBus
	ChangeEvent      = types.ChangeEvent
	StorageAdapter   = types.StorageAdapter
	EmergencyLog     = types.EmergencyLog
	LifecycleSignal  = types.LifecycleSignal
	Clock            = types.Clock
	Validator        = types.Validator
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export status and resolution constants.
const (
	StatusIdle    = types.StatusIdle
	StatusSaving  = types.StatusSaving
	StatusSaved   = types.StatusSaved
	StatusError   = types.StatusError
	StatusOffline = types.StatusOffline

	LeaderStatusClaiming = types.LeaderStatusClaiming
	LeaderStatusLeader   = types.LeaderStatusLeader
	LeaderStatusFollower = types.LeaderStatusFollower

	KeepLocal  = types.KeepLocal
	KeepRemote = types.KeepRemote
)
