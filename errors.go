package draftsync

import "github.com/arloliu/draftsync/types"

// Sentinel errors returned by the Manager and Draft.
//
// They are the same values as in the types package, so errors.Is works with either.
var (
	ErrInvalidConfig          = types.ErrInvalidConfig
	ErrSharedKVRequired       = types.ErrSharedKVRequired
	ErrChangeBusRequired      = types.ErrChangeBusRequired
	ErrStorageAdapterRequired = types.ErrStorageAdapterRequired
	ErrEmptyResourceID        = types.ErrEmptyResourceID
	ErrAlreadyStarted         = types.ErrAlreadyStarted
	ErrNotStarted             = types.ErrNotStarted
	ErrStopped                = types.ErrStopped
	ErrNotLeader              = types.ErrNotLeader
	ErrValidationFailed       = types.ErrValidationFailed
	ErrVersionConflict        = types.ErrVersionConflict
	ErrNoConflict             = types.ErrNoConflict
	ErrKeyNotFound            = types.ErrKeyNotFound
	ErrConnectivity           = types.ErrConnectivity
)

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return types.IsRetryable(err)
}
