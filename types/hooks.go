package types

import "context"

// Hooks defines callbacks for draft lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// to avoid blocking the coordinator. Hooks receive the draft's lifecycle
// context which is cancelled when the draft closes.
//
// Hook execution behavior:
//   - Hooks run concurrently and may not complete before Close() returns
//   - Hook errors are logged but don't fail draft operations
//
// Example:
//
//	hooks := &draftsync.Hooks{
//	    OnStatusChanged: func(ctx context.Context, resourceID string, status draftsync.AutoSaveStatus) error {
//	        indicator.Set(resourceID, status.String())
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnStatusChanged is called when the auto-save status transitions.
	OnStatusChanged func(ctx context.Context, resourceID string, status AutoSaveStatus) error

	// OnLeadershipChanged is called when this context's leader status transitions.
	OnLeadershipChanged func(ctx context.Context, resourceID string, from, to LeaderStatus) error

	// OnHydrated is called once the persisted snapshot has been loaded.
	// data is nil when nothing was persisted yet.
	OnHydrated func(ctx context.Context, resourceID string, data *EstimateData) error

	// OnError is called when a save or hydration fails.
	OnError func(ctx context.Context, resourceID string, err error) error
}
