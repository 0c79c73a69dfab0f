package draftsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/draftsync/internal/autosave"
	"github.com/arloliu/draftsync/internal/election"
)

// Draft is one resource's draft inside a Manager.
//
// Edits go through Update; the draft is persisted by the elected context on the
// debounce schedule, or immediately with Save and Flush. Getters read an immutable
// snapshot and never block.
//
// A Draft of a disabled Manager is inert: every operation returns nil, IsLeader
// reports false and Status reports idle.
type Draft struct {
	m          *Manager
	resourceID string
	elector    *election.Elector
	co         *autosave.Coordinator

	closing   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// ResourceID returns the draft's resource ID.
func (d *Draft) ResourceID() string {
	return d.resourceID
}

// Update merges patch into the draft. A nil value removes the field.
//
// The draft becomes dirty only if its content changed. On the leader this arms the
// debounced save.
func (d *Draft) Update(ctx context.Context, patch map[string]any) error {
	if d.co == nil {
		return nil
	}

	return d.co.Update(ctx, patch)
}

// Save persists the draft now and waits for the outcome.
//
// Returns ErrNotLeader, without touching storage, when this context does not lead.
func (d *Draft) Save(ctx context.Context) error {
	if d.co == nil {
		return nil
	}

	return d.co.Save(ctx)
}

// Flush runs any pending debounced save now and waits for it and any save in flight.
func (d *Draft) Flush(ctx context.Context) error {
	if d.co == nil {
		return nil
	}

	return d.co.Flush(ctx)
}

// MarkClean declares the current content persisted by other means. No I/O happens.
func (d *Draft) MarkClean(ctx context.Context) error {
	if d.co == nil {
		return nil
	}

	return d.co.MarkClean(ctx)
}

// ResolveConflict settles a pending version conflict with KeepLocal or KeepRemote.
func (d *Draft) ResolveConflict(ctx context.Context, resolution ConflictResolution) error {
	if d.co == nil {
		return nil
	}

	return d.co.ResolveConflict(ctx, resolution)
}

// Data returns a copy of the live draft.
func (d *Draft) Data() EstimateData {
	if d.co == nil {
		return EstimateData{ID: d.resourceID}
	}

	return d.co.View().Data.Clone()
}

// IsDirty reports unsaved edits.
func (d *Draft) IsDirty() bool {
	return d.co != nil && d.co.View().Dirty
}

// Status returns the auto-save status.
func (d *Draft) Status() AutoSaveStatus {
	if d.co == nil {
		return StatusIdle
	}

	return d.co.View().Status
}

// Err returns the last save or validation failure, nil once resolved.
func (d *Draft) Err() *StorageError {
	if d.co == nil {
		return nil
	}

	return d.co.View().Err
}

// Conflict returns the pending version conflict, if any.
func (d *Draft) Conflict() *ConflictData {
	if d.co == nil {
		return nil
	}

	return d.co.View().Conflict
}

// LastSaved returns the completion time of the last successful save.
func (d *Draft) LastSaved() time.Time {
	if d.co == nil {
		return time.Time{}
	}

	return d.co.View().LastSaved
}

// Version returns the storage version the next save is conditioned on.
func (d *Draft) Version() int64 {
	if d.co == nil {
		return 0
	}

	return d.co.View().Version
}

// Hydrated returns the snapshot loaded from storage when this context first led,
// or nil when nothing was persisted or hydration has not finished.
func (d *Draft) Hydrated() *EstimateData {
	if d.co == nil {
		return nil
	}

	return d.co.View().Hydrated
}

// IsLeader reports whether this context currently writes the draft.
func (d *Draft) IsLeader() bool {
	return d.elector != nil && d.elector.IsLeader()
}

// LeaderStatus returns the election status.
func (d *Draft) LeaderStatus() LeaderStatus {
	if d.elector == nil {
		return LeaderStatusFollower
	}

	return d.elector.Status()
}

// SubscribeLeadership returns a channel of election status changes and a function
// that ends the subscription. The current status is delivered first.
func (d *Draft) SubscribeLeadership() (<-chan LeaderStatus, func()) {
	if d.elector == nil {
		ch := make(chan LeaderStatus, 1)
		ch <- LeaderStatusFollower
		close(ch)

		return ch, func() {}
	}

	return d.elector.Subscribe()
}

// Close stops the draft's auto-save and releases leadership.
//
// An in-flight save finishes first, bounded by ShutdownTimeout. Pending debounced
// edits are not saved. The draft leaves the Manager only once leadership is released,
// so a concurrent Open of the same resource waits for it. Close is idempotent.
func (d *Draft) Close() error {
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		defer d.unregister()
		if d.co == nil {
			return
		}

		var errs []error
		if err := d.co.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := d.elector.Stop(); err != nil {
			errs = append(errs, err)
		}
		d.closeErr = errors.Join(errs...)

		d.m.logger.Info("draft closed", "resource", d.resourceID, "context", d.m.contextID)
	})

	return d.closeErr
}

// unregister removes the draft from the Manager and wakes Opens waiting on it.
func (d *Draft) unregister() {
	d.m.drafts.Compute(d.resourceID, func(cur *Draft, loaded bool) (*Draft, xsync.ComputeOp) {
		if loaded && cur == d {
			return nil, xsync.DeleteOp
		}

		return cur, xsync.CancelOp
	})
	close(d.closed)
}

func (d *Draft) setOnline(ctx context.Context, online bool) error {
	if d.co == nil {
		return nil
	}

	err := d.co.SetOnline(ctx, online)
	if errors.Is(err, ErrStopped) {
		return nil
	}

	return err
}

func (d *Draft) beforeUnload() bool {
	if d.co == nil {
		return false
	}

	return d.co.BeforeUnload()
}
