package autosave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arloliu/draftsync/types"
)

// Update merges patch into the draft.
//
// The draft becomes dirty only when its canonical form changed; an identical patch
// is a no-op. A change stamps UpdatedAt, clears the last error and, on the leader,
// arms or refreshes the debounce.
func (c *Coordinator) Update(ctx context.Context, patch map[string]any) error {
	var mergeErr error
	if err := c.exec(ctx, func() { mergeErr = c.update(patch) }); err != nil {
		return err
	}

	return mergeErr
}

// Save persists the draft now, bypassing the debounce, and waits for the outcome.
//
// Returns types.ErrNotLeader without touching the adapter when this context is not
// the leader. A save already in flight is followed by exactly one more.
func (c *Coordinator) Save(ctx context.Context) error {
	var (
		wait   chan error
		reject error
	)
	if err := c.exec(ctx, func() { wait, reject = c.save() }); err != nil {
		return err
	}
	if reject != nil {
		return reject
	}

	return c.await(ctx, wait)
}

// Flush forces any pending debounced save to run now and waits for it and any save
// already in flight.
//
// On a nil return nothing is pending and the draft is clean. A failed flush leaves
// the draft dirty; a retryable failure may still be followed by the automatic retry.
// A dirty follower gets types.ErrNotLeader.
func (c *Coordinator) Flush(ctx context.Context) error {
	var (
		wait   chan error
		reject error
	)
	if err := c.exec(ctx, func() { wait, reject = c.flush() }); err != nil {
		return err
	}
	if reject != nil || wait == nil {
		return reject
	}

	return c.await(ctx, wait)
}

// MarkClean declares the current draft persisted by other means. No I/O happens:
// dirty is cleared, the pending debounce and retry are cancelled, and the status
// shows saved for SavedDisplay.
func (c *Coordinator) MarkClean(ctx context.Context) error {
	return c.exec(ctx, c.markClean)
}

// SetOnline records the connectivity signal. While offline, Status reports offline;
// everything else keeps running.
func (c *Coordinator) SetOnline(ctx context.Context, online bool) error {
	return c.exec(ctx, func() {
		if c.online == online {
			return
		}
		c.online = online
		c.cfg.Logger.Info("connectivity changed", "resource", c.cfg.ResourceID, "online", online)

		if online && c.dirty && c.leader && !c.saving && !c.quiet.Armed() {
			c.armDebounce()
		}
	})
}

func (c *Coordinator) update(patch map[string]any) error {
	merged, err := c.data.Merge(patch)
	if err != nil {
		return err
	}

	fp := merged.Fingerprint()
	if fp == c.fingerprint {
		return nil
	}

	merged.UpdatedAt = c.cfg.Clock.Now()
	c.data = merged
	c.fingerprint = fp
	c.dirty = true
	c.editSeq++
	c.lastErr = nil
	c.conflict = nil
	c.retryUsed = false
	c.retry.Disarm()
	if c.status == types.StatusError {
		c.setStatus(types.StatusIdle)
	}

	if c.leader && !c.saving {
		c.armDebounce()
	}

	return nil
}

func (c *Coordinator) save() (chan error, error) {
	if !c.isLeaderNow() {
		return nil, types.ErrNotLeader
	}

	w := c.addWaiter()
	if c.saving {
		c.pendingAfterFlight = true
		return w, nil
	}
	c.startSave("manual")

	return w, nil
}

func (c *Coordinator) flush() (chan error, error) {
	if c.saving {
		if c.editSeq != c.savingSeq {
			c.pendingAfterFlight = true
		}

		return c.addWaiter(), nil
	}
	if !c.dirty {
		return nil, nil
	}
	if !c.isLeaderNow() {
		return nil, types.ErrNotLeader
	}

	w := c.addWaiter()
	c.startSave("flush")

	return w, nil
}

func (c *Coordinator) markClean() {
	c.dirty = false
	c.lastErr = nil
	c.retryUsed = false
	c.quiet.Disarm()
	c.maxWait.Disarm()
	c.retry.Disarm()
	c.pendingAfterFlight = false
	c.setStatus(types.StatusSaved)
	c.savedDisplay.Arm(c.cfg.SavedDisplay)
}

func (c *Coordinator) armDebounce() {
	c.quiet.Arm(c.cfg.DebounceQuiet)
	if !c.maxWait.Armed() {
		c.maxWait.Arm(c.cfg.DebounceMaxWait)
	}
}

func (c *Coordinator) onDebounceFired(which string) {
	c.quiet.Disarm()
	c.maxWait.Disarm()

	if c.saving {
		c.pendingAfterFlight = true
		return
	}
	if !c.dirty || !c.isLeaderNow() {
		return
	}

	c.cfg.Logger.Debug("debounce elapsed", "resource", c.cfg.ResourceID, "timer", which)
	c.startSave(which)
}

func (c *Coordinator) onRetryFired() {
	if c.saving || !c.dirty || !c.isLeaderNow() {
		return
	}

	c.cfg.Logger.Info("retrying save", "resource", c.cfg.ResourceID)
	c.startSave("retry")
}

// startSave launches the single in-flight save. Callers guarantee leadership and
// that no save is in flight.
func (c *Coordinator) startSave(trigger string) {
	c.quiet.Disarm()
	c.maxWait.Disarm()
	c.retry.Disarm()
	c.pendingAfterFlight = false

	snapshot := c.data.Clone()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		c.cfg.Metrics.RecordSave(c.cfg.ResourceID, "invalid", 0, 0)
		c.failSave(&types.StorageError{Code: types.CodeValidation, Message: "snapshot cannot be serialized", Err: err})

		return
	}

	if c.cfg.Validator != nil {
		if verr := c.cfg.Validator(snapshot); verr != nil {
			c.cfg.Metrics.RecordSave(c.cfg.ResourceID, "invalid", 0, len(payload))
			c.failSave(&types.StorageError{
				Code:    types.CodeValidation,
				Message: "snapshot rejected by validator",
				Err:     fmt.Errorf("%w: %w", types.ErrValidationFailed, verr),
			})

			return
		}
	}

	c.saving = true
	c.savingSeq = c.editSeq
	c.setStatus(types.StatusSaving)
	c.cfg.Logger.Debug("saving draft",
		"resource", c.cfg.ResourceID, "trigger", trigger, "base_version", c.version, "bytes", len(payload))

	res := saveResult{seq: c.editSeq, snapshot: snapshot, base: c.version, bytes: len(payload)}
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.OperationTimeout)
		defer cancel()

		start := c.cfg.Clock.Now()
		res.version, res.err = c.cfg.Adapter.Save(ctx, c.cfg.StorageKey, res.snapshot, res.base)
		res.duration = c.cfg.Clock.Now().Sub(start)

		select {
		case c.saveResults <- res:
		case <-c.doneCh:
		}
	}()
}

func (c *Coordinator) onSaveResult(r saveResult) {
	c.saving = false

	if r.err != nil {
		c.onSaveFailed(r)
	} else {
		c.onSaveSucceeded(r)
	}

	if c.stopping {
		c.exit = true
	}
}

func (c *Coordinator) onSaveSucceeded(r saveResult) {
	c.cfg.Metrics.RecordSave(c.cfg.ResourceID, "success", r.duration, r.bytes)

	c.version = r.version
	c.lastSaved = c.cfg.Clock.Now()
	c.everSaved = true
	c.retryUsed = false
	c.lastErr = nil
	c.conflict = nil
	if c.editSeq == r.seq {
		c.dirty = false
	}
	c.setStatus(types.StatusSaved)
	c.savedDisplay.Arm(c.cfg.SavedDisplay)

	c.cfg.Logger.Debug("draft saved", "resource", c.cfg.ResourceID, "version", r.version, "dirty", c.dirty)

	if c.stopping {
		c.resolveWaiters(nil)
		return
	}

	if c.pendingAfterFlight && c.isLeaderNow() {
		// Waiters ride along with the follow-up save.
		c.startSave("follow_up")
		return
	}
	c.pendingAfterFlight = false

	if c.dirty && c.leader {
		c.armDebounce()
	}
	c.resolveWaiters(nil)
}

func (c *Coordinator) onSaveFailed(r saveResult) {
	se := types.ClassifyError(r.err)
	if se.Code == types.CodeConflict && se.Conflict != nil {
		conflict := *se.Conflict
		if conflict.ResourceID == "" {
			conflict.ResourceID = c.cfg.ResourceID
		}
		if conflict.Local.ID == "" {
			conflict.Local = r.snapshot
		}
		if conflict.LocalVersion == 0 {
			conflict.LocalVersion = r.base
		}
		if conflict.DetectedAt.IsZero() {
			conflict.DetectedAt = c.cfg.Clock.Now()
		}
		c.conflict = &conflict
	}

	result := "error"
	if c.conflict != nil {
		result = "conflict"
	}
	c.cfg.Metrics.RecordSave(c.cfg.ResourceID, result, r.duration, r.bytes)

	c.failSave(se)
}

// failSave records a failed or rejected save and schedules the single retry.
func (c *Coordinator) failSave(se *types.StorageError) {
	c.lastErr = se
	c.pendingAfterFlight = false
	c.setStatus(types.StatusError)

	c.cfg.Logger.Warn("save failed",
		"resource", c.cfg.ResourceID, "code", string(se.Code), "retryable", se.Retryable, "error", se)
	c.fireHook("OnError", func(ctx context.Context) error {
		return c.hooks.OnError(ctx, c.cfg.ResourceID, se)
	})

	if se.Retryable && !c.retryUsed && !c.stopping && c.leader {
		c.retryUsed = true
		c.retry.Arm(c.cfg.RetryDelay)
		c.cfg.Metrics.RecordSaveRetry(c.cfg.ResourceID)
	}

	c.resolveWaiters(se)
}

// ResolveConflict settles a pending conflict.
//
//   - types.KeepLocal adopts the remote version as base and saves the local draft
//     over it, waiting for the outcome.
//   - types.KeepRemote replaces the draft with the remote snapshot and marks it clean.
//
// Returns types.ErrNoConflict when nothing is pending.
func (c *Coordinator) ResolveConflict(ctx context.Context, resolution types.ConflictResolution) error {
	var (
		wait   chan error
		reject error
	)
	if err := c.exec(ctx, func() { wait, reject = c.resolveConflict(resolution) }); err != nil {
		return err
	}
	if reject != nil || wait == nil {
		return reject
	}

	return c.await(ctx, wait)
}

func (c *Coordinator) resolveConflict(resolution types.ConflictResolution) (chan error, error) {
	if c.conflict == nil {
		return nil, types.ErrNoConflict
	}
	conflict := c.conflict

	switch resolution {
	case types.KeepLocal:
		if !c.isLeaderNow() {
			return nil, types.ErrNotLeader
		}
		c.version = conflict.RemoteVersion
		c.conflict = nil
		c.lastErr = nil
		c.retryUsed = false
		c.dirty = true
		c.setStatus(types.StatusIdle)
		if c.saving {
			c.pendingAfterFlight = true
			return c.addWaiter(), nil
		}
		w := c.addWaiter()
		c.startSave("resolve_conflict")

		return w, nil

	case types.KeepRemote:
		if conflict.Remote != nil {
			c.data = conflict.Remote.Clone()
			c.version = conflict.Remote.Version
		} else {
			c.data = types.EstimateData{ID: c.cfg.Initial.ID}
			c.version = conflict.RemoteVersion
		}
		c.fingerprint = c.data.Fingerprint()
		c.conflict = nil
		c.lastErr = nil
		c.retryUsed = false
		c.dirty = false
		c.editSeq++
		c.quiet.Disarm()
		c.maxWait.Disarm()
		c.retry.Disarm()
		c.setStatus(types.StatusIdle)

		return nil, nil

	default:
		return nil, errors.New("unknown conflict resolution")
	}
}
