package election

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/draftsync/internal/clock"
	"github.com/arloliu/draftsync/types"
)

// Elector runs the leader election for one resource on behalf of one context.
//
// A single loop goroutine owns the timers and claim bookkeeping. Status, IsLeader and
// Subscribe are safe for concurrent use.
type Elector struct {
	cfg   Config
	hooks types.Hooks

	status      atomic.Int32
	subscribers *xsync.Map[uint64, *statusSubscriber]
	nextSubID   atomic.Uint64

	mu      sync.Mutex
	started bool
	stopped bool

	ctx       context.Context //nolint:containedctx // lifecycle context for store calls and hooks
	cancel    context.CancelFunc
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopWatch func()
	events    <-chan types.ChangeEvent

	// Owned by the loop goroutine (and by Start/Stop before/after it runs).
	heartbeat       *clock.Slot
	sweep           *clock.Slot
	confirm         *clock.Slot
	attempts        int
	lastHeartbeatOK time.Time
}

// NewElector creates an elector with validated configuration.
//
// Returns an error wrapping types.ErrInvalidConfig when a required field is missing
// or a timing constraint is violated.
func NewElector(cfg *Config) (*Elector, error) {
	c := *cfg
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}

	e := &Elector{
		cfg:         c,
		hooks:       resolvedHooks(c.Hooks),
		subscribers: xsync.NewMap[uint64, *statusSubscriber](),
		heartbeat:   clock.NewSlot(c.Clock),
		sweep:       clock.NewSlot(c.Clock),
		confirm:     clock.NewSlot(c.Clock),
	}
	e.status.Store(int32(types.LeaderStatusFollower))

	return e, nil
}

// Start subscribes to record changes, makes the first claim and starts the loop.
//
// A failed subscription is not fatal: the elector then relies on the sweep alone.
// The first claim runs synchronously; its confirmation happens on the loop.
func (e *Elector) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return types.ErrAlreadyStarted
	}
	e.started = true

	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	events, stop, err := e.cfg.Bus.Watch(e.ctx, e.cfg.Key)
	if err != nil {
		e.cfg.Logger.Warn("failed to watch leader record, relying on sweep",
			"resource", e.cfg.ResourceID, "key", e.cfg.Key, "error", err)
		stop = func() {}
	}
	e.events = events
	e.stopWatch = stop

	e.claim()
	e.sweep.Arm(e.cfg.SweepInterval)

	go e.run()

	e.cfg.Logger.Debug("elector started",
		"resource", e.cfg.ResourceID, "context_id", e.cfg.ContextID, "status", e.Status().String())

	return nil
}

// Stop halts the loop and releases leadership if this context still holds the record.
//
// Stop is idempotent. It returns types.ErrNotStarted if Start was never called.
func (e *Elector) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return types.ErrNotStarted
	}
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.stopCh)
	<-e.doneCh
	e.stopWatch()

	e.heartbeat.Disarm()
	e.sweep.Disarm()
	e.confirm.Disarm()

	if status := e.Status(); status == types.LeaderStatusLeader || status == types.LeaderStatusClaiming {
		e.release()
	}
	e.setStatus(types.LeaderStatusFollower)
	e.cancel()

	e.subscribers.Range(func(id uint64, sub *statusSubscriber) bool {
		e.subscribers.Delete(id)
		sub.close()

		return true
	})

	return nil
}

// Status returns the current leader status.
func (e *Elector) Status() types.LeaderStatus {
	return types.LeaderStatus(e.status.Load())
}

// IsLeader reports whether this context currently believes it is the leader.
func (e *Elector) IsLeader() bool {
	return e.Status() == types.LeaderStatusLeader
}

// Subscribe returns a channel receiving leader status changes.
//
// The channel is buffered (size 4) and receives the current status immediately.
// A slow subscriber may miss intermediate transitions; re-read IsLeader when in doubt.
// The channel is closed by unsubscribe or when the elector stops.
func (e *Elector) Subscribe() (<-chan types.LeaderStatus, func()) {
	id := e.nextSubID.Add(1)
	sub := &statusSubscriber{ch: make(chan types.LeaderStatus, 4)}
	e.subscribers.Store(id, sub)
	sub.trySend(e.Status())

	return sub.ch, func() {
		if s, ok := e.subscribers.LoadAndDelete(id); ok {
			s.close()
		}
	}
}

func (e *Elector) run() {
	defer close(e.doneCh)

	for {
		select {
		case <-e.stopCh:
			return
		case ev, ok := <-e.events:
			if !ok {
				e.events = nil
				continue
			}
			e.handleChange(ev)
		case <-e.heartbeat.C():
			e.heartbeat.Fired()
			e.beat()
		case <-e.sweep.C():
			e.sweep.Fired()
			e.sweepOnce()
			e.sweep.Arm(e.cfg.SweepInterval)
		case <-e.confirm.C():
			e.confirm.Fired()
			e.confirmClaim()
		}
	}
}

// claim writes a leader record naming self when the current one is missing or stale,
// then schedules the jittered confirmation.
func (e *Elector) claim() {
	now := e.cfg.Clock.Now()

	rec, found, err := e.read()
	if err != nil {
		e.cfg.Logger.Warn("failed to read leader record", "resource", e.cfg.ResourceID, "error", err)
		e.becomeFollower()

		return
	}

	if found && !rec.IsStale(now, e.cfg.LeaseTimeout) {
		if rec.ContextID == e.cfg.ContextID {
			e.becomeLeader(now)
		} else {
			e.becomeFollower()
		}
		e.attempts = 0

		return
	}

	if e.attempts >= e.cfg.MaxClaimAttempts {
		e.cfg.Logger.Debug("claim attempts exhausted, waiting for sweep",
			"resource", e.cfg.ResourceID, "attempts", e.attempts)
		e.becomeFollower()

		return
	}
	e.attempts++

	if err := e.write(types.LeaderRecord{ContextID: e.cfg.ContextID, ClaimedAt: now, Heartbeat: now}); err != nil {
		e.cfg.Logger.Warn("failed to write leader claim", "resource", e.cfg.ResourceID, "error", err)
		e.becomeFollower()

		return
	}

	e.heartbeat.Disarm()
	e.setStatus(types.LeaderStatusClaiming)
	e.confirm.Arm(e.cfg.Jitter(e.cfg.ClaimJitter))
}

// confirmClaim re-reads the record after the jitter delay.
func (e *Elector) confirmClaim() {
	if e.Status() != types.LeaderStatusClaiming {
		return
	}

	rec, found, err := e.read()
	switch {
	case err != nil:
		e.cfg.Logger.Warn("failed to confirm leader claim", "resource", e.cfg.ResourceID, "error", err)
		e.becomeFollower()
	case !found:
		// Someone released or removed the record between our write and re-read.
		e.setStatus(types.LeaderStatusFollower)
		e.claim()
	case rec.ContextID == e.cfg.ContextID:
		e.cfg.Metrics.RecordClaimAttempt(e.cfg.ResourceID, true)
		e.attempts = 0
		e.becomeLeader(e.cfg.Clock.Now())
	default:
		e.cfg.Metrics.RecordClaimAttempt(e.cfg.ResourceID, false)
		e.cfg.Logger.Debug("lost claim", "resource", e.cfg.ResourceID, "leader", rec.ContextID)
		e.attempts = 0
		e.becomeFollower()
	}
}

// handleChange reacts to a change of the leader record made by another context,
// or to the echo of one of our own writes.
func (e *Elector) handleChange(ev types.ChangeEvent) {
	if e.Status() == types.LeaderStatusClaiming {
		// The pending confirmation re-read decides.
		return
	}

	if ev.Deleted {
		e.claim()
		return
	}

	var rec types.LeaderRecord
	if err := json.Unmarshal(ev.Value, &rec); err != nil {
		e.cfg.Logger.Warn("ignoring malformed leader record", "resource", e.cfg.ResourceID, "error", err)
		return
	}

	now := e.cfg.Clock.Now()
	switch {
	case rec.ContextID == e.cfg.ContextID:
		if !e.IsLeader() {
			// May be a late echo of a claim we already lost; re-read before trusting it.
			e.attempts = 0
			e.claim()
		}
	case !rec.IsStale(now, e.cfg.LeaseTimeout):
		e.attempts = 0
		e.becomeFollower()
	default:
		e.claim()
	}
}

// beat refreshes the leader heartbeat, stepping down when another context is named.
func (e *Elector) beat() {
	if !e.IsLeader() {
		return
	}
	now := e.cfg.Clock.Now()

	rec, found, err := e.read()
	if err == nil && found && rec.ContextID != e.cfg.ContextID {
		e.cfg.Logger.Info("leader record names another context, stepping down",
			"resource", e.cfg.ResourceID, "leader", rec.ContextID)
		e.becomeFollower()

		return
	}
	if err == nil && !found {
		e.cfg.Logger.Info("leader record vanished, reclaiming", "resource", e.cfg.ResourceID)
		e.becomeFollower()
		e.claim()

		return
	}

	if err == nil {
		rec.Heartbeat = now
		err = e.write(rec)
	}

	if err != nil {
		e.cfg.Metrics.RecordHeartbeat(e.cfg.ResourceID, false)
		e.cfg.Logger.Warn("heartbeat failed", "resource", e.cfg.ResourceID, "error", err)

		if now.Sub(e.lastHeartbeatOK) > e.cfg.LeaseTimeout {
			e.cfg.Logger.Warn("heartbeat lease lapsed, stepping down", "resource", e.cfg.ResourceID)
			e.becomeFollower()

			return
		}
		e.heartbeat.Arm(e.cfg.HeartbeatInterval)

		return
	}

	e.lastHeartbeatOK = now
	e.cfg.Metrics.RecordHeartbeat(e.cfg.ResourceID, true)
	e.heartbeat.Arm(e.cfg.HeartbeatInterval)
}

// sweepOnce lets a non-leader take over a missing or stale record.
func (e *Elector) sweepOnce() {
	if e.Status() != types.LeaderStatusFollower {
		return
	}
	e.attempts = 0
	e.claim()
}

func (e *Elector) becomeLeader(now time.Time) {
	e.confirm.Disarm()
	e.lastHeartbeatOK = now
	if !e.heartbeat.Armed() {
		e.heartbeat.Arm(e.cfg.HeartbeatInterval)
	}
	e.setStatus(types.LeaderStatusLeader)
}

func (e *Elector) becomeFollower() {
	e.confirm.Disarm()
	e.heartbeat.Disarm()
	e.setStatus(types.LeaderStatusFollower)
}

func (e *Elector) release() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.OperationTimeout)
	defer cancel()

	rec, found, err := e.readWith(ctx)
	if err != nil {
		e.cfg.Logger.Warn("failed to read leader record on release", "resource", e.cfg.ResourceID, "error", err)
		return
	}
	if !found || rec.ContextID != e.cfg.ContextID {
		return
	}

	if err := e.cfg.KV.Delete(ctx, e.cfg.Key); err != nil {
		e.cfg.Logger.Warn("failed to release leadership", "resource", e.cfg.ResourceID, "error", err)
		return
	}
	e.cfg.Logger.Info("released leadership", "resource", e.cfg.ResourceID, "context_id", e.cfg.ContextID)
}

func (e *Elector) read() (types.LeaderRecord, bool, error) {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.OperationTimeout)
	defer cancel()

	return e.readWith(ctx)
}

func (e *Elector) readWith(ctx context.Context) (types.LeaderRecord, bool, error) {
	raw, err := e.cfg.KV.Get(ctx, e.cfg.Key)
	if errors.Is(err, types.ErrKeyNotFound) {
		return types.LeaderRecord{}, false, nil
	}
	if err != nil {
		return types.LeaderRecord{}, false, err
	}

	var rec types.LeaderRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A record nobody can parse is treated as absent so it gets overwritten.
		e.cfg.Logger.Warn("malformed leader record", "resource", e.cfg.ResourceID, "error", err)
		return types.LeaderRecord{}, false, nil
	}

	return rec, true, nil
}

func (e *Elector) write(rec types.LeaderRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode leader record: %w", err)
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.OperationTimeout)
	defer cancel()

	return e.cfg.KV.Put(ctx, e.cfg.Key, raw)
}

func (e *Elector) setStatus(to types.LeaderStatus) {
	from := types.LeaderStatus(e.status.Swap(int32(to)))
	if from == to {
		return
	}

	e.cfg.Logger.Info("leader status changed",
		"resource", e.cfg.ResourceID, "context_id", e.cfg.ContextID, "from", from.String(), "to", to.String())
	e.cfg.Metrics.RecordLeadershipChange(e.cfg.ResourceID, to)

	e.subscribers.Range(func(_ uint64, sub *statusSubscriber) bool {
		sub.trySend(to)
		return true
	})

	hookCtx := e.ctx
	go func() {
		if err := e.hooks.OnLeadershipChanged(hookCtx, e.cfg.ResourceID, from, to); err != nil {
			e.cfg.Logger.Error("OnLeadershipChanged hook failed", "resource", e.cfg.ResourceID, "error", err)
		}
	}()
}
