package autosave

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/draftsync/internal/clock"
	"github.com/arloliu/draftsync/internal/hooks"
	"github.com/arloliu/draftsync/types"
)

type hydrateState int

const (
	hydrateNone hydrateState = iota
	hydrateLoading
	hydrateDone
)

type command struct {
	fn   func()
	done chan struct{}
}

type saveResult struct {
	seq      uint64
	snapshot types.EstimateData
	base     int64
	version  int64
	err      error
	duration time.Duration
	bytes    int
}

type loadResult struct {
	data *types.EstimateData
	err  error
}

// Coordinator owns one resource's draft and its persistence schedule.
type Coordinator struct {
	cfg   Config
	hooks types.Hooks

	view atomic.Pointer[View]

	mu      sync.Mutex
	started bool
	stopped bool

	ctx         context.Context //nolint:containedctx // lifecycle context for adapter calls and hooks
	cancel      context.CancelFunc
	cmds        chan command
	saveResults chan saveResult
	loadResults chan loadResult
	forceStop   chan struct{}
	doneCh      chan struct{}
	unsubscribe func()
	leaderCh    <-chan types.LeaderStatus

	// Actor-owned state.
	data               types.EstimateData
	fingerprint        uint64
	dirty              bool
	editSeq            uint64
	status             types.AutoSaveStatus
	lastErr            *types.StorageError
	conflict           *types.ConflictData
	lastSaved          time.Time
	version            int64
	everSaved          bool
	online             bool
	leader             bool
	saving             bool
	savingSeq          uint64
	pendingAfterFlight bool
	retryUsed          bool
	waiters            []chan error
	hydrate            hydrateState
	hydrateRetryUsed   bool
	hydrated           *types.EstimateData
	stopping           bool
	exit               bool
	published          types.AutoSaveStatus

	quiet        *clock.Slot
	maxWait      *clock.Slot
	retry        *clock.Slot
	savedDisplay *clock.Slot
	hydrateRetry *clock.Slot
}

// New creates a coordinator with validated configuration.
func New(cfg *Config) (*Coordinator, error) {
	c := *cfg
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}

	co := &Coordinator{
		cfg:          c,
		hooks:        hooks.WithDefaults(c.Hooks),
		data:         c.Initial.Clone(),
		version:      c.Initial.Version,
		online:       true,
		quiet:        clock.NewSlot(c.Clock),
		maxWait:      clock.NewSlot(c.Clock),
		retry:        clock.NewSlot(c.Clock),
		savedDisplay: clock.NewSlot(c.Clock),
		hydrateRetry: clock.NewSlot(c.Clock),
	}
	co.fingerprint = co.data.Fingerprint()
	co.publish()

	return co, nil
}

// Start launches the actor and subscribes to leadership changes.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return types.ErrAlreadyStarted
	}
	c.started = true

	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.cmds = make(chan command)
	c.saveResults = make(chan saveResult, 1)
	c.loadResults = make(chan loadResult, 1)
	c.forceStop = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.leaderCh, c.unsubscribe = c.cfg.Leader.Subscribe()

	go c.run()

	return nil
}

// Stop halts the actor.
//
// An in-flight save is allowed to finish for up to ShutdownTimeout. Pending Flush and
// Save callers are released with types.ErrStopped. Stop is idempotent.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return types.ErrNotStarted
	}
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	select {
	case c.cmds <- command{fn: c.beginStop}:
	case <-c.doneCh:
	}

	select {
	case <-c.doneCh:
	case <-time.After(c.cfg.ShutdownTimeout):
		c.cfg.Logger.Warn("in-flight save did not finish before shutdown timeout",
			"resource", c.cfg.ResourceID, "timeout", c.cfg.ShutdownTimeout)
		close(c.forceStop)
		<-c.doneCh
	}

	c.unsubscribe()
	c.cancel()

	return nil
}

// View returns the latest published state snapshot.
func (c *Coordinator) View() View {
	return *c.view.Load()
}

func (c *Coordinator) run() {
	defer close(c.doneCh)

	// Leadership may have been settled before we subscribed.
	c.onLeaderSignal()
	c.publish()

	for !c.exit {
		select {
		case cmd := <-c.cmds:
			cmd.fn()
			c.publish()
			if cmd.done != nil {
				close(cmd.done)
			}

			continue
		case _, ok := <-c.leaderCh:
			if !ok {
				c.leaderCh = nil
				continue
			}
			c.onLeaderSignal()
		case r := <-c.saveResults:
			c.onSaveResult(r)
		case r := <-c.loadResults:
			c.onLoadResult(r)
		case <-c.quiet.C():
			c.quiet.Fired()
			c.onDebounceFired("quiet")
		case <-c.maxWait.C():
			c.maxWait.Fired()
			c.onDebounceFired("max_wait")
		case <-c.retry.C():
			c.retry.Fired()
			c.onRetryFired()
		case <-c.savedDisplay.C():
			c.savedDisplay.Fired()
			if c.status == types.StatusSaved {
				c.setStatus(types.StatusIdle)
			}
		case <-c.hydrateRetry.C():
			c.hydrateRetry.Fired()
			if c.hydrate == hydrateNone && c.leader {
				c.startHydration()
			}
		case <-c.forceStop:
			c.exit = true
		}
		c.publish()
	}

	c.resolveWaiters(types.ErrStopped)
	c.disarmAll()
	c.publish()
}

// exec runs fn on the actor and waits until it ran and state was republished.
func (c *Coordinator) exec(ctx context.Context, fn func()) error {
	c.mu.Lock()
	started, stopped := c.started, c.stopped
	c.mu.Unlock()

	if !started {
		return types.ErrNotStarted
	}
	if stopped {
		return types.ErrStopped
	}

	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case c.cmds <- cmd:
	case <-c.doneCh:
		return types.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	<-cmd.done

	return nil
}

// await waits for a waiter channel created on the actor.
func (c *Coordinator) await(ctx context.Context, wait <-chan error) error {
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) beginStop() {
	c.stopping = true
	c.disarmAll()
	if !c.saving {
		c.exit = true
	}
}

func (c *Coordinator) disarmAll() {
	c.quiet.Disarm()
	c.maxWait.Disarm()
	c.retry.Disarm()
	c.savedDisplay.Disarm()
	c.hydrateRetry.Disarm()
}

func (c *Coordinator) publish() {
	v := &View{
		Status:        c.status,
		Dirty:         c.dirty,
		Saving:        c.saving,
		Err:           c.lastErr,
		Conflict:      c.conflict,
		LastSaved:     c.lastSaved,
		Version:       c.version,
		Hydrated:      c.hydrated,
		HydrationDone: c.hydrate == hydrateDone,
		IsLeader:      c.leader,
		Online:        c.online,
		Data:          c.data,
	}
	if !c.online {
		v.Status = types.StatusOffline
	}
	c.view.Store(v)

	if v.Status != c.published {
		c.published = v.Status
		c.cfg.Metrics.RecordStatus(c.cfg.ResourceID, v.Status)
		c.fireHook("OnStatusChanged", func(ctx context.Context) error {
			return c.hooks.OnStatusChanged(ctx, c.cfg.ResourceID, v.Status)
		})
	}
}

func (c *Coordinator) setStatus(s types.AutoSaveStatus) {
	if c.status == s {
		return
	}
	c.cfg.Logger.Debug("auto-save status changed",
		"resource", c.cfg.ResourceID, "from", c.status.String(), "to", s.String())
	c.status = s
}

func (c *Coordinator) fireHook(name string, fn func(ctx context.Context) error) {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		if err := fn(ctx); err != nil {
			c.cfg.Logger.Error("hook failed", "hook", name, "resource", c.cfg.ResourceID, "error", err)
		}
	}()
}

func (c *Coordinator) onLeaderSignal() {
	isLeader := c.cfg.Leader.IsLeader()
	if isLeader == c.leader {
		return
	}
	c.leader = isLeader

	if !isLeader {
		c.cfg.Logger.Debug("lost leadership, pausing auto-save", "resource", c.cfg.ResourceID)
		c.quiet.Disarm()
		c.maxWait.Disarm()
		c.retry.Disarm()
		c.hydrateRetry.Disarm()
		if !c.saving {
			c.resolveWaiters(types.ErrNotLeader)
		}

		return
	}

	c.cfg.Logger.Debug("gained leadership", "resource", c.cfg.ResourceID, "dirty", c.dirty)
	if c.hydrate == hydrateNone {
		c.startHydration()
	}
	if c.dirty && !c.saving {
		c.armDebounce()
	}
}

// isLeaderNow asks the election directly, so a save never relies on a stale signal.
func (c *Coordinator) isLeaderNow() bool {
	isLeader := c.cfg.Leader.IsLeader()
	if isLeader != c.leader {
		c.onLeaderSignal()
	}

	return isLeader
}

func (c *Coordinator) addWaiter() chan error {
	w := make(chan error, 1)
	c.waiters = append(c.waiters, w)

	return w
}

func (c *Coordinator) resolveWaiters(err error) {
	for _, w := range c.waiters {
		w <- err
	}
	c.waiters = nil
}
