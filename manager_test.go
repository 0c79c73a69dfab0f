package draftsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync/emergency"
	"github.com/arloliu/draftsync/lifecycle"
	"github.com/arloliu/draftsync/sharedkv"
	"github.com/arloliu/draftsync/storage/memory"
	draftsynctest "github.com/arloliu/draftsync/testing"
)

var epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type cluster struct {
	hub   *sharedkv.MemoryHub
	store *memory.Store
	clk   *draftsynctest.FakeClock
	log   *emergency.Memory
}

func newCluster() *cluster {
	return &cluster{
		hub:   sharedkv.NewMemoryHub(),
		store: memory.New(memory.WithVersionCheck()),
		clk:   draftsynctest.NewFakeClock(epoch),
		log:   emergency.NewMemory(),
	}
}

func (c *cluster) manager(t *testing.T, id string, opts ...Option) *Manager {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Election.DisableClaimJitter = true

	kv := c.hub.Context(id)
	opts = append([]Option{
		WithContextID(id),
		WithClock(c.clk),
		WithLogger(draftsynctest.NewTestLogger(t)),
		WithEmergencyLog(c.log),
	}, opts...)

	m, err := NewManager(&cfg, kv, kv, c.store, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	return m
}

func open(t *testing.T, m *Manager, resourceID string) *Draft {
	t.Helper()

	d, err := m.Open(t.Context(), resourceID)
	require.NoError(t, err)

	return d
}

func TestNewManager(t *testing.T) {
	kv := sharedkv.NewMemoryHub().Context("a")
	store := memory.New()

	t.Run("nil config", func(t *testing.T) {
		_, err := NewManager(nil, kv, kv, store)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing ports", func(t *testing.T) {
		cfg := DefaultConfig()

		_, err := NewManager(&cfg, nil, kv, store)
		require.ErrorIs(t, err, ErrSharedKVRequired)
		_, err = NewManager(&cfg, kv, nil, store)
		require.ErrorIs(t, err, ErrChangeBusRequired)
		_, err = NewManager(&cfg, kv, kv, nil)
		require.ErrorIs(t, err, ErrStorageAdapterRequired)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AutoSave.DebounceQuiet = time.Hour

		_, err := NewManager(&cfg, kv, kv, store)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("defaults", func(t *testing.T) {
		m, err := NewManager(&Config{}, kv, kv, store)
		require.NoError(t, err)
		require.NotEmpty(t, m.ContextID())
		require.Equal(t, DefaultConfig(), m.Config())
	})
}

func TestManager_Open(t *testing.T) {
	c := newCluster()
	m := c.manager(t, "ctx-a")

	_, err := m.Open(t.Context(), "")
	require.ErrorIs(t, err, ErrEmptyResourceID)

	d1 := open(t, m, "est-1")
	d2 := open(t, m, "est-1")
	require.Same(t, d1, d2)
	open(t, m, "est-2")
	require.Equal(t, []string{"est-1", "est-2"}, m.Drafts())

	require.NoError(t, d1.Close())
	_, ok := m.Draft("est-1")
	require.False(t, ok)

	require.NoError(t, m.Stop(t.Context()))
	require.NoError(t, m.Stop(t.Context()))
	require.Empty(t, m.Drafts())

	_, err = m.Open(t.Context(), "est-3")
	require.ErrorIs(t, err, ErrStopped)
}

func TestManager_ClaimJitter(t *testing.T) {
	t.Run("claim waits for the jitter window", func(t *testing.T) {
		c := newCluster()
		kv := c.hub.Context("ctx-a")

		m, err := NewManager(&Config{}, kv, kv, c.store,
			WithContextID("ctx-a"),
			WithClock(c.clk),
			WithLogger(draftsynctest.NewTestLogger(t)),
			WithEmergencyLog(c.log),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Stop(context.Background()) })
		require.Equal(t, 200*time.Millisecond, m.Config().Election.ClaimJitter)

		d := open(t, m, "est-1")
		require.Equal(t, LeaderStatusClaiming, d.LeaderStatus())
		require.False(t, d.IsLeader())

		require.Eventually(t, func() bool {
			c.clk.Advance(m.Config().Election.ClaimJitter)
			return d.IsLeader()
		}, waitFor, tick)
	})

	t.Run("opt-out confirms without waiting", func(t *testing.T) {
		c := newCluster()
		d := open(t, c.manager(t, "ctx-a"), "est-1")
		require.Eventually(t, d.IsLeader, waitFor, tick)
	})
}

// An Open racing a Close of the same resource gets a fresh draft only after the old
// one has released leadership.
func TestManager_OpenWaitsForClosingDraft(t *testing.T) {
	c := newCluster()
	m := c.manager(t, "ctx-a")

	d1 := open(t, m, "est-1")
	require.Eventually(t, d1.IsLeader, waitFor, tick)

	release := c.store.Hold()
	defer release()
	require.NoError(t, d1.Update(t.Context(), map[string]any{"profitMargin": 30}))
	go func() { _ = d1.Save(context.Background()) }()
	require.Eventually(t, func() bool { return c.store.Saves() == 1 }, waitFor, tick)

	closed := make(chan error, 1)
	go func() { closed <- d1.Close() }()
	require.Eventually(t, d1.closing.Load, waitFor, tick)

	_, ok := m.Draft("est-1")
	require.False(t, ok)
	require.Empty(t, m.Drafts())

	opened := make(chan *Draft, 1)
	go func() {
		d, err := m.Open(context.Background(), "est-1")
		if err != nil {
			t.Error(err)
		}
		opened <- d
	}()
	require.Never(t, func() bool { return len(opened) > 0 }, 100*time.Millisecond, tick)

	release()
	require.NoError(t, <-closed)

	d2 := <-opened
	require.NotNil(t, d2)
	require.NotSame(t, d1, d2)
	require.Eventually(t, d2.IsLeader, waitFor, tick)

	got, ok := m.Draft("est-1")
	require.True(t, ok)
	require.Same(t, d2, got)
}

// Leader edits and saves; the follower's manual save never reaches storage.
func TestManager_LeaderSavesFollowerDoesNot(t *testing.T) {
	c := newCluster()
	a := open(t, c.manager(t, "ctx-a"), "est-1")
	require.Eventually(t, a.IsLeader, waitFor, tick)

	b := open(t, c.manager(t, "ctx-b"), "est-1")
	require.False(t, b.IsLeader())
	require.Equal(t, LeaderStatusFollower, b.LeaderStatus())

	require.NoError(t, a.Update(t.Context(), map[string]any{"profitMargin": 30}))
	require.True(t, a.IsDirty())

	require.NoError(t, a.Flush(t.Context()))
	require.Equal(t, 1, c.store.Saves())
	require.False(t, a.IsDirty())

	saved, ok := c.store.Get("est-1")
	require.True(t, ok)
	require.InDelta(t, 30.0, saved.Fields["profitMargin"], 0)
	require.Equal(t, int64(1), a.Version())
	require.Equal(t, StatusSaved, a.Status())
	require.Equal(t, epoch, a.LastSaved())

	require.NoError(t, b.Update(t.Context(), map[string]any{"profitMargin": 40}))
	require.ErrorIs(t, b.Save(t.Context()), ErrNotLeader)
	require.Equal(t, 1, c.store.Saves())
	require.True(t, b.IsDirty())
}

func TestManager_Handover(t *testing.T) {
	c := newCluster()
	a := open(t, c.manager(t, "ctx-a"), "est-1")
	require.Eventually(t, a.IsLeader, waitFor, tick)

	mb := c.manager(t, "ctx-b")
	b := open(t, mb, "est-1")
	leadership, unsubscribe := b.SubscribeLeadership()
	defer unsubscribe()
	require.Equal(t, LeaderStatusFollower, <-leadership)

	require.NoError(t, a.Update(t.Context(), map[string]any{"profitMargin": 30}))
	require.NoError(t, a.Flush(t.Context()))
	require.NoError(t, a.Close())

	require.Eventually(t, b.IsLeader, waitFor, tick)
	require.Eventually(t, func() bool { return b.Hydrated() != nil }, waitFor, tick)
	require.InDelta(t, 30.0, b.Hydrated().Fields["profitMargin"], 0)
	require.Equal(t, int64(1), b.Version())

	// The new leader saves on top of the hydrated version.
	require.NoError(t, b.Update(t.Context(), map[string]any{"profitMargin": 35}))
	require.NoError(t, b.Flush(t.Context()))
	require.Equal(t, int64(2), b.Version())
	require.Nil(t, b.Conflict())
}

func TestManager_StaleLeaderIsReplaced(t *testing.T) {
	c := newCluster()
	ma := c.manager(t, "ctx-a")
	a := open(t, ma, "est-1")
	require.Eventually(t, a.IsLeader, waitFor, tick)

	b := open(t, c.manager(t, "ctx-b"), "est-1")
	require.False(t, b.IsLeader())

	// ctx-a can no longer reach the store: its heartbeats fail.
	ma.kv.(*sharedkv.Memory).SetFailure(context.DeadlineExceeded)

	require.Eventually(t, func() bool {
		c.clk.Advance(250 * time.Millisecond)
		return b.IsLeader()
	}, 5*time.Second, tick)
	require.Eventually(t, func() bool { return !a.IsLeader() }, waitFor, tick)
}

func TestManager_EmergencyOnUnload(t *testing.T) {
	c := newCluster()
	signal := lifecycle.NewManual()

	a := open(t, c.manager(t, "ctx-a", WithLifecycle(signal)), "est-1")
	require.Eventually(t, a.IsLeader, waitFor, tick)
	// Each context has its own local log.
	logB := emergency.NewMemory()
	mb := c.manager(t, "ctx-b", WithLifecycle(signal), WithEmergencyLog(logB))
	b := open(t, mb, "est-1")

	require.False(t, signal.Trigger())

	require.NoError(t, a.Update(t.Context(), map[string]any{"profitMargin": 30}))
	require.NoError(t, b.Update(t.Context(), map[string]any{"profitMargin": 45}))

	// The leader flushes; the follower cannot and asks for confirmation.
	require.True(t, signal.Trigger())
	require.False(t, a.IsDirty())
	require.Equal(t, 1, c.store.Saves())

	recs, err := c.log.ReadAll(t.Context())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.InDelta(t, 30.0, recs[0].Data.Fields["profitMargin"], 0)

	recs, err = mb.EmergencyRecords(t.Context())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "est-1", recs[0].ResourceID)
	require.Equal(t, "emergency_save", recs[0].Type)
	require.InDelta(t, 45.0, recs[0].Data.Fields["profitMargin"], 0)

	require.NoError(t, mb.ClearEmergencyRecords(t.Context(), "est-1"))
	recs, err = mb.EmergencyRecords(t.Context())
	require.NoError(t, err)
	require.Empty(t, recs)

	// Stopped managers no longer answer the signal.
	require.NoError(t, mb.Stop(t.Context()))
	require.Equal(t, 1, signal.Handlers())
}

func TestManager_Disabled(t *testing.T) {
	clk := draftsynctest.NewFakeClock(epoch)
	signal := lifecycle.NewManual()

	cfg := DefaultConfig()
	cfg.Disabled = true
	m, err := NewManager(&cfg, nil, nil, nil, WithClock(clk), WithLifecycle(signal))
	require.NoError(t, err)

	d := open(t, m, "est-1")
	require.NoError(t, d.Update(t.Context(), map[string]any{"profitMargin": 30}))
	require.NoError(t, d.Save(t.Context()))
	require.NoError(t, d.Flush(t.Context()))
	require.NoError(t, m.SetOnline(t.Context(), false))

	require.False(t, d.IsLeader())
	require.False(t, d.IsDirty())
	require.Equal(t, StatusIdle, d.Status())
	require.Equal(t, LeaderStatusFollower, d.LeaderStatus())
	require.Zero(t, clk.TimersCreated())
	require.Zero(t, signal.Handlers())
	require.False(t, m.BeforeUnload())
	require.NoError(t, m.Stop(t.Context()))
}

func TestManager_SetOnline(t *testing.T) {
	c := newCluster()
	m := c.manager(t, "ctx-a")
	d := open(t, m, "est-1")

	require.NoError(t, m.SetOnline(t.Context(), false))
	require.Equal(t, StatusOffline, d.Status())

	require.NoError(t, m.SetOnline(t.Context(), true))
	require.Equal(t, StatusIdle, d.Status())
}
