package election

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync/sharedkv"
	draftsynctest "github.com/arloliu/draftsync/testing"
	"github.com/arloliu/draftsync/types"
)

const testKey = "leader.est-1"

var epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestElector(t *testing.T, kv types.SharedKV, bus types.ChangeBus, clk types.Clock, id string, mutate ...func(*Config)) *Elector {
	t.Helper()

	cfg := &Config{
		KV:                kv,
		Bus:               bus,
		ResourceID:        "est-1",
		ContextID:         id,
		Key:               testKey,
		LeaseTimeout:      3 * time.Second,
		HeartbeatInterval: 500 * time.Millisecond,
		SweepInterval:     time.Second,
		Clock:             clk,
		Logger:            draftsynctest.NewTestLogger(t),
		Jitter:            NoJitter,
	}
	for _, m := range mutate {
		m(cfg)
	}

	e, err := NewElector(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Stop() })

	return e
}

func readRecord(t *testing.T, kv types.SharedKV) (types.LeaderRecord, bool) {
	t.Helper()

	raw, err := kv.Get(context.Background(), testKey)
	if errors.Is(err, types.ErrKeyNotFound) {
		return types.LeaderRecord{}, false
	}
	require.NoError(t, err)

	var rec types.LeaderRecord
	require.NoError(t, json.Unmarshal(raw, &rec))

	return rec, true
}

func TestElector_SingleContext(t *testing.T) {
	t.Run("becomes leader and writes record", func(t *testing.T) {
		hub := sharedkv.NewMemoryHub()
		clk := draftsynctest.NewFakeClock(epoch)
		kv := hub.Context("a")
		e := newTestElector(t, kv, kv, clk, "a")

		require.NoError(t, e.Start(t.Context()))
		require.Eventually(t, e.IsLeader, time.Second, 5*time.Millisecond)

		rec, ok := readRecord(t, kv)
		require.True(t, ok)
		require.Equal(t, "a", rec.ContextID)
		require.Equal(t, epoch, rec.ClaimedAt)
	})

	t.Run("heartbeat refreshes record", func(t *testing.T) {
		hub := sharedkv.NewMemoryHub()
		clk := draftsynctest.NewFakeClock(epoch)
		kv := hub.Context("a")
		e := newTestElector(t, kv, kv, clk, "a")

		require.NoError(t, e.Start(t.Context()))
		require.Eventually(t, e.IsLeader, time.Second, 5*time.Millisecond)

		clk.Advance(500 * time.Millisecond)
		require.Eventually(t, func() bool {
			rec, ok := readRecord(t, kv)
			return ok && rec.Heartbeat.Equal(epoch.Add(500*time.Millisecond))
		}, time.Second, 5*time.Millisecond)

		rec, _ := readRecord(t, kv)
		require.Equal(t, epoch, rec.ClaimedAt, "heartbeat keeps the original claim time")
	})

	t.Run("stop releases record", func(t *testing.T) {
		hub := sharedkv.NewMemoryHub()
		clk := draftsynctest.NewFakeClock(epoch)
		kv := hub.Context("a")
		e := newTestElector(t, kv, kv, clk, "a")

		require.NoError(t, e.Start(t.Context()))
		require.Eventually(t, e.IsLeader, time.Second, 5*time.Millisecond)

		require.NoError(t, e.Stop())
		require.NoError(t, e.Stop())
		require.False(t, e.IsLeader())

		_, ok := readRecord(t, kv)
		require.False(t, ok)
	})

	t.Run("store errors are swallowed and retried on sweep", func(t *testing.T) {
		hub := sharedkv.NewMemoryHub()
		clk := draftsynctest.NewFakeClock(epoch)
		kv := hub.Context("a")
		kv.SetFailure(errors.New("store offline"))
		e := newTestElector(t, kv, kv, clk, "a")

		require.NoError(t, e.Start(t.Context()))
		require.Equal(t, types.LeaderStatusFollower, e.Status())

		kv.SetFailure(nil)
		clk.Advance(time.Second)
		require.Eventually(t, e.IsLeader, time.Second, 5*time.Millisecond)
	})
}

func TestElector_Lifecycle(t *testing.T) {
	kv := sharedkv.NewMemoryHub().Context("a")
	clk := draftsynctest.NewFakeClock(epoch)

	e, err := NewElector(&Config{KV: kv, Bus: kv, ResourceID: "est-1", ContextID: "a", Key: testKey, Clock: clk})
	require.NoError(t, err)

	require.ErrorIs(t, e.Stop(), types.ErrNotStarted)
	require.NoError(t, e.Start(t.Context()))
	require.ErrorIs(t, e.Start(t.Context()), types.ErrAlreadyStarted)
	require.NoError(t, e.Stop())
}

func TestNewElector_Validation(t *testing.T) {
	kv := sharedkv.NewMemoryHub().Context("a")

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing kv", Config{Bus: kv, ResourceID: "r", ContextID: "a", Key: "k"}},
		{"missing bus", Config{KV: kv, ResourceID: "r", ContextID: "a", Key: "k"}},
		{"missing context", Config{KV: kv, Bus: kv, ResourceID: "r", Key: "k"}},
		{"heartbeat not below lease", Config{
			KV: kv, Bus: kv, ResourceID: "r", ContextID: "a", Key: "k",
			LeaseTimeout: time.Second, HeartbeatInterval: time.Second,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewElector(&tt.cfg)
			require.ErrorIs(t, err, types.ErrInvalidConfig)
		})
	}
}

func TestElector_TwoContexts(t *testing.T) {
	t.Run("second context follows", func(t *testing.T) {
		hub := sharedkv.NewMemoryHub()
		clk := draftsynctest.NewFakeClock(epoch)
		a := newTestElector(t, hub.Context("a"), hub.Context("a"), clk, "a")
		b := newTestElector(t, hub.Context("b"), hub.Context("b"), clk, "b")

		require.NoError(t, a.Start(t.Context()))
		require.Eventually(t, a.IsLeader, time.Second, 5*time.Millisecond)
		require.NoError(t, b.Start(t.Context()))
		require.Equal(t, types.LeaderStatusFollower, b.Status())

		// Heartbeats and sweeps keep the roles stable.
		for range 10 {
			clk.Advance(500 * time.Millisecond)
			time.Sleep(2 * time.Millisecond)
		}
		require.True(t, a.IsLeader())
		require.False(t, b.IsLeader())
	})

	t.Run("release hands over immediately", func(t *testing.T) {
		hub := sharedkv.NewMemoryHub()
		clk := draftsynctest.NewFakeClock(epoch)
		a := newTestElector(t, hub.Context("a"), hub.Context("a"), clk, "a")
		b := newTestElector(t, hub.Context("b"), hub.Context("b"), clk, "b")

		require.NoError(t, a.Start(t.Context()))
		require.Eventually(t, a.IsLeader, time.Second, 5*time.Millisecond)
		require.NoError(t, b.Start(t.Context()))

		require.NoError(t, a.Stop())

		// No clock movement: the delete notification alone triggers the claim.
		require.Eventually(t, b.IsLeader, time.Second, 5*time.Millisecond)
		rec, ok := readRecord(t, hub.Context("probe"))
		require.True(t, ok)
		require.Equal(t, "b", rec.ContextID)
	})

	t.Run("stale record is reclaimed after lease and not before", func(t *testing.T) {
		hub := sharedkv.NewMemoryHub()
		clk := draftsynctest.NewFakeClock(epoch)
		aKV := hub.Context("a")
		a := newTestElector(t, aKV, aKV, clk, "a")
		b := newTestElector(t, hub.Context("b"), hub.Context("b"), clk, "b")

		require.NoError(t, a.Start(t.Context()))
		require.Eventually(t, a.IsLeader, time.Second, 5*time.Millisecond)
		require.NoError(t, b.Start(t.Context()))

		// The leader's heartbeats stop reaching the store.
		aKV.SetFailure(errors.New("context frozen"))
		rec, ok := readRecord(t, hub.Context("probe"))
		require.True(t, ok)
		lastBeat := rec.Heartbeat
		lease := 3 * time.Second

		for !clk.Now().After(lastBeat.Add(lease)) {
			require.False(t, b.IsLeader(), "reclaimed at %v, only %v after last heartbeat",
				clk.Now(), clk.Now().Sub(lastBeat))
			clk.Advance(100 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}

		require.Eventually(t, func() bool {
			if b.IsLeader() {
				return true
			}
			clk.Advance(100 * time.Millisecond)

			return false
		}, 2*time.Second, 5*time.Millisecond)

		require.LessOrEqual(t, clk.Now().Sub(lastBeat), lease+3*time.Second)
		rec, ok = readRecord(t, hub.Context("probe"))
		require.True(t, ok)
		require.Equal(t, "b", rec.ContextID)
	})
}

// barrierKV holds every context after its first Get returned until all of them have
// read, so that all of them observe an empty store before anyone claims. Puts
// optionally wait on a gate.
type barrierKV struct {
	types.SharedKV

	barrier *sync.WaitGroup
	first   sync.Once
	putGate chan struct{}
	puts    atomic.Int32
}

func (b *barrierKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.SharedKV.Get(ctx, key)
	b.first.Do(func() {
		b.barrier.Done()
		b.barrier.Wait()
	})

	return value, err
}

func (b *barrierKV) Put(ctx context.Context, key string, value []byte) error {
	if b.putGate != nil {
		<-b.putGate
	}
	b.puts.Add(1)

	return b.SharedKV.Put(ctx, key, value)
}

// silentBus never delivers notifications.
type silentBus struct{}

func (silentBus) Watch(context.Context, string) (<-chan types.ChangeEvent, func(), error) {
	return make(chan types.ChangeEvent), func() {}, nil
}

func TestElector_ConcurrentClaims(t *testing.T) {
	const contexts = 5

	hub := sharedkv.NewMemoryHub()
	clk := draftsynctest.NewFakeClock(epoch)

	var barrier sync.WaitGroup
	barrier.Add(contexts)

	electors := make([]*Elector, contexts)
	kvs := make([]*barrierKV, contexts)
	for i := range contexts {
		id := string(rune('a' + i))
		view := hub.Context(id)
		kvs[i] = &barrierKV{SharedKV: view, barrier: &barrier}
		electors[i] = newTestElector(t, kvs[i], view, clk, id)
	}

	var wg sync.WaitGroup
	for _, e := range electors {
		wg.Go(func() {
			require.NoError(t, e.Start(t.Context()))
		})
	}
	wg.Wait()

	for _, kv := range kvs {
		require.Equal(t, int32(1), kv.puts.Load(), "every context saw an empty store and claimed")
	}

	leaders := func() []string {
		var ids []string
		for _, e := range electors {
			if e.IsLeader() {
				ids = append(ids, e.cfg.ContextID)
			}
		}

		return ids
	}

	require.Eventually(t, func() bool { return len(leaders()) == 1 }, 2*time.Second, 5*time.Millisecond)

	rec, ok := readRecord(t, hub.Context("probe"))
	require.True(t, ok)
	require.Equal(t, []string{rec.ContextID}, leaders(), "the surviving leader is the last writer")
}

func TestElector_DualLeaderWindow(t *testing.T) {
	hub := sharedkv.NewMemoryHub()
	clk := draftsynctest.NewFakeClock(epoch)

	var barrier sync.WaitGroup
	barrier.Add(2)

	gate := make(chan struct{})
	aKV := &barrierKV{SharedKV: hub.Context("a"), barrier: &barrier}
	bKV := &barrierKV{SharedKV: hub.Context("b"), barrier: &barrier, putGate: gate}

	// a never hears about b's write; only its own heartbeat can reveal it.
	a := newTestElector(t, aKV, silentBus{}, clk, "a")
	b := newTestElector(t, bKV, hub.Context("b"), clk, "b")

	var wg sync.WaitGroup
	wg.Go(func() { require.NoError(t, a.Start(t.Context())) })
	wg.Go(func() { require.NoError(t, b.Start(t.Context())) })

	require.Eventually(t, a.IsLeader, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	require.Eventually(t, b.IsLeader, time.Second, 5*time.Millisecond)
	require.True(t, a.IsLeader(), "both contexts believe they lead")

	clk.Advance(500 * time.Millisecond)

	require.Eventually(t, func() bool { return !a.IsLeader() }, time.Second, 5*time.Millisecond)
	require.True(t, b.IsLeader())
}

func TestElector_ClaimAttemptsBounded(t *testing.T) {
	clk := draftsynctest.NewFakeClock(epoch)
	kv := &vanishingKV{}
	e := newTestElector(t, kv, silentBus{}, clk, "a")

	require.NoError(t, e.Start(t.Context()))

	require.Eventually(t, func() bool { return kv.puts.Load() == 3 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return kv.puts.Load() > 3 }, 50*time.Millisecond, 5*time.Millisecond)
	require.Eventually(t, func() bool { return e.Status() == types.LeaderStatusFollower }, time.Second, 5*time.Millisecond)

	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return kv.puts.Load() == 6 }, time.Second, 5*time.Millisecond)
}

// vanishingKV accepts writes but never remembers them, as if every claim were
// immediately removed by someone else.
type vanishingKV struct {
	puts atomic.Int32
}

func (v *vanishingKV) Get(context.Context, string) ([]byte, error) {
	return nil, types.ErrKeyNotFound
}

func (v *vanishingKV) Put(context.Context, string, []byte) error {
	v.puts.Add(1)
	return nil
}

func (v *vanishingKV) Delete(context.Context, string) error {
	return nil
}

func TestElector_Observers(t *testing.T) {
	hub := sharedkv.NewMemoryHub()
	clk := draftsynctest.NewFakeClock(epoch)
	kv := hub.Context("a")

	hookCh := make(chan types.LeaderStatus, 8)
	e := newTestElector(t, kv, kv, clk, "a", func(c *Config) {
		c.Hooks = &types.Hooks{
			OnLeadershipChanged: func(_ context.Context, resourceID string, _, to types.LeaderStatus) error {
				if resourceID == "est-1" {
					hookCh <- to
				}
				return nil
			},
		}
	})

	ch, unsubscribe := e.Subscribe()
	require.Equal(t, types.LeaderStatusFollower, <-ch)

	require.NoError(t, e.Start(t.Context()))
	require.Eventually(t, e.IsLeader, time.Second, 5*time.Millisecond)

	require.Equal(t, types.LeaderStatusClaiming, <-ch)
	require.Equal(t, types.LeaderStatusLeader, <-ch)

	seen := map[types.LeaderStatus]bool{}
	require.Eventually(t, func() bool {
		select {
		case s := <-hookCh:
			seen[s] = true
		default:
		}
		return seen[types.LeaderStatusLeader]
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	_, ok := <-ch
	require.False(t, ok)
}
