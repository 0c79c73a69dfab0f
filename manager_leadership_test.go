package draftsync

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync/internal/kvutil"
	"github.com/arloliu/draftsync/sharedkv"
	"github.com/arloliu/draftsync/storage/natskv"
	draftsynctest "github.com/arloliu/draftsync/testing"
)

// TestManager_NATSHandover runs two contexts against an embedded NATS server: the
// first leader saves, stops, and the second takes over with the saved draft.
func TestManager_NATSHandover(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	_, nc := draftsynctest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	cfg := TestConfig()
	coordination, err := kvutil.EnsureBucket(ctx, js, kvutil.CoordinationBucket(cfg.KVBuckets.CoordinationBucket), 0)
	require.NoError(t, err)
	drafts, err := kvutil.EnsureBucket(ctx, js, kvutil.DraftBucket(cfg.KVBuckets.DraftBucket), 0)
	require.NoError(t, err)

	newContext := func(id string) *Manager {
		logger := draftsynctest.NewTestLogger(t)
		store := sharedkv.NewNATS(coordination, sharedkv.WithNATSLogger(logger))
		c := cfg

		m, err := NewManager(&c, store, store, natskv.New(drafts, natskv.WithLogger(logger)),
			WithContextID(id), WithLogger(logger))
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Stop(context.Background()) })

		return m
	}

	ma := newContext("ctx-a")
	a, err := ma.Open(ctx, "est-1")
	require.NoError(t, err)
	require.Eventually(t, a.IsLeader, 5*time.Second, 20*time.Millisecond)

	mb := newContext("ctx-b")
	b, err := mb.Open(ctx, "est-1")
	require.NoError(t, err)

	// Stays follower across several heartbeats.
	require.Never(t, b.IsLeader, 3*cfg.Election.HeartbeatInterval, 50*time.Millisecond)

	require.NoError(t, a.Update(ctx, map[string]any{"profitMargin": 30}))
	require.Eventually(t, func() bool { return !a.IsDirty() && a.Version() > 0 }, 5*time.Second, 20*time.Millisecond,
		"debounced save should land")
	saved := a.Version()

	require.ErrorIs(t, b.Save(ctx), ErrNotLeader)

	require.NoError(t, ma.Stop(ctx))

	require.Eventually(t, b.IsLeader, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return b.Hydrated() != nil }, 5*time.Second, 20*time.Millisecond)
	require.InDelta(t, 30.0, b.Hydrated().Fields["profitMargin"], 0)
	require.Equal(t, saved, b.Version())

	require.NoError(t, b.Update(ctx, map[string]any{"profitMargin": 35}))
	require.NoError(t, b.Flush(ctx))
	require.Greater(t, b.Version(), saved)
	require.Nil(t, b.Conflict())
}
