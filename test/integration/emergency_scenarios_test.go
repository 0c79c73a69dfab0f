//go:build integration

package integration_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync/test/testutil"
)

func TestEmergency_UnloadWithUnsavedEdits(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := testutil.IntegrationTestConfig()
	// Keep edits pending long enough for the unload to see them.
	cfg.AutoSave.DebounceQuiet = 10 * time.Second
	cfg.AutoSave.DebounceMaxWait = 20 * time.Second

	cluster := testutil.NewCluster(t, cfg)
	contexts := cluster.AddContexts(2)
	drafts := cluster.OpenAll(t.Context(), "est-1", contexts...)
	leader := testutil.WaitForLeader(t, drafts, 5*time.Second)

	var leaderCtx, followerCtx *testutil.Context
	for i, d := range drafts {
		if d == leader {
			leaderCtx = contexts[i]
		} else {
			followerCtx = contexts[i]
		}
	}
	follower := testutil.Without(drafts, leader)[0]

	t.Run("leader flushes and records", func(t *testing.T) {
		require.NoError(t, leader.Update(t.Context(), map[string]any{"total": 10}))

		require.False(t, leaderCtx.Lifecycle.Trigger(), "a successful flush leaves nothing unsaved")
		require.False(t, leader.IsDirty())

		_, err := cluster.DraftKV.Get(t.Context(), "est-1")
		require.NoError(t, err)

		recs, err := leaderCtx.Emergency.ReadAll(t.Context())
		require.NoError(t, err)
		require.Len(t, recs, 1)
		require.Equal(t, "est-1", recs[0].ResourceID)
		require.Equal(t, map[string]any{"total": 10.0}, recs[0].Data.Fields)
	})

	t.Run("follower records and asks to confirm", func(t *testing.T) {
		require.NoError(t, follower.Update(t.Context(), map[string]any{"notes": "draft"}))

		require.True(t, followerCtx.Lifecycle.Trigger())

		recs, err := followerCtx.Emergency.ReadAll(t.Context())
		require.NoError(t, err)
		require.Len(t, recs, 1)
		require.Equal(t, "draft", recs[0].Data.Fields["notes"])
	})

	t.Run("clean context records nothing", func(t *testing.T) {
		require.False(t, leaderCtx.Lifecycle.Trigger())

		recs, err := leaderCtx.Emergency.ReadAll(t.Context())
		require.NoError(t, err)
		require.Len(t, recs, 1)
	})
}
