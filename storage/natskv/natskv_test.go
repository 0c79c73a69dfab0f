package natskv

import (
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync/internal/kvutil"
	draftsynctest "github.com/arloliu/draftsync/testing"
	"github.com/arloliu/draftsync/types"
)

func newAdapter(t *testing.T) (*Adapter, jetstream.KeyValue) {
	t.Helper()

	_, nc := draftsynctest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	kv, err := kvutil.EnsureBucket(t.Context(), js, kvutil.DraftBucket("drafts-test"), 1)
	require.NoError(t, err)

	return New(kv, WithLogger(draftsynctest.NewTestLogger(t))), kv
}

func draft(t *testing.T, margin int) types.EstimateData {
	t.Helper()

	d, err := types.EstimateData{ID: "est-1"}.Merge(map[string]any{"profitMargin": margin})
	require.NoError(t, err)

	return d
}

func TestAdapter_SaveLoad(t *testing.T) {
	a, _ := newAdapter(t)
	ctx := t.Context()

	got, err := a.Load(ctx, "est-1")
	require.NoError(t, err)
	require.Nil(t, got)

	v1, err := a.Save(ctx, "est-1", draft(t, 10), 0)
	require.NoError(t, err)
	require.Positive(t, v1)

	v2, err := a.Save(ctx, "est-1", draft(t, 30), v1)
	require.NoError(t, err)
	require.Greater(t, v2, v1)

	got, err = a.Load(ctx, "est-1")
	require.NoError(t, err)
	require.Equal(t, v2, got.Version)
	require.InDelta(t, 30.0, got.Fields["profitMargin"], 0)
}

func TestAdapter_Conflict(t *testing.T) {
	t.Run("stale base version", func(t *testing.T) {
		a, _ := newAdapter(t)
		ctx := t.Context()

		v1, err := a.Save(ctx, "est-1", draft(t, 10), 0)
		require.NoError(t, err)
		v2, err := a.Save(ctx, "est-1", draft(t, 20), v1)
		require.NoError(t, err)

		_, err = a.Save(ctx, "est-1", draft(t, 99), v1)
		require.ErrorIs(t, err, types.ErrVersionConflict)

		var se *types.StorageError
		require.ErrorAs(t, err, &se)
		require.Equal(t, types.CodeConflict, se.Code)
		require.False(t, se.Retryable)
		require.Equal(t, v1, se.Conflict.LocalVersion)
		require.Equal(t, v2, se.Conflict.RemoteVersion)
		require.NotNil(t, se.Conflict.Remote)
		require.InDelta(t, 20.0, se.Conflict.Remote.Fields["profitMargin"], 0)
	})

	t.Run("create over existing draft", func(t *testing.T) {
		a, _ := newAdapter(t)
		ctx := t.Context()

		_, err := a.Save(ctx, "est-1", draft(t, 10), 0)
		require.NoError(t, err)

		_, err = a.Save(ctx, "est-1", draft(t, 11), 0)
		require.ErrorIs(t, err, types.ErrVersionConflict)
	})

	t.Run("draft deleted behind our back", func(t *testing.T) {
		a, kv := newAdapter(t)
		ctx := t.Context()

		v1, err := a.Save(ctx, "est-1", draft(t, 10), 0)
		require.NoError(t, err)
		require.NoError(t, kv.Delete(ctx, "est-1"))

		_, err = a.Save(ctx, "est-1", draft(t, 12), v1)
		var se *types.StorageError
		require.ErrorAs(t, err, &se)
		require.Nil(t, se.Conflict.Remote)

		got, err := a.Load(ctx, "est-1")
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestAdapter_ConnectivityIsRetryable(t *testing.T) {
	_, nc := draftsynctest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)
	kv, err := kvutil.EnsureBucket(t.Context(), js, kvutil.DraftBucket("drafts-test"), 1)
	require.NoError(t, err)
	a := New(kv)

	nc.Close()

	_, err = a.Save(t.Context(), "est-1", draft(t, 10), 0)
	require.Error(t, err)
	require.True(t, types.IsRetryable(err))
}
