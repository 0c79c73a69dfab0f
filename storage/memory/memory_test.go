package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync/types"
)

func TestStore(t *testing.T) {
	t.Run("save and load", func(t *testing.T) {
		ctx := t.Context()
		s := New()

		got, err := s.Load(ctx, "est-1")
		require.NoError(t, err)
		require.Nil(t, got)

		data, err := types.EstimateData{ID: "est-1"}.Merge(map[string]any{"profitMargin": 30})
		require.NoError(t, err)

		v, err := s.Save(ctx, "est-1", data, 0)
		require.NoError(t, err)
		require.Equal(t, int64(1), v)

		got, err = s.Load(ctx, "est-1")
		require.NoError(t, err)
		require.Equal(t, int64(1), got.Version)
		require.InDelta(t, 30.0, got.Fields["profitMargin"], 0)
		require.Equal(t, 1, s.Saves())
		require.Equal(t, 2, s.Loads())
	})

	t.Run("injected failures", func(t *testing.T) {
		ctx := t.Context()
		s := New()
		s.FailNext(1, true)

		_, err := s.Save(ctx, "k", types.EstimateData{}, 0)
		var se *types.StorageError
		require.ErrorAs(t, err, &se)
		require.True(t, se.Retryable)
		require.Equal(t, types.CodeUnavailable, se.Code)

		_, err = s.Save(ctx, "k", types.EstimateData{}, 0)
		require.NoError(t, err)

		s.FailNextLoads(1)
		_, err = s.Load(ctx, "k")
		require.Error(t, err)
	})

	t.Run("version check reports conflict", func(t *testing.T) {
		ctx := t.Context()
		s := New(WithVersionCheck())
		s.Seed("k", types.EstimateData{ID: "k", Version: 4})

		_, err := s.Save(ctx, "k", types.EstimateData{ID: "k"}, 2)
		var se *types.StorageError
		require.ErrorAs(t, err, &se)
		require.Equal(t, types.CodeConflict, se.Code)
		require.Equal(t, int64(4), se.Conflict.RemoteVersion)
		require.Equal(t, int64(2), se.Conflict.LocalVersion)
		require.NotNil(t, se.Conflict.Remote)

		v, err := s.Save(ctx, "k", types.EstimateData{ID: "k"}, 4)
		require.NoError(t, err)
		require.Equal(t, int64(5), v)
	})

	t.Run("hold blocks saves until released", func(t *testing.T) {
		s := New()
		release := s.Hold()

		done := make(chan error, 1)
		go func() {
			_, err := s.Save(context.Background(), "k", types.EstimateData{}, 0)
			done <- err
		}()

		require.Never(t, func() bool { return len(done) > 0 }, 30*time.Millisecond, 5*time.Millisecond)
		release()
		release()
		require.NoError(t, <-done)
	})

	t.Run("latency honors context", func(t *testing.T) {
		s := New(WithLatency(time.Hour))
		ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
		defer cancel()

		_, err := s.Save(ctx, "k", types.EstimateData{}, 0)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
