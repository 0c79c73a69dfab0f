package emergency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync/types"
)

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func record(t *testing.T, resourceID string, offset time.Duration, margin int) types.EmergencyRecord {
	t.Helper()

	data, err := types.EstimateData{ID: resourceID}.Merge(map[string]any{"profitMargin": margin})
	require.NoError(t, err)

	return types.EmergencyRecord{
		Type:       types.EmergencyRecordType,
		ResourceID: resourceID,
		Data:       data,
		Timestamp:  base.Add(offset),
	}
}

func logs(t *testing.T) map[string]types.EmergencyLog {
	t.Helper()

	b, err := OpenBadger("", WithInMemory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	disk, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = disk.Close() })

	return map[string]types.EmergencyLog{
		"memory":          NewMemory(),
		"badger_inmemory": b,
		"badger_disk":     disk,
	}
}

func TestEmergencyLog(t *testing.T) {
	for name, log := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			recs, err := log.ReadAll(ctx)
			require.NoError(t, err)
			require.Empty(t, recs)

			require.NoError(t, log.Append(ctx, record(t, "est_1", 0, 30)))
			require.NoError(t, log.Append(ctx, record(t, "est", time.Second, 10)))
			require.NoError(t, log.Append(ctx, record(t, "est_1", 2*time.Second, 35)))

			recs, err = log.ReadAll(ctx)
			require.NoError(t, err)
			require.Len(t, recs, 3)
			for _, r := range recs {
				require.Equal(t, types.EmergencyRecordType, r.Type)
			}
			require.Equal(t, "est", recs[0].ResourceID)
			require.InDelta(t, 30.0, recs[1].Data.Fields["profitMargin"], 0)
			require.InDelta(t, 35.0, recs[2].Data.Fields["profitMargin"], 0)

			// "est" must not clear "est_1" records.
			require.NoError(t, log.Clear(ctx, "est"))
			recs, err = log.ReadAll(ctx)
			require.NoError(t, err)
			require.Len(t, recs, 2)

			require.NoError(t, log.Clear(ctx, ""))
			recs, err = log.ReadAll(ctx)
			require.NoError(t, err)
			require.Empty(t, recs)
		})
	}
}

func TestEmergencyLog_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, log := range logs(t) {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, log.Append(ctx, record(t, "est-1", 0, 1)), context.Canceled)
		})
	}
}

func TestEmergencyLog_SameMillisecond(t *testing.T) {
	for name, log := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			for margin := range 3 {
				require.NoError(t, log.Append(ctx, record(t, "est-1", 0, margin)))
			}

			recs, err := log.ReadAll(ctx)
			require.NoError(t, err)
			require.Len(t, recs, 3)

			margins := make([]float64, 0, len(recs))
			for _, r := range recs {
				require.Equal(t, types.EmergencyKey("est-1", base), r.Key())
				margins = append(margins, r.Data.Fields["profitMargin"].(float64))
			}
			require.ElementsMatch(t, []float64{0, 1, 2}, margins)

			require.NoError(t, log.Clear(ctx, "est-1"))
			recs, err = log.ReadAll(ctx)
			require.NoError(t, err)
			require.Empty(t, recs)
		})
	}
}

func TestBadger_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()

	b, err := OpenBadger(dir)
	require.NoError(t, err)
	require.NoError(t, b.Append(ctx, record(t, "est-1", 0, 42)))
	require.NoError(t, b.Close())

	b, err = OpenBadger(dir)
	require.NoError(t, err)
	defer b.Close()

	recs, err := b.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "est-1", recs[0].ResourceID)
	require.Equal(t, types.EmergencyKey("est-1", base), recs[0].Key())
}
