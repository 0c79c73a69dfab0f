package commands

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync"
	"github.com/arloliu/draftsync/emergency"
	draftsynctest "github.com/arloliu/draftsync/testing"
	"github.com/arloliu/draftsync/types"
)

func TestRunDraft(t *testing.T) {
	ns, nc := draftsynctest.StartEmbeddedNATS(t)

	cfg := Config{
		NATS:      NATSConfig{URL: ns.ClientURL(), Name: "draftctl-test"},
		Storage:   StorageConfig{Backend: backendNATS},
		Emergency: EmergencyConfig{Path: t.TempDir()},
		Log:       LogConfig{Level: "error"},
		Draftsync: draftsync.TestConfig(),
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	stdin := strings.NewReader(`{"rooms": 3}` + "\n" + "not json\n")
	done := make(chan error, 1)
	go func() {
		done <- runDraft(ctx, cfg, runOpts{
			resource:  "est-1",
			contextID: "ctx-cli",
			sets:      []string{"title=Kitchen", "total=120"},
			stdin:     true,
		}, stdin)
	}()

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	var saved types.EstimateData
	require.Eventually(t, func() bool {
		kv, err := js.KeyValue(t.Context(), cfg.Draftsync.KVBuckets.DraftBucket)
		if err != nil {
			return false
		}
		entry, err := kv.Get(t.Context(), "est-1")
		if err != nil {
			return false
		}
		if err := json.Unmarshal(entry.Value(), &saved); err != nil {
			return false
		}

		return len(saved.Fields) == 3
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, map[string]any{"title": "Kitchen", "total": 120.0, "rooms": 3.0}, saved.Fields)

	coordination, err := js.KeyValue(t.Context(), cfg.Draftsync.KVBuckets.CoordinationBucket)
	require.NoError(t, err)
	entry, err := coordination.Get(t.Context(), "leader.est-1")
	require.NoError(t, err)
	require.Contains(t, string(entry.Value()), `"contextId":"ctx-cli"`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runDraft did not return after cancellation")
	}

	// A clean shutdown leaves nothing behind in the emergency log.
	log, err := emergency.OpenBadger(cfg.Emergency.Path)
	require.NoError(t, err)
	defer log.Close()
	recs, err := log.ReadAll(t.Context())
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestRunCommand_RequiresResource(t *testing.T) {
	isolateHome(t)

	_, err := execute(t, "run")
	require.ErrorContains(t, err, "--resource")
}
