package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync"
	"github.com/arloliu/draftsync/emergency"
	"github.com/arloliu/draftsync/internal/kvutil"
	"github.com/arloliu/draftsync/internal/logging"
	"github.com/arloliu/draftsync/lifecycle"
	"github.com/arloliu/draftsync/sharedkv"
	"github.com/arloliu/draftsync/storage/natskv"
	draftsynctest "github.com/arloliu/draftsync/testing"
)

// IntegrationTestConfig returns the library configuration used by integration tests.
func IntegrationTestConfig() draftsync.Config {
	cfg := draftsync.TestConfig()
	cfg.AutoSave.DebounceQuiet = 150 * time.Millisecond
	cfg.AutoSave.DebounceMaxWait = time.Second

	return cfg
}

// Cluster is a set of draftsync contexts sharing one NATS server.
type Cluster struct {
	t      *testing.T
	Server *server.Server
	NC     *nats.Conn
	Config draftsync.Config

	// DraftKV is the bucket persisted drafts are written to.
	DraftKV jetstream.KeyValue
	// CoordinationKV is the bucket holding leader records.
	CoordinationKV jetstream.KeyValue

	mu       sync.Mutex
	contexts []*Context
}

// Context is one draftsync context of a Cluster.
type Context struct {
	ID        string
	Manager   *draftsync.Manager
	Lifecycle *lifecycle.Manual
	Emergency *emergency.Memory

	nc *nats.Conn
}

// NewCluster starts an embedded NATS server and creates the draftsync buckets.
// Every context is stopped automatically via t.Cleanup.
func NewCluster(t *testing.T, cfg draftsync.Config) *Cluster {
	t.Helper()

	ns, nc := draftsynctest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	coordination, err := kvutil.EnsureBucket(t.Context(), js, kvutil.CoordinationBucket(cfg.KVBuckets.CoordinationBucket), 0)
	require.NoError(t, err)
	drafts, err := kvutil.EnsureBucket(t.Context(), js, kvutil.DraftBucket(cfg.KVBuckets.DraftBucket), 0)
	require.NoError(t, err)

	c := &Cluster{
		t:              t,
		Server:         ns,
		NC:             nc,
		Config:         cfg,
		DraftKV:        drafts,
		CoordinationKV: coordination,
	}
	t.Cleanup(c.StopAll)

	return c
}

// AddContext starts a new context with its own NATS connection.
func (c *Cluster) AddContext(id string, opts ...draftsync.Option) *Context {
	c.t.Helper()

	nc, err := nats.Connect(c.Server.ClientURL(), nats.Name(id))
	require.NoError(c.t, err)

	js, err := jetstream.New(nc)
	require.NoError(c.t, err)
	coordination, err := js.KeyValue(c.t.Context(), c.Config.KVBuckets.CoordinationBucket)
	require.NoError(c.t, err)
	drafts, err := js.KeyValue(c.t.Context(), c.Config.KVBuckets.DraftBucket)
	require.NoError(c.t, err)

	logger := logging.NewTest(c.t)
	store := sharedkv.NewNATS(coordination, sharedkv.WithNATSLogger(logger))
	signal := lifecycle.NewManual()
	log := emergency.NewMemory()

	cfg := c.Config
	opts = append([]draftsync.Option{
		draftsync.WithContextID(id),
		draftsync.WithLogger(logger),
		draftsync.WithLifecycle(signal),
		draftsync.WithEmergencyLog(log),
	}, opts...)

	mgr, err := draftsync.NewManager(&cfg, store, store, natskv.New(drafts, natskv.WithLogger(logger)), opts...)
	require.NoError(c.t, err)

	ctx := &Context{ID: id, Manager: mgr, Lifecycle: signal, Emergency: log, nc: nc}

	c.mu.Lock()
	c.contexts = append(c.contexts, ctx)
	c.mu.Unlock()

	return ctx
}

// AddContexts starts n contexts named ctx-0 .. ctx-(n-1).
func (c *Cluster) AddContexts(n int) []*Context {
	c.t.Helper()

	out := make([]*Context, n)
	for i := range out {
		out[i] = c.AddContext(fmt.Sprintf("ctx-%d", i))
	}

	return out
}

// OpenAll opens resourceID in every given context.
func (c *Cluster) OpenAll(ctx context.Context, resourceID string, contexts ...*Context) []*draftsync.Draft {
	c.t.Helper()

	drafts := make([]*draftsync.Draft, len(contexts))
	for i, cc := range contexts {
		d, err := cc.Manager.Open(ctx, resourceID)
		require.NoError(c.t, err, "context %s failed to open %s", cc.ID, resourceID)
		drafts[i] = d
	}

	return drafts
}

// StopAll stops every context that is still running.
func (c *Cluster) StopAll() {
	c.mu.Lock()
	contexts := c.contexts
	c.contexts = nil
	c.mu.Unlock()

	for _, cc := range contexts {
		cc.Stop()
	}
}

// Stop stops the context gracefully, releasing any leadership it holds.
func (cc *Context) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = cc.Manager.Stop(ctx)
	cc.nc.Close()
}

// Disconnect closes the context's NATS connection without stopping it, the way a
// crashed or partitioned process stops heartbeating without releasing.
func (cc *Context) Disconnect() {
	cc.nc.Close()
}
