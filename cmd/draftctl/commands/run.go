package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/arloliu/draftsync"
	"github.com/arloliu/draftsync/emergency"
	"github.com/arloliu/draftsync/internal/kvutil"
	"github.com/arloliu/draftsync/internal/metrics"
	"github.com/arloliu/draftsync/lifecycle"
	"github.com/arloliu/draftsync/sharedkv"
	"github.com/arloliu/draftsync/storage/memory"
	"github.com/arloliu/draftsync/storage/natskv"
	"github.com/arloliu/draftsync/storage/sqlite"
)

type runOpts struct {
	resource  string
	contextID string
	sets      []string
	stdin     bool
}

func newRunCmd() *cobra.Command {
	var opts runOpts

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join the election of a resource and auto-save its draft until signalled",
		Long: `run opens the draft of --resource and keeps it until SIGINT or SIGTERM.

Edits come from repeated --set key=value flags (value is parsed as JSON when
possible) and, with --stdin, from JSON objects read one per line. A value of
null deletes the field.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.resource == "" {
				return errors.New("--resource is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			return runDraft(cmd.Context(), cfg, opts, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVarP(&opts.resource, "resource", "r", "", "resource (estimate) ID")
	cmd.Flags().StringVar(&opts.contextID, "context-id", "", "context ID (random when empty)")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "field edit key=value, may be repeated")
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "read JSON patches from stdin, one per line")

	return cmd
}

func runDraft(ctx context.Context, cfg Config, opts runOpts, stdin io.Reader) error {
	logger := newLogger(cfg)

	patches, err := parseSets(opts.sets)
	if err != nil {
		return err
	}

	// The manager is created after the connection; connection callbacks may fire
	// before that and are ignored until then.
	var mgrRef atomic.Pointer[draftsync.Manager]
	setOnline := func(online bool) {
		if mgr := mgrRef.Load(); mgr != nil {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Draftsync.OperationTimeout)
			defer cancel()
			if err := mgr.SetOnline(sctx, online); err != nil {
				logger.Warn("failed to propagate connectivity", "online", online, "error", err)
			}
		}
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
			setOnline(false)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
			setOnline(true)
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS %s: %w", cfg.NATS.URL, err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	coordination, err := kvutil.EnsureBucket(ctx, js, kvutil.CoordinationBucket(cfg.Draftsync.KVBuckets.CoordinationBucket), 0)
	if err != nil {
		return err
	}
	store := sharedkv.NewNATS(coordination, sharedkv.WithNATSLogger(logger))

	adapter, closeAdapter, err := openStorage(ctx, cfg, js, logger)
	if err != nil {
		return err
	}
	defer closeAdapter()

	emergencyLog, closeLog, err := openEmergencyLog(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheus(reg, cfg.Metrics.Namespace)
	stopMetrics := serveMetrics(cfg.Metrics.Addr, reg, logger)
	defer stopMetrics()

	signal := lifecycle.NewOS(logger)

	mgrOpts := []draftsync.Option{
		draftsync.WithLogger(logger),
		draftsync.WithMetrics(collector),
		draftsync.WithLifecycle(signal),
		draftsync.WithEmergencyLog(emergencyLog),
		draftsync.WithHooks(&draftsync.Hooks{
			OnStatusChanged: func(_ context.Context, resourceID string, status draftsync.AutoSaveStatus) error {
				logger.Info("auto-save status", "resource", resourceID, "status", status.String())
				return nil
			},
		}),
	}
	if opts.contextID != "" {
		mgrOpts = append(mgrOpts, draftsync.WithContextID(opts.contextID))
	}

	mgr, err := draftsync.NewManager(&cfg.Draftsync, store, store, adapter, mgrOpts...)
	if err != nil {
		return err
	}
	mgrRef.Store(mgr)

	draft, err := mgr.Open(ctx, opts.resource)
	if err != nil {
		_ = mgr.Stop(context.Background())
		return err
	}
	logger.Info("draft opened", "resource", opts.resource, "context_id", mgr.ContextID())

	leadership, unsubscribe := draft.SubscribeLeadership()
	defer unsubscribe()
	go func() {
		for status := range leadership {
			logger.Info("leadership changed", "resource", opts.resource, "status", status.String())
		}
	}()

	for _, patch := range patches {
		if err := draft.Update(ctx, patch); err != nil {
			logger.Error("failed to apply edit", "error", err)
		}
	}

	if opts.stdin {
		go readPatches(ctx, stdin, draft, logger)
	}

	sig, unsaved, err := signal.Wait(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("signal wait ended", "error", err)
	}
	if unsaved {
		logger.Warn("exiting with unsaved edits; an emergency record was written",
			"resource", opts.resource, "emergency_path", cfg.Emergency.Path)
	}
	if sig != nil {
		logger.Info("shutting down", "signal", sig.String())
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Draftsync.ShutdownTimeout)
	defer cancel()

	return mgr.Stop(stopCtx)
}

// openStorage builds the adapter selected by cfg.Storage.Backend.
func openStorage(ctx context.Context, cfg Config, js jetstream.JetStream, log draftsync.Logger) (draftsync.StorageAdapter, func(), error) {
	switch cfg.Storage.Backend {
	case backendMemory:
		log.Warn("memory storage backend keeps drafts only for the lifetime of this process")
		return memory.New(memory.WithVersionCheck()), func() {}, nil
	case backendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		a, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}

		return a, func() { _ = a.Close() }, nil
	default:
		kv, err := kvutil.EnsureBucket(ctx, js, kvutil.DraftBucket(cfg.Draftsync.KVBuckets.DraftBucket), 0)
		if err != nil {
			return nil, nil, err
		}

		return natskv.New(kv, natskv.WithLogger(log)), func() {}, nil
	}
}

// openEmergencyLog opens the Badger log at cfg.Emergency.Path, or an in-memory log
// when the path is empty.
func openEmergencyLog(cfg Config, log draftsync.Logger) (draftsync.EmergencyLog, func(), error) {
	if cfg.Emergency.Path == "" {
		return emergency.NewMemory(), func() {}, nil
	}

	b, err := emergency.OpenBadger(cfg.Emergency.Path, emergency.WithBadgerLogger(log))
	if err != nil {
		return nil, nil, err
	}

	return b, func() {
		if err := b.Close(); err != nil {
			log.Warn("failed to close emergency log", "error", err)
		}
	}, nil
}

// serveMetrics exposes reg on addr/metrics. It returns a function stopping the server.
func serveMetrics(addr string, reg *prometheus.Registry, log draftsync.Logger) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// parseSets turns key=value flags into patches. Values that parse as JSON keep their
// JSON type, anything else is a string.
func parseSets(sets []string) ([]map[string]any, error) {
	patches := make([]map[string]any, 0, len(sets))
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", s)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		patches = append(patches, map[string]any{key: value})
	}

	return patches, nil
}

func readPatches(ctx context.Context, r io.Reader, draft *draftsync.Draft, log draftsync.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var patch map[string]any
		if err := json.Unmarshal([]byte(line), &patch); err != nil {
			log.Warn("ignoring invalid patch", "line", line, "error", err)
			continue
		}
		if err := draft.Update(ctx, patch); err != nil {
			log.Error("failed to apply edit", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("stdin closed", "error", err)
	}
}
