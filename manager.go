package draftsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/draftsync/emergency"
	"github.com/arloliu/draftsync/internal/autosave"
	"github.com/arloliu/draftsync/internal/clock"
	"github.com/arloliu/draftsync/internal/election"
	"github.com/arloliu/draftsync/internal/logging"
	"github.com/arloliu/draftsync/internal/metrics"
)

// Manager is one execution context: a process, or one instance inside a process,
// that edits drafts alongside other contexts sharing the same coordination store.
//
// For every opened resource the Manager runs a leader election among the contexts
// and an auto-save coordinator. Only the elected context writes the draft to the
// storage adapter; the others keep editing locally and take over when the leader
// goes away.
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//
// Lifecycle:
//   - Create with NewManager()
//   - Open() a Draft per resource
//   - Call Stop() to flush, release leadership and stop every draft
type Manager struct {
	cfg     Config
	kv      SharedKV
	bus     ChangeBus
	adapter StorageAdapter

	contextID    string
	logger       Logger
	metrics      MetricsCollector
	hooks        *Hooks
	clock        Clock
	emergencyLog EmergencyLog
	validator    Validator

	drafts     *xsync.Map[string, *Draft]
	unregister func()

	mu      sync.Mutex
	stopped bool
}

// NewManager creates a Manager.
//
// kv and bus are the shared coordination store and its change notifications;
// sharedkv.NATS and sharedkv.Memory implement both. adapter persists drafts.
// When cfg.Disabled is set the ports may be nil and nothing is ever started.
//
// Example:
//
//	cfg := draftsync.DefaultConfig()
//	store := sharedkv.NewNATS(coordinationBucket)
//	mgr, err := draftsync.NewManager(&cfg, store, store, natskv.New(draftBucket),
//	    draftsync.WithLifecycle(lifecycle.NewOS(nil)))
func NewManager(cfg *Config, kv SharedKV, bus ChangeBus, adapter StorageAdapter, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if !cfg.Disabled {
		if kv == nil {
			return nil, ErrSharedKVRequired
		}
		if bus == nil {
			return nil, ErrChangeBusRequired
		}
		if adapter == nil {
			return nil, ErrStorageAdapterRequired
		}
	}

	c := *cfg
	SetDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	options := &managerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	m := &Manager{
		cfg:          c,
		kv:           kv,
		bus:          bus,
		adapter:      adapter,
		contextID:    options.contextID,
		logger:       options.logger,
		metrics:      options.metrics,
		hooks:        options.hooks,
		clock:        options.clock,
		emergencyLog: options.emergencyLog,
		validator:    options.validator,
		drafts:       xsync.NewMap[string, *Draft](),
	}

	// Provide safe defaults for optional dependencies to avoid nil checks everywhere
	if m.contextID == "" {
		m.contextID = uuid.NewString()
	}
	if m.logger == nil {
		m.logger = logging.NewNop()
	}
	if m.metrics == nil {
		m.metrics = metrics.NewNop()
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.emergencyLog == nil {
		m.emergencyLog = emergency.NewMemory()
	}

	m.cfg.ValidateWithWarnings(m.logger)

	if options.lifecycle != nil && !c.Disabled {
		m.unregister = options.lifecycle.OnBeforeUnload(m.BeforeUnload)
	}

	return m, nil
}

// ContextID returns this context's identity in leader records.
func (m *Manager) ContextID() string {
	return m.contextID
}

// Config returns the effective configuration, defaults applied.
func (m *Manager) Config() Config {
	return m.cfg
}

// Open returns the Draft for resourceID, starting its election and auto-save on
// first use. Opening an already open resource returns the same Draft.
//
// The claim is written before Open returns but only confirmed after the claim jitter,
// so IsLeader may still report false right after Open. Use SubscribeLeadership or
// LeaderStatus to follow the outcome.
//
// A draft of the same resource that is still closing is waited for first, so that
// two electors of one context never compete for the same record.
func (m *Manager) Open(ctx context.Context, resourceID string) (*Draft, error) {
	if resourceID == "" {
		return nil, ErrEmptyResourceID
	}

	for {
		d, closing, err := m.open(ctx, resourceID)
		if closing == nil {
			return d, err
		}

		select {
		case <-closing:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// open returns the registered draft or starts a new one. When the registered draft
// is closing it returns its closed channel instead.
func (m *Manager) open(ctx context.Context, resourceID string) (*Draft, <-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, nil, ErrStopped
	}
	if d, ok := m.drafts.Load(resourceID); ok {
		if d.closing.Load() {
			return nil, d.closed, nil
		}

		return d, nil, nil
	}

	d := &Draft{m: m, resourceID: resourceID, closed: make(chan struct{})}
	if m.cfg.Disabled {
		m.logger.Debug("draftsync disabled, opening inert draft", "resource", resourceID)
		m.drafts.Store(resourceID, d)

		return d, nil, nil
	}

	elector, err := election.NewElector(m.electionConfig(resourceID))
	if err != nil {
		return nil, nil, err
	}

	co, err := autosave.New(m.autosaveConfig(resourceID, elector))
	if err != nil {
		return nil, nil, err
	}

	if err := elector.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start election for %q: %w", resourceID, err)
	}
	if err := co.Start(ctx); err != nil {
		_ = elector.Stop()
		return nil, nil, fmt.Errorf("failed to start auto-save for %q: %w", resourceID, err)
	}

	d.elector = elector
	d.co = co
	m.drafts.Store(resourceID, d)

	m.logger.Info("draft opened",
		"resource", resourceID, "context", m.contextID, "leader", elector.IsLeader())

	return d, nil, nil
}

// Draft returns the open Draft for resourceID. A draft that is closing is not returned.
func (m *Manager) Draft(resourceID string) (*Draft, bool) {
	d, ok := m.drafts.Load(resourceID)
	if !ok || d.closing.Load() {
		return nil, false
	}

	return d, true
}

// Drafts returns the open resource IDs, sorted. Closing drafts are left out.
func (m *Manager) Drafts() []string {
	ids := make([]string, 0, m.drafts.Size())
	m.drafts.Range(func(id string, d *Draft) bool {
		if d.closing.Load() {
			return true
		}
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)

	return ids
}

// SetOnline forwards the connectivity signal to every open draft.
func (m *Manager) SetOnline(ctx context.Context, online bool) error {
	var errs []error
	m.drafts.Range(func(_ string, d *Draft) bool {
		if err := d.setOnline(ctx, online); err != nil {
			errs = append(errs, err)
		}

		return true
	})

	return errors.Join(errs...)
}

// BeforeUnload runs the unload handler of every open draft and reports whether any
// of them still holds unsaved edits. It is registered on the LifecycleSignal given
// with WithLifecycle, and may be called directly by hosts with their own shutdown path.
func (m *Manager) BeforeUnload() bool {
	confirm := false
	m.drafts.Range(func(_ string, d *Draft) bool {
		if d.beforeUnload() {
			confirm = true
		}

		return true
	})

	return confirm
}

// EmergencyRecords returns every record in the emergency log.
func (m *Manager) EmergencyRecords(ctx context.Context) ([]EmergencyRecord, error) {
	return m.emergencyLog.ReadAll(ctx)
}

// ClearEmergencyRecords removes the records of resourceID, or all records when
// resourceID is empty.
func (m *Manager) ClearEmergencyRecords(ctx context.Context, resourceID string) error {
	return m.emergencyLog.Clear(ctx, resourceID)
}

// Stop closes every open draft: in-flight saves finish (bounded by ShutdownTimeout),
// leadership is released and the lifecycle handler is unregistered. Stop is idempotent.
//
// Pending debounced edits are not flushed; call BeforeUnload or Draft.Flush first to
// persist them.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.mu.Unlock()

	if m.unregister != nil {
		m.unregister()
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	m.drafts.Range(func(_ string, d *Draft) bool {
		wg.Go(func() {
			if err := d.Close(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})

		return true
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.logger.Info("manager stopped", "context", m.contextID)

	return errors.Join(errs...)
}

func (m *Manager) electionConfig(resourceID string) *election.Config {
	e := m.cfg.Election
	cfg := &election.Config{
		KV:                m.kv,
		Bus:               m.bus,
		ResourceID:        resourceID,
		ContextID:         m.contextID,
		Key:               e.KeyPrefix + "." + resourceID,
		LeaseTimeout:      e.LeaseTimeout,
		HeartbeatInterval: e.HeartbeatInterval,
		SweepInterval:     e.SweepInterval,
		ClaimJitter:       e.ClaimJitter,
		MaxClaimAttempts:  e.MaxClaimAttempts,
		OperationTimeout:  m.cfg.OperationTimeout,
		Clock:             m.clock,
		Logger:            m.logger,
		Metrics:           m.metrics,
		Hooks:             m.hooks,
	}
	if e.DisableClaimJitter {
		cfg.Jitter = election.NoJitter
	}

	return cfg
}

func (m *Manager) autosaveConfig(resourceID string, leader autosave.LeaderSource) *autosave.Config {
	a := m.cfg.AutoSave

	return &autosave.Config{
		Adapter:               m.adapter,
		Leader:                leader,
		ResourceID:            resourceID,
		DebounceQuiet:         a.DebounceQuiet,
		DebounceMaxWait:       a.DebounceMaxWait,
		RetryDelay:            a.RetryDelay,
		SavedDisplay:          a.SavedDisplay,
		EmergencyFlushTimeout: a.EmergencyFlushTimeout,
		OperationTimeout:      m.cfg.OperationTimeout,
		ShutdownTimeout:       m.cfg.ShutdownTimeout,
		Clock:                 m.clock,
		Logger:                m.logger,
		Metrics:               m.metrics,
		Hooks:                 m.hooks,
		EmergencyLog:          m.emergencyLog,
		Validator:             m.validator,
	}
}
