package draftsync

// Option configures a Manager with optional dependencies.
type Option func(*managerOptions)

// managerOptions holds optional Manager configuration.
type managerOptions struct {
	logger       Logger
	metrics      MetricsCollector
	hooks        *Hooks
	clock        Clock
	lifecycle    LifecycleSignal
	emergencyLog EmergencyLog
	validator    Validator
	contextID    string
}

// WithLogger sets a logger.
//
// Example:
//
//	logger := myStructuredLogger // any Debug/Info/Warn/Error/Fatal(msg, kv...) logger
//	mgr, _ := draftsync.NewManager(&cfg, kv, bus, adapter, draftsync.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Example:
//
//	collector := myPrometheusCollector
//	mgr, _ := draftsync.NewManager(&cfg, kv, bus, adapter, draftsync.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *managerOptions) {
		o.metrics = metrics
	}
}

// WithHooks sets event hooks. Nil callbacks are ignored.
//
// Example:
//
//	hooks := &draftsync.Hooks{
//	    OnStatusChanged: func(ctx context.Context, resourceID string, s draftsync.AutoSaveStatus) error {
//	        return ui.ShowStatus(resourceID, s)
//	    },
//	}
//	mgr, _ := draftsync.NewManager(&cfg, kv, bus, adapter, draftsync.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *managerOptions) {
		o.hooks = hooks
	}
}

// WithClock replaces the real clock, typically with draftsynctest.FakeClock.
func WithClock(clock Clock) Option {
	return func(o *managerOptions) {
		o.clock = clock
	}
}

// WithLifecycle registers the Manager's unload handler on signal.
//
// On the signal every open draft flushes if it leads, and writes an emergency record
// if it is dirty.
func WithLifecycle(signal LifecycleSignal) Option {
	return func(o *managerOptions) {
		o.lifecycle = signal
	}
}

// WithEmergencyLog sets where emergency records are written. Without it they are
// kept in memory only.
func WithEmergencyLog(log EmergencyLog) Option {
	return func(o *managerOptions) {
		o.emergencyLog = log
	}
}

// WithValidator sets a check run on every snapshot before it is saved.
func WithValidator(validator Validator) Option {
	return func(o *managerOptions) {
		o.validator = validator
	}
}

// WithContextID sets this context's identity in leader records. Defaults to a random UUID.
func WithContextID(id string) Option {
	return func(o *managerOptions) {
		o.contextID = id
	}
}
