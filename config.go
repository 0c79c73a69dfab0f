package draftsync

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ElectionConfig controls the per-resource leader election.
type ElectionConfig struct {
	// KeyPrefix prefixes leader record keys: <KeyPrefix>.<resourceID>.
	//
	// Default: "leader"
	KeyPrefix string `yaml:"keyPrefix"`

	// LeaseTimeout is how old a leader's heartbeat may get before other contexts may
	// reclaim leadership. A record is stale strictly after LeaseTimeout.
	//
	// Default: 6 seconds
	LeaseTimeout time.Duration `yaml:"leaseTimeout"`

	// HeartbeatInterval is how often the leader refreshes its record.
	// Must be less than LeaseTimeout; recommended LeaseTimeout/3.
	//
	// Default: 2 seconds
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`

	// SweepInterval is how often followers look for a stale record.
	//
	// Default: 2 * HeartbeatInterval
	SweepInterval time.Duration `yaml:"sweepInterval"`

	// ClaimJitter bounds the random wait between writing a claim and re-reading it.
	//
	// Default: 200 milliseconds
	ClaimJitter time.Duration `yaml:"claimJitter"`

	// DisableClaimJitter confirms claims immediately, ignoring ClaimJitter. This widens
	// the window in which two racing contexts both believe they lead; it is meant for
	// deterministic tests.
	DisableClaimJitter bool `yaml:"disableClaimJitter"`

	// MaxClaimAttempts bounds consecutive contested claims before giving up until the
	// next sweep.
	//
	// Default: 3
	MaxClaimAttempts int `yaml:"maxClaimAttempts"`
}

// AutoSaveConfig controls when drafts are persisted.
type AutoSaveConfig struct {
	// DebounceQuiet is the quiet period after the last edit before a save.
	//
	// Default: 10 seconds
	DebounceQuiet time.Duration `yaml:"debounceQuiet"`

	// DebounceMaxWait bounds the time from the first edit of a burst to its save, so
	// continuous editing still persists.
	//
	// Default: 60 seconds
	DebounceMaxWait time.Duration `yaml:"debounceMaxWait"`

	// RetryDelay is the delay of the single automatic retry after a retryable failure.
	//
	// Default: 5 seconds
	RetryDelay time.Duration `yaml:"retryDelay"`

	// SavedDisplay is how long the status stays "saved" before returning to "idle".
	//
	// Default: 2 seconds
	SavedDisplay time.Duration `yaml:"savedDisplay"`

	// EmergencyFlushTimeout bounds the flush attempted by the unload handler.
	//
	// Default: 1 second
	EmergencyFlushTimeout time.Duration `yaml:"emergencyFlushTimeout"`
}

// KVBucketConfig names the NATS JetStream KV buckets used by the CLI and helpers.
type KVBucketConfig struct {
	// CoordinationBucket holds leader records.
	CoordinationBucket string `yaml:"coordinationBucket"`

	// DraftBucket holds persisted drafts when the NATS storage backend is selected.
	DraftBucket string `yaml:"draftBucket"`
}

// Config is the configuration for the Manager.
//
// All duration fields accept standard Go duration strings like "500ms", "10s", "1m".
type Config struct {
	// Disabled turns the whole subsystem into a no-op: no election, no timers, no
	// saves. IsLeader reports false and Status reports idle.
	Disabled bool `yaml:"disabled"`

	// Election controls leader election.
	Election ElectionConfig `yaml:"election"`

	// AutoSave controls the save schedule.
	AutoSave AutoSaveConfig `yaml:"autoSave"`

	// OperationTimeout is the timeout of each coordination store and storage call.
	//
	// Default: 10 seconds
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// ShutdownTimeout bounds how long closing a draft waits for an in-flight save.
	//
	// Default: 10 seconds
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// KVBuckets names the NATS KV buckets.
	KVBuckets KVBucketConfig `yaml:"kvBuckets"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		Election: ElectionConfig{
			KeyPrefix:         "leader",
			LeaseTimeout:      6 * time.Second,
			HeartbeatInterval: 2 * time.Second,
			SweepInterval:     4 * time.Second,
			ClaimJitter:       200 * time.Millisecond,
			MaxClaimAttempts:  3,
		},
		AutoSave: AutoSaveConfig{
			DebounceQuiet:         10 * time.Second,
			DebounceMaxWait:       60 * time.Second,
			RetryDelay:            5 * time.Second,
			SavedDisplay:          2 * time.Second,
			EmergencyFlushTimeout: time.Second,
		},
		OperationTimeout: 10 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		KVBuckets: KVBucketConfig{
			CoordinationBucket: "draftsync-coordination",
			DraftBucket:        "draftsync-drafts",
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// SweepInterval defaults to twice the (possibly custom) HeartbeatInterval.
// ClaimJitter defaults to 200ms; use DisableClaimJitter to turn the wait off.
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Election.KeyPrefix == "" {
		cfg.Election.KeyPrefix = defaults.Election.KeyPrefix
	}
	if cfg.Election.LeaseTimeout == 0 {
		cfg.Election.LeaseTimeout = defaults.Election.LeaseTimeout
	}
	if cfg.Election.HeartbeatInterval == 0 {
		cfg.Election.HeartbeatInterval = defaults.Election.HeartbeatInterval
	}
	if cfg.Election.SweepInterval == 0 {
		cfg.Election.SweepInterval = 2 * cfg.Election.HeartbeatInterval
	}
	if cfg.Election.ClaimJitter == 0 {
		cfg.Election.ClaimJitter = defaults.Election.ClaimJitter
	}
	if cfg.Election.MaxClaimAttempts == 0 {
		cfg.Election.MaxClaimAttempts = defaults.Election.MaxClaimAttempts
	}
	if cfg.AutoSave.DebounceQuiet == 0 {
		cfg.AutoSave.DebounceQuiet = defaults.AutoSave.DebounceQuiet
	}
	if cfg.AutoSave.DebounceMaxWait == 0 {
		cfg.AutoSave.DebounceMaxWait = defaults.AutoSave.DebounceMaxWait
	}
	if cfg.AutoSave.RetryDelay == 0 {
		cfg.AutoSave.RetryDelay = defaults.AutoSave.RetryDelay
	}
	if cfg.AutoSave.SavedDisplay == 0 {
		cfg.AutoSave.SavedDisplay = defaults.AutoSave.SavedDisplay
	}
	if cfg.AutoSave.EmergencyFlushTimeout == 0 {
		cfg.AutoSave.EmergencyFlushTimeout = defaults.AutoSave.EmergencyFlushTimeout
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.KVBuckets.CoordinationBucket == "" {
		cfg.KVBuckets.CoordinationBucket = defaults.KVBuckets.CoordinationBucket
	}
	if cfg.KVBuckets.DraftBucket == "" {
		cfg.KVBuckets.DraftBucket = defaults.KVBuckets.DraftBucket
	}
}

// Validate checks configuration constraints and returns an error for invalid values.
//
// Hard Validation Rules:
//   - HeartbeatInterval > 0 and HeartbeatInterval < LeaseTimeout
//   - SweepInterval > 0
//   - 0 <= ClaimJitter < LeaseTimeout
//   - MaxClaimAttempts >= 1
//   - 0 < DebounceQuiet <= DebounceMaxWait
//   - RetryDelay > 0
func (cfg *Config) Validate() error {
	e := cfg.Election
	if e.HeartbeatInterval <= 0 {
		return fmt.Errorf("HeartbeatInterval must be > 0, got %v", e.HeartbeatInterval)
	}
	if e.HeartbeatInterval >= e.LeaseTimeout {
		return fmt.Errorf(
			"HeartbeatInterval (%v) must be < LeaseTimeout (%v) so a live leader never looks stale",
			e.HeartbeatInterval, e.LeaseTimeout,
		)
	}
	if e.SweepInterval <= 0 {
		return fmt.Errorf("SweepInterval must be > 0, got %v", e.SweepInterval)
	}
	if e.ClaimJitter < 0 || e.ClaimJitter >= e.LeaseTimeout {
		return fmt.Errorf("ClaimJitter (%v) must be in [0, LeaseTimeout (%v))", e.ClaimJitter, e.LeaseTimeout)
	}
	if e.MaxClaimAttempts < 1 {
		return fmt.Errorf("MaxClaimAttempts must be >= 1, got %d", e.MaxClaimAttempts)
	}

	a := cfg.AutoSave
	if a.DebounceQuiet <= 0 {
		return fmt.Errorf("DebounceQuiet must be > 0, got %v", a.DebounceQuiet)
	}
	if a.DebounceQuiet > a.DebounceMaxWait {
		return fmt.Errorf("DebounceQuiet (%v) must not exceed DebounceMaxWait (%v)", a.DebounceQuiet, a.DebounceMaxWait)
	}
	if a.RetryDelay <= 0 {
		return fmt.Errorf("RetryDelay must be > 0, got %v", a.RetryDelay)
	}

	return nil
}

// ValidateWithWarnings logs warnings for valid but non-recommended values.
//
// This is called after Validate() in NewManager() to provide operator guidance.
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	e := cfg.Election
	if 3*e.HeartbeatInterval > e.LeaseTimeout {
		logger.Warn(
			"HeartbeatInterval leaves less than two missed beats before the lease expires",
			"heartbeatInterval", e.HeartbeatInterval,
			"leaseTimeout", e.LeaseTimeout,
			"recommended", e.LeaseTimeout/3,
		)
	}

	if e.DisableClaimJitter {
		logger.Warn("claim jitter is disabled, concurrent claims are more likely to yield two leaders")
	}

	if cfg.AutoSave.EmergencyFlushTimeout > cfg.OperationTimeout {
		logger.Warn(
			"EmergencyFlushTimeout exceeds OperationTimeout",
			"emergencyFlushTimeout", cfg.AutoSave.EmergencyFlushTimeout,
			"operationTimeout", cfg.OperationTimeout,
		)
	}
}

// TestConfig returns a configuration with fast timings for tests.
//
// Example:
//
//	cfg := draftsync.TestConfig()
//	mgr, err := draftsync.NewManager(&cfg, kv, bus, adapter)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.Election.LeaseTimeout = 1500 * time.Millisecond
	cfg.Election.HeartbeatInterval = 300 * time.Millisecond
	cfg.Election.SweepInterval = 600 * time.Millisecond
	cfg.Election.ClaimJitter = 20 * time.Millisecond
	cfg.AutoSave.DebounceQuiet = 100 * time.Millisecond
	cfg.AutoSave.DebounceMaxWait = 500 * time.Millisecond
	cfg.AutoSave.RetryDelay = 100 * time.Millisecond
	cfg.AutoSave.SavedDisplay = 100 * time.Millisecond
	cfg.AutoSave.EmergencyFlushTimeout = 500 * time.Millisecond
	cfg.OperationTimeout = 2 * time.Second
	cfg.ShutdownTimeout = 2 * time.Second

	return cfg
}

// LoadConfig loads configuration from a YAML file, applies defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	SetDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &cfg, nil
}
