package autosave

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/draftsync/internal/clock"
	"github.com/arloliu/draftsync/internal/logging"
	"github.com/arloliu/draftsync/internal/metrics"
	"github.com/arloliu/draftsync/types"
)

// LeaderSource reports this context's leadership for the coordinator's resource.
//
// *election.Elector implements it.
type LeaderSource interface {
	IsLeader() bool
	Subscribe() (<-chan types.LeaderStatus, func())
}

// Config holds coordinator configuration.
//
// Required fields must be set before calling New. Optional fields are set to
// defaults if zero-valued.
type Config struct {
	// Required dependencies
	Adapter types.StorageAdapter
	Leader  LeaderSource

	// Required configuration
	ResourceID string

	// Optional configuration (with defaults)
	StorageKey            string        // Adapter key (default: ResourceID)
	DebounceQuiet         time.Duration // Quiet period before an automatic save (default: 10s)
	DebounceMaxWait       time.Duration // Upper bound from first change to save (default: 60s)
	RetryDelay            time.Duration // Delay of the single automatic retry (default: 5s)
	SavedDisplay          time.Duration // How long "saved" shows before "idle" (default: 2s)
	EmergencyFlushTimeout time.Duration // Flush budget of the unload handler (default: 1s)
	OperationTimeout      time.Duration // Timeout of each adapter call (default: 10s)
	ShutdownTimeout       time.Duration // How long Stop waits for an in-flight save (default: 10s)

	// Initial seeds the live draft. ID defaults to ResourceID.
	Initial types.EstimateData

	// Optional dependencies
	Clock        types.Clock
	Logger       types.Logger
	Metrics      types.MetricsCollector
	Hooks        *types.Hooks
	EmergencyLog types.EmergencyLog // nil disables emergency records
	Validator    types.Validator    // nil accepts every snapshot
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Adapter == nil {
		return errors.New("the Adapter is required")
	}
	if c.Leader == nil {
		return errors.New("the Leader is required")
	}
	if c.ResourceID == "" {
		return errors.New("the ResourceID is required")
	}
	if c.DebounceQuiet > c.DebounceMaxWait {
		return fmt.Errorf("DebounceQuiet (%v) must not exceed DebounceMaxWait (%v)", c.DebounceQuiet, c.DebounceMaxWait)
	}

	return nil
}

// SetDefaults applies default values for optional fields.
func (c *Config) SetDefaults() {
	if c.StorageKey == "" {
		c.StorageKey = c.ResourceID
	}
	if c.DebounceQuiet == 0 {
		c.DebounceQuiet = 10 * time.Second
	}
	if c.DebounceMaxWait == 0 {
		c.DebounceMaxWait = 60 * time.Second
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.SavedDisplay == 0 {
		c.SavedDisplay = 2 * time.Second
	}
	if c.EmergencyFlushTimeout == 0 {
		c.EmergencyFlushTimeout = time.Second
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.Initial.ID == "" {
		c.Initial.ID = c.ResourceID
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNop()
	}
}
