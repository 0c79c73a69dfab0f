package election

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/arloliu/draftsync/internal/clock"
	"github.com/arloliu/draftsync/internal/hooks"
	"github.com/arloliu/draftsync/internal/logging"
	"github.com/arloliu/draftsync/internal/metrics"
	"github.com/arloliu/draftsync/types"
)

// Config holds elector configuration.
//
// Required fields must be set before calling NewElector. Optional fields are set
// to defaults if zero-valued.
type Config struct {
	// Required dependencies
	KV  types.SharedKV
	Bus types.ChangeBus

	// Required configuration
	ResourceID string // Resource the election is for
	ContextID  string // Identity written into the leader record
	Key        string // SharedKV key of the leader record

	// Optional configuration (with defaults)
	LeaseTimeout      time.Duration // Heartbeat age after which a record is stale (default: 6s)
	HeartbeatInterval time.Duration // Leader heartbeat period (default: 2s)
	SweepInterval     time.Duration // Stale sweep period (default: 2 x HeartbeatInterval)
	ClaimJitter       time.Duration // Upper bound of the confirm delay (default: 200ms)
	MaxClaimAttempts  int           // Consecutive contested claims before waiting for the sweep (default: 3)
	OperationTimeout  time.Duration // Timeout of each store call (default: 5s)

	// Optional dependencies
	Clock   types.Clock
	Logger  types.Logger
	Metrics types.MetricsCollector
	Hooks   *types.Hooks

	// Jitter returns a delay in [0, max). Defaults to a uniform random draw.
	Jitter func(max time.Duration) time.Duration
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.KV == nil {
		return errors.New("the KV is required")
	}
	if c.Bus == nil {
		return errors.New("the Bus is required")
	}
	if c.ResourceID == "" {
		return errors.New("the ResourceID is required")
	}
	if c.ContextID == "" {
		return errors.New("the ContextID is required")
	}
	if c.Key == "" {
		return errors.New("the Key is required")
	}
	if c.HeartbeatInterval >= c.LeaseTimeout {
		return fmt.Errorf("HeartbeatInterval (%v) must be less than LeaseTimeout (%v)", c.HeartbeatInterval, c.LeaseTimeout)
	}
	if c.ClaimJitter < 0 || c.ClaimJitter >= c.LeaseTimeout {
		return fmt.Errorf("ClaimJitter (%v) must be in [0, LeaseTimeout)", c.ClaimJitter)
	}

	return nil
}

// SetDefaults applies default values for optional fields.
//
// Fields that are already set (non-zero) are not overwritten.
func (c *Config) SetDefaults() {
	if c.LeaseTimeout == 0 {
		c.LeaseTimeout = 6 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 2 * time.Second
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 2 * c.HeartbeatInterval
	}
	if c.ClaimJitter == 0 {
		c.ClaimJitter = 200 * time.Millisecond
	}
	if c.MaxClaimAttempts == 0 {
		c.MaxClaimAttempts = 3
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = 5 * time.Second
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
	if c.Jitter == nil {
		c.Jitter = randomJitter
	}
}

func randomJitter(maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}

	return rand.N(maxJitter) //nolint:gosec // jitter does not need a cryptographic source
}

// NoJitter always confirms immediately. Useful for deterministic tests.
func NoJitter(time.Duration) time.Duration {
	return 0
}

func resolvedHooks(h *types.Hooks) types.Hooks {
	return hooks.WithDefaults(h)
}
