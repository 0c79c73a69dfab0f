// Package metrics provides types.MetricsCollector implementations.
package metrics

import (
	"time"

	"github.com/arloliu/draftsync/types"
)

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for tests or when metrics are collected externally.
type NopMetrics struct{}

var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	mgr, err := draftsync.NewManager(&cfg, kv, bus, adapter, draftsync.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// ElectionMetrics implementation

func (n *NopMetrics) RecordLeadershipChange(string, types.LeaderStatus) {}
func (n *NopMetrics) RecordClaimAttempt(string, bool) {}
func (n *NopMetrics) RecordHeartbeat(string, bool) {}

// AutoSaveMetrics implementation

func (n *NopMetrics) RecordSave(string, string, time.Duration, int) {}
func (n *NopMetrics) RecordSaveRetry(string) {}
func (n *NopMetrics) RecordStatus(string, types.AutoSaveStatus) {}
func (n *NopMetrics) RecordHydration(string, bool, error) {}
func (n *NopMetrics) RecordEmergencySave(string, bool) {}
