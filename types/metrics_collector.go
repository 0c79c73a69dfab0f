package types

import "time"

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	ElectionMetrics
	AutoSaveMetrics
}

// ElectionMetrics defines metrics for leader election.
type ElectionMetrics interface {
	// RecordLeadershipChange records a leader status transition.
	//
	// Parameters:
	//   - resourceID: The resource the election is for
	//   - status: The new leader status
	RecordLeadershipChange(resourceID string, status LeaderStatus)

	// RecordClaimAttempt records a confirmed claim attempt.
	//
	// Parameters:
	//   - resourceID: The resource the election is for
	//   - won: true if the re-read still named this context
	RecordClaimAttempt(resourceID string, won bool)

	// RecordHeartbeat records a leader heartbeat write.
	RecordHeartbeat(resourceID string, success bool)
}

// AutoSaveMetrics defines metrics for the auto-save coordinator.
type AutoSaveMetrics interface {
	// RecordSave records a completed save attempt.
	//
	// Parameters:
	//   - resourceID: The saved resource
	//   - result: "success", "error", "conflict" or "invalid"
	//   - duration: Adapter call latency
	//   - payloadBytes: Serialized snapshot size
	RecordSave(resourceID, result string, duration time.Duration, payloadBytes int)

	// RecordSaveRetry records an automatic retry being scheduled.
	RecordSaveRetry(resourceID string)

	// RecordStatus records an auto-save status transition.
	RecordStatus(resourceID string, status AutoSaveStatus)

	// RecordHydration records a hydration attempt.
	//
	// Parameters:
	//   - found: true if a persisted snapshot existed
	//   - err: the failure, nil on success
	RecordHydration(resourceID string, found bool, err error)

	// RecordEmergencySave records an emergency log write.
	RecordEmergencySave(resourceID string, success bool)
}
