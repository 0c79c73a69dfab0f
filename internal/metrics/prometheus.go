package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/draftsync/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so constructing a
// PrometheusCollector never panics on duplicate registration until it records.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	leaderStatus   *prometheus.GaugeVec
	leaderChanges  *prometheus.CounterVec
	claimAttempts  *prometheus.CounterVec
	heartbeats     *prometheus.CounterVec
	saves          *prometheus.CounterVec
	saveLatency    *prometheus.HistogramVec
	payloadBytes   *prometheus.HistogramVec
	saveRetries    *prometheus.CounterVec
	autosaveStatus *prometheus.GaugeVec
	hydrations     *prometheus.CounterVec
	emergencySaves *prometheus.CounterVec
}

var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Metrics namespace (defaults to "draftsync" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "draftsync"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.leaderStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "is_leader",
			Help:      "Whether this context is leader for the resource (1=leader, 0=otherwise).",
		}, []string{"resource"})

		p.leaderChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "status_changes_total",
			Help:      "Total leader status transitions by resulting status.",
		}, []string{"resource", "status"})

		p.claimAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "claim_attempts_total",
			Help:      "Total confirmed claim attempts by outcome (won, lost).",
		}, []string{"resource", "outcome"})

		p.heartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "heartbeats_total",
			Help:      "Total leader heartbeat writes by result (success, failure).",
		}, []string{"resource", "result"})

		p.saves = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "autosave",
			Name:      "saves_total",
			Help:      "Total save attempts by result (success, error, conflict, invalid).",
		}, []string{"resource", "result"})

		p.saveLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "autosave",
			Name:      "save_duration_seconds",
			Help:      "Latency of storage adapter saves in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
		}, []string{"resource"})

		p.payloadBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "autosave",
			Name:      "payload_bytes",
			Help:      "Serialized snapshot size per save.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8), // 256B .. 4MiB
		}, []string{"resource"})

		p.saveRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "autosave",
			Name:      "retries_total",
			Help:      "Total automatic save retries scheduled.",
		}, []string{"resource"})

		p.autosaveStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "autosave",
			Name:      "status",
			Help:      "Current auto-save status (0=idle, 1=saving, 2=saved, 3=error, 4=offline).",
		}, []string{"resource"})

		p.hydrations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "autosave",
			Name:      "hydrations_total",
			Help:      "Total hydration attempts by result (found, empty, failure).",
		}, []string{"resource", "result"})

		p.emergencySaves = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "autosave",
			Name:      "emergency_saves_total",
			Help:      "Total emergency log writes by result (success, failure).",
		}, []string{"resource", "result"})

		p.reg.MustRegister(p.leaderStatus)
		p.reg.MustRegister(p.leaderChanges)
		p.reg.MustRegister(p.claimAttempts)
		p.reg.MustRegister(p.heartbeats)
		p.reg.MustRegister(p.saves)
		p.reg.MustRegister(p.saveLatency)
		p.reg.MustRegister(p.payloadBytes)
		p.reg.MustRegister(p.saveRetries)
		p.reg.MustRegister(p.autosaveStatus)
		p.reg.MustRegister(p.hydrations)
		p.reg.MustRegister(p.emergencySaves)
	})
}

// ElectionMetrics implementation

// RecordLeadershipChange counts the transition and updates the is_leader gauge.
func (p *PrometheusCollector) RecordLeadershipChange(resourceID string, status types.LeaderStatus) {
	p.ensureRegistered()
	p.leaderChanges.WithLabelValues(resourceID, status.String()).Inc()
	if status == types.LeaderStatusLeader {
		p.leaderStatus.WithLabelValues(resourceID).Set(1)
	} else {
		p.leaderStatus.WithLabelValues(resourceID).Set(0)
	}
}

// RecordClaimAttempt counts a confirmed claim by outcome.
func (p *PrometheusCollector) RecordClaimAttempt(resourceID string, won bool) {
	p.ensureRegistered()
	p.claimAttempts.WithLabelValues(resourceID, outcome(won, "won", "lost")).Inc()
}

// RecordHeartbeat counts a heartbeat write by result.
func (p *PrometheusCollector) RecordHeartbeat(resourceID string, success bool) {
	p.ensureRegistered()
	p.heartbeats.WithLabelValues(resourceID, outcome(success, "success", "failure")).Inc()
}

// AutoSaveMetrics implementation

// RecordSave counts the save and observes its latency and payload size.
func (p *PrometheusCollector) RecordSave(resourceID, result string, duration time.Duration, payloadBytes int) {
	p.ensureRegistered()
	p.saves.WithLabelValues(resourceID, result).Inc()
	p.saveLatency.WithLabelValues(resourceID).Observe(duration.Seconds())
	p.payloadBytes.WithLabelValues(resourceID).Observe(float64(payloadBytes))
}

// RecordSaveRetry counts a scheduled retry.
func (p *PrometheusCollector) RecordSaveRetry(resourceID string) {
	p.ensureRegistered()
	p.saveRetries.WithLabelValues(resourceID).Inc()
}

// RecordStatus sets the status gauge.
func (p *PrometheusCollector) RecordStatus(resourceID string, status types.AutoSaveStatus) {
	p.ensureRegistered()
	p.autosaveStatus.WithLabelValues(resourceID).Set(float64(status))
}

// RecordHydration counts a hydration attempt.
func (p *PrometheusCollector) RecordHydration(resourceID string, found bool, err error) {
	p.ensureRegistered()
	result := outcome(found, "found", "empty")
	if err != nil {
		result = "failure"
	}
	p.hydrations.WithLabelValues(resourceID, result).Inc()
}

// RecordEmergencySave counts an emergency log write.
func (p *PrometheusCollector) RecordEmergencySave(resourceID string, success bool) {
	p.ensureRegistered()
	p.emergencySaves.WithLabelValues(resourceID, outcome(success, "success", "failure")).Inc()
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}

	return no
}
