package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the privilege engine. The audit write
// failure counter is the compliance-gap signal: audit persistence failures
// never block privileged operations, so this is where they surface.
type Metrics struct {
	CommunicationsStored    prometheus.Counter
	CommunicationsDestroyed prometheus.Counter
	PrivilegeViolations     prometheus.Counter
	AccessDecisions         *prometheus.CounterVec
	AuditWriteFailures      prometheus.Counter
	AuditMirrorFailures     prometheus.Counter
	StoreDuration           prometheus.Histogram
	RetrieveDuration        prometheus.Histogram
}

// New creates a Metrics instance with all privilege engine metrics registered.
func New() *Metrics {
	return &Metrics{
		CommunicationsStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lexvault_communications_stored_total",
			Help: "Total privileged communications stored",
		}),
		CommunicationsDestroyed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lexvault_communications_destroyed_total",
			Help: "Total privileged communications tombstoned",
		}),
		PrivilegeViolations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lexvault_privilege_violations_total",
			Help: "Operations rejected for missing attorney-client relationship",
		}),
		AccessDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lexvault_access_decisions_total",
			Help: "Access control decisions by basis",
		}, []string{"basis"}),
		AuditWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lexvault_audit_write_failures_total",
			Help: "Audit entries that could not be persisted (compliance gap)",
		}),
		AuditMirrorFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lexvault_audit_mirror_failures_total",
			Help: "Audit entries that could not be mirrored to the compliance topic",
		}),
		StoreDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lexvault_store_communication_duration_seconds",
			Help:    "Duration of store_communication operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		RetrieveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lexvault_retrieve_communications_duration_seconds",
			Help:    "Duration of retrieve_communications operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncStored records a successful communication store. Nil-safe so services can
// run without metrics in tests.
func (m *Metrics) IncStored() {
	if m != nil {
		m.CommunicationsStored.Inc()
	}
}

// IncDestroyed records tombstoned communications.
func (m *Metrics) IncDestroyed(n int64) {
	if m != nil {
		m.CommunicationsDestroyed.Add(float64(n))
	}
}

// IncViolation records a rejected privileged operation.
func (m *Metrics) IncViolation() {
	if m != nil {
		m.PrivilegeViolations.Inc()
	}
}

// IncDecision records an access decision by basis.
func (m *Metrics) IncDecision(basis string) {
	if m != nil {
		m.AccessDecisions.WithLabelValues(basis).Inc()
	}
}

// IncAuditWriteFailure records an audit persistence failure.
func (m *Metrics) IncAuditWriteFailure() {
	if m != nil {
		m.AuditWriteFailures.Inc()
	}
}

// IncAuditMirrorFailure records a compliance mirror publish failure.
func (m *Metrics) IncAuditMirrorFailure() {
	if m != nil {
		m.AuditMirrorFailures.Inc()
	}
}

// ObserveStore records the duration of a store operation.
func (m *Metrics) ObserveStore(start time.Time) {
	if m != nil {
		m.StoreDuration.Observe(time.Since(start).Seconds())
	}
}

// ObserveRetrieve records the duration of a retrieve operation.
func (m *Metrics) ObserveRetrieve(start time.Time) {
	if m != nil {
		m.RetrieveDuration.Observe(time.Since(start).Seconds())
	}
}
