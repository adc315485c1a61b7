package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the compliance engine.
type Metrics struct {
	// Audit metrics
	AuditEventsEmitted prometheus.Counter
	AuditEventsDropped prometheus.Counter
	AuditWriteFailures prometheus.Counter

	// Consent metrics
	ConsentsGranted    *prometheus.CounterVec
	ConsentsRevoked    *prometheus.CounterVec
	ConsentCheckPassed *prometheus.CounterVec
	ConsentCheckFailed *prometheus.CounterVec

	// Risk metrics
	RiskAlertsRaised *prometheus.CounterVec
	UsersFlagged     prometheus.Counter

	// Retention metrics
	RowsDeleted   *prometheus.CounterVec
	SweepFailures *prometheus.CounterVec
	SweepDuration prometheus.Histogram

	// Erasure metrics
	ExportRequests  *prometheus.CounterVec
	ExportsFailed   prometheus.Counter
	ExportLatency   prometheus.Histogram
	ExportDownloads prometheus.Counter

	// Key lifecycle metrics
	KeysGenerated prometheus.Counter
	KeysRotated   prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AuditEventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prepguard_audit_events_emitted_total",
			Help: "Total number of audit events accepted onto the queue",
		}),
		AuditEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prepguard_audit_events_dropped_total",
			Help: "Total number of audit events dropped due to a full buffer",
		}),
		AuditWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prepguard_audit_write_failures_total",
			Help: "Total number of failed audit store writes (fail-open)",
		}),
		ConsentsGranted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prepguard_consents_granted_total",
			Help: "Total number of consents granted by type",
		}, []string{"consent_type"}),
		ConsentsRevoked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prepguard_consents_revoked_total",
			Help: "Total number of consents revoked by type",
		}, []string{"consent_type"}),
		ConsentCheckPassed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prepguard_consent_checks_passed_total",
			Help: "Total number of passed consent validations by action",
		}, []string{"action"}),
		ConsentCheckFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prepguard_consent_checks_failed_total",
			Help: "Total number of failed consent validations by action",
		}, []string{"action"}),
		RiskAlertsRaised: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prepguard_risk_alerts_total",
			Help: "Total number of risk alerts raised by pattern type",
		}, []string{"pattern_type"}),
		UsersFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prepguard_users_flagged_total",
			Help: "Total number of usage patterns flagged for review",
		}),
		RowsDeleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prepguard_retention_rows_deleted_total",
			Help: "Total number of rows deleted by retention sweeps per data type",
		}, []string{"data_type"}),
		SweepFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prepguard_retention_sweep_failures_total",
			Help: "Total number of per-type failures during automated cleanup",
		}, []string{"data_type"}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "prepguard_retention_sweep_duration_seconds",
			Help:    "Duration of automated cleanup runs",
			Buckets: prometheus.DefBuckets,
		}),
		ExportRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prepguard_export_requests_total",
			Help: "Total number of export/delete requests by type",
		}, []string{"request_type"}),
		ExportsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prepguard_export_requests_failed_total",
			Help: "Total number of export/delete requests that ended in failed state",
		}),
		ExportLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "prepguard_export_processing_seconds",
			Help:    "Time from pickup to completion of export/delete requests",
			Buckets: prometheus.DefBuckets,
		}),
		ExportDownloads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prepguard_export_downloads_total",
			Help: "Total number of export artifact downloads",
		}),
		KeysGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prepguard_keys_generated_total",
			Help: "Total number of encryption keys generated",
		}),
		KeysRotated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prepguard_keys_rotated_total",
			Help: "Total number of key rotations completed",
		}),
	}
}
