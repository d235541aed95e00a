package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "verifications_total",
		Help:      "Total number of verification decisions",
	}, []string{"decision"})

	VerificationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "verification_duration_seconds",
		Help:      "Duration of a full verification call",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"provider"})

	Comparisons = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "comparisons_total",
		Help:      "Probe to reference comparisons by result",
	}, []string{"provider", "result"})

	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "enrollment_photos_total",
		Help:      "Enrollment photos processed by result",
	}, []string{"result"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "remote_requests_total",
		Help:      "Requests sent to the remote face service",
	}, []string{"operation", "status"})

	ProviderInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "provider_info",
		Help:      "Active matching provider (1 for the active one)",
	}, []string{"provider", "kind"})

	AuditRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "audit_records_total",
		Help:      "Audit records written by sink and result",
	}, []string{"sink", "result"})

	AuditBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "audit_stream_messages",
		Help:      "Messages held in the AUDIT stream",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
