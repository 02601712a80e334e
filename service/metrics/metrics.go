package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC metrics
	rpcCallsTotal   *prometheus.CounterVec
	rpcCallDuration *prometheus.HistogramVec

	// Distribution metrics
	distributionRunsTotal  *prometheus.CounterVec
	batchSubmissionsTotal  *prometheus.CounterVec
	batchSubmissionSeconds *prometheus.HistogramVec
	recipientsSettledTotal *prometheus.CounterVec

	// Database metrics
	dbQueryDuration *prometheus.HistogramVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		distributionRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distribution_runs_total",
				Help: "Total number of distribution runs by asset type and final status",
			},
			[]string{"asset_type", "status"},
		),
		batchSubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distribution_batch_submissions_total",
				Help: "Total number of batch submissions by asset type and outcome",
			},
			[]string{"asset_type", "status"},
		),
		batchSubmissionSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distribution_batch_submission_duration_seconds",
				Help:    "Time from batch submission to confirmation or rejection",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"asset_type"},
		),
		recipientsSettledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distribution_recipients_settled_total",
				Help: "Total recipients settled by outcome",
			},
			[]string{"outcome"},
		),
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
	}
}

// RecordRPCCall records a Solana RPC call.
func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	m.rpcCallsTotal.WithLabelValues(method, status).Inc()
	m.rpcCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordDistributionRun records a finished distribution run.
func (m *Metrics) RecordDistributionRun(assetType, status string) {
	m.distributionRunsTotal.WithLabelValues(assetType, status).Inc()
}

// RecordBatchSubmission records one batch submission outcome and its
// confirmation latency.
func (m *Metrics) RecordBatchSubmission(assetType, status string, duration float64) {
	m.batchSubmissionsTotal.WithLabelValues(assetType, status).Inc()
	m.batchSubmissionSeconds.WithLabelValues(assetType).Observe(duration)
}

// RecordRecipientsSettled records how many recipients were attributed to
// an outcome ("completed" or "failed").
func (m *Metrics) RecordRecipientsSettled(outcome string, count int) {
	m.recipientsSettledTotal.WithLabelValues(outcome).Add(float64(count))
}

// RecordDBQuery records a database query duration.
func (m *Metrics) RecordDBQuery(operation string, duration float64) {
	m.dbQueryDuration.WithLabelValues(operation).Observe(duration)
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	m.httpRequestsTotal.WithLabelValues(handler, method, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(handler, method).Observe(duration)
}

// RecordNATSPublish records a NATS publish attempt.
func (m *Metrics) RecordNATSPublish(subject, status string) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
}
