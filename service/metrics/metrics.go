package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics. All
// Record helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// Solana RPC
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCRetries           *prometheus.CounterVec
	solanaRPCSignaturesPerCall *prometheus.HistogramVec

	// Detection pipeline
	classificationsTotal *prometheus.CounterVec
	buysDetectedTotal    *prometheus.CounterVec
	alertsTotal          *prometheus.CounterVec
	pipelineSkipsTotal   *prometheus.CounterVec
	pipelineDuration     *prometheus.HistogramVec
	trackedTokens        prometheus.Gauge

	// Enrichment
	metadataLookupsTotal *prometheus.CounterVec
	priceLookupsTotal    *prometheus.CounterVec

	// Database
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures returned per GetSignaturesForAddress call",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"endpoint"},
		),

		classificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buywatch_classifications_total",
				Help: "Transactions classified, by outcome reason",
			},
			[]string{"token", "reason"},
		),
		buysDetectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buywatch_buys_detected_total",
				Help: "Buy events detected per token",
			},
			[]string{"token"},
		),
		alertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buywatch_alerts_total",
				Help: "Alert dispatch attempts by status",
			},
			[]string{"token", "status"},
		),
		pipelineSkipsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buywatch_pipeline_skips_total",
				Help: "Token pipelines skipped because the previous run was still in flight",
			},
			[]string{"token"},
		),
		pipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buywatch_pipeline_duration_seconds",
				Help:    "Duration of one token pipeline run in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"token", "status"},
		),
		trackedTokens: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "buywatch_tracked_tokens",
				Help: "Number of tokens in the registry at the last tick",
			},
		),

		metadataLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buywatch_metadata_lookups_total",
				Help: "Metadata source lookups by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		priceLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buywatch_price_lookups_total",
				Help: "Quote price lookups by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
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
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	if m == nil {
		return
	}
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count int) {
	if m == nil {
		return
	}
	m.solanaRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(float64(count))
}

// Pipeline metric helpers

// RecordClassification records one classifier outcome.
func (m *Metrics) RecordClassification(token, reason string) {
	if m == nil {
		return
	}
	m.classificationsTotal.WithLabelValues(token, reason).Inc()
}

// RecordBuyDetected records a classified buy.
func (m *Metrics) RecordBuyDetected(token string) {
	if m == nil {
		return
	}
	m.buysDetectedTotal.WithLabelValues(token).Inc()
}

// RecordAlert records an alert dispatch attempt.
func (m *Metrics) RecordAlert(token string, err error) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(token, statusOf(err)).Inc()
}

// RecordPipelineSkipped records a tick where the token's pipeline was still running.
func (m *Metrics) RecordPipelineSkipped(token string) {
	if m == nil {
		return
	}
	m.pipelineSkipsTotal.WithLabelValues(token).Inc()
}

// RecordPipelineDuration records one pipeline run.
func (m *Metrics) RecordPipelineDuration(token string, duration float64, err error) {
	if m == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(token, statusOf(err)).Observe(duration)
}

// SetTrackedTokens sets the registry size gauge.
func (m *Metrics) SetTrackedTokens(n int) {
	if m == nil {
		return
	}
	m.trackedTokens.Set(float64(n))
}

// Enrichment metric helpers

// RecordMetadataLookup records a metadata source outcome ("hit", "miss", "rejected").
func (m *Metrics) RecordMetadataLookup(source, outcome string) {
	if m == nil {
		return
	}
	m.metadataLookupsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordPriceLookup records a price source outcome.
func (m *Metrics) RecordPriceLookup(source string, err error) {
	if m == nil {
		return
	}
	m.priceLookupsTotal.WithLabelValues(source, statusOf(err)).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, statusOf(err)).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject string, duration float64, err error) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, statusOf(err)).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
