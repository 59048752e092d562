package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served.",
		},
	)

	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_tokens_total",
			Help: "Token issuance and validation attempts.",
		},
		[]string{"flow", "result"},
	)

	LedgerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_ledger_operations_total",
			Help: "Ledger appends and deletions.",
		},
		[]string{"op", "result"},
	)

	RecordsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_records_deleted_total",
			Help: "Records whose ciphertext was removed.",
		},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_rate_limited_total",
			Help: "Requests rejected by the per-ip rate limiter.",
		},
		[]string{"endpoint"},
	)

	ErrorReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_error_reports_total",
			Help: "Deliveries to the remote error collector.",
		},
		[]string{"result"},
	)
)

// MustRegister registers every collector on the default registry with a
// constant service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		HTTPInFlight,
		TokensTotal,
		LedgerOperationsTotal,
		RecordsDeletedTotal,
		RateLimitedTotal,
		ErrorReportsTotal,
	)
}
