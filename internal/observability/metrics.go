// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pipeline metrics
	EffectsReceived         *prometheus.CounterVec
	NotificationsDispatched *prometheus.CounterVec
	TradesSuppressed        prometheus.Counter
	LookupErrors            prometheus.Counter
	LookupsDiscarded        prometheus.Counter
	TrackedAccounts         prometheus.Gauge
	StreamsOnline           prometheus.Gauge
	ActivityPublishes       prometheus.Counter

	// Worker metrics
	WorkerRequests       *prometheus.CounterVec
	WorkerRequestLatency *prometheus.HistogramVec
	WorkerSignals        *prometheus.CounterVec
	WorkerPaused         prometheus.Gauge
	LedgerSequence       *prometheus.GaugeVec
	ProbeErrors          *prometheus.CounterVec

	// Error tracking
	ErrorsTracked *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastEffectTimestamp prometheus.Gauge
	StartTimestamp      prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "walletd"
	}

	return &Metrics{
		// Pipeline metrics
		EffectsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "effects_received_total",
			Help:      "Total number of account effects received by network and type",
		}, []string{"network", "type"}),
		NotificationsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "notifications_dispatched_total",
			Help:      "Total number of notifications dispatched by kind",
		}, []string{"kind"}),
		TradesSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "trades_suppressed_total",
			Help:      "Trade effects suppressed because the offer is still open",
		}),
		LookupErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "offer_lookup_errors_total",
			Help:      "Open offer lookups that failed",
		}),
		LookupsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "offer_lookups_discarded_total",
			Help:      "Open offer lookups completed after their account was untracked",
		}),
		TrackedAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "tracked_accounts",
			Help:      "Number of accounts with a live effect subscription",
		}),
		StreamsOnline: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "streams_online",
			Help:      "Number of effect streams currently connected",
		}),
		ActivityPublishes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "activity_publishes_total",
			Help:      "Debounced activity feed publishes",
		}),

		// Worker metrics
		WorkerRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Total number of bridge requests by method and status",
		}, []string{"method", "status"}),
		WorkerRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "request_latency_seconds",
			Help:      "Bridge round trip latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WorkerSignals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "signals_total",
			Help:      "Lifecycle signals forwarded to the worker",
		}, []string{"signal"}),
		WorkerPaused: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "paused",
			Help:      "1 while the worker's polling is suspended",
		}),
		LedgerSequence: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "latest_ledger",
			Help:      "Latest ledger sequence observed by the probe",
		}, []string{"network"}),
		ProbeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "probe_errors_total",
			Help:      "Ledger probe failures by network",
		}, []string{"network"}),

		// Error tracking
		ErrorsTracked: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "errors",
			Name:      "tracked_total",
			Help:      "Asynchronous failures reported to the error tracker by source",
		}, []string{"source"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastEffectTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_effect_timestamp",
			Help:      "Unix timestamp of the last received effect",
		}),
		StartTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "start_timestamp",
			Help:      "Unix timestamp of process start",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordStart sets the process start timestamp.
func RecordStart() {
	DefaultMetrics.StartTimestamp.Set(float64(time.Now().Unix()))
}

// RecordEffect records a received effect.
func RecordEffect(network, effectType string) {
	DefaultMetrics.EffectsReceived.WithLabelValues(network, effectType).Inc()
	DefaultMetrics.LastEffectTimestamp.Set(float64(time.Now().Unix()))
}

// RecordNotification records a dispatched notification.
func RecordNotification(kind string) {
	DefaultMetrics.NotificationsDispatched.WithLabelValues(kind).Inc()
}

// RecordTradeSuppressed records a partially filled trade.
func RecordTradeSuppressed() {
	DefaultMetrics.TradesSuppressed.Inc()
}

// RecordLookupError records a failed open offer lookup.
func RecordLookupError() {
	DefaultMetrics.LookupErrors.Inc()
}

// RecordLookupDiscarded records a lookup result dropped after teardown.
func RecordLookupDiscarded() {
	DefaultMetrics.LookupsDiscarded.Inc()
}

// UpdateStreams updates the tracked account and online stream gauges.
func UpdateStreams(tracked, online int) {
	DefaultMetrics.TrackedAccounts.Set(float64(tracked))
	DefaultMetrics.StreamsOnline.Set(float64(online))
}

// RecordActivityPublish records an activity feed publish.
func RecordActivityPublish() {
	DefaultMetrics.ActivityPublishes.Inc()
}

// RecordWorkerRequest records one bridge round trip.
func RecordWorkerRequest(method string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.WorkerRequests.WithLabelValues(method, status).Inc()
	DefaultMetrics.WorkerRequestLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWorkerSignal records a forwarded lifecycle signal.
func RecordWorkerSignal(signal string) {
	DefaultMetrics.WorkerSignals.WithLabelValues(signal).Inc()
}

// SetWorkerPaused updates the paused gauge.
func SetWorkerPaused(paused bool) {
	v := 0.0
	if paused {
		v = 1
	}
	DefaultMetrics.WorkerPaused.Set(v)
}

// UpdateLedgerSequence updates the latest ledger gauge of a network.
func UpdateLedgerSequence(network string, sequence int64) {
	DefaultMetrics.LedgerSequence.WithLabelValues(network).Set(float64(sequence))
}

// RecordProbeError records a failed ledger probe.
func RecordProbeError(network string) {
	DefaultMetrics.ProbeErrors.WithLabelValues(network).Inc()
}

// RecordTrackedError records an error reported to the tracker.
func RecordTrackedError(source string) {
	DefaultMetrics.ErrorsTracked.WithLabelValues(source).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
