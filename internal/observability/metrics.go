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
	// Listener metrics
	LogNotificationsReceived *prometheus.CounterVec
	LogNotificationsMatched  *prometheus.CounterVec
	ListenerErrors           *prometheus.CounterVec
	QueueDepth               prometheus.Gauge
	HighestSlotSeen          prometheus.Gauge

	// Discovery metrics
	PipelineOutcomes *prometheus.CounterVec
	MarketOutcomes   *prometheus.CounterVec
	PoolsSeeded      *prometheus.CounterVec

	// Routing metrics
	QuoteRequests     *prometheus.CounterVec
	RateLimitRetries  *prometheus.CounterVec
	SwapsExecuted     *prometheus.CounterVec
	ConfirmationDelay prometheus.Histogram

	// Strategy metrics
	StrategyTicks *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulTick prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg registers on the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_pool_agent"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		LogNotificationsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "log_notifications_received_total",
			Help:      "Total number of log notifications received by program",
		}, []string{"program"}),
		LogNotificationsMatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "log_notifications_matched_total",
			Help:      "Total number of log notifications containing the instruction marker",
		}, []string{"program"}),
		ListenerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "errors_total",
			Help:      "Total number of per-message listener failures by stage",
		}, []string{"stage"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "queue_depth",
			Help:      "Current number of notifications waiting for the worker",
		}),
		HighestSlotSeen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		PipelineOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "pool_outcomes_total",
			Help:      "Pool candidates by pipeline outcome",
		}, []string{"outcome"}),
		MarketOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "market_outcomes_total",
			Help:      "Market account updates by pipeline outcome",
		}, []string{"outcome"}),
		PoolsSeeded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "pools_seeded_total",
			Help:      "Pools submitted by the bootstrap seeder by pool kind",
		}, []string{"kind"}),

		QuoteRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jupiter",
			Name:      "requests_total",
			Help:      "Routing API requests by endpoint and result",
		}, []string{"endpoint", "result"}),
		RateLimitRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jupiter",
			Name:      "rate_limit_retries_total",
			Help:      "Rate-limited routing API attempts that were retried",
		}, []string{"endpoint"}),
		SwapsExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "swaps_total",
			Help:      "Swap executions by outcome",
		}, []string{"outcome"}),
		ConfirmationDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "finalization_seconds",
			Help:      "Time from submission to finalized status",
			Buckets:   []float64{2, 5, 10, 15, 20, 30, 45, 60},
		}),

		StrategyTicks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketmaker",
			Name:      "ticks_total",
			Help:      "Rebalance evaluations by pair and outcome",
		}, []string{"pair", "outcome"}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		LastSuccessfulTick: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of the last strategy tick that completed without error",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// Pipeline outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeSeen      = "seen"
	OutcomeMarked    = "marked"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

// RecordLogNotification counts a received notification and whether it matched the marker.
func RecordLogNotification(program string, matched bool) {
	DefaultMetrics.LogNotificationsReceived.WithLabelValues(program).Inc()
	if matched {
		DefaultMetrics.LogNotificationsMatched.WithLabelValues(program).Inc()
	}
}

// RecordListenerError records a per-message listener failure.
func RecordListenerError(stage string) {
	DefaultMetrics.ListenerErrors.WithLabelValues(stage).Inc()
}

// UpdateQueueDepth sets the listener queue gauge.
func UpdateQueueDepth(n int) {
	DefaultMetrics.QueueDepth.Set(float64(n))
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordPoolOutcome records the result of one pool candidate.
func RecordPoolOutcome(outcome string) {
	DefaultMetrics.PipelineOutcomes.WithLabelValues(outcome).Inc()
}

// RecordMarketOutcome records the result of one market account update.
func RecordMarketOutcome(outcome string) {
	DefaultMetrics.MarketOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPoolSeeded records a pool submitted by the seeder.
func RecordPoolSeeded(kind string) {
	DefaultMetrics.PoolsSeeded.WithLabelValues(kind).Inc()
}

// RecordRoutingRequest records a routing API request result.
func RecordRoutingRequest(endpoint, result string) {
	DefaultMetrics.QuoteRequests.WithLabelValues(endpoint, result).Inc()
}

// RecordRateLimitRetry records a retried 429 response.
func RecordRateLimitRetry(endpoint string) {
	DefaultMetrics.RateLimitRetries.WithLabelValues(endpoint).Inc()
}

// RecordSwap records a swap execution outcome. elapsed is observed only for finalized swaps.
func RecordSwap(outcome string, elapsed time.Duration) {
	DefaultMetrics.SwapsExecuted.WithLabelValues(outcome).Inc()
	if outcome == "finalized" {
		DefaultMetrics.ConfirmationDelay.Observe(elapsed.Seconds())
	}
}

// RecordTick records a strategy tick outcome.
func RecordTick(pair, outcome string) {
	DefaultMetrics.StrategyTicks.WithLabelValues(pair, outcome).Inc()
	if outcome != "error" {
		DefaultMetrics.LastSuccessfulTick.SetToCurrentTime()
	}
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
