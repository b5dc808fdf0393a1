// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	PoolEventsParsed  *prometheus.CounterVec
	MalformedLogs     *prometheus.CounterVec
	CatchUpSignatures prometheus.Counter
	WSReconnects      prometheus.Counter
	HighestSlotSeen   prometheus.Gauge
	IngestQueueDepth  prometheus.Gauge

	// Filter metrics
	OpportunitiesAccepted prometheus.Counter
	OpportunitiesRejected *prometheus.CounterVec
	OpportunityScore      prometheus.Histogram

	// Execution metrics
	AttemptsTotal        *prometheus.CounterVec
	SubmitRetries        prometheus.Counter
	SubmitLatency        prometheus.Histogram
	ConfirmLatency       prometheus.Histogram
	InFlightAttempts     prometheus.Gauge
	ExecQueueDepth       prometheus.Gauge
	DroppedOpportunities prometheus.Counter

	// State metrics
	CheckpointDuration prometheus.Histogram
	CheckpointErrors   prometheus.Counter

	// Health metrics
	LastEventTimestamp prometheus.Gauge
	UptimeSeconds      prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_sniper"
	}

	return &Metrics{
		// Ingestion metrics
		PoolEventsParsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "pool_events_parsed_total",
			Help:      "Total number of pool creation events parsed, by program",
		}, []string{"program"}),
		MalformedLogs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "malformed_logs_total",
			Help:      "Total number of log entries skipped as malformed, by program",
		}, []string{"program"}),
		CatchUpSignatures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "catchup_signatures_total",
			Help:      "Total number of signatures replayed during cursor catch-up",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnect cycles",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),
		IngestQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Current depth of the ingest to filter channel",
		}),

		// Filter metrics
		OpportunitiesAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "opportunities_accepted_total",
			Help:      "Total number of pool events accepted by the rule set",
		}),
		OpportunitiesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "opportunities_rejected_total",
			Help:      "Total number of pool events rejected, by rule",
		}, []string{"rule"}),
		OpportunityScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "opportunity_score",
			Help:      "Score distribution of accepted opportunities",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),

		// Execution metrics
		AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "attempts_total",
			Help:      "Total number of execution attempts, by terminal outcome",
		}, []string{"outcome"}),
		SubmitRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "submit_retries_total",
			Help:      "Total number of transaction submission retries",
		}),
		SubmitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "submit_latency_seconds",
			Help:      "Latency from opportunity pickup to accepted submission",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		ConfirmLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "confirm_latency_seconds",
			Help:      "Latency from submission to on-chain confirmation",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		InFlightAttempts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "in_flight_attempts",
			Help:      "Number of attempts currently executing",
		}),
		ExecQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "queue_depth",
			Help:      "Current depth of the filter to execution channel",
		}),
		DroppedOpportunities: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "dropped_opportunities_total",
			Help:      "Total number of opportunities dropped from a full execution queue",
		}),

		// State metrics
		CheckpointDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "checkpoint_duration_seconds",
			Help:      "State checkpoint duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CheckpointErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "checkpoint_errors_total",
			Help:      "Total number of failed state checkpoints",
		}),

		// Health metrics
		LastEventTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the last ingested pool event",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPoolEventParsed increments the parsed pool events counter.
func RecordPoolEventParsed(program string) {
	DefaultMetrics.PoolEventsParsed.WithLabelValues(program).Inc()
}

// RecordMalformedLog increments the malformed log counter.
func RecordMalformedLog(program string) {
	DefaultMetrics.MalformedLogs.WithLabelValues(program).Inc()
}

// RecordCatchUpSignatures adds replayed signatures to the catch-up counter.
func RecordCatchUpSignatures(n int) {
	DefaultMetrics.CatchUpSignatures.Add(float64(n))
}

// RecordWSReconnect increments the reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// UpdateQueueDepths updates the pipeline channel depth gauges.
func UpdateQueueDepths(ingest, exec int) {
	DefaultMetrics.IngestQueueDepth.Set(float64(ingest))
	DefaultMetrics.ExecQueueDepth.Set(float64(exec))
}

// RecordVerdict records a filter verdict.
func RecordVerdict(accepted bool, rejectedBy string, score float64) {
	if accepted {
		DefaultMetrics.OpportunitiesAccepted.Inc()
		DefaultMetrics.OpportunityScore.Observe(score)
		return
	}
	DefaultMetrics.OpportunitiesRejected.WithLabelValues(rejectedBy).Inc()
}

// RecordAttemptOutcome records a terminal execution outcome.
func RecordAttemptOutcome(outcome string) {
	DefaultMetrics.AttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordSubmitRetry increments the submission retry counter.
func RecordSubmitRetry() {
	DefaultMetrics.SubmitRetries.Inc()
}

// RecordSubmitLatency records pickup-to-submission latency.
func RecordSubmitLatency(seconds float64) {
	DefaultMetrics.SubmitLatency.Observe(seconds)
}

// RecordConfirmLatency records submission-to-confirmation latency.
func RecordConfirmLatency(seconds float64) {
	DefaultMetrics.ConfirmLatency.Observe(seconds)
}

// AddUptime advances the uptime counter by the elapsed seconds.
func AddUptime(seconds float64) {
	DefaultMetrics.UptimeSeconds.Add(seconds)
}

// TrackInFlight adjusts the in-flight attempt gauge.
func TrackInFlight(delta float64) {
	DefaultMetrics.InFlightAttempts.Add(delta)
}

// RecordDroppedOpportunity increments the dropped opportunity counter.
func RecordDroppedOpportunity() {
	DefaultMetrics.DroppedOpportunities.Inc()
}

// RecordCheckpoint records a checkpoint duration and error, if any.
func RecordCheckpoint(seconds float64, err error) {
	DefaultMetrics.CheckpointDuration.Observe(seconds)
	if err != nil {
		DefaultMetrics.CheckpointErrors.Inc()
	}
}

// RecordEventTimestamp updates the last event timestamp gauge.
func RecordEventTimestamp(unixMilli int64) {
	DefaultMetrics.LastEventTimestamp.Set(float64(unixMilli) / 1000)
}
