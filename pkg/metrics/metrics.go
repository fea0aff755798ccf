// Package metrics provides Prometheus metrics for the dirview server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Computation outcomes.
const (
	OutcomeComplete  = "complete"
	OutcomePartial   = "partial"
	OutcomeUnknown   = "unknown"
	OutcomeCancelled = "cancelled"
	OutcomeDiscarded = "discarded"
)

var (
	computationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirview_size_computations_total",
			Help: "Total number of directory size computations by outcome",
		},
		[]string{"outcome"},
	)

	computationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dirview_size_computation_duration_seconds",
			Help:    "Time spent walking a directory tree",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	entriesVisited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirview_walk_entries_visited_total",
			Help: "Total filesystem entries visited by size computations",
		},
	)

	entriesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirview_walk_entries_skipped_total",
			Help: "Total entries skipped because they were unreadable or vanished",
		},
	)

	bytesCounted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirview_walk_bytes_counted_total",
			Help: "Total bytes summed by size computations",
		},
	)

	jobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirview_presenter_jobs_queued",
			Help: "Size computations waiting for a worker",
		},
	)

	jobsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirview_presenter_jobs_rejected_total",
			Help: "Size computations rejected because the queue was full",
		},
	)

	cellNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirview_cell_notifications_total",
			Help: "Cell change notifications emitted by attribute",
		},
		[]string{"attribute"},
	)

	wsClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirview_websocket_clients",
			Help: "Connected WebSocket clients",
		},
	)

	storeRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirview_store_records",
			Help: "Directory size records held by the store",
		},
	)

	storeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirview_store_size_bytes",
			Help: "Estimated bytes used by the store",
		},
	)

	wsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirview_websocket_messages_dropped_total",
			Help: "Broadcast messages dropped because the hub buffer was full",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordComputation records one finished walk.
func RecordComputation(outcome string, duration time.Duration, visited, skipped, bytes int64) {
	computationsTotal.WithLabelValues(outcome).Inc()
	computationDuration.Observe(duration.Seconds())
	entriesVisited.Add(float64(visited))
	entriesSkipped.Add(float64(skipped))
	if bytes > 0 {
		bytesCounted.Add(float64(bytes))
	}
}

// RecordOutcome counts an outcome that did not produce a walk (cancelled, discarded).
func RecordOutcome(outcome string) {
	computationsTotal.WithLabelValues(outcome).Inc()
}

// SetJobsQueued sets the number of queued jobs.
func SetJobsQueued(n int) {
	jobsQueued.Set(float64(n))
}

// RecordJobRejected counts a job refused by a full queue.
func RecordJobRejected() {
	jobsRejected.Inc()
}

// RecordCellNotification counts one targeted cell invalidation.
func RecordCellNotification(attribute string) {
	cellNotifications.WithLabelValues(attribute).Inc()
}

// SetWebSocketClients sets the connected client gauge.
func SetWebSocketClients(n int) {
	wsClients.Set(float64(n))
}

// RecordWebSocketDrop counts a dropped broadcast.
func RecordWebSocketDrop() {
	wsDropped.Inc()
}

// SetStoreStats publishes the store's record count and estimated size.
func SetStoreStats(records, bytes uint64) {
	storeRecords.Set(float64(records))
	storeBytes.Set(float64(bytes))
}
