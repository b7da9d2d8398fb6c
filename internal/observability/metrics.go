package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values shared by the dispatch collectors.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	// scansTotal counts due-reminder scans by outcome (ok|error).
	scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_scans_total",
			Help: "Total number of due-reminder scans.",
		},
		[]string{"outcome"},
	)

	// scanDuration records how long a full scan (query + dispatch) takes.
	scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reminder_scan_duration_seconds",
			Help:    "Duration of due-reminder scans in seconds.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// deliveriesTotal counts per-reminder delivery outcomes by channel.
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_deliveries_total",
			Help: "Total number of reminder deliveries by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	// spawnedTotal counts successor occurrences of recurring reminders.
	spawnedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_occurrences_spawned_total",
			Help: "Total number of next occurrences inserted for recurring reminders.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(scansTotal, scanDuration, deliveriesTotal, spawnedTotal)
}

// ObserveScan records one scan and its duration.
func ObserveScan(outcome string, d time.Duration) {
	scansTotal.WithLabelValues(outcome).Inc()
	scanDuration.Observe(d.Seconds())
}

// ObserveDelivery records the outcome of one reminder on channel.
func ObserveDelivery(channel, outcome string) {
	deliveriesTotal.WithLabelValues(channel, outcome).Inc()
}

// ObserveSpawn records an attempt to insert a next occurrence.
func ObserveSpawn(outcome string) {
	spawnedTotal.WithLabelValues(outcome).Inc()
}
