package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeRace      = "race_lost"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

var (
	scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "attendance",
		Name:      "scans_total",
		Help:      "Attendance scan attempts by outcome and appointment slot.",
	}, []string{"outcome", "slot"})

	registerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shuttle",
		Subsystem: "attendance",
		Name:      "register_duration_seconds",
		Help:      "Time spent registering a scan, including store round-trips.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"outcome"})

	tallyUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "worker",
		Name:      "tally_updates_total",
		Help:      "Recorded-attendance messages applied to live tallies.",
	}, []string{"result"})
)

// ObserveScan records one registration attempt.
func ObserveScan(outcome, slot string, took time.Duration) {
	scans.WithLabelValues(outcome, slot).Inc()
	registerLatency.WithLabelValues(outcome).Observe(took.Seconds())
}

// ObserveTally records one worker message.
func ObserveTally(ok bool) {
	if ok {
		tallyUpdates.WithLabelValues("ok").Inc()
		return
	}
	tallyUpdates.WithLabelValues("failed").Inc()
}
