package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "savings_service",
		Subsystem: "persistence",
		Name:      "last_event_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent savings event persisted to Postgres.",
	})
	streakTransitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "savings_service",
		Subsystem: "streak",
		Name:      "transitions_total",
		Help:      "Streak tracker decisions applied, labeled by outcome.",
	}, []string{"outcome"})
	streakConflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "savings_service",
		Subsystem: "streak",
		Name:      "write_conflicts_total",
		Help:      "Streak compare-and-set writes lost to a concurrent session.",
	})
	totalsRecomputeHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "savings_service",
		Subsystem: "aggregation",
		Name:      "recompute_events",
		Help:      "Distribution of event-set sizes folded per totals recompute.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})
)

func init() {
	prometheus.MustRegister(eventPersistGauge, streakTransitionCounter, streakConflictCounter, totalsRecomputeHistogram)
}

// RecordEventPersisted updates the persistence watermark gauge.
func RecordEventPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	eventPersistGauge.Set(float64(ts.Unix()))
}

// RecordStreakTransition counts an applied streak decision.
func RecordStreakTransition(outcome string) {
	streakTransitionCounter.WithLabelValues(outcome).Inc()
}

// RecordStreakConflict counts a lost compare-and-set race.
func RecordStreakConflict() {
	streakConflictCounter.Inc()
}

// RecordTotalsRecompute observes how many events a recompute folded.
func RecordTotalsRecompute(eventCount int) {
	totalsRecomputeHistogram.Observe(float64(eventCount))
}
