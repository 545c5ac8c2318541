// Package metrics holds the Prometheus instruments exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fan-out delivery outcomes.
const (
	ResultDelivered = "delivered"
	ResultFiltered  = "filtered"
	ResultDropped   = "dropped"
)

var (
	FanoutEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_fanout_events_total",
			Help: "Per-subscriber event outcomes in the fan-out router",
		},
		[]string{"result"},
	)

	FanoutPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_fanout_publish_failures_total",
			Help: "Events that could not be handed to the broker",
		},
	)

	FanoutSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_fanout_subscribers",
			Help: "Currently connected feed subscribers on this instance",
		},
	)

	SweeperRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_sweeper_runs_total",
			Help: "Expiry sweeper runs by outcome",
		},
		[]string{"outcome"}, // "ok", "abandoned"
	)

	SweeperReclaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_sweeper_reclaimed_total",
			Help: "Documents removed by the expiry sweeper",
		},
		[]string{"kind"}, // "beacon", "landmark"
	)

	SweeperDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_sweeper_duration_seconds",
			Help:    "Duration of expiry sweeper runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	ShortcodeRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_shortcode_retries_total",
			Help: "Shortcode allocations retried after a collision",
		},
		[]string{"kind"}, // "group", "beacon"
	)

	CascadeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_cascade_failures_total",
			Help: "Multi-document cascades interrupted part way",
		},
		[]string{"cascade"},
	)

	ReconcileRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_reconcile_repairs_total",
			Help: "Asymmetric references repaired by the reconciler",
		},
		[]string{"kind"},
	)
)

// RecordFanout adds per-subscriber outcomes of one broadcast.
func RecordFanout(delivered, filtered, dropped int) {
	if delivered > 0 {
		FanoutEvents.WithLabelValues(ResultDelivered).Add(float64(delivered))
	}
	if filtered > 0 {
		FanoutEvents.WithLabelValues(ResultFiltered).Add(float64(filtered))
	}
	if dropped > 0 {
		FanoutEvents.WithLabelValues(ResultDropped).Add(float64(dropped))
	}
}

// RecordSweep records one sweeper run.
func RecordSweep(duration time.Duration, beacons, landmarks int, err error) {
	SweeperDuration.Observe(duration.Seconds())
	if err != nil {
		SweeperRuns.WithLabelValues("abandoned").Inc()
		return
	}
	SweeperRuns.WithLabelValues("ok").Inc()
	SweeperReclaimed.WithLabelValues("beacon").Add(float64(beacons))
	SweeperReclaimed.WithLabelValues("landmark").Add(float64(landmarks))
}
