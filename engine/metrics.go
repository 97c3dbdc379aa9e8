package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tarcisiozf/dslot/slots"
)

var (
	slotAssignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dslot",
			Subsystem: "engine",
			Name:      "slot_assignments_total",
			Help:      "Total number of identifiers assigned to a slot.",
		},
		[]string{"algorithm", "result"})
	shardLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dslot",
			Subsystem: "engine",
			Name:      "shard_lookups_total",
			Help:      "Total number of slot to shard lookups.",
		},
		[]string{"result"})
	batchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dslot",
			Subsystem: "engine",
			Name:      "batch_duration_seconds",
			Help:      "Amount of time spent assigning a batch of identifiers, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"algorithm"})
	bandTableUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dslot",
			Subsystem: "engine",
			Name:      "band_table_updates_total",
			Help:      "Total number of band tables received from zookeeper.",
		})
)

func init() {
	prometheus.MustRegister(slotAssignmentsTotal)
	prometheus.MustRegister(shardLookupsTotal)
	prometheus.MustRegister(batchDurationSeconds)
	prometheus.MustRegister(bandTableUpdatesTotal)
}

func observeSlot(algorithm string, missing bool) {
	result := "assigned"
	if missing {
		result = "missing"
	}
	slotAssignmentsTotal.WithLabelValues(algorithm, result).Inc()
}

func observeShard(shard string) {
	result := "found"
	if shard == slots.ErrorShard {
		result = "error"
	}
	shardLookupsTotal.WithLabelValues(result).Inc()
}
