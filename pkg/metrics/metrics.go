// Package metrics provides Prometheus metrics for the Willow service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeNoOp    = "noop"
)

var (
	// TreeMutationsTotal tracks tree mutations by operation and outcome
	TreeMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "tree",
			Name:      "mutations_total",
			Help:      "Total number of tree mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// MergesTotal tracks executed merges by trigger and outcome
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "merge",
			Name:      "merges_total",
			Help:      "Total number of tree merges by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	// MergeDuration tracks how long a merge unit of work takes
	MergeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "willow",
			Subsystem: "merge",
			Name:      "duration_seconds",
			Help:      "Duration of tree merges in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"trigger"},
	)

	// MergeJoinNodes tracks how many join nodes each merge collapsed
	MergeJoinNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "willow",
			Subsystem: "merge",
			Name:      "join_nodes",
			Help:      "Number of join nodes collapsed per merge",
			Buckets:   []float64{1, 2, 3, 5, 10, 25},
		},
	)

	// MergeDroppedLinks tracks parentage links removed while reconciling trees
	MergeDroppedLinks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "merge",
			Name:      "dropped_links_total",
			Help:      "Total number of parentage links dropped during merges by reason",
		},
		[]string{"reason"},
	)

	// InviteTransitionsTotal tracks invite state changes
	InviteTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "invite",
			Name:      "transitions_total",
			Help:      "Total number of invite transitions by target status",
		},
		[]string{"status"},
	)

	// LockFailuresTotal tracks tree locks that could not be taken
	LockFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "lock",
			Name:      "failures_total",
			Help:      "Total number of tree lock acquisition failures",
		},
		[]string{"operation"},
	)

	// EventsPublishedTotal tracks domain events handed to Kafka
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "kafka",
			Name:      "events_published_total",
			Help:      "Total number of tree events published by status",
		},
		[]string{"status"},
	)
)

// RecordMutation records a tree mutation metric
func RecordMutation(operation string, err error) {
	TreeMutationsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

// RecordMerge records a completed merge attempt
func RecordMerge(trigger, outcome string, durationSeconds float64, joinNodes int) {
	MergesTotal.WithLabelValues(trigger, outcome).Inc()
	MergeDuration.WithLabelValues(trigger).Observe(durationSeconds)
	if outcome == OutcomeSuccess {
		MergeJoinNodes.Observe(float64(joinNodes))
	}
}

// RecordDroppedLink records a parentage link dropped during a merge
func RecordDroppedLink(reason string) {
	MergeDroppedLinks.WithLabelValues(reason).Inc()
}

// RecordInviteTransition records an invite moving to status
func RecordInviteTransition(status string) {
	InviteTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordLockFailure records a tree lock that could not be taken
func RecordLockFailure(operation string) {
	LockFailuresTotal.WithLabelValues(operation).Inc()
}

// RecordEventsPublished records a batch handed to the producer
func RecordEventsPublished(status string, count int) {
	EventsPublishedTotal.WithLabelValues(status).Add(float64(count))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
