package fraud

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_fraud_evaluations_total",
			Help: "Total number of fraud evaluations by decision",
		},
		[]string{"decision"},
	)

	evaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nexus_fraud_evaluation_duration_seconds",
			Help:    "Fraud evaluation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	engineFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_fraud_engine_failures_total",
			Help: "Total number of scoring engine failures by engine",
		},
		[]string{"engine"},
	)
)
