package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion, index and transfer validation metrics.
var (
	IngestionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_total",
			Help:      "Document ingestions by outcome",
		},
		[]string{"status"}, // "processed" / "failed" / "rejected"
	)

	IngestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Duration of a full document ingestion",
			Buckets:   prometheus.ExponentialBuckets(0.005, 3, 9),
		},
	)

	IndexEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Number of entries in the vector index",
		},
	)

	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfer decisions by terminal status and reason",
		},
		[]string{"status", "reason"},
	)

	TransferStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_stage_duration_seconds",
			Help:      "Time spent in each transfer validation stage",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.25, 1},
		},
		[]string{"stage"},
	)

	SanctionsChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sanctions_checks_total",
			Help:      "Sanctions checks by result and deciding source",
		},
		[]string{"result", "source"}, // result "clear"/"match", source "static"/"retrieval"/"none"
	)
)
