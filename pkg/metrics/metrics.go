// Package metrics declares the Prometheus collectors exported by aegis.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_predictions_total",
		Help: "Total number of scored transactions, labelled by ensemble decision.",
	}, []string{"label"})

	PredictionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_prediction_errors_total",
		Help: "Total number of failed scoring requests, labelled by reason.",
	}, []string{"reason"})

	PredictionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aegis_prediction_duration_seconds",
		Help:    "Latency of encode, scale and score for one transaction.",
		Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	IngestOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_ingest_transactions_total",
		Help: "Transactions handled by the ingestion pipeline, labelled by terminal state.",
	}, []string{"outcome"})

	StoreWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aegis_store_write_duration_seconds",
		Help:    "Latency of result store upserts.",
		Buckets: prometheus.DefBuckets,
	})

	Thresholds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aegis_ensemble_threshold",
		Help: "Current ensemble thresholds, labelled by detector.",
	}, []string{"detector"})
)
