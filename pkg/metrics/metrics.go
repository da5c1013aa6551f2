// Package metrics provides Prometheus metrics for fern runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NodesEmittedTotal tracks nodes handed to the graph sinks by type
	NodesEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "materializer",
			Name:      "nodes_emitted_total",
			Help:      "Total number of nodes emitted by type",
		},
		[]string{"type"},
	)

	// AssetRequestsTotal tracks asset cache outcomes
	AssetRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "assets",
			Name:      "requests_total",
			Help:      "Total number of asset materialization requests by result",
		},
		[]string{"result"},
	)

	// AssetDownloadDuration tracks asset store download duration
	AssetDownloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "assets",
			Name:      "download_duration_seconds",
			Help:      "Duration of asset downloads in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// RewrittenURLsTotal tracks URLs seen by the embedded content rewriter
	RewrittenURLsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "rewriter",
			Name:      "urls_total",
			Help:      "Total number of URLs found in embedded content by outcome",
		},
		[]string{"outcome"},
	)

	// CollectionDuration tracks how long fetching and processing a collection took
	CollectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "source",
			Name:      "collection_duration_seconds",
			Help:      "Duration of collection processing in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type"},
	)

	// SinkWritesTotal tracks graph sink writes
	SinkWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sink",
			Name:      "writes_total",
			Help:      "Total number of graph sink writes by sink and status",
		},
		[]string{"sink", "status"},
	)

	// RunsTotal tracks completed runs
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Total number of sourcing runs by status",
		},
		[]string{"status"},
	)
)

// RecordNode records an emitted node
func RecordNode(nodeType string) {
	NodesEmittedTotal.WithLabelValues(nodeType).Inc()
}

// RecordAsset records an asset request outcome (hit, miss, coalesced, failed, disabled)
func RecordAsset(result string) {
	AssetRequestsTotal.WithLabelValues(result).Inc()
}

// RecordURL records a rewriter URL outcome (rewritten, relative, external, failed)
func RecordURL(outcome string) {
	RewrittenURLsTotal.WithLabelValues(outcome).Inc()
}

// RecordSinkWrite records a graph sink write
func RecordSinkWrite(sink string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SinkWritesTotal.WithLabelValues(sink, status).Inc()
}
