// Package metrics exposes the engine's Prometheus collectors. Collectors
// are registered on the default registry and served by the ops API's
// /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is the number of jobs waiting in the priority queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trendharvest_queue_depth",
		Help: "Number of download jobs waiting in the priority queue.",
	})

	// InFlight is the number of downloads currently running.
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trendharvest_downloads_in_flight",
		Help: "Number of download jobs currently running.",
	})

	// DownloadsTotal counts finished download attempts by outcome
	// (success, partial, failed).
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendharvest_downloads_total",
		Help: "Finished download attempts by outcome.",
	}, []string{"outcome"})

	// DownloadDuration observes wall time of download attempts.
	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trendharvest_download_duration_seconds",
		Help:    "Wall time of download attempts.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// SweepDuration observes discovery and channel-scan sweeps.
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trendharvest_sweep_duration_seconds",
		Help:    "Wall time of discovery and channel-scan sweeps.",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"job_type"})

	// HTTPRequests counts ops API requests.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendharvest_http_requests_total",
		Help: "Ops API requests by method, route and status code.",
	}, []string{"method", "route", "code"})
)
