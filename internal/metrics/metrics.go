package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squish_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squish_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "squish_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Job metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squish_uploads_total",
			Help: "Upload attempts by outcome",
		},
		[]string{"result"}, // "accepted", "rejected"
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "squish_upload_bytes_total",
			Help: "Total bytes of accepted uploads",
		},
	)

	JobsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squish_jobs_started_total",
			Help: "Compression attempts started",
		},
		[]string{"codec", "mode"},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squish_jobs_finished_total",
			Help: "Compression attempts finished, by final status",
		},
		[]string{"codec", "mode", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squish_job_duration_seconds",
			Help:    "Wall time of a compression attempt, including time waiting for an encoder slot",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"codec", "mode"},
	)

	CompressionRatio = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squish_compression_ratio",
			Help:    "Output size divided by input size for completed jobs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5},
		},
		[]string{"codec", "mode"},
	)

	JobsEvictedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squish_jobs_evicted_total",
			Help: "Jobs removed by the cleanup sweeper, by status at eviction",
		},
		[]string{"status"},
	)
)
