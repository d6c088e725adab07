package metrics

import (
	"time"

	"github.com/coah80/squish/internal/services"
	"github.com/prometheus/client_golang/prometheus"
)

// JobObserver records compressor and sweeper events.
type JobObserver struct{}

func (JobObserver) JobStarted(job services.Job) {
	JobsStartedTotal.WithLabelValues(job.Codec, job.Mode).Inc()
}

func (JobObserver) JobFinished(job services.Job, elapsed time.Duration) {
	JobsFinishedTotal.WithLabelValues(job.Codec, job.Mode, string(job.Status)).Inc()
	JobDuration.WithLabelValues(job.Codec, job.Mode).Observe(elapsed.Seconds())
	if job.Status == services.StatusCompleted && job.OriginalSize > 0 {
		CompressionRatio.WithLabelValues(job.Codec, job.Mode).Observe(float64(job.OutputSize) / float64(job.OriginalSize))
	}
}

func (JobObserver) JobEvicted(job services.Job) {
	JobsEvictedTotal.WithLabelValues(string(job.Status)).Inc()
}

// jobsCollector reports live registry and encoder state at scrape time.
type jobsCollector struct {
	jobs       *services.Registry
	compressor *services.Compressor

	byStatus *prometheus.Desc
	active   *prometheus.Desc
	pending  *prometheus.Desc
}

// RegisterJobs exposes job counts by status and encoder occupancy.
func RegisterJobs(reg prometheus.Registerer, jobs *services.Registry, compressor *services.Compressor) error {
	return reg.Register(&jobsCollector{
		jobs:       jobs,
		compressor: compressor,
		byStatus: prometheus.NewDesc("squish_jobs",
			"Jobs currently held in the registry", []string{"status"}, nil),
		active: prometheus.NewDesc("squish_encodes_active",
			"Encoder processes currently running", nil, nil),
		pending: prometheus.NewDesc("squish_encodes_pending",
			"Accepted compressions not yet finished, including those waiting for a slot", nil, nil),
	})
}

func (c *jobsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.byStatus
	ch <- c.active
	ch <- c.pending
}

func (c *jobsCollector) Collect(ch chan<- prometheus.Metric) {
	for status, n := range c.jobs.CountByStatus() {
		ch <- prometheus.MustNewConstMetric(c.byStatus, prometheus.GaugeValue, float64(n), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(c.compressor.Active()))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(c.compressor.Pending()))
}
