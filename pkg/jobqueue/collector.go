package jobqueue

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes tracker metrics in Prometheus format. Values are read
// on every scrape, so the collector holds no state of its own and a single
// instance may be registered once per tracker.
type Collector struct {
	tracker *Tracker

	processed   *prometheus.Desc
	succeeded   *prometheus.Desc
	failed      *prometheus.Desc
	active      *prometheus.Desc
	avgDuration *prometheus.Desc
}

// NewCollector builds a collector over the given tracker. Register it
// with a prometheus.Registerer to expose the metrics.
func NewCollector(tracker *Tracker, namespace string) *Collector {
	if namespace == "" {
		namespace = "queuekit"
	}
	labels := []string{"queue"}
	return &Collector{
		tracker: tracker,
		processed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "jobs", "processed_total"),
			"Total jobs that finished processing, successfully or not.",
			labels, nil,
		),
		succeeded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "jobs", "succeeded_total"),
			"Total jobs that completed successfully.",
			labels, nil,
		),
		failed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "jobs", "failed_total"),
			"Total jobs that exhausted their attempts.",
			labels, nil,
		),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "jobs", "active"),
			"Jobs currently being processed.",
			labels, nil,
		),
		avgDuration: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "jobs", "avg_duration_seconds"),
			"Average processing duration per queue.",
			labels, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.processed
	ch <- c.succeeded
	ch <- c.failed
	ch <- c.active
	ch <- c.avgDuration
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, m := range c.tracker.AllMetrics() {
		ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(m.TotalProcessed), name)
		ch <- prometheus.MustNewConstMetric(c.succeeded, prometheus.CounterValue, float64(m.Succeeded), name)
		ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(m.Failed), name)
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(len(m.ActiveJobs)), name)
		ch <- prometheus.MustNewConstMetric(c.avgDuration, prometheus.GaugeValue, m.AverageProcessingTime.Seconds(), name)
	}
}
