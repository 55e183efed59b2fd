package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "xlog"
	subsystem = "ingest"
)

// Collector exports the counters of one BufferedSink.
type Collector struct {
	sink *BufferedSink

	accepted *prometheus.Desc
	dropped  *prometheus.Desc
	written  *prometheus.Desc
	failed   *prometheus.Desc
	unflush  *prometheus.Desc
	queued   *prometheus.Desc
	capacity *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(s *BufferedSink, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, constLabels)
	}
	return &Collector{
		sink:     s,
		accepted: desc("accepted_total", "Records enqueued by producers."),
		dropped:  desc("dropped_total", "Records rejected because the queue was full."),
		written:  desc("written_total", "Records appended to the log."),
		failed:   desc("failed_total", "Records the log refused."),
		unflush:  desc("unflushed_total", "Written records followed by a failed flush."),
		queued:   desc("queue_length", "Records waiting in the queue."),
		capacity: desc("queue_capacity", "Size of the queue."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.accepted
	ch <- c.dropped
	ch <- c.written
	ch <- c.failed
	ch <- c.unflush
	ch <- c.queued
	ch <- c.capacity
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.sink.Stats()
	ch <- prometheus.MustNewConstMetric(c.accepted, prometheus.CounterValue, float64(st.Accepted))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(st.Dropped))
	ch <- prometheus.MustNewConstMetric(c.written, prometheus.CounterValue, float64(st.Written))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(st.Failed))
	ch <- prometheus.MustNewConstMetric(c.unflush, prometheus.CounterValue, float64(st.Unflushed))
	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(c.sink.Len()))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(c.sink.Cap()))
}
