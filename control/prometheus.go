// File: control/prometheus.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus adapter for the metrics registry: one gauge family with
// source/counter labels, collected by polling registered sources.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromCollector adapts a MetricsRegistry to a prometheus.Collector.
type PromCollector struct {
	reg  *MetricsRegistry
	desc *prometheus.Desc
}

var _ prometheus.Collector = (*PromCollector)(nil)

// NewPromCollector creates a collector exporting every registered counter
// under <namespace>_fiber_counter{source,counter}.
func NewPromCollector(namespace string, reg *MetricsRegistry) *PromCollector {
	if namespace == "" {
		namespace = "hioload"
	}
	return &PromCollector{
		reg: reg,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "fiber", "counter"),
			"Fiber core counter snapshot.",
			[]string{"source", "counter"},
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PromCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *PromCollector) Collect(ch chan<- prometheus.Metric) {
	for source, counters := range c.reg.Snapshot() {
		for name, v := range counters {
			ch <- prometheus.MustNewConstMetric(
				c.desc, prometheus.GaugeValue, float64(v), source, name)
		}
	}
}
