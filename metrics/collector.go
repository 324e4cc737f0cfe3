// Package metrics exposes the reliability engine's counters as a
// Prometheus collector, grounded on the prometheus/client_golang usage in
// the wider example pack's operational counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unprotocol/unp/reliability"
)

// Collector samples a reliability.Manager's Metrics snapshot on every
// Collect and exposes it as Prometheus gauges/counters. It implements
// prometheus.Collector directly (a "snapshot" collector) rather than
// incrementing counters at call sites, since reliability.Manager already
// tracks everything internally.
type Collector struct {
	manager *reliability.Manager

	packetsSent          *prometheus.Desc
	packetsRetransmitted *prometheus.Desc
	acksReceived         *prometheus.Desc
	messagesFailed       *prometheus.Desc
	strayAcks            *prometheus.Desc
	averageRTTSeconds    *prometheus.Desc
}

// NewCollector builds a Collector for manager. namespace/subsystem follow
// the usual Prometheus naming convention, e.g. namespace="unp".
func NewCollector(manager *reliability.Manager, namespace string) *Collector {
	ns := namespace
	mkDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(ns, "reliability", name), help, nil, nil)
	}
	return &Collector{
		manager:              manager,
		packetsSent:          mkDesc("packets_sent_total", "Total datagrams sent on first transmission; retransmissions are counted in packets_retransmitted_total."),
		packetsRetransmitted: mkDesc("packets_retransmitted_total", "Total datagrams retransmitted after a resend timeout."),
		acksReceived:         mkDesc("acks_received_total", "Total acks matched to a pending ack entry."),
		messagesFailed:       mkDesc("messages_failed_total", "Total pending acks that timed out without a matching ack."),
		strayAcks:            mkDesc("stray_acks_total", "Total acks received with no matching pending entry."),
		averageRTTSeconds:    mkDesc("average_rtt_seconds", "Rolling average round-trip time of recently acked sends."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsSent
	ch <- c.packetsRetransmitted
	ch <- c.acksReceived
	ch <- c.messagesFailed
	ch <- c.strayAcks
	ch <- c.averageRTTSeconds
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.manager.Metrics()
	ch <- prometheus.MustNewConstMetric(c.packetsSent, prometheus.CounterValue, float64(m.PacketsSent))
	ch <- prometheus.MustNewConstMetric(c.packetsRetransmitted, prometheus.CounterValue, float64(m.PacketsRetransmitted))
	ch <- prometheus.MustNewConstMetric(c.acksReceived, prometheus.CounterValue, float64(m.AcksReceived))
	ch <- prometheus.MustNewConstMetric(c.messagesFailed, prometheus.CounterValue, float64(m.MessagesFailed))
	ch <- prometheus.MustNewConstMetric(c.strayAcks, prometheus.CounterValue, float64(m.StrayAcks))
	ch <- prometheus.MustNewConstMetric(c.averageRTTSeconds, prometheus.GaugeValue, m.AverageRTT.Seconds())
}

var _ prometheus.Collector = (*Collector)(nil)
