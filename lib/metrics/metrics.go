// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics counts what the shim relayed, captured, and dropped.
//
// The shim is short-lived and has no listening socket, so metrics are
// not scraped. Instead the registry is written once, at exit, in the
// Prometheus text format to a file that node_exporter's textfile
// collector (or a person) can read. A nil *Metrics is valid and
// records nothing, which keeps call sites in tests free of setup.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/ptyshim/lib/arena"
)

const namespace = "ptyshim"

// Metrics holds the shim's counters in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	bytesRead         *prometheus.CounterVec
	bytesWritten      *prometheus.CounterVec
	captures          *prometheus.CounterVec
	discards          *prometheus.CounterVec
	messages          *prometheus.CounterVec
	backChannelErrors prometheus.Counter
	backChannelDrops  *prometheus.CounterVec
	buffers           *prometheus.CounterVec
	childExitCode     prometheus.Gauge
}

// New creates a Metrics with every collector registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bytesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "bytes_read_total",
			Help:      "Bytes read from the child on a relayed stream.",
		}, []string{"stream"}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "bytes_written_total",
			Help:      "Bytes written to the terminal on a relayed stream.",
		}, []string{"stream"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "osc52",
			Name:      "captures_total",
			Help:      "OSC 52 clipboard writes reported on the back-channel.",
		}, []string{"stream"}),
		discards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "osc52",
			Name:      "discarded_total",
			Help:      "OSC 52 sequences suppressed without a report, by reason.",
		}, []string{"stream", "reason"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backchannel",
			Name:      "messages_total",
			Help:      "Back-channel frames written, by message kind.",
		}, []string{"kind"}),
		backChannelErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backchannel",
			Name:      "write_errors_total",
			Help:      "Back-channel frames that could not be written.",
		}),
		backChannelDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backchannel",
			Name:      "dropped_total",
			Help:      "Back-channel messages dropped before writing, by kind and reason.",
		}, []string{"kind", "reason"}),
		buffers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "arena",
			Name:      "buffers_total",
			Help:      "Arena buffer pool activity, by outcome.",
		}, []string{"outcome"}),
		childExitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "exit_code",
			Help:      "Exit code reported for the child command.",
		}),
	}
	m.registry.MustRegister(
		m.bytesRead,
		m.bytesWritten,
		m.captures,
		m.discards,
		m.messages,
		m.backChannelErrors,
		m.backChannelDrops,
		m.buffers,
		m.childExitCode,
	)
	return m
}

// Registry returns the registry holding the shim's collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// AddBytesRead counts bytes read from the child on stream.
func (m *Metrics) AddBytesRead(stream string, count int) {
	if m == nil {
		return
	}
	m.bytesRead.WithLabelValues(stream).Add(float64(count))
}

// AddBytesWritten counts bytes delivered to the terminal on stream.
func (m *Metrics) AddBytesWritten(stream string, count int) {
	if m == nil {
		return
	}
	m.bytesWritten.WithLabelValues(stream).Add(float64(count))
}

// CountCapture counts a clipboard write forwarded on the back-channel.
func (m *Metrics) CountCapture(stream string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(stream).Inc()
}

// CountDiscard counts an OSC 52 sequence dropped for reason.
func (m *Metrics) CountDiscard(stream, reason string) {
	if m == nil {
		return
	}
	m.discards.WithLabelValues(stream, reason).Inc()
}

// CountMessage counts a back-channel frame of the given kind.
func (m *Metrics) CountMessage(kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind).Inc()
}

// CountBackChannelError counts a failed back-channel write.
func (m *Metrics) CountBackChannelError() {
	if m == nil {
		return
	}
	m.backChannelErrors.Inc()
}

// CountBackChannelDrop counts a message discarded without being
// written, leaving the pipe usable.
func (m *Metrics) CountBackChannelDrop(kind, reason string) {
	if m == nil {
		return
	}
	m.backChannelDrops.WithLabelValues(kind, reason).Inc()
}

// RecordPool copies a final pool snapshot into the buffer counters.
// Call it once, after every pipeline has finished.
func (m *Metrics) RecordPool(stats arena.Stats) {
	if m == nil {
		return
	}
	m.buffers.WithLabelValues("allocated").Add(float64(stats.Allocated))
	m.buffers.WithLabelValues("reused").Add(float64(stats.Reused))
	m.buffers.WithLabelValues("dropped").Add(float64(stats.Dropped))
}

// SetChildExitCode records the exit code the shim will return.
func (m *Metrics) SetChildExitCode(code int) {
	if m == nil {
		return
	}
	m.childExitCode.Set(float64(code))
}

// WriteTextfile writes the registry to path in the Prometheus text
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
