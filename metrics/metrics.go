// Package metrics exposes the runtime's two observable metrics --
// cumulative bytes sent per PE and completion counts per op kind -- as
// Prometheus collectors, following the wider aistore stack's real
// dependency on github.com/prometheus/client_golang.
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps a dedicated prometheus.Registry so multiple in-process
// PEs (as used by the package tests) don't collide on the default,
// process-global registry.
type Registry struct {
	reg          *prometheus.Registry
	bytesSent    *prometheus.CounterVec
	opCompletion *prometheus.CounterVec
}

// NewRegistry builds and registers the runtime core's collectors. Called
// once per World at build time (Design Note "global mutable state":
// reached only through the World handle, never an ambient static).
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}
	r.bytesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pgasrt_bytes_sent_total",
		Help: "Cumulative bytes sent by this PE over the transport fabric.",
	}, []string{"pe"})
	r.opCompletion = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pgasrt_op_completions_total",
		Help: "Completion counts per remote operation kind.",
	}, []string{"op_kind"})
	r.reg.MustRegister(r.bytesSent, r.opCompletion)
	return r
}

// AddBytesSent records n additional bytes sent by the given PE rank.
func (r *Registry) AddBytesSent(pe int, n int) {
	r.bytesSent.WithLabelValues(strconv.Itoa(pe)).Add(float64(n))
}

// IncOpCompletion records one completed operation of the given kind.
func (r *Registry) IncOpCompletion(opKind string) {
	r.opCompletion.WithLabelValues(opKind).Inc()
}

// Gather exposes the underlying registry for scraping/tests.
func (r *Registry) Gather() ([]*prometheus.MetricFamily, error) {
	return r.reg.Gather()
}
