// Package cluster provides World/Team bootstrap and the collective
// Barrier rendezvous -- the only synchronous cross-PE operation the
// rest of the runtime core relies on. Grounded on aistore's cluster
// membership conventions (ais/keepalive.go, ais/prxclu.go's Smap)
// scaled down to a static, non-fault-tolerant membership list: fault
// tolerance is an explicit non-goal here.
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package cluster

import (
	"github.com/golang/glog"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/exec"
	"github.com/pgasrt/pgasrt/metrics"
	"github.com/pgasrt/pgasrt/transport"
)

// World is the process-wide bootstrap object: one World build produces
// `size` PE handles sharing a transport fabric, a metrics registry, and
// (per PE) a worker pool and async trampoline. Design Note "global
// mutable state": the worker pool and transport registry are process-
// wide, but are reached only through World/Team/PE handles, never
// through ambient package-level statics.
type World struct {
	cfg     *cmn.Config
	metrics *metrics.Registry
	pes     []*PE
	team    *Team
}

// BuildWorld constructs a `size`-PE in-process world bound to the
// loopback transport (the only Transport this repo ships; a production
// deployment would bind a real fabric behind the same transport.Fabric
// contract). Starts each PE's worker pool and async trampoline.
func BuildWorld(size int, cfg *cmn.Config) (*World, error) {
	if cfg == nil {
		cfg = cmn.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg := metrics.NewRegistry()
	fabrics := transport.NewLoopback(size, reg)

	w := &World{cfg: cfg, metrics: reg}
	w.pes = make([]*PE, size)
	for i := 0; i < size; i++ {
		pool := exec.NewPool(cfg.NumWorkers)
		tramp := exec.NewTrampoline(pool, 0)
		go pool.Run()
		go tramp.Run()
		w.pes[i] = &PE{
			world:      w,
			rank:       i,
			fabric:     fabrics[i],
			pool:       pool,
			trampoline: tramp,
		}
	}
	ranks := make([]int, size)
	for i := range ranks {
		ranks[i] = i
	}
	w.team = &Team{world: w, ranks: ranks, barrier: transport.NewBarrier(size)}
	glog.Infof("pgasrt: world built with %d PEs", size)
	return w, nil
}

func (w *World) NumPEs() int { return len(w.pes) }

// Team returns the default team spanning every PE in the world.
func (w *World) Team() *Team { return w.team }

// PE returns the local execution context for the given world rank.
func (w *World) PE(rank int) *PE { return w.pes[rank] }

// Metrics exposes the world's metrics registry.
func (w *World) Metrics() *metrics.Registry { return w.metrics }

// NewStridedTeam builds a sub-team of every `stride`-th PE starting at
// `start`, for exactly `count` members -- used to exercise a
// distributed reference on a strided sub-team.
func (w *World) NewStridedTeam(start, stride, count int) (*Team, error) {
	if start < 0 || stride <= 0 || count <= 0 {
		return nil, cmn.NewAllocFailed("invalid strided team arch: start=%d stride=%d count=%d", start, stride, count)
	}
	ranks := make([]int, 0, count)
	for i, r := 0, start; i < count; i, r = i+1, r+stride {
		if r >= len(w.pes) {
			return nil, cmn.NewAllocFailed("strided team exceeds world size %d", len(w.pes))
		}
		ranks = append(ranks, r)
	}
	return &Team{world: w, ranks: ranks, barrier: transport.NewBarrier(count)}, nil
}

// Teardown stops every PE's worker pool and trampoline. Mirrors the
// teacher's Runner.Stop discipline at process shutdown.
func (w *World) Teardown() {
	for _, pe := range w.pes {
		pe.trampoline.Stop(nil)
		pe.pool.Stop(nil)
	}
}
