// Package exec provides the per-PE worker pool and the cooperative async
// trampoline that the Iterator Engine and Operation Engine schedule work
// on. Grounded on transport/collect.go's stream-collector run loop
// (a single select over a ready channel, a ticker, and a stop channel)
// and on the mountpath-jogger-group fan-out pattern from
// xs/lom_warmup.go and reb/resilver.go (fixed goroutines plus a
// sync.WaitGroup).
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package exec

import (
	"sync"

	"github.com/pgasrt/pgasrt/cmn/cos"
	"github.com/pgasrt/pgasrt/cmn/debug"
)

// Pool is a fixed-size worker pool. It is the only place in the runtime
// core that spawns goroutines for user-submitted work (iterator bodies,
// batched op handlers) -- each PE runs a fixed-size pool of worker
// threads rather than spawning unbounded goroutines per request.
type Pool struct {
	numWorkers int
	tasks      chan func()
	stopCh     *cos.StopCh
	wg         sync.WaitGroup
}

// interface guard
var _ cos.Runner = (*Pool)(nil)

func NewPool(numWorkers int) *Pool {
	debug.Assert(numWorkers > 0, "NewPool: numWorkers must be positive")
	return &Pool{
		numWorkers: numWorkers,
		tasks:      make(chan func(), numWorkers*4),
		stopCh:     cos.NewStopCh(),
	}
}

func (p *Pool) Name() string { return "worker-pool" }

// NumWorkers reports the fixed goroutine count, used by callers that
// need to slice work into that many contiguous ranges ahead of FanOut.
func (p *Pool) NumWorkers() int { return p.numWorkers }

// Run starts the fixed worker goroutines and blocks until Stop is
// called. Satisfies cos.Runner so the pool can be started/stopped the
// same way a stream collector is.
func (p *Pool) Run() error {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	<-p.stopCh.Listen()
	p.wg.Wait()
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case fn, ok := <-p.tasks:
			if !ok {
				return
			}
			fn()
		case <-p.stopCh.Listen():
			return
		}
	}
}

func (p *Pool) Stop(error) {
	p.stopCh.Close()
}

// Submit enqueues fn to run on some worker goroutine.
func (p *Pool) Submit(fn func()) {
	p.tasks <- fn
}

// FanOut runs every fn concurrently on the pool and blocks until all
// have returned -- the building block for Iterator Engine's for_each,
// which slices a PE's local elements into numWorkers contiguous ranges
// and schedules one fn per slice.
func (p *Pool) FanOut(fns []func()) {
	var wg sync.WaitGroup
	wg.Add(len(fns))
	for _, fn := range fns {
		fn := fn
		p.Submit(func() {
			defer wg.Done()
			fn()
		})
	}
	wg.Wait()
}
