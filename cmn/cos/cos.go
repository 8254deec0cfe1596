// Package cos ("common OS"-ish) provides small utilities shared by the
// long-lived goroutines of the runtime core: a closeable stop channel and
// the Runner lifecycle interface that the worker pool and the async
// trampoline (the per-PE progress loop) implement.
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package cos

import "sync"

// Runner is the lifecycle contract for every long-lived background
// goroutine in the runtime (exec.Pool, exec.Trampoline).
type Runner interface {
	Name() string
	Run() error
	Stop(err error)
}

// StopCh is a once-closeable stop signal safe to Close from any goroutine
// any number of times.
type StopCh struct {
	ch   chan struct{}
	once sync.Once
}

func NewStopCh() *StopCh {
	return &StopCh{ch: make(chan struct{})}
}

func (s *StopCh) Close() {
	s.once.Do(func() { close(s.ch) })
}

func (s *StopCh) Listen() <-chan struct{} { return s.ch }

// MultiSyncMapCount is a shard count for striped lock/map tables. The
// Atomic wrapper's stripe table does not read it; that table is sized
// from cmn.Config.LockStripeCount, whose default has the same value.
const MultiSyncMapCount = 64
