// Package memsys implements the Memory Region contract: pinned byte
// buffers registered with the transport, in two flavors (Shared,
// symmetric across a team; OneSided, owned by one allocator PE).
// Grounded on aistore's memsys.Slab / reb/resilver.go buffer-reuse
// discipline (slab.Alloc()/slab.Free() around a jogger's working
// buffer).
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package memsys

import "sync"

// SlabPool hands out reusable byte buffers bucketed by size class, the
// way aistore's memsys.Slab avoids repeated allocation for the
// short-lived per-chunk buffers a rebalance jogger cycles through. Used
// here for the backing buffers of AllocShared/AllocOneSided regions,
// which Region.Free returns to the pool.
type SlabPool struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

func NewSlabPool() *SlabPool {
	return &SlabPool{pools: make(map[int]*sync.Pool)}
}

func (s *SlabPool) poolFor(size int) *sync.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[size]
	if !ok {
		sz := size
		p = &sync.Pool{New: func() interface{} { return make([]byte, sz) }}
		s.pools[size] = p
	}
	return p
}

// Alloc returns a zero-filled buffer of exactly size bytes, reused from
// the pool when available.
func (s *SlabPool) Alloc(size int) []byte {
	buf := s.poolFor(size).Get().([]byte)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// Free returns buf to the pool for the given size class. buf must have
// been obtained from Alloc(size) and must not be used afterward.
func (s *SlabPool) Free(size int, buf []byte) {
	s.poolFor(size).Put(buf)
}

// DefaultSlabPool is the process-wide slab pool used when callers don't
// need a dedicated one -- reached only through memsys functions, never
// as a package-level mutable registry callers poke directly.
var DefaultSlabPool = NewSlabPool()
