// Package diter implements the Iterator Engine: local, distributed, and
// one-sided traversal over a darray.Array, plus the step_by/chunks/
// monotonic combinators. Grounded on exec.Pool.FanOut for the
// parallel-body case (the mountpath-jogger-group fan-out pattern from
// xs/lom_warmup.go) and exec.Trampoline for the suspendable
// for_each_async case.
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package diter

import (
	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/cmn/debug"
	"github.com/pgasrt/pgasrt/darray"
)

// Local iterates the elements of a (sub-)array that a single PE stores
// locally -- the Local Iterator, init(start_i, count) windowed onto
// the PE's own LocalOffsets.
type Local[T cmn.Dist] struct {
	arr   *darray.Array[T]
	pe    *cluster.PE
	elems []int // local storage offsets, in ascending global-index order
	start int
	count int
}

// NewLocal builds a Local iterator over every element arr stores on pe.
func NewLocal[T cmn.Dist](arr *darray.Array[T], pe *cluster.PE) *Local[T] {
	offs := arr.LocalOffsets(pe)
	return &Local[T]{arr: arr, pe: pe, elems: offs, start: 0, count: len(offs)}
}

// Init narrows the iterator to positions [startI, startI+n) of the PE's
// full local element sequence (not relative to an earlier Init), clamped
// to [0, number of local elements) -- init(start_i, count).
func (l *Local[T]) Init(startI, n int) *Local[T] {
	lo, hi := startI, startI+n
	if lo < 0 {
		lo = 0
	}
	if hi > len(l.elems) {
		hi = len(l.elems)
	}
	if hi < lo {
		hi = lo
	}
	return &Local[T]{arr: l.arr, pe: l.pe, elems: l.elems, start: lo, count: hi - lo}
}

func (l *Local[T]) Len() int { return l.count }

// Elem returns the pos'th element in this iterator's current range.
func (l *Local[T]) Elem(pos int) T {
	debug.Assert(pos >= 0 && pos < l.count, "Local.Elem: pos out of range")
	return l.arr.GetLocal(l.pe, l.elems[l.start+pos])
}

// Set writes the pos'th element.
func (l *Local[T]) Set(pos int, v T) {
	debug.Assert(pos >= 0 && pos < l.count, "Local.Set: pos out of range")
	l.arr.SetLocal(l.pe, l.elems[l.start+pos], v)
}

// IteratorIndex is pos's position in the PE's un-windowed element
// sequence (i.e., before any Init narrowing) -- what step_by's
// alignment scan advances against.
func (l *Local[T]) IteratorIndex(pos int) int { return l.start + pos }

// ForEach runs op over every element, fanned out across the PE's fixed
// worker pool in contiguous slices -- for_each, grounded on
// exec.Pool.FanOut.
func (l *Local[T]) ForEach(op func(elem T)) {
	w := l.pe.Pool().NumWorkers()
	if w > l.count {
		w = l.count
	}
	if w <= 0 {
		return
	}
	per := (l.count + w - 1) / w
	fns := make([]func(), 0, w)
	for s := 0; s < l.count; s += per {
		e := s + per
		if e > l.count {
			e = l.count
		}
		s, e := s, e
		fns = append(fns, func() {
			for pos := s; pos < e; pos++ {
				op(l.Elem(pos))
			}
		})
	}
	l.pe.Pool().FanOut(fns)
}

// StepBy skips to every k'th element of the iterator's current range:
// when the iterator's start doesn't already fall on a multiple of k,
// it scans forward (at most k-1 positions) until IteratorIndex aligns.
func (l *Local[T]) StepBy(k int) *StepBy[T] {
	debug.Assert(k > 0, "StepBy: k must be positive")
	bias := 0
	for bias < l.count && (l.start+bias)%k != 0 {
		bias++
	}
	return &StepBy[T]{inner: l, k: k, bias: bias}
}

// Chunks groups the iterator's current range into slices of (at most) k
// consecutive elements -- chunks(k).
func (l *Local[T]) Chunks(k int) *Chunks[T] {
	debug.Assert(k > 0, "Chunks: k must be positive")
	return &Chunks[T]{inner: l, k: k}
}

// Monotonic pairs every element with its position in the iterator's
// current range -- monotonic, used to recover a stable per-PE ordering
// independent of any upstream combinator.
func (l *Local[T]) Monotonic() *Monotonic[T] { return &Monotonic[T]{inner: l} }

// StepBy is the iterator produced by Local.StepBy.
type StepBy[T cmn.Dist] struct {
	inner *Local[T]
	k     int
	bias  int
}

func (s *StepBy[T]) Len() int {
	if s.bias >= s.inner.count {
		return 0
	}
	return (s.inner.count-s.bias+s.k-1)/s.k
}

func (s *StepBy[T]) Elem(pos int) T {
	return s.inner.Elem(s.bias + pos*s.k)
}

func (s *StepBy[T]) IteratorIndex(pos int) int {
	return s.inner.IteratorIndex(s.bias + pos*s.k)
}

// Chunks is the iterator produced by Local.Chunks.
type Chunks[T cmn.Dist] struct {
	inner *Local[T]
	k     int
}

func (c *Chunks[T]) Len() int { return (c.inner.count + c.k - 1) / c.k }

func (c *Chunks[T]) Elem(pos int) []T {
	lo := pos * c.k
	hi := lo + c.k
	if hi > c.inner.count {
		hi = c.inner.count
	}
	out := make([]T, hi-lo)
	for i := range out {
		out[i] = c.inner.Elem(lo + i)
	}
	return out
}

// Monotonic is the iterator produced by Local.Monotonic.
type Monotonic[T cmn.Dist] struct {
	inner *Local[T]
}

func (m *Monotonic[T]) Len() int { return m.inner.count }

func (m *Monotonic[T]) Elem(pos int) (int, T) { return pos, m.inner.Elem(pos) }
