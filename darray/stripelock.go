package darray

import (
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/pgasrt/pgasrt/cmn/debug"
)

// stripeLockTable backs the Atomic wrapper's fallback path for element
// widths without a native hardware atomic (8- and 16-bit): a fixed-size
// table of spinlocks (plain sync.Mutex; cooperative, not spin-wait,
// since Go mutexes already park the goroutine), stripe chosen by
// hashing (array_id, local_offset). Stripe count must be a power of
// two so the hash reduces to a mask, per cmn.Config.
type stripeLockTable struct {
	mask  uint64
	locks []sync.Mutex
}

func newStripeLockTable(stripeCount int) *stripeLockTable {
	debug.Assert(stripeCount > 0 && stripeCount&(stripeCount-1) == 0, "stripeLockTable: stripe count must be a power of two")
	return &stripeLockTable{mask: uint64(stripeCount - 1), locks: make([]sync.Mutex, stripeCount)}
}

func (t *stripeLockTable) stripeFor(arrayID uint64, localOffset int) *sync.Mutex {
	h := xxhash.New64()
	var key [16]byte
	for i := 0; i < 8; i++ {
		key[i] = byte(arrayID >> (8 * i))
	}
	off := uint64(localOffset)
	for i := 0; i < 8; i++ {
		key[8+i] = byte(off >> (8 * i))
	}
	_, _ = h.Write(key[:])
	idx := h.Sum64() & t.mask
	return &t.locks[idx]
}

func (t *stripeLockTable) lock(arrayID uint64, localOffset int)   { t.stripeFor(arrayID, localOffset).Lock() }
func (t *stripeLockTable) unlock(arrayID uint64, localOffset int) { t.stripeFor(arrayID, localOffset).Unlock() }

// needsStripeLock reports whether width (bytes) lacks a native atomic
// instruction on the platforms this runtime targets -- 1- and 2-byte
// elements fall back to the stripe table; 4- and 8-byte elements use
// the sync/atomic primitives in atomicprim.go directly.
func needsStripeLock(width int) bool { return width == 1 || width == 2 }
