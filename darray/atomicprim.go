package darray

import (
	"sync/atomic"
	"unsafe"
)

// Native-width (4- and 8-byte) lock-free primitives over a byte buffer.
// go.uber.org/atomic (used elsewhere in this module, e.g.
// transport/loopback.go's byte counters) only wraps values it owns; it
// has no address-based API for operating in place on a shared []byte,
// so this narrow corner uses the standard library's sync/atomic with an
// unsafe.Pointer cast -- the idiomatic Go pattern for lock-free access
// into an existing buffer, and the one piece of this wrapper with no
// ecosystem substitute (see DESIGN.md).

func atomicLoadWidth(buf []byte, width int) uint64 {
	switch width {
	case 4:
		return uint64(atomic.LoadUint32((*uint32)(unsafe.Pointer(&buf[0]))))
	case 8:
		return atomic.LoadUint64((*uint64)(unsafe.Pointer(&buf[0])))
	default:
		panic("darray: atomicLoadWidth: not a native width")
	}
}

func atomicCASWidth(buf []byte, width int, old, new_ uint64) bool {
	switch width {
	case 4:
		return atomic.CompareAndSwapUint32((*uint32)(unsafe.Pointer(&buf[0])), uint32(old), uint32(new_))
	case 8:
		return atomic.CompareAndSwapUint64((*uint64)(unsafe.Pointer(&buf[0])), old, new_)
	default:
		panic("darray: atomicCASWidth: not a native width")
	}
}

func atomicStoreWidth(buf []byte, width int, v uint64) {
	switch width {
	case 4:
		atomic.StoreUint32((*uint32)(unsafe.Pointer(&buf[0])), uint32(v))
	case 8:
		atomic.StoreUint64((*uint64)(unsafe.Pointer(&buf[0])), v)
	default:
		panic("darray: atomicStoreWidth: not a native width")
	}
}
