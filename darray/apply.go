package darray

import (
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/ops"
)

// applyArith computes the result of a load/store/fetch-add/sub/mul/div
// given the prior value and operand, both already decoded to T.
// Fetch-bit-or/and/xor never reach here: cmn.Dist includes float types,
// so bitwise operators aren't defined for it the way they are for
// cmn.Integer, and rawExec/atomicExec compute those directly on the raw
// uint64 bit pattern instead of decoding to T first.
func applyArith[T cmn.Dist](opKind cmn.OpKind, prior, operand T) T {
	switch opKind {
	case cmn.OpLoad:
		return prior
	case cmn.OpStore:
		return operand
	case cmn.OpFetchAdd:
		return prior + operand
	case cmn.OpFetchSub:
		return prior - operand
	case cmn.OpFetchMul:
		return prior * operand
	case cmn.OpFetchDiv:
		return prior / operand
	default:
		panic("darray.applyArith: op kind is not an arithmetic op")
	}
}

// isBitwiseUnsupported reports whether opKind is a bitwise op applied to
// a floating-point element type. Checked at submission as a
// TypeUnsupported result rather than left to panic mid-execution.
// Bitwise-ness comes from ops.DefaultRegistry rather than a local switch,
// so a bitwise op kind registered later is covered here automatically.
func isBitwiseUnsupported[T cmn.Dist](opKind cmn.OpKind) bool {
	spec, ok := ops.DefaultRegistry().Lookup(opKind)
	if !ok || !spec.Bitwise {
		return false
	}
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return true
	default:
		return false
	}
}
