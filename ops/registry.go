// Package ops implements the Operation Engine: the batched remote
// read/modify/write pipeline every Consistency Wrapper in darray
// dispatches through, single-element ops included (a single-element op
// is submitted as a batch of one). Grounded on xs/tcobjs.go's
// per-destination workCh/pending-map/atomic-countdown pipeline, and on
// xreg/bucket.go's mutex-guarded factory registry for the op-kind
// table, so new op kinds can be added by registering a u8 tag rather
// than editing a switch statement.
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package ops

import (
	"sync"

	"github.com/pgasrt/pgasrt/cmn"
)

// OpSpec is the registry's entry for one op kind: enough metadata for
// the Operation Engine and the Consistency Wrappers to validate a
// submission before it ever reaches the wire -- a TypeUnsupported op
// fails at submission when it can't be caught at compile time.
type OpSpec struct {
	Kind            cmn.OpKind
	Name            string
	Bitwise         bool // Integer T only
	CompareExchange bool // carries (expected, desired[, epsilon]) rather than one operand
	RequiresEpsilon bool // compare-exchange-epsilon specifically

	// ApplyBits computes a bitwise op directly on the raw bit pattern,
	// letting rawExec/atomicExec dispatch fetch_bit_or/and/xor (and any
	// bitwise kind registered later) without a type switch of their own.
	// nil for non-bitwise kinds.
	ApplyBits func(prior, operand uint64) uint64
}

// Registry is a mutex-guarded map from op-kind tag to OpSpec, following
// xreg.Renewable's registration idiom (register once at init,
// read-mostly afterward).
type Registry struct {
	mu    sync.RWMutex
	specs map[cmn.OpKind]OpSpec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[cmn.OpKind]OpSpec)}
}

func (r *Registry) Register(spec OpSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Kind] = spec
}

func (r *Registry) Lookup(kind cmn.OpKind) (OpSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[kind]
	return spec, ok
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns the process-wide registry pre-populated with
// the eleven standard op kinds every Consistency Wrapper exposes, built
// once and shared thereafter. ops.Engine and the darray wrappers consult
// only this registry; an op kind registered on a separate Registry built
// with NewRegistry is not seen by them.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := NewRegistry()
		r.Register(OpSpec{Kind: cmn.OpLoad, Name: "load"})
		r.Register(OpSpec{Kind: cmn.OpStore, Name: "store"})
		r.Register(OpSpec{Kind: cmn.OpFetchAdd, Name: "fetch_add"})
		r.Register(OpSpec{Kind: cmn.OpFetchSub, Name: "fetch_sub"})
		r.Register(OpSpec{Kind: cmn.OpFetchMul, Name: "fetch_mul"})
		r.Register(OpSpec{Kind: cmn.OpFetchDiv, Name: "fetch_div"})
		r.Register(OpSpec{Kind: cmn.OpFetchBitOr, Name: "fetch_bit_or", Bitwise: true,
			ApplyBits: func(prior, operand uint64) uint64 { return prior | operand }})
		r.Register(OpSpec{Kind: cmn.OpFetchBitAnd, Name: "fetch_bit_and", Bitwise: true,
			ApplyBits: func(prior, operand uint64) uint64 { return prior & operand }})
		r.Register(OpSpec{Kind: cmn.OpFetchBitXor, Name: "fetch_bit_xor", Bitwise: true,
			ApplyBits: func(prior, operand uint64) uint64 { return prior ^ operand }})
		r.Register(OpSpec{Kind: cmn.OpCompareExchange, Name: "compare_exchange", CompareExchange: true})
		r.Register(OpSpec{Kind: cmn.OpCompareExchangeEpsilon, Name: "compare_exchange_epsilon", CompareExchange: true, RequiresEpsilon: true})
		defaultRegistry = r
	})
	return defaultRegistry
}
