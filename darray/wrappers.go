package darray

import (
	"context"
	"sync"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/cmn/debug"
	"github.com/pgasrt/pgasrt/ops"
)

// CompareExchangeResult mirrors the `Ok(prior)`/`Err(prior)`
// compare-exchange outcome of the original runtime.
type CompareExchangeResult[T cmn.Dist] struct {
	Prior   T
	Success bool
}

func rawExec[T cmn.Dist](arr *Array[T], pe *cluster.PE, localOffset int, opKind cmn.OpKind, operandBits uint64) uint64 {
	rank, ok := arr.team.LocalRank(pe.Rank())
	debug.Assert(ok, "darray: exec on a PE outside the array's team")
	buf := arr.shards[rank].AsSlice()
	byteOff := localOffset * arr.elemSize
	priorBits := cmn.ReadBitsWidth(buf[byteOff:], arr.elemSize)

	var resultBits uint64
	if spec, found := ops.DefaultRegistry().Lookup(opKind); found && spec.Bitwise {
		resultBits = spec.ApplyBits(priorBits, operandBits)
	} else {
		prior := cmn.FromBits[T](priorBits)
		operand := cmn.FromBits[T](operandBits)
		resultBits = cmn.ToBits(applyArith(opKind, prior, operand))
	}
	if opKind != cmn.OpLoad {
		cmn.WriteBitsWidth(buf[byteOff:], arr.elemSize, resultBits)
	}
	return priorBits
}

func rawCAS[T cmn.Dist](arr *Array[T], pe *cluster.PE, localOffset int, opKind cmn.OpKind, expectedBits, desiredBits, epsilonBits uint64) (uint64, bool) {
	rank, ok := arr.team.LocalRank(pe.Rank())
	debug.Assert(ok, "darray: cas on a PE outside the array's team")
	buf := arr.shards[rank].AsSlice()
	byteOff := localOffset * arr.elemSize
	priorBits := cmn.ReadBitsWidth(buf[byteOff:], arr.elemSize)

	spec, found := ops.DefaultRegistry().Lookup(opKind)
	if !found || !spec.CompareExchange {
		panic("darray.rawCAS: not a compare-exchange op kind")
	}
	var success bool
	if spec.RequiresEpsilon {
		prior := cmn.FromBits[T](priorBits)
		expected := cmn.FromBits[T](expectedBits)
		epsilon := cmn.FromBits[T](epsilonBits)
		success = absT(prior-expected) <= epsilon
	} else {
		success = priorBits == expectedBits
	}
	if success {
		cmn.WriteBitsWidth(buf[byteOff:], arr.elemSize, desiredBits)
	}
	return priorBits, success
}

func absT[T cmn.Dist](v T) T {
	var zero T
	if v < zero {
		return -v
	}
	return v
}

func validateOpKind[T cmn.Dist](opKind cmn.OpKind) error {
	if isBitwiseUnsupported[T](opKind) {
		var zero T
		return cmn.NewTypeUnsupported(opKind.String(), typeName(zero))
	}
	return nil
}

func typeName[T cmn.Dist](zero T) string {
	switch any(zero).(type) {
	case int8:
		return "int8"
	case int16:
		return "int16"
	case int32:
		return "int32"
	case int64:
		return "int64"
	case uint8:
		return "uint8"
	case uint16:
		return "uint16"
	case uint32:
		return "uint32"
	case uint64:
		return "uint64"
	case float32:
		return "float32"
	case float64:
		return "float64"
	default:
		return "unknown"
	}
}

// ---- Unsafe ----

// Unsafe performs no cross-thread/PE coordination; data races under
// concurrent access are the caller's responsibility.
type Unsafe[T cmn.Dist] struct {
	arr    *Array[T]
	engine *ops.Engine
}

func NewUnsafe[T cmn.Dist](arr *Array[T]) *Unsafe[T] {
	exec := func(pe *cluster.PE, localOffset int, opKind cmn.OpKind, operand uint64) uint64 {
		return rawExec(arr, pe, localOffset, opKind, operand)
	}
	cas := func(pe *cluster.PE, localOffset int, opKind cmn.OpKind, expected, desired, eps uint64) (uint64, bool) {
		return rawCAS(arr, pe, localOffset, opKind, expected, desired, eps)
	}
	return &Unsafe[T]{arr: arr, engine: ops.NewEngine(arr.team, arr, arr.ID(), exec, cas, nil, nil)}
}

func (w *Unsafe[T]) Load(ctx context.Context, issuer *cluster.PE, index int) (T, error) {
	return singleElem(ctx, w.engine, issuer, cmn.OpLoad, index, 0)
}
func (w *Unsafe[T]) Store(ctx context.Context, issuer *cluster.PE, index int, v T) error {
	_, err := singleElem(ctx, w.engine, issuer, cmn.OpStore, index, cmn.ToBits(v))
	return err
}
func (w *Unsafe[T]) FetchAdd(ctx context.Context, issuer *cluster.PE, index int, delta T) (T, error) {
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchAdd, index, cmn.ToBits(delta))
}
func (w *Unsafe[T]) FetchSub(ctx context.Context, issuer *cluster.PE, index int, delta T) (T, error) {
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchSub, index, cmn.ToBits(delta))
}
func (w *Unsafe[T]) FetchMul(ctx context.Context, issuer *cluster.PE, index int, factor T) (T, error) {
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchMul, index, cmn.ToBits(factor))
}
func (w *Unsafe[T]) FetchDiv(ctx context.Context, issuer *cluster.PE, index int, divisor T) (T, error) {
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchDiv, index, cmn.ToBits(divisor))
}
func (w *Unsafe[T]) FetchBitOr(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitOr); err != nil {
		return *new(T), err
	}
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchBitOr, index, cmn.ToBits(mask))
}
func (w *Unsafe[T]) FetchBitAnd(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitAnd); err != nil {
		return *new(T), err
	}
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchBitAnd, index, cmn.ToBits(mask))
}
func (w *Unsafe[T]) FetchBitXor(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitXor); err != nil {
		return *new(T), err
	}
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchBitXor, index, cmn.ToBits(mask))
}
func (w *Unsafe[T]) CompareExchange(ctx context.Context, issuer *cluster.PE, index int, expected, desired T) (CompareExchangeResult[T], error) {
	return singleCAS(ctx, w.engine, issuer, cmn.OpCompareExchange, index, expected, desired, *new(T))
}
func (w *Unsafe[T]) CompareExchangeEpsilon(ctx context.Context, issuer *cluster.PE, index int, expected, desired, epsilon T) (CompareExchangeResult[T], error) {
	return singleCAS(ctx, w.engine, issuer, cmn.OpCompareExchangeEpsilon, index, expected, desired, epsilon)
}

// Batch variants: all named indices in one active message per
// destination.
func (w *Unsafe[T]) BatchFetchAdd(ctx context.Context, issuer *cluster.PE, indices []int, operand T) ([]T, error) {
	return batchElem(ctx, w.engine, issuer, cmn.OpFetchAdd, indices, operand)
}
func (w *Unsafe[T]) BatchFetchBitOr(ctx context.Context, issuer *cluster.PE, indices []int, operand T) ([]T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitOr); err != nil {
		return nil, err
	}
	return batchElem(ctx, w.engine, issuer, cmn.OpFetchBitOr, indices, operand)
}
func (w *Unsafe[T]) BatchCompareExchange(ctx context.Context, issuer *cluster.PE, indices []int, expected, desired T) ([]CompareExchangeResult[T], error) {
	return batchCAS(ctx, w.engine, issuer, cmn.OpCompareExchange, indices, expected, desired, *new(T))
}
func (w *Unsafe[T]) BatchCompareExchangeEpsilon(ctx context.Context, issuer *cluster.PE, indices []int, expected, desired, epsilon T) ([]CompareExchangeResult[T], error) {
	return batchCAS(ctx, w.engine, issuer, cmn.OpCompareExchangeEpsilon, indices, expected, desired, epsilon)
}

// ---- Atomic ----

// Atomic performs every access as a hardware atomic on the local byte
// representation for native widths (4, 8 bytes); narrower widths (1, 2
// bytes) fall back to a per-(array,offset) striped spinlock table.
type Atomic[T cmn.Dist] struct {
	arr    *Array[T]
	engine *ops.Engine
	stripes *stripeLockTable
}

func NewAtomic[T cmn.Dist](arr *Array[T], cfg *cmn.Config) *Atomic[T] {
	if cfg == nil {
		cfg = cmn.DefaultConfig()
	}
	a := &Atomic[T]{arr: arr, stripes: newStripeLockTable(cfg.LockStripeCount)}
	exec := func(pe *cluster.PE, localOffset int, opKind cmn.OpKind, operand uint64) uint64 {
		return a.atomicExec(pe, localOffset, opKind, operand)
	}
	cas := func(pe *cluster.PE, localOffset int, opKind cmn.OpKind, expected, desired, eps uint64) (uint64, bool) {
		return a.atomicCAS(pe, localOffset, opKind, expected, desired, eps)
	}
	a.engine = ops.NewEngine(arr.team, arr, arr.ID(), exec, cas, nil, nil)
	return a
}

func (a *Atomic[T]) atomicExec(pe *cluster.PE, localOffset int, opKind cmn.OpKind, operandBits uint64) uint64 {
	width := a.arr.elemSize
	if !needsStripeLock(width) {
		rank, _ := a.arr.team.LocalRank(pe.Rank())
		buf := a.arr.shards[rank].AsSlice()[localOffset*width:]
		for {
			prior := atomicLoadWidth(buf, width)
			if opKind == cmn.OpLoad {
				return prior
			}
			var resultBits uint64
			if spec, found := ops.DefaultRegistry().Lookup(opKind); found && spec.Bitwise {
				resultBits = spec.ApplyBits(prior, operandBits)
			} else {
				resultBits = cmn.ToBits(applyArith(opKind, cmn.FromBits[T](prior), cmn.FromBits[T](operandBits)))
			}
			if atomicCASWidth(buf, width, prior, resultBits) {
				return prior
			}
		}
	}
	a.stripes.lock(a.arr.id, localOffset)
	defer a.stripes.unlock(a.arr.id, localOffset)
	return rawExec(a.arr, pe, localOffset, opKind, operandBits)
}

func (a *Atomic[T]) atomicCAS(pe *cluster.PE, localOffset int, opKind cmn.OpKind, expectedBits, desiredBits, epsilonBits uint64) (uint64, bool) {
	width := a.arr.elemSize
	if !needsStripeLock(width) {
		rank, _ := a.arr.team.LocalRank(pe.Rank())
		buf := a.arr.shards[rank].AsSlice()[localOffset*width:]
		prior := atomicLoadWidth(buf, width)
		spec, _ := ops.DefaultRegistry().Lookup(opKind)
		var success bool
		if spec.RequiresEpsilon {
			success = absT(cmn.FromBits[T](prior)-cmn.FromBits[T](expectedBits)) <= cmn.FromBits[T](epsilonBits)
		} else {
			success = prior == expectedBits
		}
		if success && !atomicCASWidth(buf, width, prior, desiredBits) {
			// lost the race to a concurrent writer between load and swap;
			// compare-exchange returns Err(prior) without retry.
			return atomicLoadWidth(buf, width), false
		}
		return prior, success
	}
	a.stripes.lock(a.arr.id, localOffset)
	defer a.stripes.unlock(a.arr.id, localOffset)
	return rawCAS(a.arr, pe, localOffset, opKind, expectedBits, desiredBits, epsilonBits)
}

func (a *Atomic[T]) Load(ctx context.Context, issuer *cluster.PE, index int) (T, error) {
	return singleElem(ctx, a.engine, issuer, cmn.OpLoad, index, 0)
}
func (a *Atomic[T]) Store(ctx context.Context, issuer *cluster.PE, index int, v T) error {
	_, err := singleElem(ctx, a.engine, issuer, cmn.OpStore, index, cmn.ToBits(v))
	return err
}
func (a *Atomic[T]) FetchAdd(ctx context.Context, issuer *cluster.PE, index int, delta T) (T, error) {
	return singleElem(ctx, a.engine, issuer, cmn.OpFetchAdd, index, cmn.ToBits(delta))
}
func (a *Atomic[T]) FetchSub(ctx context.Context, issuer *cluster.PE, index int, delta T) (T, error) {
	return singleElem(ctx, a.engine, issuer, cmn.OpFetchSub, index, cmn.ToBits(delta))
}
func (a *Atomic[T]) FetchMul(ctx context.Context, issuer *cluster.PE, index int, factor T) (T, error) {
	return singleElem(ctx, a.engine, issuer, cmn.OpFetchMul, index, cmn.ToBits(factor))
}
func (a *Atomic[T]) FetchDiv(ctx context.Context, issuer *cluster.PE, index int, divisor T) (T, error) {
	return singleElem(ctx, a.engine, issuer, cmn.OpFetchDiv, index, cmn.ToBits(divisor))
}
func (a *Atomic[T]) FetchBitOr(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitOr); err != nil {
		return *new(T), err
	}
	return singleElem(ctx, a.engine, issuer, cmn.OpFetchBitOr, index, cmn.ToBits(mask))
}
func (a *Atomic[T]) FetchBitAnd(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitAnd); err != nil {
		return *new(T), err
	}
	return singleElem(ctx, a.engine, issuer, cmn.OpFetchBitAnd, index, cmn.ToBits(mask))
}
func (a *Atomic[T]) FetchBitXor(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitXor); err != nil {
		return *new(T), err
	}
	return singleElem(ctx, a.engine, issuer, cmn.OpFetchBitXor, index, cmn.ToBits(mask))
}
func (a *Atomic[T]) CompareExchange(ctx context.Context, issuer *cluster.PE, index int, expected, desired T) (CompareExchangeResult[T], error) {
	return singleCAS(ctx, a.engine, issuer, cmn.OpCompareExchange, index, expected, desired, *new(T))
}
func (a *Atomic[T]) CompareExchangeEpsilon(ctx context.Context, issuer *cluster.PE, index int, expected, desired, epsilon T) (CompareExchangeResult[T], error) {
	return singleCAS(ctx, a.engine, issuer, cmn.OpCompareExchangeEpsilon, index, expected, desired, epsilon)
}
func (a *Atomic[T]) BatchFetchAdd(ctx context.Context, issuer *cluster.PE, indices []int, operand T) ([]T, error) {
	return batchElem(ctx, a.engine, issuer, cmn.OpFetchAdd, indices, operand)
}
func (a *Atomic[T]) BatchFetchBitOr(ctx context.Context, issuer *cluster.PE, indices []int, operand T) ([]T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitOr); err != nil {
		return nil, err
	}
	return batchElem(ctx, a.engine, issuer, cmn.OpFetchBitOr, indices, operand)
}
func (a *Atomic[T]) BatchCompareExchange(ctx context.Context, issuer *cluster.PE, indices []int, expected, desired T) ([]CompareExchangeResult[T], error) {
	return batchCAS(ctx, a.engine, issuer, cmn.OpCompareExchange, indices, expected, desired, *new(T))
}
func (a *Atomic[T]) BatchCompareExchangeEpsilon(ctx context.Context, issuer *cluster.PE, indices []int, expected, desired, epsilon T) ([]CompareExchangeResult[T], error) {
	return batchCAS(ctx, a.engine, issuer, cmn.OpCompareExchangeEpsilon, indices, expected, desired, epsilon)
}

// ---- LocalLock ----

// LocalLock guards each PE's local portion with a single
// readers-writer lock, taken once per incoming batch-message rather
// than once per entry (see DESIGN.md's Open Question decision,
// following the original runtime's own performance note).
type LocalLock[T cmn.Dist] struct {
	arr    *Array[T]
	engine *ops.Engine
	mus    []*sync.RWMutex // one per team-local rank
}

func NewLocalLock[T cmn.Dist](arr *Array[T]) *LocalLock[T] {
	mus := make([]*sync.RWMutex, arr.team.Size())
	for i := range mus {
		mus[i] = &sync.RWMutex{}
	}
	w := &LocalLock[T]{arr: arr, mus: mus}
	exec := func(pe *cluster.PE, localOffset int, opKind cmn.OpKind, operand uint64) uint64 {
		return rawExec(arr, pe, localOffset, opKind, operand)
	}
	cas := func(pe *cluster.PE, localOffset int, opKind cmn.OpKind, expected, desired, eps uint64) (uint64, bool) {
		return rawCAS(arr, pe, localOffset, opKind, expected, desired, eps)
	}
	execHook := func(pe *cluster.PE) func() {
		rank, _ := arr.team.LocalRank(pe.Rank())
		w.mus[rank].Lock()
		return w.mus[rank].Unlock
	}
	w.engine = ops.NewEngine(arr.team, arr, arr.ID(), exec, cas, execHook, execHook)
	return w
}

func (w *LocalLock[T]) Load(ctx context.Context, issuer *cluster.PE, index int) (T, error) {
	return singleElem(ctx, w.engine, issuer, cmn.OpLoad, index, 0)
}
func (w *LocalLock[T]) Store(ctx context.Context, issuer *cluster.PE, index int, v T) error {
	_, err := singleElem(ctx, w.engine, issuer, cmn.OpStore, index, cmn.ToBits(v))
	return err
}
func (w *LocalLock[T]) FetchAdd(ctx context.Context, issuer *cluster.PE, index int, delta T) (T, error) {
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchAdd, index, cmn.ToBits(delta))
}
func (w *LocalLock[T]) FetchSub(ctx context.Context, issuer *cluster.PE, index int, delta T) (T, error) {
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchSub, index, cmn.ToBits(delta))
}
func (w *LocalLock[T]) FetchMul(ctx context.Context, issuer *cluster.PE, index int, factor T) (T, error) {
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchMul, index, cmn.ToBits(factor))
}
func (w *LocalLock[T]) FetchDiv(ctx context.Context, issuer *cluster.PE, index int, divisor T) (T, error) {
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchDiv, index, cmn.ToBits(divisor))
}
func (w *LocalLock[T]) FetchBitOr(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitOr); err != nil {
		return *new(T), err
	}
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchBitOr, index, cmn.ToBits(mask))
}
func (w *LocalLock[T]) FetchBitAnd(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitAnd); err != nil {
		return *new(T), err
	}
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchBitAnd, index, cmn.ToBits(mask))
}
func (w *LocalLock[T]) FetchBitXor(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitXor); err != nil {
		return *new(T), err
	}
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchBitXor, index, cmn.ToBits(mask))
}
func (w *LocalLock[T]) CompareExchange(ctx context.Context, issuer *cluster.PE, index int, expected, desired T) (CompareExchangeResult[T], error) {
	return singleCAS(ctx, w.engine, issuer, cmn.OpCompareExchange, index, expected, desired, *new(T))
}
func (w *LocalLock[T]) CompareExchangeEpsilon(ctx context.Context, issuer *cluster.PE, index int, expected, desired, epsilon T) (CompareExchangeResult[T], error) {
	return singleCAS(ctx, w.engine, issuer, cmn.OpCompareExchangeEpsilon, index, expected, desired, epsilon)
}
func (w *LocalLock[T]) BatchFetchAdd(ctx context.Context, issuer *cluster.PE, indices []int, operand T) ([]T, error) {
	return batchElem(ctx, w.engine, issuer, cmn.OpFetchAdd, indices, operand)
}
func (w *LocalLock[T]) BatchFetchBitOr(ctx context.Context, issuer *cluster.PE, indices []int, operand T) ([]T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitOr); err != nil {
		return nil, err
	}
	return batchElem(ctx, w.engine, issuer, cmn.OpFetchBitOr, indices, operand)
}
func (w *LocalLock[T]) BatchCompareExchange(ctx context.Context, issuer *cluster.PE, indices []int, expected, desired T) ([]CompareExchangeResult[T], error) {
	return batchCAS(ctx, w.engine, issuer, cmn.OpCompareExchange, indices, expected, desired, *new(T))
}
func (w *LocalLock[T]) BatchCompareExchangeEpsilon(ctx context.Context, issuer *cluster.PE, indices []int, expected, desired, epsilon T) ([]CompareExchangeResult[T], error) {
	return batchCAS(ctx, w.engine, issuer, cmn.OpCompareExchangeEpsilon, indices, expected, desired, epsilon)
}

// ---- GlobalLock ----

// GlobalLock serializes access across the whole team behind a single
// designated coordinator PE (team-local rank 0): write ops take the
// coordinator's write lock, reads (Load) take its read lock.
type GlobalLock[T cmn.Dist] struct {
	arr         *Array[T]
	engine      *ops.Engine
	coordinator *coordinatorLock
}

func NewGlobalLock[T cmn.Dist](arr *Array[T]) *GlobalLock[T] {
	coord := newCoordinatorLock(arr.team, 0)
	w := &GlobalLock[T]{arr: arr, coordinator: coord}
	exec := func(pe *cluster.PE, localOffset int, opKind cmn.OpKind, operand uint64) uint64 {
		return rawExec(arr, pe, localOffset, opKind, operand)
	}
	cas := func(pe *cluster.PE, localOffset int, opKind cmn.OpKind, expected, desired, eps uint64) (uint64, bool) {
		return rawCAS(arr, pe, localOffset, opKind, expected, desired, eps)
	}
	w.engine = ops.NewEngine(arr.team, arr, arr.ID(), exec, cas, nil, nil)
	return w
}

func (w *GlobalLock[T]) Load(ctx context.Context, issuer *cluster.PE, index int) (T, error) {
	w.coordinator.acquireRead(ctx, issuer)
	defer w.coordinator.releaseRead(ctx, issuer)
	return singleElem(ctx, w.engine, issuer, cmn.OpLoad, index, 0)
}
func (w *GlobalLock[T]) Store(ctx context.Context, issuer *cluster.PE, index int, v T) error {
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	_, err := singleElem(ctx, w.engine, issuer, cmn.OpStore, index, cmn.ToBits(v))
	return err
}
func (w *GlobalLock[T]) FetchAdd(ctx context.Context, issuer *cluster.PE, index int, delta T) (T, error) {
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchAdd, index, cmn.ToBits(delta))
}
func (w *GlobalLock[T]) FetchSub(ctx context.Context, issuer *cluster.PE, index int, delta T) (T, error) {
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchSub, index, cmn.ToBits(delta))
}
func (w *GlobalLock[T]) FetchMul(ctx context.Context, issuer *cluster.PE, index int, factor T) (T, error) {
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchMul, index, cmn.ToBits(factor))
}
func (w *GlobalLock[T]) FetchDiv(ctx context.Context, issuer *cluster.PE, index int, divisor T) (T, error) {
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchDiv, index, cmn.ToBits(divisor))
}
func (w *GlobalLock[T]) FetchBitOr(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitOr); err != nil {
		return *new(T), err
	}
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchBitOr, index, cmn.ToBits(mask))
}
func (w *GlobalLock[T]) FetchBitAnd(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitAnd); err != nil {
		return *new(T), err
	}
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchBitAnd, index, cmn.ToBits(mask))
}
func (w *GlobalLock[T]) FetchBitXor(ctx context.Context, issuer *cluster.PE, index int, mask T) (T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitXor); err != nil {
		return *new(T), err
	}
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return singleElem(ctx, w.engine, issuer, cmn.OpFetchBitXor, index, cmn.ToBits(mask))
}
func (w *GlobalLock[T]) CompareExchange(ctx context.Context, issuer *cluster.PE, index int, expected, desired T) (CompareExchangeResult[T], error) {
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return singleCAS(ctx, w.engine, issuer, cmn.OpCompareExchange, index, expected, desired, *new(T))
}
func (w *GlobalLock[T]) CompareExchangeEpsilon(ctx context.Context, issuer *cluster.PE, index int, expected, desired, epsilon T) (CompareExchangeResult[T], error) {
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return singleCAS(ctx, w.engine, issuer, cmn.OpCompareExchangeEpsilon, index, expected, desired, epsilon)
}
func (w *GlobalLock[T]) BatchFetchAdd(ctx context.Context, issuer *cluster.PE, indices []int, operand T) ([]T, error) {
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return batchElem(ctx, w.engine, issuer, cmn.OpFetchAdd, indices, operand)
}
func (w *GlobalLock[T]) BatchFetchBitOr(ctx context.Context, issuer *cluster.PE, indices []int, operand T) ([]T, error) {
	if err := validateOpKind[T](cmn.OpFetchBitOr); err != nil {
		return nil, err
	}
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return batchElem(ctx, w.engine, issuer, cmn.OpFetchBitOr, indices, operand)
}
func (w *GlobalLock[T]) BatchCompareExchange(ctx context.Context, issuer *cluster.PE, indices []int, expected, desired T) ([]CompareExchangeResult[T], error) {
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return batchCAS(ctx, w.engine, issuer, cmn.OpCompareExchange, indices, expected, desired, *new(T))
}
func (w *GlobalLock[T]) BatchCompareExchangeEpsilon(ctx context.Context, issuer *cluster.PE, indices []int, expected, desired, epsilon T) ([]CompareExchangeResult[T], error) {
	w.coordinator.acquireWrite(ctx, issuer)
	defer w.coordinator.releaseWrite(ctx, issuer)
	return batchCAS(ctx, w.engine, issuer, cmn.OpCompareExchangeEpsilon, indices, expected, desired, epsilon)
}

// ---- shared single/batch plumbing ----

func singleElem[T cmn.Dist](ctx context.Context, engine *ops.Engine, issuer *cluster.PE, opKind cmn.OpKind, index int, operandBits uint64) (T, error) {
	results, err := engine.Submit(ctx, issuer, opKind, []int{index}, func(int) uint64 { return operandBits })
	if err != nil {
		return *new(T), err
	}
	return cmn.FromBits[T](results[0]), nil
}

func batchElem[T cmn.Dist](ctx context.Context, engine *ops.Engine, issuer *cluster.PE, opKind cmn.OpKind, indices []int, operand T) ([]T, error) {
	operandBits := cmn.ToBits(operand)
	results, err := engine.Submit(ctx, issuer, opKind, indices, func(int) uint64 { return operandBits })
	if err != nil {
		return nil, err
	}
	out := make([]T, len(results))
	for i, r := range results {
		out[i] = cmn.FromBits[T](r)
	}
	return out, nil
}

func singleCAS[T cmn.Dist](ctx context.Context, engine *ops.Engine, issuer *cluster.PE, opKind cmn.OpKind, index int, expected, desired, epsilon T) (CompareExchangeResult[T], error) {
	results, err := engine.SubmitCompareExchange(ctx, issuer, opKind, []int{index},
		func(int) uint64 { return cmn.ToBits(expected) },
		func(int) uint64 { return cmn.ToBits(desired) },
		func(int) uint64 { return cmn.ToBits(epsilon) },
	)
	if err != nil {
		return CompareExchangeResult[T]{}, err
	}
	return CompareExchangeResult[T]{Prior: cmn.FromBits[T](results[0].Prior), Success: results[0].Success}, nil
}

func batchCAS[T cmn.Dist](ctx context.Context, engine *ops.Engine, issuer *cluster.PE, opKind cmn.OpKind, indices []int, expected, desired, epsilon T) ([]CompareExchangeResult[T], error) {
	expBits, desBits, epsBits := cmn.ToBits(expected), cmn.ToBits(desired), cmn.ToBits(epsilon)
	results, err := engine.SubmitCompareExchange(ctx, issuer, opKind, indices,
		func(int) uint64 { return expBits },
		func(int) uint64 { return desBits },
		func(int) uint64 { return epsBits },
	)
	if err != nil {
		return nil, err
	}
	out := make([]CompareExchangeResult[T], len(results))
	for i, r := range results {
		out[i] = CompareExchangeResult[T]{Prior: cmn.FromBits[T](r.Prior), Success: r.Success}
	}
	return out, nil
}
