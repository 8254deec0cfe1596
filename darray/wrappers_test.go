package darray

import (
	"context"
	"sync"
	"testing"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
)

// TestAtomicCASRaceFreedom checks race freedom under contention: on an
// AtomicArray<u64> of length 2P initialized to 0, every PE concurrently
// attempts CAS(0->1) once per index; exactly one attempt succeeds per
// index, and every index ends at 1.
func TestAtomicCASRaceFreedom(t *testing.T) {
	const p = 3
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := NewArray[uint64](w.Team(), NewBlock(2*p, p))
	if err != nil {
		t.Fatal(err)
	}
	atomic := NewAtomic[uint64](arr, nil)

	successes := make([]int32, 2*p)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for rank := 0; rank < p; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			pe := w.PE(rank)
			for i := 0; i < 2*p; i++ {
				r, err := atomic.CompareExchange(context.Background(), pe, i, 0, 1)
				if err != nil {
					t.Error(err)
					return
				}
				if r.Success {
					mu.Lock()
					successes[i]++
					mu.Unlock()
				}
			}
		}(rank)
	}
	wg.Wait()
	for i, c := range successes {
		if c != 1 {
			t.Errorf("index %d: %d successes, want exactly 1", i, c)
		}
	}
	for i := 0; i < 2*p; i++ {
		v, err := atomic.Load(context.Background(), w.PE(0), i)
		if err != nil {
			t.Fatal(err)
		}
		if v != 1 {
			t.Errorf("index %d: final value %d, want 1", i, v)
		}
	}
}

// TestFetchBitOrCorrectness checks fetch-or correctness on a narrow
// (non-native-width) element type, exercising Atomic's striped
// spinlock fallback: init to 0, every PE ORs in its own bit; final
// value is all-ones over P bits, and no returned prior ever already has
// that PE's bit set (u8, P=4 -> 0x0F).
func TestFetchBitOrCorrectness(t *testing.T) {
	const p = 4
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := NewArray[uint8](w.Team(), NewBlock(8, p))
	if err != nil {
		t.Fatal(err)
	}
	atomic := NewAtomic[uint8](arr, nil)

	var wg sync.WaitGroup
	for rank := 0; rank < p; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			pe := w.PE(rank)
			mask := uint8(1 << rank)
			for i := 0; i < 8; i++ {
				prior, err := atomic.FetchBitOr(context.Background(), pe, i, mask)
				if err != nil {
					t.Error(err)
					return
				}
				if prior&mask != 0 {
					t.Errorf("index %d: prior already had rank %d's bit set", i, rank)
				}
			}
		}(rank)
	}
	wg.Wait()
	for i := 0; i < 8; i++ {
		v, err := atomic.Load(context.Background(), w.PE(0), i)
		if err != nil {
			t.Fatal(err)
		}
		if v != 0x0F {
			t.Errorf("index %d: final value %#x, want 0x0f", i, v)
		}
	}
}

func TestUnsafeFetchAddSingleElement(t *testing.T) {
	w, err := cluster.BuildWorld(2, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := NewArray[int32](w.Team(), NewBlock(4, 2))
	if err != nil {
		t.Fatal(err)
	}
	unsafeW := NewUnsafe[int32](arr)
	pe := w.PE(0)
	prior, err := unsafeW.FetchAdd(context.Background(), pe, 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if prior != 0 {
		t.Errorf("prior = %d, want 0", prior)
	}
	v, err := unsafeW.Load(context.Background(), pe, 0)
	if err != nil {
		t.Fatal(err)
	}
	if v != 5 {
		t.Errorf("loaded = %d, want 5", v)
	}
}

func TestFetchBitOrRejectsFloat(t *testing.T) {
	w, err := cluster.BuildWorld(1, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := NewArray[float32](w.Team(), NewBlock(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	unsafeW := NewUnsafe[float32](arr)
	_, err = unsafeW.FetchBitOr(context.Background(), w.PE(0), 0, 1)
	if !cmn.IsErrKind(err, cmn.ErrKindTypeUnsupported) {
		t.Errorf("expected TypeUnsupported, got %v", err)
	}
}

func TestCompareExchangeEpsilonOnFloats(t *testing.T) {
	const p = 3
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := NewArray[float64](w.Team(), NewBlock(p, p))
	if err != nil {
		t.Fatal(err)
	}
	atomic := NewAtomic[float64](arr, nil)

	successes := make([]int32, p)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for rank := 0; rank < p; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			pe := w.PE(rank)
			for i := 0; i < p; i++ {
				r, err := atomic.CompareExchangeEpsilon(context.Background(), pe, i, 0.0, float64(rank+1), 1e-9)
				if err != nil {
					t.Error(err)
					return
				}
				if r.Success {
					mu.Lock()
					successes[i]++
					mu.Unlock()
				}
			}
		}(rank)
	}
	wg.Wait()
	for i, c := range successes {
		if c != 1 {
			t.Errorf("index %d: %d successes, want exactly 1", i, c)
		}
	}
}

func TestLocalLockSerializesStores(t *testing.T) {
	w, err := cluster.BuildWorld(1, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := NewArray[int64](w.Team(), NewBlock(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	ll := NewLocalLock[int64](arr)
	pe := w.PE(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ll.FetchAdd(context.Background(), pe, 0, 1); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	v, err := ll.Load(context.Background(), pe, 0)
	if err != nil {
		t.Fatal(err)
	}
	if v != 50 {
		t.Errorf("final value = %d, want 50", v)
	}
}

// TestUnsafeBatchFetchAddAcrossShards checks Unsafe.BatchFetchAdd: one
// call carrying indices owned by every rank in the team still fans out
// per-destination and scatters results back in submission order.
func TestUnsafeBatchFetchAddAcrossShards(t *testing.T) {
	const p = 3
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := NewArray[int32](w.Team(), NewBlock(3*p, p))
	if err != nil {
		t.Fatal(err)
	}
	unsafeW := NewUnsafe[int32](arr)

	indices := make([]int, 3*p)
	for i := range indices {
		indices[i] = i
	}
	priors, err := unsafeW.BatchFetchAdd(context.Background(), w.PE(0), indices, 7)
	if err != nil {
		t.Fatal(err)
	}
	for i, prior := range priors {
		if prior != 0 {
			t.Errorf("index %d: prior = %d, want 0", i, prior)
		}
	}
	for i := range indices {
		v, err := unsafeW.Load(context.Background(), w.PE(0), i)
		if err != nil {
			t.Fatal(err)
		}
		if v != 7 {
			t.Errorf("index %d: loaded = %d, want 7", i, v)
		}
	}
}

// TestAtomicBatchCompareExchange checks Atomic.BatchCompareExchange: a
// first batched CAS(0->1) succeeds at every index, and a second batch
// with the now-stale expected value 0 fails at every index, reporting
// prior 1.
func TestAtomicBatchCompareExchange(t *testing.T) {
	const p = 2
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := NewArray[uint64](w.Team(), NewBlock(4*p, p))
	if err != nil {
		t.Fatal(err)
	}
	atomic := NewAtomic[uint64](arr, nil)

	indices := make([]int, 4*p)
	for i := range indices {
		indices[i] = i
	}
	results, err := atomic.BatchCompareExchange(context.Background(), w.PE(0), indices, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if !r.Success {
			t.Errorf("index %d: expected success", indices[i])
		}
	}
	second, err := atomic.BatchCompareExchange(context.Background(), w.PE(0), indices, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range second {
		if r.Success {
			t.Errorf("index %d: expected failure on stale expected value", indices[i])
		}
		if r.Prior != 1 {
			t.Errorf("index %d: prior = %d, want 1", indices[i], r.Prior)
		}
	}
}

// TestLocalLockBatchFetchBitOr checks LocalLock.BatchFetchBitOr: every
// entry in one batch lands. (The batch takes the per-rank lock once per
// destination message, see the LocalLock execHook; this test checks
// only the resulting values.)
func TestLocalLockBatchFetchBitOr(t *testing.T) {
	const p = 2
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := NewArray[uint16](w.Team(), NewBlock(4*p, p))
	if err != nil {
		t.Fatal(err)
	}
	ll := NewLocalLock[uint16](arr)

	indices := make([]int, 4*p)
	for i := range indices {
		indices[i] = i
	}
	priors, err := ll.BatchFetchBitOr(context.Background(), w.PE(0), indices, 0x0F)
	if err != nil {
		t.Fatal(err)
	}
	for i, prior := range priors {
		if prior != 0 {
			t.Errorf("index %d: prior = %#x, want 0", indices[i], prior)
		}
	}
	for i := range indices {
		v, err := ll.Load(context.Background(), w.PE(0), i)
		if err != nil {
			t.Fatal(err)
		}
		if v != 0x0F {
			t.Errorf("index %d: loaded = %#x, want 0x0f", i, v)
		}
	}
}

// TestGlobalLockBatchCompareExchangeEpsilon checks
// GlobalLock.BatchCompareExchangeEpsilon: every entry within tolerance
// succeeds and stores the desired value. (The coordinator's write lock
// brackets the whole batch; this test checks only the resulting values.)
func TestGlobalLockBatchCompareExchangeEpsilon(t *testing.T) {
	const p = 2
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := NewArray[float64](w.Team(), NewBlock(2*p, p))
	if err != nil {
		t.Fatal(err)
	}
	gl := NewGlobalLock[float64](arr)

	indices := make([]int, 2*p)
	for i := range indices {
		indices[i] = i
	}
	results, err := gl.BatchCompareExchangeEpsilon(context.Background(), w.PE(0), indices, 0.0, 3.5, 1e-9)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if !r.Success {
			t.Errorf("index %d: expected success", indices[i])
		}
	}
	for _, i := range indices {
		v, err := gl.Load(context.Background(), w.PE(0), i)
		if err != nil {
			t.Fatal(err)
		}
		if v != 3.5 {
			t.Errorf("index %d: loaded = %v, want 3.5", i, v)
		}
	}
}

func TestGlobalLockSerializesAcrossTeam(t *testing.T) {
	const p = 3
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := NewArray[int64](w.Team(), NewBlock(1, p))
	if err != nil {
		t.Fatal(err)
	}
	gl := NewGlobalLock[int64](arr)

	var wg sync.WaitGroup
	for rank := 0; rank < p; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			pe := w.PE(rank)
			for i := 0; i < 20; i++ {
				if _, err := gl.FetchAdd(context.Background(), pe, 0, 1); err != nil {
					t.Error(err)
				}
			}
		}(rank)
	}
	wg.Wait()
	v, err := gl.Load(context.Background(), w.PE(0), 0)
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(p*20) {
		t.Errorf("final value = %d, want %d", v, p*20)
	}
}
