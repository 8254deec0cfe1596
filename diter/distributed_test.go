package diter

import (
	"errors"
	"sync"
	"testing"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/darray"
	"github.com/pgasrt/pgasrt/exec"
)

func TestDistributedForEachVisitsWholeArrayOnce(t *testing.T) {
	const p = 3
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := darray.NewArray[int32](w.Team(), darray.NewBlock(10, p))
	if err != nil {
		t.Fatal(err)
	}
	for rank := 0; rank < p; rank++ {
		pe := w.PE(rank)
		for _, off := range arr.LocalOffsets(pe) {
			arr.SetLocal(pe, off, int32(arr.SubarrayIndexFromLocal(pe, off)))
		}
	}

	var mu sync.Mutex
	seen := map[int32]int{}
	NewDistributed[int32](arr).ForEach(func(pe *cluster.PE, elem int32) {
		mu.Lock()
		seen[elem]++
		mu.Unlock()
	})
	if len(seen) != 10 {
		t.Fatalf("visited %d distinct global indices, want 10", len(seen))
	}
	for v, c := range seen {
		if c != 1 {
			t.Errorf("global index %d visited %d times, want 1", v, c)
		}
	}
}

func TestDistributedForEachAsyncPropagatesError(t *testing.T) {
	w, err := cluster.BuildWorld(2, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := darray.NewArray[int32](w.Team(), darray.NewBlock(4, 2))
	if err != nil {
		t.Fatal(err)
	}
	for rank := 0; rank < 2; rank++ {
		pe := w.PE(rank)
		for _, off := range arr.LocalOffsets(pe) {
			arr.SetLocal(pe, off, int32(arr.SubarrayIndexFromLocal(pe, off)))
		}
	}
	boom := errors.New("boom")
	err = NewDistributed[int32](arr).ForEachAsync(func(pe *cluster.PE, elem int32) exec.Task {
		return exec.FuncTask(func() error {
			if elem == 1 {
				return boom
			}
			return nil
		})
	})
	if !errors.Is(err, boom) {
		t.Errorf("ForEachAsync error = %v, want %v", err, boom)
	}
}
