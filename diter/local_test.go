package diter

import (
	"sync"
	"testing"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/darray"
)

func TestLocalForEachVisitsEveryElementOnce(t *testing.T) {
	w, err := cluster.BuildWorld(2, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := darray.NewArray[int32](w.Team(), darray.NewBlock(10, 2))
	if err != nil {
		t.Fatal(err)
	}
	pe := w.PE(0)
	local := NewLocal[int32](arr, pe)
	for pos := 0; pos < local.Len(); pos++ {
		local.Set(pos, int32(pos))
	}

	var mu sync.Mutex
	seen := map[int32]int{}
	local.ForEach(func(v int32) {
		mu.Lock()
		seen[v]++
		mu.Unlock()
	})
	if len(seen) != local.Len() {
		t.Fatalf("visited %d distinct elements, want %d", len(seen), local.Len())
	}
	for v, c := range seen {
		if c != 1 {
			t.Errorf("element %d visited %d times, want 1", v, c)
		}
	}
}

func TestLocalInitClampsRange(t *testing.T) {
	w, err := cluster.BuildWorld(1, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := darray.NewArray[int32](w.Team(), darray.NewBlock(5, 1))
	if err != nil {
		t.Fatal(err)
	}
	local := NewLocal[int32](arr, w.PE(0))
	sub := local.Init(3, 10)
	if sub.Len() != 2 {
		t.Errorf("Init(3,10) on a 5-element iterator: len = %d, want 2", sub.Len())
	}
}

func TestStepByAlignsToUpstreamIndex(t *testing.T) {
	w, err := cluster.BuildWorld(1, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := darray.NewArray[int32](w.Team(), darray.NewBlock(9, 1))
	if err != nil {
		t.Fatal(err)
	}
	local := NewLocal[int32](arr, w.PE(0))
	for pos := 0; pos < local.Len(); pos++ {
		local.Set(pos, int32(pos))
	}

	// Narrow to [2,9) first, so the upstream start (2) is not itself a
	// multiple of 3 -- step_by(3) must scan forward one position to land
	// on index 3, not 2.
	narrowed := local.Init(2, 7)
	stepped := narrowed.StepBy(3)
	var got []int32
	for pos := 0; pos < stepped.Len(); pos++ {
		got = append(got, stepped.Elem(pos))
	}
	want := []int32{3, 6}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
}

func TestChunksGroupsConsecutiveElements(t *testing.T) {
	w, err := cluster.BuildWorld(1, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := darray.NewArray[int32](w.Team(), darray.NewBlock(7, 1))
	if err != nil {
		t.Fatal(err)
	}
	local := NewLocal[int32](arr, w.PE(0))
	for pos := 0; pos < local.Len(); pos++ {
		local.Set(pos, int32(pos))
	}
	chunks := local.Chunks(3)
	if chunks.Len() != 3 {
		t.Fatalf("Chunks(3) on 7 elements: len = %d, want 3", chunks.Len())
	}
	if len(chunks.Elem(2)) != 1 {
		t.Errorf("last chunk len = %d, want 1 (7 mod 3)", len(chunks.Elem(2)))
	}
}

func TestMonotonicPairsPositionWithElement(t *testing.T) {
	w, err := cluster.BuildWorld(1, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := darray.NewArray[int32](w.Team(), darray.NewBlock(4, 1))
	if err != nil {
		t.Fatal(err)
	}
	local := NewLocal[int32](arr, w.PE(0))
	for pos := 0; pos < local.Len(); pos++ {
		local.Set(pos, int32(100+pos))
	}
	mono := local.Monotonic()
	for pos := 0; pos < mono.Len(); pos++ {
		idx, v := mono.Elem(pos)
		if idx != pos || v != int32(100+pos) {
			t.Errorf("Elem(%d) = (%d,%d), want (%d,%d)", pos, idx, v, pos, 100+pos)
		}
	}
}
