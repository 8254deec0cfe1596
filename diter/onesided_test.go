package diter

import (
	"context"
	"testing"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/darray"
)

// TestCopiedChunksRoundTripsBlockArray checks that a one-sided consumer
// PE (PE 0, which also owns one shard) pulls the whole of arr, every
// shard included, through copied_chunks and recovers values in
// global-index order.
func TestCopiedChunksRoundTripsBlockArray(t *testing.T) {
	const p = 3
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := darray.NewArray[float32](w.Team(), darray.NewBlock(10, p))
	if err != nil {
		t.Fatal(err)
	}
	for rank := 0; rank < p; rank++ {
		pe := w.PE(rank)
		for _, off := range arr.LocalOffsets(pe) {
			g := arr.SubarrayIndexFromLocal(pe, off)
			arr.SetLocal(pe, off, float32(g)*1.5)
		}
	}

	consumer := w.PE(0)
	cc := NewOneSided[float32](arr, consumer).CopiedChunks(3)
	var got []float32
	for {
		chunk, ok, err := cc.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, chunk...)
	}
	if len(got) != 10 {
		t.Fatalf("collected %d elements, want 10", len(got))
	}
	for i, v := range got {
		want := float32(i) * 1.5
		if v != want {
			t.Errorf("index %d: got %v, want %v", i, v, want)
		}
	}
}

func TestBufferedCopiedChunksMatchesPlain(t *testing.T) {
	const p = 2
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := darray.NewArray[int64](w.Team(), darray.NewCyclic(13, p))
	if err != nil {
		t.Fatal(err)
	}
	for rank := 0; rank < p; rank++ {
		pe := w.PE(rank)
		for _, off := range arr.LocalOffsets(pe) {
			g := arr.SubarrayIndexFromLocal(pe, off)
			arr.SetLocal(pe, off, int64(g))
		}
	}

	ctx := context.Background()
	buffered := NewOneSided[int64](arr, w.PE(0)).BufferedCopiedChunks(ctx, 4, 1)
	var got []int64
	for {
		chunk, ok, err := buffered.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, chunk...)
	}
	if len(got) != 13 {
		t.Fatalf("collected %d elements, want 13", len(got))
	}
	for i, v := range got {
		if v != int64(i) {
			t.Errorf("index %d: got %d, want %d", i, v, i)
		}
	}
}

// TestBufferedCopiedChunksPipelinesBufSizeChunks checks the bufSize>1
// pipeline depth itself: right after construction bufSize fetches must
// already be in flight (queued, not yet drained by Next), and the
// queue must be replenished back to bufSize after every Next that
// still has unscheduled chunks left to issue. This is a white-box
// check of the internal queue rather than wall-clock timing, since the
// loopback transport's Get completes synchronously and so gives no
// observable latency to race against.
func TestBufferedCopiedChunksPipelinesBufSizeChunks(t *testing.T) {
	const p = 2
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	arr, err := darray.NewArray[int64](w.Team(), darray.NewBlock(20, p))
	if err != nil {
		t.Fatal(err)
	}
	for rank := 0; rank < p; rank++ {
		pe := w.PE(rank)
		for _, off := range arr.LocalOffsets(pe) {
			g := arr.SubarrayIndexFromLocal(pe, off)
			arr.SetLocal(pe, off, int64(g))
		}
	}

	ctx := context.Background()
	const bufSize = 3
	buffered := NewOneSided[int64](arr, w.PE(0)).BufferedCopiedChunks(ctx, 2, bufSize)
	if got := len(buffered.queue); got != bufSize {
		t.Fatalf("queue depth right after construction = %d, want %d in-flight fetches", got, bufSize)
	}

	var got []int64
	for {
		chunk, ok, err := buffered.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, chunk...)
		if len(buffered.queue) > bufSize {
			t.Fatalf("queue depth %d exceeds bufSize %d", len(buffered.queue), bufSize)
		}
		// every chunk fully scheduled still keeps the queue topped up to
		// bufSize until there's nothing left to schedule.
		if buffered.next < arr.Len() && len(buffered.queue) != bufSize {
			t.Fatalf("queue depth %d, want %d while chunks remain unscheduled", len(buffered.queue), bufSize)
		}
	}
	if len(got) != 20 {
		t.Fatalf("collected %d elements, want 20", len(got))
	}
	for i, v := range got {
		if v != int64(i) {
			t.Errorf("index %d: got %d, want %d", i, v, i)
		}
	}
}
