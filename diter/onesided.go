package diter

import (
	"context"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/cmn/debug"
	"github.com/pgasrt/pgasrt/darray"
)

// run is one contiguous stretch of a chunk that lives on a single
// owner's shard at consecutive local storage offsets -- block
// distribution makes whole chunks a single run; cyclic distribution
// typically breaks every chunk into one run per element.
type run struct {
	owner      int // team-local rank
	localStart int
	count      int
	chunkPos   int // offset into the chunk's output slice this run fills
}

func chunkRuns[T cmn.Dist](arr *darray.Array[T], lo, hi int) []run {
	var runs []run
	for i := lo; i < hi; i++ {
		owner := arr.OwnerOf(i)
		localOff := arr.LocalOffsetOf(i)
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			if last.owner == owner && last.localStart+last.count == localOff {
				last.count++
				continue
			}
		}
		runs = append(runs, run{owner: owner, localStart: localOff, count: 1, chunkPos: i - lo})
	}
	return runs
}

// OneSided is the one-sided iterator: the consumer has no local copy
// of arr and pulls chunks across the transport with explicit
// Region.Get calls rather than reading a local shard.
type OneSided[T cmn.Dist] struct {
	arr    *darray.Array[T]
	issuer *cluster.PE
}

func NewOneSided[T cmn.Dist](arr *darray.Array[T], issuer *cluster.PE) *OneSided[T] {
	return &OneSided[T]{arr: arr, issuer: issuer}
}

// fetchChunk issues one Region.Get per contiguous run covering [lo,hi)
// and decodes the assembled bytes into a []T, in global-index order.
func (o *OneSided[T]) fetchChunk(ctx context.Context, lo, hi int) ([]T, error) {
	n := hi - lo
	runs := chunkRuns(o.arr, lo, hi)
	bufs := make([][]byte, len(runs))
	handles := make([]interface{ Wait() error }, len(runs))
	for ri, r := range runs {
		buf := make([]byte, r.count*o.arr.ElemSize())
		bufs[ri] = buf
		shard := o.arr.Shard(r.owner)
		handles[ri] = shard.Get(ctx, o.issuer, r.localStart, buf)
	}
	out := make([]T, n)
	for ri, r := range runs {
		if err := handles[ri].Wait(); err != nil {
			return nil, cmn.Wrap(err, "diter.OneSided: copied_chunks fetch failed")
		}
		for j := 0; j < r.count; j++ {
			bits := cmn.ReadBitsWidth(bufs[ri][j*o.arr.ElemSize():], o.arr.ElemSize())
			out[r.chunkPos+j] = cmn.FromBits[T](bits)
		}
	}
	return out, nil
}

// CopiedChunks walks arr in chunks of (at most) k elements, fetching
// each chunk synchronously -- the plain copied_chunks(k) form.
type CopiedChunks[T cmn.Dist] struct {
	o    *OneSided[T]
	k    int
	next int
}

func (o *OneSided[T]) CopiedChunks(k int) *CopiedChunks[T] {
	debug.Assert(k > 0, "CopiedChunks: k must be positive")
	return &CopiedChunks[T]{o: o, k: k}
}

// Next fetches the next chunk, blocking until its Gets complete. ok is
// false once the iterator is exhausted.
func (c *CopiedChunks[T]) Next(ctx context.Context) (chunk []T, ok bool, err error) {
	if c.next >= c.o.arr.Len() {
		return nil, false, nil
	}
	lo := c.next
	hi := lo + c.k
	if hi > c.o.arr.Len() {
		hi = c.o.arr.Len()
	}
	c.next = hi
	chunk, err = c.o.fetchChunk(ctx, lo, hi)
	if err != nil {
		return nil, false, err
	}
	return chunk, true, nil
}

// BufferedCopiedChunks is the pipelined variant: up to bufSize chunks'
// worth of Region.Get calls are kept in flight at once, each in its own
// goroutine feeding its own result channel, queued in issue order so
// Next always returns chunks in sequence regardless of which fetch
// happens to complete first -- the buffered copied_chunks(k, buf_size)
// form, aimed at hiding one-sided Get latency behind the consumer's own
// processing time.
type BufferedCopiedChunks[T cmn.Dist] struct {
	o       *OneSided[T]
	k       int
	bufSize int
	next    int
	queue   []chan bufferedResult[T]
}

type bufferedResult[T cmn.Dist] struct {
	chunk []T
	err   error
}

func (o *OneSided[T]) BufferedCopiedChunks(ctx context.Context, k, bufSize int) *BufferedCopiedChunks[T] {
	debug.Assert(k > 0, "BufferedCopiedChunks: k must be positive")
	debug.Assert(bufSize > 0, "BufferedCopiedChunks: bufSize must be positive")
	b := &BufferedCopiedChunks[T]{o: o, k: k, bufSize: bufSize}
	for i := 0; i < bufSize; i++ {
		b.scheduleNext(ctx)
	}
	return b
}

// scheduleNext issues the fetch for the next unscheduled chunk (if any)
// and appends its result channel to the back of the queue, growing the
// number of in-flight fetches by one.
func (b *BufferedCopiedChunks[T]) scheduleNext(ctx context.Context) {
	if b.next >= b.o.arr.Len() {
		return
	}
	lo := b.next
	hi := lo + b.k
	if hi > b.o.arr.Len() {
		hi = b.o.arr.Len()
	}
	b.next = hi
	ch := make(chan bufferedResult[T], 1)
	go func() {
		chunk, err := b.o.fetchChunk(ctx, lo, hi)
		ch <- bufferedResult[T]{chunk: chunk, err: err}
	}()
	b.queue = append(b.queue, ch)
}

// Next returns the oldest still-pending chunk, then schedules one more
// fetch so up to bufSize chunks stay in flight for as long as any
// remain unscheduled.
func (b *BufferedCopiedChunks[T]) Next(ctx context.Context) (chunk []T, ok bool, err error) {
	if len(b.queue) == 0 {
		return nil, false, nil
	}
	ch := b.queue[0]
	b.queue = b.queue[1:]
	res := <-ch
	b.scheduleNext(ctx)
	if res.err != nil {
		return nil, false, res.err
	}
	return res.chunk, true, nil
}
