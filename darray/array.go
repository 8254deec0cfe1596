package darray

import (
	"sync"
	"unsafe"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/cmn/debug"
	"github.com/pgasrt/pgasrt/memsys"
	"golang.org/x/sync/errgroup"
)

var arrayIDSeq uint64
var arrayIDMu sync.Mutex

func nextArrayID() uint64 {
	arrayIDMu.Lock()
	defer arrayIDMu.Unlock()
	arrayIDSeq++
	return arrayIDSeq
}

// Array binds a Distribution to one memsys.Region per team member (the
// storage backing Array Storage). A sub-array (SubArray) shares its
// parent's shards and root Distribution and differs only by a window
// [windowStart, windowStart+windowLen) into the root's global index
// space -- sub-array index translation composes by addition of that
// window offset.
type Array[T cmn.Dist] struct {
	id          uint64
	team        *cluster.Team
	dist        Distribution // always the ROOT distribution, even for sub-arrays
	elemSize    int
	shards      []*memsys.Region // shards[i] is owned by team-local rank i
	windowStart int
	windowLen   int
}

// NewArray collectively allocates one shard per team member, sized
// dist.LocalLenOn(rank), following xs/tcobjs.go's fan-out-then-join
// shape (golang.org/x/sync/errgroup).
func NewArray[T cmn.Dist](team *cluster.Team, dist Distribution) (*Array[T], error) {
	debug.Assert(dist.P() == team.Size(), "NewArray: distribution P must match team size")
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	shards := make([]*memsys.Region, team.Size())
	var g errgroup.Group
	for i := 0; i < team.Size(); i++ {
		i := i
		g.Go(func() error {
			r, err := memsys.AllocOneSided(team, i, dist.LocalLenOn(i), elemSize)
			if err != nil {
				return err
			}
			shards[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, cmn.Wrap(err, "darray.NewArray: shard allocation failed")
	}
	return &Array[T]{id: nextArrayID(), team: team, dist: dist, elemSize: elemSize, shards: shards, windowStart: 0, windowLen: dist.N()}, nil
}

func (a *Array[T]) ID() uint64          { return a.id }
func (a *Array[T]) Team() *cluster.Team { return a.team }
func (a *Array[T]) Dist() Distribution  { return a.dist }
func (a *Array[T]) ElemSize() int       { return a.elemSize }
func (a *Array[T]) Len() int            { return a.windowLen }

// Shard returns the memsys.Region owned by team-local rank.
func (a *Array[T]) Shard(rank int) *memsys.Region { return a.shards[rank] }

func (a *Array[T]) localRank(pe *cluster.PE) int {
	rank, ok := a.team.LocalRank(pe.Rank())
	debug.Assert(ok, "darray: PE is not a member of this array's team")
	return rank
}

// GetLocal reads the element at raw local storage offset on the shard
// owned by pe's rank -- not window-relative; callers iterate only the
// offsets LocalOffsets(pe) returns when operating on a sub-array.
func (a *Array[T]) GetLocal(pe *cluster.PE, localOffset int) T {
	shard := a.shards[a.localRank(pe)]
	buf := shard.AsSlice()
	bits := cmn.ReadBitsWidth(buf[localOffset*a.elemSize:], a.elemSize)
	return cmn.FromBits[T](bits)
}

// SetLocal writes the element at raw local storage offset on the shard
// owned by pe's rank.
func (a *Array[T]) SetLocal(pe *cluster.PE, localOffset int, v T) {
	shard := a.shards[a.localRank(pe)]
	buf := shard.AsSlice()
	cmn.WriteBitsWidth(buf[localOffset*a.elemSize:], a.elemSize, cmn.ToBits(v))
}

// GlobalIndexFromLocal translates a raw local storage offset on pe's
// shard into this (sub-)array's own index space [0, Len()).
func (a *Array[T]) GlobalIndexFromLocal(pe *cluster.PE, localOffset int) int {
	return a.SubarrayIndexFromLocal(pe, localOffset) - a.windowStart
}

// SubarrayIndexFromLocal translates a raw local storage offset on pe's
// shard into the ROOT array's global index space, regardless of any
// window this Array represents. GlobalIndexFromLocal plus the window
// start equals this value.
func (a *Array[T]) SubarrayIndexFromLocal(pe *cluster.PE, localOffset int) int {
	rank := a.localRank(pe)
	return a.dist.GlobalOf(rank, localOffset)
}

// LocalOffsets returns the raw local storage offsets on pe's shard that
// fall within this (sub-)array's window, in ascending order.
func (a *Array[T]) LocalOffsets(pe *cluster.PE) []int {
	rank := a.localRank(pe)
	n := a.dist.LocalLenOn(rank)
	offsets := make([]int, 0, n)
	lo, hi := a.windowStart, a.windowStart+a.windowLen
	for off := 0; off < n; off++ {
		g := a.dist.GlobalOf(rank, off)
		if g >= lo && g < hi {
			offsets = append(offsets, off)
		}
	}
	return offsets
}

// SubArray returns a zero-copy view over this (sub-)array's own index
// range [start, end); shares the parent's shards and root Distribution.
func (a *Array[T]) SubArray(start, end int) *Array[T] {
	debug.Assert(start >= 0 && end <= a.windowLen && start <= end, "SubArray: range out of bounds")
	return &Array[T]{
		id: nextArrayID(), team: a.team, dist: a.dist, elemSize: a.elemSize, shards: a.shards,
		windowStart: a.windowStart + start, windowLen: end - start,
	}
}

// OwnerOf and LocalOffsetOf make Array satisfy ops.Locator directly,
// translating this (sub-)array's own index space into the root
// Distribution's global index space by adding the window start.
func (a *Array[T]) OwnerOf(i int) int       { return a.dist.OwnerOf(a.windowStart + i) }
func (a *Array[T]) LocalOffsetOf(i int) int { return a.dist.LocalOffsetOf(a.windowStart + i) }
