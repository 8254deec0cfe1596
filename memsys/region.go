package memsys

import (
	"context"
	"sync"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/cmn/debug"
	"github.com/pgasrt/pgasrt/transport"
	"golang.org/x/sync/errgroup"
)

// Flavor distinguishes a collectively-allocated, symmetric region from
// a one-sided region owned by a single allocator PE.
type Flavor int

const (
	Shared Flavor = iota
	OneSided
)

func (f Flavor) String() string {
	if f == Shared {
		return "shared"
	}
	return "one-sided"
}

var regionIDSeq uint64
var regionIDMu sync.Mutex

func nextRegionID() uint64 {
	regionIDMu.Lock()
	defer regionIDMu.Unlock()
	regionIDSeq++
	return regionIDSeq
}

// Descriptor is the wire-transmissible handle to a Region -- what a
// non-owner PE of a OneSided region carries instead of the backing
// buffer.
type Descriptor struct {
	RegionID  uint64
	Flavor    Flavor
	OwnerRank int // team-local rank; meaningless (ignored) for Shared
	ElemSize  int
	Len       int // element count
}

// Region is a pinned, transport-registered byte buffer bound to a typed
// element size. base (the backing []byte) remains valid and registered
// with the transport fabric for the Region's entire lifetime.
type Region struct {
	team       *cluster.Team
	regionID   uint64
	flavor     Flavor
	elemSize   int
	len        int // element count
	baseOffset int // byte offset into the registered buffer this view starts at
	ownerRank  int // team-local rank holding the backing buffer
	buf        []byte
}

// AllocShared collectively allocates `count` elements of `elemSize` on
// every member of team, registering each PE's instance under the same
// region id so remote Put/Get can address "rank i's shared region" by
// name. Fails with AllocFailed if any member cannot allocate (fanned
// out with errgroup, mirroring xs/tcobjs.go's per-target
// fan-out-then-join shape).
func AllocShared(team *cluster.Team, count, elemSize int) ([]*Region, error) {
	if count < 0 || elemSize <= 0 {
		return nil, cmn.NewAllocFailed("alloc_shared: invalid count=%d elemSize=%d", count, elemSize)
	}
	regionID := nextRegionID()
	regions := make([]*Region, team.Size())
	var g errgroup.Group
	for i := 0; i < team.Size(); i++ {
		i := i
		g.Go(func() error {
			buf := DefaultSlabPool.Alloc(count * elemSize)
			pe := team.PE(i)
			pe.Fabric().RegisterRegion(regionID, buf)
			regions[i] = &Region{
				team: team, regionID: regionID, flavor: Shared,
				elemSize: elemSize, len: count, ownerRank: i, buf: buf,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, cmn.Wrap(err, "alloc_shared failed")
	}
	return regions, nil
}

// AllocOneSided allocates `count` elements of `elemSize` on a single
// allocator PE (team-local rank ownerRank); it is NOT collective. Other
// team members receive only a Descriptor (see OpenDescriptor).
func AllocOneSided(team *cluster.Team, ownerRank, count, elemSize int) (*Region, error) {
	if ownerRank < 0 || ownerRank >= team.Size() {
		return nil, cmn.NewAllocFailed("alloc_one_sided: owner rank %d out of range [0,%d)", ownerRank, team.Size())
	}
	if count < 0 || elemSize <= 0 {
		return nil, cmn.NewAllocFailed("alloc_one_sided: invalid count=%d elemSize=%d", count, elemSize)
	}
	buf := DefaultSlabPool.Alloc(count * elemSize)
	regionID := nextRegionID()
	team.PE(ownerRank).Fabric().RegisterRegion(regionID, buf)
	return &Region{
		team: team, regionID: regionID, flavor: OneSided,
		elemSize: elemSize, len: count, ownerRank: ownerRank, buf: buf,
	}, nil
}

// Descriptor returns the wire-transmissible handle for this Region.
func (r *Region) Descriptor() Descriptor {
	return Descriptor{RegionID: r.regionID, Flavor: r.flavor, OwnerRank: r.ownerRank, ElemSize: r.elemSize, Len: r.len}
}

// OpenDescriptor reconstructs a remote (non-owning) view of a Region
// from its Descriptor -- no local backing buffer, Put/Get only.
func OpenDescriptor(team *cluster.Team, d Descriptor) *Region {
	return &Region{team: team, regionID: d.RegionID, flavor: d.Flavor, elemSize: d.ElemSize, len: d.Len, ownerRank: d.OwnerRank}
}

func (r *Region) Flavor() Flavor  { return r.flavor }
func (r *Region) Len() int        { return r.len }
func (r *Region) ElemSize() int   { return r.elemSize }
func (r *Region) OwnerRank() int  { return r.ownerRank }
func (r *Region) RegionID() uint64 { return r.regionID }

// AsSlice returns a local, read-oriented view of this PE's backing
// bytes. The caller asserts the absence of concurrent remote writers:
// this is a raw escape hatch, not synchronized.
func (r *Region) AsSlice() []byte {
	debug.Assert(r.buf != nil, "AsSlice: this PE does not hold the backing buffer for this region")
	return r.buf[r.baseOffset : r.baseOffset+r.len*r.elemSize]
}

// AsMutSlice is AsSlice's mutable counterpart.
func (r *Region) AsMutSlice() []byte { return r.AsSlice() }

// SubRegion returns a zero-copy slice of this Region over element range
// [start,end); its lifetime shares the parent's.
func (r *Region) SubRegion(start, end int) *Region {
	debug.Assert(start >= 0 && end <= r.len && start <= end, "SubRegion: range out of bounds")
	sub := &Region{
		team: r.team, regionID: r.regionID, flavor: r.flavor,
		elemSize: r.elemSize, len: end - start,
		baseOffset: r.baseOffset + start*r.elemSize, ownerRank: r.ownerRank,
	}
	if r.buf != nil {
		sub.buf = r.buf
	}
	return sub
}

// Put copies src (len(src) must be a multiple of ElemSize) from the
// calling PE into this Region starting at element offset, on the
// remote PE this Region's ownerRank names. Completion on the source
// does not imply visibility on the destination until a subsequent
// fence/barrier.
func (r *Region) Put(ctx context.Context, from *cluster.PE, offsetElems int, src []byte) transport.Handle {
	target := r.team.PE(r.ownerRank)
	byteOff := r.baseOffset + offsetElems*r.elemSize
	return from.Fabric().Put(ctx, target.Rank(), r.regionID, byteOff, src)
}

// Get copies this Region's bytes starting at element offset into dst,
// issued by the calling PE.
func (r *Region) Get(ctx context.Context, from *cluster.PE, offsetElems int, dst []byte) transport.Handle {
	target := r.team.PE(r.ownerRank)
	byteOff := r.baseOffset + offsetElems*r.elemSize
	return from.Fabric().Get(ctx, target.Rank(), r.regionID, byteOff, dst)
}

// Free returns a OneSided or per-PE-shared backing buffer to the slab
// pool and unregisters it from the transport. Safe only once every
// holder has released its handle (callers coordinate via darc or an
// explicit collective in the owning component).
func (r *Region) Free(owner *cluster.PE) {
	if r.buf == nil {
		return
	}
	owner.Fabric().UnregisterRegion(r.regionID)
	DefaultSlabPool.Free(len(r.buf), r.buf)
	r.buf = nil
}
