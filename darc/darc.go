// Package darc implements the Distributed Reference: a remote-counted
// handle whose pointee is destroyed only once every
// team member's local refcount has dropped to zero. Grounded on the
// teacher's cluster/lom.go sync.Pool-backed refcount discipline and the
// xs/tcobjs.go tcowi.refc countdown-to-fire pattern, generalized from
// "countdown per in-flight copy" to "countdown per team member still
// holding a handle." Lifecycle semantics (weak-ref upgrade, the
// creator keeping the vector alive independent of its own handle) are
// resolved against original_source/examples/experimental/darc.rs.
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package darc

import (
	"context"
	"sync"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/cmn/debug"
	"github.com/pgasrt/pgasrt/transport"
	"go.uber.org/atomic"
)

var idSeq uint64
var idMu sync.Mutex

func nextID() uint64 {
	idMu.Lock()
	defer idMu.Unlock()
	idSeq++
	return idSeq
}

// pointee is the single, creator-resident object every Ref and WeakRef
// over one darc ultimately points at. remoteCounts[rank] counts how
// many independent handle-roots team-local rank `rank` currently holds
// (one per collective New, plus one per successful Capture/Upgrade);
// it is NOT a sum of every local Clone, which only bumps the holding
// PE's own local counter.
type pointee[T any] struct {
	mu           sync.Mutex
	value        T
	destructor   func(T)
	remoteCounts []int32
	destroyed    bool
}

func (p *pointee[T]) incrementRemote(rank int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	debug.Assert(!p.destroyed, "darc: incrementRemote on an already-destroyed pointee")
	p.remoteCounts[rank]++
}

func (p *pointee[T]) decrementRemote(rank int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	p.remoteCounts[rank]--
	debug.Assert(p.remoteCounts[rank] >= 0, "darc: remote count underflow")
	for _, c := range p.remoteCounts {
		if c > 0 {
			return
		}
	}
	p.destroyed = true
	if p.destructor != nil {
		p.destructor(p.value)
	}
}

// tryUpgrade increments rank's remote count and reports success iff the
// pointee is still alive -- the atomic "consult the vector, fail if
// gone" check a WeakRef.Upgrade requires.
func (p *pointee[T]) tryUpgrade(rank int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return false
	}
	p.remoteCounts[rank]++
	return true
}

// Ref is one team member's live handle to a darc. Every independent
// handle-root (one per collective New, one per successful Capture or
// Upgrade) owns its own *atomic.Int32 local counter; Clone shares that
// same counter rather than allocating a new one, matching "clone bumps
// the local count" without touching the remote vector.
type Ref[T any] struct {
	id          uint64
	team        *cluster.Team
	creatorRank int
	holderRank  int
	p           *pointee[T]
	local       *atomic.Int32
	decKind     uint8
	incKind     uint8
	upgradeKind uint8
}

// New is the collective `new(team, value)`: every team
// member receives its own Ref, all starting with local count 1 and all
// already reflected in the pointee's remote-count vector. The pointee's
// canonical storage lives on creatorRank; its three active-message
// handlers (remote-decrement, remote-capture-increment, weak upgrade)
// are registered once, on that PE's Fabric only.
func New[T any](team *cluster.Team, creatorRank int, value T, destructor func(T)) []*Ref[T] {
	debug.Assert(creatorRank >= 0 && creatorRank < team.Size(), "darc.New: creator rank out of range")
	id := nextID()
	p := &pointee[T]{value: value, destructor: destructor, remoteCounts: make([]int32, team.Size())}
	for i := range p.remoteCounts {
		p.remoteCounts[i] = 1
	}

	decKind := transport.NextHandlerKind()
	incKind := transport.NextHandlerKind()
	upgradeKind := transport.NextHandlerKind()

	creator := team.PE(creatorRank)
	creator.Fabric().RegisterHandler(decKind, func(from int, _ []byte) []byte {
		rank, ok := team.LocalRank(from)
		debug.Assert(ok, "darc: remote-decrement from a non-member PE")
		p.decrementRemote(rank)
		return nil
	})
	creator.Fabric().RegisterHandler(incKind, func(from int, _ []byte) []byte {
		rank, ok := team.LocalRank(from)
		debug.Assert(ok, "darc: capture from a non-member PE")
		p.incrementRemote(rank)
		return nil
	})
	creator.Fabric().RegisterHandler(upgradeKind, func(from int, _ []byte) []byte {
		rank, ok := team.LocalRank(from)
		debug.Assert(ok, "darc: upgrade from a non-member PE")
		if p.tryUpgrade(rank) {
			return []byte{1}
		}
		return []byte{0}
	})

	refs := make([]*Ref[T], team.Size())
	for i := 0; i < team.Size(); i++ {
		refs[i] = &Ref[T]{
			id: id, team: team, creatorRank: creatorRank, holderRank: i, p: p,
			local: atomic.NewInt32(1), decKind: decKind, incKind: incKind, upgradeKind: upgradeKind,
		}
	}
	return refs
}

// Value returns the pointee. The caller must hold a live Ref (one it
// has not yet Drop'd) -- there is no protection against reading through
// an already-dropped handle, matching a raw owned-value access.
func (r *Ref[T]) Value() T { return r.p.value }

func (r *Ref[T]) HolderRank() int { return r.holderRank }

// Clone bumps this handle-root's local count and returns a new Ref
// wrapping the same counter -- a local clone bumps the local count;
// no message crosses the transport.
func (r *Ref[T]) Clone() *Ref[T] {
	r.local.Inc()
	dup := *r
	return &dup
}

// Capture simulates an active message carrying r to targetRank: the
// creator's remote-count vector gains one entry for targetRank before
// the returned handle is usable -- the remote side, upon receiving the
// serialized handle, increments its own PE's remote count.
func (r *Ref[T]) Capture(ctx context.Context, targetRank int) (*Ref[T], error) {
	issuer := r.team.PE(targetRank)
	if err := issuer.Fabric().Send(ctx, r.team.WorldRank(r.creatorRank), r.incKind, nil).Wait(); err != nil {
		return nil, cmn.Wrap(err, "darc.Capture: remote-increment failed")
	}
	return &Ref[T]{
		id: r.id, team: r.team, creatorRank: r.creatorRank, holderRank: targetRank, p: r.p,
		local: atomic.NewInt32(1), decKind: r.decKind, incKind: r.incKind, upgradeKind: r.upgradeKind,
	}, nil
}

// Drop decrements this handle-root's local count; on reaching zero it
// sends the remote-decrement active message to the creator. Safe to
// call once per handle-root; calling it again after the count has
// already reached zero would underflow and is the caller's bug to
// avoid, same as double-freeing any other owned resource.
func (r *Ref[T]) Drop(ctx context.Context) error {
	if r.local.Dec() != 0 {
		return nil
	}
	issuer := r.team.PE(r.holderRank)
	if err := issuer.Fabric().Send(ctx, r.team.WorldRank(r.creatorRank), r.decKind, nil).Wait(); err != nil {
		return cmn.Wrap(err, "darc.Drop: remote-decrement failed")
	}
	return nil
}

// Downgrade returns a WeakRef that holds no count of its own -- the
// back-edge construction needed to break cyclic clone graphs.
func (r *Ref[T]) Downgrade() *WeakRef[T] {
	return &WeakRef[T]{
		id: r.id, team: r.team, creatorRank: r.creatorRank, holderRank: r.holderRank, p: r.p,
		decKind: r.decKind, incKind: r.incKind, upgradeKind: r.upgradeKind,
	}
}

// WeakRef is a non-owning descriptor: it keeps no handle-root alive and
// can fail to upgrade once the pointee is gone.
type WeakRef[T any] struct {
	id          uint64
	team        *cluster.Team
	creatorRank int
	holderRank  int
	p           *pointee[T]
	decKind     uint8
	incKind     uint8
	upgradeKind uint8
}

// Upgrade attempts to mint a new, independent handle-root on the
// WeakRef's holder rank. It fails (ok=false, err=nil) iff the pointee
// has already been destroyed; the check and the vector increment that
// backs a successful upgrade happen atomically at the creator, under
// the same pointee.mu that guards destruction, so a concurrent Drop
// cannot race an Upgrade into observing a pointee that is then
// destroyed out from under it.
func (w *WeakRef[T]) Upgrade(ctx context.Context) (ref *Ref[T], ok bool, err error) {
	issuer := w.team.PE(w.holderRank)
	h := issuer.Fabric().Send(ctx, w.team.WorldRank(w.creatorRank), w.upgradeKind, nil)
	if err := h.Wait(); err != nil {
		return nil, false, cmn.Wrap(err, "darc.Upgrade: request failed")
	}
	reply := h.Reply()
	if len(reply) == 0 || reply[0] == 0 {
		return nil, false, nil
	}
	return &Ref[T]{
		id: w.id, team: w.team, creatorRank: w.creatorRank, holderRank: w.holderRank, p: w.p,
		local: atomic.NewInt32(1), decKind: w.decKind, incKind: w.incKind, upgradeKind: w.upgradeKind,
	}, true, nil
}
