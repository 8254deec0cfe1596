package ops

import (
	"context"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/transport"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Locator is the subset of darray.Distribution the engine needs to
// place a batch entry: which team-local rank owns array index i, and
// the local storage offset on that rank's shard. Kept as a narrow
// interface (rather than importing darray, which imports ops) so
// darray's Distribution/Array types satisfy it without either package
// depending on the other.
type Locator interface {
	OwnerOf(i int) int
	LocalOffsetOf(i int) int
}

// ExecFunc applies a single-operand op (everything but compare-exchange
// family) to the element at localOffset on pe's shard, under whatever
// consistency rule the calling wrapper enforces, and returns the prior
// value's canonical bit pattern.
type ExecFunc func(pe *cluster.PE, localOffset int, opKind cmn.OpKind, operand uint64) uint64

// CASFunc applies a compare-exchange or compare-exchange-epsilon op and
// reports whether the swap took effect.
type CASFunc func(pe *cluster.PE, localOffset int, opKind cmn.OpKind, expected, desired, epsilonBits uint64) (prior uint64, success bool)

func nextKindPair() (uint8, uint8) {
	return transport.NextHandlerKind(), transport.NextHandlerKind()
}

// Engine is one array's Operation Engine instance: it owns a pair of
// active-message kinds (plain ops, compare-exchange ops) registered on
// every team member's transport.Fabric, and fans batched requests out
// per destination the way xs/tcobjs.go does (one pending bucket per
// target, one message per target, join on all replies).
type Engine struct {
	team     *cluster.Team
	locator  Locator
	arrayID  uint64
	kind     uint8
	casKind  uint8
	registry *Registry
}

// BatchHook brackets processing of one incoming active message's
// entries on the receiving PE: LocalLock uses it to take its
// readers-writer lock once per batch-message rather than once per
// entry (see DESIGN.md's Open Question decision on lock granularity).
// Unsafe/Atomic pass nil.
type BatchHook func(pe *cluster.PE) (end func())

// NewEngine registers the engine's handlers on every member of team and
// returns the ready-to-use dispatcher. exec and cas implement the
// consistency rule (Unsafe/Atomic/LocalLock/GlobalLock) that owns
// local execution; the engine itself only routes and batches.
// execHook/casHook may be nil.
func NewEngine(team *cluster.Team, locator Locator, arrayID uint64, exec ExecFunc, cas CASFunc, execHook, casHook BatchHook) *Engine {
	kind, casKind := nextKindPair()
	e := &Engine{team: team, locator: locator, arrayID: arrayID, kind: kind, casKind: casKind, registry: DefaultRegistry()}
	for i := 0; i < team.Size(); i++ {
		pe := team.PE(i)
		pe.Fabric().RegisterHandler(kind, func(from int, payload []byte) []byte {
			var msg cmn.BatchMessage
			if _, err := msg.UnmarshalMsg(payload); err != nil {
				return (&cmn.ResultMessage{}).MarshalMsg(nil)
			}
			if execHook != nil {
				end := execHook(pe)
				defer end()
			}
			reply := cmn.ResultMessage{Entries: make([]cmn.ResultEntry, len(msg.Entries))}
			for idx, entry := range msg.Entries {
				v := exec(pe, int(entry.LocalOffset), msg.OpKind, entry.Operand)
				reply.Entries[idx] = cmn.ResultEntry{Slot: entry.Slot, Value: v, Success: true}
			}
			return reply.MarshalMsg(nil)
		})
		pe.Fabric().RegisterHandler(casKind, func(from int, payload []byte) []byte {
			var msg cmn.CompareBatchMessage
			if _, err := msg.UnmarshalMsg(payload); err != nil {
				return (&cmn.ResultMessage{}).MarshalMsg(nil)
			}
			if casHook != nil {
				end := casHook(pe)
				defer end()
			}
			reply := cmn.ResultMessage{Entries: make([]cmn.ResultEntry, len(msg.Entries))}
			for idx, entry := range msg.Entries {
				prior, ok := cas(pe, int(entry.LocalOffset), msg.OpKind, entry.Expected, entry.Desired, entry.EpsilonBits)
				reply.Entries[idx] = cmn.ResultEntry{Slot: entry.Slot, Value: prior, Success: ok}
			}
			return reply.MarshalMsg(nil)
		})
	}
	return e
}

type destBucket struct {
	rank    int // team-local
	entries []cmn.BatchEntry
}

// Submit runs the single-operand batched path (load/store/fetch-*):
// bucket indices by owning rank, send one BatchMessage per destination,
// scatter replies back into a result slice ordered by submission
// position.
func (e *Engine) Submit(ctx context.Context, issuer *cluster.PE, opKind cmn.OpKind, indices []int, operand func(pos int) uint64) ([]uint64, error) {
	spec, ok := e.registry.Lookup(opKind)
	if !ok {
		return nil, errors.Errorf("ops.Engine.Submit: op kind %q is not registered", opKind)
	}
	if spec.CompareExchange {
		return nil, errors.Errorf("ops.Engine.Submit: op kind %q belongs to the compare-exchange family, submit it via SubmitCompareExchange", opKind)
	}
	buckets := map[int]*destBucket{}
	order := []int{}
	for pos, i := range indices {
		rank := e.locator.OwnerOf(i)
		b, ok := buckets[rank]
		if !ok {
			b = &destBucket{rank: rank}
			buckets[rank] = b
			order = append(order, rank)
		}
		b.entries = append(b.entries, cmn.BatchEntry{
			LocalOffset: uint64(e.locator.LocalOffsetOf(i)),
			Operand:     operand(pos),
			Slot:        uint32(pos),
		})
	}
	results := make([]uint64, len(indices))
	var g errgroup.Group
	for _, rank := range order {
		b := buckets[rank]
		g.Go(func() error {
			msg := cmn.BatchMessage{OpKind: opKind, ArrayID: e.arrayID, Entries: b.entries}
			payload := msg.MarshalMsg(nil)
			worldRank := e.team.WorldRank(b.rank)
			reply := issuer.Fabric().Send(ctx, worldRank, e.kind, payload)
			if err := reply.Wait(); err != nil {
				return err
			}
			var rm cmn.ResultMessage
			if _, err := rm.UnmarshalMsg(reply.Reply()); err != nil {
				return err
			}
			for _, re := range rm.Entries {
				results[re.Slot] = re.Value
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, cmn.Wrap(err, "ops.Engine.Submit: batch failed")
	}
	for range indices {
		issuer.World().Metrics().IncOpCompletion(opKind.String())
	}
	return results, nil
}

// CompareExchangeResult is one index's outcome from SubmitCompareExchange.
type CompareExchangeResult struct {
	Prior   uint64
	Success bool
}

// SubmitCompareExchange runs the two-operand batched path for
// compare-exchange and compare-exchange-epsilon.
func (e *Engine) SubmitCompareExchange(ctx context.Context, issuer *cluster.PE, opKind cmn.OpKind, indices []int, expected, desired func(pos int) uint64, epsilonBits func(pos int) uint64) ([]CompareExchangeResult, error) {
	spec, ok := e.registry.Lookup(opKind)
	if !ok {
		return nil, errors.Errorf("ops.Engine.SubmitCompareExchange: op kind %q is not registered", opKind)
	}
	if !spec.CompareExchange {
		return nil, errors.Errorf("ops.Engine.SubmitCompareExchange: op kind %q is not a compare-exchange kind, submit it via Submit", opKind)
	}
	type bucket struct {
		rank    int
		entries []cmn.CompareEntry
	}
	buckets := map[int]*bucket{}
	order := []int{}
	for pos, i := range indices {
		rank := e.locator.OwnerOf(i)
		b, ok := buckets[rank]
		if !ok {
			b = &bucket{rank: rank}
			buckets[rank] = b
			order = append(order, rank)
		}
		var eps uint64
		if epsilonBits != nil {
			eps = epsilonBits(pos)
		}
		b.entries = append(b.entries, cmn.CompareEntry{
			LocalOffset: uint64(e.locator.LocalOffsetOf(i)),
			Expected:    expected(pos),
			Desired:     desired(pos),
			EpsilonBits: eps,
			Slot:        uint32(pos),
		})
	}
	results := make([]CompareExchangeResult, len(indices))
	var g errgroup.Group
	for _, rank := range order {
		b := buckets[rank]
		g.Go(func() error {
			msg := cmn.CompareBatchMessage{OpKind: opKind, ArrayID: e.arrayID, Entries: b.entries}
			payload := msg.MarshalMsg(nil)
			worldRank := e.team.WorldRank(b.rank)
			reply := issuer.Fabric().Send(ctx, worldRank, e.casKind, payload)
			if err := reply.Wait(); err != nil {
				return err
			}
			var rm cmn.ResultMessage
			if _, err := rm.UnmarshalMsg(reply.Reply()); err != nil {
				return err
			}
			for _, re := range rm.Entries {
				results[re.Slot] = CompareExchangeResult{Prior: re.Value, Success: re.Success}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, cmn.Wrap(err, "ops.Engine.SubmitCompareExchange: batch failed")
	}
	for range indices {
		issuer.World().Metrics().IncOpCompletion(opKind.String())
	}
	return results, nil
}
