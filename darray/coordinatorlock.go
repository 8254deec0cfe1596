package darray

import (
	"context"
	"sync"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/transport"
)

// coordinatorLock implements GlobalLock's distributed readers-writer
// lock, acquired by messaging a designated coordinator PE: every
// acquire/release crosses the transport as an active message to the
// coordinator rank's Fabric, which performs the actual sync.RWMutex
// operation. Go's RWMutex does not require the unlocking goroutine to
// match the locking one, which is exactly what's needed here since
// acquire and release travel as separate messages.
type coordinatorLock struct {
	coordinator *cluster.PE
	acquireRKind, releaseRKind, acquireWKind, releaseWKind uint8
}

func newCoordinatorLock(team *cluster.Team, coordinatorRank int) *coordinatorLock {
	var mu sync.RWMutex
	coord := team.PE(coordinatorRank)
	c := &coordinatorLock{
		coordinator:  coord,
		acquireRKind: transport.NextHandlerKind(),
		releaseRKind: transport.NextHandlerKind(),
		acquireWKind: transport.NextHandlerKind(),
		releaseWKind: transport.NextHandlerKind(),
	}
	coord.Fabric().RegisterHandler(c.acquireRKind, func(from int, payload []byte) []byte {
		mu.RLock()
		return nil
	})
	coord.Fabric().RegisterHandler(c.releaseRKind, func(from int, payload []byte) []byte {
		mu.RUnlock()
		return nil
	})
	coord.Fabric().RegisterHandler(c.acquireWKind, func(from int, payload []byte) []byte {
		mu.Lock()
		return nil
	})
	coord.Fabric().RegisterHandler(c.releaseWKind, func(from int, payload []byte) []byte {
		mu.Unlock()
		return nil
	})
	return c
}

func (c *coordinatorLock) acquireRead(ctx context.Context, issuer *cluster.PE) {
	issuer.Fabric().Send(ctx, c.coordinator.Rank(), c.acquireRKind, nil).Wait()
}
func (c *coordinatorLock) releaseRead(ctx context.Context, issuer *cluster.PE) {
	issuer.Fabric().Send(ctx, c.coordinator.Rank(), c.releaseRKind, nil).Wait()
}
func (c *coordinatorLock) acquireWrite(ctx context.Context, issuer *cluster.PE) {
	issuer.Fabric().Send(ctx, c.coordinator.Rank(), c.acquireWKind, nil).Wait()
}
func (c *coordinatorLock) releaseWrite(ctx context.Context, issuer *cluster.PE) {
	issuer.Fabric().Send(ctx, c.coordinator.Rank(), c.releaseWKind, nil).Wait()
}
