// Package transport defines the contract the runtime core consumes from
// a reliable message-passing fabric -- typed active-message delivery and
// one-sided PUT/GET of registered memory -- and ships one in-process
// implementation (Fabric over goroutines/channels) sufficient to drive
// every testable property of the runtime without a real network.
//
// The wire-level fabric itself (RDMA, TCP, whatever a production
// deployment binds) is out of scope for this repository: it is an
// external collaborator, contract only.
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package transport

import "context"

// Handle is the opaque completion token returned by every async fabric
// operation (active-message send, PUT, GET). The core does not specify
// the wire format; it requires opaque handles implementing wait() and
// poll_complete().
type Handle interface {
	// Wait blocks until the operation completes and returns its error,
	// if any.
	Wait() error
	// PollComplete reports whether the operation has completed without
	// blocking.
	PollComplete() bool
}

// HandlerFunc processes an inbound active message on the receiving PE
// and returns the reply payload (possibly nil for fire-and-forget
// messages).
type HandlerFunc func(from int, payload []byte) []byte

// Fabric is the transport contract. Every PE in a run holds exactly one
// Fabric bound to its rank.
type Fabric interface {
	Rank() int
	Size() int

	// RegisterHandler binds an active-message kind tag to its handler.
	// Registration must happen before any PE sends that kind.
	RegisterHandler(kind uint8, h HandlerFunc)

	// Send delivers an active message to the target PE and returns a
	// handle that completes with the handler's reply payload.
	Send(ctx context.Context, target int, kind uint8, payload []byte) ReplyHandle

	// Put copies src into the target PE's region (named by regionID, see
	// RegisterRegion) at offset bytes. Completion on the source side
	// does not imply visibility on the destination until a subsequent
	// Barrier.
	Put(ctx context.Context, target int, regionID uint64, offset int, src []byte) Handle

	// Get copies target PE's region starting at offset bytes into dst.
	Get(ctx context.Context, target int, regionID uint64, offset int, dst []byte) Handle

	// RegisterRegion exposes a local byte region at a stable id so
	// remote Put/Get can address it; offset in Put/Get above is relative
	// to the start of the region named by regionID.
	RegisterRegion(regionID uint64, region []byte)
	UnregisterRegion(regionID uint64)

	// Barrier is the collective rendezvous and visibility fence: blocks
	// until every PE in the team has called Barrier, and everything
	// Put/Sent before it is visible after it.
	Barrier()

	// BytesSent returns the cumulative bytes sent by this PE so far,
	// an observable metric.
	BytesSent() uint64
}

// ReplyHandle is the completion handle for an active-message Send: it
// carries the reply payload once the remote handler has returned.
type ReplyHandle interface {
	Handle
	Reply() []byte
}
