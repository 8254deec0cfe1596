package transport

import "sync"

// Handler kinds are a shared uint8 namespace per Fabric (RegisterHandler
// keys its map by this byte); every package that registers handlers on
// world PEs draws from the same sequence so two unrelated components
// (e.g. an Operation Engine and a GlobalLock coordinator) never collide
// on the same tag.
var kindMu sync.Mutex
var kindSeq uint8

// NextHandlerKind hands out the next unused active-message kind tag.
// Panics if the uint8 space is exhausted -- 256 distinct live
// components sharing one world is far beyond what this runtime expects.
func NextHandlerKind() uint8 {
	kindMu.Lock()
	defer kindMu.Unlock()
	k := kindSeq
	kindSeq++
	return k
}
