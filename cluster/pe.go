package cluster

import (
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/exec"
	"github.com/pgasrt/pgasrt/transport"
)

// PE is one participant's local execution context: its transport
// handle, its worker pool, and its async trampoline. Every Array,
// operation, and iterator submitted "from this PE" runs through this
// handle.
type PE struct {
	world      *World
	rank       int
	fabric     transport.Fabric
	pool       *exec.Pool
	trampoline *exec.Trampoline
}

func (p *PE) Rank() int                     { return p.rank }
func (p *PE) World() *World                 { return p.world }
func (p *PE) Fabric() transport.Fabric      { return p.fabric }
func (p *PE) Pool() *exec.Pool              { return p.pool }
func (p *PE) Trampoline() *exec.Trampoline  { return p.trampoline }
func (p *PE) Config() *cmn.Config           { return p.world.cfg }
