// Package darray implements the Distribution Map and Array Storage
// components and the four Consistency Wrappers over them. Grounded on
// cluster/lom.go's sync.Pool-backed allocation discipline and
// striped-locking idiom that the Atomic/LocalLock/GlobalLock wrappers
// generalize.
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package darray

import "github.com/pgasrt/pgasrt/cmn/debug"

// Distribution maps a global array index to its owning PE and back,
// under a total, bijective policy given (N, P). All methods are pure
// and constant-time.
type Distribution interface {
	Name() string
	N() int
	P() int
	OwnerOf(g int) int
	LocalOffsetOf(g int) int
	GlobalOf(pe, off int) int
	LocalLenOn(pe int) int
}

// blockSizes and blockStart implement the "first N-mod-P ranks get one
// extra element" tie-break (N=10,P=3 -> local lengths {4,3,3},
// owner_of(7)=2) rather than the looser "last PE absorbs the remainder"
// reading, so the worked example holds.
func blockSizes(n, p int) (base, rem int) {
	return n / p, n % p
}

func blockStart(n, p, pe int) int {
	base, rem := blockSizes(n, p)
	if pe <= rem {
		return pe * (base + 1)
	}
	return rem*(base+1) + (pe-rem)*base
}

// Block implements the Block distribution policy.
type Block struct {
	n, p int
}

func NewBlock(n, p int) *Block {
	debug.Assert(p > 0, "NewBlock: p must be positive")
	return &Block{n: n, p: p}
}

func (b *Block) Name() string { return "block" }
func (b *Block) N() int       { return b.n }
func (b *Block) P() int       { return b.p }

func (b *Block) OwnerOf(g int) int {
	base, rem := blockSizes(b.n, b.p)
	boundary := rem * (base + 1)
	if g < boundary {
		if base+1 == 0 {
			return 0
		}
		return g / (base + 1)
	}
	if base == 0 {
		return b.p - 1
	}
	return rem + (g-boundary)/base
}

func (b *Block) LocalOffsetOf(g int) int {
	pe := b.OwnerOf(g)
	return g - blockStart(b.n, b.p, pe)
}

func (b *Block) GlobalOf(pe, off int) int {
	return blockStart(b.n, b.p, pe) + off
}

func (b *Block) LocalLenOn(pe int) int {
	base, rem := blockSizes(b.n, b.p)
	if pe < rem {
		return base + 1
	}
	return base
}

// Cyclic implements the Cyclic distribution policy: element g lives on
// PE g mod P, at local offset g / P.
type Cyclic struct {
	n, p int
}

func NewCyclic(n, p int) *Cyclic {
	debug.Assert(p > 0, "NewCyclic: p must be positive")
	return &Cyclic{n: n, p: p}
}

func (c *Cyclic) Name() string { return "cyclic" }
func (c *Cyclic) N() int       { return c.n }
func (c *Cyclic) P() int       { return c.p }

func (c *Cyclic) OwnerOf(g int) int       { return g % c.p }
func (c *Cyclic) LocalOffsetOf(g int) int { return g / c.p }
func (c *Cyclic) GlobalOf(pe, off int) int {
	return off*c.p + pe
}
func (c *Cyclic) LocalLenOn(pe int) int {
	base, rem := blockSizes(c.n, c.p)
	if pe < rem {
		return base + 1
	}
	return base
}
