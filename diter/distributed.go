package diter

import (
	"sync"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/darray"
	"github.com/pgasrt/pgasrt/exec"
)

// Distributed is the whole-array iterator: for_each visits every
// element of arr, team-wide, each PE driving its own local share
// through its own worker pool.
type Distributed[T cmn.Dist] struct {
	arr *darray.Array[T]
}

func NewDistributed[T cmn.Dist](arr *darray.Array[T]) *Distributed[T] {
	return &Distributed[T]{arr: arr}
}

// ForEach runs op, once per element, across every team member
// concurrently; within a PE, op also runs fanned out across that PE's
// pool (Local.ForEach). Returns once every PE's share has completed.
func (d *Distributed[T]) ForEach(op func(pe *cluster.PE, elem T)) {
	team := d.arr.Team()
	var wg sync.WaitGroup
	wg.Add(team.Size())
	for rank := 0; rank < team.Size(); rank++ {
		rank := rank
		go func() {
			defer wg.Done()
			pe := team.PE(rank)
			NewLocal[T](d.arr, pe).ForEach(func(elem T) { op(pe, elem) })
		}()
	}
	wg.Wait()
}

// ForEachAsync is for_each_async: op returns a Task per element (its
// suspendable body), driven to completion by pe's own Trampoline rather
// than blocking a pool worker. Returns once every task, on every PE,
// has finished; the first error observed is returned.
func (d *Distributed[T]) ForEachAsync(op func(pe *cluster.PE, elem T) exec.Task) error {
	team := d.arr.Team()
	var wg sync.WaitGroup
	errs := make([]error, team.Size())
	wg.Add(team.Size())
	for rank := 0; rank < team.Size(); rank++ {
		rank := rank
		go func() {
			defer wg.Done()
			pe := team.PE(rank)
			local := NewLocal[T](d.arr, pe)
			done := make([]<-chan error, local.Len())
			for pos := 0; pos < local.Len(); pos++ {
				elem := local.Elem(pos)
				done[pos] = pe.Trampoline().Submit(op(pe, elem))
			}
			for _, ch := range done {
				if err := <-ch; err != nil && errs[rank] == nil {
					errs[rank] = err
				}
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
