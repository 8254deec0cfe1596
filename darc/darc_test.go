package darc

import (
	"context"
	"sync"
	"testing"

	"github.com/pgasrt/pgasrt/cluster"
	"github.com/pgasrt/pgasrt/cmn"
)

// TestDestructorRunsExactlyOnceAfterAllDrop mirrors
// original_source/examples/experimental/darc.rs: clone on PE0, then
// every PE drops its own handle; the destructor must fire exactly once,
// only after the last drop.
func TestDestructorRunsExactlyOnceAfterAllDrop(t *testing.T) {
	const p = 3
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	var fired int
	var mu sync.Mutex
	refs := New[int](w.Team(), 0, 10, func(int) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	if len(refs) != p {
		t.Fatalf("New returned %d refs, want %d", len(refs), p)
	}

	clone := refs[0].Clone()
	ctx := context.Background()
	if err := clone.Drop(ctx); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	if fired != 0 {
		t.Fatalf("destructor fired after only a clone dropped, with all %d handle-roots still live", p)
	}
	mu.Unlock()

	for i := 0; i < p; i++ {
		if err := refs[i].Drop(ctx); err != nil {
			t.Fatal(err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("destructor fired %d times, want exactly 1", fired)
	}
}

func TestDropOrderDoesNotMatterCreatorFirst(t *testing.T) {
	const p = 2
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	var fired bool
	var mu sync.Mutex
	refs := New[string](w.Team(), 0, "payload", func(string) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	ctx := context.Background()
	// The creator (rank 0) drops first: a handle whose creator has
	// already released its own handle is still valid as long as any
	// other PE holds one.
	if err := refs[0].Drop(ctx); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	stillAlive := !fired
	mu.Unlock()
	if !stillAlive {
		t.Fatal("pointee destroyed while rank 1 still holds a handle")
	}
	if got := refs[1].Value(); got != "payload" {
		t.Errorf("Value() after creator dropped = %q, want %q", got, "payload")
	}
	if err := refs[1].Drop(ctx); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !fired {
		t.Error("destructor never fired after the last handle dropped")
	}
}

func TestCaptureAddsAnIndependentHandleRoot(t *testing.T) {
	const p = 2
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	var fired bool
	refs := New[int](w.Team(), 0, 1, func(int) { fired = true })
	ctx := context.Background()

	captured, err := refs[0].Capture(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	// Drop every originally-issued handle; the captured one (an
	// independent handle-root) must keep the pointee alive.
	for _, r := range refs {
		if err := r.Drop(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if fired {
		t.Fatal("pointee destroyed while a captured handle is still outstanding")
	}
	if err := captured.Drop(ctx); err != nil {
		t.Fatal(err)
	}
	if !fired {
		t.Error("destructor never fired after the captured handle dropped")
	}
}

func TestWeakRefUpgradeFailsAfterDestruction(t *testing.T) {
	const p = 1
	w, err := cluster.BuildWorld(p, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	refs := New[int](w.Team(), 0, 42, nil)
	weak := refs[0].Downgrade()
	ctx := context.Background()

	upgraded, ok, err := weak.Upgrade(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Upgrade failed while the pointee was still alive")
	}
	if upgraded.Value() != 42 {
		t.Errorf("upgraded Value() = %d, want 42", upgraded.Value())
	}
	if err := upgraded.Drop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := refs[0].Drop(ctx); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := weak.Upgrade(ctx); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Error("Upgrade succeeded after the pointee was destroyed")
	}
}

// TestDarcOnStridedSubTeam checks the strided-sub-team shape: create on
// a strided sub-team, clone once per member, creator drops before the
// others; the pointee persists until the final drop.
func TestDarcOnStridedSubTeam(t *testing.T) {
	w, err := cluster.BuildWorld(4, cmn.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Teardown()

	team, err := w.NewStridedTeam(0, 2, 2) // world ranks 0, 2
	if err != nil {
		t.Fatal(err)
	}

	var fired bool
	refs := New[int](team, 0, 7, func(int) { fired = true })
	if len(refs) != 2 {
		t.Fatalf("New on a 2-member sub-team returned %d refs", len(refs))
	}

	ctx := context.Background()
	clones := make([]*Ref[int], len(refs))
	for i, r := range refs {
		clones[i] = r.Clone()
	}

	if err := refs[0].Drop(ctx); err != nil {
		t.Fatal(err)
	}
	if fired {
		t.Fatal("destructor fired before every handle-root dropped")
	}

	for _, c := range clones {
		if err := c.Drop(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if fired {
		t.Fatal("destructor fired while rank 1's original handle is still live")
	}
	if err := refs[1].Drop(ctx); err != nil {
		t.Fatal(err)
	}
	if !fired {
		t.Error("destructor never fired after the final drop")
	}
}
