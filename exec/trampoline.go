package exec

import (
	"sync"
	"time"

	"github.com/pgasrt/pgasrt/cmn/cos"
)

// Waitable is anything an async Task can suspend on: a transport send, a
// batch completion handle, or a nested async operation. It mirrors
// transport.Handle's shape without importing the transport package (to
// keep exec dependency-free of the fabric), callers hand in Handle
// implementations (transport.Handle satisfies this interface as-is).
type Waitable interface {
	PollComplete() bool
	Wait() error
}

// Task is a suspendable async closure backing for_each_async and other
// async-closure suspension points. Step runs until the task
// either finishes or needs to await a Waitable; the Trampoline resumes
// it by calling Step again once that Waitable completes. This is the
// Go-goroutine-friendly rendering of "a single trampoline that polls
// pending tasks and parks them on request handles" -- each Task's
// continuation is data (a closure), not a parked OS thread.
type Task interface {
	Step() (done bool, wait Waitable, err error)
}

// FuncTask adapts a single-shot func() error (no internal suspension
// points) into a Task -- the common case for bodies that don't
// themselves await anything, only the body's own completion matters.
type FuncTask func() error

func (f FuncTask) Step() (bool, Waitable, error) {
	err := f()
	return true, nil, err
}

type pendingTask struct {
	task Task
	wait Waitable
	done chan error
}

// Trampoline multiplexes many suspended Tasks over one Pool, polling
// outstanding Waitables on a fixed tick the way transport/collect.go's
// collector.do() polls stream idle-ticks. No OS thread (and in Go, no
// extra goroutine beyond the Pool's own fixed workers) is dedicated
// per Task.
type Trampoline struct {
	pool *Pool
	tick time.Duration

	mu      sync.Mutex
	pending []*pendingTask
	stopCh  *cos.StopCh
	runOnce sync.Once
}

func NewTrampoline(pool *Pool, tick time.Duration) *Trampoline {
	if tick <= 0 {
		tick = time.Millisecond
	}
	return &Trampoline{pool: pool, tick: tick, stopCh: cos.NewStopCh()}
}

func (t *Trampoline) Name() string { return "async-trampoline" }

// Run is the progress-thread loop: a single select over a ticker and a
// stop channel, exactly transport/collect.go's collector.run shape.
func (t *Trampoline) Run() error {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.advance()
		case <-t.stopCh.Listen():
			return nil
		}
	}
}

func (t *Trampoline) Stop(error) { t.stopCh.Close() }

func (t *Trampoline) advance() {
	t.mu.Lock()
	rest := t.pending[:0]
	ready := []*pendingTask{}
	for _, p := range t.pending {
		if p.wait == nil || p.wait.PollComplete() {
			ready = append(ready, p)
		} else {
			rest = append(rest, p)
		}
	}
	t.pending = rest
	t.mu.Unlock()

	for _, p := range ready {
		p := p
		t.pool.Submit(func() { t.resume(p) })
	}
}

func (t *Trampoline) resume(p *pendingTask) {
	if p.wait != nil {
		if err := p.wait.Wait(); err != nil {
			p.done <- err
			return
		}
	}
	done, wait, err := p.task.Step()
	if err != nil {
		p.done <- err
		return
	}
	if done {
		p.done <- nil
		return
	}
	p.wait = wait
	t.mu.Lock()
	t.pending = append(t.pending, p)
	t.mu.Unlock()
}

// Submit starts driving task to completion and returns a channel that
// receives exactly one value (nil or the first error observed) once the
// task finishes. The first Step() call happens inline on the caller's
// goroutine; subsequent resumptions after an await happen on the
// trampoline's progress tick.
func (t *Trampoline) Submit(task Task) <-chan error {
	done := make(chan error, 1)
	p := &pendingTask{task: task, done: done}
	t.resume(p)
	return done
}
