package exec

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolFanOut(t *testing.T) {
	pool := NewPool(4)
	go pool.Run()
	defer pool.Stop(nil)

	var count int64
	fns := make([]func(), 20)
	for i := range fns {
		fns[i] = func() { atomic.AddInt64(&count, 1) }
	}
	pool.FanOut(fns)
	if count != 20 {
		t.Errorf("expected 20 calls, got %d", count)
	}
}

type countingWaitable struct {
	remaining int32
}

func (w *countingWaitable) PollComplete() bool {
	return atomic.AddInt32(&w.remaining, -1) <= 0
}
func (w *countingWaitable) Wait() error { return nil }

type stepTask struct {
	steps int
	done  int
}

func (s *stepTask) Step() (bool, Waitable, error) {
	s.done++
	if s.done >= s.steps {
		return true, nil, nil
	}
	return false, &countingWaitable{remaining: 2}, nil
}

func TestTrampolineMultiStepTask(t *testing.T) {
	pool := NewPool(2)
	go pool.Run()
	defer pool.Stop(nil)

	tr := NewTrampoline(pool, time.Millisecond)
	go tr.Run()
	defer tr.Stop(nil)

	task := &stepTask{steps: 3}
	errCh := tr.Submit(task)
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("task never completed")
	}
	if task.done != 3 {
		t.Errorf("expected 3 steps, got %d", task.done)
	}
}

func TestTrampolinePropagatesFirstError(t *testing.T) {
	pool := NewPool(1)
	go pool.Run()
	defer pool.Stop(nil)
	tr := NewTrampoline(pool, time.Millisecond)
	go tr.Run()
	defer tr.Stop(nil)

	wantErr := errors.New("boom")
	errCh := tr.Submit(FuncTask(func() error { return wantErr }))
	select {
	case err := <-errCh:
		if err != wantErr {
			t.Fatalf("got %v want %v", err, wantErr)
		}
	case <-time.After(time.Second):
		t.Fatal("task never completed")
	}
}
