package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestSemaphore_AcquireWithinCapacity(t *testing.T) {
	s := NewSemaphore(4)
	if !s.Acquire(context.Background(), 2) {
		t.Fatal("acquire within capacity should not block")
	}
	if !s.Acquire(context.Background(), 2) {
		t.Fatal("second acquire exhausting capacity should not block")
	}
	s.Release(2)
	s.Release(2)
}

func TestSemaphore_BlocksUntilRelease(t *testing.T) {
	s := NewSemaphore(2)
	if !s.Acquire(context.Background(), 2) {
		t.Fatal("initial acquire")
	}

	got := make(chan bool)
	go func() {
		got <- s.Acquire(context.Background(), 1)
	}()

	select {
	case <-got:
		t.Fatal("acquire over capacity should block")
	case <-time.After(20 * time.Millisecond):
	}

	s.Release(2)
	select {
	case ok := <-got:
		if !ok {
			t.Fatal("acquire after release should succeed")
		}
	case <-time.After(time.Second):
		t.Fatal("release did not wake the waiter")
	}
}

func TestSemaphore_FIFOOrder(t *testing.T) {
	s := NewSemaphore(1)
	if !s.Acquire(context.Background(), 1) {
		t.Fatal("initial acquire")
	}

	order := make(chan int, 2)
	ready := make(chan struct{})
	go func() {
		close(ready)
		s.Acquire(context.Background(), 1)
		order <- 1
	}()
	<-ready
	time.Sleep(10 * time.Millisecond) // first waiter enqueued
	go func() {
		s.Acquire(context.Background(), 1)
		order <- 2
	}()
	time.Sleep(10 * time.Millisecond)

	s.Release(1)
	if first := <-order; first != 1 {
		t.Errorf("waiter %d served first, want 1", first)
	}
	s.Release(1)
	if second := <-order; second != 2 {
		t.Errorf("waiter %d served second, want 2", second)
	}
}

func TestSemaphore_CancelWhileWaiting(t *testing.T) {
	s := NewSemaphore(1)
	if !s.Acquire(context.Background(), 1) {
		t.Fatal("initial acquire")
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan bool)
	go func() {
		got <- s.Acquire(ctx, 1)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if ok := <-got; ok {
		t.Fatal("cancelled acquire should return false")
	}

	// The cancelled waiter must not hold tokens.
	s.Release(1)
	if !s.Acquire(context.Background(), 1) {
		t.Fatal("capacity lost after cancelled waiter")
	}
}

func TestSemaphore_Clamp(t *testing.T) {
	s := NewSemaphore(4)
	if got := s.Clamp(16); got != 4 {
		t.Errorf("Clamp(16) = %d, want 4", got)
	}
	if got := s.Clamp(0); got != 1 {
		t.Errorf("Clamp(0) = %d, want 1", got)
	}
	if got := s.Clamp(3); got != 3 {
		t.Errorf("Clamp(3) = %d, want 3", got)
	}
}

func TestSemaphore_NilIsUnlimited(t *testing.T) {
	var s *Semaphore
	if !s.Acquire(context.Background(), 100) {
		t.Fatal("nil semaphore should always grant")
	}
	s.Release(100)
	if got := s.Clamp(100); got != 100 {
		t.Errorf("nil Clamp(100) = %d, want 100", got)
	}
}
