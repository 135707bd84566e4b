package scheduler

import (
	"context"
	"sync"
)

// Semaphore is a weighted counting semaphore bounding the total CPUs
// of concurrently running tasks across the whole run. Waiters are
// served strictly in arrival order, which keeps dispatch deterministic
// under contention.
type Semaphore struct {
	capacity int

	mu      sync.Mutex
	avail   int
	waiters []*waiter
}

type waiter struct {
	weight int
	ready  chan struct{}
}

// NewSemaphore creates a semaphore with the given CPU capacity.
// If n <= 0, returns nil (unlimited budget).
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		return nil
	}
	return &Semaphore{capacity: n, avail: n}
}

// Capacity returns the CPU budget, or 0 if nil (unlimited).
func (s *Semaphore) Capacity() int {
	if s == nil {
		return 0
	}
	return s.capacity
}

// Clamp bounds a task weight to the budget, so a stage requesting more
// CPUs than exist still runs (alone) instead of deadlocking.
func (s *Semaphore) Clamp(weight int) int {
	if weight < 1 {
		return 1
	}
	if s != nil && weight > s.capacity {
		return s.capacity
	}
	return weight
}

// Acquire blocks until weight CPUs are available or the context is
// cancelled. Returns true if acquired. A nil semaphore always grants
// immediately. The caller must pass a weight already clamped.
func (s *Semaphore) Acquire(ctx context.Context, weight int) bool {
	if s == nil {
		return true
	}

	s.mu.Lock()
	if len(s.waiters) == 0 && s.avail >= weight {
		s.avail -= weight
		s.mu.Unlock()
		return true
	}
	w := &waiter{weight: weight, ready: make(chan struct{})}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	select {
	case <-w.ready:
		return true
	case <-ctx.Done():
		s.mu.Lock()
		for i, cand := range s.waiters {
			if cand == w {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return false
			}
		}
		// Lost the race: the grant already happened. Hand it back.
		s.releaseLocked(weight)
		s.mu.Unlock()
		return false
	}
}

// Release returns weight CPUs to the budget and wakes queued waiters
// in order.
func (s *Semaphore) Release(weight int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.releaseLocked(weight)
	s.mu.Unlock()
}

func (s *Semaphore) releaseLocked(weight int) {
	s.avail += weight
	for len(s.waiters) > 0 && s.waiters[0].weight <= s.avail {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.avail -= w.weight
		close(w.ready)
	}
}
