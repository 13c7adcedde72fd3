package batch

import (
	"container/heap"
	"context"
	"sync"
)

// waiter is a request queued for an in-flight slot
type waiter struct {
	priority int
	seq      int
	index    int
	granted  bool
	ready    chan struct{}
}

// waitQueue orders waiters by priority, then by submission order
type waitQueue []*waiter

func (q waitQueue) Len() int { return len(q) }

func (q waitQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waitQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waitQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waitQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}

// admission hands out at most capacity in-flight slots, always to the
// best queued waiter.
type admission struct {
	mu        sync.Mutex
	capacity  int
	active    int
	maxActive int
	queue     waitQueue
}

func newAdmission(capacity int) *admission {
	if capacity < 1 {
		capacity = 1
	}
	return &admission{capacity: capacity}
}

// enqueue queues a waiter without granting anything
func (a *admission) enqueue(priority, seq int) *waiter {
	w := &waiter{priority: priority, seq: seq, ready: make(chan struct{})}
	a.mu.Lock()
	heap.Push(&a.queue, w)
	a.mu.Unlock()
	return w
}

// dispatch grants free slots to queued waiters
func (a *admission) dispatch() {
	a.mu.Lock()
	a.grantLocked()
	a.mu.Unlock()
}

func (a *admission) grantLocked() {
	for a.active < a.capacity && a.queue.Len() > 0 {
		w := heap.Pop(&a.queue).(*waiter)
		w.granted = true
		a.active++
		if a.active > a.maxActive {
			a.maxActive = a.active
		}
		close(w.ready)
	}
}

// wait blocks until w is granted a slot or ctx ends
func (a *admission) wait(ctx context.Context, w *waiter) error {
	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	a.mu.Lock()
	if w.granted {
		a.active--
		a.grantLocked()
	} else if w.index >= 0 {
		heap.Remove(&a.queue, w.index)
	}
	a.mu.Unlock()
	return ctx.Err()
}

func (a *admission) acquire(ctx context.Context, priority, seq int) error {
	w := a.enqueue(priority, seq)
	a.dispatch()
	return a.wait(ctx, w)
}

func (a *admission) release() {
	a.mu.Lock()
	a.active--
	a.grantLocked()
	a.mu.Unlock()
}

// peak returns the highest number of slots held at once
func (a *admission) peak() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxActive
}

// slot is one request's claim on the admission queue. It is used by a
// single goroutine and tolerates repeated Release calls.
type slot struct {
	adm      *admission
	priority int
	seq      int
	queued   *waiter
	held     bool
}

// Acquire waits for a slot. A slot reserved at submission is claimed first.
func (s *slot) Acquire(ctx context.Context) error {
	if s.held {
		return nil
	}
	var err error
	if w := s.queued; w != nil {
		s.queued = nil
		err = s.adm.wait(ctx, w)
	} else {
		err = s.adm.acquire(ctx, s.priority, s.seq)
	}
	if err != nil {
		return err
	}
	s.held = true
	return nil
}

// Release gives the slot back, if held
func (s *slot) Release() {
	if !s.held {
		return
	}
	s.held = false
	s.adm.release()
}

// abandon drops a queued reservation that will never be used
func (s *slot) abandon() {
	w := s.queued
	if w == nil {
		return
	}
	s.queued = nil

	a := s.adm
	a.mu.Lock()
	if w.granted {
		a.active--
		a.grantLocked()
	} else if w.index >= 0 {
		heap.Remove(&a.queue, w.index)
	}
	a.mu.Unlock()
}
