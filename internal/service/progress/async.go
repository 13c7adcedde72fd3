package progress

import (
	"sync"
	"sync/atomic"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

// Async decouples a slow reporter behind a bounded queue. When the queue
// is full new events are dropped and counted.
type Async struct {
	next    port.ProgressReporter
	events  chan queued
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts a goroutine draining into next
func NewAsync(next port.ProgressReporter, queueSize int) *Async {
	if queueSize <= 0 {
		queueSize = 256
	}
	a := &Async{
		next:   next,
		events: make(chan queued, queueSize),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for q := range a.events {
		if q.lifecycle != nil {
			Lifecycle(a.next, *q.lifecycle)
			continue
		}
		a.next.Report(q.progress)
	}
}

// queued holds either a progress or a lifecycle event
type queued struct {
	progress  domain.ProgressEvent
	lifecycle *domain.LifecycleEvent
}

// Report enqueues without blocking
func (a *Async) Report(event domain.ProgressEvent) {
	a.enqueue(queued{progress: event})
}

// ReportLifecycle enqueues a lifecycle event without blocking
func (a *Async) ReportLifecycle(event domain.LifecycleEvent) {
	a.enqueue(queued{lifecycle: &event})
}

func (a *Async) enqueue(event queued) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.events <- event:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.events)
	a.mu.Unlock()
	<-a.done
}
