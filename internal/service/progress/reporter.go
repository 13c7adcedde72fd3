// Package progress provides composable progress reporters. Every reporter
// returns quickly; slow sinks belong behind Async.
package progress

import (
	"sync"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

// Nop discards events
type Nop struct{}

// Report does nothing
func (Nop) Report(domain.ProgressEvent) {}

var (
	_ port.LifecycleReporter = Multi(nil)
	_ port.LifecycleReporter = (*Tracker)(nil)
	_ port.ActivityReporter  = (*Tracker)(nil)
)

// Multi fans an event out to several reporters
type Multi []port.ProgressReporter

// NewMulti composes reporters, dropping nils
func NewMulti(reporters ...port.ProgressReporter) Multi {
	out := make(Multi, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Report forwards the event to every reporter in order
func (m Multi) Report(event domain.ProgressEvent) {
	for _, r := range m {
		r.Report(event)
	}
}

// ReportLifecycle forwards the event to every reporter that accepts
// lifecycle events
func (m Multi) ReportLifecycle(event domain.LifecycleEvent) {
	for _, r := range m {
		Lifecycle(r, event)
	}
}

// Touch forwards activity to every reporter that tracks it
func (m Multi) Touch() {
	for _, r := range m {
		if a, ok := r.(port.ActivityReporter); ok {
			a.Touch()
		}
	}
}

// Lifecycle sends event to r when r accepts lifecycle events
func Lifecycle(r port.ProgressReporter, event domain.LifecycleEvent) {
	if l, ok := r.(port.LifecycleReporter); ok {
		l.ReportLifecycle(event)
	}
}

// Func adapts a function to a reporter
type Func func(domain.ProgressEvent)

// Report calls f
func (f Func) Report(event domain.ProgressEvent) { f(event) }

// Tracker is the per-request view handed to a backend. It stamps the
// request ID, keeps BytesDone from going backwards across restarts and
// attempts, and calls onProgress for every event and every Touch.
type Tracker struct {
	requestID  string
	next       port.ProgressReporter
	onProgress func()

	mu   sync.Mutex
	last int64
}

// NewTracker wraps next for one request
func NewTracker(requestID string, next port.ProgressReporter, onProgress func()) *Tracker {
	if next == nil {
		next = Nop{}
	}
	return &Tracker{requestID: requestID, next: next, onProgress: onProgress}
}

// SetOnProgress swaps the progress callback, typically once per attempt
func (t *Tracker) SetOnProgress(f func()) {
	t.mu.Lock()
	t.onProgress = f
	t.mu.Unlock()
}

// Report clamps and forwards the event
func (t *Tracker) Report(event domain.ProgressEvent) {
	t.mu.Lock()
	if event.BytesDone < t.last {
		event.BytesDone = t.last
	}
	t.last = event.BytesDone
	onProgress := t.onProgress
	t.mu.Unlock()

	if onProgress != nil {
		onProgress()
	}
	event.RequestID = t.requestID
	t.next.Report(event)
}

// Touch signals activity without an event
func (t *Tracker) Touch() {
	t.mu.Lock()
	onProgress := t.onProgress
	t.mu.Unlock()
	if onProgress != nil {
		onProgress()
	}
}

// ReportLifecycle stamps the request ID and forwards the event
func (t *Tracker) ReportLifecycle(event domain.LifecycleEvent) {
	event.RequestID = t.requestID
	Lifecycle(t.next, event)
}

// BytesDone returns the highest byte count reported so far
func (t *Tracker) BytesDone() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
