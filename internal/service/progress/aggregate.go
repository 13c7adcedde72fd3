package progress

import (
	"sort"
	"sync"

	"github.com/vertextoedge/modfetch/internal/domain"
)

// AggregateSnapshot summarises every request seen so far
type AggregateSnapshot struct {
	Requests   int
	Finished   int
	BytesDone  int64
	BytesTotal int64
	Rate       float64
}

// Aggregate keeps the latest event per request for dashboard views
type Aggregate struct {
	mu     sync.Mutex
	latest map[string]domain.ProgressEvent
}

// NewAggregate creates an empty aggregate
func NewAggregate() *Aggregate {
	return &Aggregate{latest: make(map[string]domain.ProgressEvent)}
}

// Report records the event
func (a *Aggregate) Report(event domain.ProgressEvent) {
	a.mu.Lock()
	a.latest[event.RequestID] = event
	a.mu.Unlock()
}

// Snapshot sums the latest events
func (a *Aggregate) Snapshot() AggregateSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	var s AggregateSnapshot
	for _, ev := range a.latest {
		s.Requests++
		s.BytesDone += ev.BytesDone
		s.BytesTotal += ev.BytesTotal
		if ev.BytesTotal > 0 && ev.BytesDone >= ev.BytesTotal {
			s.Finished++
			continue
		}
		s.Rate += ev.Rate
	}
	return s
}

// Latest returns the most recent event of every request, sorted by ID
func (a *Aggregate) Latest() []domain.ProgressEvent {
	a.mu.Lock()
	out := make([]domain.ProgressEvent, 0, len(a.latest))
	for _, ev := range a.latest {
		out = append(out, ev)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out
}
