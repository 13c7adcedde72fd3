// Package metrics aggregates outcomes of one batch run. An instance is owned
// by the orchestrator that created it; nothing here is process-global.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vertextoedge/modfetch/internal/domain"
)

// Metrics holds cumulative counters. Safe for concurrent use.
type Metrics struct {
	attempted          atomic.Int64
	completed          atomic.Int64
	skipped            atomic.Int64
	failed             atomic.Int64
	bytesTransferred   atomic.Int64
	completedBytes     atomic.Int64
	retries            atomic.Int64
	validationFailures atomic.Int64
	cacheHits          atomic.Int64

	mu         sync.Mutex
	byCategory map[domain.Category]int64
}

// New creates empty metrics
func New() *Metrics {
	return &Metrics{byCategory: make(map[domain.Category]int64)}
}

// RecordAttempted counts a request entering the pipeline
func (m *Metrics) RecordAttempted() { m.attempted.Add(1) }

// RecordCompleted counts a completed request of the given size
func (m *Metrics) RecordCompleted(size int64) {
	m.completed.Add(1)
	m.completedBytes.Add(size)
}

// RecordCacheHit counts a request satisfied by an existing valid file
func (m *Metrics) RecordCacheHit(size int64) {
	m.cacheHits.Add(1)
	m.RecordCompleted(size)
}

// RecordSkipped counts a skipped request
func (m *Metrics) RecordSkipped() { m.skipped.Add(1) }

// RecordFailed counts a failed request under its category
func (m *Metrics) RecordFailed(category domain.Category) {
	m.failed.Add(1)
	if category == domain.CategoryIntegrity || category == domain.CategoryChunkIntegrity {
		m.validationFailures.Add(1)
	}
	m.mu.Lock()
	m.byCategory[category]++
	m.mu.Unlock()
}

// RecordRetries adds n retries
func (m *Metrics) RecordRetries(n int) {
	if n > 0 {
		m.retries.Add(int64(n))
	}
}

// RecordBytes adds bytes read from a source
func (m *Metrics) RecordBytes(n int64) {
	if n > 0 {
		m.bytesTransferred.Add(n)
	}
}

// Record folds a terminal result into the counters
func (m *Metrics) Record(result domain.DownloadResult) {
	m.RecordRetries(result.Retries)
	switch result.Status {
	case domain.StatusCompleted:
		if result.CacheHit {
			m.RecordCacheHit(result.Size)
		} else {
			m.RecordCompleted(result.Size)
		}
	case domain.StatusSkipped:
		m.RecordSkipped()
	case domain.StatusFailed:
		m.RecordFailed(result.Category)
	}
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	Attempted          int64
	Completed          int64
	Skipped            int64
	Failed             int64
	BytesTransferred   int64
	CompletedBytes     int64
	RetryCount         int64
	ValidationFailures int64
	CacheHits          int64
	FailuresByCategory map[domain.Category]int64
}

// Snapshot copies the current counters
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Attempted:          m.attempted.Load(),
		Completed:          m.completed.Load(),
		Skipped:            m.skipped.Load(),
		Failed:             m.failed.Load(),
		BytesTransferred:   m.bytesTransferred.Load(),
		CompletedBytes:     m.completedBytes.Load(),
		RetryCount:         m.retries.Load(),
		ValidationFailures: m.validationFailures.Load(),
		CacheHits:          m.cacheHits.Load(),
	}

	m.mu.Lock()
	s.FailuresByCategory = make(map[domain.Category]int64, len(m.byCategory))
	for k, v := range m.byCategory {
		s.FailuresByCategory[k] = v
	}
	m.mu.Unlock()
	return s
}

// SuccessRate is completed / (completed + failed); skipped requests are
// neither. Returns 0 when nothing finished.
func (s Snapshot) SuccessRate() float64 {
	finished := s.Completed + s.Failed
	if finished == 0 {
		return 0
	}
	return float64(s.Completed) / float64(finished)
}

// AverageSize is the mean size of completed files
func (s Snapshot) AverageSize() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.CompletedBytes) / float64(s.Completed)
}

// Categories returns failure categories sorted by name
func (s Snapshot) Categories() []domain.Category {
	out := make([]domain.Category, 0, len(s.FailuresByCategory))
	for c := range s.FailuresByCategory {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
