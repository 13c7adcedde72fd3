package fetcher

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

// progressInterval is the minimum spacing between progress events of one
// request. A final event is always sent.
var progressInterval = 250 * time.Millisecond

// meter turns byte counts from one or more readers into progress events
type meter struct {
	reporter port.ProgressReporter
	touch    func()
	total    int64
	now      func() time.Time

	mu       sync.Mutex
	done     int64
	lastAt   time.Time
	lastDone int64
}

func newMeter(reporter port.ProgressReporter, start, total int64) *meter {
	now := time.Now
	var touch func()
	if a, ok := reporter.(port.ActivityReporter); ok {
		touch = a.Touch
	}
	return &meter{
		reporter: reporter,
		touch:    touch,
		total:    total,
		now:      now,
		done:     start,
		lastDone: start,
		lastAt:   now(),
	}
}

// add moves the counter by n; a negative n rolls back bytes of a discarded
// chunk. Activity is signalled on every call, events only every
// progressInterval.
func (m *meter) add(n int64) {
	if m == nil || m.reporter == nil {
		return
	}
	if m.touch != nil && n > 0 {
		m.touch()
	}
	m.mu.Lock()
	m.done += n
	now := m.now()
	if now.Sub(m.lastAt) < progressInterval {
		m.mu.Unlock()
		return
	}
	event := m.eventLocked(now)
	m.mu.Unlock()

	m.reporter.Report(event)
}

// finish sends the final event regardless of throttling
func (m *meter) finish() {
	if m == nil || m.reporter == nil {
		return
	}
	m.mu.Lock()
	event := m.eventLocked(m.now())
	m.mu.Unlock()

	m.reporter.Report(event)
}

func (m *meter) eventLocked(now time.Time) domain.ProgressEvent {
	var rate float64
	if elapsed := now.Sub(m.lastAt).Seconds(); elapsed > 0 {
		rate = float64(m.done-m.lastDone) / elapsed
		if rate < 0 {
			rate = 0
		}
	}
	m.lastAt = now
	m.lastDone = m.done
	return domain.ProgressEvent{BytesDone: m.done, BytesTotal: m.total, Rate: rate}
}

// progressReader wraps a reader to report transfer progress
type progressReader struct {
	reader  io.Reader
	meter   *meter
	onRead  func()
	counter *atomic.Int64

	bytesRead int64
	readErr   error
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.bytesRead += int64(n)
		if r.counter != nil {
			r.counter.Add(int64(n))
		}
		if r.onRead != nil {
			r.onRead()
		}
		r.meter.add(int64(n))
	}
	if err != nil && err != io.EOF {
		r.readErr = err
	}
	return n, err
}
