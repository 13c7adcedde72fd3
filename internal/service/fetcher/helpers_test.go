package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/modfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/modfetch/internal/adapter/httpclient"
	"github.com/vertextoedge/modfetch/internal/domain"
)

// rangeServer serves data with byte-range support and counts body bytes
type rangeServer struct {
	data        []byte
	ignoreRange bool
	// misaligned answers every range request with a 206 starting at zero
	misaligned bool

	served   atomic.Int64
	requests atomic.Int32
}

func (s *rangeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	size := len(s.data)
	start := 0

	if rng := r.Header.Get("Range"); rng != "" && !s.ignoreRange {
		if _, err := fmt.Sscanf(rng, "bytes=%d-", &start); err != nil {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		if s.misaligned {
			start = 0
		}
		if start >= size {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, size-1, size))
		w.Header().Set("Content-Length", strconv.Itoa(size-start))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.Itoa(size))
		w.WriteHeader(http.StatusOK)
	}

	n, _ := w.Write(s.data[start:])
	s.served.Add(int64(n))
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/13)
	}
	return data
}

func newTestFS(t *testing.T) *filesystem.Manager {
	t.Helper()
	m, err := filesystem.NewManager(t.TempDir())
	require.NoError(t, err)
	return m
}

func newTestClient() *httpclient.Client {
	opts := httpclient.DefaultOptions()
	opts.UserAgent = "modfetch/test"
	return httpclient.New(opts)
}

func noSleep(context.Context, time.Duration) error { return nil }

// events collects progress events
type events struct {
	mu   sync.Mutex
	list []domain.ProgressEvent
}

func (e *events) Report(ev domain.ProgressEvent) {
	e.mu.Lock()
	e.list = append(e.list, ev)
	e.mu.Unlock()
}

func (e *events) last() domain.ProgressEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.list) == 0 {
		return domain.ProgressEvent{}
	}
	return e.list[len(e.list)-1]
}
