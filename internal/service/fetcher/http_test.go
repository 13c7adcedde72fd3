package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/service/progress"
	"github.com/vertextoedge/modfetch/internal/service/retry"
)

func TestHTTPBackend_FreshDownload(t *testing.T) {
	srv := &rangeServer{data: testData(64 * 1024)}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	fs := newTestFS(t)
	b := NewHTTPBackend(newTestClient(), fs, true, nil)
	req := &domain.DownloadRequest{ID: "r1", Source: domain.HTTPSource{URL: ts.URL + "/a.7z"}, Destination: "a.7z"}
	rec := &events{}

	res, err := b.Fetch(context.Background(), req, rec)
	require.NoError(t, err)

	assert.Equal(t, fs.PartialPath("a.7z"), res.PartialPath)
	assert.EqualValues(t, len(srv.data), res.BytesWritten)
	assert.EqualValues(t, len(srv.data), res.BytesTransferred)
	assert.False(t, res.Resumed)

	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, srv.data, got)
	assert.False(t, fs.FileExists(fs.ResolvePath("a.7z")), "final path must not exist before validation")

	last := rec.last()
	assert.EqualValues(t, len(srv.data), last.BytesDone)
	assert.EqualValues(t, len(srv.data), last.BytesTotal)
}

func TestHTTPBackend_ResumeFetchesOnlyRemainder(t *testing.T) {
	srv := &rangeServer{data: testData(100_000)}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	fs := newTestFS(t)
	const n = 37_000
	_, err := fs.WritePartial("b.zip", strings.NewReader(string(srv.data[:n])), false)
	require.NoError(t, err)

	b := NewHTTPBackend(newTestClient(), fs, true, nil)
	req := &domain.DownloadRequest{ID: "r2", Source: domain.HTTPSource{URL: ts.URL}, Destination: "b.zip", ExpectedSize: int64(len(srv.data))}

	res, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)

	assert.True(t, res.Resumed)
	assert.EqualValues(t, n, res.ResumedFrom)
	assert.EqualValues(t, len(srv.data)-n, srv.served.Load())
	assert.EqualValues(t, len(srv.data)-n, res.BytesTransferred)

	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, srv.data, got)
}

func TestHTTPBackend_ResumeDisabledRestarts(t *testing.T) {
	srv := &rangeServer{data: testData(10_000)}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	fs := newTestFS(t)
	_, err := fs.WritePartial("c.bin", strings.NewReader("stale bytes"), false)
	require.NoError(t, err)

	b := NewHTTPBackend(newTestClient(), fs, false, nil)
	req := &domain.DownloadRequest{ID: "r3", Source: domain.HTTPSource{URL: ts.URL}, Destination: "c.bin"}

	res, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.EqualValues(t, len(srv.data), srv.served.Load())

	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, srv.data, got)
}

func TestHTTPBackend_RangeNotSatisfiableRestarts(t *testing.T) {
	srv := &rangeServer{data: testData(4096)}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	fs := newTestFS(t)
	_, err := fs.WritePartial("d.bin", strings.NewReader(string(testData(5000))), false)
	require.NoError(t, err)

	b := NewHTTPBackend(newTestClient(), fs, true, nil)
	req := &domain.DownloadRequest{ID: "r4", Source: domain.HTTPSource{URL: ts.URL}, Destination: "d.bin"}

	res, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 2, srv.requests.Load())
	assert.False(t, res.Resumed)
	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, srv.data, got)
}

func TestHTTPBackend_ServerIgnoresRange(t *testing.T) {
	srv := &rangeServer{data: testData(8192), ignoreRange: true}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	fs := newTestFS(t)
	_, err := fs.WritePartial("e.bin", strings.NewReader(string(srv.data[:1000])), false)
	require.NoError(t, err)

	b := NewHTTPBackend(newTestClient(), fs, true, nil)
	req := &domain.DownloadRequest{ID: "r5", Source: domain.HTTPSource{URL: ts.URL}, Destination: "e.bin"}

	res, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)
	assert.False(t, res.Resumed)

	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, srv.data, got)
}

func TestHTTPBackend_CompletePartialSkipsNetwork(t *testing.T) {
	srv := &rangeServer{data: testData(2048)}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	fs := newTestFS(t)
	_, err := fs.WritePartial("f.bin", strings.NewReader(string(srv.data)), false)
	require.NoError(t, err)

	b := NewHTTPBackend(newTestClient(), fs, true, nil)
	req := &domain.DownloadRequest{ID: "r6", Source: domain.HTTPSource{URL: ts.URL}, Destination: "f.bin", ExpectedSize: 2048}

	res, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, srv.requests.Load())
	assert.EqualValues(t, 2048, res.BytesWritten)
	assert.Zero(t, res.BytesTransferred)
}

func TestHTTPBackend_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   domain.Category
	}{
		{"not found", http.StatusNotFound, domain.CategoryNotFound},
		{"forbidden", http.StatusForbidden, domain.CategoryAuthorization},
		{"server error", http.StatusBadGateway, domain.CategoryTransport},
		{"too many requests", http.StatusTooManyRequests, domain.CategoryRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			fs := newTestFS(t)
			b := NewHTTPBackend(newTestClient(), fs, true, nil)
			req := &domain.DownloadRequest{ID: "x", Source: domain.HTTPSource{URL: ts.URL}, Destination: "x.bin"}

			_, err := b.Fetch(context.Background(), req, nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, domain.Classify(err))
			assert.False(t, fs.FileExists(fs.PartialPath("x.bin")))
		})
	}
}

func TestHTTPBackend_UnsupportedScheme(t *testing.T) {
	b := NewHTTPBackend(newTestClient(), newTestFS(t), true, nil)
	req := &domain.DownloadRequest{ID: "x", Source: domain.HTTPSource{URL: "ftp://example.com/a"}, Destination: "a"}

	_, err := b.Fetch(context.Background(), req, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CategoryUnsupported, domain.Classify(err))
	assert.ErrorIs(t, err, domain.ErrUnsupportedURL)
}

func TestHTTPBackend_SendsHeaders(t *testing.T) {
	var gotAuth, gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	b := NewHTTPBackend(newTestClient(), newTestFS(t), true, nil)
	req := &domain.DownloadRequest{
		ID:          "h",
		Source:      domain.HTTPSource{URL: ts.URL, Headers: map[string]string{"Authorization": "Bearer t"}},
		Destination: "h.txt",
	}

	_, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer t", gotAuth)
	assert.Equal(t, "modfetch/test", gotUA)
}

func TestHTTPBackend_MisalignedRangeRestarts(t *testing.T) {
	srv := &rangeServer{data: testData(4096), misaligned: true}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	fs := newTestFS(t)
	_, err := fs.WritePartial("m.bin", strings.NewReader(string(srv.data[:1000])), false)
	require.NoError(t, err)

	b := NewHTTPBackend(newTestClient(), fs, true, nil)
	req := &domain.DownloadRequest{ID: "r-misaligned", Source: domain.HTTPSource{URL: ts.URL}, Destination: "m.bin"}

	res, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 2, srv.requests.Load(), "one rejected resume, one fresh download")
	assert.False(t, res.Resumed)
	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, srv.data, got)
}

func TestHTTPBackend_SlowTransferIsNotStalled(t *testing.T) {
	data := testData(40)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := range data {
			if _, err := w.Write(data[i : i+1]); err != nil {
				return
			}
			flusher.Flush()
			time.Sleep(20 * time.Millisecond)
		}
	}))
	defer ts.Close()

	fs := newTestFS(t)
	b := NewHTTPBackend(newTestClient(), fs, true, nil)
	req := &domain.DownloadRequest{ID: "slow", Source: domain.HTTPSource{URL: ts.URL}, Destination: "slow.bin"}

	// Bytes arrive well inside the timeout, events far less often
	engine := retry.New(retry.Policy{MaxRetries: 0, BaseBackoff: time.Millisecond, Timeout: 200 * time.Millisecond})
	tracker := progress.NewTracker(req.ID, nil, nil)
	out := engine.Run(context.Background(), nil, func(ctx context.Context, a *retry.Attempt) error {
		tracker.SetOnProgress(a.Touch)
		_, err := b.Fetch(ctx, req, tracker)
		return err
	})

	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.Attempts)
	got, err := os.ReadFile(fs.PartialPath("slow.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
