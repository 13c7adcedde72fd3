package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/service/retry"
	"github.com/vertextoedge/modfetch/internal/service/validation"
)

// chunkServer serves /file/parts/{i} and /file/definition.json.gz
type chunkServer struct {
	parts [][]byte

	mu        sync.Mutex
	fetches   map[int]int
	corruptN  map[int]int // index -> number of corrupted responses left
	defServed int
}

func newChunkServer(parts [][]byte) *chunkServer {
	return &chunkServer{parts: parts, fetches: map[int]int{}, corruptN: map[int]int{}}
}

func (s *chunkServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/"+DefinitionFile) {
		s.mu.Lock()
		s.defServed++
		s.mu.Unlock()
		w.Write(s.definitionGz())
		return
	}

	idx, err := strconv.Atoi(r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
	if err != nil || idx < 0 || idx >= len(s.parts) {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	s.fetches[idx]++
	corrupt := s.corruptN[idx] > 0
	if corrupt {
		s.corruptN[idx]--
	}
	s.mu.Unlock()

	data := append([]byte(nil), s.parts[idx]...)
	if corrupt {
		data[0] ^= 0xFF
	}
	w.Write(data)
}

func (s *chunkServer) fetchCount(i int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[i]
}

func (s *chunkServer) definition() Definition {
	var def Definition
	var offset int64
	var all []byte
	for i, p := range s.parts {
		def.Parts = append(def.Parts, DefinitionPart{Index: i, Size: int64(len(p)), Offset: offset, Hash: validation.WabbajackHash(p)})
		offset += int64(len(p))
		all = append(all, p...)
	}
	def.Size = offset
	def.Hash = validation.WabbajackHash(all)
	def.OriginalFileName = "file.7z"
	return def
}

func (s *chunkServer) definitionGz() []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	json.NewEncoder(zw).Encode(s.definition())
	zw.Close()
	return buf.Bytes()
}

func (s *chunkServer) whole() []byte {
	var all []byte
	for _, p := range s.parts {
		all = append(all, p...)
	}
	return all
}

func fourParts() [][]byte {
	data := testData(4 * 1000)
	return [][]byte{data[0:1000], data[1000:2000], data[2000:3000], data[3000:4000]}
}

func newTestCDN(t *testing.T) (*CDNBackend, *chunkServer, string) {
	t.Helper()
	srv := newChunkServer(fourParts())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	cfg := domain.DefaultDownloadConfig()
	cfg.ChunkConcurrency = 4
	b := NewCDNBackend(newTestClient(), newTestFS(t), cfg, nil, retry.WithSleep(noSleep))
	return b, srv, ts.URL + "/file"
}

func TestCDNBackend_RetriesOnlyCorruptChunk(t *testing.T) {
	b, srv, base := newTestCDN(t)
	srv.corruptN[2] = 1

	def := srv.definition()
	req := &domain.DownloadRequest{
		ID:          "cdn",
		Source:      domain.WabbajackCDNSource{ManifestURL: base, Chunks: def.Chunks(base)},
		Destination: "file.7z",
	}

	res, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, srv.fetchCount(0))
	assert.Equal(t, 1, srv.fetchCount(1))
	assert.Equal(t, 2, srv.fetchCount(2))
	assert.Equal(t, 1, srv.fetchCount(3))
	assert.Equal(t, 0, srv.defServed)

	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, def.Hash, validation.WabbajackHash(got))
	assert.EqualValues(t, 4000, res.BytesWritten)
	assert.EqualValues(t, 5000, res.BytesTransferred)
}

func TestCDNBackend_FetchesDefinition(t *testing.T) {
	b, srv, base := newTestCDN(t)
	req := &domain.DownloadRequest{ID: "def", Source: domain.WabbajackCDNSource{ManifestURL: base}, Destination: "file.7z"}
	rec := &events{}

	res, err := b.Fetch(context.Background(), req, rec)
	require.NoError(t, err)

	assert.Equal(t, 1, srv.defServed)
	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, srv.whole(), got)
	assert.EqualValues(t, 4000, rec.last().BytesDone)
	assert.EqualValues(t, 4000, rec.last().BytesTotal)
}

func TestCDNBackend_ChunkIntegrityExhausted(t *testing.T) {
	b, srv, base := newTestCDN(t)
	srv.corruptN[1] = 100

	def := srv.definition()
	req := &domain.DownloadRequest{ID: "bad", Source: domain.WabbajackCDNSource{ManifestURL: base, Chunks: def.Chunks(base)}, Destination: "file.7z"}

	_, err := b.Fetch(context.Background(), req, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CategoryChunkIntegrity, domain.Classify(err))
	assert.ErrorIs(t, err, domain.ErrChunkValidationFailed)
	assert.Equal(t, domain.DefaultDownloadConfig().MaxRetries+1, srv.fetchCount(1))
}

func TestCDNBackend_ReusesStoredChunks(t *testing.T) {
	b, srv, base := newTestCDN(t)
	def := srv.definition()

	require.NoError(t, b.fs.WriteChunk("file.7z", 0, srv.parts[0]))
	require.NoError(t, b.fs.WriteChunk("file.7z", 1, []byte("corrupted leftovers")))

	req := &domain.DownloadRequest{ID: "resume", Source: domain.WabbajackCDNSource{ManifestURL: base, Chunks: def.Chunks(base)}, Destination: "file.7z"}
	res, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)

	assert.True(t, res.Resumed)
	assert.Equal(t, 0, srv.fetchCount(0))
	assert.Equal(t, 1, srv.fetchCount(1))
	assert.EqualValues(t, 3000, res.BytesTransferred)

	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, srv.whole(), got)
}

func TestCDNBackend_RejectsGappedChunks(t *testing.T) {
	b, _, base := newTestCDN(t)
	req := &domain.DownloadRequest{
		ID: "gap",
		Source: domain.WabbajackCDNSource{ManifestURL: base, Chunks: []domain.CDNChunk{
			{Index: 0, URL: base + "/parts/0"},
			{Index: 2, URL: base + "/parts/2"},
		}},
		Destination: "file.7z",
	}

	_, err := b.Fetch(context.Background(), req, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CategoryUnsupported, domain.Classify(err))
}

func TestRemapCDNURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://wabbajack.b-cdn.net/file.7z", "https://authored-files.wabbajack.org/file.7z"},
		{"https://wabbajack-mirror.b-cdn.net/x", "https://mirror.wabbajack.org/x"},
		{"https://wabbajack-patches.b-cdn.net/x", "https://patches.wabbajack.org/x"},
		{"https://wabbajacktest.b-cdn.net/x", "https://test-files.wabbajack.org/x"},
		{"https://example.com/x", "https://example.com/x"},
	}

	for _, tt := range tests {
		if got := RemapCDNURL(tt.in); got != tt.want {
			t.Errorf("RemapCDNURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
