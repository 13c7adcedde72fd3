package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/modfetch/internal/adapter/httpclient"
	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
	"github.com/vertextoedge/modfetch/internal/service/retry"
	"github.com/vertextoedge/modfetch/internal/service/validation"
)

// DefinitionFile is the name of the chunk index published next to a CDN file
const DefinitionFile = "definition.json.gz"

// cdnRemaps maps legacy bunny.net hostnames to the current CDN domains
var cdnRemaps = map[string]string{
	"wabbajack.b-cdn.net":         "authored-files.wabbajack.org",
	"wabbajack-mirror.b-cdn.net":  "mirror.wabbajack.org",
	"wabbajack-patches.b-cdn.net": "patches.wabbajack.org",
	"wabbajacktest.b-cdn.net":     "test-files.wabbajack.org",
}

// RemapCDNURL rewrites a legacy CDN host to its current domain
func RemapCDNURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if host, ok := cdnRemaps[strings.ToLower(u.Hostname())]; ok {
		if p := u.Port(); p != "" {
			host += ":" + p
		}
		u.Host = host
		return u.String()
	}
	return rawURL
}

// Definition is the decoded chunk index of a CDN file
type Definition struct {
	Author           string           `json:"Author"`
	OriginalFileName string           `json:"OriginalFileName"`
	Size             int64            `json:"Size"`
	Hash             string           `json:"Hash"`
	Parts            []DefinitionPart `json:"Parts"`
	MungedName       string           `json:"MungedName"`
}

// DefinitionPart is one chunk entry of a Definition
type DefinitionPart struct {
	Size   int64  `json:"Size"`
	Offset int64  `json:"Offset"`
	Hash   string `json:"Hash"`
	Index  int    `json:"Index"`
}

// Chunks returns the chunk list with URLs under base
func (d *Definition) Chunks(base string) []domain.CDNChunk {
	base = strings.TrimSuffix(base, "/")
	out := make([]domain.CDNChunk, 0, len(d.Parts))
	for _, p := range d.Parts {
		out = append(out, domain.CDNChunk{
			Index:  p.Index,
			URL:    base + "/parts/" + strconv.Itoa(p.Index),
			Hash:   p.Hash,
			Size:   p.Size,
			Offset: p.Offset,
		})
	}
	return out
}

// CDNBackend downloads chunked files. Chunks are fetched concurrently, each
// verified on receipt and retried on its own.
type CDNBackend struct {
	client      *httpclient.Client
	fs          port.FileSystem
	concurrency int
	resume      bool
	chunkRetry  *retry.Engine
	logger      *zap.Logger
}

var _ port.Backend = (*CDNBackend)(nil)

// NewCDNBackend creates a new CDNBackend. opts tune the per-chunk retry
// engine.
func NewCDNBackend(client *httpclient.Client, fs port.FileSystem, cfg domain.DownloadConfig, logger *zap.Logger, opts ...retry.Option) *CDNBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.ChunkConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	engineOpts := []retry.Option{
		retry.WithClassifier(chunkRecoverable),
		retry.WithLogger(logger),
	}
	engineOpts = append(engineOpts, opts...)

	return &CDNBackend{
		client:      client,
		fs:          fs,
		concurrency: concurrency,
		resume:      cfg.ResumeEnabled,
		chunkRetry:  retry.New(retry.PolicyFromConfig(cfg), engineOpts...),
		logger:      logger,
	}
}

// chunkRecoverable also retries a corrupted chunk, since refetching one
// chunk is cheap
func chunkRecoverable(err error) bool {
	c := domain.Classify(err)
	return c.Recoverable() || c == domain.CategoryChunkIntegrity
}

// Fetch downloads every chunk and assembles them into the partial file
func (b *CDNBackend) Fetch(ctx context.Context, req *domain.DownloadRequest, reporter port.ProgressReporter) (*domain.FetchResult, error) {
	src, ok := req.Source.(domain.WabbajackCDNSource)
	if !ok {
		return nil, wrongSource(req, domain.SourceWabbajackCDN)
	}

	base := RemapCDNURL(src.ManifestURL)
	chunks := src.Chunks
	if len(chunks) == 0 {
		def, err := b.definition(ctx, base)
		if err != nil {
			return nil, err
		}
		chunks = def.Chunks(base)
	}
	chunks, err := orderChunks(chunks)
	if err != nil {
		return nil, domain.NewDownloadError(domain.CategoryUnsupported, "cdn chunks", err)
	}

	var total int64
	for _, c := range chunks {
		total += c.Size
	}

	m := newMeter(reporter, 0, total)
	var transferred atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	reused := 0
	for _, c := range chunks {
		c.URL = RemapCDNURL(c.URL)
		if b.resume && b.haveChunk(req.Destination, c) {
			reused++
			m.add(c.Size)
			continue
		}
		g.Go(func() error {
			return b.fetchChunk(gctx, req, c, m, &transferred)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if reused > 0 {
		b.logger.Info("reused stored chunks",
			zap.String("request_id", req.ID),
			zap.Int("reused", reused),
			zap.Int("chunks", len(chunks)))
	}

	written, err := b.fs.AssembleChunks(req.Destination, len(chunks))
	if err != nil {
		return nil, domain.NewDownloadError(domain.CategoryLocalIO, "assemble chunks", err)
	}
	m.finish()

	return &domain.FetchResult{
		PartialPath:      b.fs.PartialPath(req.Destination),
		BytesWritten:     written,
		BytesTransferred: transferred.Load(),
		Resumed:          reused > 0,
	}, nil
}

func (b *CDNBackend) fetchChunk(ctx context.Context, req *domain.DownloadRequest, c domain.CDNChunk, m *meter, transferred *atomic.Int64) error {
	out := b.chunkRetry.Run(ctx, nil, func(ctx context.Context, a *retry.Attempt) error {
		resp, err := b.client.Get(ctx, c.URL, nil, 0)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		pr := &progressReader{reader: resp.Body, meter: m, onRead: a.Touch, counter: transferred}
		data, err := io.ReadAll(pr)
		if err != nil {
			m.add(-pr.bytesRead)
			return httpclient.TransportError(ctx, "read chunk", c.URL, err)
		}
		if err := verifyChunk(c, data); err != nil {
			m.add(-pr.bytesRead)
			b.logger.Warn("chunk failed verification",
				zap.String("request_id", req.ID),
				zap.Int("chunk", c.Index),
				zap.Int("attempt", a.Number),
				zap.Error(err))
			return &domain.DownloadError{Category: domain.CategoryChunkIntegrity, Op: "verify chunk", URL: c.URL, Err: err}
		}
		if err := b.fs.WriteChunk(req.Destination, c.Index, data); err != nil {
			return &domain.DownloadError{Category: domain.CategoryLocalIO, Op: "write chunk", URL: c.URL, Err: err}
		}
		return nil
	})
	if out.Err == nil {
		return nil
	}

	// Out of chunk retries on bad bytes stays a chunk integrity failure
	if errors.Is(out.Err, domain.ErrChunkValidationFailed) && domain.Classify(out.Err) == domain.CategoryExhausted {
		return &domain.DownloadError{Category: domain.CategoryChunkIntegrity, Op: "fetch chunk", URL: c.URL, Err: out.Err}
	}
	return out.Err
}

func (b *CDNBackend) haveChunk(dest string, c domain.CDNChunk) bool {
	data, err := b.fs.ReadChunk(dest, c.Index)
	if err != nil {
		return false
	}
	return verifyChunk(c, data) == nil
}

func (b *CDNBackend) definition(ctx context.Context, base string) (*Definition, error) {
	defURL := strings.TrimSuffix(base, "/") + "/" + DefinitionFile
	resp, err := b.client.Get(ctx, defURL, nil, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, httpclient.TransportError(ctx, "read definition", defURL, err)
	}
	defer zr.Close()

	var def Definition
	if err := json.NewDecoder(zr).Decode(&def); err != nil {
		return nil, httpclient.TransportError(ctx, "decode definition", defURL, err)
	}
	if len(def.Parts) == 0 {
		return nil, &domain.DownloadError{Category: domain.CategoryUnsupported, Op: "decode definition", URL: defURL,
			Err: fmt.Errorf("%w: definition lists no parts", domain.ErrUnsupportedURL)}
	}
	return &def, nil
}

// orderChunks sorts by index and requires indexes 0..n-1
func orderChunks(in []domain.CDNChunk) ([]domain.CDNChunk, error) {
	out := make([]domain.CDNChunk, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	for i, c := range out {
		if c.Index != i {
			return nil, fmt.Errorf("%w: chunk indexes not contiguous at %d", domain.ErrUnsupportedURL, i)
		}
		if c.URL == "" {
			return nil, fmt.Errorf("%w: chunk %d has no url", domain.ErrUnsupportedURL, i)
		}
	}
	return out, nil
}

func verifyChunk(c domain.CDNChunk, data []byte) error {
	if c.Size > 0 && int64(len(data)) != c.Size {
		return fmt.Errorf("%w: chunk %d size expected %d, got %d", domain.ErrChunkValidationFailed, c.Index, c.Size, len(data))
	}
	if c.Hash == "" {
		return nil
	}
	if got := validation.WabbajackHash(data); !validation.Equal(domain.AlgorithmXXHash64, c.Hash, got) {
		return fmt.Errorf("%w: chunk %d hash expected %s, got %s", domain.ErrChunkValidationFailed, c.Index, c.Hash, got)
	}
	return nil
}
