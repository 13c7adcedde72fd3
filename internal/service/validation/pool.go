package validation

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/domain"
)

// ErrPoolClosed is returned by Validate after Close
var ErrPoolClosed = errors.New("validation pool closed")

// Report is the digest summary of one validated file
type Report struct {
	Path     string
	Size     int64
	Digests  map[domain.Algorithm]string
	Outcomes []domain.ValidationOutcome
}

// PrimaryHash returns the digest the installer keys archives by
func (r *Report) PrimaryHash() string {
	for _, alg := range []domain.Algorithm{domain.AlgorithmXXHash64, domain.AlgorithmSHA256, domain.AlgorithmMD5, domain.AlgorithmCRC32} {
		if d, ok := r.Digests[alg]; ok {
			return d
		}
	}
	return ""
}

type job struct {
	ctx    context.Context
	path   string
	req    *domain.DownloadRequest
	result chan jobResult
}

type jobResult struct {
	report *Report
	err    error
}

// Pool computes digests on its own workers, sized independently of
// download concurrency. Files are opened read-only.
type Pool struct {
	required   []domain.Algorithm
	bufferSize int
	logger     *zap.Logger

	jobs chan *job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// defaultBufferSize is the read size when none is configured
const defaultBufferSize = 1024 * 1024

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithBufferSize sets the read size of one hashing pass
func WithBufferSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.bufferSize = n
		}
	}
}

// NewPool starts workers goroutines hashing for the given required algorithms
func NewPool(workers int, required []domain.Algorithm, logger *zap.Logger, opts ...PoolOption) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		required:   append([]domain.Algorithm(nil), required...),
		bufferSize: defaultBufferSize,
		logger:     logger,
		jobs:       make(chan *job),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// BufferSize returns the read size used while hashing
func (p *Pool) BufferSize() int {
	return p.bufferSize
}

// Close stops the workers after in-flight jobs finish
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// Validate checks the file at path against req. A mismatch returns a
// *domain.ValidationError alongside the report.
func (p *Pool) Validate(ctx context.Context, path string, req *domain.DownloadRequest) (*Report, error) {
	j := &job{ctx: ctx, path: path, req: req, result: make(chan jobResult, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	select {
	case p.jobs <- j:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case r := <-j.result:
		return r.report, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		report, err := p.check(j.ctx, j.path, j.req)
		j.result <- jobResult{report: report, err: err}
	}
}

// check runs size first, then one read pass feeding every content hash
func (p *Pool) check(ctx context.Context, path string, req *domain.DownloadRequest) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.NewDownloadError(domain.CategoryLocalIO, "stat", err)
	}

	report := &Report{
		Path:    path,
		Size:    info.Size(),
		Digests: map[domain.Algorithm]string{domain.AlgorithmSize: strconv.FormatInt(info.Size(), 10)},
	}

	if expected, ok := req.ExpectedValue(domain.AlgorithmSize); ok {
		outcome := domain.ValidationOutcome{
			Algorithm: domain.AlgorithmSize,
			Expected:  expected,
			Computed:  report.Digests[domain.AlgorithmSize],
			Matched:   expected == report.Digests[domain.AlgorithmSize],
		}
		report.Outcomes = append(report.Outcomes, outcome)
		if !outcome.Matched {
			p.logger.Debug("size mismatch, skipping content hash",
				zap.String("path", path),
				zap.String("expected", expected),
				zap.Int64("actual", info.Size()))
			return report, &domain.ValidationError{Path: path, Outcomes: report.Outcomes}
		}
	}

	algs := p.contentAlgorithms(req)
	if len(algs) > 0 {
		if err := p.hashFile(ctx, path, algs, report); err != nil {
			return nil, err
		}
	}

	failed := false
	for _, alg := range algs {
		expected, ok := req.ExpectedValue(alg)
		if !ok {
			continue
		}
		outcome := domain.ValidationOutcome{
			Algorithm: alg,
			Expected:  expected,
			Computed:  report.Digests[alg],
			Matched:   Equal(alg, expected, report.Digests[alg]),
		}
		report.Outcomes = append(report.Outcomes, outcome)
		failed = failed || !outcome.Matched
	}

	if failed {
		return report, &domain.ValidationError{Path: path, Outcomes: report.Outcomes}
	}

	p.logger.Debug("file validated",
		zap.String("path", path),
		zap.Int64("size", report.Size),
		zap.Int("checks", len(report.Outcomes)))
	return report, nil
}

// contentAlgorithms is the union of required algorithms and those the
// request carries an expectation for, without size
func (p *Pool) contentAlgorithms(req *domain.DownloadRequest) []domain.Algorithm {
	seen := map[domain.Algorithm]bool{domain.AlgorithmSize: true}
	var algs []domain.Algorithm
	add := func(a domain.Algorithm) {
		if !seen[a] {
			seen[a] = true
			algs = append(algs, a)
		}
	}
	for _, a := range p.required {
		add(a)
	}
	for _, e := range req.Expected {
		add(e.Algorithm)
	}
	return algs
}

func (p *Pool) hashFile(ctx context.Context, path string, algs []domain.Algorithm, report *Report) error {
	f, err := os.Open(path)
	if err != nil {
		return domain.NewDownloadError(domain.CategoryLocalIO, "open", err)
	}
	defer f.Close()

	hashes := make([]hash.Hash, len(algs))
	writers := make([]io.Writer, len(algs))
	for i, alg := range algs {
		h, err := NewHash(alg)
		if err != nil {
			return err
		}
		hashes[i] = h
		writers[i] = h
	}

	buf := make([]byte, p.bufferSize)
	if _, err := io.CopyBuffer(io.MultiWriter(writers...), &ctxReader{ctx: ctx, r: f}, buf); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.NewDownloadError(domain.CategoryLocalIO, "hash", fmt.Errorf("read %s: %w", path, err))
	}

	for i, alg := range algs {
		report.Digests[alg] = Encode(alg, hashes[i])
	}
	return nil
}

// ctxReader stops a long hash pass when the batch is cancelled
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
