// Package batch runs a set of download requests to completion: it admits
// them by priority under a concurrency limit, retries recoverable failures,
// validates finished files and produces exactly one result per request.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
	"github.com/vertextoedge/modfetch/internal/service/metrics"
	"github.com/vertextoedge/modfetch/internal/service/progress"
	"github.com/vertextoedge/modfetch/internal/service/retry"
	"github.com/vertextoedge/modfetch/internal/service/validation"
)

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithReporter sets where progress events go. The reporter is shared by
// every request and must be safe for concurrent use.
func WithReporter(r port.ProgressReporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithMetrics sets the counters the orchestrator records into
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSpaceManager enables the free space preflight
func WithSpaceManager(sm port.SpaceManager) Option {
	return func(o *Orchestrator) { o.space = sm }
}

// WithTracer sets the tracer used for per-request spans
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithRetryOptions passes options to the per-request retry engine
func WithRetryOptions(opts ...retry.Option) Option {
	return func(o *Orchestrator) { o.retryOpts = append(o.retryOpts, opts...) }
}

// Orchestrator drives batches of requests through a backend
type Orchestrator struct {
	cfg       domain.DownloadConfig
	backend   port.Backend
	fs        port.FileSystem
	space     port.SpaceManager
	reporter  port.ProgressReporter
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *zap.Logger
	retryOpts []retry.Option

	engine *retry.Engine
	pool   *validation.Pool

	mu        sync.Mutex
	lastAdmit *admission
}

// New creates an Orchestrator. Close releases its validation workers.
func New(cfg domain.DownloadConfig, backend port.Backend, fs port.FileSystem, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		backend:  backend,
		fs:       fs,
		reporter: progress.Nop{},
		tracer:   noop.NewTracerProvider().Tracer(""),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	if o.reporter == nil {
		o.reporter = progress.Nop{}
	}
	if o.cfg.ConcurrencyLimit < 1 {
		o.cfg.ConcurrencyLimit = 1
	}

	engineOpts := append([]retry.Option{retry.WithLogger(o.logger.Named("retry"))}, o.retryOpts...)
	o.engine = retry.New(retry.PolicyFromConfig(o.cfg), engineOpts...)
	o.pool = validation.NewPool(o.cfg.ValidationWorkers, o.cfg.RequiredAlgorithms, o.logger.Named("validation"),
		validation.WithBufferSize(o.cfg.BufferSize()))
	return o
}

// Metrics returns the counters for everything this orchestrator has run
func (o *Orchestrator) Metrics() *metrics.Metrics {
	return o.metrics
}

// Close stops the validation workers. Run must not be called afterwards.
func (o *Orchestrator) Close() {
	o.pool.Close()
}

// Report summarises one RunAll call
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []domain.DownloadResult
	Metrics    metrics.Snapshot
}

// Counts returns completed, skipped and failed totals
func (r *Report) Counts() (completed, skipped, failed int) {
	for _, res := range r.Results {
		switch res.Status {
		case domain.StatusCompleted:
			completed++
		case domain.StatusSkipped:
			skipped++
		case domain.StatusFailed:
			failed++
		}
	}
	return completed, skipped, failed
}

// RunAll runs requests and collects every result in completion order
func (o *Orchestrator) RunAll(ctx context.Context, requests []*domain.DownloadRequest) *Report {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Results:   make([]domain.DownloadResult, 0, len(requests)),
	}
	for res := range o.Run(ctx, requests) {
		report.Results = append(report.Results, res)
	}
	report.FinishedAt = time.Now()
	report.Metrics = o.metrics.Snapshot()
	return report
}

// Run starts every request and returns a channel that yields one result per
// request as each finishes. The channel is closed after the last result.
// A failing request never stops the others; cancelling ctx makes the
// remaining requests fail with the cancelled category.
func (o *Orchestrator) Run(ctx context.Context, requests []*domain.DownloadRequest) <-chan domain.DownloadResult {
	out := make(chan domain.DownloadResult, len(requests))
	adm := newAdmission(o.cfg.ConcurrencyLimit)

	o.mu.Lock()
	o.lastAdmit = adm
	o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "batch.Run")
	span.SetAttributes(attribute.Int("batch.requests", len(requests)))

	owners := make(map[string]string, len(requests))
	slots := make([]*slot, len(requests))
	conflicts := make([]error, len(requests))
	for i, req := range requests {
		if req == nil {
			continue
		}
		if domain.WritesFiles(req.Source) && req.Destination != "" {
			path := o.fs.ResolvePath(req.Destination)
			if owner, ok := owners[path]; ok {
				conflicts[i] = fmt.Errorf("%w: destination %s already claimed by request %s",
					domain.ErrInvalidRequest, req.Destination, owner)
				continue
			}
			owners[path] = req.ID
		}
		s := &slot{adm: adm, priority: domain.NormalizePriority(req.Priority), seq: i}
		if domain.WritesFiles(req.Source) {
			s.queued = adm.enqueue(s.priority, s.seq)
		}
		slots[i] = s
	}
	adm.dispatch()

	var wg sync.WaitGroup
	for i, req := range requests {
		if req == nil {
			continue
		}
		wg.Add(1)
		go func(req *domain.DownloadRequest, s *slot, conflict error) {
			defer wg.Done()
			out <- o.process(ctx, req, s, conflict)
		}(req, slots[i], conflicts[i])
	}

	go func() {
		wg.Wait()
		span.End()
		close(out)
	}()
	return out
}

// ValidationBufferSize returns the read size of the validation pool
func (o *Orchestrator) ValidationBufferSize() int {
	return o.pool.BufferSize()
}

// PeakConcurrency returns the most slots held at once during the last Run
func (o *Orchestrator) PeakConcurrency() int {
	o.mu.Lock()
	adm := o.lastAdmit
	o.mu.Unlock()
	if adm == nil {
		return 0
	}
	return adm.peak()
}

func (o *Orchestrator) process(ctx context.Context, req *domain.DownloadRequest, s *slot, conflict error) domain.DownloadResult {
	start := time.Now()
	kind := domain.SourceUnknown
	if req.Source != nil {
		kind = req.Source.Kind()
	}

	ctx, span := o.tracer.Start(ctx, "batch.request")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", req.ID),
		attribute.String("source.kind", string(kind)),
		attribute.Int("request.priority", domain.NormalizePriority(req.Priority)),
	)

	logger := o.logger.With(
		zap.String("request_id", req.ID),
		zap.String("kind", string(kind)),
	)

	o.metrics.RecordAttempted()

	var result domain.DownloadResult
	if conflict != nil {
		if s != nil {
			s.abandon()
		}
		result = domain.Failed(req, domain.NewDownloadError(domain.CategoryInvalidRequest, "admit", conflict))
	} else {
		result = o.execute(ctx, req, s, logger, start)
	}

	o.metrics.Record(result)
	span.SetAttributes(
		attribute.String("result.status", string(result.Status)),
		attribute.Int("result.retries", result.Retries),
	)

	switch result.Status {
	case domain.StatusCompleted:
		logger.Info("download completed",
			zap.String("path", result.Path),
			zap.Int64("size", result.Size),
			zap.Bool("cache_hit", result.CacheHit),
			zap.Bool("resumed", result.Resumed),
			zap.Int("retries", result.Retries),
			zap.Duration("elapsed", result.Elapsed))
	case domain.StatusSkipped:
		logger.Warn("download skipped", zap.String("reason", result.Reason))
	case domain.StatusFailed:
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, string(result.Category))
		logger.Error("download failed",
			zap.String("category", string(result.Category)),
			zap.Int("retries", result.Retries),
			zap.Error(result.Err))
	}
	return result
}

func (o *Orchestrator) execute(ctx context.Context, req *domain.DownloadRequest, s *slot, logger *zap.Logger, start time.Time) domain.DownloadResult {
	defer s.abandon()
	defer s.Release()

	if err := req.Validate(); err != nil {
		return domain.Failed(req, domain.NewDownloadError(domain.CategoryInvalidRequest, "validate request", err))
	}

	// Sources that never touch the disk resolve without a slot
	if !domain.WritesFiles(req.Source) {
		s.abandon()
		_, err := o.backend.Fetch(ctx, req, progress.Nop{})
		if err == nil {
			return domain.Skipped(req, "nothing to download")
		}
		if domain.IsSkippable(err) {
			return domain.Skipped(req, domain.SkipReason(err))
		}
		return domain.Failed(req, err)
	}

	if res, ok := o.cacheHit(ctx, req, logger, start); ok {
		return res
	}

	if err := o.checkSpace(req); err != nil {
		return domain.Failed(req, err)
	}

	if err := s.Acquire(ctx); err != nil {
		return domain.Failed(req, domain.NewDownloadError(domain.CategoryCancelled, "admit", err))
	}

	tracker := progress.NewTracker(req.ID, o.reporter, nil)
	tracker.ReportLifecycle(domain.LifecycleEvent{Stage: domain.StageDownloadStarted, Size: req.ExpectedSize})

	var fetched *domain.FetchResult
	outcome := o.engine.Run(ctx, s, func(ctx context.Context, a *retry.Attempt) error {
		tracker.SetOnProgress(a.Touch)
		fr, err := o.backend.Fetch(ctx, req, tracker)
		if err != nil {
			return err
		}
		fetched = fr
		return nil
	}, retry.OnRetry(func(n retry.Notice) {
		tracker.ReportLifecycle(domain.LifecycleEvent{
			Stage:      domain.StageRetrying,
			Attempt:    n.Attempt,
			MaxRetries: n.MaxRetries,
			Wait:       n.Wait,
			Err:        n.Err,
		})
	}))
	tracker.SetOnProgress(nil)
	s.Release()

	if outcome.Err != nil {
		if domain.IsSkippable(outcome.Err) {
			res := domain.Skipped(req, domain.SkipReason(outcome.Err))
			res.Retries = outcome.Retries
			return res
		}
		o.settlePartial(req, outcome.Err, logger)
		tracker.ReportLifecycle(domain.LifecycleEvent{Stage: domain.StageFailed, Err: outcome.Err})
		res := domain.Failed(req, outcome.Err)
		res.Retries = outcome.Retries
		return res
	}

	o.metrics.RecordBytes(fetched.BytesTransferred)
	tracker.ReportLifecycle(domain.LifecycleEvent{Stage: domain.StageDownloadCompleted, Size: fetched.BytesWritten})

	tracker.ReportLifecycle(domain.LifecycleEvent{Stage: domain.StageValidationStarted, Size: fetched.BytesWritten})
	report, err := o.pool.Validate(ctx, fetched.PartialPath, req)
	tracker.ReportLifecycle(domain.LifecycleEvent{Stage: domain.StageValidationCompleted, Valid: err == nil, Err: err})
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			err = domain.NewDownloadError(domain.CategoryIntegrity, "validate", err)
		case ctx.Err() != nil:
			err = domain.NewDownloadError(domain.CategoryCancelled, "validate", err)
		default:
			err = domain.NewDownloadError(domain.CategoryLocalIO, "validate", err)
		}
		o.settlePartial(req, err, logger)
		tracker.ReportLifecycle(domain.LifecycleEvent{Stage: domain.StageFailed, Err: err})
		res := domain.Failed(req, err)
		res.Retries = outcome.Retries
		return res
	}

	path, err := o.fs.FinalizePartial(req.Destination)
	if err != nil {
		err = domain.NewDownloadError(domain.CategoryLocalIO, "finalize", err)
		tracker.ReportLifecycle(domain.LifecycleEvent{Stage: domain.StageFailed, Err: err})
		res := domain.Failed(req, err)
		res.Retries = outcome.Retries
		return res
	}

	res := domain.Completed(req, path, report.PrimaryHash(), report.Size, time.Since(start))
	res.Digests = report.Digests
	res.Resumed = fetched.Resumed
	res.Retries = outcome.Retries
	return res
}

// cacheHit reports whether the destination already holds a file that
// passes validation. Requests with nothing to verify are always fetched.
func (o *Orchestrator) cacheHit(ctx context.Context, req *domain.DownloadRequest, logger *zap.Logger, start time.Time) (domain.DownloadResult, bool) {
	if !req.HasExpectations() {
		return domain.DownloadResult{}, false
	}
	path := o.fs.ResolvePath(req.Destination)
	if !o.fs.FileExists(path) {
		return domain.DownloadResult{}, false
	}

	report, err := o.pool.Validate(ctx, path, req)
	if err != nil {
		logger.Debug("existing file does not match, downloading again", zap.Error(err))
		return domain.DownloadResult{}, false
	}

	res := domain.Completed(req, path, report.PrimaryHash(), report.Size, time.Since(start))
	res.Digests = report.Digests
	res.CacheHit = true
	return res, true
}

func (o *Orchestrator) checkSpace(req *domain.DownloadRequest) error {
	if o.space == nil || req.ExpectedSize <= 0 {
		return nil
	}
	check, err := o.space.CheckSpace(req.Destination, req.ExpectedSize)
	if err != nil {
		return domain.NewDownloadError(domain.CategoryLocalIO, "check space", err)
	}
	if !check.HasSpace {
		return domain.NewDownloadError(domain.CategoryInsufficientSpace, "check space",
			fmt.Errorf("%w: need %d bytes, %d free, %d reserved", domain.ErrInsufficientSpace,
				check.RequiredBytes, check.FreeBytes, check.MinFreeBytes))
	}
	return nil
}

// settlePartial keeps partial bytes a later run can resume from and drops
// the rest.
func (o *Orchestrator) settlePartial(req *domain.DownloadRequest, err error, logger *zap.Logger) {
	switch domain.Classify(err) {
	case domain.CategoryCancelled, domain.CategoryExhausted, domain.CategoryTransport, domain.CategoryRateLimited:
		return
	}
	if derr := o.fs.DiscardPartial(req.Destination); derr != nil {
		logger.Warn("failed to discard partial file", zap.Error(derr))
	}
}
