package fetcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/adapter/httpclient"
	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

// HTTPBackend downloads a direct URL with range-based resume
type HTTPBackend struct {
	client *httpclient.Client
	fs     port.FileSystem
	resume bool
	logger *zap.Logger
}

var _ port.Backend = (*HTTPBackend)(nil)

// NewHTTPBackend creates a new HTTPBackend
func NewHTTPBackend(client *httpclient.Client, fs port.FileSystem, resume bool, logger *zap.Logger) *HTTPBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPBackend{client: client, fs: fs, resume: resume, logger: logger}
}

// Fetch downloads an HTTPSource into the request's partial file
func (b *HTTPBackend) Fetch(ctx context.Context, req *domain.DownloadRequest, reporter port.ProgressReporter) (*domain.FetchResult, error) {
	src, ok := req.Source.(domain.HTTPSource)
	if !ok {
		return nil, wrongSource(req, domain.SourceHTTP)
	}
	return b.fetchURL(ctx, req, src.URL, src.Headers, reporter)
}

// fetchURL is shared with backends that resolve to a plain URL
func (b *HTTPBackend) fetchURL(ctx context.Context, req *domain.DownloadRequest, rawURL string, headers map[string]string, reporter port.ProgressReporter) (*domain.FetchResult, error) {
	if err := httpclient.CheckURL(rawURL); err != nil {
		return nil, err
	}

	dest := req.Destination
	offset := b.partialOffset(req)

	// A partial that already holds every expected byte only needs validation
	if offset > 0 && offset == req.ExpectedSize {
		b.logger.Debug("partial file already complete",
			zap.String("request_id", req.ID),
			zap.Int64("size", offset))
		m := newMeter(reporter, offset, offset)
		m.finish()
		return &domain.FetchResult{
			PartialPath:  b.fs.PartialPath(dest),
			BytesWritten: offset,
			Resumed:      true,
			ResumedFrom:  offset,
		}, nil
	}

	if offset > 0 {
		b.logger.Info("resuming download",
			zap.String("request_id", req.ID),
			zap.Int64("from_byte", offset))
	}

	resp, err := b.client.Get(ctx, rawURL, headers, offset)
	if err != nil && offset > 0 && (errors.Is(err, domain.ErrRangeNotSatisfiable) || errors.Is(err, domain.ErrRangeMismatch)) {
		b.logger.Warn("resume rejected, starting fresh",
			zap.String("request_id", req.ID),
			zap.Int64("from_byte", offset),
			zap.Error(err))
		if derr := b.fs.DiscardPartial(dest); derr != nil {
			return nil, domain.NewDownloadError(domain.CategoryLocalIO, "discard partial", derr)
		}
		offset = 0
		resp, err = b.client.Get(ctx, rawURL, headers, 0)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if offset > 0 && resp.Offset == 0 {
		b.logger.Info("server ignored range request, starting fresh",
			zap.String("request_id", req.ID))
	}

	total := resp.TotalSize
	if total == 0 {
		total = req.ExpectedSize
	}

	m := newMeter(reporter, resp.Offset, total)
	pr := &progressReader{reader: resp.Body, meter: m}
	resumed := resp.Offset > 0

	written, err := b.fs.WritePartial(dest, pr, resumed)
	if err != nil {
		if pr.readErr != nil {
			return nil, httpclient.TransportError(ctx, "read body", rawURL, pr.readErr)
		}
		return nil, &domain.DownloadError{Category: domain.CategoryLocalIO, Op: "write partial", URL: rawURL, Err: err}
	}
	m.finish()

	if resumed {
		b.logger.Info("download finished (resumed)",
			zap.String("request_id", req.ID),
			zap.Int64("total_size", written),
			zap.Int64("resumed_from", resp.Offset))
	} else {
		b.logger.Debug("download finished",
			zap.String("request_id", req.ID),
			zap.Int64("size", written))
	}

	return &domain.FetchResult{
		PartialPath:      b.fs.PartialPath(dest),
		BytesWritten:     written,
		BytesTransferred: pr.bytesRead,
		Resumed:          resumed,
		ResumedFrom:      resp.Offset,
	}, nil
}

// partialOffset returns the resume position, discarding partials that
// cannot belong to this request
func (b *HTTPBackend) partialOffset(req *domain.DownloadRequest) int64 {
	if !b.resume {
		return 0
	}
	size, _, err := b.fs.PartialInfo(req.Destination)
	if err != nil || size <= 0 {
		return 0
	}
	if req.ExpectedSize > 0 && size > req.ExpectedSize {
		b.logger.Warn("partial file larger than expected, starting fresh",
			zap.String("request_id", req.ID),
			zap.Int64("partial_size", size),
			zap.Int64("expected_size", req.ExpectedSize))
		b.fs.DiscardPartial(req.Destination)
		return 0
	}
	return size
}

func wrongSource(req *domain.DownloadRequest, want domain.SourceKind) error {
	return domain.NewDownloadError(domain.CategoryUnsupported, "fetch",
		fmt.Errorf("%w: %s backend cannot fetch %T", domain.ErrUnsupportedURL, want, req.Source))
}
