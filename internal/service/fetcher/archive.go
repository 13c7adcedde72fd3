package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

var errCopyAborted = errors.New("copy aborted")

// ArchiveBackend extracts a file from an already downloaded parent archive
type ArchiveBackend struct {
	archives port.ArchiveExtractor
	fs       port.FileSystem
	logger   *zap.Logger
}

var _ port.Backend = (*ArchiveBackend)(nil)

// NewArchiveBackend creates a new ArchiveBackend
func NewArchiveBackend(archives port.ArchiveExtractor, fs port.FileSystem, logger *zap.Logger) *ArchiveBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveBackend{archives: archives, fs: fs, logger: logger}
}

// Fetch streams the inner file into the partial file
func (b *ArchiveBackend) Fetch(ctx context.Context, req *domain.DownloadRequest, reporter port.ProgressReporter) (*domain.FetchResult, error) {
	src, ok := req.Source.(domain.ArchiveSource)
	if !ok {
		return nil, wrongSource(req, domain.SourceArchive)
	}
	if b.archives == nil {
		return nil, domain.NewDownloadError(domain.CategoryNotFound, "extract",
			fmt.Errorf("%w: %s", domain.ErrArchiveNotFound, src.ArchiveHash))
	}

	pr, pw := io.Pipe()
	extracted := make(chan error, 1)
	go func() {
		_, err := b.archives.Extract(ctx, src.ArchiveHash, src.InnerPath, pw)
		pw.CloseWithError(err)
		extracted <- err
	}()

	m := newMeter(reporter, 0, req.ExpectedSize)
	reader := &progressReader{reader: pr, meter: m}
	written, werr := b.fs.WritePartial(req.Destination, reader, false)
	pr.CloseWithError(errCopyAborted)
	eerr := <-extracted

	switch {
	case eerr != nil && !errors.Is(eerr, errCopyAborted):
		return nil, extractError(ctx, src, eerr)
	case werr != nil:
		return nil, domain.NewDownloadError(domain.CategoryLocalIO, "write partial", werr)
	}
	m.finish()

	b.logger.Debug("extracted archive entry",
		zap.String("request_id", req.ID),
		zap.String("archive", src.ArchiveHash),
		zap.String("inner_path", src.InnerPath),
		zap.Int64("size", written))

	return &domain.FetchResult{
		PartialPath:      b.fs.PartialPath(req.Destination),
		BytesWritten:     written,
		BytesTransferred: reader.bytesRead,
	}, nil
}

func extractError(ctx context.Context, src domain.ArchiveSource, err error) error {
	var de *domain.DownloadError
	switch {
	case errors.As(err, &de):
		return err
	case ctx.Err() != nil:
		return domain.NewDownloadError(domain.CategoryCancelled, "extract", ctx.Err())
	case errors.Is(err, domain.ErrArchiveNotFound), errors.Is(err, domain.ErrNotFound):
		return domain.NewDownloadError(domain.CategoryNotFound, "extract",
			fmt.Errorf("%s in %s: %w", src.InnerPath, src.ArchiveHash, err))
	default:
		return domain.NewDownloadError(domain.CategoryLocalIO, "extract", err)
	}
}
