package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

// GameFileBackend copies a file out of an installed game. Every failure is
// terminal; a local copy gets one attempt.
type GameFileBackend struct {
	games  port.GameLocator
	fs     port.FileSystem
	logger *zap.Logger
}

var _ port.Backend = (*GameFileBackend)(nil)

// NewGameFileBackend creates a new GameFileBackend
func NewGameFileBackend(games port.GameLocator, fs port.FileSystem, logger *zap.Logger) *GameFileBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GameFileBackend{games: games, fs: fs, logger: logger}
}

// Fetch copies the game file into the partial file
func (b *GameFileBackend) Fetch(ctx context.Context, req *domain.DownloadRequest, reporter port.ProgressReporter) (*domain.FetchResult, error) {
	src, ok := req.Source.(domain.GameFileSource)
	if !ok {
		return nil, wrongSource(req, domain.SourceGameFile)
	}
	if b.games == nil {
		return nil, domain.NewDownloadError(domain.CategoryNotFound, "locate game",
			fmt.Errorf("%w: %s", domain.ErrGameNotFound, src.Game))
	}

	dir, err := b.games.GameDir(src.Game)
	if err != nil {
		if errors.Is(err, domain.ErrGameNotFound) {
			return nil, domain.NewDownloadError(domain.CategoryNotFound, "locate game", err)
		}
		return nil, domain.NewDownloadError(domain.CategoryLocalIO, "locate game", err)
	}

	rel, err := cleanRelative(src.RelativePath)
	if err != nil {
		return nil, domain.NewDownloadError(domain.CategoryUnsupported, "game file", err)
	}
	path := filepath.Join(dir, rel)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.NewDownloadError(domain.CategoryNotFound, "open game file",
				fmt.Errorf("%w: %s", domain.ErrNotFound, path))
		}
		return nil, domain.NewDownloadError(domain.CategoryLocalIO, "open game file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, domain.NewDownloadError(domain.CategoryLocalIO, "stat game file", err)
	}
	if info.IsDir() {
		return nil, domain.NewDownloadError(domain.CategoryLocalIO, "open game file",
			fmt.Errorf("%s is a directory", path))
	}

	m := newMeter(reporter, 0, info.Size())
	pr := &progressReader{reader: &ctxReader{ctx: ctx, r: f}, meter: m}

	written, err := b.fs.WritePartial(req.Destination, pr, false)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewDownloadError(domain.CategoryCancelled, "copy game file", ctx.Err())
		}
		return nil, domain.NewDownloadError(domain.CategoryLocalIO, "copy game file", err)
	}
	m.finish()

	b.logger.Debug("copied game file",
		zap.String("request_id", req.ID),
		zap.String("game", src.Game),
		zap.String("path", rel),
		zap.Int64("size", written))

	return &domain.FetchResult{
		PartialPath:      b.fs.PartialPath(req.Destination),
		BytesWritten:     written,
		BytesTransferred: pr.bytesRead,
	}, nil
}

// cleanRelative rejects absolute paths and paths escaping the game directory
func cleanRelative(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty relative path")
	}
	rel := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(p, `\`, "/")))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the game directory", p)
	}
	return rel, nil
}

// ctxReader stops a local copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
