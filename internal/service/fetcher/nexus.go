package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

// NexusBackend resolves a signed URL for every attempt, then downloads it
// like a direct link. Signed links expire, so they are never reused.
type NexusBackend struct {
	resolver port.NexusResolver
	http     *HTTPBackend
	logger   *zap.Logger
}

var _ port.Backend = (*NexusBackend)(nil)

// NewNexusBackend creates a new NexusBackend. resolver may be nil when no
// API key is configured; every fetch then fails with an authorization error.
func NewNexusBackend(resolver port.NexusResolver, http *HTTPBackend, logger *zap.Logger) *NexusBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NexusBackend{resolver: resolver, http: http, logger: logger}
}

// Fetch resolves and downloads a NexusSource
func (b *NexusBackend) Fetch(ctx context.Context, req *domain.DownloadRequest, reporter port.ProgressReporter) (*domain.FetchResult, error) {
	src, ok := req.Source.(domain.NexusSource)
	if !ok {
		return nil, wrongSource(req, domain.SourceNexus)
	}
	if b.resolver == nil {
		return nil, domain.NewDownloadError(domain.CategoryAuthorization, "nexus resolve",
			fmt.Errorf("%w: no nexus api key configured", domain.ErrUnauthorized))
	}

	link, err := b.resolver.ResolveDownloadURL(ctx, src.GameDomain, src.ModID, src.FileID)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("resolved nexus download",
		zap.String("request_id", req.ID),
		zap.String("game", src.GameDomain),
		zap.Int64("mod_id", src.ModID),
		zap.Int64("file_id", src.FileID))

	return b.http.fetchURL(ctx, req, link, nil, reporter)
}
