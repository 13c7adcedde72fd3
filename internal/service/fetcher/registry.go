// Package fetcher holds one backend per source variant. Registry picks the
// backend with an exhaustive switch over the sealed domain.Source type.
package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/adapter/httpclient"
	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
	"github.com/vertextoedge/modfetch/internal/service/retry"
)

// Deps are the collaborators the backends need. Nexus, Archives and Games
// may be nil; the matching sources then fail without retrying.
type Deps struct {
	Client   *httpclient.Client
	FS       port.FileSystem
	Nexus    port.NexusResolver
	Archives port.ArchiveExtractor
	Games    port.GameLocator
	Config   domain.DownloadConfig
	Logger   *zap.Logger

	// ChunkRetryOptions tune the per-chunk retry engine of the CDN backend
	ChunkRetryOptions []retry.Option
}

// Registry dispatches a request to the backend for its source
type Registry struct {
	HTTP     *HTTPBackend
	CDN      *CDNBackend
	GameFile *GameFileBackend
	Nexus    *NexusBackend
	Manual   ManualBackend
	Archive  *ArchiveBackend
	Unknown  UnknownBackend
}

var _ port.Backend = (*Registry)(nil)

// NewRegistry builds every backend from deps
func NewRegistry(deps Deps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := deps.Client
	if client == nil {
		opts := httpclient.DefaultOptions()
		if deps.Config.UserAgent != "" {
			opts.UserAgent = deps.Config.UserAgent
		}
		client = httpclient.New(opts)
	}

	httpBackend := NewHTTPBackend(client, deps.FS, deps.Config.ResumeEnabled, logger.Named("http"))
	return &Registry{
		HTTP:     httpBackend,
		CDN:      NewCDNBackend(client, deps.FS, deps.Config, logger.Named("cdn"), deps.ChunkRetryOptions...),
		GameFile: NewGameFileBackend(deps.Games, deps.FS, logger.Named("gamefile")),
		Nexus:    NewNexusBackend(deps.Nexus, httpBackend, logger.Named("nexus")),
		Archive:  NewArchiveBackend(deps.Archives, deps.FS, logger.Named("archive")),
	}
}

// Backend returns the backend serving source
func (r *Registry) Backend(source domain.Source) (port.Backend, error) {
	switch source.(type) {
	case domain.HTTPSource:
		return r.HTTP, nil
	case domain.WabbajackCDNSource:
		return r.CDN, nil
	case domain.GameFileSource:
		return r.GameFile, nil
	case domain.NexusSource:
		return r.Nexus, nil
	case domain.ManualSource:
		return r.Manual, nil
	case domain.ArchiveSource:
		return r.Archive, nil
	case domain.UnknownSource:
		return r.Unknown, nil
	default:
		return nil, domain.NewDownloadError(domain.CategoryUnsupported, "dispatch",
			fmt.Errorf("%w: source %T", domain.ErrUnsupportedURL, source))
	}
}

// Fetch runs the matching backend once
func (r *Registry) Fetch(ctx context.Context, req *domain.DownloadRequest, reporter port.ProgressReporter) (*domain.FetchResult, error) {
	backend, err := r.Backend(req.Source)
	if err != nil {
		return nil, err
	}
	return backend.Fetch(ctx, req, reporter)
}
