package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/adapter/archivefs"
	"github.com/vertextoedge/modfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/modfetch/internal/adapter/gamedir"
	"github.com/vertextoedge/modfetch/internal/adapter/httpclient"
	"github.com/vertextoedge/modfetch/internal/adapter/nexus"
	"github.com/vertextoedge/modfetch/internal/adapter/requestfile"
	"github.com/vertextoedge/modfetch/internal/adapter/sqlite"
	"github.com/vertextoedge/modfetch/internal/config"
	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/logger"
	"github.com/vertextoedge/modfetch/internal/port"
	"github.com/vertextoedge/modfetch/internal/service/batch"
	"github.com/vertextoedge/modfetch/internal/service/fetcher"
	"github.com/vertextoedge/modfetch/internal/service/metrics"
	"github.com/vertextoedge/modfetch/internal/service/progress"
)

var (
	progressInterval time.Duration
	noHistory        bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <requests.yaml>",
	Short: "Download every archive listed in a request file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runFetch(ctx, cfg, args[0])
	},
}

func init() {
	fetchCmd.Flags().DurationVar(&progressInterval, "progress-interval", 5*time.Second, "Minimum time between progress lines per download")
	fetchCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this run in the history database")
}

func runFetch(ctx context.Context, cfg *config.Config, requestPath string) error {
	zapLogger := logger.GetZapLogger()

	downloadCfg, err := cfg.ToDownloadConfig()
	if err != nil {
		return err
	}

	requests, err := requestfile.LoadFile(requestPath)
	if err != nil {
		return err
	}

	fsManager, err := openDownloads(cfg.Paths.DownloadsDir, downloadCfg)
	if err != nil {
		return err
	}

	var history port.RunHistory
	if !noHistory {
		store, err := sqlite.Open(cfg.GetDatabasePath())
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", cfg.GetDatabasePath(), err)
		}
		defer store.Close()
		history = store
	}

	archives := archivefs.New(logger.Named("archivefs"))
	if history != nil {
		records, err := history.CompletedArchives()
		if err != nil {
			zapLogger.Warn("failed to load completed archives", zap.Error(err))
		}
		archives.RegisterAll(records)
	}
	if cfg.Paths.ArchivesDir != "" {
		n, err := archives.IndexDir(ctx, cfg.Paths.ArchivesDir)
		if err != nil {
			zapLogger.Warn("failed to index archives dir", zap.String("dir", cfg.Paths.ArchivesDir), zap.Error(err))
		}
		zapLogger.Info("indexed archives", zap.String("dir", cfg.Paths.ArchivesDir), zap.Int("count", n))
	}

	clientOpts := httpclient.DefaultOptions()
	clientOpts.UserAgent = downloadCfg.UserAgent
	client := httpclient.New(clientOpts)

	deps := fetcher.Deps{
		Client:   client,
		FS:       fsManager,
		Archives: archives,
		Games:    gamedir.New(cfg.Paths.GameDirs, logger.Named("gamedir")),
		Config:   downloadCfg,
		Logger:   logger.Named("fetcher"),
	}
	if cfg.Nexus.APIKey != "" {
		nexusClient, err := nexus.New(nexus.Config{
			APIKey:            cfg.Nexus.APIKey,
			BaseURL:           cfg.Nexus.BaseURL,
			UserAgent:         downloadCfg.UserAgent,
			RequestsPerSecond: cfg.Nexus.RequestsPerSecond,
			HTTPClient:        client.HTTPClient(),
		}, logger.Named("nexus"))
		if err != nil {
			return err
		}
		deps.Nexus = nexusClient
	}
	registry := fetcher.NewRegistry(deps)

	reporter := progress.NewAsync(progress.NewConsole(logger.Named("progress"), progressInterval), 1024)
	defer reporter.Close()

	m := metrics.New()
	orch := batch.New(downloadCfg, registry, fsManager,
		batch.WithLogger(logger.Named("batch")),
		batch.WithReporter(reporter),
		batch.WithMetrics(m),
		batch.WithSpaceManager(batch.NewSpaceManager(fsManager, downloadCfg.MinFreeSpace)),
		batch.WithTracer(otel.Tracer("github.com/vertextoedge/modfetch")),
	)
	defer orch.Close()

	run := &port.RunRecord{ID: uuid.NewString(), StartedAt: time.Now(), Total: len(requests)}
	if history != nil {
		if err := history.RecordRun(run); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
	}

	zapLogger.Info("starting batch",
		zap.String("run_id", run.ID),
		zap.Int("requests", len(requests)),
		zap.Int("concurrency", downloadCfg.ConcurrencyLimit))

	// Archive sources read from parents that may be downloaded in this same
	// run, so they go in a second phase once the parents are indexed.
	parents, children := splitPhases(requests)
	var results []domain.DownloadResult
	for _, phase := range [][]*domain.DownloadRequest{parents, children} {
		if len(phase) == 0 {
			continue
		}
		for res := range orch.Run(ctx, phase) {
			results = append(results, res)
			if res.Status == domain.StatusCompleted && res.Hash != "" {
				archives.Register(res.Hash, res.Path)
			}
			if history != nil {
				if err := history.RecordResult(run.ID, res); err != nil {
					zapLogger.Warn("failed to record result", zap.String("request_id", res.RequestID), zap.Error(err))
				}
			}
		}
	}

	snap := m.Snapshot()
	finished := time.Now()
	run.FinishedAt = &finished
	run.Completed = int(snap.Completed)
	run.Skipped = int(snap.Skipped)
	run.Failed = int(snap.Failed)
	run.Bytes = snap.BytesTransferred
	if history != nil {
		if err := history.FinishRun(run); err != nil {
			zapLogger.Warn("failed to finish run", zap.Error(err))
		}
	}

	zapLogger.Info("batch finished",
		zap.String("run_id", run.ID),
		zap.Int64("completed", snap.Completed),
		zap.Int64("skipped", snap.Skipped),
		zap.Int64("failed", snap.Failed),
		zap.Int64("bytes", snap.BytesTransferred),
		zap.Int64("dropped_progress_events", reporter.Dropped()))

	fmt.Println(renderResults(run.ID, results, snap, finished.Sub(run.StartedAt)))

	if snap.Failed > 0 {
		return errRunFailed
	}
	return nil
}

// splitPhases separates requests extracted from other archives
func splitPhases(requests []*domain.DownloadRequest) (parents, children []*domain.DownloadRequest) {
	for _, req := range requests {
		if _, ok := req.Source.(domain.ArchiveSource); ok {
			children = append(children, req)
			continue
		}
		parents = append(parents, req)
	}
	return parents, children
}

// openDownloads creates the partial-file store, streaming in chunk_size
// pieces
func openDownloads(dir string, downloadCfg domain.DownloadConfig) (*filesystem.Manager, error) {
	m, err := filesystem.NewManagerWithBufferSize(dir, downloadCfg.BufferSize())
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem manager: %w", err)
	}
	return m, nil
}
