package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often Start runs a cleanup pass
	CleanupInterval time.Duration

	// TempFileMaxAge is the maximum age of partial files and chunk parts
	TempFileMaxAge time.Duration

	// HistoryMaxAge is how long finished runs stay in the history
	HistoryMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval: time.Hour,
		TempFileMaxAge:  24 * time.Hour,
		HistoryMaxAge:   30 * 24 * time.Hour,
	}
}

// Stats counts what one cleanup pass removed
type Stats struct {
	TempFiles int
	Runs      int
}

// Service sweeps abandoned partial downloads and old run history
type Service struct {
	config  *Config
	fs      port.FileSystem
	history port.RunHistory
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. history may be nil.
func New(cfg *Config, fs port.FileSystem, history port.RunHistory, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 24 * time.Hour
	}
	if cfg.HistoryMaxAge == 0 {
		cfg.HistoryMaxAge = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:  cfg,
		fs:      fs,
		history: history,
		logger:  logger,
	}
}

// RunOnce performs a single cleanup pass. Every step runs even when an
// earlier one fails; the errors are joined.
func (s *Service) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	var errs []error

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	n, err := s.cleanupTempFiles()
	stats.TempFiles = n
	if err != nil {
		errs = append(errs, err)
	}

	if err := s.fs.CleanEmptyDirs(); err != nil {
		s.logger.Error("failed to remove empty directories", zap.Error(err))
		errs = append(errs, fmt.Errorf("clean empty dirs: %w", err))
	}

	if s.history != nil {
		n, err := s.pruneHistory()
		stats.Runs = n
		if err != nil {
			errs = append(errs, err)
		}
	}

	return stats, errors.Join(errs...)
}

// Start runs cleanup passes until ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("temp_file_max_age", s.config.TempFileMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("maintenance pass incomplete", zap.Error(err))
			}
		}
	}
}

// cleanupTempFiles removes abandoned partial files from the filesystem
func (s *Service) cleanupTempFiles() (int, error) {
	fileCount, err := s.fs.CleanOldTempFiles(s.config.TempFileMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup old temp files", zap.Error(err))
		return fileCount, fmt.Errorf("clean temp files: %w", err)
	}
	if fileCount > 0 {
		s.logger.Info("cleaned up old temp files from filesystem", zap.Int("count", fileCount))
	}
	return fileCount, nil
}

func (s *Service) pruneHistory() (int, error) {
	pruned, err := s.history.PruneRuns(s.config.HistoryMaxAge)
	if err != nil {
		s.logger.Error("failed to prune run history", zap.Error(err))
		return 0, fmt.Errorf("prune history: %w", err)
	}
	if pruned > 0 {
		s.logger.Info("pruned old runs", zap.Int("count", pruned))
	}
	return pruned, nil
}
