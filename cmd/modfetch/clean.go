package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/modfetch/internal/adapter/sqlite"
	"github.com/vertextoedge/modfetch/internal/logger"
	"github.com/vertextoedge/modfetch/internal/service/maintenance"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove abandoned partial downloads and prune old run history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		fsManager, err := filesystem.NewManager(cfg.Paths.DownloadsDir)
		if err != nil {
			return fmt.Errorf("failed to create filesystem manager: %w", err)
		}

		store, err := sqlite.Open(cfg.GetDatabasePath())
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", cfg.GetDatabasePath(), err)
		}
		defer store.Close()

		svc := maintenance.New(&maintenance.Config{
			TempFileMaxAge: cfg.Maintenance.GetTempFileMaxAge(),
			HistoryMaxAge:  cfg.Maintenance.GetHistoryMaxAge(),
		}, fsManager, store, logger.Named("maintenance"))

		stats, err := svc.RunOnce(cmd.Context())
		logger.GetZapLogger().Info("cleanup finished",
			zap.Int("temp_files", stats.TempFiles),
			zap.Int("runs", stats.Runs))
		if err != nil {
			return err
		}

		fmt.Println(successStyle.Render(fmt.Sprintf("✓ removed %d partial files and %d old runs", stats.TempFiles, stats.Runs)))
		return nil
	},
}
