package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/modfetch/internal/adapter/sqlite"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		store, err := sqlite.Open(cfg.GetDatabasePath())
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", cfg.GetDatabasePath(), err)
		}
		defer store.Close()

		runs, err := store.ListRuns(historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println(warningStyle.Render("no runs recorded"))
			return nil
		}

		fmt.Println(renderRuns(runs))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
}
