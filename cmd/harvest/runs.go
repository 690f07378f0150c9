package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/harvest/internal/store/postgres"
	"github.com/alfredjeanlab/harvest/internal/ui"
)

var runsCmd = &cobra.Command{
	Use:     "runs [run-id]",
	Short:   "List recorded runs, or show one",
	GroupID: "inspect",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("no run ledger configured (set HARVEST_DATABASE_URL or database_url)")
		}
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := context.Background()
		st, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()

		if !ui.ShouldUseColor(os.Stdout) {
			ui.ForceNoColor()
		}
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return printJSON(out, run)
		}

		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, runs)
		}
		return printRuns(out, runs)
	},
}

func init() {
	runsCmd.Flags().Int("limit", postgres.DefaultListLimit, "maximum number of runs to list")
}
