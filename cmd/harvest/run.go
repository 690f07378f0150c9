package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alfredjeanlab/harvest/internal/config"
	"github.com/alfredjeanlab/harvest/internal/events"
	"github.com/alfredjeanlab/harvest/internal/harvest"
	"github.com/alfredjeanlab/harvest/internal/metrics"
	"github.com/alfredjeanlab/harvest/internal/store/postgres"
	"github.com/alfredjeanlab/harvest/internal/ui"
	"github.com/alfredjeanlab/harvest/internal/upload"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Collect events until a time or event budget is spent",
	GroupID: "harvest",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyRunFlags(cmd.Flags(), cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		deps, cleanup, err := buildDeps(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		bar := ui.NewProgress(os.Stderr, cfg.Filter)
		deps.Progress = bar.Update

		run, err := harvest.New(cfg, deps, logger).Run(ctx)
		bar.Done()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), run)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: wrote %d records to %s\n", run.ID, run.RecordsWritten, run.OutputPath)
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.String("stream-url", "", "stream endpoint")
	f.StringP("filter", "f", "", `filter query, e.g. "track=bieber"`)
	f.IntP("time-limit", "t", 0, "time budget in seconds")
	f.Int64P("event-limit", "n", 0, "event budget")
	f.StringP("output", "o", "", "output file")
	f.String("delimiter", "", `output field delimiter (default tab)`)
	f.Duration("poll-interval", 0, "budget check interval")
	f.String("handoff", "", "reader to collector handoff: queue or direct")
}

// applyRunFlags overlays explicitly set flags onto cfg.
func applyRunFlags(f *pflag.FlagSet, cfg *config.Config) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && f.Changed(name) {
			err = apply()
		}
	}
	set("stream-url", func() (e error) { cfg.StreamURL, e = f.GetString("stream-url"); return })
	set("filter", func() (e error) { cfg.Filter, e = f.GetString("filter"); return })
	set("time-limit", func() (e error) { cfg.TimeLimit, e = f.GetInt("time-limit"); return })
	set("event-limit", func() (e error) { cfg.EventLimit, e = f.GetInt64("event-limit"); return })
	set("output", func() (e error) { cfg.Output, e = f.GetString("output"); return })
	set("delimiter", func() (e error) { cfg.Delimiter, e = f.GetString("delimiter"); return })
	set("poll-interval", func() (e error) { cfg.PollInterval, e = f.GetDuration("poll-interval"); return })
	set("handoff", func() (e error) { cfg.Handoff, e = f.GetString("handoff"); return })
	return err
}

// buildDeps connects the optional collaborators named in cfg. Failing to
// reach a configured backend is an error; unset backends are skipped.
func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (harvest.Deps, func(), error) {
	var (
		deps    = harvest.Deps{Client: &http.Client{}, Metrics: metrics.New()}
		closers []func() error
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("shutdown", "err", err)
			}
		}
	}

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			cleanup()
			return deps, nil, err
		}
		deps.Publisher = pub
		closers = append(closers, pub.Close)
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		logger.Debug("events disabled (HARVEST_NATS_URL not set)")
	}

	if cfg.DatabaseURL != "" {
		st, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return deps, nil, err
		}
		deps.Store = st
		closers = append(closers, st.Close)
		logger.Info("run ledger enabled")
	}

	if cfg.S3Bucket != "" {
		key := cfg.S3Key
		if key == "" {
			key = filepath.Base(cfg.Output)
		}
		dest, err := upload.NewS3Destination(ctx, cfg.S3Bucket, key, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			cleanup()
			return deps, nil, err
		}
		deps.Destinations = append(deps.Destinations, dest)
		logger.Info("S3 upload enabled", "bucket", cfg.S3Bucket, "key", key)
	}

	if cfg.GitRepo != "" {
		file := cfg.GitFile
		if file == "" {
			file = filepath.Base(cfg.Output)
		}
		deps.Destinations = append(deps.Destinations, upload.NewGitDestination(cfg.GitRepo, file, cfg.GitBranch))
		logger.Info("git upload enabled", "repo", cfg.GitRepo, "file", file)
	}

	return deps, cleanup, nil
}
