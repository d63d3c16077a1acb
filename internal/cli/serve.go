package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/lotline-backend/internal/app"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until interrupted. The schema is migrated on startup.

Examples:
  lotline serve --addr :8080
  LOTLINE_POLICY=/etc/lotline/policy.yaml lotline serve --with-worker`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if withWorker {
					a.Cfg.EmbeddedWorker = true
				}
				err := a.Serve(ctx)
				if errors.Is(err, app.ErrTemporalDisabled) {
					return WrapExitError(ExitCommandError, "--with-worker", err)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the Temporal worker in this process")
	return cmd
}

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and storage triggers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger()
			if err != nil {
				return WrapExitError(ExitCommandError, "logger", err)
			}
			defer log.Sync()
			cfg := app.LoadConfig(log)
			theDB, err := app.OpenDatabase(log, cfg, true)
			if err != nil {
				return WrapExitError(ExitCommandError, "migrate", err)
			}
			if sqlDB, err := theDB.DB(); err == nil {
				defer sqlDB.Close()
			}
			printSuccess(cmd.OutOrStdout(), "schema migrated ("+cfg.DBDriver+")")
			return nil
		},
	}
}

func NewWorkerCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker for reports and archive sweeps",
		Long: `Poll the Temporal task queue until interrupted. The archive sweep cron
(ARCHIVE_SWEEP_CRON) is registered on startup unless it is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				err := a.RunWorker(ctx)
				if errors.Is(err, app.ErrTemporalDisabled) {
					return WrapExitError(ExitCommandError, "worker", err)
				}
				return err
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "schedule",
		Short: "Register the archive sweep cron without running a worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.ScheduleArchiveSweep(ctx); err != nil {
					return WrapExitError(ExitCommandError, "schedule archive sweep", err)
				}
				printSuccess(cmd.OutOrStdout(), "archive sweep scheduled ("+a.Cfg.ArchiveSweepCron+")")
				return nil
			})
		},
	})
	return cmd
}

func NewArchiveCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Run archival",
	}
	var batch int
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Archive every ended run past the retention window",
		Long: `Archive ended runs older than the policy's run_archive_retention. With
Temporal configured the sweep runs as a workflow; otherwise it runs here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch < 0 {
				return NewExitError(ExitCommandError, "--batch must be positive")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.ArchiveSweep(ctx, batch)
				if err != nil {
					return domainFailure("archive sweep", err)
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				printSuccess(cmd.OutOrStdout(), archiveSummary(res.Archived, res.Batches))
				return nil
			})
		},
	}
	sweep.Flags().IntVar(&batch, "batch", 0, "runs per batch (default ARCHIVE_SWEEP_BATCH)")
	cmd.AddCommand(sweep)
	return cmd
}

func archiveSummary(archived, batches int) string {
	noun := "runs"
	if archived == 1 {
		noun = "run"
	}
	return fmt.Sprintf("%d %s archived in %d batch(es)", archived, noun, batches)
}
