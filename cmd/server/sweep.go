package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"deepfake-detector/internal/service"
)

func sweepCommand() *cobra.Command {
	var (
		dryRun bool
		grace  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove uploaded files no detection refers to",
		Long: `Remove files in the upload directory that are not referenced by any
detection and are older than the grace period. Such files are left behind
when the server stops between storing an upload and recording its result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, a *app) error {
				sweeper := service.NewSweeper(a.cfg.Upload.Dir, a.repos.detections, a.logger)
				report, err := sweeper.Sweep(ctx, grace, dryRun)
				if err != nil {
					return err
				}
				a.logger.WithFields(logrus.Fields{
					"scanned": report.Scanned,
					"orphans": len(report.Orphans),
					"removed": report.Removed,
					"dry_run": dryRun,
				}).Info("sweep finished")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list orphaned files without removing them")
	cmd.Flags().DurationVar(&grace, "grace", time.Hour, "only consider files older than this")
	return cmd
}
