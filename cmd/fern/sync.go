package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCommand() *cobra.Command {
	var failOnError bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync of every enabled integration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, flush, err := bootstrap()
			if err != nil {
				return err
			}
			defer flush()

			a := newApp(cfg, logger)
			if err := a.start(cmd.Context(), infra{services: true, dispatcher: true}); err != nil {
				return errors.Join(err, a.stop(context.WithoutCancel(cmd.Context())))
			}

			report := a.syncer.SyncAll(cmd.Context())
			logger.WithFields(map[string]any{
				"total":     report.Total,
				"succeeded": report.Succeeded,
				"failed":    report.Failed,
				"skipped":   report.Skipped,
			}).Info("Sync finished")

			err = a.stop(context.WithoutCancel(cmd.Context()))
			if failOnError && report.Failed > 0 {
				err = errors.Join(err, fmt.Errorf("%d integration configs failed to sync", report.Failed))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when any integration config fails")
	return cmd
}
