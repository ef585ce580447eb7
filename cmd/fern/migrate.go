package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, flush, err := bootstrap()
			if err != nil {
				return err
			}
			defer flush()

			a := newApp(cfg, logger)
			err = a.start(cmd.Context(), infra{migrate: true})
			return errors.Join(err, a.stop(context.WithoutCancel(cmd.Context())))
		},
	}
}
