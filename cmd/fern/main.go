package main

import (
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "fern",
		Short:         "Call-to-account resolution and account merging service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSyncCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the zap-backed ectologger. PrettyLogs switches to zap's
// development encoder.
func newLogger(cfg *config.Config) (ectologger.Logger, func(), error) {
	zcfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
		}
		zcfg.Level = level
	}

	zl, err := zcfg.Build(zap.Fields(zap.String("app", cfg.AppName), zap.String("version", version)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zl, nil), func() { _ = zl.Sync() }, nil
}

// bootstrap loads config and the logger shared by every command.
func bootstrap() (*config.Config, ectologger.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, flush, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, flush, nil
}
