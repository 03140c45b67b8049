package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type commandContext struct {
	logLevel  string
	logFormat string

	log *zap.Logger
}

func (c *commandContext) logger() *zap.Logger {
	if c.log == nil {
		return zap.NewNop()
	}
	return c.log
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "derivatives",
		Short:         "Generate missing web and thumbnail renditions for catalog images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(ctx.logLevel, ctx.logFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = ctx.logger().Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&ctx.logFormat, "log-format", "console", "Log format (console or json)")

	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newKeysCommand())

	return rootCmd
}
