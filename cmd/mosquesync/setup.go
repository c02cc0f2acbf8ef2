package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/njoerd114/mosquesync/internal/setup"
)

func setupCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run wizard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			logger := newQuietLogger()
			wiz := setup.NewWizard(os.Stdin, cmd.OutOrStdout(), opts.cfgPath, logger)
			return wiz.Run(ctx)
		},
	}
}
