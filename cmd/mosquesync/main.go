// mosquesync keeps a mosque display's local mirror of its settings and
// carousel images in step with the account's backend records.
//
// Usage:
//
//	mosquesync setup                      # interactive first-run wizard
//	mosquesync daemon [--config <path>]   # poll loops, settings push, control API
//	mosquesync sync-once                  # single settings + images pass then exit
//	mosquesync upload <file>              # upload a carousel image
//	mosquesync delete <id> [--uri <url>]  # delete a carousel image
//	mosquesync reset                      # drop the local mirror
//	mosquesync status                     # show service, config and sync state
//	mosquesync uninstall [--purge]        # stop the service and remove files
//	mosquesync version                    # print version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/njoerd114/mosquesync/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// globalOpts holds the persistent flags shared by every subcommand.
type globalOpts struct {
	cfgPath string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	defaultCfg, _ := config.DefaultPath()

	root := &cobra.Command{
		Use:           "mosquesync",
		Short:         "mosquesync: sync a mosque display with its account backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.cfgPath); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "No config file found. Run 'mosquesync setup' to get started.")
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.cfgPath, "config", defaultCfg, "path to config.yaml")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(
		setupCmd(opts),
		daemonCmd(opts),
		syncOnceCmd(opts),
		uploadCmd(opts),
		deleteCmd(opts),
		resetCmd(opts),
		statusCmd(opts),
		uninstallCmd(),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mosquesync", version)
		},
	}
}
