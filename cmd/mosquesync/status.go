package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/njoerd114/mosquesync/internal/config"
	"github.com/njoerd114/mosquesync/internal/setup"
	"github.com/njoerd114/mosquesync/internal/state"
)

func statusCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service, config and sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printStatus(cmd, opts.cfgPath)
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, cfgPath string) {
	out := cmd.OutOrStdout()
	homeDir, _ := os.UserHomeDir()

	fmt.Fprintln(out, "mosquesync Status")
	fmt.Fprintln(out, "─────────────────")

	if setup.IsDaemonLoaded() {
		fmt.Fprintln(out, "  Service:   running (systemd --user)")
	} else {
		fmt.Fprintln(out, "  Service:   not running")
	}

	dbPath, _ := state.DefaultDBPath()
	if _, err := os.Stat(cfgPath); err == nil {
		if cfg, loadErr := config.Load(cfgPath); loadErr == nil {
			fmt.Fprintf(out, "  Config:    %s ✓\n", cfgPath)
			fmt.Fprintf(out, "  Backend:   %s\n", cfg.Backend.URL)
			fmt.Fprintf(out, "  Storage:   %s/%s\n", cfg.Storage.Endpoint, cfg.Storage.Bucket)
			fmt.Fprintf(out, "  Poll:      %s\n", cfg.PollInterval)
			if cfg.HTTP != nil {
				fmt.Fprintf(out, "  API:       http://%s\n", cfg.HTTP.Listen)
			}
			if cfg.Database != "" {
				dbPath = cfg.Database
			}
		} else {
			fmt.Fprintf(out, "  Config:    %s (invalid: %v)\n", cfgPath, loadErr)
		}
	} else {
		fmt.Fprintf(out, "  Config:    not found (%s)\n", cfgPath)
	}

	if info, err := os.Stat(dbPath); err == nil {
		fmt.Fprintf(out, "  Mirror DB: %s (%s)\n", dbPath, humanSize(info.Size()))
		printMirror(cmd, out, dbPath)
	} else {
		fmt.Fprintf(out, "  Mirror DB: not found\n")
	}

	unitPath := setup.UnitPath(homeDir)
	if _, err := os.Stat(unitPath); err == nil {
		fmt.Fprintf(out, "  Unit:      %s\n", unitPath)
	} else {
		fmt.Fprintf(out, "  Unit:      not installed\n")
	}
	fmt.Fprintf(out, "  Logs:      journalctl --user -u %s\n", setup.UnitName)
}

// printMirror summarises the mirror contents and the last sync outcomes.
func printMirror(cmd *cobra.Command, out io.Writer, dbPath string) {
	store, err := state.Open(dbPath)
	if err != nil {
		fmt.Fprintf(out, "    (unreadable: %v)\n", err)
		return
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if s, err := store.GetSettings(ctx); err == nil && s != nil {
		fmt.Fprintf(out, "    Mosque:  %s\n", s.MosqueName)
	}
	if n, err := store.CountImages(ctx); err == nil {
		fmt.Fprintf(out, "    Images:  %d\n", n)
	}
	statuses, err := store.SyncStatuses(ctx)
	if err != nil {
		return
	}
	for _, st := range statuses {
		line := fmt.Sprintf("    %-8s last success %s", st.Resource+":", formatWhen(st.LastSuccess))
		if st.LastError != "" && st.LastErrorAt.After(st.LastSuccess) {
			line += fmt.Sprintf(", failing since %s: %s", formatWhen(st.LastErrorAt), st.LastError)
		}
		fmt.Fprintln(out, line)
	}
}

func uninstallCmd() *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop the service and remove installed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolving home directory: %w", err)
			}
			runUninstall(cmd.OutOrStdout(), homeDir, purge)
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also remove config and the local mirror")
	return cmd
}

func runUninstall(out io.Writer, homeDir string, purge bool) {
	fmt.Fprintln(out, "Uninstalling mosquesync...")

	step := func(done string, err error) {
		if err != nil {
			fmt.Fprintf(out, "  ⚠ %v\n", err)
			return
		}
		fmt.Fprintf(out, "  ✓ %s\n", done)
	}

	step("Service stopped", setup.DisableDaemon(homeDir))
	step("Unit removed", setup.RemoveUnit(homeDir))
	step("Binary removed", setup.RemoveBinary(homeDir))

	if purge {
		step("Config and mirror purged", setup.PurgeUserData(homeDir))
	} else {
		fmt.Fprintln(out, "")
		fmt.Fprintln(out, "  Config and mirror preserved.")
		fmt.Fprintln(out, "  Run with --purge to also remove them:")
		fmt.Fprintln(out, "    mosquesync uninstall --purge")
	}

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "✓ mosquesync uninstalled.")
}
