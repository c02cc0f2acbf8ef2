package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/njoerd114/mosquesync/internal/config"
	"github.com/njoerd114/mosquesync/internal/httpapi"
	syncp "github.com/njoerd114/mosquesync/internal/sync"
)

func daemonCmd(opts *globalOpts) *cobra.Command {
	var assumeYes bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the poll loops, the settings push and the control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts, assumeYes)
		},
	}
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "import without asking on first run")
	return cmd
}

func syncOnceCmd(opts *globalOpts) *cobra.Command {
	var assumeYes bool
	cmd := &cobra.Command{
		Use:   "sync-once",
		Short: "Run a single settings and images pass then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.connect(ctx, assumeYes); err != nil {
				return err
			}
			a.logger.Info("running single sync pass")
			if err := a.engine.RunOnce(ctx); err != nil {
				return fmt.Errorf("sync pass: %w", err)
			}
			a.logger.Info("sync complete")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "import without asking on first run")
	return cmd
}

func resetCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop the local mirror; the next run imports again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Local mirror cleared.")
			return nil
		},
	}
}

// runDaemon runs every long-lived part under one errgroup: the two poll
// loops, the local settings push, config hot reload, and the control API.
func runDaemon(parent context.Context, opts *globalOpts, assumeYes bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.connect(ctx, assumeYes); err != nil {
		return err
	}

	pusher := syncp.NewSettingsPusher(a.client, a.store, a.logger)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.engine.Run(gctx) })
	g.Go(func() error { return pusher.Run(gctx) })
	g.Go(func() error {
		return config.Watch(gctx, a.cfgPath, a.logger, func(next *config.Config) {
			a.engine.SetInterval(next.PollInterval)
			a.logger.Info("poll interval applied", "poll_interval", next.PollInterval)
		})
	})
	if a.cfg.HTTP != nil {
		api := httpapi.New(a.engine, a.store, a.logger)
		g.Go(func() error { return api.ListenAndServe(gctx, a.cfg.HTTP.Listen) })
	}

	a.logger.Info("daemon starting", "poll_interval", a.cfg.PollInterval)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("daemon: %w", err)
	}
	a.logger.Info("daemon stopped")
	return nil
}

// confirmInput answers the first-run prompt with "y" when assumeYes is set.
func confirmInput(r io.Reader, assumeYes bool) io.Reader {
	if assumeYes {
		return strings.NewReader("y\n")
	}
	return r
}
