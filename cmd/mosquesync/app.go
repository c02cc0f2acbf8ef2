package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/njoerd114/mosquesync/internal/blob"
	"github.com/njoerd114/mosquesync/internal/config"
	"github.com/njoerd114/mosquesync/internal/remote"
	"github.com/njoerd114/mosquesync/internal/state"
	syncp "github.com/njoerd114/mosquesync/internal/sync"
	"github.com/njoerd114/mosquesync/internal/telemetry"
)

// app holds the components shared by the sync and image subcommands.
type app struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger
	store   *state.Store
	client  *remote.Client
	blob    *blob.Store
	engine  *syncp.Engine

	closers []func()
}

// openApp loads the config and wires logging, telemetry, the local mirror,
// the backend client, the blob store, and the sync engine.
func openApp(opts *globalOpts) (*app, error) {
	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", opts.cfgPath, err)
	}

	a := &app{cfg: cfg, cfgPath: opts.cfgPath}
	a.logger = a.newLogger(opts.verbose)
	a.logger.Info("config loaded",
		"backend_url", cfg.Backend.URL,
		"bucket", cfg.Storage.Bucket,
		"poll_interval", cfg.PollInterval,
	)

	dbPath := cfg.Database
	if dbPath == "" {
		if dbPath, err = state.DefaultDBPath(); err != nil {
			a.Close()
			return nil, fmt.Errorf("resolving mirror DB path: %w", err)
		}
	}
	a.store, err = state.Open(dbPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening mirror DB at %q: %w", dbPath, err)
	}
	a.closers = append(a.closers, func() {
		if closeErr := a.store.Close(); closeErr != nil {
			a.logger.Error("closing mirror DB", "error", closeErr)
		}
	})
	a.logger.Info("mirror DB opened", "path", dbPath)

	a.client, err = remote.NewClient(remote.Options{
		BaseURL:           cfg.Backend.URL,
		AnonKey:           cfg.Backend.AnonKey,
		AccessToken:       cfg.Backend.AccessToken,
		DisplayToken:      cfg.Backend.DisplayToken,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
	}, a.logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialising backend client: %w", err)
	}

	a.blob, err = blob.New(blob.Options{
		Endpoint:      cfg.Storage.Endpoint,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		Bucket:        cfg.Storage.Bucket,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}, a.logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialising blob store: %w", err)
	}

	a.engine = syncp.NewEngine(a.client, a.blob, a.store, syncp.EngineOptions{
		PollInterval: cfg.PollInterval,
		Folder:       cfg.Storage.Folder,
		MaxImages:    cfg.MaxImages,
	}, a.logger)
	return a, nil
}

// newLogger builds the process logger and, when configured, starts telemetry
// and routes log records to the collector as well.
func (a *app) newLogger(verbose bool) *slog.Logger {
	level := a.cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)

	if telCfg, ok := telemetry.FromConfig(a.cfg.Telemetry, version); ok {
		shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger = slog.New(telemetry.NewHandler(handler))
			logger.Info("telemetry enabled", "endpoint", telCfg.OTLPEndpoint)
			a.closers = append(a.closers, func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			})
		}
	}

	slog.SetDefault(logger)
	return logger
}

// connect checks the backend and the bucket, then runs the first-run import
// when the local mirror is empty.
func (a *app) connect(ctx context.Context, assumeYes bool) error {
	a.logger.Info("pinging backend", "url", a.cfg.Backend.URL)
	if err := a.client.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to backend at %q: %w\n\nCheck backend.url and backend.anon_key in your config file", a.cfg.Backend.URL, err)
	}

	if err := a.blob.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("preparing storage bucket: %w", err)
	}

	bootstrap := syncp.NewBootstrap(a.client, a.store, a.accountID(), a.logger, confirmInput(os.Stdin, assumeYes), os.Stdout)
	if _, err := bootstrap.Run(ctx); err != nil {
		return fmt.Errorf("first-run bootstrap: %w", err)
	}
	return nil
}

// accountID reads the account from the access token; empty when the token is
// absent or unreadable, in which case the backend derives it from p_token.
func (a *app) accountID() string {
	if a.cfg.Backend.AccessToken == "" {
		return ""
	}
	id, err := remote.AccountIDFromToken(a.cfg.Backend.AccessToken)
	if err != nil {
		a.logger.Warn("reading account from access token", "error", err)
		return ""
	}
	return id
}

// Close releases everything openApp acquired, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
