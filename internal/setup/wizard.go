package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/njoerd114/mosquesync/internal/config"
	"github.com/njoerd114/mosquesync/internal/remote"
)

// Poll interval bounds offered by the wizard; config validation enforces the same.
const (
	defaultPoll = 10 * time.Second
	minPoll     = 2 * time.Second
	maxPoll     = 10 * time.Minute
)

// Wizard guides the user through first-run configuration and installation.
type Wizard struct {
	prompt  *Prompter
	logger  *slog.Logger
	w       io.Writer
	cfgPath string

	// ping checks the backend credentials before anything is written.
	ping func(ctx context.Context, b config.BackendConfig) error

	// install sets up the background service; replaced in tests.
	install func(cfgPath string) error
}

// NewWizard creates a Wizard wired to the given I/O and logger. The config
// is written to cfgPath.
func NewWizard(r io.Reader, w io.Writer, cfgPath string, logger *slog.Logger) *Wizard {
	wiz := &Wizard{
		prompt:  NewPrompter(r, w),
		logger:  logger,
		w:       w,
		cfgPath: cfgPath,
	}
	wiz.ping = wiz.pingBackend
	wiz.install = wiz.installDaemon
	return wiz
}

// Run executes the interactive setup wizard: backend credentials, object
// storage, poll interval, config file, and an optional service install.
func (wiz *Wizard) Run(ctx context.Context) error {
	fmt.Fprintf(wiz.w, "\nWelcome to mosquesync setup!\n")
	fmt.Fprintf(wiz.w, "This wizard connects this display to your mosque's account.\n\n")

	if _, statErr := os.Stat(wiz.cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", wiz.cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return wiz.offerDaemonInstall()
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: backend.
	fmt.Fprintf(wiz.w, "Step 1/4: Backend\n")
	backend := config.BackendConfig{
		URL:          wiz.prompt.String("Project URL", "https://example.supabase.co"),
		AnonKey:      wiz.prompt.Secret("Anon key"),
		AccessToken:  wiz.prompt.Optional("Access token"),
		DisplayToken: wiz.prompt.Secret("Display token"),
	}

	fmt.Fprintf(wiz.w, "  Connecting to backend...")
	if err := wiz.ping(ctx, backend); err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		return fmt.Errorf("cannot reach backend: %w\n\n  Check the URL and keys, then try again", err)
	}
	fmt.Fprintf(wiz.w, " ✓\n\n")

	// Step 2: object storage.
	fmt.Fprintf(wiz.w, "Step 2/4: Image storage\n")
	storage := config.StorageConfig{
		Endpoint:  wiz.prompt.String("Storage endpoint (host:port)", ""),
		AccessKey: wiz.prompt.Secret("Access key"),
		SecretKey: wiz.prompt.Secret("Secret key"),
		Bucket:    wiz.prompt.String("Bucket", "mosque"),
		UseSSL:    wiz.prompt.Confirm("Use TLS?", true),
		Folder:    wiz.prompt.String("Folder", "mosque-images"),
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 3: poll interval.
	fmt.Fprintf(wiz.w, "Step 3/4: Poll interval\n")
	poll := wiz.prompt.Duration("How often to check for changes?", defaultPoll, minPoll, maxPoll)
	fmt.Fprintf(wiz.w, "\n")

	// Step 4: write config.
	fmt.Fprintf(wiz.w, "Step 4/4: Save configuration\n")
	cfg := &config.Config{
		Backend:      backend,
		Storage:      storage,
		PollInterval: poll,
	}
	if wiz.prompt.Confirm("Enable the local control API?", true) {
		cfg.HTTP = &config.HTTPConfig{}
	}

	if err := cfg.Write(wiz.cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", wiz.cfgPath)

	return wiz.offerDaemonInstall()
}

// offerDaemonInstall asks the user whether to install the systemd user service.
func (wiz *Wizard) offerDaemonInstall() error {
	if !wiz.prompt.Confirm("Install as a background service (starts on login)?", true) {
		fmt.Fprintf(wiz.w, "\n  Skipping service install.\n")
		fmt.Fprintf(wiz.w, "  You can run manually with: mosquesync daemon\n")
		fmt.Fprintf(wiz.w, "  Or install later with:     mosquesync setup\n\n")
		return nil
	}
	fmt.Fprintf(wiz.w, "\n")
	return wiz.install(wiz.cfgPath)
}

func (wiz *Wizard) pingBackend(ctx context.Context, b config.BackendConfig) error {
	client, err := remote.NewClient(remote.Options{
		BaseURL:      b.URL,
		AnonKey:      b.AnonKey,
		AccessToken:  b.AccessToken,
		DisplayToken: b.DisplayToken,
	}, wiz.logger)
	if err != nil {
		return err
	}
	return client.Ping(ctx)
}

func (wiz *Wizard) installDaemon(cfgPath string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	fmt.Fprintf(wiz.w, "  Installing binary to %s...\n", BinaryInstallPath(homeDir))
	if err := InstallBinary(homeDir); err != nil {
		return fmt.Errorf("installing binary: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Binary installed\n")

	if err := WriteUnit(homeDir, cfgPath); err != nil {
		return fmt.Errorf("writing unit: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ systemd unit written to %s\n", UnitPath(homeDir))

	if err := EnableDaemon(); err != nil {
		return fmt.Errorf("enabling service: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Service enabled, running now\n")

	fmt.Fprintf(wiz.w, "\nSetup complete! mosquesync is syncing in the background.\n")
	fmt.Fprintf(wiz.w, "  Config:  %s\n", cfgPath)
	fmt.Fprintf(wiz.w, "  Logs:    journalctl --user -u %s\n", UnitName)
	fmt.Fprintf(wiz.w, "  Status:  mosquesync status\n")
	fmt.Fprintf(wiz.w, "  Remove:  mosquesync uninstall\n\n")
	return nil
}
