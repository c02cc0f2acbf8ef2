package sync

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/njoerd114/mosquesync/internal/model"
)

// Bootstrap performs the first-run import into an empty local mirror. It
// fetches the remote settings and images, prints a summary, and (with user
// confirmation) creates default remote settings when the account has none,
// then applies the first snapshot.
type Bootstrap struct {
	remote    RemoteStore
	local     LocalStore
	images    *ImageSyncer
	accountID string
	log       *slog.Logger
	reader    io.Reader // for confirmation prompt (os.Stdin in production)
	writer    io.Writer // for summary output (os.Stdout in production)
}

// NewBootstrap creates a Bootstrap. accountID is stamped on the default
// settings record when one has to be created. reader and writer control the
// confirmation prompt I/O.
func NewBootstrap(remote RemoteStore, local LocalStore, accountID string, logger *slog.Logger, reader io.Reader, writer io.Writer) *Bootstrap {
	return &Bootstrap{
		remote:    remote,
		local:     local,
		images:    NewImageSyncer(remote, local, logger),
		accountID: accountID,
		log:       logger,
		reader:    reader,
		writer:    writer,
	}
}

// Run checks whether the local mirror is empty and, if so, performs the
// first-run import. Returns true if the import was executed, false if
// skipped.
func (b *Bootstrap) Run(ctx context.Context) (bool, error) {
	empty, err := b.local.IsEmpty(ctx)
	if err != nil {
		return false, fmt.Errorf("checking local mirror: %w", err)
	}
	if !empty {
		b.log.Debug("local mirror is not empty, skipping bootstrap")
		return false, nil
	}

	b.log.Info("empty local mirror detected, starting first-run bootstrap")

	settings, err := b.remote.GetSettings(ctx)
	if err != nil {
		return false, fmt.Errorf("fetching settings for bootstrap: %w", err)
	}
	images, err := b.remote.GetImages(ctx)
	if err != nil {
		return false, fmt.Errorf("fetching images for bootstrap: %w", err)
	}

	b.printSummary(settings, images)

	if !b.confirm() {
		b.log.Info("bootstrap cancelled by user")
		return false, nil
	}

	if settings == nil {
		settings = model.DefaultSettings(b.accountID)
		if err := b.remote.UpsertSettings(ctx, settings); err != nil {
			return false, fmt.Errorf("creating default remote settings: %w", err)
		}
		b.log.Info("created default remote settings")
	}
	if err := b.local.ReplaceSettings(ctx, settings, model.OriginRemote); err != nil {
		return false, fmt.Errorf("writing local settings: %w", err)
	}
	if _, err := b.images.ApplySnapshot(ctx, images); err != nil {
		return false, fmt.Errorf("writing local images: %w", err)
	}

	b.log.Info("bootstrap complete")
	return true, nil
}

// printSummary writes a human-readable summary of what will be imported.
func (b *Bootstrap) printSummary(settings *model.Settings, images []model.Image) {
	_, _ = fmt.Fprintf(b.writer, "\n--- First-Run Bootstrap Summary ---\n\n")

	if settings == nil {
		_, _ = fmt.Fprintf(b.writer, "Settings: none on the backend (defaults will be created)\n")
	} else {
		_, _ = fmt.Fprintf(b.writer, "Settings: %q (%s)\n", settings.MosqueName, settings.PrayerTimezone)
	}

	visible := displayableInOrder(images)
	_, _ = fmt.Fprintf(b.writer, "Images: %d to mirror", len(visible))
	if skipped := len(images) - len(visible); skipped > 0 {
		_, _ = fmt.Fprintf(b.writer, ", %d incomplete skipped", skipped)
	}
	_, _ = fmt.Fprintln(b.writer)
	for i := range visible {
		_, _ = fmt.Fprintf(b.writer, "  %d. %s\n", i+1, visible[i].URI())
	}
	_, _ = fmt.Fprintln(b.writer)
}

// confirm reads a y/n response from the reader.
func (b *Bootstrap) confirm() bool {
	_, _ = fmt.Fprintf(b.writer, "Proceed with import? [y/N] ")
	scanner := bufio.NewScanner(b.reader)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes"
	}
	return false
}
