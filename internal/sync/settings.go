package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/njoerd114/mosquesync/internal/model"
)

// Stats counts the local mutations applied by one sync pass.
type Stats struct {
	SettingsApplied int
	Added           int
	Removed         int
	Reordered       int
	Errors          int
}

// Mutations returns the total number of local writes in the pass.
func (s Stats) Mutations() int {
	return s.SettingsApplied + s.Added + s.Removed + s.Reordered
}

func (s *Stats) add(o Stats) {
	s.SettingsApplied += o.SettingsApplied
	s.Added += o.Added
	s.Removed += o.Removed
	s.Reordered += o.Reordered
	s.Errors += o.Errors
}

// ReconcileSettings decides whether the local settings must be replaced by
// the remote record. It returns the record to write, or nil for no write.
//
// A missing remote record never clears local settings. A missing local record
// always takes the remote one. Otherwise the remote record wins in full as
// soon as any display field differs.
func ReconcileSettings(remote, local *model.Settings) *model.Settings {
	if remote == nil {
		return nil
	}
	if local == nil {
		return remote
	}
	if remote.DisplayEqual(local) {
		return nil
	}
	return remote
}

// SettingsSyncer pulls the remote settings record into the local mirror.
type SettingsSyncer struct {
	remote RemoteStore
	local  LocalStore
	log    *slog.Logger
}

// NewSettingsSyncer creates a SettingsSyncer.
func NewSettingsSyncer(remote RemoteStore, local LocalStore, logger *slog.Logger) *SettingsSyncer {
	return &SettingsSyncer{remote: remote, local: local, log: logger}
}

// SyncOnce runs one fetch → reconcile → apply pass. alive is checked right
// before the local write; when it reports false the fetched result is
// discarded.
func (s *SettingsSyncer) SyncOnce(ctx context.Context, alive func() bool) (Stats, error) {
	var stats Stats

	remote, err := s.remote.GetSettings(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetching remote settings: %w", err)
	}
	local, err := s.local.GetSettings(ctx)
	if err != nil {
		return stats, fmt.Errorf("reading local settings: %w", err)
	}

	next := ReconcileSettings(remote, local)
	if next == nil {
		if remote == nil {
			s.log.Debug("no remote settings record yet")
		}
		return stats, nil
	}

	if !alive() {
		s.log.Debug("discarding settings result after stop")
		return stats, nil
	}

	// Tagged as remote so the pusher does not send it straight back.
	if err := s.local.ReplaceSettings(ctx, next, model.OriginRemote); err != nil {
		stats.Errors++
		return stats, fmt.Errorf("writing local settings: %w", err)
	}
	stats.SettingsApplied = 1
	s.log.Info("local settings updated from remote", "mosque_name", next.MosqueName)
	return stats, nil
}
