package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/njoerd114/mosquesync/internal/model"
	"github.com/njoerd114/mosquesync/internal/state"
)

// SettingsPusher forwards local settings edits to the backend. It listens on
// the local change feed and pushes only changes tagged [model.OriginLocal];
// writes made by the sync loop carry [model.OriginRemote] and are ignored,
// so a pulled record is never pushed back.
type SettingsPusher struct {
	remote RemoteStore
	local  LocalStore
	log    *slog.Logger
}

// NewSettingsPusher creates a SettingsPusher.
func NewSettingsPusher(remote RemoteStore, local LocalStore, logger *slog.Logger) *SettingsPusher {
	return &SettingsPusher{remote: remote, local: local, log: logger}
}

// Run blocks until ctx is cancelled or the local store is closed.
func (p *SettingsPusher) Run(ctx context.Context) error {
	changes, cancel := p.local.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if c.Resource != state.ResourceSettings || c.Origin != model.OriginLocal {
				continue
			}
			if err := p.Push(ctx); err != nil {
				p.log.Error("pushing local settings failed", "error", err)
			}
		}
	}
}

// Push sends the current local settings to the backend.
func (p *SettingsPusher) Push(ctx context.Context) error {
	s, err := p.local.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("reading local settings: %w", err)
	}
	if s == nil {
		return nil
	}
	if err := p.remote.UpsertSettings(ctx, s); err != nil {
		return fmt.Errorf("upserting remote settings: %w", err)
	}
	p.log.Info("local settings pushed", "mosque_name", s.MosqueName)
	return nil
}
