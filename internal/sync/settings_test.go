package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/njoerd114/mosquesync/internal/model"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func alive() bool { return true }

func sampleSettings() *model.Settings {
	s := model.DefaultSettings("acct-1")
	s.MosqueName = "Masjid Al-Noor"
	s.MosqueLocation = "Leeds"
	s.MarqueeText = "Jumuah 13:15"
	return s
}

// ---------------------------------------------------------------------------
// ReconcileSettings
// ---------------------------------------------------------------------------

func TestReconcileSettings_NilRemoteIsNoOp(t *testing.T) {
	if got := ReconcileSettings(nil, sampleSettings()); got != nil {
		t.Errorf("ReconcileSettings(nil, local) = %+v, want nil", got)
	}
	if got := ReconcileSettings(nil, nil); got != nil {
		t.Errorf("ReconcileSettings(nil, nil) = %+v, want nil", got)
	}
}

func TestReconcileSettings_NilLocalTakesRemote(t *testing.T) {
	remote := sampleSettings()
	if got := ReconcileSettings(remote, nil); got != remote {
		t.Errorf("ReconcileSettings(remote, nil) = %+v, want remote", got)
	}
}

func TestReconcileSettings_EqualFieldsIsNoOp(t *testing.T) {
	remote := sampleSettings()
	local := sampleSettings()
	local.AccountID = ""
	local.UpdatedAt = remote.UpdatedAt.Add(1e9)

	if got := ReconcileSettings(remote, local); got != nil {
		t.Errorf("ReconcileSettings with equal display fields = %+v, want nil", got)
	}
}

func TestReconcileSettings_AnyFieldDiffersReturnsRemote(t *testing.T) {
	logo := "https://x/logo.png"
	mutations := map[string]func(*model.Settings){
		"name":     func(s *model.Settings) { s.MosqueName = "Other" },
		"location": func(s *model.Settings) { s.MosqueLocation = "York" },
		"logo":     func(s *model.Settings) { s.LogoImage = &logo },
		"address":  func(s *model.Settings) { s.PrayerAddress = "1 High St" },
		"timezone": func(s *model.Settings) { s.PrayerTimezone = "Europe/London" },
		"quote":    func(s *model.Settings) { s.QuoteText = "Be kind" },
		"marquee":  func(s *model.Settings) { s.MarqueeText = "Eid prayer 8:00" },
		"iqomah":   func(s *model.Settings) { s.IqomahDurationMinutes = 15 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			remote := sampleSettings()
			mutate(remote)
			got := ReconcileSettings(remote, sampleSettings())
			if got != remote {
				t.Errorf("got %+v, want remote record unchanged", got)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// SettingsSyncer
// ---------------------------------------------------------------------------

func TestSettingsSyncer_AppliesRemoteTaggedRemote(t *testing.T) {
	rem := newMockRemote()
	rem.settings = sampleSettings()
	local := newMockLocal()

	stats, err := NewSettingsSyncer(rem, local, testLogger).SyncOnce(context.Background(), alive)
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if stats.SettingsApplied != 1 {
		t.Errorf("SettingsApplied = %d, want 1", stats.SettingsApplied)
	}
	if local.settings == nil || local.settings.MosqueName != "Masjid Al-Noor" {
		t.Errorf("local settings = %+v", local.settings)
	}
	if len(local.origins) != 1 || local.origins[0] != model.OriginRemote {
		t.Errorf("origins = %v, want [remote]", local.origins)
	}
}

func TestSettingsSyncer_SecondRunWritesNothing(t *testing.T) {
	rem := newMockRemote()
	rem.settings = sampleSettings()
	local := newMockLocal()
	s := NewSettingsSyncer(rem, local, testLogger)

	if _, err := s.SyncOnce(context.Background(), alive); err != nil {
		t.Fatalf("first SyncOnce: %v", err)
	}
	before := local.mutationCount()
	stats, err := s.SyncOnce(context.Background(), alive)
	if err != nil {
		t.Fatalf("second SyncOnce: %v", err)
	}
	if stats.Mutations() != 0 || local.mutationCount() != before {
		t.Errorf("second run mutated local state: stats=%+v", stats)
	}
}

func TestSettingsSyncer_MissingRemoteKeepsLocal(t *testing.T) {
	rem := newMockRemote()
	local := newMockLocal()
	local.settings = sampleSettings()

	if _, err := NewSettingsSyncer(rem, local, testLogger).SyncOnce(context.Background(), alive); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if local.settings == nil || local.mutationCount() != 0 {
		t.Error("missing remote record must not clear or rewrite local settings")
	}
}

func TestSettingsSyncer_FetchErrorLeavesLocal(t *testing.T) {
	rem := newMockRemote()
	rem.getSettingsErr = errBoom
	local := newMockLocal()

	_, err := NewSettingsSyncer(rem, local, testLogger).SyncOnce(context.Background(), alive)
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if local.mutationCount() != 0 {
		t.Error("fetch error must not touch local state")
	}
}

func TestSettingsSyncer_NotAliveDiscards(t *testing.T) {
	rem := newMockRemote()
	rem.settings = sampleSettings()
	local := newMockLocal()

	_, err := NewSettingsSyncer(rem, local, testLogger).SyncOnce(context.Background(), func() bool { return false })
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if local.settings != nil {
		t.Error("result fetched after stop must be discarded")
	}
}
