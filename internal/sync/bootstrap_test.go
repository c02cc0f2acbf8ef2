package sync

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/njoerd114/mosquesync/internal/model"
)

func TestBootstrap_SkipsNonEmptyMirror(t *testing.T) {
	rem := newMockRemote()
	local := newMockLocal()
	local.seedImages(localImage("a", "u-a", 0))

	var buf bytes.Buffer
	b := NewBootstrap(rem, local, "acct-1", testLogger, strings.NewReader(""), &buf)
	ran, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ran {
		t.Error("bootstrap should not run when the mirror is non-empty")
	}
	if rem.totalCalls() != 0 {
		t.Error("skipped bootstrap must not call the backend")
	}
}

func TestBootstrap_ImportsExistingData(t *testing.T) {
	rem := newMockRemote()
	rem.settings = sampleSettings()
	pending := completedImage("p", "u-p", 2)
	pending.UploadStatus = model.UploadUploading
	rem.setImages(completedImage("b", "u-b", 1), completedImage("a", "u-a", 0), pending)
	local := newMockLocal()

	var output bytes.Buffer
	b := NewBootstrap(rem, local, "acct-1", testLogger, strings.NewReader("y\n"), &output)
	ran, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("bootstrap should have executed")
	}

	out := output.String()
	for _, want := range []string{"Masjid Al-Noor", "2 to mirror", "1 incomplete skipped", "u-a"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	if local.settings == nil || local.settings.MosqueName != "Masjid Al-Noor" {
		t.Errorf("local settings = %+v", local.settings)
	}
	got, _ := local.ListImages(context.Background())
	if len(got) != 2 || got[0].ImageURI != "u-a" || got[1].ImageURI != "u-b" {
		t.Errorf("local images = %v", uris(got))
	}
	if rem.count("upsert_settings") != 0 {
		t.Error("existing remote settings must not be overwritten")
	}
}

func TestBootstrap_CreatesDefaultSettings(t *testing.T) {
	rem := newMockRemote()
	local := newMockLocal()

	var output bytes.Buffer
	b := NewBootstrap(rem, local, "acct-9", testLogger, strings.NewReader("yes\n"), &output)
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rem.count("upsert_settings") != 1 {
		t.Fatalf("upsert_settings calls = %d, want 1", rem.count("upsert_settings"))
	}
	if rem.settings.AccountID != "acct-9" || rem.settings.MosqueName != model.DefaultMosqueName {
		t.Errorf("remote settings = %+v", rem.settings)
	}
	if local.settings == nil {
		t.Error("defaults should be mirrored locally")
	}
	if !strings.Contains(output.String(), "defaults will be created") {
		t.Errorf("summary = %q", output.String())
	}
}

func TestBootstrap_DeclinedWritesNothing(t *testing.T) {
	rem := newMockRemote()
	rem.setImages(completedImage("a", "u-a", 0))
	local := newMockLocal()

	var output bytes.Buffer
	b := NewBootstrap(rem, local, "acct-1", testLogger, strings.NewReader("n\n"), &output)
	ran, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ran {
		t.Error("bootstrap should report cancelled")
	}
	if local.mutationCount() != 0 || rem.count("upsert_settings") != 0 {
		t.Error("declined bootstrap must not write anything")
	}
}
