package sync

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/njoerd114/mosquesync/internal/model"
)

// ---------------------------------------------------------------------------
// DiffImages
// ---------------------------------------------------------------------------

func TestDiffImages_FiltersIncompleteRecords(t *testing.T) {
	uploading := completedImage("u", "https://x/u.png", 1)
	uploading.UploadStatus = model.UploadUploading
	noURI := model.Image{ID: "n", UploadStatus: model.UploadCompleted, DisplayOrder: 2}
	failed := completedImage("f", "https://x/f.png", 3)
	failed.UploadStatus = model.UploadFailed

	remote := []model.Image{completedImage("a", "https://x/a.png", 0), uploading, noURI, failed}
	diff := DiffImages(remote, nil)

	if len(diff.ToAdd) != 1 || diff.ToAdd[0].ID != "a" {
		t.Errorf("ToAdd = %+v, want only a", diff.ToAdd)
	}
	if len(diff.ToRemove) != 0 {
		t.Errorf("ToRemove = %+v, want none", diff.ToRemove)
	}
}

func TestDiffImages_ReplacementAddsAndRemoves(t *testing.T) {
	remote := []model.Image{
		completedImage("a", "https://x/a.png", 0),
		completedImage("c", "https://x/c.png", 1),
	}
	local := []model.LocalImage{
		localImage("a", "https://x/a.png", 0),
		localImage("b", "https://x/b.png", 1),
	}

	diff := DiffImages(remote, local)
	if len(diff.ToAdd) != 1 || diff.ToAdd[0].URI() != "https://x/c.png" {
		t.Errorf("ToAdd = %+v", diff.ToAdd)
	}
	if len(diff.ToRemove) != 1 || diff.ToRemove[0].ImageURI != "https://x/b.png" {
		t.Errorf("ToRemove = %+v", diff.ToRemove)
	}
}

func TestDiffImages_IdentityIsURINotID(t *testing.T) {
	remote := []model.Image{completedImage("new-id", "https://x/a.png", 0)}
	local := []model.LocalImage{localImage("", "https://x/a.png", 0)}

	if diff := DiffImages(remote, local); !diff.Empty() {
		t.Errorf("diff = %+v, want empty", diff)
	}
}

func TestDiffImages_PartitionsSymmetricDifference(t *testing.T) {
	remote := []model.Image{
		completedImage("1", "u1", 0),
		completedImage("2", "u2", 1),
		completedImage("3", "u3", 2),
	}
	local := []model.LocalImage{
		localImage("2", "u2", 0),
		localImage("4", "u4", 1),
		localImage("5", "u5", 2),
	}
	diff := DiffImages(remote, local)

	var got []string
	for _, a := range diff.ToAdd {
		got = append(got, a.URI())
	}
	got = append(got, uris(diff.ToRemove)...)
	sort.Strings(got)

	want := []string{"u1", "u3", "u4", "u5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToAdd ∪ ToRemove = %v, want %v", got, want)
	}
}

// ---------------------------------------------------------------------------
// ImageSyncer
// ---------------------------------------------------------------------------

func TestImageSyncer_ReproducesRemoteOrder(t *testing.T) {
	rem := newMockRemote()
	// Returned out of order; display order defines the carousel.
	rem.setImages(
		completedImage("c", "https://x/c.png", 2),
		completedImage("a", "https://x/a.png", 0),
		completedImage("d", "https://x/d.png", 3),
		completedImage("b", "https://x/b.png", 1),
	)
	local := newMockLocal()
	local.seedImages(
		localImage("d", "https://x/d.png", 0),
		localImage("z", "https://x/z.png", 1),
		localImage("a", "https://x/a.png", 2),
	)

	stats, err := NewImageSyncer(rem, local, testLogger).SyncOnce(context.Background(), alive)
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if stats.Added != 2 || stats.Removed != 1 {
		t.Errorf("stats = %+v, want 2 added, 1 removed", stats)
	}

	got, _ := local.ListImages(context.Background())
	wantURIs := []string{"https://x/a.png", "https://x/b.png", "https://x/c.png", "https://x/d.png"}
	if !reflect.DeepEqual(uris(got), wantURIs) {
		t.Errorf("local order = %v, want %v", uris(got), wantURIs)
	}
	for i, img := range got {
		if img.DisplayOrder != i {
			t.Errorf("image %s DisplayOrder = %d, want %d", img.ImageURI, img.DisplayOrder, i)
		}
	}
	for _, o := range local.origins {
		if o != model.OriginRemote {
			t.Errorf("local write tagged %v, want remote", o)
		}
	}
}

func TestImageSyncer_SecondRunWritesNothing(t *testing.T) {
	rem := newMockRemote()
	rem.setImages(
		completedImage("a", "https://x/a.png", 0),
		completedImage("b", "https://x/b.png", 1),
	)
	local := newMockLocal()
	s := NewImageSyncer(rem, local, testLogger)

	if _, err := s.SyncOnce(context.Background(), alive); err != nil {
		t.Fatalf("first SyncOnce: %v", err)
	}
	before := local.mutationCount()
	if before == 0 {
		t.Fatal("first run should write")
	}

	stats, err := s.SyncOnce(context.Background(), alive)
	if err != nil {
		t.Fatalf("second SyncOnce: %v", err)
	}
	if stats.Mutations() != 0 || local.mutationCount() != before {
		t.Errorf("second run emitted mutations: %+v", stats)
	}
}

func TestImageSyncer_FetchErrorLeavesLocal(t *testing.T) {
	rem := newMockRemote()
	rem.getImagesErr = errBoom
	local := newMockLocal()
	local.seedImages(localImage("a", "https://x/a.png", 0))

	_, err := NewImageSyncer(rem, local, testLogger).SyncOnce(context.Background(), alive)
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if n, _ := local.CountImages(context.Background()); n != 1 || local.mutationCount() != 0 {
		t.Error("fetch error must not touch local state")
	}
}

func TestImageSyncer_NotAliveDiscards(t *testing.T) {
	rem := newMockRemote()
	rem.setImages(completedImage("a", "https://x/a.png", 0))
	local := newMockLocal()

	if _, err := NewImageSyncer(rem, local, testLogger).SyncOnce(context.Background(), func() bool { return false }); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if local.mutationCount() != 0 {
		t.Error("result fetched after stop must be discarded")
	}
}

func TestImageSyncer_ApplySnapshotCompaction(t *testing.T) {
	local := newMockLocal()
	local.seedImages(
		localImage("a", "u-a", 0),
		localImage("b", "u-b", 1),
		localImage("c", "u-c", 2),
		localImage("d", "u-d", 3),
	)
	snapshot := []model.Image{
		completedImage("a", "u-a", 0),
		completedImage("c", "u-c", 1),
		completedImage("d", "u-d", 2),
	}

	stats, err := NewImageSyncer(newMockRemote(), local, testLogger).ApplySnapshot(context.Background(), snapshot)
	if err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}
	if stats.Removed != 1 || stats.Reordered != 2 || stats.Added != 0 {
		t.Errorf("stats = %+v, want 1 removed, 2 reordered", stats)
	}

	got, _ := local.ListImages(context.Background())
	if !reflect.DeepEqual(uris(got), []string{"u-a", "u-c", "u-d"}) {
		t.Errorf("local = %v", uris(got))
	}
	for i, img := range got {
		if img.DisplayOrder != i {
			t.Errorf("%s order = %d, want %d", img.ImageURI, img.DisplayOrder, i)
		}
	}
}
