package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/njoerd114/mosquesync/internal/model"
)

// ImageDiff is the set of local mutations needed to match a remote snapshot.
type ImageDiff struct {
	// ToAdd are displayable remote records whose URI is not mirrored locally.
	ToAdd []model.Image

	// ToRemove are local rows whose URI is absent from the displayable remote set.
	ToRemove []model.LocalImage
}

// Empty reports whether the diff holds no mutations.
func (d ImageDiff) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// DiffImages compares a remote image collection against the local mirror.
// Identity is the image URI. Records that are not completed or have no URI
// are ignored. ToAdd keeps remote display order.
func DiffImages(remote []model.Image, local []model.LocalImage) ImageDiff {
	visible := displayableInOrder(remote)

	remoteURIs := make(map[string]bool, len(visible))
	for i := range visible {
		remoteURIs[visible[i].URI()] = true
	}
	localURIs := make(map[string]bool, len(local))
	for _, l := range local {
		localURIs[l.ImageURI] = true
	}

	var diff ImageDiff
	for _, r := range visible {
		if !localURIs[r.URI()] {
			diff.ToAdd = append(diff.ToAdd, r)
		}
	}
	for _, l := range local {
		if !remoteURIs[l.ImageURI] {
			diff.ToRemove = append(diff.ToRemove, l)
		}
	}
	return diff
}

// displayableInOrder filters remote to displayable records, sorted by
// DisplayOrder. Ties keep the order the backend returned them in. A URI
// listed twice is kept once.
func displayableInOrder(remote []model.Image) []model.Image {
	out := make([]model.Image, 0, len(remote))
	seen := make(map[string]bool, len(remote))
	for i := range remote {
		if !remote[i].Displayable() || seen[remote[i].URI()] {
			continue
		}
		seen[remote[i].URI()] = true
		out = append(out, remote[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out
}

// ImageSyncer pulls the remote image collection into the local mirror.
type ImageSyncer struct {
	remote RemoteStore
	local  LocalStore
	log    *slog.Logger
}

// NewImageSyncer creates an ImageSyncer.
func NewImageSyncer(remote RemoteStore, local LocalStore, logger *slog.Logger) *ImageSyncer {
	return &ImageSyncer{remote: remote, local: local, log: logger}
}

// SyncOnce runs one fetch → diff → apply pass. alive is checked right before
// the first local write; when it reports false the fetched result is
// discarded.
func (s *ImageSyncer) SyncOnce(ctx context.Context, alive func() bool) (Stats, error) {
	remote, err := s.remote.GetImages(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching remote images: %w", err)
	}
	if !alive() {
		s.log.Debug("discarding images result after stop")
		return Stats{}, nil
	}
	return s.ApplySnapshot(ctx, remote)
}

// ApplySnapshot makes the local mirror match an authoritative remote list:
// removals first, then additions, then display order is re-derived from the
// remote order as 0..n-1. Only rows whose stored order differs are touched,
// so applying the same snapshot twice writes nothing the second time.
//
// Individual write failures are counted and the pass continues; the first
// error is returned.
func (s *ImageSyncer) ApplySnapshot(ctx context.Context, remote []model.Image) (Stats, error) {
	var stats Stats
	var firstErr error
	record := func(err error) {
		stats.Errors++
		if firstErr == nil {
			firstErr = err
		}
	}

	local, err := s.local.ListImages(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing local images: %w", err)
	}

	visible := displayableInOrder(remote)
	position := make(map[string]int, len(visible))
	for i := range visible {
		position[visible[i].URI()] = i
	}

	diff := DiffImages(visible, local)

	for _, l := range diff.ToRemove {
		if err := s.local.DeleteImage(ctx, l.ID, model.OriginRemote); err != nil {
			record(fmt.Errorf("removing local image %d: %w", l.ID, err))
			continue
		}
		stats.Removed++
		s.log.Debug("removed local image", "uri", l.ImageURI)
	}

	for i := range diff.ToAdd {
		li := diff.ToAdd[i].ToLocal()
		li.DisplayOrder = position[li.ImageURI]
		if err := s.local.InsertImage(ctx, &li, model.OriginRemote); err != nil {
			record(fmt.Errorf("adding local image %s: %w", li.RemoteID, err))
			continue
		}
		stats.Added++
		s.log.Debug("added local image", "image_id", li.RemoteID, "uri", li.ImageURI)
	}

	if len(diff.ToRemove) > 0 || len(diff.ToAdd) > 0 {
		if local, err = s.local.ListImages(ctx); err != nil {
			record(fmt.Errorf("re-listing local images: %w", err))
			return stats, firstErr
		}
	}

	for _, l := range local {
		want, ok := position[l.ImageURI]
		if !ok || l.DisplayOrder == want {
			continue
		}
		if err := s.local.UpdateImageOrder(ctx, l.ID, want, model.OriginRemote); err != nil {
			record(fmt.Errorf("reordering local image %d: %w", l.ID, err))
			continue
		}
		stats.Reordered++
	}

	if stats.Mutations() > 0 {
		s.log.Info("local images updated from remote",
			"added", stats.Added,
			"removed", stats.Removed,
			"reordered", stats.Reordered,
			"errors", stats.Errors,
		)
	}
	return stats, firstErr
}
