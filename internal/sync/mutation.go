package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/njoerd114/mosquesync/internal/model"
	"github.com/njoerd114/mosquesync/internal/remote"
)

// Caller-visible outcomes of the image mutations.
var (
	ErrEmptyImage       = errors.New("image is empty")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageLimit       = errors.New("image limit reached")
	ErrImageNotFound    = errors.New("image not found")
)

// UploadRequest describes a new carousel image.
type UploadRequest struct {
	Source io.Reader

	// MimeType of the data. Sniffed from the content when empty.
	MimeType string
}

// DeleteRequest identifies the image to delete. ID takes precedence; URI is
// the fallback when the remote ID is not known.
type DeleteRequest struct {
	ID  string
	URI string
}

// ImageMutator runs the two multi-step image mutations against the blob store
// and the record store. Neither step is retried here: failures are returned
// so the caller can offer a retry.
type ImageMutator struct {
	remote    RemoteStore
	blob      BlobStore
	local     LocalStore
	folder    string
	maxImages int
	log       *slog.Logger
}

// NewImageMutator creates an ImageMutator. Objects are stored under folder;
// maxImages caps the collection and is clamped to [1, model.MaxImages].
func NewImageMutator(remote RemoteStore, blob BlobStore, local LocalStore, folder string, maxImages int, logger *slog.Logger) *ImageMutator {
	if maxImages <= 0 || maxImages > model.MaxImages {
		maxImages = model.MaxImages
	}
	return &ImageMutator{
		remote:    remote,
		blob:      blob,
		local:     local,
		folder:    folder,
		maxImages: maxImages,
		log:       logger,
	}
}

// Upload stores the image bytes and commits a completed record:
//
//  1. read the bytes, rejecting empty input
//  2. check the cap against the local mirror, then against the backend
//  3. upload to {folder}/{id}.{ext} under a new UUID
//  4. commit the record with upload_image_atomic, appended after the
//     backend's current images
//
// A blob failure aborts before any record exists. A commit failure leaves an
// unreferenced blob behind, which is logged and otherwise ignored. The local
// mirror is not written; the next images sync picks the record up.
func (m *ImageMutator) Upload(ctx context.Context, req UploadRequest) (*model.Image, error) {
	if req.Source == nil {
		return nil, ErrEmptyImage
	}
	data, err := io.ReadAll(req.Source)
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	mimeType := normalizeMime(req.MimeType)
	if mimeType == "" {
		mimeType = normalizeMime(http.DetectContentType(data))
	}
	if !model.IsImageMime(mimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}

	count, err := m.local.CountImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting local images: %w", err)
	}
	if count >= m.maxImages {
		return nil, fmt.Errorf("%w: %d of %d", ErrImageLimit, count, m.maxImages)
	}

	// The mirror may lag behind the backend; the order comes from the
	// backend's own list.
	current, err := m.remote.GetImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing remote images: %w", err)
	}
	count = len(displayableInOrder(current))
	if count >= m.maxImages {
		return nil, fmt.Errorf("%w: %d of %d", ErrImageLimit, count, m.maxImages)
	}

	id := uuid.NewString()
	path := model.ObjectPath(m.folder, id, mimeType)

	publicURL, err := m.blob.Upload(ctx, path, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("uploading image %s: %w", id, err)
	}

	img, err := m.remote.UploadImageAtomic(ctx, remote.UploadParams{
		ID:           id,
		DisplayOrder: count,
		FileSize:     int64(len(data)),
		MimeType:     mimeType,
		ImageURI:     publicURL,
	})
	if err != nil {
		m.log.Warn("image record not committed, blob left unreferenced",
			"image_id", id, "path", path, "error", err)
		return nil, fmt.Errorf("committing image %s: %w", id, err)
	}

	m.log.Info("image uploaded", "image_id", img.ID, "display_order", img.DisplayOrder, "size", len(data))
	return img, nil
}

// Delete removes an image record, compacting the remaining display order in
// the same remote call, then removes the blob on a best-effort basis. It
// returns the remaining images in their new order.
//
// If the record delete fails nothing else happens and the error is returned.
// A blob delete failure is logged and never returned.
func (m *ImageMutator) Delete(ctx context.Context, req DeleteRequest) ([]model.Image, error) {
	id, uri, err := m.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	remaining, err := m.remote.DeleteImageAndReorder(ctx, id)
	if err != nil {
		if remote.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, id)
		}
		return nil, fmt.Errorf("deleting image %s: %w", id, err)
	}
	m.log.Info("image deleted", "image_id", id, "remaining", len(remaining))

	m.deleteBlob(ctx, id, uri)
	return remaining, nil
}

func (m *ImageMutator) deleteBlob(ctx context.Context, id, uri string) {
	if uri == "" {
		m.log.Warn("image uri unknown, blob not deleted", "image_id", id)
		return
	}
	path, ok := m.blob.PathFromURL(uri)
	if !ok {
		m.log.Warn("image uri is outside the blob store, blob not deleted", "image_id", id, "uri", uri)
		return
	}
	if err := m.blob.Delete(ctx, path); err != nil {
		m.log.Warn("blob delete failed, object left unreferenced", "image_id", id, "path", path, "error", err)
	}
}

// resolve returns the remote ID and URI of the image to delete. A missing
// URI is looked up in the local mirror first and then in the latest remote
// list; a missing ID is looked up in the latest remote list.
func (m *ImageMutator) resolve(ctx context.Context, req DeleteRequest) (id, uri string, err error) {
	id, uri = req.ID, req.URI
	if id == "" && uri == "" {
		return "", "", fmt.Errorf("%w: no id or uri given", ErrImageNotFound)
	}

	if id != "" {
		if uri == "" {
			uri = m.localURI(ctx, id)
		}
		if uri == "" {
			uri = m.remoteURI(ctx, id)
		}
		return id, uri, nil
	}

	images, err := m.remote.GetImages(ctx)
	if err != nil {
		return "", "", fmt.Errorf("resolving image by uri: %w", err)
	}
	for i := range images {
		if images[i].URI() == uri {
			return images[i].ID, uri, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrImageNotFound, uri)
}

func (m *ImageMutator) localURI(ctx context.Context, remoteID string) string {
	local, err := m.local.ListImages(ctx)
	if err != nil {
		m.log.Debug("listing local images for uri lookup", "error", err)
		return ""
	}
	for _, l := range local {
		if l.RemoteID == remoteID {
			return l.ImageURI
		}
	}
	return ""
}

// remoteURI looks id up in the backend list. A lookup failure only costs the
// blob delete, so it is logged rather than returned.
func (m *ImageMutator) remoteURI(ctx context.Context, id string) string {
	images, err := m.remote.GetImages(ctx)
	if err != nil {
		m.log.Debug("listing remote images for uri lookup", "image_id", id, "error", err)
		return ""
	}
	for i := range images {
		if images[i].ID == id {
			return images[i].URI()
		}
	}
	return ""
}

func normalizeMime(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
