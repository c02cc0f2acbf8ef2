// Package sync keeps the local mirror in step with the remote backend.
//
// The package contains:
//
//   - [ReconcileSettings] and [DiffImages], the pure comparison steps.
//   - [SettingsSyncer] and [ImageSyncer], which fetch, compare and apply one
//     resource type.
//   - [Scheduler], a sequential polling loop per resource type.
//   - [ImageMutator], the upload-commit and delete-reorder protocols.
//   - [SettingsPusher], which forwards local settings edits to the backend.
//   - [Engine], which wires the above together with tracing and metrics.
//   - [Bootstrap], the first-run import into an empty mirror.
package sync

import (
	"context"
	"time"

	"github.com/njoerd114/mosquesync/internal/model"
	"github.com/njoerd114/mosquesync/internal/remote"
	"github.com/njoerd114/mosquesync/internal/state"
)

// RemoteStore is the backend record store, reachable only through its
// remote procedures. Implemented by [remote.Client].
type RemoteStore interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	UpsertSettings(ctx context.Context, s *model.Settings) error
	GetImages(ctx context.Context) ([]model.Image, error)
	UploadImageAtomic(ctx context.Context, p remote.UploadParams) (*model.Image, error)
	DeleteImageAndReorder(ctx context.Context, imageID string) ([]model.Image, error)
}

// BlobStore holds the image files. Implemented by [blob.Store].
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (publicURL string, err error)
	Delete(ctx context.Context, path string) error
	PathFromURL(rawURL string) (path string, ok bool)
}

// LocalStore is the local mirror. Implemented by [state.Store].
type LocalStore interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	ReplaceSettings(ctx context.Context, s *model.Settings, origin model.Origin) error
	ListImages(ctx context.Context) ([]model.LocalImage, error)
	CountImages(ctx context.Context) (int, error)
	InsertImage(ctx context.Context, img *model.LocalImage, origin model.Origin) error
	DeleteImage(ctx context.Context, id int64, origin model.Origin) error
	UpdateImageOrder(ctx context.Context, id int64, order int, origin model.Origin) error
	IsEmpty(ctx context.Context) (bool, error)
	RecordSync(ctx context.Context, res state.Resource, syncErr error, at time.Time) error
	Subscribe() (<-chan state.Change, func())
}
