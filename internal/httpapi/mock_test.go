package httpapi

import (
	"context"
	"errors"
	"io"
	stdsync "sync"

	"github.com/njoerd114/mosquesync/internal/model"
	"github.com/njoerd114/mosquesync/internal/state"
	"github.com/njoerd114/mosquesync/internal/sync"
)

var errBoom = errors.New("boom")

// ---------------------------------------------------------------------------
// mockEngine
// ---------------------------------------------------------------------------

type mockEngine struct {
	mu stdsync.Mutex

	running   bool
	saved     *model.Settings
	uploaded  []byte
	uploadErr error
	deleteReq sync.DeleteRequest
	deleteErr error
	remaining []model.Image
	forced    int
}

func (m *mockEngine) SaveSettings(_ context.Context, s *model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = s.Clone()
	return nil
}

func (m *mockEngine) UploadImage(_ context.Context, req sync.UploadRequest) (*model.Image, error) {
	data, err := io.ReadAll(req.Source)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	m.uploaded = data
	uri := "https://blob.test/images/new.png"
	return &model.Image{
		ID:           "img-new",
		ImageURI:     &uri,
		FileSize:     int64(len(data)),
		MimeType:     req.MimeType,
		UploadStatus: model.UploadCompleted,
	}, nil
}

func (m *mockEngine) DeleteImage(_ context.Context, req sync.DeleteRequest) ([]model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteReq = req
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	return m.remaining, nil
}

func (m *mockEngine) ForceSyncNow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced++
}

func (m *mockEngine) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ---------------------------------------------------------------------------
// mockStore
// ---------------------------------------------------------------------------

type mockStore struct {
	settings *model.Settings
	images   []model.LocalImage
	statuses []state.SyncStatus
	err      error
}

func (m *mockStore) GetSettings(context.Context) (*model.Settings, error) {
	return m.settings.Clone(), m.err
}

func (m *mockStore) ListImages(context.Context) ([]model.LocalImage, error) {
	return m.images, m.err
}

func (m *mockStore) SyncStatuses(context.Context) ([]state.SyncStatus, error) {
	return m.statuses, m.err
}
