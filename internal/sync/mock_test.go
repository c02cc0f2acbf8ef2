package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/njoerd114/mosquesync/internal/model"
	"github.com/njoerd114/mosquesync/internal/remote"
	"github.com/njoerd114/mosquesync/internal/state"
)

var errBoom = errors.New("boom")

// --- Mock Remote Store --------------------------------------------------------

type mockRemote struct {
	mu       sync.Mutex
	settings *model.Settings
	images   []model.Image

	getSettingsErr error
	getImagesErr   error
	upsertErr      error
	uploadErr      error
	deleteErr      error

	// block, when set, makes GetSettings and GetImages wait for a value
	// after signalling entered.
	block   chan struct{}
	entered chan struct{}

	calls map[string]int
}

func newMockRemote() *mockRemote {
	return &mockRemote{calls: make(map[string]int)}
}

func (m *mockRemote) count(fn string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[fn]
}

func (m *mockRemote) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *mockRemote) setImages(images ...model.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = images
}

func (m *mockRemote) wait() {
	m.mu.Lock()
	block, entered := m.block, m.entered
	m.mu.Unlock()
	if block == nil {
		return
	}
	if entered != nil {
		entered <- struct{}{}
	}
	<-block
}

func (m *mockRemote) GetSettings(_ context.Context) (*model.Settings, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get_settings"]++
	if m.getSettingsErr != nil {
		return nil, m.getSettingsErr
	}
	if m.settings == nil {
		return nil, nil
	}
	return m.settings.Clone(), nil
}

func (m *mockRemote) UpsertSettings(_ context.Context, s *model.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["upsert_settings"]++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.settings = s.Clone()
	return nil
}

func (m *mockRemote) GetImages(_ context.Context) ([]model.Image, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get_images"]++
	if m.getImagesErr != nil {
		return nil, m.getImagesErr
	}
	return append([]model.Image(nil), m.images...), nil
}

func (m *mockRemote) UploadImageAtomic(_ context.Context, p remote.UploadParams) (*model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["upload_image_atomic"]++
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	img := completedImage(p.ID, p.ImageURI, p.DisplayOrder)
	img.FileSize = p.FileSize
	img.MimeType = p.MimeType
	m.images = append(m.images, img)
	return &img, nil
}

func (m *mockRemote) DeleteImageAndReorder(_ context.Context, imageID string) ([]model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete_image_and_reorder"]++
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}

	sort.SliceStable(m.images, func(i, j int) bool { return m.images[i].DisplayOrder < m.images[j].DisplayOrder })
	kept := m.images[:0:0]
	found := false
	for _, img := range m.images {
		if img.ID == imageID {
			found = true
			continue
		}
		img.DisplayOrder = len(kept)
		kept = append(kept, img)
	}
	if !found {
		return nil, &remote.RPCError{Function: "delete_image_and_reorder", Status: 404, Message: "image not found"}
	}
	m.images = kept
	return append([]model.Image(nil), kept...), nil
}

// --- Mock Blob Store ----------------------------------------------------------

const blobBase = "https://blob.test/images/"

type mockBlob struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	deleteErr error
	deleted   []string
}

func newMockBlob() *mockBlob {
	return &mockBlob{objects: make(map[string][]byte)}
}

func (m *mockBlob) Upload(_ context.Context, path string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	m.objects[path] = append([]byte(nil), data...)
	return blobBase + path, nil
}

func (m *mockBlob) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, path)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, path)
	return nil
}

func (m *mockBlob) PathFromURL(rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, blobBase) {
		return "", false
	}
	return strings.TrimPrefix(rawURL, blobBase), true
}

func (m *mockBlob) objectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// --- Mock Local Store ---------------------------------------------------------

type mockLocal struct {
	mu        sync.Mutex
	settings  *model.Settings
	images    map[int64]model.LocalImage
	nextID    int64
	mutations int
	origins   []model.Origin
	statuses  map[state.Resource]error
	subs      []chan state.Change
}

func newMockLocal() *mockLocal {
	return &mockLocal{
		images:   make(map[int64]model.LocalImage),
		statuses: make(map[state.Resource]error),
	}
}

func (m *mockLocal) seedImages(images ...model.LocalImage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, img := range images {
		m.nextID++
		img.ID = m.nextID
		m.images[img.ID] = img
	}
}

// mutate records a write and notifies subscribers. Caller holds m.mu.
func (m *mockLocal) mutate(res state.Resource, origin model.Origin) {
	m.mutations++
	m.origins = append(m.origins, origin)
	for _, ch := range m.subs {
		select {
		case ch <- state.Change{Resource: res, Origin: origin}:
		default:
		}
	}
}

func (m *mockLocal) mutationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutations
}

func (m *mockLocal) GetSettings(_ context.Context) (*model.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return nil, nil
	}
	return m.settings.Clone(), nil
}

func (m *mockLocal) ReplaceSettings(_ context.Context, s *model.Settings, origin model.Origin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s.Clone()
	m.mutate(state.ResourceSettings, origin)
	return nil
}

func (m *mockLocal) ListImages(_ context.Context) ([]model.LocalImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.LocalImage, 0, len(m.images))
	for _, img := range m.images {
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *mockLocal) CountImages(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.images), nil
}

func (m *mockLocal) InsertImage(_ context.Context, img *model.LocalImage, origin model.Origin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.images {
		if existing.ImageURI == img.ImageURI {
			img.ID = id
			m.images[id] = *img
			m.mutate(state.ResourceImages, origin)
			return nil
		}
	}
	m.nextID++
	img.ID = m.nextID
	m.images[img.ID] = *img
	m.mutate(state.ResourceImages, origin)
	return nil
}

func (m *mockLocal) DeleteImage(_ context.Context, id int64, origin model.Origin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[id]; !ok {
		return fmt.Errorf("image %d not found", id)
	}
	delete(m.images, id)
	m.mutate(state.ResourceImages, origin)
	return nil
}

func (m *mockLocal) UpdateImageOrder(_ context.Context, id int64, order int, origin model.Origin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if !ok {
		return fmt.Errorf("image %d not found", id)
	}
	img.DisplayOrder = order
	m.images[id] = img
	m.mutate(state.ResourceImages, origin)
	return nil
}

func (m *mockLocal) IsEmpty(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings == nil && len(m.images) == 0, nil
}

func (m *mockLocal) RecordSync(_ context.Context, res state.Resource, syncErr error, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[res] = syncErr
	return nil
}

func (m *mockLocal) Subscribe() (<-chan state.Change, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan state.Change, 16)
	m.subs = append(m.subs, ch)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, c := range m.subs {
				if c == ch {
					m.subs = append(m.subs[:i], m.subs[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

// --- Fixtures -----------------------------------------------------------------

func completedImage(id, uri string, order int) model.Image {
	u := uri
	return model.Image{
		ID:           id,
		ImageURI:     &u,
		DisplayOrder: order,
		MimeType:     "image/png",
		UploadStatus: model.UploadCompleted,
	}
}

func localImage(remoteID, uri string, order int) model.LocalImage {
	return model.LocalImage{RemoteID: remoteID, ImageURI: uri, DisplayOrder: order, MimeType: "image/png"}
}

func uris(local []model.LocalImage) []string {
	out := make([]string, len(local))
	for i, l := range local {
		out[i] = l.ImageURI
	}
	return out
}
