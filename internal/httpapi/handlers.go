package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/njoerd114/mosquesync/internal/model"
	"github.com/njoerd114/mosquesync/internal/sync"
)

// settingsBody is the JSON form of [model.Settings].
type settingsBody struct {
	MosqueName            string    `json:"mosque_name"`
	MosqueLocation        string    `json:"mosque_location"`
	LogoImage             *string   `json:"logo_image"`
	PrayerAddress         string    `json:"prayer_address"`
	PrayerTimezone        string    `json:"prayer_timezone"`
	QuoteText             string    `json:"quote_text"`
	MarqueeText           string    `json:"marquee_text"`
	IqomahDurationMinutes int       `json:"iqomah_duration_minutes"`
	UpdatedAt             time.Time `json:"updated_at,omitzero"`
}

func settingsToBody(s *model.Settings) settingsBody {
	return settingsBody{
		MosqueName:            s.MosqueName,
		MosqueLocation:        s.MosqueLocation,
		LogoImage:             s.LogoImage,
		PrayerAddress:         s.PrayerAddress,
		PrayerTimezone:        s.PrayerTimezone,
		QuoteText:             s.QuoteText,
		MarqueeText:           s.MarqueeText,
		IqomahDurationMinutes: s.IqomahDurationMinutes,
		UpdatedAt:             s.UpdatedAt,
	}
}

func (b settingsBody) toModel() *model.Settings {
	s := &model.Settings{
		MosqueName:            b.MosqueName,
		MosqueLocation:        b.MosqueLocation,
		PrayerAddress:         b.PrayerAddress,
		PrayerTimezone:        b.PrayerTimezone,
		QuoteText:             b.QuoteText,
		MarqueeText:           b.MarqueeText,
		IqomahDurationMinutes: b.IqomahDurationMinutes,
	}
	if b.LogoImage != nil && *b.LogoImage != "" {
		logo := *b.LogoImage
		s.LogoImage = &logo
	}
	return s
}

type imageBody struct {
	ID           string    `json:"id,omitempty"`
	ImageURI     string    `json:"image_uri"`
	DisplayOrder int       `json:"display_order"`
	FileSize     int64     `json:"file_size"`
	MimeType     string    `json:"mime_type"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}

func localImageToBody(img model.LocalImage) imageBody {
	return imageBody{
		ID:           img.RemoteID,
		ImageURI:     img.ImageURI,
		DisplayOrder: img.DisplayOrder,
		FileSize:     img.FileSize,
		MimeType:     img.MimeType,
		CreatedAt:    img.CreatedAt,
	}
}

func remoteImageToBody(img model.Image) imageBody {
	return imageBody{
		ID:           img.ID,
		ImageURI:     img.URI(),
		DisplayOrder: img.DisplayOrder,
		FileSize:     img.FileSize,
		MimeType:     img.MimeType,
		CreatedAt:    img.CreatedAt,
	}
}

type syncStatusBody struct {
	Resource    string    `json:"resource"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitzero"`
}

func (s *Server) handleHealth(c *gin.Context) {
	statuses, err := s.store.SyncStatuses(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]syncStatusBody, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, syncStatusBody{
			Resource:    string(st.Resource),
			LastSuccess: st.LastSuccess,
			LastError:   st.LastError,
			LastErrorAt: st.LastErrorAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"syncing": s.engine.Running(),
		"sync":    out,
	})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	st, err := s.store.GetSettings(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no settings mirrored yet"})
		return
	}
	c.JSON(http.StatusOK, settingsToBody(st))
}

func (s *Server) handlePutSettings(c *gin.Context) {
	var body settingsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	st := body.toModel()
	if err := s.engine.SaveSettings(c.Request.Context(), st); err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, settingsToBody(st))
}

func (s *Server) handleListImages(c *gin.Context) {
	images, err := s.store.ListImages(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]imageBody, 0, len(images))
	for _, img := range images {
		out = append(out, localImageToBody(img))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleUploadImage(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if fh.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds 10 MiB"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	defer func() { _ = f.Close() }()

	img, err := s.engine.UploadImage(c.Request.Context(), sync.UploadRequest{
		Source:   f,
		MimeType: fh.Header.Get("Content-Type"),
	})
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, remoteImageToBody(*img))
}

func (s *Server) handleDeleteImage(c *gin.Context) {
	remaining, err := s.engine.DeleteImage(c.Request.Context(), sync.DeleteRequest{
		ID:  c.Param("id"),
		URI: c.Query("uri"),
	})
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	out := make([]imageBody, 0, len(remaining))
	for _, img := range remaining {
		out = append(out, remoteImageToBody(img))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSync(c *gin.Context) {
	if !s.engine.Running() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync loops are not running"})
		return
	}
	s.engine.ForceSyncNow()
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, sync.ErrEmptyImage), errors.Is(err, sync.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.Is(err, sync.ErrImageLimit):
		return http.StatusConflict
	case errors.Is(err, sync.ErrImageNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}
