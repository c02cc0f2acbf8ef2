package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/njoerd114/mosquesync/internal/model"
)

// RPC function names exposed by the backend.
const (
	fnGetSettings           = "get_settings"
	fnUpsertSettings        = "upsert_settings"
	fnGetImages             = "get_images"
	fnUploadImageAtomic     = "upload_image_atomic"
	fnDeleteImageAndReorder = "delete_image_and_reorder"
)

// settingsRow is the JSON shape of a settings record returned by the backend.
type settingsRow struct {
	AccountID             string  `json:"account_id"`
	MosqueName            *string `json:"mosque_name"`
	MosqueLocation        *string `json:"mosque_location"`
	LogoImage             *string `json:"logo_image"`
	PrayerAddress         *string `json:"prayer_address"`
	PrayerTimezone        *string `json:"prayer_timezone"`
	QuoteText             *string `json:"quote_text"`
	MarqueeText           *string `json:"marquee_text"`
	IqomahDurationMinutes *int    `json:"iqomah_duration_minutes"`
	UpdatedAt             string  `json:"updated_at"`
}

// imageRow is the JSON shape of an image record returned by the backend.
type imageRow struct {
	ID           string  `json:"id"`
	AccountID    string  `json:"account_id"`
	ImageURI     *string `json:"image_uri"`
	DisplayOrder int     `json:"display_order"`
	FileSize     int64   `json:"file_size"`
	MimeType     string  `json:"mime_type"`
	UploadStatus string  `json:"upload_status"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// settingsRowToModel converts a backend row to [model.Settings]. Null columns
// fall back to the typed defaults of [model.DefaultSettings].
func settingsRowToModel(r settingsRow) *model.Settings {
	s := model.DefaultSettings(r.AccountID)
	if r.MosqueName != nil {
		s.MosqueName = *r.MosqueName
	}
	if r.MosqueLocation != nil {
		s.MosqueLocation = *r.MosqueLocation
	}
	if r.LogoImage != nil && *r.LogoImage != "" {
		logo := *r.LogoImage
		s.LogoImage = &logo
	}
	if r.PrayerAddress != nil {
		s.PrayerAddress = *r.PrayerAddress
	}
	if r.PrayerTimezone != nil && *r.PrayerTimezone != "" {
		s.PrayerTimezone = *r.PrayerTimezone
	}
	if r.QuoteText != nil {
		s.QuoteText = *r.QuoteText
	}
	if r.MarqueeText != nil {
		s.MarqueeText = *r.MarqueeText
	}
	if r.IqomahDurationMinutes != nil {
		s.IqomahDurationMinutes = *r.IqomahDurationMinutes
	}
	s.UpdatedAt = parseTimestamp(r.UpdatedAt)
	return s
}

// imageRowToModel converts a backend row to [model.Image]. Rows without an ID
// cannot be targeted by any later operation and are reported as malformed.
func imageRowToModel(r imageRow) (model.Image, bool) {
	if r.ID == "" {
		return model.Image{}, false
	}
	img := model.Image{
		ID:           r.ID,
		AccountID:    r.AccountID,
		DisplayOrder: r.DisplayOrder,
		FileSize:     r.FileSize,
		MimeType:     r.MimeType,
		UploadStatus: model.UploadStatus(r.UploadStatus),
		CreatedAt:    parseTimestamp(r.CreatedAt),
		UpdatedAt:    parseTimestamp(r.UpdatedAt),
	}
	if r.ImageURI != nil && *r.ImageURI != "" {
		uri := *r.ImageURI
		img.ImageURI = &uri
	}
	return img, true
}

// decodeSettings accepts the three shapes PostgREST may return for a
// settings lookup: null, a single object, or an array of zero or one rows.
func decodeSettings(raw json.RawMessage) (*model.Settings, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil //nolint:nilnil // no record yet
	}

	if raw[0] == '[' {
		var rows []settingsRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("parse settings rows: %w", err)
		}
		if len(rows) == 0 {
			return nil, nil //nolint:nilnil // no record yet
		}
		return settingsRowToModel(rows[0]), nil
	}

	var row settingsRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("parse settings row: %w", err)
	}
	return settingsRowToModel(row), nil
}

// decodeImages parses an array of image rows. Individual rows that fail to
// parse are skipped and counted rather than failing the whole response.
func decodeImages(raw json.RawMessage) ([]model.Image, int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, 0, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, 0, fmt.Errorf("parse image rows: %w", err)
	}

	images := make([]model.Image, 0, len(elems))
	skipped := 0
	for _, e := range elems {
		var row imageRow
		if err := json.Unmarshal(e, &row); err != nil {
			skipped++
			continue
		}
		img, ok := imageRowToModel(row)
		if !ok {
			skipped++
			continue
		}
		images = append(images, img)
	}
	return images, skipped, nil
}

// decodeImage parses a single image row, accepting a one-element array too.
func decodeImage(raw json.RawMessage) (*model.Image, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		images, _, err := decodeImages(raw)
		if err != nil {
			return nil, err
		}
		if len(images) == 0 {
			return nil, fmt.Errorf("empty image response")
		}
		return &images[0], nil
	}

	var row imageRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("parse image row: %w", err)
	}
	img, ok := imageRowToModel(row)
	if !ok {
		return nil, fmt.Errorf("image response has no id")
	}
	return &img, nil
}

// buildUpsertSettingsParams returns the RPC parameters for upsert_settings.
func buildUpsertSettingsParams(token string, s *model.Settings) map[string]any {
	params := map[string]any{
		"p_token":                   token,
		"p_mosque_name":             s.MosqueName,
		"p_mosque_location":         s.MosqueLocation,
		"p_logo_image":              nil,
		"p_prayer_address":          s.PrayerAddress,
		"p_prayer_timezone":         s.PrayerTimezone,
		"p_quote_text":              s.QuoteText,
		"p_marquee_text":            s.MarqueeText,
		"p_iqomah_duration_minutes": s.IqomahDurationMinutes,
	}
	if s.LogoImage != nil {
		params["p_logo_image"] = *s.LogoImage
	}
	return params
}

// UploadParams describes the record committed by upload_image_atomic.
type UploadParams struct {
	ID           string
	DisplayOrder int
	FileSize     int64
	MimeType     string
	ImageURI     string
}

func buildUploadParams(token string, p UploadParams) map[string]any {
	return map[string]any{
		"p_token":         token,
		"p_id":            p.ID,
		"p_display_order": p.DisplayOrder,
		"p_file_size":     p.FileSize,
		"p_mime_type":     p.MimeType,
		"p_image_uri":     p.ImageURI,
	}
}

func buildDeleteParams(token, imageID string) map[string]any {
	return map[string]any{
		"p_token":    token,
		"p_image_id": imageID,
	}
}

func tokenParams(token string) map[string]any {
	return map[string]any{"p_token": token}
}

// parseTimestamp accepts the timestamp layouts Postgres emits through
// PostgREST. Unparseable values become the zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
