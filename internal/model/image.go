package model

import (
	"fmt"
	"strings"
	"time"
)

// MaxImages caps the number of active carousel images per account.
const MaxImages = 5

// UploadStatus is the lifecycle state of a remote image record.
type UploadStatus string

const (
	// UploadUploading marks a record whose bytes are still in flight.
	UploadUploading UploadStatus = "uploading"
	// UploadCompleted marks a record with a committed public URI.
	UploadCompleted UploadStatus = "completed"
	// UploadFailed marks an abandoned upload.
	UploadFailed UploadStatus = "failed"
)

// Image is a remote carousel image record.
type Image struct {
	ID        string
	AccountID string

	// ImageURI is nil while the upload is in flight.
	ImageURI *string

	// DisplayOrder is dense and zero-based within the account's collection.
	DisplayOrder int

	FileSize     int64
	MimeType     string
	UploadStatus UploadStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// URI returns the image URI or "" when none is set.
func (i *Image) URI() string {
	if i.ImageURI == nil {
		return ""
	}
	return *i.ImageURI
}

// Displayable reports whether the record may be shown or mirrored locally:
// only completed uploads with a URI qualify.
func (i *Image) Displayable() bool {
	return i.UploadStatus == UploadCompleted && i.URI() != ""
}

// LocalImage is the local mirror of a displayable [Image].
type LocalImage struct {
	// ID is the local row ID.
	ID int64

	// RemoteID is the remote record ID, kept for deletion targeting.
	// May be empty for rows written before it was carried over.
	RemoteID string

	ImageURI     string
	DisplayOrder int
	FileSize     int64
	MimeType     string
	CreatedAt    time.Time
}

// ToLocal converts a displayable remote record to its local mirror shape.
func (i *Image) ToLocal() LocalImage {
	return LocalImage{
		RemoteID:     i.ID,
		ImageURI:     i.URI(),
		DisplayOrder: i.DisplayOrder,
		FileSize:     i.FileSize,
		MimeType:     i.MimeType,
		CreatedAt:    i.CreatedAt,
	}
}

// --- Object naming -----------------------------------------------------------

var mimeExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// ExtensionForMime returns the file extension for an image MIME type,
// falling back to "jpg" for unknown types.
func ExtensionForMime(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if ext, ok := mimeExtensions[mt]; ok {
		return ext
	}
	return "jpg"
}

// IsImageMime reports whether mimeType is one of the supported image types.
func IsImageMime(mimeType string) bool {
	_, ok := mimeExtensions[strings.ToLower(strings.TrimSpace(mimeType))]
	return ok
}

// ObjectPath returns the blob-store path for an image: {folder}/{id}.{ext}.
func ObjectPath(folder, id, mimeType string) string {
	folder = strings.Trim(folder, "/")
	name := fmt.Sprintf("%s.%s", id, ExtensionForMime(mimeType))
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
