package domain

import (
	"time"

	"github.com/google/uuid"
)

// Photo upload limits.
const (
	MaxPhotoSize        = 10 * 1024 * 1024
	MaxPhotosPerRequest = 10

	// Thumbnails fit inside a 320x320 box.
	ThumbnailMaxSize     = 320
	ThumbnailJPEGQuality = 85
)

// AllowedPhotoTypes lists the accepted upload content types.
var AllowedPhotoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Photo is an image attached to a request.
type Photo struct {
	ID           uuid.UUID `json:"id"`
	RequestID    uuid.UUID `json:"request_id"`
	StorageKey   string    `json:"-"`
	ThumbnailKey string    `json:"-"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	CreatedAt    time.Time `json:"created_at"`
}
