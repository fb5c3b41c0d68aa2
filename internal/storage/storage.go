// Package storage stores request photos and their thumbnails.
//
// Two backends implement Storage:
// - LocalStorage: the filesystem, served under /files in development
// - R2Storage: Cloudflare R2 (S3-compatible) object storage in production
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the interface for object storage operations.
//
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at key. It fails with ErrKeyExists when the key is
	// taken and opts.Overwrite is false, and with ErrTooLarge when data
	// exceeds opts.MaxSize.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get returns the object at key. The caller must close the reader.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a link to the object. Backends without public access
	// presign the link for expires.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is detected from the key's extension when empty.
	ContentType string

	// MaxSize limits the object size in bytes. Zero means no limit.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory, e.g. "./storage".
	BasePath string

	// BaseURL is the public prefix for stored files, e.g.
	// "http://localhost:8080/files".
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the bucket's custom domain. When empty every URL is
	// presigned.
	PublicURL string

	// Region defaults to "auto".
	Region string
}

// Provider names accepted by STORAGE_PROVIDER.
const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// =============================================================================
// Key Generation Helpers
// =============================================================================

// PhotoKey is where the original upload of a request photo lives.
// Format: requests/{requestID}/photos/{photoID}{ext}
func PhotoKey(requestID, photoID uuid.UUID, ext string) string {
	return fmt.Sprintf("requests/%s/photos/%s%s", requestID, photoID, ext)
}

// ThumbnailKey is where a photo's JPEG thumbnail lives.
// Format: requests/{requestID}/thumbnails/{photoID}.jpg
func ThumbnailKey(requestID, photoID uuid.UUID) string {
	return fmt.Sprintf("requests/%s/thumbnails/%s.jpg", requestID, photoID)
}
