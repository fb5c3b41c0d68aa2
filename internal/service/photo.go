// Package service holds the application services that sit between the HTTP
// handlers and the dispatch coordinator.
//
// This file implements request photo uploads.
package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/dispatch"
	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/storage"
)

// photoURLExpiry bounds presigned photo links.
const photoURLExpiry = time.Hour

// =============================================================================
// Interface Definition
// =============================================================================

// PhotoService stores request photos and attaches them to their request.
type PhotoService interface {
	// Upload stores the photo and its thumbnail, then attaches it to the
	// request, which reclassifies it with the extra evidence.
	// Returns domain.ETOOLARGE when data exceeds domain.MaxPhotoSize.
	// Returns domain.EINVALID for unsupported or undecodable images.
	// Returns domain.ENOTFOUND if the request does not exist or isn't the caller's.
	Upload(ctx context.Context, p domain.Principal, requestID uuid.UUID, data io.Reader) (*domain.Photo, *domain.ServiceRequest, error)

	// List returns the request's photos with fresh URLs.
	List(ctx context.Context, p domain.Principal, requestID uuid.UUID) ([]domain.Photo, error)
}

// =============================================================================
// Implementation
// =============================================================================

type photoService struct {
	coordinator dispatch.Coordinator
	storage     storage.Storage
	thumbnails  ThumbnailProcessor
	logger      *slog.Logger
}

// NewPhotoService creates a new PhotoService.
func NewPhotoService(
	coordinator dispatch.Coordinator,
	store storage.Storage,
	thumbnails ThumbnailProcessor,
	logger *slog.Logger,
) PhotoService {
	return &photoService{
		coordinator: coordinator,
		storage:     store,
		thumbnails:  thumbnails,
		logger:      logger,
	}
}

func (s *photoService) Upload(ctx context.Context, p domain.Principal, requestID uuid.UUID, data io.Reader) (*domain.Photo, *domain.ServiceRequest, error) {
	const op = "photo.upload"

	if !p.Is(domain.RoleRequester) {
		return nil, nil, domain.Forbidden(op, "only requesters can upload photos")
	}

	body, err := io.ReadAll(io.LimitReader(data, domain.MaxPhotoSize+1))
	if err != nil {
		return nil, nil, domain.Internal(err, op, "failed to read upload")
	}
	if len(body) > domain.MaxPhotoSize {
		return nil, nil, domain.Errorf(domain.ETOOLARGE, op, "photo exceeds %d MB", domain.MaxPhotoSize>>20)
	}
	if len(body) == 0 {
		return nil, nil, domain.Invalid(op, "photo is empty")
	}

	contentType := storage.SniffImageType(body)
	ext, ok := domain.AllowedPhotoTypes[contentType]
	if !ok {
		return nil, nil, domain.Invalid(op, "unsupported image type, use JPEG, PNG or WebP")
	}

	thumb, width, height, err := s.thumbnails.GenerateThumbnail(bytes.NewReader(body), domain.ThumbnailMaxSize, domain.ThumbnailMaxSize)
	if err != nil {
		return nil, nil, domain.Wrap(err, domain.EINVALID, op, "image could not be decoded")
	}

	photo := domain.Photo{
		ID:          uuid.New(),
		RequestID:   requestID,
		ContentType: contentType,
		SizeBytes:   int64(len(body)),
		Width:       width,
		Height:      height,
	}
	photo.StorageKey = storage.PhotoKey(requestID, photo.ID, ext)
	photo.ThumbnailKey = storage.ThumbnailKey(requestID, photo.ID)

	if err := s.storage.Put(ctx, photo.StorageKey, bytes.NewReader(body), storage.PutOptions{
		ContentType: contentType,
		MaxSize:     domain.MaxPhotoSize,
	}); err != nil {
		return nil, nil, storage.ToDomain(err, op, "failed to store photo")
	}
	if err := s.storage.Put(ctx, photo.ThumbnailKey, bytes.NewReader(thumb), storage.PutOptions{
		ContentType: "image/jpeg",
	}); err != nil {
		s.cleanup(ctx, photo.StorageKey)
		return nil, nil, storage.ToDomain(err, op, "failed to store thumbnail")
	}

	req, err := s.coordinator.AttachPhoto(ctx, p, photo)
	if err != nil {
		s.cleanup(ctx, photo.StorageKey, photo.ThumbnailKey)
		return nil, nil, err
	}

	s.fillURLs(ctx, &photo)
	s.logger.Info("photo uploaded",
		"request_id", requestID,
		"photo_id", photo.ID,
		"content_type", contentType,
		"size_bytes", photo.SizeBytes,
	)
	return &photo, req, nil
}

func (s *photoService) List(ctx context.Context, p domain.Principal, requestID uuid.UUID) ([]domain.Photo, error) {
	photos, err := s.coordinator.ListPhotos(ctx, p, requestID)
	if err != nil {
		return nil, err
	}
	for i := range photos {
		s.fillURLs(ctx, &photos[i])
	}
	return photos, nil
}

// =============================================================================
// Helpers
// =============================================================================

// fillURLs sets the photo links. A failure leaves the link empty rather than
// failing the listing.
func (s *photoService) fillURLs(ctx context.Context, photo *domain.Photo) {
	if url, err := s.storage.URL(ctx, photo.StorageKey, photoURLExpiry); err == nil {
		photo.URL = url
	} else {
		s.logger.Warn("failed to build photo url", "key", photo.StorageKey, "error", err)
	}
	if photo.ThumbnailKey == "" {
		return
	}
	if url, err := s.storage.URL(ctx, photo.ThumbnailKey, photoURLExpiry); err == nil {
		photo.ThumbnailURL = url
	} else {
		s.logger.Warn("failed to build thumbnail url", "key", photo.ThumbnailKey, "error", err)
	}
}

func (s *photoService) cleanup(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Error("failed to clean up stored object", "key", key, "error", err)
		}
	}
}
