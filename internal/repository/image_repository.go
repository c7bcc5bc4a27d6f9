package repository

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/live-text-go/internal/errors"
	"github.com/anime-shed/live-text-go/internal/logger"
	"github.com/anime-shed/live-text-go/internal/storage"
)

const blobHostSuffix = ".blob.core.windows.net"

// RoutingImageRepository validates URLs and sends blob URLs to Azure,
// everything else to plain HTTP
type RoutingImageRepository struct {
	http      storage.ImageFetcher
	blob      storage.ImageFetcher
	validator URLValidator
}

// NewImageRepository creates a repository. blob may be nil when Azure is not
// configured.
func NewImageRepository(http, blob storage.ImageFetcher, validator URLValidator) *RoutingImageRepository {
	return &RoutingImageRepository{
		http:      http,
		blob:      blob,
		validator: validator,
	}
}

// ValidateImageURL validates if the provided URL is acceptable
func (r *RoutingImageRepository) ValidateImageURL(imageURL string) error {
	if r.validator == nil {
		if imageURL == "" {
			return apperrors.NewValidationError("URL cannot be empty", ErrInvalidImageURL)
		}
		return nil
	}
	return r.validator.ValidateImageURL(imageURL)
}

// FetchImage retrieves an image from a URL
func (r *RoutingImageRepository) FetchImage(ctx context.Context, imageURL string) (image.Image, error) {
	if err := r.ValidateImageURL(imageURL); err != nil {
		return nil, err
	}

	fetcher, backend, err := r.route(imageURL)
	if err != nil {
		return nil, err
	}

	img, err := fetcher.FetchImage(ctx, imageURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewTimeoutError("Image fetch timed out", err)
		}
		logger.WithFields(map[string]interface{}{
			"backend": backend,
			"url":     imageURL,
		}).WithError(err).Warn("Image fetch failed")
		return nil, apperrors.NewNetworkError(fmt.Sprintf("Failed to fetch image from %s", backend), err)
	}
	return img, nil
}

func (r *RoutingImageRepository) route(imageURL string) (storage.ImageFetcher, string, error) {
	if isBlobURL(imageURL) {
		if r.blob == nil {
			return nil, "", apperrors.NewValidationError("Blob URL given but blob storage is not configured", ErrBlobStorageDisabled)
		}
		return r.blob, "azure", nil
	}
	return r.http, "http", nil
}

func isBlobURL(imageURL string) bool {
	u, err := url.Parse(imageURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), blobHostSuffix)
}
