package repository

import (
	"context"
	"image"
)

// ImageRepository loads still images for recognition
type ImageRepository interface {
	// FetchImage validates imageURL and retrieves the image it points to
	FetchImage(ctx context.Context, imageURL string) (image.Image, error)

	// ValidateImageURL reports whether imageURL is acceptable
	ValidateImageURL(imageURL string) error
}

// URLValidator checks an image URL before it is fetched
type URLValidator interface {
	ValidateImageURL(imageURL string) error
}
