package repository

import "errors"

var (
	// ErrInvalidImageURL indicates an invalid image URL
	ErrInvalidImageURL = errors.New("invalid image URL")

	// ErrBlobStorageDisabled indicates a blob URL was given without Azure credentials
	ErrBlobStorageDisabled = errors.New("blob storage is not configured")
)
