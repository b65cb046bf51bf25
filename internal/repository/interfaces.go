package repository

import (
	"context"
	"errors"
)

var (
	// ErrInvalidImageURL indicates an invalid image reference
	ErrInvalidImageURL = errors.New("invalid image URL")

	// ErrUnsupportedScheme indicates no fetcher is registered for the scheme
	ErrUnsupportedScheme = errors.New("unsupported image URL scheme")
)

// ImageRepository defines the interface for image data access operations
type ImageRepository interface {
	// FetchBytes retrieves the encoded image behind ref
	FetchBytes(ctx context.Context, ref string) ([]byte, error)

	// ValidateImageURL validates if the provided reference is acceptable
	ValidateImageURL(ref string) error

	// Schemes lists the reference schemes that can be fetched
	Schemes() []string
}
