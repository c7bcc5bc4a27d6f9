package recognizer

import (
	"context"
	"image"

	"github.com/anime-shed/live-text-go/pkg/models"
)

// Recognizer turns one image into the text regions found in it. Candidates
// are returned in reading order, one per region, with boxes normalized to the
// unit square (origin bottom-left).
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (models.FrameResult, error)

	// Lifecycle management
	Close() error
}

// RecognizerFunc adapts a plain function to the Recognizer interface
type RecognizerFunc func(ctx context.Context, img image.Image) (models.FrameResult, error)

// Recognize calls f(ctx, img)
func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image) (models.FrameResult, error) {
	return f(ctx, img)
}

// Close is a no-op
func (f RecognizerFunc) Close() error { return nil }
