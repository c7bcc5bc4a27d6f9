// Package capture provides the frame sources the scanner reads from.
package capture

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/disintegration/imaging"
)

// ErrNoCamera is returned when no capture device can be opened
var ErrNoCamera = errors.New("no camera available")

// Orientation describes how a frame must be rotated to appear upright
type Orientation int

const (
	OrientationUp Orientation = iota
	OrientationRight
	OrientationDown
	OrientationLeft
)

func (o Orientation) String() string {
	switch o {
	case OrientationRight:
		return "right"
	case OrientationDown:
		return "down"
	case OrientationLeft:
		return "left"
	default:
		return "up"
	}
}

// Frame is one captured image
type Frame struct {
	Seq         uint64
	Image       image.Image
	Orientation Orientation
	CapturedAt  time.Time
}

// Upright returns the frame image rotated so that text reads left to right.
// OrientationRight means the top of the scene is on the right side of the image.
func (f Frame) Upright() image.Image {
	switch f.Orientation {
	case OrientationRight:
		return imaging.Rotate90(f.Image)
	case OrientationDown:
		return imaging.Rotate180(f.Image)
	case OrientationLeft:
		return imaging.Rotate270(f.Image)
	default:
		return f.Image
	}
}

// Source delivers frames at a fixed cadence until ctx is cancelled. The
// returned channel is closed when the source stops.
type Source interface {
	Frames(ctx context.Context) (<-chan Frame, error)
	Close() error
}
