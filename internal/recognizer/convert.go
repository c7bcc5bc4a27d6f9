package recognizer

import (
	"image"

	"github.com/anime-shed/live-text-go/pkg/models"
	"golang.org/x/image/draw"
)

// normalizeBox converts a pixel rectangle (origin top-left) inside bounds into
// unit coordinates with the origin at the bottom-left corner.
func normalizeBox(r, bounds image.Rectangle) models.NormalizedRect {
	r = r.Intersect(bounds)
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())
	if r.Empty() || w == 0 || h == 0 {
		return models.NormalizedRect{}
	}
	return models.NormalizedRect{
		X:      float64(r.Min.X-bounds.Min.X) / w,
		Y:      float64(bounds.Max.Y-r.Max.Y) / h,
		Width:  float64(r.Dx()) / w,
		Height: float64(r.Dy()) / h,
	}
}

// downscale shrinks img so that it is at most maxWidth pixels wide, keeping
// the aspect ratio. Smaller images are returned unchanged.
func downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
