package pipeline

import (
	"image"
	"image/draw"
	"sync"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
)

// Gate defaults
const (
	// DefaultMaxHashDistance is the perceptual hash distance at or below
	// which two frames count as the same scene
	DefaultMaxHashDistance = 2

	// DefaultMaxConsecutiveSkips forces a recognition pass on a static scene
	DefaultMaxConsecutiveSkips = 10

	// blurSampleWidth is the width frames are reduced to before measuring blur
	blurSampleWidth = 320
)

// Skip reasons
const (
	ReasonSimilar = "similar_frame"
	ReasonBlurry  = "blurry_frame"
)

// GateOptions configures the frame gate
type GateOptions struct {
	SkipSimilar         bool
	MaxHashDistance     int
	MaxConsecutiveSkips int

	// Frames with a Laplacian variance below this are not recognized; 0 disables
	BlurThreshold float64
}

// DefaultGateOptions returns the gate used by the live scanner
func DefaultGateOptions() GateOptions {
	return GateOptions{
		SkipSimilar:         true,
		MaxHashDistance:     DefaultMaxHashDistance,
		MaxConsecutiveSkips: DefaultMaxConsecutiveSkips,
	}
}

// Gate decides whether a frame is worth recognizing
type Gate struct {
	opts GateOptions

	mu       sync.Mutex
	lastHash *goimagehash.ImageHash
	skipped  int
}

// NewGate creates a frame gate
func NewGate(opts GateOptions) *Gate {
	return &Gate{opts: opts}
}

// Admit reports whether img should be recognized, and if not, why
func (g *Gate) Admit(img image.Image) (bool, string) {
	if g.opts.BlurThreshold > 0 && laplacianVariance(img) < g.opts.BlurThreshold {
		return false, ReasonBlurry
	}
	if !g.opts.SkipSimilar {
		return true, ""
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return true, ""
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastHash != nil && g.skipped < g.opts.MaxConsecutiveSkips {
		if dist, err := g.lastHash.Distance(hash); err == nil && dist <= g.opts.MaxHashDistance {
			g.skipped++
			return false, ReasonSimilar
		}
	}
	g.lastHash = hash
	g.skipped = 0
	return true, ""
}

// Reset forgets the last admitted frame
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastHash = nil
	g.skipped = 0
}

// laplacianVariance measures sharpness; low values mean a blurry frame
func laplacianVariance(img image.Image) float64 {
	if img.Bounds().Dx() > blurSampleWidth {
		img = imaging.Resize(img, blurSampleWidth, 0, imaging.Box)
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)

	width, height := gray.Bounds().Dx(), gray.Bounds().Dy()
	kernel := [3][3]int{{0, 1, 0}, {1, -4, 1}, {0, 1, 0}}

	var sum, sumSq float64
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			var val int
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					val += int(gray.GrayAt(x+kx, y+ky).Y) * kernel[ky+1][kx+1]
				}
			}
			fVal := float64(val)
			sum += fVal
			sumSq += fVal * fVal
		}
	}

	n := float64((width - 2) * (height - 2))
	if n <= 0 {
		return 0
	}
	mean := sum / n
	return (sumSq / n) - (mean * mean)
}
