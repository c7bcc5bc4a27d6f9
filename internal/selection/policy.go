// Package selection picks the text a user is aiming at out of one frame's
// recognition candidates.
package selection

import (
	"strings"

	"github.com/anime-shed/live-text-go/pkg/models"
)

// DefaultThreshold is the minimum confidence a candidate needs to be selected
const DefaultThreshold = 0.5

// FrameCenter is the point a candidate's box must cover
var FrameCenter = models.Point{X: 0.5, Y: 0.5}

// Policy selects at most one candidate per frame
type Policy struct {
	Threshold float64
	Center    models.Point
}

// DefaultPolicy returns the viewfinder policy: confidence >= 0.5 and a box
// covering the centre of the frame.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: DefaultThreshold,
		Center:    FrameCenter,
	}
}

// WithThreshold returns a copy of the policy with a different confidence gate
func (p Policy) WithThreshold(threshold float64) Policy {
	p.Threshold = threshold
	return p
}

// Select returns the first candidate, in recognizer order, that passes the
// confidence gate and whose box contains the centre point. No secondary
// ranking is applied.
func (p Policy) Select(frame models.FrameResult) (models.Selection, bool) {
	for _, c := range frame.Candidates {
		if c.Confidence < p.Threshold || !c.Box.Contains(p.Center) {
			continue
		}
		return models.Selection{
			Text:       Trim(c.Text),
			Confidence: c.Confidence,
			Box:        c.Box,
		}, true
	}
	return models.Selection{}, false
}

// Trim strips leading and trailing whitespace and line breaks
func Trim(text string) string {
	return strings.TrimSpace(text)
}

// ToScreen maps a normalized bottom-left box onto a top-left pixel viewport.
// The vertical axis is flipped; no offset is applied.
func ToScreen(box models.NormalizedRect, vp models.Viewport) models.ScreenRect {
	w := float64(vp.Width)
	h := float64(vp.Height)
	return models.ScreenRect{
		X:      box.Left() * w,
		Y:      (1 - box.Top()) * h,
		Width:  (box.Right() - box.Left()) * w,
		Height: (box.Top() - box.Bottom()) * h,
	}
}
