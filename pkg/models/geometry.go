package models

// Point is a location in unit coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NormalizedRect is a rectangle in unit coordinates with its origin at the
// bottom-left corner of the frame. Both axes run from 0 to 1.
type NormalizedRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Left returns the smallest x coordinate of the rectangle
func (r NormalizedRect) Left() float64 { return r.X }

// Right returns the largest x coordinate of the rectangle
func (r NormalizedRect) Right() float64 { return r.X + r.Width }

// Bottom returns the smallest y coordinate of the rectangle
func (r NormalizedRect) Bottom() float64 { return r.Y }

// Top returns the largest y coordinate of the rectangle
func (r NormalizedRect) Top() float64 { return r.Y + r.Height }

// IsEmpty reports whether the rectangle has no area
func (r NormalizedRect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether p lies inside the rectangle. Points on any edge
// count as inside.
func (r NormalizedRect) Contains(p Point) bool {
	if r.IsEmpty() {
		return false
	}
	return p.X >= r.Left() && p.X <= r.Right() &&
		p.Y >= r.Bottom() && p.Y <= r.Top()
}

// ScreenRect is a rectangle in viewport pixels with its origin at the
// top-left corner.
type ScreenRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport is the size of the surface the overlay is drawn on
type Viewport struct {
	Width  int `json:"width" binding:"required,min=1"`
	Height int `json:"height" binding:"required,min=1"`
}
