package models

import "testing"

func TestNormalizedRect_Edges(t *testing.T) {
	r := NormalizedRect{X: 0.25, Y: 0.5, Width: 0.5, Height: 0.25}

	if r.Left() != 0.25 || r.Right() != 0.75 {
		t.Errorf("horizontal edges = %v, %v", r.Left(), r.Right())
	}
	if r.Bottom() != 0.5 || r.Top() != 0.75 {
		t.Errorf("vertical edges = %v, %v", r.Bottom(), r.Top())
	}
}

func TestNormalizedRect_Contains(t *testing.T) {
	r := NormalizedRect{X: 0.25, Y: 0.25, Width: 0.5, Height: 0.5}

	tests := []struct {
		name string
		rect NormalizedRect
		p    Point
		want bool
	}{
		{"Centre", r, Point{0.5, 0.5}, true},
		{"Bottom-left corner", r, Point{0.25, 0.25}, true},
		{"Top-right corner", r, Point{0.75, 0.75}, true},
		{"Left of rect", r, Point{0.2, 0.5}, false},
		{"Above rect", r, Point{0.5, 0.8}, false},
		{"Zero width", NormalizedRect{X: 0.5, Y: 0, Width: 0, Height: 1}, Point{0.5, 0.5}, false},
		{"Negative height", NormalizedRect{X: 0, Y: 0.6, Width: 1, Height: -0.2}, Point{0.5, 0.5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rect.Contains(tt.p); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestNormalizedRect_IsEmpty(t *testing.T) {
	if (NormalizedRect{Width: 1, Height: 1}).IsEmpty() {
		t.Error("unit rect should not be empty")
	}
	if !(NormalizedRect{Width: 1}).IsEmpty() {
		t.Error("zero height rect should be empty")
	}
}
