// Package region holds the value types shared by the extraction pipeline:
// detected text fragments, the lines and blocks built from them, the caller's
// field schema, and the result of an extraction.
package region

import (
	"strings"
)

// Box is an axis-aligned rectangle in image pixel space.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BoxFromCorners builds a Box from two corner points in any order.
func BoxFromCorners(x1, y1, x2, y2 float64) Box {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Normalize clamps negative coordinates and dimensions to zero.
func (b Box) Normalize() Box {
	if b.X < 0 {
		b.X = 0
	}
	if b.Y < 0 {
		b.Y = 0
	}
	if b.Width < 0 {
		b.Width = 0
	}
	if b.Height < 0 {
		b.Height = 0
	}
	return b
}

// Area returns Width*Height.
func (b Box) Area() float64 {
	return b.Width * b.Height
}

// CenterY returns the vertical center.
func (b Box) CenterY() float64 {
	return b.Y + b.Height/2
}

// Right returns the X coordinate of the right edge.
func (b Box) Right() float64 {
	return b.X + b.Width
}

// Bottom returns the Y coordinate of the bottom edge.
func (b Box) Bottom() float64 {
	return b.Y + b.Height
}

// TextFragment is a single detected text span.
type TextFragment struct {
	Text       string  `json:"text"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Line is a run of fragments sharing a horizontal reading band, ordered left to right.
type Line struct {
	Fragments []TextFragment `json:"fragments"`
	CenterY   float64        `json:"center_y"`
	Height    float64        `json:"height"`
}

// Text joins the fragment texts with single spaces.
func (l Line) Text() string {
	parts := make([]string, 0, len(l.Fragments))
	for _, f := range l.Fragments {
		parts = append(parts, f.Text)
	}
	return strings.Join(parts, " ")
}

// Bounds returns the union of the fragment boxes.
func (l Line) Bounds() Box {
	if len(l.Fragments) == 0 {
		return Box{}
	}
	minX, minY := l.Fragments[0].Box.X, l.Fragments[0].Box.Y
	maxX, maxY := l.Fragments[0].Box.Right(), l.Fragments[0].Box.Bottom()
	for _, f := range l.Fragments[1:] {
		minX = min(minX, f.Box.X)
		minY = min(minY, f.Box.Y)
		maxX = max(maxX, f.Box.Right())
		maxY = max(maxY, f.Box.Bottom())
	}
	return BoxFromCorners(minX, minY, maxX, maxY)
}

// Block is an ordered run of lines. A page is a single block; columns are not segmented.
type Block struct {
	Lines []Line `json:"lines"`
}

// Text joins the line texts with newlines.
func (b Block) Text() string {
	parts := make([]string, 0, len(b.Lines))
	for _, l := range b.Lines {
		parts = append(parts, l.Text())
	}
	return strings.Join(parts, "\n")
}

// FragmentCount returns the number of fragments across all lines.
func (b Block) FragmentCount() int {
	n := 0
	for _, l := range b.Lines {
		n += len(l.Fragments)
	}
	return n
}
