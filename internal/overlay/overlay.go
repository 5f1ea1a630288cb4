// Package overlay maps detection bounding boxes from a frame's natural pixel
// space onto the size it is displayed at.
package overlay

import (
	"fmt"
	"math"
	"strings"
)

// LabelGap is the vertical distance between a box's top edge and its label anchor.
const LabelGap = 4.0

// Size is a width and height in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s Size) valid() bool {
	return finite(s.Width) && finite(s.Height) && s.Width > 0 && s.Height > 0
}

// Rect is an axis-aligned rectangle in display coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a position in display coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Overlay is a drawable box with its label.
type Overlay struct {
	Rect        Rect   `json:"rect"`
	Label       string `json:"label"`
	LabelAnchor Point  `json:"label_anchor"`
}

type settings struct {
	clamp bool
}

// Option configures Compute.
type Option func(*settings)

// WithLabelClamp keeps the label anchor inside the displayed image.
func WithLabelClamp() Option {
	return func(s *settings) { s.clamp = true }
}

// Compute scales bbox ([x1, y1, x2, y2] in natural pixels) to display space.
// The axes scale independently. It returns false when the box or either size
// cannot produce a meaningful overlay.
func Compute(natural, display Size, bbox []float64, label string, opts ...Option) (Overlay, bool) {
	var s settings
	for _, o := range opts {
		o(&s)
	}
	if len(bbox) != 4 || !natural.valid() || !display.valid() {
		return Overlay{}, false
	}
	for _, v := range bbox {
		if !finite(v) {
			return Overlay{}, false
		}
	}
	x1, y1, x2, y2 := bbox[0], bbox[1], bbox[2], bbox[3]
	if x2 < x1 || y2 < y1 {
		return Overlay{}, false
	}

	sx := display.Width / natural.Width
	sy := display.Height / natural.Height
	r := Rect{
		X:      x1 * sx,
		Y:      y1 * sy,
		Width:  (x2 - x1) * sx,
		Height: (y2 - y1) * sy,
	}
	anchor := Point{X: r.X, Y: r.Y - LabelGap}
	if s.clamp {
		anchor.X = math.Min(math.Max(anchor.X, 0), display.Width)
		anchor.Y = math.Min(math.Max(anchor.Y, 0), display.Height)
	}
	return Overlay{Rect: r, Label: label, LabelAnchor: anchor}, true
}

// Label formats a detection label like "person (87%)". The confidence is
// omitted when nil and the class falls back to "object" when empty.
func Label(className string, confidence *float64) string {
	name := strings.TrimSpace(className)
	if name == "" {
		name = "object"
	}
	if confidence == nil || !finite(*confidence) {
		return name
	}
	return fmt.Sprintf("%s (%.0f%%)", name, *confidence*100)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
