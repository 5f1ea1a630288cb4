package overlay

import (
	"math"
	"testing"
)

func TestCompute(t *testing.T) {
	natural := Size{Width: 1000, Height: 500}
	display := Size{Width: 500, Height: 250}
	got, ok := Compute(natural, display, []float64{100, 100, 300, 200}, "person (87%)")
	if !ok {
		t.Fatal("expected overlay")
	}
	want := Rect{X: 50, Y: 50, Width: 100, Height: 50}
	if got.Rect != want {
		t.Errorf("rect = %+v, want %+v", got.Rect, want)
	}
	if got.LabelAnchor != (Point{X: 50, Y: 46}) {
		t.Errorf("anchor = %+v", got.LabelAnchor)
	}
	if got.Label != "person (87%)" {
		t.Errorf("label = %q", got.Label)
	}
}

func TestCompute_independentAxes(t *testing.T) {
	got, ok := Compute(Size{Width: 100, Height: 100}, Size{Width: 200, Height: 50}, []float64{10, 10, 20, 20}, "")
	if !ok {
		t.Fatal("expected overlay")
	}
	want := Rect{X: 20, Y: 5, Width: 20, Height: 5}
	if got.Rect != want {
		t.Errorf("rect = %+v, want %+v", got.Rect, want)
	}
}

func TestCompute_declines(t *testing.T) {
	n := Size{Width: 100, Height: 100}
	d := Size{Width: 50, Height: 50}
	tests := []struct {
		name    string
		natural Size
		display Size
		bbox    []float64
	}{
		{"short_bbox", n, d, []float64{1, 2, 3}},
		{"long_bbox", n, d, []float64{1, 2, 3, 4, 5}},
		{"nil_bbox", n, d, nil},
		{"nan", n, d, []float64{math.NaN(), 0, 1, 1}},
		{"inf", n, d, []float64{0, 0, math.Inf(1), 1}},
		{"inverted_x", n, d, []float64{50, 0, 10, 10}},
		{"inverted_y", n, d, []float64{0, 50, 10, 10}},
		{"zero_natural", Size{}, d, []float64{0, 0, 1, 1}},
		{"negative_display", n, Size{Width: -1, Height: 50}, []float64{0, 0, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Compute(tt.natural, tt.display, tt.bbox, "x"); ok {
				t.Error("expected Compute to decline")
			}
		})
	}
}

func TestCompute_labelAboveTopEdgeUnclamped(t *testing.T) {
	got, ok := Compute(Size{Width: 10, Height: 10}, Size{Width: 10, Height: 10}, []float64{0, 0, 5, 5}, "x")
	if !ok {
		t.Fatal("expected overlay")
	}
	if got.LabelAnchor.Y != -LabelGap {
		t.Errorf("anchor y = %v, want %v", got.LabelAnchor.Y, -LabelGap)
	}

	clamped, _ := Compute(Size{Width: 10, Height: 10}, Size{Width: 10, Height: 10}, []float64{0, 0, 5, 5}, "x", WithLabelClamp())
	if clamped.LabelAnchor.Y != 0 {
		t.Errorf("clamped anchor y = %v, want 0", clamped.LabelAnchor.Y)
	}
}

func TestLabel(t *testing.T) {
	c := 0.87
	if got := Label("person", &c); got != "person (87%)" {
		t.Errorf("Label = %q", got)
	}
	if got := Label("car", nil); got != "car" {
		t.Errorf("Label without confidence = %q", got)
	}
	if got := Label("  ", nil); got != "object" {
		t.Errorf("Label empty class = %q", got)
	}
}
