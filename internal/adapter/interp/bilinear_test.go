package interp

import (
	"math"
	"testing"
)

// bilinearField is reproduced exactly by bilinear interpolation.
func bilinearField(x, y float64) float64 {
	return 3 + 2*x - 5*y + 0.5*x*y
}

func fieldCell(x0, y0, x1, y1 float64) GridCell {
	return GridCell{
		X0: x0, X1: x1, Y0: y0, Y1: y1,
		V00: bilinearField(x0, y0), V10: bilinearField(x1, y0),
		V01: bilinearField(x0, y1), V11: bilinearField(x1, y1),
	}
}

// TestBilinearInterpolate_ReproducesField checks interior, edge and corner points
func TestBilinearInterpolate_ReproducesField(t *testing.T) {
	cell := fieldCell(-2, 10, 6, 14)

	points := [][2]float64{
		{-2, 10}, {6, 14}, {-2, 14}, {6, 10},
		{2, 12}, {0.125, 13.5}, {6, 11}, {-2 - 1e-12, 10},
	}
	for _, p := range points {
		got, err := BilinearInterpolate(cell, p[0], p[1])
		if err != nil {
			t.Fatalf("(%v, %v): unexpected error %v", p[0], p[1], err)
		}
		if want := bilinearField(math.Max(p[0], -2), p[1]); math.Abs(got-want) > 1e-9 {
			t.Errorf("(%v, %v): expected %.10f, got %.10f", p[0], p[1], want, got)
		}
	}
}

// TestBilinearInterpolate_Rejects covers points outside the cell and degenerate cells
func TestBilinearInterpolate_Rejects(t *testing.T) {
	good := fieldCell(0, 0, 1, 1)
	tests := []struct {
		name string
		cell GridCell
		x, y float64
	}{
		{"left of cell", good, -0.01, 0.5},
		{"right of cell", good, 1.01, 0.5},
		{"above cell", good, 0.5, -0.01},
		{"below cell", good, 0.5, 1.01},
		{"nan", good, math.NaN(), 0.5},
		{"zero width", GridCell{X0: 1, X1: 1, Y0: 0, Y1: 1}, 1, 0.5},
		{"inverted rows", GridCell{X0: 0, X1: 1, Y0: 1, Y1: 0}, 0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BilinearInterpolate(tt.cell, tt.x, tt.y); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// TestWindowCell maps a read window onto its unit pixel cell
func TestWindowCell(t *testing.T) {
	cell, err := WindowCell(3, 7, []float64{10, 20, 30, 40})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := GridCell{X0: 3, X1: 4, Y0: 7, Y1: 8, V00: 10, V10: 20, V01: 30, V11: 40}
	if cell != want {
		t.Errorf("cell = %+v, want %+v", cell, want)
	}

	got, err := BilinearInterpolate(cell, 3.5, 7.25)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(got-20) > 1e-9 {
		t.Errorf("expected 20, got %.10f", got)
	}

	if _, err := WindowCell(0, 0, []float64{1, 2, 3}); err == nil {
		t.Error("expected error for a short window")
	}
}

// TestBilinear_Weights tests the raw four-neighbor blend
func TestBilinear_Weights(t *testing.T) {
	tests := []struct {
		name     string
		dx, dy   float64
		expected float64
	}{
		{"top-left", 0, 0, 10},
		{"top-right", 1, 0, 20},
		{"bottom-left", 0, 1, 30},
		{"bottom-right", 1, 1, 40},
		{"center", 0.5, 0.5, 25},
		{"quarter", 0.25, 0, 12.5},
		{"clamped", 1.5, -0.5, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bilinear(10, 20, 30, 40, tt.dx, tt.dy)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %.10f, got %.10f", tt.expected, got)
			}
		})
	}
}

// TestNeighborhood tests window placement in pixel-center space
func TestNeighborhood(t *testing.T) {
	tests := []struct {
		name           string
		px, py         float64
		width, height  int
		wantX0, wantY0 int
		wantDx, wantDy float64
		wantOK         bool
	}{
		{"interior", 1.25, 0.5, 4, 3, 1, 0, 0.25, 0.5, true},
		{"origin", 0, 0, 4, 3, 0, 0, 0, 0, true},
		{"last center", 3, 2, 4, 3, 2, 1, 1, 1, true},
		{"float noise below zero", -1e-12, 0, 4, 3, 0, 0, 0, 0, true},
		{"left of raster", -0.5, 1, 4, 3, 0, 0, 0, 0, false},
		{"below raster", 1, 2.5, 4, 3, 0, 0, 0, 0, false},
		{"single column", 0, 0, 1, 3, 0, 0, 0, 0, false},
		{"nan", math.NaN(), 0, 4, 3, 0, 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x0, y0, dx, dy, ok := Neighborhood(tt.px, tt.py, tt.width, tt.height)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if x0 != tt.wantX0 || y0 != tt.wantY0 {
				t.Errorf("window origin = (%d, %d), want (%d, %d)", x0, y0, tt.wantX0, tt.wantY0)
			}
			if math.Abs(dx-tt.wantDx) > 1e-9 || math.Abs(dy-tt.wantDy) > 1e-9 {
				t.Errorf("offsets = (%.6f, %.6f), want (%.6f, %.6f)", dx, dy, tt.wantDx, tt.wantDy)
			}
		})
	}
}
