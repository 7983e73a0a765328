// Package interp implements the bilinear interpolation used to sample
// elevation rasters and warp geoid grids.
package interp

import (
	"fmt"
	"math"
)

// epsilon absorbs floating point noise when a coordinate lands on a pixel center.
const epsilon = 1e-9

// GridCell is one rectangle of a regular grid and the values at its corners.
// In pixel space X grows to the right and Y grows downwards, so V00 is the
// top-left sample.
type GridCell struct {
	X0, X1 float64
	Y0, Y1 float64

	// Vxy is the value at (Xx, Yy).
	V00, V10, V01, V11 float64
}

// WindowCell returns the unit cell of a 2x2 read window whose top-left
// pixel is (x0, y0). p holds the window in row-major order.
func WindowCell(x0, y0 int, p []float64) (GridCell, error) {
	if len(p) != 4 {
		return GridCell{}, fmt.Errorf("window has %d samples, want 4", len(p))
	}
	return GridCell{
		X0: float64(x0), X1: float64(x0 + 1),
		Y0: float64(y0), Y1: float64(y0 + 1),
		V00: p[0], V10: p[1],
		V01: p[2], V11: p[3],
	}, nil
}

// BilinearInterpolate evaluates the cell at (x, y). Points more than
// epsilon outside the cell are an error.
func BilinearInterpolate(cell GridCell, x, y float64) (float64, error) {
	if !(cell.X1 > cell.X0) || !(cell.Y1 > cell.Y0) {
		return 0, fmt.Errorf("degenerate cell [%g, %g] x [%g, %g]", cell.X0, cell.X1, cell.Y0, cell.Y1)
	}
	if x < cell.X0-epsilon || x > cell.X1+epsilon {
		return 0, fmt.Errorf("x %.6f outside cell [%.6f, %.6f]", x, cell.X0, cell.X1)
	}
	if y < cell.Y0-epsilon || y > cell.Y1+epsilon {
		return 0, fmt.Errorf("y %.6f outside cell [%.6f, %.6f]", y, cell.Y0, cell.Y1)
	}

	dx := (x - cell.X0) / (cell.X1 - cell.X0)
	dy := (y - cell.Y0) / (cell.Y1 - cell.Y0)
	return Bilinear(cell.V00, cell.V10, cell.V01, cell.V11, dx, dy), nil
}

// Bilinear blends four neighbors with fractional offsets dx, dy. Offsets are
// clamped to [0, 1].
func Bilinear(p00, p10, p01, p11, dx, dy float64) float64 {
	dx = math.Max(0, math.Min(1, dx))
	dy = math.Max(0, math.Min(1, dy))

	top := p00 + dx*(p10-p00)
	bottom := p01 + dx*(p11-p01)
	return top + dy*(bottom-top)
}

// Neighborhood locates the 2x2 window around a fractional pixel-center
// coordinate (px, py) in a width x height raster. Integer coordinates are
// pixel centers. It returns the top-left pixel of the window and the
// fractional offsets inside it. ok is false when the window does not fit.
//
// A coordinate on the last row or column center uses the preceding window
// with an offset of 1, so that edge pixels stay reachable.
func Neighborhood(px, py float64, width, height int) (x0, y0 int, dx, dy float64, ok bool) {
	if width < 2 || height < 2 || math.IsNaN(px) || math.IsNaN(py) {
		return 0, 0, 0, 0, false
	}
	x0, dx, ok = axisCell(px, width)
	if !ok {
		return 0, 0, 0, 0, false
	}
	y0, dy, ok = axisCell(py, height)
	if !ok {
		return 0, 0, 0, 0, false
	}
	return x0, y0, dx, dy, true
}

func axisCell(p float64, n int) (int, float64, bool) {
	last := float64(n - 1)
	if p < -epsilon || p > last+epsilon {
		return 0, 0, false
	}
	p = math.Max(0, math.Min(last, p))
	i := int(math.Floor(p))
	if i >= n-1 {
		i = n - 2
	}
	return i, p - float64(i), true
}
