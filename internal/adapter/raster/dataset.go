// Package raster provides georeferenced raster datasets for elevation
// lookups: NetCDF grids opened from disk and virtual datasets (mosaics, warps, derived sum bands) that are evaluated on read.
package raster

import (
	"errors"
	"fmt"
	"math"

	"go.ngs.io/elevation-api/internal/adapter/geodesy"
)

// DefaultNoData is the sentinel used by virtual datasets whose sources do
// not define one (the SRTM void value).
const DefaultNoData = -32768.0

var (
	// ErrWindowOutOfBounds is returned when a read window leaves the raster.
	ErrWindowOutOfBounds = errors.New("read window outside raster")
	// ErrClosed is returned when reading a closed dataset.
	ErrClosed = errors.New("dataset closed")
	// ErrUnsupportedFormat is returned for files no driver can open.
	ErrUnsupportedFormat = errors.New("unsupported raster format")
)

// Dataset is a single-band georeferenced raster.
type Dataset interface {
	// Name identifies the dataset (file path or virtual name).
	Name() string
	// Size returns the raster dimensions in pixels.
	Size() (width, height int)
	// GeoTransform maps pixel corners to CRS coordinates.
	GeoTransform() GeoTransform
	// CRS returns the dataset CRS; the zero value means none is defined.
	CRS() geodesy.CRS
	// NoData returns the no-data sentinel, if the dataset defines one.
	NoData() (float64, bool)
	// ReadWindow returns w*h samples in row-major order starting at pixel (x0, y0).
	ReadWindow(x0, y0, w, h int) ([]float64, error)
	// Close releases the dataset. Closing twice is a no-op.
	Close() error
}

// GeoTransform is a GDAL-style affine transform:
//
//	X = gt[0] + px*gt[1] + py*gt[2]
//	Y = gt[3] + px*gt[4] + py*gt[5]
//
// where (px, py) is measured from the top-left corner of pixel (0, 0).
type GeoTransform [6]float64

// Apply converts a pixel-space coordinate to CRS coordinates.
func (gt GeoTransform) Apply(px, py float64) (float64, float64) {
	return gt[0] + px*gt[1] + py*gt[2], gt[3] + px*gt[4] + py*gt[5]
}

// Invert converts CRS coordinates to a fractional pixel-space coordinate.
func (gt GeoTransform) Invert(x, y float64) (float64, float64, error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 || math.IsNaN(det) {
		return 0, 0, fmt.Errorf("geotransform %v is not invertible", [6]float64(gt))
	}
	dx := x - gt[0]
	dy := y - gt[3]
	px := (gt[5]*dx - gt[2]*dy) / det
	py := (-gt[4]*dx + gt[1]*dy) / det
	return px, py, nil
}

// NorthUp reports whether the transform has no rotation terms.
func (gt GeoTransform) NorthUp() bool {
	return gt[2] == 0 && gt[4] == 0
}

// Grid describes the pixel grid of a dataset.
type Grid struct {
	Width, Height int
	GeoTransform  GeoTransform
	CRS           geodesy.CRS
}

// GridOf returns the grid of ds.
func GridOf(ds Dataset) Grid {
	w, h := ds.Size()
	return Grid{Width: w, Height: h, GeoTransform: ds.GeoTransform(), CRS: ds.CRS()}
}

// Resampling selects how a warp reads between source pixels.
type Resampling int

const (
	// Bilinear blends the four source pixels around a point.
	Bilinear Resampling = iota
	// Nearest takes the source pixel containing a point.
	Nearest
)

func (r Resampling) String() string {
	switch r {
	case Bilinear:
		return "bilinear"
	case Nearest:
		return "nearest"
	default:
		return fmt.Sprintf("resampling(%d)", int(r))
	}
}

// IsNoData reports whether v is a no-data sample. NaN always is.
func IsNoData(v, nodata float64, hasNoData bool) bool {
	if math.IsNaN(v) {
		return true
	}
	return hasNoData && v == nodata
}

func checkWindow(name string, width, height, x0, y0, w, h int) error {
	if w <= 0 || h <= 0 || x0 < 0 || y0 < 0 || x0+w > width || y0+h > height {
		return fmt.Errorf("%w: %s window (%d,%d %dx%d) in %dx%d raster",
			ErrWindowOutOfBounds, name, x0, y0, w, h, width, height)
	}
	return nil
}

// nodeGeoTransform derives a corner-origin transform from regular node axes.
func nodeGeoTransform(xs, ys []float64) (GeoTransform, error) {
	dx, err := axisStep(xs)
	if err != nil {
		return GeoTransform{}, fmt.Errorf("x axis: %w", err)
	}
	dy, err := axisStep(ys)
	if err != nil {
		return GeoTransform{}, fmt.Errorf("y axis: %w", err)
	}
	return GeoTransform{xs[0] - dx/2, dx, 0, ys[0] - dy/2, 0, dy}, nil
}

// axisStep returns the spacing of a regular axis.
func axisStep(axis []float64) (float64, error) {
	n := len(axis)
	if n < 2 {
		return 0, fmt.Errorf("axis must have at least 2 coordinates")
	}
	step := (axis[n-1] - axis[0]) / float64(n-1)
	if step == 0 {
		return 0, fmt.Errorf("axis has zero extent")
	}
	tolerance := 1e-3 * abs(step)
	for i, v := range axis {
		if abs(v-(axis[0]+float64(i)*step)) > tolerance {
			return 0, fmt.Errorf("axis is not regularly spaced at index %d", i)
		}
	}
	return step, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
