package raster

import (
	"fmt"
	"math"

	"go.ngs.io/elevation-api/internal/adapter/geodesy"
	"go.ngs.io/elevation-api/internal/adapter/interp"
)

// Warp is a virtual dataset resampling src onto a target grid. Each target
// pixel center is transformed into the source CRS and sampled on read.
// Closing a warp does not close its source.
type Warp struct {
	name       string
	src        Dataset
	grid       Grid
	toSrc      geodesy.Transform
	resampling Resampling
	nodata     float64
}

// NewWarp creates a warp of src onto target. A target without CRS is taken
// to be WGS84.
func NewWarp(name string, src Dataset, target Grid, resampling Resampling) (*Warp, error) {
	if src.CRS().IsZero() {
		return nil, fmt.Errorf("warp %s: source %s has no CRS", name, src.Name())
	}
	if target.Width <= 0 || target.Height <= 0 {
		return nil, fmt.Errorf("warp %s: invalid target size %dx%d", name, target.Width, target.Height)
	}
	if target.CRS.IsZero() {
		target.CRS = geodesy.WGS84
	}
	toSrc, err := geodesy.CreateTransform(target.CRS, src.CRS())
	if err != nil {
		return nil, fmt.Errorf("warp %s: %w", name, err)
	}
	nodata, ok := src.NoData()
	if !ok {
		nodata = DefaultNoData
	}
	return &Warp{
		name:       name,
		src:        src,
		grid:       target,
		toSrc:      toSrc,
		resampling: resampling,
		nodata:     nodata,
	}, nil
}

func (w *Warp) Name() string               { return w.name }
func (w *Warp) Size() (int, int)           { return w.grid.Width, w.grid.Height }
func (w *Warp) GeoTransform() GeoTransform { return w.grid.GeoTransform }
func (w *Warp) CRS() geodesy.CRS           { return w.grid.CRS }
func (w *Warp) NoData() (float64, bool)    { return w.nodata, true }

// ReadWindow resamples every pixel of the window from the source.
func (w *Warp) ReadWindow(x0, y0, width, height int) ([]float64, error) {
	if err := checkWindow(w.name, w.grid.Width, w.grid.Height, x0, y0, width, height); err != nil {
		return nil, err
	}
	out := make([]float64, width*height)
	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			x, y := w.grid.GeoTransform.Apply(float64(x0+i)+0.5, float64(y0+j)+0.5)
			v, ok, err := w.sample(x, y)
			if err != nil {
				return nil, err
			}
			if !ok {
				v = w.nodata
			}
			out[j*width+i] = v
		}
	}
	return out, nil
}

// sample reads the source at target CRS coordinates (x, y).
func (w *Warp) sample(x, y float64) (float64, bool, error) {
	sx, sy, err := w.toSrc.Apply(x, y)
	if err != nil {
		return 0, false, nil
	}
	px, py, err := w.src.GeoTransform().Invert(sx, sy)
	if err != nil {
		return 0, false, fmt.Errorf("warp %s: %w", w.name, err)
	}
	sw, sh := w.src.Size()
	srcNoData, srcHasNoData := w.src.NoData()

	if w.resampling == Nearest {
		c, r := int(math.Floor(px)), int(math.Floor(py))
		if c < 0 || r < 0 || c >= sw || r >= sh {
			return 0, false, nil
		}
		v, err := w.src.ReadWindow(c, r, 1, 1)
		if err != nil {
			return 0, false, fmt.Errorf("warp %s: %w", w.name, err)
		}
		if IsNoData(v[0], srcNoData, srcHasNoData) {
			return 0, false, nil
		}
		return v[0], true, nil
	}

	return SampleBilinear(w.src, px, py)
}

// SampleBilinear interpolates ds at the corner-origin pixel coordinate
// (px, py). ok is false outside the raster or when a neighbor is no-data.
func SampleBilinear(ds Dataset, px, py float64) (float64, bool, error) {
	width, height := ds.Size()
	// Pixel centers sit at +0.5 in corner-origin space.
	cx, cy := px-0.5, py-0.5
	x0, y0, _, _, ok := interp.Neighborhood(cx, cy, width, height)
	if !ok {
		return 0, false, nil
	}
	p, err := ds.ReadWindow(x0, y0, 2, 2)
	if err != nil {
		return 0, false, err
	}
	nodata, hasNoData := ds.NoData()
	for _, v := range p {
		if IsNoData(v, nodata, hasNoData) {
			return 0, false, nil
		}
	}
	cell, err := interp.WindowCell(x0, y0, p)
	if err != nil {
		return 0, false, err
	}
	v, err := interp.BilinearInterpolate(cell, cx, cy)
	if err != nil {
		return 0, false, nil
	}
	return v, true, nil
}

// Close releases the coordinate transform. The source belongs to the caller.
func (w *Warp) Close() error {
	return geodesy.Release(w.toSrc)
}
