// Package elevation answers height queries from DEM tiles and a geoid model.
//
// Every worker goroutine gets its own Handler holding its own open datasets,
// so raster reads never share state between workers. Configuration changes
// made through the Service reach every Handler that exists and are replayed
// into every Handler created later.
package elevation

import (
	"errors"
	"fmt"
	"sync"

	"go.ngs.io/elevation-api/internal/adapter/geodesy"
	"go.ngs.io/elevation-api/internal/adapter/raster"
	"go.ngs.io/elevation-api/internal/domain"
)

// RasterLibrary opens rasters and builds virtual datasets over them.
// *raster.Library implements it.
type RasterLibrary interface {
	Open(path string) (raster.Dataset, error)
	BuildMosaic(name string, sources []raster.Dataset) (raster.Dataset, error)
	Warp(name string, src raster.Dataset, target raster.Grid, resampling raster.Resampling) (raster.Dataset, error)
	SumBands(name string, a, b raster.Dataset, owned ...raster.Dataset) (raster.Dataset, error)
}

var _ RasterLibrary = (*raster.Library)(nil)

// Handle is an open raster with its georeferencing resolved against WGS84.
type Handle struct {
	path string
	ds   raster.Dataset
	gt   raster.GeoTransform
	crs  geodesy.CRS

	// toRaster maps WGS84 lon/lat into the raster CRS. nil with
	// needsReprojection set means no transform exists and every lookup
	// is out of coverage.
	toRaster          geodesy.Transform
	needsReprojection bool

	closeOnce sync.Once
	closeErr  error
}

// OpenHandle opens the raster at path. The returned handle keeps the
// dataset's own CRS, which may be unset.
func OpenHandle(lib RasterLibrary, path string) (*Handle, error) {
	ds, err := lib.Open(path)
	if err != nil {
		if errors.Is(err, domain.ErrOpen) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrOpen, path, err)
	}
	return newHandle(path, ds, geodesy.CRS{}), nil
}

// newHandle wraps ds. fallback replaces a missing dataset CRS.
func newHandle(path string, ds raster.Dataset, fallback geodesy.CRS) *Handle {
	crs := ds.CRS()
	if crs.IsZero() {
		crs = fallback
	}
	h := &Handle{
		path: path,
		ds:   ds,
		gt:   ds.GeoTransform(),
		crs:  crs,
	}
	if !crs.IsZero() && !crs.Equal(geodesy.WGS84) {
		h.needsReprojection = true
		if t, err := geodesy.CreateTransform(geodesy.WGS84, crs); err == nil {
			h.toRaster = t
		}
	}
	return h
}

// Path returns the file the handle was opened from, empty for virtual rasters.
func (h *Handle) Path() string { return h.path }

// Dataset returns the underlying dataset.
func (h *Handle) Dataset() raster.Dataset { return h.ds }

// CRS returns the effective CRS.
func (h *Handle) CRS() geodesy.CRS { return h.crs }

// NeedsReprojection reports whether lookups pass through a CRS transform.
func (h *Handle) NeedsReprojection() bool { return h.needsReprojection }

// GeoTransform returns the cached geotransform.
func (h *Handle) GeoTransform() raster.GeoTransform { return h.gt }

// Size returns the raster size in pixels.
func (h *Handle) Size() (int, int) { return h.ds.Size() }

// ToPixel converts WGS84 lon/lat to a corner-origin pixel coordinate.
func (h *Handle) ToPixel(lon, lat float64) (float64, float64, error) {
	x, y := lon, lat
	if h.needsReprojection {
		if h.toRaster == nil {
			return 0, 0, fmt.Errorf("%w: no transform to %s", domain.ErrOutOfCoverage, h.crs)
		}
		var err error
		x, y, err = h.toRaster.Apply(lon, lat)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %w", domain.ErrOutOfCoverage, err)
		}
	}
	px, py, err := h.gt.Invert(x, y)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", domain.ErrOutOfCoverage, err)
	}
	return px, py, nil
}

// ReadWindow reads a w x h block of samples starting at pixel (x0, y0)
// along with the no-data value.
func (h *Handle) ReadWindow(x0, y0, w, hgt int) ([]float64, float64, bool, error) {
	samples, err := h.ds.ReadWindow(x0, y0, w, hgt)
	if err != nil {
		return nil, 0, false, err
	}
	nodata, ok := h.ds.NoData()
	return samples, nodata, ok, nil
}

// Close closes the dataset and its transform. Later calls return the
// first result.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.ds.Close()
		if h.toRaster != nil {
			if err := geodesy.Release(h.toRaster); err != nil && h.closeErr == nil {
				h.closeErr = err
			}
		}
	})
	return h.closeErr
}
