package elevation

import (
	"fmt"

	"go.ngs.io/elevation-api/internal/adapter/interp"
	"go.ngs.io/elevation-api/internal/adapter/raster"
	"go.ngs.io/elevation-api/internal/domain"
)

// Sampler reads bilinear values from a Handle.
type Sampler struct {
	h *Handle
}

// NewSampler returns a sampler over h.
func NewSampler(h *Handle) *Sampler {
	return &Sampler{h: h}
}

// Handle returns the sampled handle.
func (s *Sampler) Handle() *Handle { return s.h }

// Value returns the interpolated value at lon/lat, or false when the point
// is outside the raster or touches a no-data sample.
func (s *Sampler) Value(lon, lat float64) (float64, bool) {
	v, err := s.Sample(lon, lat)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Sample is Value with the reason for a missing value:
// domain.ErrOutOfCoverage or domain.ErrNoData.
func (s *Sampler) Sample(lon, lat float64) (float64, error) {
	px, py, err := s.h.ToPixel(lon, lat)
	if err != nil {
		return 0, err
	}
	width, height := s.h.Size()
	// Pixel centers sit at +0.5 in corner-origin space.
	cx, cy := px-0.5, py-0.5
	x0, y0, _, _, ok := interp.Neighborhood(cx, cy, width, height)
	if !ok {
		return 0, fmt.Errorf("%w: (%.6f, %.6f)", domain.ErrOutOfCoverage, lon, lat)
	}
	p, nodata, hasNoData, err := s.h.ReadWindow(x0, y0, 2, 2)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrOutOfCoverage, err)
	}
	for _, v := range p {
		if raster.IsNoData(v, nodata, hasNoData) {
			return 0, fmt.Errorf("%w: (%.6f, %.6f)", domain.ErrNoData, lon, lat)
		}
	}
	cell, err := interp.WindowCell(x0, y0, p)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrOutOfCoverage, err)
	}
	v, err := interp.BilinearInterpolate(cell, cx, cy)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrOutOfCoverage, err)
	}
	return v, nil
}
