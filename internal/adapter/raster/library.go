package raster

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.ngs.io/elevation-api/internal/domain"
)

// Library opens raster files and builds virtual datasets over them.
type Library struct {
	extensions map[string]bool
}

// NewLibrary returns a library that opens NetCDF grids.
func NewLibrary() *Library {
	return &Library{
		extensions: map[string]bool{
			".nc":  true,
			".nc4": true,
			".cdf": true,
			".grd": true,
		},
	}
}

// Open opens the raster at path. Failures wrap domain.ErrOpen.
func (l *Library) Open(path string) (Dataset, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !l.extensions[ext] {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrOpen, path, ErrUnsupportedFormat)
	}
	ds, err := OpenNetCDF(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrOpen, path, err)
	}
	return ds, nil
}

// BuildMosaic returns a virtual mosaic over sources.
func (l *Library) BuildMosaic(name string, sources []Dataset) (Dataset, error) {
	return NewMosaic(name, sources)
}

// Warp returns src resampled onto target.
func (l *Library) Warp(name string, src Dataset, target Grid, resampling Resampling) (Dataset, error) {
	return NewWarp(name, src, target, resampling)
}

// SumBands returns a virtual a + b band. The returned dataset closes any
// datasets passed in owned when it is closed.
func (l *Library) SumBands(name string, a, b Dataset, owned ...Dataset) (Dataset, error) {
	s, err := NewSum(name, a, b)
	if err != nil {
		return nil, err
	}
	return s.Own(owned...), nil
}
