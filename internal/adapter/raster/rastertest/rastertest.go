// Package rastertest provides NetCDF fixtures and in-memory datasets for tests.
package rastertest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.ngs.io/elevation-api/internal/adapter/raster"
)

// Option adjusts a fixture grid.
type Option func(*raster.NetCDFGrid)

// WithFill sets the _FillValue attribute.
func WithFill(v float32) Option {
	return func(g *raster.NetCDFGrid) { g.FillValue = &v }
}

// WithCRS sets the global crs attribute.
func WithCRS(def string) Option {
	return func(g *raster.NetCDFGrid) { g.CRS = def }
}

// WithVarName sets the data variable name.
func WithVarName(name string) Option {
	return func(g *raster.NetCDFGrid) { g.VarName = name }
}

// Projected names the axes x/y.
func Projected() Option {
	return func(g *raster.NetCDFGrid) { g.Projected = true }
}

// Axis returns from, from+step, ... up to and including to.
func Axis(from, to, step float64) []float64 {
	n := int(math.Round((to-from)/step)) + 1
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = from + float64(i)*step
	}
	return axis
}

// WriteGrid writes a grid whose values[i][j] sits at (lon[j], lat[i]).
func WriteGrid(t *testing.T, path string, lat, lon []float64, values [][]float32, opts ...Option) string {
	t.Helper()
	//nolint:gosec // G301: Standard test directory permissions.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	flat := make([]float32, 0, len(lat)*len(lon))
	for i := range values {
		flat = append(flat, values[i]...)
	}
	g := raster.NetCDFGrid{X: lon, Y: lat, Values: flat}
	for _, opt := range opts {
		opt(&g)
	}
	if err := raster.WriteNetCDF(path, g); err != nil {
		t.Fatalf("write nc %s: %v", path, err)
	}
	return path
}

// WriteConstant writes a grid with nodes from (minLon, minLat) to
// (maxLon, maxLat) every step degrees, all set to value.
func WriteConstant(t *testing.T, path string, minLon, minLat, maxLon, maxLat, step float64, value float32, opts ...Option) string {
	t.Helper()
	lat := Axis(minLat, maxLat, step)
	lon := Axis(minLon, maxLon, step)
	values := make([][]float32, len(lat))
	for i := range values {
		values[i] = make([]float32, len(lon))
		for j := range values[i] {
			values[i][j] = value
		}
	}
	return WriteGrid(t, path, lat, lon, values, opts...)
}
