package rastertest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"go.ngs.io/elevation-api/internal/adapter/geodesy"
	"go.ngs.io/elevation-api/internal/adapter/raster"
)

// Memory is a raster.Dataset backed by a slice of samples.
type Memory struct {
	name      string
	width     int
	height    int
	gt        raster.GeoTransform
	crs       geodesy.CRS
	nodata    float64
	hasNoData bool
	values    []float64
	closed    atomic.Bool
}

var _ raster.Dataset = (*Memory)(nil)

// NewMemory creates an in-memory dataset. values is row-major, width*height long.
func NewMemory(name string, width, height int, gt raster.GeoTransform, crs geodesy.CRS, values []float64) (*Memory, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	if len(values) != width*height {
		return nil, fmt.Errorf("got %d values for a %dx%d raster", len(values), width, height)
	}
	return &Memory{name: name, width: width, height: height, gt: gt, crs: crs, values: values}, nil
}

// MemoryGrid builds a WGS84 dataset whose pixel centers sit on the nodes
// x, y. values[i][j] is the node at (x[j], y[i]); both axes need at least
// two evenly spaced nodes.
func MemoryGrid(t *testing.T, name string, x, y []float64, values [][]float64) *Memory {
	t.Helper()
	if len(x) < 2 || len(y) < 2 || len(values) != len(y) {
		t.Fatalf("memory grid %s: bad shape", name)
	}
	dx := (x[len(x)-1] - x[0]) / float64(len(x)-1)
	dy := (y[len(y)-1] - y[0]) / float64(len(y)-1)
	gt := raster.GeoTransform{x[0] - dx/2, dx, 0, y[0] - dy/2, 0, dy}

	flat := make([]float64, 0, len(x)*len(y))
	for i, row := range values {
		if len(row) != len(x) {
			t.Fatalf("memory grid %s: row %d has %d values, want %d", name, i, len(row), len(x))
		}
		flat = append(flat, row...)
	}
	m, err := NewMemory(name, len(x), len(y), gt, geodesy.WGS84, flat)
	if err != nil {
		t.Fatalf("memory grid %s: %v", name, err)
	}
	return m
}

// WithNoData sets the no-data sentinel and returns m.
func (m *Memory) WithNoData(v float64) *Memory {
	m.nodata = v
	m.hasNoData = true
	return m
}

func (m *Memory) Name() string                      { return m.name }
func (m *Memory) Size() (int, int)                  { return m.width, m.height }
func (m *Memory) GeoTransform() raster.GeoTransform { return m.gt }
func (m *Memory) CRS() geodesy.CRS                  { return m.crs }
func (m *Memory) NoData() (float64, bool)           { return m.nodata, m.hasNoData }

// ReadWindow copies the requested window.
func (m *Memory) ReadWindow(x0, y0, w, h int) ([]float64, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("%w: %s", raster.ErrClosed, m.name)
	}
	if w <= 0 || h <= 0 || x0 < 0 || y0 < 0 || x0+w > m.width || y0+h > m.height {
		return nil, fmt.Errorf("%w: %s window (%d,%d %dx%d)", raster.ErrWindowOutOfBounds, m.name, x0, y0, w, h)
	}
	out := make([]float64, 0, w*h)
	for row := y0; row < y0+h; row++ {
		start := row*m.width + x0
		out = append(out, m.values[start:start+w]...)
	}
	return out, nil
}

// Close marks the dataset closed.
func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}
