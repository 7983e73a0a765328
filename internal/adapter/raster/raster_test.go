package raster_test

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"go.ngs.io/elevation-api/internal/adapter/geodesy"
	"go.ngs.io/elevation-api/internal/adapter/raster"
	"go.ngs.io/elevation-api/internal/adapter/raster/rastertest"
	"go.ngs.io/elevation-api/internal/domain"
)

func assertValues(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("value %d: expected %.6f, got %.6f", i, want[i], got[i])
		}
	}
}

func TestOpenNetCDF_GridAndWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.nc")
	rastertest.WriteGrid(t, path,
		[]float64{0, 0.5, 1},
		[]float64{10, 10.5, 11},
		[][]float32{
			{1, 2, 3},
			{4, 5, 6},
			{7, 8, 9},
		},
		rastertest.WithFill(-9999),
	)

	ds, err := raster.OpenNetCDF(path)
	if err != nil {
		t.Fatalf("OpenNetCDF: %v", err)
	}
	defer func() { _ = ds.Close() }()

	w, h := ds.Size()
	if w != 3 || h != 3 {
		t.Fatalf("expected 3x3, got %dx%d", w, h)
	}
	want := raster.GeoTransform{9.75, 0.5, 0, -0.25, 0, 0.5}
	if ds.GeoTransform() != want {
		t.Errorf("geotransform = %v, want %v", ds.GeoTransform(), want)
	}
	if !ds.CRS().Equal(geodesy.WGS84) {
		t.Errorf("expected WGS84 from lat/lon axes, got %v", ds.CRS())
	}
	if nd, ok := ds.NoData(); !ok || nd != -9999 {
		t.Errorf("expected no-data -9999, got %v (%v)", nd, ok)
	}

	got, err := ds.ReadWindow(1, 1, 2, 2)
	if err != nil {
		t.Fatalf("ReadWindow: %v", err)
	}
	assertValues(t, got, []float64{5, 6, 8, 9})

	if _, err := ds.ReadWindow(2, 2, 2, 2); !errors.Is(err, raster.ErrWindowOutOfBounds) {
		t.Errorf("expected ErrWindowOutOfBounds, got %v", err)
	}
}

func TestOpenNetCDF_CRSDetection(t *testing.T) {
	dir := t.TempDir()
	values := [][]float32{{1, 2}, {3, 4}}

	tests := []struct {
		name string
		lat  []float64
		lon  []float64
		opts []rastertest.Option
		want geodesy.CRS
	}{
		{name: "geographic axes", lat: []float64{0, 1}, lon: []float64{0, 1}, want: geodesy.WGS84},
		{name: "wrapped longitude", lat: []float64{30, 31}, lon: []float64{230, 231}, want: geodesy.WGS84Lon360},
		{name: "projected without crs", lat: []float64{0, 1}, lon: []float64{0, 1}, opts: []rastertest.Option{rastertest.Projected()}},
		{
			name: "projected with crs",
			lat:  []float64{0, 1000},
			lon:  []float64{0, 1000},
			opts: []rastertest.Option{rastertest.Projected(), rastertest.WithCRS("EPSG:3857")},
			want: geodesy.WebMercator,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := rastertest.WriteGrid(t, filepath.Join(dir, tt.name+".nc"), tt.lat, tt.lon, values, tt.opts...)
			ds, err := raster.OpenNetCDF(path)
			if err != nil {
				t.Fatalf("OpenNetCDF: %v", err)
			}
			defer func() { _ = ds.Close() }()
			if !ds.CRS().Equal(tt.want) {
				t.Errorf("CRS = %v, want %v", ds.CRS(), tt.want)
			}
		})
	}
}

func TestNetCDF_CloseIsIdempotent(t *testing.T) {
	path := rastertest.WriteConstant(t, filepath.Join(t.TempDir(), "c.nc"), 0, 0, 1, 1, 0.5, 7)
	ds, err := raster.OpenNetCDF(path)
	if err != nil {
		t.Fatalf("OpenNetCDF: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := ds.ReadWindow(0, 0, 1, 1); !errors.Is(err, raster.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestLibrary_OpenErrors(t *testing.T) {
	lib := raster.NewLibrary()
	dir := t.TempDir()

	_, err := lib.Open(filepath.Join(dir, "tile.tif"))
	if !errors.Is(err, domain.ErrOpen) || !errors.Is(err, raster.ErrUnsupportedFormat) {
		t.Errorf("expected ErrOpen+ErrUnsupportedFormat, got %v", err)
	}

	_, err = lib.Open(filepath.Join(dir, "missing.nc"))
	if !errors.Is(err, domain.ErrOpen) {
		t.Errorf("expected ErrOpen for missing file, got %v", err)
	}
}

func TestMosaic_AdjacentTiles(t *testing.T) {
	a := rastertest.MemoryGrid(t, "a", []float64{0, 1}, []float64{0, 1}, [][]float64{{1, 2}, {3, 4}})
	b := rastertest.MemoryGrid(t, "b", []float64{2, 3}, []float64{0, 1}, [][]float64{{5, 6}, {7, 8}})

	m, err := raster.NewMosaic("mosaic", []raster.Dataset{a, b})
	if err != nil {
		t.Fatalf("NewMosaic: %v", err)
	}
	w, h := m.Size()
	if w != 4 || h != 2 {
		t.Fatalf("expected 4x2 mosaic, got %dx%d", w, h)
	}
	want := raster.GeoTransform{-0.5, 1, 0, 1.5, 0, -1}
	if m.GeoTransform() != want {
		t.Errorf("geotransform = %v, want %v", m.GeoTransform(), want)
	}

	got, err := m.ReadWindow(0, 0, 4, 2)
	if err != nil {
		t.Fatalf("ReadWindow: %v", err)
	}
	// Row 0 is the northern row (lat 1).
	assertValues(t, got, []float64{3, 4, 7, 8, 1, 2, 5, 6})
}

func TestMosaic_LaterSourceWinsExceptNoData(t *testing.T) {
	a := rastertest.MemoryGrid(t, "a", []float64{0, 1}, []float64{0, 1}, [][]float64{{1, 2}, {3, 4}})
	c := rastertest.MemoryGrid(t, "c", []float64{0, 1}, []float64{0, 1}, [][]float64{{100, -1}, {100, 100}}).WithNoData(-1)

	m, err := raster.NewMosaic("overlap", []raster.Dataset{a, c})
	if err != nil {
		t.Fatalf("NewMosaic: %v", err)
	}
	got, err := m.ReadWindow(0, 0, 2, 2)
	if err != nil {
		t.Fatalf("ReadWindow: %v", err)
	}
	assertValues(t, got, []float64{100, 100, 100, 2})
}

func TestMosaic_GapIsNoData(t *testing.T) {
	a := rastertest.MemoryGrid(t, "a", []float64{0, 1}, []float64{0, 1}, [][]float64{{1, 1}, {1, 1}})
	b := rastertest.MemoryGrid(t, "b", []float64{3, 4}, []float64{0, 1}, [][]float64{{2, 2}, {2, 2}})

	m, err := raster.NewMosaic("gap", []raster.Dataset{a, b})
	if err != nil {
		t.Fatalf("NewMosaic: %v", err)
	}
	nodata, ok := m.NoData()
	if !ok || nodata != raster.DefaultNoData {
		t.Fatalf("expected default no-data, got %v (%v)", nodata, ok)
	}
	got, err := m.ReadWindow(2, 0, 1, 1)
	if err != nil {
		t.Fatalf("ReadWindow: %v", err)
	}
	if got[0] != raster.DefaultNoData {
		t.Errorf("expected gap pixel to be no-data, got %f", got[0])
	}
}

func TestMosaic_RejectsMixedCRS(t *testing.T) {
	a := rastertest.MemoryGrid(t, "a", []float64{0, 1}, []float64{0, 1}, [][]float64{{1, 1}, {1, 1}})
	b, err := rastertest.NewMemory("b", 2, 2, raster.GeoTransform{0, 1, 0, 0, 0, 1}, geodesy.WebMercator, []float64{1, 1, 1, 1})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if _, err := raster.NewMosaic("mixed", []raster.Dataset{a, b}); err == nil {
		t.Error("expected error for mixed CRS")
	}
}

func TestWarp_BilinearReproducesField(t *testing.T) {
	// Bilinear resampling is exact for a field of this form.
	field := func(x, y float64) float64 { return x*10 + 3*y - x*y }
	xs := []float64{0, 1, 2, 3, 4}
	ys := []float64{0, 1, 2, 3, 4}
	values := make([][]float64, len(ys))
	for i := range values {
		values[i] = make([]float64, len(xs))
		for j := range values[i] {
			values[i][j] = field(xs[j], ys[i])
		}
	}
	src := rastertest.MemoryGrid(t, "geoid", xs, ys, values)

	target := raster.Grid{
		Width: 4, Height: 4,
		GeoTransform: raster.GeoTransform{0.25, 0.5, 0, 3.25, 0, -0.5},
		CRS:          geodesy.WGS84,
	}
	w, err := raster.NewWarp("warp", src, target, raster.Bilinear)
	if err != nil {
		t.Fatalf("NewWarp: %v", err)
	}

	got, err := w.ReadWindow(0, 0, 4, 4)
	if err != nil {
		t.Fatalf("ReadWindow: %v", err)
	}
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			x, y := target.GeoTransform.Apply(float64(i)+0.5, float64(j)+0.5)
			want := field(x, y)
			if math.Abs(got[j*4+i]-want) > 1e-9 {
				t.Errorf("pixel (%d,%d): expected %.6f, got %.6f", i, j, want, got[j*4+i])
			}
		}
	}
}

func TestWarp_OutsideSourceIsNoData(t *testing.T) {
	src := rastertest.MemoryGrid(t, "geoid", []float64{0, 1}, []float64{0, 1}, [][]float64{{1, 1}, {1, 1}})
	target := raster.Grid{
		Width: 1, Height: 1,
		GeoTransform: raster.GeoTransform{49.5, 1, 0, 50.5, 0, -1},
	}
	w, err := raster.NewWarp("warp", src, target, raster.Bilinear)
	if err != nil {
		t.Fatalf("NewWarp: %v", err)
	}
	if !w.CRS().Equal(geodesy.WGS84) {
		t.Errorf("target without CRS should default to WGS84, got %v", w.CRS())
	}
	got, err := w.ReadWindow(0, 0, 1, 1)
	if err != nil {
		t.Fatalf("ReadWindow: %v", err)
	}
	nodata, _ := w.NoData()
	if got[0] != nodata {
		t.Errorf("expected no-data, got %f", got[0])
	}
}

func TestWarp_RequiresSourceCRS(t *testing.T) {
	src, err := rastertest.NewMemory("nocrs", 2, 2, raster.GeoTransform{0, 1, 0, 0, 0, 1}, geodesy.CRS{}, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if _, err := raster.NewWarp("warp", src, raster.GridOf(src), raster.Bilinear); err == nil {
		t.Error("expected error for source without CRS")
	}
}

func TestSum_AddsAndPropagatesNoData(t *testing.T) {
	a := rastertest.MemoryGrid(t, "a", []float64{0, 1}, []float64{0, 1}, [][]float64{{100, 200}, {300, 400}})
	b := rastertest.MemoryGrid(t, "b", []float64{0, 1}, []float64{0, 1}, [][]float64{{-20, -9999}, {-20, -20}}).WithNoData(-9999)

	lib := raster.NewLibrary()
	s, err := lib.SumBands("sum", a, b)
	if err != nil {
		t.Fatalf("SumBands: %v", err)
	}
	got, err := s.ReadWindow(0, 0, 2, 2)
	if err != nil {
		t.Fatalf("ReadWindow: %v", err)
	}
	assertValues(t, got, []float64{80, raster.DefaultNoData, 280, 380})
}

func TestSum_RejectsMismatchedGrids(t *testing.T) {
	a := rastertest.MemoryGrid(t, "a", []float64{0, 1}, []float64{0, 1}, [][]float64{{1, 1}, {1, 1}})
	b := rastertest.MemoryGrid(t, "b", []float64{0, 1, 2}, []float64{0, 1}, [][]float64{{1, 1, 1}, {1, 1, 1}})
	if _, err := raster.NewSum("sum", a, b); err == nil {
		t.Error("expected size mismatch error")
	}
}

func TestSampleBilinear(t *testing.T) {
	m := rastertest.MemoryGrid(t, "m", []float64{0, 1}, []float64{0, 1}, [][]float64{{0, 10}, {20, 30}})

	// Corner-origin pixel (1, 1) is the center of the 2x2 cell.
	v, ok, err := raster.SampleBilinear(m, 1, 1)
	if err != nil || !ok {
		t.Fatalf("SampleBilinear: %v %v", ok, err)
	}
	if math.Abs(v-15) > 1e-9 {
		t.Errorf("expected 15, got %f", v)
	}

	if _, ok, _ := raster.SampleBilinear(m, 0.1, 1); ok {
		t.Error("expected no value left of the first pixel center")
	}
}
