package raster

import (
	"fmt"
	"math"

	"go.ngs.io/elevation-api/internal/adapter/geodesy"
)

// Mosaic is a virtual north-up raster over source tiles sharing one CRS.
// Pixels are fetched from the sources on read (nearest source pixel); where
// sources overlap the later one wins unless its sample is no-data. Closing a
// mosaic does not close its sources.
type Mosaic struct {
	name    string
	sources []Dataset
	width   int
	height  int
	gt      GeoTransform
	crs     geodesy.CRS
	nodata  float64
}

// NewMosaic builds a mosaic at the highest source resolution over the union
// of the source extents.
func NewMosaic(name string, sources []Dataset) (*Mosaic, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("mosaic %s: no sources", name)
	}

	crs := sources[0].CRS()
	resX, resY := math.Inf(1), math.Inf(1)
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	nodata, hasNoData := 0.0, false

	for _, src := range sources {
		if !src.CRS().Equal(crs) {
			return nil, fmt.Errorf("mosaic %s: source %s has CRS %s, expected %s", name, src.Name(), src.CRS(), crs)
		}
		gt := src.GeoTransform()
		if !gt.NorthUp() {
			return nil, fmt.Errorf("mosaic %s: source %s is rotated", name, src.Name())
		}
		w, h := src.Size()
		resX = math.Min(resX, math.Abs(gt[1]))
		resY = math.Min(resY, math.Abs(gt[5]))

		x0, y0 := gt.Apply(0, 0)
		x1, y1 := gt.Apply(float64(w), float64(h))
		minX = math.Min(minX, math.Min(x0, x1))
		maxX = math.Max(maxX, math.Max(x0, x1))
		minY = math.Min(minY, math.Min(y0, y1))
		maxY = math.Max(maxY, math.Max(y0, y1))

		if !hasNoData {
			nodata, hasNoData = src.NoData()
		}
	}
	if !hasNoData {
		nodata = DefaultNoData
	}

	return &Mosaic{
		name:    name,
		sources: append([]Dataset(nil), sources...),
		width:   pixelCount(maxX-minX, resX),
		height:  pixelCount(maxY-minY, resY),
		gt:      GeoTransform{minX, resX, 0, maxY, 0, -resY},
		crs:     crs,
		nodata:  nodata,
	}, nil
}

// pixelCount rounds extent/res up, ignoring floating point noise.
func pixelCount(extent, res float64) int {
	n := int(math.Ceil(extent/res - 1e-6))
	if n < 1 {
		n = 1
	}
	return n
}

func (m *Mosaic) Name() string               { return m.name }
func (m *Mosaic) Size() (int, int)           { return m.width, m.height }
func (m *Mosaic) GeoTransform() GeoTransform { return m.gt }
func (m *Mosaic) CRS() geodesy.CRS           { return m.crs }
func (m *Mosaic) NoData() (float64, bool)    { return m.nodata, true }

// Sources returns the mosaic's tiles in priority order (last wins).
func (m *Mosaic) Sources() []Dataset {
	return append([]Dataset(nil), m.sources...)
}

// ReadWindow composes the window from every source that covers part of it.
func (m *Mosaic) ReadWindow(x0, y0, w, h int) ([]float64, error) {
	if err := checkWindow(m.name, m.width, m.height, x0, y0, w, h); err != nil {
		return nil, err
	}

	out := make([]float64, w*h)
	for i := range out {
		out[i] = m.nodata
	}

	for _, src := range m.sources {
		if err := m.paint(src, out, x0, y0, w, h); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// paint copies the samples of src that fall into the window.
func (m *Mosaic) paint(src Dataset, out []float64, x0, y0, w, h int) error {
	sw, sh := src.Size()
	sgt := src.GeoTransform()

	// North-up grids are separable: source column depends only on the
	// output column, source row only on the output row.
	cols := make([]int, w)
	colMin, colMax := sw, -1
	for i := range cols {
		x, _ := m.gt.Apply(float64(x0+i)+0.5, 0)
		c := int(math.Floor((x - sgt[0]) / sgt[1]))
		if c < 0 || c >= sw {
			c = -1
		} else {
			colMin, colMax = min(colMin, c), max(colMax, c)
		}
		cols[i] = c
	}
	if colMax < 0 {
		return nil
	}

	rows := make([]int, h)
	rowMin, rowMax := sh, -1
	for j := range rows {
		_, y := m.gt.Apply(0, float64(y0+j)+0.5)
		r := int(math.Floor((y - sgt[3]) / sgt[5]))
		if r < 0 || r >= sh {
			r = -1
		} else {
			rowMin, rowMax = min(rowMin, r), max(rowMax, r)
		}
		rows[j] = r
	}
	if rowMax < 0 {
		return nil
	}

	bw := colMax - colMin + 1
	block, err := src.ReadWindow(colMin, rowMin, bw, rowMax-rowMin+1)
	if err != nil {
		return fmt.Errorf("mosaic %s: %w", m.name, err)
	}
	srcNoData, srcHasNoData := src.NoData()

	for j, r := range rows {
		if r < 0 {
			continue
		}
		for i, c := range cols {
			if c < 0 {
				continue
			}
			v := block[(r-rowMin)*bw+(c-colMin)]
			if IsNoData(v, srcNoData, srcHasNoData) {
				continue
			}
			out[j*w+i] = v
		}
	}
	return nil
}

// Close releases nothing: sources belong to the caller.
func (m *Mosaic) Close() error {
	return nil
}
