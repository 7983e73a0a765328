package raster

import (
	"errors"
	"fmt"

	"go.ngs.io/elevation-api/internal/adapter/geodesy"
)

// Sum is a virtual band computed as a + b on read. Both inputs must share
// one grid. A no-data sample in either input yields no-data.
type Sum struct {
	name   string
	a, b   Dataset
	nodata float64
	owned  []Dataset
}

// NewSum creates a sum band over a and b.
func NewSum(name string, a, b Dataset) (*Sum, error) {
	aw, ah := a.Size()
	bw, bh := b.Size()
	if aw != bw || ah != bh {
		return nil, fmt.Errorf("sum %s: size mismatch %dx%d vs %dx%d", name, aw, ah, bw, bh)
	}
	if a.GeoTransform() != b.GeoTransform() {
		return nil, fmt.Errorf("sum %s: geotransform mismatch", name)
	}
	nodata, ok := a.NoData()
	if !ok {
		nodata = DefaultNoData
	}
	return &Sum{name: name, a: a, b: b, nodata: nodata}, nil
}

// Own makes Close also close ds (e.g. an intermediate warp).
func (s *Sum) Own(ds ...Dataset) *Sum {
	s.owned = append(s.owned, ds...)
	return s
}

func (s *Sum) Name() string               { return s.name }
func (s *Sum) Size() (int, int)           { return s.a.Size() }
func (s *Sum) GeoTransform() GeoTransform { return s.a.GeoTransform() }
func (s *Sum) CRS() geodesy.CRS           { return s.a.CRS() }
func (s *Sum) NoData() (float64, bool)    { return s.nodata, true }

// ReadWindow reads both inputs and adds them sample by sample.
func (s *Sum) ReadWindow(x0, y0, w, h int) ([]float64, error) {
	av, err := s.a.ReadWindow(x0, y0, w, h)
	if err != nil {
		return nil, fmt.Errorf("sum %s: %w", s.name, err)
	}
	bv, err := s.b.ReadWindow(x0, y0, w, h)
	if err != nil {
		return nil, fmt.Errorf("sum %s: %w", s.name, err)
	}
	aNoData, aHas := s.a.NoData()
	bNoData, bHas := s.b.NoData()

	out := make([]float64, len(av))
	for i := range av {
		if IsNoData(av[i], aNoData, aHas) || IsNoData(bv[i], bNoData, bHas) {
			out[i] = s.nodata
			continue
		}
		out[i] = av[i] + bv[i]
	}
	return out, nil
}

// Close closes owned intermediates; the inputs belong to the caller.
func (s *Sum) Close() error {
	var errs []error
	for _, ds := range s.owned {
		if err := ds.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.owned = nil
	return errors.Join(errs...)
}
