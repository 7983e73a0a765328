package elevation

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go.ngs.io/elevation-api/internal/adapter/geodesy"
	"go.ngs.io/elevation-api/internal/adapter/raster"
	"go.ngs.io/elevation-api/internal/domain"
)

// CompositeBuilder assembles the virtual rasters a Handler samples: the DEM
// mosaic and the DEM + geoid composite.
type CompositeBuilder struct {
	lib       RasterLibrary
	logger    *zap.Logger
	openLimit int
}

// NewCompositeBuilder returns a builder opening at most openLimit tiles at
// once. openLimit <= 0 selects GOMAXPROCS.
func NewCompositeBuilder(lib RasterLibrary, logger *zap.Logger, openLimit int) *CompositeBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if openLimit <= 0 {
		openLimit = runtime.GOMAXPROCS(0)
	}
	return &CompositeBuilder{lib: lib, logger: logger, openLimit: openLimit}
}

// BuildMosaic opens tilePaths and mosaics them after existing. Unreadable
// tiles are skipped. It returns the mosaic and the newly opened tiles, or
// domain.ErrNoTiles when none of tilePaths could be opened.
func (b *CompositeBuilder) BuildMosaic(existing []*Handle, tilePaths []string) (*Handle, []*Handle, error) {
	opened := make([]*Handle, len(tilePaths))

	// The NetCDF driver serializes on its own lock, so with *raster.Library
	// only the CRS setup of each tile overlaps. Libraries with thread-safe
	// drivers open up to openLimit tiles in parallel.
	var g errgroup.Group
	g.SetLimit(b.openLimit)
	for i, path := range tilePaths {
		g.Go(func() error {
			h, err := OpenHandle(b.lib, path)
			if err != nil {
				b.logger.Warn("skipping unreadable DEM tile", zap.String("path", path), zap.Error(err))
				return nil
			}
			opened[i] = h
			return nil
		})
	}
	_ = g.Wait()

	tiles := opened[:0]
	for _, h := range opened {
		if h != nil {
			tiles = append(tiles, h)
		}
	}
	if len(tiles) == 0 {
		return nil, nil, fmt.Errorf("%w among %d candidate files", domain.ErrNoTiles, len(tilePaths))
	}

	sources := make([]raster.Dataset, 0, len(existing)+len(tiles))
	for _, h := range existing {
		sources = append(sources, h.Dataset())
	}
	for _, h := range tiles {
		sources = append(sources, h.Dataset())
	}

	mosaic, err := b.lib.BuildMosaic(virtualName("dem-mosaic"), sources)
	if err != nil {
		closeAll(tiles)
		return nil, nil, fmt.Errorf("build DEM mosaic: %w", err)
	}
	// Tiles without a CRS are WGS84 lon/lat.
	return newHandle("", mosaic, geodesy.WGS84), tiles, nil
}

// BuildShiftedComposite warps geoid onto the DEM grid and returns a virtual
// band holding DEM + geoid.
func (b *CompositeBuilder) BuildShiftedComposite(dem, geoid *Handle) (*Handle, error) {
	target := raster.GridOf(dem.Dataset())
	if target.CRS.IsZero() {
		target.CRS = dem.CRS()
	}
	warped, err := b.lib.Warp(virtualName("geoid-warp"), geoid.Dataset(), target, raster.Bilinear)
	if err != nil {
		return nil, fmt.Errorf("warp geoid onto DEM grid: %w", err)
	}
	sum, err := b.lib.SumBands(virtualName("dem-plus-geoid"), dem.Dataset(), warped, warped)
	if err != nil {
		_ = warped.Close()
		return nil, fmt.Errorf("build composite band: %w", err)
	}
	return newHandle("", sum, dem.CRS()), nil
}

func virtualName(kind string) string {
	return kind + "-" + uuid.NewString()
}

func closeAll(handles []*Handle) error {
	var errs []error
	for _, h := range handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
