package elevation

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go.ngs.io/elevation-api/internal/adapter/scanner"
	"go.ngs.io/elevation-api/internal/domain"
)

// State describes which sources a Handler has loaded.
type State int

const (
	StateEmpty State = iota
	StateDemOnly
	StateGeoidOnly
	StateBoth
)

func (s State) String() string {
	switch s {
	case StateDemOnly:
		return "dem_only"
	case StateGeoidOnly:
		return "geoid_only"
	case StateBoth:
		return "both"
	default:
		return "empty"
	}
}

// Handler is the per-worker set of open rasters. Mutations take the write
// lock and queries the read lock, so a broadcast never races a lookup on
// an attached handler.
type Handler struct {
	id      string
	lib     RasterLibrary
	scanner *scanner.Scanner
	builder *CompositeBuilder
	logger  *zap.Logger

	mu        sync.RWMutex
	tiles     []*Handle
	tilePaths map[string]struct{}
	dem       *Sampler
	geoid     *Sampler
	composite *Sampler
}

// NewHandler returns an empty handler.
func NewHandler(lib RasterLibrary, sc *scanner.Scanner, builder *CompositeBuilder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Handler{
		id:        id,
		lib:       lib,
		scanner:   sc,
		builder:   builder,
		logger:    logger.With(zap.String("handler", id)),
		tilePaths: make(map[string]struct{}),
	}
}

// ID returns the handler's unique id.
func (h *Handler) ID() string { return h.id }

// OpenDemDirectory adds the tiles found below dir to the DEM mosaic. It
// reports whether dir holds tiles in the mosaic afterwards: a directory whose
// tiles are all open already returns true without a rebuild. It returns
// false, leaving the handler unchanged, when no tile below dir is readable.
func (h *Handler) OpenDemDirectory(dir string) bool {
	files, err := h.scanner.ListFiles(dir)
	if err != nil {
		h.logger.Warn("failed to scan DEM directory", zap.String("dir", dir), zap.Error(err))
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	candidates := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := h.tilePaths[filepath.Clean(f)]; !ok {
			candidates = append(candidates, f)
		}
	}
	known := len(files) - len(candidates)
	if len(candidates) == 0 {
		if known == 0 {
			h.logger.Warn("no DEM tiles found", zap.String("dir", dir))
			return false
		}
		h.logger.Debug("DEM tiles already open", zap.String("dir", dir), zap.Int("tiles", known))
		return true
	}

	mosaic, opened, err := h.builder.BuildMosaic(h.tiles, candidates)
	if err != nil {
		h.logger.Warn("failed to open DEM directory", zap.String("dir", dir), zap.Error(err))
		return known > 0
	}

	if h.dem != nil {
		_ = h.dem.Handle().Close()
	}
	for _, t := range opened {
		h.tiles = append(h.tiles, t)
		h.tilePaths[filepath.Clean(t.Path())] = struct{}{}
	}
	h.dem = NewSampler(mosaic)
	h.logger.Info("DEM directory opened",
		zap.String("dir", dir),
		zap.Int("new_tiles", len(opened)),
		zap.Int("tiles", len(h.tiles)))

	h.rebuildCompositeLocked()
	return true
}

// OpenGeoid replaces the geoid model with the raster at path. It returns
// false, leaving the handler unchanged, when the file cannot be opened or
// has no CRS.
func (h *Handler) OpenGeoid(path string) bool {
	g, err := OpenHandle(h.lib, path)
	if err != nil {
		h.logger.Warn("failed to open geoid", zap.String("path", path), zap.Error(err))
		return false
	}
	if g.CRS().IsZero() {
		_ = g.Close()
		h.logger.Warn("failed to open geoid", zap.String("path", path), zap.Error(domain.ErrMissingProjection))
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.geoid != nil {
		h.closeCompositeLocked()
		_ = h.geoid.Handle().Close()
	}
	h.geoid = NewSampler(g)
	h.logger.Info("geoid opened", zap.String("path", path), zap.Stringer("crs", g.CRS()))

	h.rebuildCompositeLocked()
	return true
}

// Clear closes every raster and returns the handler to StateEmpty.
func (h *Handler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clearLocked()
}

func (h *Handler) clearLocked() {
	var errs []error
	h.closeCompositeLocked()
	if h.dem != nil {
		errs = append(errs, h.dem.Handle().Close())
		h.dem = nil
	}
	errs = append(errs, closeAll(h.tiles))
	h.tiles = nil
	h.tilePaths = make(map[string]struct{})
	if h.geoid != nil {
		errs = append(errs, h.geoid.Handle().Close())
		h.geoid = nil
	}
	if err := errors.Join(errs...); err != nil {
		h.logger.Warn("failed to close rasters", zap.Error(err))
	}
}

func (h *Handler) rebuildCompositeLocked() {
	h.closeCompositeLocked()
	if h.dem == nil || h.geoid == nil {
		return
	}
	c, err := h.builder.BuildShiftedComposite(h.dem.Handle(), h.geoid.Handle())
	if err != nil {
		h.logger.Warn("failed to build DEM + geoid composite", zap.Error(err))
		return
	}
	h.composite = NewSampler(c)
}

func (h *Handler) closeCompositeLocked() {
	if h.composite != nil {
		_ = h.composite.Handle().Close()
		h.composite = nil
	}
}

// HeightAboveMSL samples the DEM mosaic.
func (h *Handler) HeightAboveMSL(lon, lat float64) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.dem == nil {
		return 0, false
	}
	return h.dem.Value(lon, lat)
}

// GeoidHeight samples the geoid model.
func (h *Handler) GeoidHeight(lon, lat float64) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.geoid == nil {
		return 0, false
	}
	return h.geoid.Value(lon, lat)
}

// HeightAboveEllipsoid returns DEM + geoid at lon/lat. A missing term
// counts as zero; def is returned when both are missing.
func (h *Handler) HeightAboveEllipsoid(lon, lat, def float64) float64 {
	v, ok := h.heightAboveEllipsoid(lon, lat)
	if !ok {
		return def
	}
	return v
}

func (h *Handler) heightAboveEllipsoid(lon, lat float64) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var msl, n float64
	var okMSL, okN bool
	if h.dem != nil {
		msl, okMSL = h.dem.Value(lon, lat)
	}
	if h.geoid != nil {
		n, okN = h.geoid.Value(lon, lat)
	}
	if !okMSL && !okN {
		return 0, false
	}
	return msl + n, true
}

// CompositeHeight samples the DEM + geoid composite.
func (h *Handler) CompositeHeight(lon, lat float64) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.composite == nil {
		return 0, false
	}
	return h.composite.Value(lon, lat)
}

// State reports which sources are loaded.
func (h *Handler) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch {
	case h.dem != nil && h.geoid != nil:
		return StateBoth
	case h.dem != nil:
		return StateDemOnly
	case h.geoid != nil:
		return StateGeoidOnly
	default:
		return StateEmpty
	}
}

// TileCount returns the number of open DEM tiles.
func (h *Handler) TileCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tiles)
}
