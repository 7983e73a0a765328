package elevation

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"go.ngs.io/elevation-api/internal/adapter/raster"
	"go.ngs.io/elevation-api/internal/adapter/scanner"
	"go.ngs.io/elevation-api/internal/domain"
)

// Options configures a Service.
type Options struct {
	// Library opens rasters. Defaults to raster.NewLibrary().
	Library RasterLibrary
	Logger  *zap.Logger
	// TilePatterns select DEM tiles inside registered directories.
	// Defaults to scanner.DefaultPatterns.
	TilePatterns []string
	// DefaultHeight is returned for ellipsoid heights where no source has data.
	DefaultHeight float64
	// OpenConcurrency bounds concurrent tile opens per handler.
	OpenConcurrency int
}

// Service is the elevation lookup facade shared by all workers.
type Service struct {
	logger *zap.Logger
	pool   *Pool
	closed atomic.Bool

	// cfgMu guards the persisted configuration. It is never held while
	// taking the pool mutex.
	cfgMu         sync.RWMutex
	demDirs       []string
	geoidPath     string
	defaultHeight float64

	obsMu     sync.Mutex
	observers []observerEntry
	nextObsID uint64
}

// New creates a service with no sources.
func New(opts Options) (*Service, error) {
	lib := opts.Library
	if lib == nil {
		lib = raster.NewLibrary()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sc, err := scanner.New(opts.TilePatterns...)
	if err != nil {
		return nil, fmt.Errorf("tile patterns: %w", err)
	}
	builder := NewCompositeBuilder(lib, logger, opts.OpenConcurrency)

	s := &Service{
		logger:        logger,
		defaultHeight: opts.DefaultHeight,
	}
	s.pool = NewPool(func() *Handler {
		h := NewHandler(lib, sc, builder, logger)
		logger.Debug("handler created", zap.String("handler", h.ID()))
		return h
	}, s.replayInto)
	return s, nil
}

// replayInto applies the persisted configuration to h: DEM directories in
// registration order, then the geoid.
func (s *Service) replayInto(h *Handler) {
	s.cfgMu.RLock()
	dirs := slices.Clone(s.demDirs)
	geoid := s.geoidPath
	s.cfgMu.RUnlock()

	for _, dir := range dirs {
		h.OpenDemDirectory(dir)
	}
	if geoid != "" {
		h.OpenGeoid(geoid)
	}
}

// AddDemDirectory registers a directory of DEM tiles with every handler.
// A directory already registered returns true at once. A directory in which
// no handler found a readable tile is not remembered, so registering it
// again retries. Paths are compared in their cleaned form.
func (s *Service) AddDemDirectory(dir string) bool {
	if s.closed.Load() || dir == "" {
		return false
	}
	dir = filepath.Clean(dir)
	s.cfgMu.RLock()
	known := slices.Contains(s.demDirs, dir)
	s.cfgMu.RUnlock()
	if known {
		return true
	}

	ok := false
	s.pool.Broadcast(
		func(h *Handler) bool { return h.OpenDemDirectory(dir) },
		func(anyOK bool) {
			s.cfgMu.Lock()
			defer s.cfgMu.Unlock()
			if slices.Contains(s.demDirs, dir) {
				ok = true
				return
			}
			if anyOK {
				s.demDirs = append(s.demDirs, dir)
				ok = true
			}
		})

	s.logger.Info("DEM directory registration", zap.String("dir", dir), zap.Bool("ok", ok))
	s.notify(domain.ChangeEvent{Kind: domain.ChangeDemDirectoryAdded, Path: dir, OK: ok})
	return ok
}

// SetGeoid replaces the geoid model in every handler.
func (s *Service) SetGeoid(path string) bool {
	if s.closed.Load() {
		return false
	}
	ok := s.pool.Broadcast(
		func(h *Handler) bool { return h.OpenGeoid(path) },
		func(anyOK bool) {
			if !anyOK {
				return
			}
			s.cfgMu.Lock()
			s.geoidPath = path
			s.cfgMu.Unlock()
		})

	s.logger.Info("geoid registration", zap.String("path", path), zap.Bool("ok", ok))
	s.notify(domain.ChangeEvent{Kind: domain.ChangeGeoidSet, Path: path, OK: ok})
	return ok
}

// ClearAll closes every source and resets the default height to 0.
func (s *Service) ClearAll() {
	if s.closed.Load() {
		return
	}
	s.pool.Broadcast(
		func(h *Handler) bool {
			h.Clear()
			return true
		},
		func(bool) {
			s.cfgMu.Lock()
			s.demDirs = nil
			s.geoidPath = ""
			s.defaultHeight = 0
			s.cfgMu.Unlock()
		})

	s.logger.Info("elevation sources cleared")
	s.notify(domain.ChangeEvent{Kind: domain.ChangeCleared, OK: true})
}

// Reload closes and reopens every source from the registered configuration.
func (s *Service) Reload() {
	if s.closed.Load() {
		return
	}
	s.pool.Broadcast(func(h *Handler) bool {
		h.Clear()
		s.replayInto(h)
		return true
	}, nil)

	s.logger.Info("elevation sources reloaded", zap.Int("handlers", s.pool.Len()))
	s.notify(domain.ChangeEvent{Kind: domain.ChangeReloaded, OK: true})
}

// SetDefaultHeight sets the ellipsoid height used where no source has data.
func (s *Service) SetDefaultHeight(height float64) {
	s.cfgMu.Lock()
	s.defaultHeight = height
	s.cfgMu.Unlock()
	s.notify(domain.ChangeEvent{Kind: domain.ChangeDefaultHeight, OK: true})
}

// DefaultHeight returns the current default height.
func (s *Service) DefaultHeight() float64 {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.defaultHeight
}

// GetDemSourceCount returns the number of registered DEM directories.
func (s *Service) GetDemSourceCount() int {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return len(s.demDirs)
}

// GetDemDirectory returns the i-th registered DEM directory.
func (s *Service) GetDemDirectory(i int) (string, error) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	if i < 0 || i >= len(s.demDirs) {
		return "", fmt.Errorf("%w: DEM directory %d of %d", domain.ErrOutOfRange, i, len(s.demDirs))
	}
	return s.demDirs[i], nil
}

// GetDemDirectories returns a copy of the registered DEM directories.
func (s *Service) GetDemDirectories() []string {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return slices.Clone(s.demDirs)
}

// GetGeoidPath returns the registered geoid file, empty if none.
func (s *Service) GetGeoidPath() string {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.geoidPath
}

// GetHeightAboveEllipsoid returns DEM + geoid height, or the default height
// where neither source has data.
func (s *Service) GetHeightAboveEllipsoid(lon, lat float64) float64 {
	w, err := s.Attach()
	if err != nil {
		return s.DefaultHeight()
	}
	defer w.Detach()
	return w.HeightAboveEllipsoid(lon, lat)
}

// GetHeightAboveMSL returns the DEM height, 0 where there is none.
func (s *Service) GetHeightAboveMSL(lon, lat float64) float64 {
	w, err := s.Attach()
	if err != nil {
		return 0
	}
	defer w.Detach()
	return w.HeightAboveMSL(lon, lat)
}

// GetGeoidHeight returns the geoid undulation, 0 where there is none.
func (s *Service) GetGeoidHeight(lon, lat float64) float64 {
	w, err := s.Attach()
	if err != nil {
		return 0
	}
	defer w.Detach()
	return w.GeoidHeight(lon, lat)
}

// Height looks up one reference at lon/lat. found is false when the value
// is a fallback.
func (s *Service) Height(ref domain.Reference, lon, lat float64) (float64, bool) {
	w, err := s.Attach()
	if err != nil {
		if ref == domain.ReferenceEllipsoid {
			return s.DefaultHeight(), false
		}
		return 0, false
	}
	defer w.Detach()
	return w.Height(ref, lon, lat)
}

// HandlerCount returns the number of handlers created so far.
func (s *Service) HandlerCount() int { return s.pool.Len() }

// Attach binds a handler to the calling worker until Detach.
func (s *Service) Attach() (*Worker, error) {
	if s.closed.Load() {
		return nil, domain.ErrServiceClosed
	}
	lease, err := s.pool.Acquire()
	if err != nil {
		return nil, err
	}
	return &Worker{svc: s, lease: lease}, nil
}

// Close clears every handler. The service answers later queries with
// fallback values.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.pool.Close()
	s.logger.Info("elevation service closed")
	return nil
}

// Worker is a handler attached to one goroutine. It is not safe for
// concurrent use.
type Worker struct {
	svc   *Service
	lease *Lease
}

// Handler returns the attached handler.
func (w *Worker) Handler() *Handler { return w.lease.Handler() }

// HeightAboveEllipsoid is Service.GetHeightAboveEllipsoid on this worker's handler.
func (w *Worker) HeightAboveEllipsoid(lon, lat float64) float64 {
	return w.lease.Handler().HeightAboveEllipsoid(lon, lat, w.svc.DefaultHeight())
}

// HeightAboveMSL is Service.GetHeightAboveMSL on this worker's handler.
func (w *Worker) HeightAboveMSL(lon, lat float64) float64 {
	v, _ := w.lease.Handler().HeightAboveMSL(lon, lat)
	return v
}

// GeoidHeight is Service.GetGeoidHeight on this worker's handler.
func (w *Worker) GeoidHeight(lon, lat float64) float64 {
	v, _ := w.lease.Handler().GeoidHeight(lon, lat)
	return v
}

// CompositeHeight samples the precomputed DEM + geoid band.
func (w *Worker) CompositeHeight(lon, lat float64) (float64, bool) {
	return w.lease.Handler().CompositeHeight(lon, lat)
}

// Height is Service.Height on this worker's handler.
func (w *Worker) Height(ref domain.Reference, lon, lat float64) (float64, bool) {
	h := w.lease.Handler()
	switch ref {
	case domain.ReferenceMSL:
		return h.HeightAboveMSL(lon, lat)
	case domain.ReferenceGeoid:
		return h.GeoidHeight(lon, lat)
	case domain.ReferenceComposite:
		return h.CompositeHeight(lon, lat)
	default:
		if v, ok := h.heightAboveEllipsoid(lon, lat); ok {
			return v, true
		}
		return w.svc.DefaultHeight(), false
	}
}

// Detach releases the handler back to the pool.
func (w *Worker) Detach() {
	w.lease.Release()
}

var (
	defaultMu  sync.Mutex
	defaultSvc *Service
)

// Default returns the process-wide service, creating it on first use.
func Default() *Service {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSvc == nil {
		// Default options always produce valid tile patterns.
		defaultSvc, _ = New(Options{Logger: zap.L()})
	}
	return defaultSvc
}

// Shutdown closes the process-wide service. A later Default starts afresh.
func Shutdown() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSvc == nil {
		return nil
	}
	err := defaultSvc.Close()
	defaultSvc = nil
	return err
}
