package geodesy

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/twpayne/go-proj/v10"
)

// ErrUnsupportedCRS is returned when no transform exists between two CRSs.
var ErrUnsupportedCRS = errors.New("unsupported CRS")

// maxMercatorLat is the latitude limit of the square web mercator world.
const maxMercatorLat = 85.05112877980659

// Transform converts coordinates from one CRS to another.
type Transform interface {
	// Apply converts (x, y) in the source CRS to the target CRS.
	// Geographic coordinates are ordered lon, lat.
	Apply(x, y float64) (float64, float64, error)
}

type identity struct{}

func (identity) Apply(x, y float64) (float64, float64, error) {
	return x, y, nil
}

// lonWrap moves longitudes between the -180..180 and 0..360 forms of the
// same geographic CRS.
type lonWrap struct {
	to360 bool
}

func (w lonWrap) Apply(lon, lat float64) (float64, float64, error) {
	if w.to360 {
		return NormalizeLon360(lon), lat, nil
	}
	return NormalizeLon180(lon), lat, nil
}

// projTransform runs a PROJ pipeline. A PJ object is not safe for
// concurrent use, so calls are serialized.
type projTransform struct {
	mu  sync.Mutex
	ctx *proj.Context
	pj  *proj.PJ

	srcWrap360  bool
	dstWrap360  bool
	mercatorDst bool
}

func (t *projTransform) Apply(x, y float64) (float64, float64, error) {
	if t.srcWrap360 {
		x = NormalizeLon180(x)
	}
	if t.mercatorDst && math.Abs(y) > maxMercatorLat {
		return 0, 0, fmt.Errorf("latitude %.6f outside web mercator range", y)
	}

	t.mu.Lock()
	if t.pj == nil {
		t.mu.Unlock()
		return 0, 0, fmt.Errorf("transform closed")
	}
	out, err := t.pj.Forward(proj.NewCoord(x, y, 0, 0))
	t.mu.Unlock()
	if err != nil {
		return 0, 0, fmt.Errorf("transform (%.6f, %.6f): %w", x, y, err)
	}

	ox, oy := out.X(), out.Y()
	if math.IsNaN(ox) || math.IsNaN(oy) || math.IsInf(ox, 0) || math.IsInf(oy, 0) {
		return 0, 0, fmt.Errorf("transform (%.6f, %.6f): no finite result", x, y)
	}
	if t.dstWrap360 {
		ox = NormalizeLon360(ox)
	}
	return ox, oy, nil
}

// Close releases the PROJ objects. Apply fails afterwards.
func (t *projTransform) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pj != nil {
		t.pj.Destroy()
		t.ctx.Destroy()
		t.pj, t.ctx = nil, nil
	}
	return nil
}

// CreateTransform returns a transform from src to dst. Geographic axes are
// always lon, lat regardless of the CRS's authority axis order. Transforms
// backed by PROJ implement io.Closer.
func CreateTransform(src, dst CRS) (Transform, error) {
	if src.IsZero() || dst.IsZero() {
		return nil, fmt.Errorf("%w: transform needs both CRSs (src %s, dst %s)", ErrUnsupportedCRS, src, dst)
	}
	if src.Equal(dst) {
		return identity{}, nil
	}
	if src.Geographic() && dst.Geographic() {
		return lonWrap{to360: dst.Wrap360}, nil
	}

	ctx := proj.NewContext()
	pj, err := ctx.NewCRSToCRS(src.Definition(), dst.Definition(), nil)
	if err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("%w: %s to %s: %w", ErrUnsupportedCRS, src, dst, err)
	}
	normalized, err := pj.NormalizeForVisualization()
	pj.Destroy()
	if err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("%w: %s to %s: %w", ErrUnsupportedCRS, src, dst, err)
	}

	return &projTransform{
		ctx:         ctx,
		pj:          normalized,
		srcWrap360:  src.Wrap360,
		dstWrap360:  dst.Wrap360,
		mercatorDst: src.Geographic() && dst.EPSG == WebMercator.EPSG,
	}, nil
}

// Release closes t if it holds native resources.
func Release(t Transform) error {
	if c, ok := t.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NormalizeLon360 maps arbitrary degree longitudes into the [0, 360) range.
func NormalizeLon360(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}

// NormalizeLon180 maps arbitrary degree longitudes into the [-180, 180) range.
func NormalizeLon180(lon float64) float64 {
	lon = NormalizeLon360(lon)
	if lon >= 180 {
		lon -= 360
	}
	return lon
}

// LonAxisRequiresWrap reports whether a longitude axis is laid out on 0..360.
func LonAxisRequiresWrap(lons []float64) bool {
	if len(lons) == 0 {
		return false
	}
	minVal := lons[0]
	maxVal := lons[len(lons)-1]
	if minVal > maxVal {
		minVal, maxVal = maxVal, minVal
	}
	return minVal >= 0 && maxVal > 180
}
