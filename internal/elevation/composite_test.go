package elevation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/elevation-api/internal/adapter/geodesy"
	"go.ngs.io/elevation-api/internal/adapter/raster"
	"go.ngs.io/elevation-api/internal/adapter/raster/rastertest"
	"go.ngs.io/elevation-api/internal/domain"
)

// countingLibrary serves one-degree memory tiles and records how many opens
// run at once. Paths containing "bad" fail.
type countingLibrary struct {
	*raster.Library

	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func (l *countingLibrary) Open(path string) (raster.Dataset, error) {
	l.mu.Lock()
	l.inFlight++
	l.maxSeen = max(l.maxSeen, l.inFlight)
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.inFlight--
		l.mu.Unlock()
	}()

	time.Sleep(5 * time.Millisecond)
	if strings.Contains(path, "bad") {
		return nil, fmt.Errorf("%w: %s", domain.ErrOpen, path)
	}
	var col int
	if _, err := fmt.Sscanf(path, "tile-%d", &col); err != nil {
		return nil, err
	}
	gt := raster.GeoTransform{float64(col), 0.5, 0, 1, 0, -0.5}
	return rastertest.NewMemory(path, 2, 2, gt, geodesy.WGS84, []float64{1, 1, 1, 1})
}

func TestCompositeBuilder_BoundsConcurrentOpens(t *testing.T) {
	lib := &countingLibrary{Library: raster.NewLibrary()}
	b := NewCompositeBuilder(lib, nil, 3)

	paths := make([]string, 12)
	for i := range paths {
		paths[i] = fmt.Sprintf("tile-%d", i)
	}
	paths[4] = "tile-bad"

	mosaic, opened, err := b.BuildMosaic(nil, paths)
	require.NoError(t, err)
	defer func() { _ = mosaic.Close() }()

	assert.Len(t, opened, len(paths)-1)
	assert.LessOrEqual(t, lib.maxSeen, 3)
	assert.True(t, mosaic.CRS().Equal(geodesy.WGS84))
	w, h := mosaic.Size()
	assert.Equal(t, 24, w)
	assert.Equal(t, 2, h)
}

func TestCompositeBuilder_NoReadableTiles(t *testing.T) {
	lib := &countingLibrary{Library: raster.NewLibrary()}
	b := NewCompositeBuilder(lib, nil, 0)

	_, _, err := b.BuildMosaic(nil, []string{"bad-1", "bad-2"})
	assert.True(t, errors.Is(err, domain.ErrNoTiles), "got %v", err)
}
