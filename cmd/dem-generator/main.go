// Command dem-generator writes synthetic DEM tiles and a geoid grid as
// NetCDF files for local development and tests.
package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go.ngs.io/elevation-api/internal/adapter/raster"
	"go.ngs.io/elevation-api/internal/logger"
)

// RegionalGrid defines the geographic bounds and resolution.
type RegionalGrid struct {
	LatMin     float64
	LatMax     float64
	LonMin     float64
	LonMax     float64
	Resolution float64 // degrees
}

var (
	outDir     string
	region     string
	latMin     float64
	latMax     float64
	lonMin     float64
	lonMax     float64
	resolution float64
	tileSize   float64
	geoidOut   string
	fillHoles  bool
)

var rootCmd = &cobra.Command{
	Use:          "dem-generator",
	Short:        "Generate synthetic DEM tiles and a geoid grid",
	SilenceUsage: true,
	RunE:         run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&outDir, "out", "./data/dem", "Output directory for DEM tiles")
	f.StringVar(&region, "region", "alps", "Region: alps, global, or custom")
	f.Float64Var(&latMin, "lat-min", 45.0, "Minimum latitude (custom region)")
	f.Float64Var(&latMax, "lat-max", 48.0, "Maximum latitude (custom region)")
	f.Float64Var(&lonMin, "lon-min", 6.0, "Minimum longitude (custom region)")
	f.Float64Var(&lonMax, "lon-max", 10.0, "Maximum longitude (custom region)")
	f.Float64Var(&resolution, "resolution", 1.0/120, "Grid resolution in degrees")
	f.Float64Var(&tileSize, "tile-size", 1.0, "Tile size in degrees")
	f.StringVar(&geoidOut, "geoid", "./data/geoid/geoid.nc", "Geoid output file (empty to skip)")
	f.BoolVar(&fillHoles, "holes", false, "Punch no-data holes into the tiles")
}

func run(cmd *cobra.Command, args []string) error {
	logg, err := logger.New(&logger.Config{Level: "info", Format: "console"})
	if err != nil {
		return err
	}
	defer func() { _ = logg.Sync() }()

	var grid RegionalGrid
	switch region {
	case "alps":
		grid = RegionalGrid{LatMin: 45, LatMax: 48, LonMin: 6, LonMax: 10, Resolution: resolution}
	case "global":
		// Lower resolution for global
		grid = RegionalGrid{LatMin: -60, LatMax: 60, LonMin: -180, LonMax: 180, Resolution: 0.25}
	case "custom":
		grid = RegionalGrid{LatMin: latMin, LatMax: latMax, LonMin: lonMin, LonMax: lonMax, Resolution: resolution}
	default:
		return fmt.Errorf("unknown region: %s (use alps, global, or custom)", region)
	}
	if grid.Resolution <= 0 || tileSize < grid.Resolution {
		return fmt.Errorf("invalid resolution %.6f for tile size %.6f", grid.Resolution, tileSize)
	}

	//nolint:gosec // G301: Standard output directory permissions.
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tiles := 0
	for lat := grid.LatMin; lat < grid.LatMax; lat += tileSize {
		for lon := grid.LonMin; lon < grid.LonMax; lon += tileSize {
			path := filepath.Join(outDir, tileName(lat, lon))
			if err := writeTile(path, lat, lon, tileSize, grid.Resolution); err != nil {
				logg.Warn("failed to generate tile", zap.String("path", path), zap.Error(err))
				continue
			}
			tiles++
		}
	}
	logg.Info("DEM tiles generated", zap.String("dir", outDir), zap.Int("tiles", tiles))

	if geoidOut != "" {
		if err := writeGeoid(geoidOut); err != nil {
			return fmt.Errorf("generate geoid: %w", err)
		}
		logg.Info("geoid generated", zap.String("path", geoidOut))
	}
	return nil
}

// tileName follows the SRTM naming scheme, e.g. N45E006.nc.
func tileName(lat, lon float64) string {
	ns, ew := 'N', 'E'
	if lat < 0 {
		ns = 'S'
	}
	if lon < 0 {
		ew = 'W'
	}
	return fmt.Sprintf("%c%02d%c%03d.nc", ns, int(math.Abs(math.Floor(lat))), ew, int(math.Abs(math.Floor(lon))))
}

// terrain is a smooth synthetic elevation field in meters.
func terrain(lat, lon float64) float64 {
	h := 1200 +
		800*math.Sin(lat*math.Pi/1.5)*math.Cos(lon*math.Pi/2.0) +
		300*math.Sin((lat+lon)*math.Pi/0.7) +
		150*math.Cos(lat*lon*math.Pi/40.0)
	return math.Max(h, 0)
}

// writeTile writes one tile whose pixel centers sit half a cell inside its
// bounds, so neighboring tiles abut without overlap.
func writeTile(path string, lat0, lon0, size, res float64) error {
	n := int(math.Round(size / res))
	lat := make([]float64, n)
	lon := make([]float64, n)
	for i := 0; i < n; i++ {
		lat[i] = lat0 + (float64(i)+0.5)*res
		lon[i] = lon0 + (float64(i)+0.5)*res
	}

	fill := float32(raster.DefaultNoData)
	values := make([]float32, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := float32(terrain(lat[i], lon[j]))
			if fillHoles && (i*n+j)%997 == 0 {
				v = fill
			}
			values[i*n+j] = v
		}
	}

	return raster.WriteNetCDF(path, raster.NetCDFGrid{
		X:         lon,
		Y:         lat,
		Values:    values,
		VarName:   "elevation",
		Units:     "m",
		FillValue: &fill,
		CRS:       "EPSG:4326",
	})
}

// writeGeoid writes a global 0.5 degree undulation grid on a 0..360
// longitude axis, the layout most published geoid models use.
func writeGeoid(path string) error {
	//nolint:gosec // G301: Standard output directory permissions.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	const res = 0.5
	nLat := int(180/res) + 1
	nLon := int(360 / res)

	lat := make([]float64, nLat)
	for i := range lat {
		lat[i] = -90 + float64(i)*res
	}
	lon := make([]float64, nLon)
	for j := range lon {
		lon[j] = float64(j) * res
	}

	values := make([]float32, nLat*nLon)
	for i := range lat {
		for j := range lon {
			phi := lat[i] * math.Pi / 180
			lambda := lon[j] * math.Pi / 180
			values[i*nLon+j] = float32(30*math.Sin(2*phi)*math.Cos(lambda) +
				20*math.Cos(phi)*math.Sin(3*lambda) -
				10*math.Sin(phi))
		}
	}

	return raster.WriteNetCDF(path, raster.NetCDFGrid{
		X:       lon,
		Y:       lat,
		Values:  values,
		VarName: "geoid",
		Units:   "m",
	})
}
