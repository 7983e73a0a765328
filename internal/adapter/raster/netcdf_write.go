package raster

import (
	"fmt"

	"github.com/fhs/go-netcdf/netcdf"
)

// NetCDFGrid describes a grid to write with WriteNetCDF.
type NetCDFGrid struct {
	// X and Y hold node coordinates (lon/lat unless Projected).
	X, Y []float64
	// Values is row-major: Values[i*len(X)+j] is the node at (X[j], Y[i]).
	Values []float32
	// VarName defaults to "elevation".
	VarName string
	Units   string
	// FillValue is written as _FillValue when set.
	FillValue *float32
	// CRS is written as the global "crs" attribute when non-empty.
	CRS string
	// Projected names the axes y/x instead of lat/lon.
	Projected bool
}

// WriteNetCDF writes g to path, replacing any existing file.
func WriteNetCDF(path string, g NetCDFGrid) error {
	if len(g.Values) != len(g.X)*len(g.Y) {
		return fmt.Errorf("got %d values for a %dx%d grid", len(g.Values), len(g.X), len(g.Y))
	}
	varName := g.VarName
	if varName == "" {
		varName = "elevation"
	}
	xName, yName := "lon", "lat"
	if g.Projected {
		xName, yName = "x", "y"
	}

	ncMu.Lock()
	defer ncMu.Unlock()

	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = ds.Close() }()

	yDim, err := ds.AddDim(yName, uint64(len(g.Y)))
	if err != nil {
		return err
	}
	xDim, err := ds.AddDim(xName, uint64(len(g.X)))
	if err != nil {
		return err
	}

	yVar, err := ds.AddVar(yName, netcdf.DOUBLE, []netcdf.Dim{yDim})
	if err != nil {
		return err
	}
	xVar, err := ds.AddVar(xName, netcdf.DOUBLE, []netcdf.Dim{xDim})
	if err != nil {
		return err
	}
	dataVar, err := ds.AddVar(varName, netcdf.FLOAT, []netcdf.Dim{yDim, xDim})
	if err != nil {
		return err
	}

	if g.Units != "" {
		if err := dataVar.Attr("units").WriteBytes([]byte(g.Units)); err != nil {
			return fmt.Errorf("failed to write units: %w", err)
		}
	}
	if g.FillValue != nil {
		if err := dataVar.Attr("_FillValue").WriteFloat32s([]float32{*g.FillValue}); err != nil {
			return fmt.Errorf("failed to write _FillValue: %w", err)
		}
	}
	if g.CRS != "" {
		if err := ds.Attr("crs").WriteBytes([]byte(g.CRS)); err != nil {
			return fmt.Errorf("failed to write crs: %w", err)
		}
	}

	if err := ds.EndDef(); err != nil {
		return fmt.Errorf("enddef: %w", err)
	}
	if err := yVar.WriteFloat64s(g.Y); err != nil {
		return fmt.Errorf("failed to write %s: %w", yName, err)
	}
	if err := xVar.WriteFloat64s(g.X); err != nil {
		return fmt.Errorf("failed to write %s: %w", xName, err)
	}
	if err := dataVar.WriteFloat32s(g.Values); err != nil {
		return fmt.Errorf("failed to write %s: %w", varName, err)
	}
	return nil
}
