package raster

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/elevation-api/internal/adapter/geodesy"
)

// ncMu serializes calls into libnetcdf, which is not thread-safe.
var ncMu sync.Mutex

// Axis and variable names tried when opening a grid.
var (
	lonNames  = []string{"lon", "longitude"}
	latNames  = []string{"lat", "latitude"}
	xNames    = []string{"x", "easting"}
	yNames    = []string{"y", "northing"}
	dataNames = []string{
		"elevation", "height", "z", "Band1",
		"geoid", "geoid_height", "N", "data",
	}
	noDataAttrs = []string{"_FillValue", "missing_value"}
	crsAttrs    = []string{"crs", "spatial_ref", "srs", "crs_wkt"}
)

// NetCDF is a dataset backed by a 2-D variable in a NetCDF file.
// Coordinate variables give pixel-center positions; the file stays open and
// windows are read as hyperslabs.
type NetCDF struct {
	name      string
	nc        netcdf.Dataset
	data      netcdf.Var
	varType   netcdf.Type
	width     int
	height    int
	lonLat    bool // Data is [x, y] rather than [y, x].
	gt        GeoTransform
	crs       geodesy.CRS
	nodata    float64
	hasNoData bool
	scale     float64
	offset    float64
	closed    bool
}

// OpenNetCDF opens a NetCDF grid.
func OpenNetCDF(path string) (*NetCDF, error) {
	ncMu.Lock()
	defer ncMu.Unlock()

	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}

	ds, err := describe(path, nc)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	return ds, nil
}

//nolint:gocyclo // Axis, variable and attribute probing.
func describe(path string, nc netcdf.Dataset) (*NetCDF, error) {
	geographic := true
	xData, xFound := readAxis(nc, lonNames)
	yData, yFound := readAxis(nc, latNames)
	if !xFound || !yFound {
		geographic = false
		xData, xFound = readAxis(nc, xNames)
		yData, yFound = readAxis(nc, yNames)
	}
	if !xFound {
		return nil, fmt.Errorf("longitude/x variable not found (tried: %v %v)", lonNames, xNames)
	}
	if !yFound {
		return nil, fmt.Errorf("latitude/y variable not found (tried: %v %v)", latNames, yNames)
	}

	var dataVar netcdf.Var
	var dataFound bool
	for _, name := range dataNames {
		if v, err := nc.Var(name); err == nil {
			if dims, err := v.Dims(); err == nil && len(dims) == 2 {
				dataVar = v
				dataFound = true
				break
			}
		}
	}
	if !dataFound {
		return nil, fmt.Errorf("2D data variable not found (tried: %v)", dataNames)
	}

	dims, err := dataVar.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	dim0Len, err := dims[0].Len()
	if err != nil {
		return nil, fmt.Errorf("failed to get dim0 length: %w", err)
	}
	dim1Len, err := dims[1].Len()
	if err != nil {
		return nil, fmt.Errorf("failed to get dim1 length: %w", err)
	}

	nX := len(xData)
	nY := len(yData)

	// Determine dimension ordering.
	var lonLat bool
	switch {
	case dim0Len == uint64(nY) && dim1Len == uint64(nX):
		lonLat = false
	case dim0Len == uint64(nX) && dim1Len == uint64(nY):
		lonLat = true
	default:
		return nil, fmt.Errorf("dimension mismatch: data is [%d, %d], expected [%d, %d] or [%d, %d]",
			dim0Len, dim1Len, nY, nX, nX, nY)
	}

	varType, err := dataVar.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get variable type: %w", err)
	}
	switch varType {
	case netcdf.DOUBLE, netcdf.FLOAT, netcdf.SHORT, netcdf.INT:
	default:
		return nil, fmt.Errorf("unsupported data type: %v (expected DOUBLE, FLOAT, INT, or SHORT)", varType)
	}

	gt, err := nodeGeoTransform(xData, yData)
	if err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}

	crs, err := readCRS(nc, dataVar)
	if err != nil {
		return nil, err
	}
	if crs.IsZero() && geographic {
		crs = geodesy.WGS84
	}
	if crs.Geographic() && geodesy.LonAxisRequiresWrap(xData) {
		crs = geodesy.WGS84Lon360
	}

	ds := &NetCDF{
		name:    path,
		nc:      nc,
		data:    dataVar,
		varType: varType,
		width:   nX,
		height:  nY,
		lonLat:  lonLat,
		gt:      gt,
		crs:     crs,
		scale:   1,
	}

	for _, name := range noDataAttrs {
		if v, ok := readNumericAttr(dataVar.Attr(name)); ok {
			ds.nodata = v
			ds.hasNoData = true
			break
		}
	}
	if v, ok := readNumericAttr(dataVar.Attr("scale_factor")); ok && v != 0 {
		ds.scale = v
	}
	if v, ok := readNumericAttr(dataVar.Attr("add_offset")); ok {
		ds.offset = v
	}

	return ds, nil
}

func (d *NetCDF) Name() string               { return d.name }
func (d *NetCDF) Size() (int, int)           { return d.width, d.height }
func (d *NetCDF) GeoTransform() GeoTransform { return d.gt }
func (d *NetCDF) CRS() geodesy.CRS           { return d.crs }
func (d *NetCDF) NoData() (float64, bool)    { return d.nodata, d.hasNoData }

// ReadWindow reads a hyperslab. No-data samples keep their raw sentinel;
// every other sample has scale_factor and add_offset applied.
func (d *NetCDF) ReadWindow(x0, y0, w, h int) ([]float64, error) {
	if err := checkWindow(d.name, d.width, d.height, x0, y0, w, h); err != nil {
		return nil, err
	}

	ncMu.Lock()
	defer ncMu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%w: %s", ErrClosed, d.name)
	}

	var (
		raw []float64
		err error
	)
	if d.lonLat {
		// Data is [lon, lat] - need to transpose.
		raw, err = readHyperslab(d.data, d.varType, x0, y0, w, h)
		if err == nil {
			raw = transpose(raw, w, h)
		}
	} else {
		raw, err = readHyperslab(d.data, d.varType, y0, x0, h, w)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.name, err)
	}

	for i, v := range raw {
		if IsNoData(v, d.nodata, d.hasNoData) {
			continue
		}
		raw[i] = v*d.scale + d.offset
	}
	return raw, nil
}

// Close closes the underlying file.
func (d *NetCDF) Close() error {
	ncMu.Lock()
	defer ncMu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.nc.Close()
}

// readAxis reads the first 1-D coordinate variable found among names.
func readAxis(nc netcdf.Dataset, names []string) ([]float64, bool) {
	for _, name := range names {
		if v, err := nc.Var(name); err == nil {
			if data, err := readFloat64Var(v); err == nil {
				return data, true
			}
		}
	}
	return nil, false
}

// readFloat64Var reads a 1D float array from a NetCDF variable.
func readFloat64Var(v netcdf.Var) ([]float64, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("expected 1D variable, got %dD", len(dims))
	}

	length, err := dims[0].Len()
	if err != nil {
		return nil, err
	}

	varType, err := v.Type()
	if err != nil {
		return nil, err
	}

	switch varType {
	case netcdf.DOUBLE:
		data := make([]float64, length)
		if err := v.ReadFloat64s(data); err != nil {
			return nil, err
		}
		return data, nil
	case netcdf.FLOAT:
		f32 := make([]float32, length)
		if err := v.ReadFloat32s(f32); err != nil {
			return nil, err
		}
		data := make([]float64, length)
		for i, val := range f32 {
			data[i] = float64(val)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported coordinate type: %v", varType)
	}
}

// readHyperslab reads a [nRows, nCols] block starting at [startRow, startCol]
// as float64, whatever the stored type.
func readHyperslab(v netcdf.Var, varType netcdf.Type, startRow, startCol, nRows, nCols int) ([]float64, error) {
	totalSize := nRows * nCols

	//nolint:gosec // G115: Window bounds are checked before reading.
	start := []uint64{uint64(startRow), uint64(startCol)}
	//nolint:gosec // G115: Window bounds are checked before reading.
	count := []uint64{uint64(nRows), uint64(nCols)}

	flatData := make([]float64, totalSize)
	switch varType {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64Slice(flatData, start, count); err != nil {
			return nil, fmt.Errorf("failed to read float64 subset: %w", err)
		}
	case netcdf.FLOAT:
		float32Data := make([]float32, totalSize)
		if err := v.ReadFloat32Slice(float32Data, start, count); err != nil {
			return nil, fmt.Errorf("failed to read float32 subset: %w", err)
		}
		for i, val := range float32Data {
			flatData[i] = float64(val)
		}
	case netcdf.SHORT:
		int16Data := make([]int16, totalSize)
		if err := v.ReadInt16Slice(int16Data, start, count); err != nil {
			return nil, fmt.Errorf("failed to read int16 subset: %w", err)
		}
		for i, val := range int16Data {
			flatData[i] = float64(val)
		}
	case netcdf.INT:
		int32Data := make([]int32, totalSize)
		if err := v.ReadInt32Slice(int32Data, start, count); err != nil {
			return nil, fmt.Errorf("failed to read int32 subset: %w", err)
		}
		for i, val := range int32Data {
			flatData[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported data type: %v", varType)
	}
	return flatData, nil
}

// readNumericAttr reads the first value of a numeric attribute.
func readNumericAttr(a netcdf.Attr) (float64, bool) {
	n, err := a.Len()
	if err != nil || n == 0 {
		return 0, false
	}
	t, err := a.Type()
	if err != nil {
		return 0, false
	}

	switch t {
	case netcdf.DOUBLE:
		buf := make([]float64, n)
		if a.ReadFloat64s(buf) == nil {
			return buf[0], true
		}
	case netcdf.FLOAT:
		buf := make([]float32, n)
		if a.ReadFloat32s(buf) == nil {
			return float64(buf[0]), true
		}
	case netcdf.SHORT:
		buf := make([]int16, n)
		if a.ReadInt16s(buf) == nil {
			return float64(buf[0]), true
		}
	case netcdf.INT:
		buf := make([]int32, n)
		if a.ReadInt32s(buf) == nil {
			return float64(buf[0]), true
		}
	}
	return 0, false
}

// readTextAttr reads a CHAR attribute.
func readTextAttr(a netcdf.Attr) (string, bool) {
	n, err := a.Len()
	if err != nil || n == 0 {
		return "", false
	}
	if t, err := a.Type(); err != nil || t != netcdf.CHAR {
		return "", false
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", false
	}
	return strings.TrimRight(string(buf), "\x00 "), true
}

// readCRS looks for a CRS definition on the data variable's grid mapping,
// the data variable itself, then the global attributes.
func readCRS(nc netcdf.Dataset, dataVar netcdf.Var) (geodesy.CRS, error) {
	attrs := make([]netcdf.Attr, 0, 3*len(crsAttrs))
	if mapping, ok := readTextAttr(dataVar.Attr("grid_mapping")); ok {
		if mv, err := nc.Var(mapping); err == nil {
			for _, name := range crsAttrs {
				attrs = append(attrs, mv.Attr(name))
			}
		}
	}
	for _, name := range crsAttrs {
		attrs = append(attrs, dataVar.Attr(name))
	}
	for _, name := range crsAttrs {
		attrs = append(attrs, nc.Attr(name))
	}

	for _, a := range attrs {
		def, ok := readTextAttr(a)
		if !ok || def == "" {
			continue
		}
		crs, err := geodesy.Parse(def)
		if err != nil {
			return geodesy.CRS{}, fmt.Errorf("invalid CRS attribute: %w", err)
		}
		return crs, nil
	}
	return geodesy.CRS{}, nil
}

// transpose turns a [cols][rows] block into [rows][cols].
func transpose(data []float64, cols, rows int) []float64 {
	out := make([]float64, len(data))
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			out[r*cols+c] = data[c*rows+r]
		}
	}
	return out
}
