package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the raster adapters and the elevation service.
var (
	// ErrOpen reports an unreadable tile or geoid file.
	ErrOpen = errors.New("raster could not be opened")
	// ErrNoTiles reports a DEM directory without a single readable tile.
	ErrNoTiles = errors.New("no readable DEM tiles")
	// ErrMissingProjection reports a geoid raster without a CRS.
	ErrMissingProjection = errors.New("raster has no projection")
	// ErrOutOfCoverage reports a point outside the raster extent or a failed reprojection.
	ErrOutOfCoverage = errors.New("point outside raster coverage")
	// ErrNoData reports a point whose neighborhood contains a no-data sample.
	ErrNoData = errors.New("no data at point")
	// ErrOutOfRange reports an index beyond the registered DEM directories.
	ErrOutOfRange = errors.New("index out of range")
	// ErrServiceClosed reports use of a service after Close.
	ErrServiceClosed = errors.New("elevation service closed")
)

// Reference selects the vertical datum of a height query.
type Reference string

const (
	// ReferenceEllipsoid is height above the WGS84 ellipsoid (DEM + geoid).
	ReferenceEllipsoid Reference = "ellipsoid"
	// ReferenceMSL is height above mean sea level (DEM only).
	ReferenceMSL Reference = "msl"
	// ReferenceGeoid is the geoid undulation alone.
	ReferenceGeoid Reference = "geoid"
	// ReferenceComposite reads the precomputed DEM + geoid band. It covers
	// only the DEM extent and needs both sources.
	ReferenceComposite Reference = "composite"
)

// ParseReference parses a reference name. Empty input selects the ellipsoid.
func ParseReference(s string) (Reference, error) {
	switch Reference(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReferenceEllipsoid:
		return ReferenceEllipsoid, nil
	case ReferenceMSL:
		return ReferenceMSL, nil
	case ReferenceGeoid:
		return ReferenceGeoid, nil
	case ReferenceComposite:
		return ReferenceComposite, nil
	default:
		return "", fmt.Errorf("unknown height reference %q (use ellipsoid, msl, geoid or composite)", s)
	}
}

// ChangeKind identifies a configuration mutation.
type ChangeKind string

const (
	ChangeDemDirectoryAdded ChangeKind = "dem_directory_added"
	ChangeGeoidSet          ChangeKind = "geoid_set"
	ChangeCleared           ChangeKind = "cleared"
	ChangeDefaultHeight     ChangeKind = "default_height"
	ChangeReloaded          ChangeKind = "reloaded"
)

// ChangeEvent describes a completed configuration mutation.
type ChangeEvent struct {
	Kind ChangeKind
	// Path is the DEM directory or geoid file involved, if any.
	Path string
	// OK reports whether the mutation took effect.
	OK bool
	// DefaultHeight is the default height after the mutation.
	DefaultHeight float64
}
