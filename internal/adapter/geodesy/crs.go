// Package geodesy identifies coordinate reference systems and converts
// coordinates between them through PROJ.
package geodesy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/twpayne/go-proj/v10"
)

// CRS identifies a coordinate reference system.
// The zero value means "no CRS".
type CRS struct {
	// EPSG is the EPSG code (e.g. 4326).
	EPSG int
	// Wrap360 marks a geographic CRS whose longitude axis runs 0..360.
	Wrap360 bool
	// Def is a PROJ-readable definition for CRSs without an EPSG code.
	Def string
}

var (
	// WGS84 is geographic lon/lat on the WGS84 datum with longitudes in -180..180.
	WGS84 = CRS{EPSG: 4326}
	// WGS84Lon360 is WGS84 with a 0..360 longitude axis (common for global geoid grids).
	WGS84Lon360 = CRS{EPSG: 4326, Wrap360: true}
	// WebMercator is the spherical pseudo-mercator projection (EPSG:3857).
	WebMercator = CRS{EPSG: 3857}
)

// IsZero reports whether no CRS is set.
func (c CRS) IsZero() bool {
	return c.EPSG == 0 && c.Def == ""
}

// Equal reports whether two CRSs describe the same coordinate space.
func (c CRS) Equal(o CRS) bool {
	return c.EPSG == o.EPSG && c.Wrap360 == o.Wrap360 && c.Def == o.Def
}

// Definition returns the string handed to PROJ.
func (c CRS) Definition() string {
	if c.EPSG != 0 {
		return "EPSG:" + strconv.Itoa(c.EPSG)
	}
	return c.Def
}

// Geographic reports whether the CRS uses lon/lat degrees.
func (c CRS) Geographic() bool {
	return c.EPSG == 4326
}

func (c CRS) String() string {
	if c.IsZero() {
		return "none"
	}
	if c.EPSG == 0 {
		return truncate(c.Def, 48)
	}
	s := "EPSG:" + strconv.Itoa(c.EPSG)
	if c.Wrap360 {
		s += " (lon 0..360)"
	}
	return s
}

var (
	authorityRe = regexp.MustCompile(`(?i)AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	idRe        = regexp.MustCompile(`(?i)ID\[\s*"EPSG"\s*,\s*(\d+)\s*\]`)
)

// Parse reads a CRS from an authority code ("EPSG:4326",
// "urn:ogc:def:crs:EPSG::3857"), a common name, or WKT carrying an EPSG
// authority. The outermost authority of WKT is the last one in the text.
// Any other definition PROJ accepts (PROJ strings, WKT without authority)
// is kept verbatim in CRS.Def.
func Parse(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CRS{}, fmt.Errorf("empty CRS definition")
	}

	upper := strings.ToUpper(s)
	switch upper {
	case "WGS84", "WGS 84", "CRS84", "OGC:CRS84":
		return WGS84, nil
	}

	if code, ok := strings.CutPrefix(upper, "EPSG:"); ok {
		return fromCode(code)
	}
	if strings.HasPrefix(upper, "URN:OGC:DEF:CRS:EPSG:") {
		parts := strings.Split(upper, ":")
		return fromCode(parts[len(parts)-1])
	}

	// WKT1 and WKT2.
	for _, re := range []*regexp.Regexp{authorityRe, idRe} {
		if m := re.FindAllStringSubmatch(s, -1); len(m) > 0 {
			return fromCode(m[len(m)-1][1])
		}
	}

	if err := validate(s); err != nil {
		return CRS{}, fmt.Errorf("unrecognized CRS definition %q: %w", truncate(s, 64), err)
	}
	return CRS{Def: s}, nil
}

// validate checks that PROJ can build a CRS from def.
func validate(def string) error {
	ctx := proj.NewContext()
	defer ctx.Destroy()
	pj, err := ctx.New(def)
	if err != nil {
		return err
	}
	pj.Destroy()
	return nil
}

func fromCode(code string) (CRS, error) {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil || n <= 0 {
		return CRS{}, fmt.Errorf("invalid EPSG code %q", code)
	}
	// 900913 is the legacy alias of pseudo-mercator.
	if n == 900913 {
		n = 3857
	}
	return CRS{EPSG: n}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
