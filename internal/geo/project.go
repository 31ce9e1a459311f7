package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulsmith/gogeos/geos"
	"github.com/pebbe/proj/v5"
)

// WGS84 is the CRS of GTFS coordinates.
const WGS84 = 4326

// projDefs holds the PROJ definitions of the supported EPSG codes.
var projDefs = map[int]string{
	WGS84: "+proj=longlat +ellps=WGS84",
	3067:  "+proj=utm +zone=35 +ellps=GRS80 +units=m",
	3879:  "+proj=tmerc +lat_0=0 +lon_0=25 +k=1 +x_0=25500000 +y_0=0 +ellps=GRS80 +units=m",
}

func geographic(srid int) bool {
	return srid == WGS84
}

// ParseCRS parses an "EPSG:<code>" string.
func ParseCRS(s string) (int, error) {
	code, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(s)), "EPSG:")
	if !ok {
		return 0, fmt.Errorf("invalid crs %q: want EPSG:<code>", s)
	}
	srid, err := strconv.Atoi(code)
	if err != nil {
		return 0, fmt.Errorf("invalid crs %q: %w", s, err)
	}
	return srid, nil
}

// Supported reports whether srid can be transformed.
func Supported(srid int) bool {
	_, ok := projDefs[srid]
	return ok
}

// Transformer converts coordinates between two CRSs. It is not safe for
// concurrent use.
type Transformer struct {
	from, to int
	ctx      *proj.Context
	pj       *proj.PJ
}

// NewTransformer builds a PROJ pipeline from one EPSG code to another.
func NewTransformer(from, to int) (*Transformer, error) {
	t := &Transformer{from: from, to: to}
	if from == to {
		return t, nil
	}

	src, ok := projDefs[from]
	if !ok {
		return nil, fmt.Errorf("unsupported crs EPSG:%d", from)
	}
	dst, ok := projDefs[to]
	if !ok {
		return nil, fmt.Errorf("unsupported crs EPSG:%d", to)
	}

	t.ctx = proj.NewContext()
	pj, err := t.ctx.Create("+proj=pipeline +step +inv " + src + " +step " + dst)
	if err != nil {
		t.ctx.Close()
		return nil, fmt.Errorf("create pipeline EPSG:%d -> EPSG:%d: %w", from, to, err)
	}
	t.pj = pj
	return t, nil
}

// Close releases the PROJ resources.
func (t *Transformer) Close() {
	if t.pj != nil {
		t.pj.Close()
	}
	if t.ctx != nil {
		t.ctx.Close()
	}
}

// Point transforms one coordinate. Geographic coordinates are in degrees.
func (t *Transformer) Point(x, y float64) (float64, float64, error) {
	if t.pj == nil {
		return x, y, nil
	}
	if geographic(t.from) {
		x, y = proj.DegToRad(x), proj.DegToRad(y)
	}
	u, v, _, _, err := t.pj.Trans(proj.Fwd, x, y, 0, 0)
	if err != nil {
		return 0, 0, err
	}
	if geographic(t.to) {
		u, v = proj.RadToDeg(u), proj.RadToDeg(v)
	}
	return u, v, nil
}

// Geometry transforms every vertex of g.
func (t *Transformer) Geometry(g *geos.Geometry) (*geos.Geometry, error) {
	return Transform(g, t.Point)
}

// Reproject returns the collection transformed to the CRS srid.
func (c *Collection) Reproject(srid int) (*Collection, error) {
	t, err := NewTransformer(c.SRID, srid)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	out, err := c.MapGeometry(t.Geometry)
	if err != nil {
		return nil, fmt.Errorf("reproject EPSG:%d -> EPSG:%d: %w", c.SRID, srid, err)
	}
	out.SRID = srid
	return out, nil
}
