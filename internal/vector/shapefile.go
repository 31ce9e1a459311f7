package vector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/haitaton/gis-material-update/internal/geo"
	"github.com/jonas-p/go-shp"
	"github.com/paulsmith/gogeos/geos"
)

func readShapefile(path string, srid int) (*geo.Collection, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer r.Close()

	dec, err := newDBFDecoder(path)
	if err != nil {
		return nil, err
	}

	fields := r.Fields()
	c := geo.NewCollection(srid)
	for _, f := range fields {
		name, err := dec.decode(f.String())
		if err != nil {
			return nil, fmt.Errorf("%s field name: %w", path, err)
		}
		c.Fields = append(c.Fields, geo.Field{Name: name, Type: dbfType(f)})
	}

	for r.Next() {
		n, s := r.Shape()

		g, err := shapeGeometry(s)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", path, n, err)
		}

		props := make(map[string]any, len(fields))
		for k, f := range fields {
			text, err := dec.decode(strings.TrimSpace(r.ReadAttribute(n, k)))
			if err != nil {
				return nil, fmt.Errorf("%s record %d field %s: %w", path, n, c.Fields[k].Name, err)
			}
			props[c.Fields[k].Name] = dbfValue(text, f)
		}
		c.Add(g, props)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile %s: %w", path, err)
	}
	return c, nil
}

func dbfType(f shp.Field) geo.FieldType {
	switch f.Fieldtype {
	case 'N':
		if f.Precision > 0 {
			return geo.FieldReal
		}
		return geo.FieldInteger
	case 'F':
		return geo.FieldReal
	case 'L':
		return geo.FieldBool
	default:
		return geo.FieldText
	}
}

func dbfValue(s string, f shp.Field) any {
	if s == "" {
		return nil
	}
	switch dbfType(f) {
	case geo.FieldInteger:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
	case geo.FieldReal:
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	case geo.FieldBool:
		switch strings.ToUpper(s) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		}
		return nil
	}
	return s
}

// shapeGeometry converts a shapefile record to a GEOS geometry. Z and M
// values are ignored.
func shapeGeometry(s shp.Shape) (*geos.Geometry, error) {
	switch v := s.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Point:
		return geos.NewPoint(geos.NewCoord(v.X, v.Y))
	case *shp.PointZ:
		return geos.NewPoint(geos.NewCoord(v.X, v.Y))
	case *shp.MultiPoint:
		return multiPoint(v.Points)
	case *shp.PolyLine:
		return lineParts(splitParts(v.Parts, v.Points))
	case *shp.PolyLineZ:
		return lineParts(splitParts(v.Parts, v.Points))
	case *shp.Polygon:
		return polygonFromRings(splitParts(v.Parts, v.Points))
	case *shp.PolygonZ:
		return polygonFromRings(splitParts(v.Parts, v.Points))
	default:
		return nil, fmt.Errorf("unsupported shape type %T", s)
	}
}

func splitParts(parts []int32, points []shp.Point) [][]shp.Point {
	out := make([][]shp.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		out = append(out, points[start:end])
	}
	return out
}

func coords(pts []shp.Point) []geos.Coord {
	out := make([]geos.Coord, len(pts))
	for i, p := range pts {
		out[i] = geos.NewCoord(p.X, p.Y)
	}
	return out
}

func multiPoint(pts []shp.Point) (*geos.Geometry, error) {
	points := make([]*geos.Geometry, len(pts))
	for i, p := range pts {
		g, err := geos.NewPoint(geos.NewCoord(p.X, p.Y))
		if err != nil {
			return nil, err
		}
		points[i] = g
	}
	return geos.NewCollection(geos.MULTIPOINT, points...)
}

func lineParts(parts [][]shp.Point) (*geos.Geometry, error) {
	if len(parts) == 1 {
		return geos.NewLineString(coords(parts[0])...)
	}
	lines := make([]*geos.Geometry, len(parts))
	for i, p := range parts {
		g, err := geos.NewLineString(coords(p)...)
		if err != nil {
			return nil, err
		}
		lines[i] = g
	}
	return geos.NewCollection(geos.MULTILINESTRING, lines...)
}

// signedArea is negative for the clockwise outer rings of a shapefile.
func signedArea(ring []shp.Point) float64 {
	var a float64
	for i := 0; i+1 < len(ring); i++ {
		a += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return a / 2
}

// polygonFromRings groups clockwise shells with the counter-clockwise holes
// they contain.
func polygonFromRings(rings [][]shp.Point) (*geos.Geometry, error) {
	type poly struct {
		shell []geos.Coord
		geom  *geos.Geometry
		holes [][]geos.Coord
	}

	var polys []*poly
	var holes [][]shp.Point
	for _, r := range rings {
		if len(r) < 4 {
			continue
		}
		if signedArea(r) <= 0 {
			shell := coords(r)
			g, err := geos.NewPolygon(shell)
			if err != nil {
				return nil, err
			}
			polys = append(polys, &poly{shell: shell, geom: g})
		} else {
			holes = append(holes, r)
		}
	}

	for _, h := range holes {
		pt, err := geos.NewPoint(geos.NewCoord(h[0].X, h[0].Y))
		if err != nil {
			return nil, err
		}
		var owner *poly
		for _, p := range polys {
			ok, err := p.geom.Intersects(pt)
			if err != nil {
				return nil, err
			}
			if ok {
				owner = p
				break
			}
		}
		if owner == nil {
			// An orphan hole is really a shell with reversed winding.
			shell := coords(h)
			g, err := geos.NewPolygon(shell)
			if err != nil {
				return nil, err
			}
			polys = append(polys, &poly{shell: shell, geom: g})
			continue
		}
		owner.holes = append(owner.holes, coords(h))
	}

	if len(polys) == 0 {
		return geos.EmptyPolygon()
	}

	out := make([]*geos.Geometry, len(polys))
	for i, p := range polys {
		if len(p.holes) == 0 {
			out[i] = p.geom
			continue
		}
		g, err := geos.NewPolygon(p.shell, p.holes...)
		if err != nil {
			return nil, err
		}
		out[i] = g
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return geos.NewCollection(geos.MULTIPOLYGON, out...)
}
