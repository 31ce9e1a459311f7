package geo

import (
	"fmt"
	"runtime"

	"github.com/paulsmith/gogeos/geos"
)

// CoordFunc maps one planar coordinate to another.
type CoordFunc func(x, y float64) (float64, float64, error)

// Transform rebuilds g with fn applied to every vertex. The result is
// always two-dimensional and linear rings come back as line strings.
func Transform(g *geos.Geometry, fn CoordFunc) (*geos.Geometry, error) {
	t, err := g.Type()
	if err != nil {
		return nil, err
	}
	empty, err := g.IsEmpty()
	if err != nil {
		return nil, err
	}
	if empty {
		return emptyOf(t)
	}

	switch t {
	case geos.POINT:
		cs, err := mapCoords(g, fn)
		if err != nil {
			return nil, err
		}
		return geos.NewPoint(cs...)
	case geos.LINESTRING, geos.LINEARRING:
		cs, err := mapCoords(g, fn)
		if err != nil {
			return nil, err
		}
		return geos.NewLineString(cs...)
	case geos.POLYGON:
		return transformPolygon(g, fn)
	case geos.MULTIPOINT, geos.MULTILINESTRING, geos.MULTIPOLYGON, geos.GEOMETRYCOLLECTION:
	default:
		return nil, fmt.Errorf("unsupported geometry type %d", t)
	}

	n, err := g.NGeometry()
	if err != nil {
		return nil, err
	}
	parts := make([]*geos.Geometry, 0, n)
	for i := 0; i < n; i++ {
		child, err := g.Geometry(i)
		if err != nil {
			return nil, err
		}
		part, err := Transform(child, fn)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	runtime.KeepAlive(g)
	return geos.NewCollection(t, parts...)
}

// Force2D drops Z and M values.
func Force2D(g *geos.Geometry) (*geos.Geometry, error) {
	return Transform(g, func(x, y float64) (float64, float64, error) { return x, y, nil })
}

func transformPolygon(g *geos.Geometry, fn CoordFunc) (*geos.Geometry, error) {
	shell, err := g.Shell()
	if err != nil {
		return nil, err
	}
	outer, err := mapCoords(shell, fn)
	if err != nil {
		return nil, err
	}
	rings, err := g.Holes()
	if err != nil {
		return nil, err
	}
	holes := make([][]geos.Coord, len(rings))
	for i, r := range rings {
		if holes[i], err = mapCoords(r, fn); err != nil {
			return nil, err
		}
	}
	runtime.KeepAlive(g)
	return geos.NewPolygon(outer, holes...)
}

func mapCoords(g *geos.Geometry, fn CoordFunc) ([]geos.Coord, error) {
	coords, err := g.Coords()
	if err != nil {
		return nil, err
	}
	out := make([]geos.Coord, len(coords))
	for i, c := range coords {
		x, y, err := fn(c.X, c.Y)
		if err != nil {
			return nil, err
		}
		out[i] = geos.NewCoord(x, y)
	}
	return out, nil
}

func emptyOf(t geos.GeometryType) (*geos.Geometry, error) {
	switch t {
	case geos.POINT:
		return geos.EmptyPoint()
	case geos.LINESTRING, geos.LINEARRING:
		return geos.EmptyLineString()
	case geos.POLYGON:
		return geos.EmptyPolygon()
	default:
		return geos.EmptyCollection(t)
	}
}
