package geo

import (
	"fmt"
	"strings"

	"github.com/paulsmith/gogeos/geos"
)

// Empty returns an empty geometry collection.
func Empty() *geos.Geometry {
	g, err := geos.EmptyCollection(geos.GEOMETRYCOLLECTION)
	if err != nil {
		panic(fmt.Sprintf("geos: empty collection: %v", err))
	}
	return g
}

// Buffer returns a collection of polygons at distance d around each geometry.
func (c *Collection) Buffer(d float64) (*Collection, error) {
	return c.MapGeometry(func(g *geos.Geometry) (*geos.Geometry, error) {
		return g.Buffer(d)
	})
}

// Force2D drops Z and M values from every geometry.
func (c *Collection) Force2D() (*Collection, error) {
	return c.MapGeometry(Force2D)
}

// DropEmpty removes features with a nil or empty geometry.
func (c *Collection) DropEmpty() *Collection {
	return c.Filter(func(f Feature) bool {
		if f.Geometry == nil {
			return false
		}
		empty, err := f.Geometry.IsEmpty()
		return err == nil && !empty
	})
}

// ClipTo intersects every geometry with mask. Features whose intersection is
// empty are dropped and polygonal inputs keep only polygonal output parts.
func (c *Collection) ClipTo(mask *geos.Geometry) (*Collection, error) {
	return c.MapGeometry(func(g *geos.Geometry) (*geos.Geometry, error) {
		return Clip(g, mask)
	})
}

// Clip intersects g with mask. Returns nil when nothing remains.
func Clip(g, mask *geos.Geometry) (*geos.Geometry, error) {
	out, err := g.Intersection(mask)
	if err != nil {
		return nil, err
	}
	empty, err := out.IsEmpty()
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	polygonal, err := isPolygonal(g)
	if err != nil || !polygonal {
		return out, err
	}
	return polygonalPart(out)
}

// FilterIntersecting keeps features whose geometry intersects mask.
func (c *Collection) FilterIntersecting(mask *geos.Geometry) (*Collection, error) {
	var firstErr error
	out := c.Filter(func(f Feature) bool {
		ok, err := f.Geometry.Intersects(mask)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return ok
	})
	return out, firstErr
}

// UnionAll returns the union of every geometry in the collection.
func (c *Collection) UnionAll() (*geos.Geometry, error) {
	geoms := make([]*geos.Geometry, 0, len(c.Features))
	for _, f := range c.Features {
		geoms = append(geoms, f.Geometry)
	}
	return Union(geoms)
}

// Union merges geoms pairwise, level by level, so each union works on
// geometries of similar size.
func Union(geoms []*geos.Geometry) (*geos.Geometry, error) {
	if len(geoms) == 0 {
		return Empty(), nil
	}
	level := geoms
	for len(level) > 1 {
		next := make([]*geos.Geometry, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			u, err := level[i].Union(level[i+1])
			if err != nil {
				return nil, fmt.Errorf("union: %w", err)
			}
			next = append(next, u)
		}
		level = next
	}
	if len(geoms) == 1 {
		return level[0].Union(level[0])
	}
	return level[0], nil
}

// Dissolve unions the geometries of features sharing the values of keys.
// Values of different types never match and a missing value forms its own
// group. Groups keep the order in which they first appear and the
// attributes of their first feature.
func (c *Collection) Dissolve(keys ...string) (*Collection, error) {
	type group struct {
		props map[string]any
		geoms []*geos.Geometry
	}

	var order []string
	groups := map[string]*group{}
	for _, f := range c.Features {
		k := groupKey(f.Properties, keys)
		g, ok := groups[k]
		if !ok {
			g = &group{props: copyProps(f.Properties)}
			groups[k] = g
			order = append(order, k)
		}
		g.geoms = append(g.geoms, f.Geometry)
	}

	out := c.emptyLike()
	for _, k := range order {
		g := groups[k]
		u, err := Union(g.geoms)
		if err != nil {
			return nil, err
		}
		out.Add(u, g.props)
	}
	return out, nil
}

func groupKey(props map[string]any, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		v := props[k]
		parts[i] = fmt.Sprintf("%T=%#v", v, v)
	}
	return strings.Join(parts, "\x1f")
}

// Explode splits multi geometries and collections into one feature per
// part. FIDs are renumbered.
func (c *Collection) Explode() (*Collection, error) {
	out := c.emptyLike()
	for _, f := range c.Features {
		ps, err := parts(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", f.FID, err)
		}
		for _, p := range ps {
			empty, err := p.IsEmpty()
			if err != nil {
				return nil, err
			}
			if !empty {
				out.Add(p, copyProps(f.Properties))
			}
		}
	}
	return out, nil
}

func isPolygonal(g *geos.Geometry) (bool, error) {
	t, err := g.Type()
	if err != nil {
		return false, err
	}
	return t == geos.POLYGON || t == geos.MULTIPOLYGON, nil
}

// polygonalPart drops points and lines from a mixed intersection result.
func polygonalPart(g *geos.Geometry) (*geos.Geometry, error) {
	t, err := g.Type()
	if err != nil {
		return nil, err
	}
	if t != geos.GEOMETRYCOLLECTION {
		if t == geos.POLYGON || t == geos.MULTIPOLYGON {
			return g, nil
		}
		return nil, nil
	}

	ps, err := parts(g)
	if err != nil {
		return nil, err
	}
	var polys []*geos.Geometry
	for _, p := range ps {
		ok, err := isPolygonal(p)
		if err != nil {
			return nil, err
		}
		if ok {
			polys = append(polys, p)
		}
	}
	if len(polys) == 0 {
		return nil, nil
	}
	return Union(polys)
}
