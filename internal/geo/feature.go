// Package geo holds the in-memory feature model shared by every dataset and
// the geometry operations applied to it. Geometry algebra is delegated to
// GEOS and coordinate transformation to PROJ.
package geo

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/paulsmith/gogeos/geos"
)

// FieldType is the storage type of an attribute column.
type FieldType int

const (
	FieldInteger FieldType = iota
	FieldReal
	FieldText
	FieldBool
)

// Field describes one attribute column.
type Field struct {
	Name string
	Type FieldType
}

// Feature is a geometry with attributes. Properties holds int64, float64,
// string, bool or nil values keyed by field name.
type Feature struct {
	FID        int64
	Geometry   *geos.Geometry
	Properties map[string]any
}

// Collection is an ordered set of features sharing a CRS and a schema.
type Collection struct {
	SRID     int
	Fields   []Field
	Features []Feature
}

// NewCollection returns an empty collection with the given schema.
func NewCollection(srid int, fields ...Field) *Collection {
	return &Collection{SRID: srid, Fields: append([]Field(nil), fields...)}
}

// Len returns the number of features.
func (c *Collection) Len() int {
	return len(c.Features)
}

// Add appends a feature. Its FID is its position in the collection.
func (c *Collection) Add(g *geos.Geometry, props map[string]any) {
	if props == nil {
		props = map[string]any{}
	}
	c.Features = append(c.Features, Feature{FID: int64(len(c.Features)), Geometry: g, Properties: props})
}

// Field returns the field named name.
func (c *Collection) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// AddField appends a field unless one with the same name exists.
func (c *Collection) AddField(f Field) {
	if _, ok := c.Field(f.Name); !ok {
		c.Fields = append(c.Fields, f)
	}
}

// SetAll sets name to value on every feature, adding the field if needed.
func (c *Collection) SetAll(f Field, value any) {
	c.AddField(f)
	for i := range c.Features {
		c.Features[i].Properties[f.Name] = value
	}
}

// emptyLike returns a collection with the same CRS and schema and no features.
func (c *Collection) emptyLike() *Collection {
	return NewCollection(c.SRID, c.Fields...)
}

func copyProps(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Filter returns the features for which keep returns true.
func (c *Collection) Filter(keep func(Feature) bool) *Collection {
	out := c.emptyLike()
	for _, f := range c.Features {
		if keep(f) {
			out.Features = append(out.Features, Feature{FID: f.FID, Geometry: f.Geometry, Properties: copyProps(f.Properties)})
		}
	}
	return out
}

// MapGeometry returns a collection whose geometries are fn applied to each
// feature geometry. Features for which fn returns nil are dropped.
func (c *Collection) MapGeometry(fn func(*geos.Geometry) (*geos.Geometry, error)) (*Collection, error) {
	out := c.emptyLike()
	for _, f := range c.Features {
		g, err := fn(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", f.FID, err)
		}
		if g == nil {
			continue
		}
		out.Features = append(out.Features, Feature{FID: f.FID, Geometry: g, Properties: copyProps(f.Properties)})
	}
	return out, nil
}

// Select keeps only the named fields, in the given order.
func (c *Collection) Select(names ...string) *Collection {
	out := NewCollection(c.SRID)
	for _, n := range names {
		if f, ok := c.Field(n); ok {
			out.Fields = append(out.Fields, f)
		}
	}
	for _, f := range c.Features {
		props := make(map[string]any, len(out.Fields))
		for _, fld := range out.Fields {
			props[fld.Name] = f.Properties[fld.Name]
		}
		out.Features = append(out.Features, Feature{FID: f.FID, Geometry: f.Geometry, Properties: props})
	}
	return out
}

// Renumber assigns FIDs 0..n-1 in collection order.
func (c *Collection) Renumber() *Collection {
	for i := range c.Features {
		c.Features[i].FID = int64(i)
	}
	return c
}

// GeometryTypes returns the distinct geometry type names, sorted.
func (c *Collection) GeometryTypes() ([]string, error) {
	seen := map[string]bool{}
	for _, f := range c.Features {
		name, err := TypeName(f.Geometry)
		if err != nil {
			return nil, err
		}
		seen[name] = true
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

// MinArea returns the smallest geometry area in the collection.
func (c *Collection) MinArea() (float64, error) {
	minArea := -1.0
	for _, f := range c.Features {
		a, err := f.Geometry.Area()
		if err != nil {
			return 0, err
		}
		if minArea < 0 || a < minArea {
			minArea = a
		}
	}
	if minArea < 0 {
		return 0, nil
	}
	return minArea, nil
}

var typeNames = map[geos.GeometryType]string{
	geos.POINT:              "Point",
	geos.LINESTRING:         "LineString",
	geos.LINEARRING:         "LinearRing",
	geos.POLYGON:            "Polygon",
	geos.MULTIPOINT:         "MultiPoint",
	geos.MULTILINESTRING:    "MultiLineString",
	geos.MULTIPOLYGON:       "MultiPolygon",
	geos.GEOMETRYCOLLECTION: "GeometryCollection",
}

// TypeName returns the simple-features name of the geometry type.
func TypeName(g *geos.Geometry) (string, error) {
	t, err := g.Type()
	if err != nil {
		return "", err
	}
	name, ok := typeNames[t]
	if !ok {
		return "", fmt.Errorf("unsupported geometry type %d", t)
	}
	return name, nil
}

// parts returns independent copies of the member geometries of a multi
// geometry or collection, or g itself for a single geometry.
func parts(g *geos.Geometry) ([]*geos.Geometry, error) {
	t, err := g.Type()
	if err != nil {
		return nil, err
	}
	switch t {
	case geos.MULTIPOINT, geos.MULTILINESTRING, geos.MULTIPOLYGON, geos.GEOMETRYCOLLECTION:
	default:
		return []*geos.Geometry{g}, nil
	}

	n, err := g.NGeometry()
	if err != nil {
		return nil, err
	}
	out := make([]*geos.Geometry, 0, n)
	for i := 0; i < n; i++ {
		child, err := g.Geometry(i)
		if err != nil {
			return nil, err
		}
		wkb, err := child.ToWKB()
		if err != nil {
			return nil, err
		}
		cp, err := geos.FromWKB(wkb)
		if err != nil {
			return nil, err
		}
		sub, err := parts(cp)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	runtime.KeepAlive(g)
	return out, nil
}
