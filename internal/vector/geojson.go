package vector

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/haitaton/gis-material-update/internal/geo"
	geojson "github.com/paulmach/go.geojson"
	"github.com/paulsmith/gogeos/geos"
)

// readGeoJSON reads a feature collection. Without a legacy crs member the
// coordinates are WGS84 longitude and latitude.
func readGeoJSON(path string) (*geo.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson %s: %w", path, err)
	}

	srid := geo.WGS84
	if named := crsName(data); named > 0 {
		srid = named
	}

	c := geo.NewCollection(srid)
	c.Fields = inferFields(fc.Features)

	for i, f := range fc.Features {
		var g *geos.Geometry
		if f.Geometry != nil {
			if g, err = geoJSONGeometry(f.Geometry); err != nil {
				return nil, fmt.Errorf("%s feature %d: %w", path, i, err)
			}
		}

		props := make(map[string]any, len(c.Fields))
		for _, fld := range c.Fields {
			props[fld.Name] = normalizeValue(f.Properties[fld.Name], fld.Type)
		}
		c.Add(g, props)
	}
	return c, nil
}

// crsName reads the legacy named CRS member, e.g.
// {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3879"}}.
func crsName(data []byte) int {
	var doc struct {
		CRS struct {
			Properties struct {
				Name string `json:"name"`
			} `json:"properties"`
		} `json:"crs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0
	}
	name := doc.CRS.Properties.Name
	if i := strings.LastIndex(name, ":"); i >= 0 {
		if code, err := strconv.Atoi(name[i+1:]); err == nil {
			if code == 84 { // urn:ogc:def:crs:OGC:1.3:CRS84
				return geo.WGS84
			}
			return code
		}
	}
	return 0
}

// inferFields derives a schema from the property values. Numbers that are
// all whole become integers.
func inferFields(features []*geojson.Feature) []geo.Field {
	kinds := map[string]geo.FieldType{}
	nullOnly := map[string]bool{}
	for _, f := range features {
		for k, v := range f.Properties {
			t, ok := valueType(v)
			if !ok {
				if _, seen := kinds[k]; !seen {
					nullOnly[k] = true
				}
				continue
			}
			delete(nullOnly, k)
			prev, seen := kinds[k]
			switch {
			case !seen:
				kinds[k] = t
			case prev == geo.FieldInteger && t == geo.FieldReal:
				kinds[k] = geo.FieldReal
			case prev != t && !(prev == geo.FieldReal && t == geo.FieldInteger):
				kinds[k] = geo.FieldText
			}
		}
	}

	for k := range nullOnly {
		kinds[k] = geo.FieldText
	}

	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)

	fields := make([]geo.Field, len(names))
	for i, n := range names {
		fields[i] = geo.Field{Name: n, Type: kinds[n]}
	}
	return fields
}

func valueType(v any) (geo.FieldType, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return geo.FieldInteger, true
		}
		return geo.FieldReal, true
	case bool:
		return geo.FieldBool, true
	default:
		return geo.FieldText, true
	}
}

func normalizeValue(v any, t geo.FieldType) any {
	if v == nil {
		return nil
	}
	switch t {
	case geo.FieldInteger:
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	case geo.FieldReal:
		if f, ok := v.(float64); ok {
			return f
		}
	case geo.FieldBool:
		if b, ok := v.(bool); ok {
			return b
		}
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func positions(ps [][]float64) ([]geos.Coord, error) {
	out := make([]geos.Coord, len(ps))
	for i, p := range ps {
		if len(p) < 2 {
			return nil, fmt.Errorf("position %d has %d values", i, len(p))
		}
		out[i] = geos.NewCoord(p[0], p[1])
	}
	return out, nil
}

func polygon(rings [][][]float64) (*geos.Geometry, error) {
	if len(rings) == 0 {
		return geos.EmptyPolygon()
	}
	shell, err := positions(rings[0])
	if err != nil {
		return nil, err
	}
	holes := make([][]geos.Coord, 0, len(rings)-1)
	for _, r := range rings[1:] {
		h, err := positions(r)
		if err != nil {
			return nil, err
		}
		holes = append(holes, h)
	}
	return geos.NewPolygon(shell, holes...)
}

// geoJSONGeometry converts g to GEOS. Altitudes are dropped.
func geoJSONGeometry(g *geojson.Geometry) (*geos.Geometry, error) {
	var parts []*geos.Geometry
	add := func(p *geos.Geometry, err error) error {
		if err != nil {
			return err
		}
		parts = append(parts, p)
		return nil
	}

	switch g.Type {
	case geojson.GeometryPoint:
		cs, err := positions([][]float64{g.Point})
		if err != nil {
			return nil, err
		}
		return geos.NewPoint(cs...)
	case geojson.GeometryLineString:
		cs, err := positions(g.LineString)
		if err != nil {
			return nil, err
		}
		return geos.NewLineString(cs...)
	case geojson.GeometryPolygon:
		return polygon(g.Polygon)
	case geojson.GeometryMultiPoint:
		cs, err := positions(g.MultiPoint)
		if err != nil {
			return nil, err
		}
		for _, c := range cs {
			if err := add(geos.NewPoint(c)); err != nil {
				return nil, err
			}
		}
		return geos.NewCollection(geos.MULTIPOINT, parts...)
	case geojson.GeometryMultiLineString:
		for _, l := range g.MultiLineString {
			cs, err := positions(l)
			if err != nil {
				return nil, err
			}
			if err := add(geos.NewLineString(cs...)); err != nil {
				return nil, err
			}
		}
		return geos.NewCollection(geos.MULTILINESTRING, parts...)
	case geojson.GeometryMultiPolygon:
		for _, p := range g.MultiPolygon {
			if err := add(polygon(p)); err != nil {
				return nil, err
			}
		}
		return geos.NewCollection(geos.MULTIPOLYGON, parts...)
	case geojson.GeometryCollection:
		for _, child := range g.Geometries {
			if err := add(geoJSONGeometry(child)); err != nil {
				return nil, err
			}
		}
		return geos.NewCollection(geos.GEOMETRYCOLLECTION, parts...)
	default:
		return nil, fmt.Errorf("unsupported geojson geometry %q", g.Type)
	}
}
